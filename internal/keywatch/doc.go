// Package keywatch keeps the log store's write key in sync with a key file.
//
// The directory holding the file is watched rather than the file itself, so
// editors and secret managers that replace the file by rename are seen too.
// Bursts of events are coalesced by a debouncer, then the trimmed file
// content becomes the new key. Empty files are ignored with a warning.
package keywatch
