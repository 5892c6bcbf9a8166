// Package dedupe remembers the outcome of client requests carrying a request
// id, so a retried append returns the id issued the first time instead of
// committing a second entry.
package dedupe
