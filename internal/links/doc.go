// Package links builds deep links to individual log entries and renders them
// as QR codes.
//
// A deep link has the form <base>/?entry=<id>. The gateway's root handler
// resolves it to a detail page, and auditctl prints it for sharing.
package links
