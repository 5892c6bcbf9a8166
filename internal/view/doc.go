// Package view holds presentation helpers shared by the HTTP pages and
// auditctl: sorted views of entries, level styling, timestamp formatting and
// the table and detail renderers.
//
// Everything here is a pure function of its inputs. Sort never reorders the
// slice it is given.
package view
