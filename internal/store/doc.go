// Package store provides durable storage for the gateway using SQLite.
//
// # Architecture
//
// SQLiteStore plays two roles:
//
//   - Journal: the append-only record of committed log entries. It satisfies
//     logstore.Journal, so the log store writes every entry through to it and
//     replays it at start-up.
//   - AuditStore: a trail of administrative actions (auth key rotation, admin
//     token issuance). Only the fact of the action is recorded, never a secret.
//
// # Data Models
//
//   - log_entries: id, level, message, timestamp (nanoseconds)
//   - admin_audit: audit_id, actor, action, ts, detail_json
//
// Entry ids are unsigned 64-bit values. SQLite integers are signed, so ids are
// stored as their int64 bit pattern and converted back on load; ordering by id
// is done in Go after conversion.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//
// Database file locations:
//
//   - Production: /var/lib/auditlog-gateway/journal.db
//   - Development: ~/.local/share/auditlog/journal.db
//   - Testing: t.TempDir() or :memory:
//
// # Error Handling
//
//   - ErrDuplicateEntry: an entry with the same id is already journaled
//
// All methods accept context.Context for cancellation support.
package store
