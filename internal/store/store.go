// ABOUTME: Store interfaces and sentinel errors for auditlog-gateway persistence
// ABOUTME: Defines the Journal and AuditStore contracts implemented by SQLiteStore

package store

import (
	"context"
	"errors"

	"github.com/2389/auditlog-gateway/internal/logstore"
)

// ErrDuplicateEntry is returned when an entry id has already been journaled.
var ErrDuplicateEntry = errors.New("entry already journaled")

// Journal persists committed log entries.
type Journal interface {
	logstore.Journal
	Close() error
}

// AuditStore records administrative actions.
type AuditStore interface {
	AppendAuditLog(ctx context.Context, e *AuditEntry) error
	ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error)
}

var (
	_ Journal    = (*SQLiteStore)(nil)
	_ AuditStore = (*SQLiteStore)(nil)
)
