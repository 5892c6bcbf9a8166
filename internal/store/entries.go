// ABOUTME: Journal methods persisting committed log entries to the log_entries table
// ABOUTME: Converts uint64 ids to their int64 bit pattern for SQLite storage

package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/2389/auditlog-gateway/internal/logstore"
)

// AppendEntry journals a committed entry.
// Returns ErrDuplicateEntry if an entry with the same id exists.
func (s *SQLiteStore) AppendEntry(ctx context.Context, e logstore.Entry) error {
	query := `
		INSERT INTO log_entries (id, level, message, timestamp)
		VALUES (?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		int64(e.ID),
		e.Level,
		e.Message,
		e.Timestamp,
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("%w: id %d", ErrDuplicateEntry, e.ID)
		}
		return fmt.Errorf("inserting log entry: %w", err)
	}

	return nil
}

// LoadEntries returns every journaled entry in ascending id order.
func (s *SQLiteStore) LoadEntries(ctx context.Context) ([]logstore.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, level, message, timestamp FROM log_entries`)
	if err != nil {
		return nil, fmt.Errorf("querying log entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := []logstore.Entry{}
	for rows.Next() {
		var e logstore.Entry
		var id int64
		if err := rows.Scan(&id, &e.Level, &e.Message, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning log entry: %w", err)
		}
		e.ID = uint64(id)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating log entries: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ID < entries[j].ID
	})
	return entries, nil
}
