// ABOUTME: LogEntry data type and the collaborator interfaces of the log store
// ABOUTME: Defines Journal for durability and Publisher for live fan-out

package logstore

import (
	"context"
	"time"
)

// Recommended levels. The store accepts any level text.
const (
	LevelError = "ERROR"
	LevelWarn  = "WARN"
	LevelInfo  = "INFO"
)

// Entry is one immutable audit record.
type Entry struct {
	ID        uint64 `json:"id"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"` // nanoseconds since the Unix epoch
}

// Time returns the entry timestamp as a time.Time.
func (e Entry) Time() time.Time {
	return time.Unix(0, e.Timestamp)
}

// Journal is an append-only record of committed entries supplied by the host.
type Journal interface {
	AppendEntry(ctx context.Context, e Entry) error
	LoadEntries(ctx context.Context) ([]Entry, error)
}

// Publisher receives every committed entry in id order.
// Publish is called with the writer lock held and must not block.
type Publisher interface {
	Publish(e Entry)
}
