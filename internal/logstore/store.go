// ABOUTME: Log store assigning monotonic ids and enforcing the write secret
// ABOUTME: Serializes writers behind one mutex and serves lock-free snapshot reads

package logstore

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrUnauthorized is returned by Append when the supplied key does not match.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrAuthKeyUnset is returned by Append while no secret is configured.
	ErrAuthKeyUnset = fmt.Errorf("%w: no auth key configured", ErrUnauthorized)

	// ErrIDSpaceExhausted is returned by Append once the counter reaches math.MaxUint64.
	ErrIDSpaceExhausted = errors.New("log id space exhausted")
)

// Options configures a Store.
type Options struct {
	AuthKey   string
	Journal   Journal
	Publisher Publisher
	Clock     func() time.Time
	Logger    *slog.Logger
}

// snapshot is an immutable view of the committed entries.
type snapshot struct {
	entries []Entry
}

// Store is the audit log. The zero value is not usable; use New or Open.
type Store struct {
	mu      sync.Mutex
	authKey string
	nextID  uint64
	lastTS  int64
	entries []Entry

	view atomic.Pointer[snapshot]

	journal   Journal
	publisher Publisher
	clock     func() time.Time
	logger    *slog.Logger
}

// New creates an empty store. Any journal in opts is written to but not replayed.
func New(opts Options) *Store {
	s := &Store{
		authKey:   opts.AuthKey,
		journal:   opts.Journal,
		publisher: opts.Publisher,
		clock:     opts.Clock,
		logger:    opts.Logger,
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "logstore")
	s.view.Store(&snapshot{})
	return s
}

// Open creates a store and replays opts.Journal into it.
// The journal must hold the dense id sequence 0..n-1.
func Open(ctx context.Context, opts Options) (*Store, error) {
	s := New(opts)
	if s.journal == nil {
		return s, nil
	}

	entries, err := s.journal.LoadEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading journal: %w", err)
	}

	for i, e := range entries {
		if e.ID != uint64(i) {
			return nil, fmt.Errorf("journal out of sequence: position %d holds id %d", i, e.ID)
		}
		if e.Timestamp > s.lastTS {
			s.lastTS = e.Timestamp
		}
	}

	s.entries = entries
	s.nextID = uint64(len(entries))
	s.view.Store(&snapshot{entries: s.entries})

	s.logger.Info("replayed journal", "entries", len(entries))
	return s, nil
}

// Append adds an entry if suppliedKey matches the current secret and returns its id.
// On any error no entry is created and the counter is unchanged.
func (s *Store) Append(ctx context.Context, suppliedKey, level, message string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.authorizeLocked(suppliedKey); err != nil {
		return 0, err
	}
	if s.nextID == math.MaxUint64 {
		return 0, ErrIDSpaceExhausted
	}

	ts := s.clock().UnixNano()
	if ts < s.lastTS {
		ts = s.lastTS
	}

	entry := Entry{
		ID:        s.nextID,
		Level:     level,
		Message:   message,
		Timestamp: ts,
	}

	if s.journal != nil {
		// The row may commit even when the caller goes away mid-write, so the
		// journal write must not observe the caller's cancellation.
		if err := s.journal.AppendEntry(context.WithoutCancel(ctx), entry); err != nil {
			return 0, fmt.Errorf("writing journal: %w", err)
		}
	}

	s.entries = append(s.entries, entry)
	s.view.Store(&snapshot{entries: s.entries})
	s.nextID++
	s.lastTS = ts

	if s.publisher != nil {
		s.publisher.Publish(entry)
	}

	s.logger.Debug("appended entry", "id", entry.ID, "level", entry.Level)
	return entry.ID, nil
}

// authorizeLocked checks the supplied key against the secret. Must be called with mu held.
func (s *Store) authorizeLocked(supplied string) error {
	if s.authKey == "" {
		return ErrAuthKeyUnset
	}
	if subtle.ConstantTimeCompare([]byte(supplied), []byte(s.authKey)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// Authorize reports whether suppliedKey would currently be accepted by Append.
func (s *Store) Authorize(suppliedKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authorizeLocked(suppliedKey)
}

// Get returns the entry with the given id. The bool is false if no such entry exists.
func (s *Store) Get(id uint64) (Entry, bool) {
	snap := s.view.Load()
	if id >= uint64(len(snap.entries)) {
		return Entry{}, false
	}
	return snap.entries[id], true
}

// List returns a copy of every entry in ascending id order.
func (s *Store) List() []Entry {
	snap := s.view.Load()
	out := make([]Entry, len(snap.entries))
	copy(out, snap.entries)
	return out
}

// Since returns a copy of the entries whose id is at least from.
func (s *Store) Since(from uint64) []Entry {
	snap := s.view.Load()
	if from >= uint64(len(snap.entries)) {
		return []Entry{}
	}
	out := make([]Entry, uint64(len(snap.entries))-from)
	copy(out, snap.entries[from:])
	return out
}

// Count returns the number of committed entries.
func (s *Store) Count() uint64 {
	return uint64(len(s.view.Load().entries))
}

// SetAuthKey replaces the write secret. An empty key disables writes.
func (s *Store) SetAuthKey(newKey string) {
	s.mu.Lock()
	s.authKey = newKey
	s.mu.Unlock()

	s.logger.Info("auth key replaced", "writes_enabled", newKey != "")
}

// AuthKeyConfigured reports whether appends can currently succeed with some key.
func (s *Store) AuthKeyConfigured() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authKey != ""
}
