// ABOUTME: In-memory fan-out broadcaster for committed log entries
// ABOUTME: Feeds websocket tails, gRPC watchers and the Matrix notifier without blocking writers

package feed

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/2389/auditlog-gateway/internal/logstore"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64
)

type subscriber struct {
	ch     chan logstore.Entry
	levels map[string]bool // nil means every level
}

func (s *subscriber) wants(level string) bool {
	return s.levels == nil || s.levels[level]
}

// Broadcaster provides in-memory pub/sub for committed log entries.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber // subID -> subscriber
	closed      bool
	dropped     atomic.Uint64
	logger      *slog.Logger
}

var _ logstore.Publisher = (*Broadcaster)(nil)

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]*subscriber),
		logger:      logger.With("component", "feed"),
	}
}

// Subscribe registers a subscriber for entries at the given levels, or for
// every entry when no level is given. Returns a channel that receives entries
// in id order and a subscription ID for later unsubscription. The
// subscription is automatically cleaned up when ctx is cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context, levels ...string) (<-chan logstore.Entry, string) {
	subID := uuid.New().String()
	sub := &subscriber{ch: make(chan logstore.Entry, subscriberBufferSize)}
	if len(levels) > 0 {
		sub.levels = make(map[string]bool, len(levels))
		for _, l := range levels {
			sub.levels[l] = true
		}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.ch)
		return sub.ch, subID
	}
	b.subscribers[subID] = sub
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "sub_id", subID, "levels", levels)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(subID)
	}()

	return sub.ch, subID
}

// Publish sends an entry to every interested subscriber.
// Non-blocking: entries are dropped for subscribers whose channels are full.
func (b *Broadcaster) Publish(e logstore.Entry) {
	// Sends happen under the read lock so Unsubscribe cannot close a channel
	// mid-send. They never block, so the lock is held briefly.
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, sub := range b.subscribers {
		if !sub.wants(e.Level) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			b.dropped.Add(1)
			b.logger.Debug("dropped entry for slow subscriber",
				"sub_id", id,
				"entry_id", e.ID)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subscribers[subID]
	if !ok {
		return
	}
	delete(b.subscribers, subID)
	close(sub.ch)

	b.logger.Debug("subscriber removed", "sub_id", subID)
}

// Subscribers returns the number of active subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Dropped returns how many deliveries were skipped because a subscriber was full.
func (b *Broadcaster) Dropped() uint64 {
	return b.dropped.Load()
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for subID, sub := range b.subscribers {
		close(sub.ch)
		delete(b.subscribers, subID)
	}

	b.logger.Debug("broadcaster closed")
}
