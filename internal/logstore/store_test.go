// ABOUTME: Tests for the log store covering ids, authorization, snapshots and replay
// ABOUTME: Includes the boot/low-disk scenario and concurrent append behavior

package logstore

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memJournal is an in-memory Journal that can be told to fail.
type memJournal struct {
	mu      sync.Mutex
	entries []Entry
	failErr error
}

func (j *memJournal) AppendEntry(ctx context.Context, e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.failErr != nil {
		return j.failErr
	}
	// Like database/sql drivers, report a cancelled context as a failure.
	if err := ctx.Err(); err != nil {
		return err
	}
	j.entries = append(j.entries, e)
	return nil
}

func (j *memJournal) LoadEntries(_ context.Context) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Entry, len(j.entries))
	copy(out, j.entries)
	return out, nil
}

// recordingPublisher collects published entries.
type recordingPublisher struct {
	mu      sync.Mutex
	entries []Entry
}

func (p *recordingPublisher) Publish(e Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, e)
}

func TestStore_Scenario(t *testing.T) {
	ctx := context.Background()
	s := New(Options{AuthKey: "s3cr3t"})

	id, err := s.Append(ctx, "s3cr3t", "INFO", "boot")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), id)

	_, err = s.Append(ctx, "wrong", "ERROR", "x")
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, uint64(1), s.Count())

	id, err = s.Append(ctx, "s3cr3t", "WARN", "low disk")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)

	entries := s.List()
	require.Len(t, entries, 2)
	assert.Equal(t, uint64(0), entries[0].ID)
	assert.Equal(t, "INFO", entries[0].Level)
	assert.Equal(t, "boot", entries[0].Message)
	assert.Equal(t, uint64(1), entries[1].ID)
	assert.Equal(t, "WARN", entries[1].Level)
	assert.Equal(t, "low disk", entries[1].Message)

	_, ok := s.Get(5)
	assert.False(t, ok)
}

func TestStore_IDsStrictlyIncreasingWithoutGaps(t *testing.T) {
	ctx := context.Background()
	s := New(Options{AuthKey: "k"})

	for i := 0; i < 50; i++ {
		id, err := s.Append(ctx, "k", LevelInfo, "msg")
		require.NoError(t, err)
		assert.Equal(t, uint64(i), id)
	}
	assert.Equal(t, uint64(50), s.Count())
}

func TestStore_GetReturnsAppendedEntry(t *testing.T) {
	ctx := context.Background()
	s := New(Options{AuthKey: "k"})

	before := time.Now().UnixNano()
	id, err := s.Append(ctx, "k", "DEBUG", "any level text is accepted")
	require.NoError(t, err)

	got, ok := s.Get(id)
	require.True(t, ok)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "DEBUG", got.Level)
	assert.Equal(t, "any level text is accepted", got.Message)
	assert.GreaterOrEqual(t, got.Timestamp, before)
}

func TestStore_GetNeverIssued(t *testing.T) {
	s := New(Options{AuthKey: "k"})

	for _, id := range []uint64{0, 1, 42, math.MaxUint64} {
		got, ok := s.Get(id)
		assert.False(t, ok, "id %d", id)
		assert.Equal(t, Entry{}, got)
	}
}

func TestStore_UnsetAuthKeyRejectsAllWrites(t *testing.T) {
	ctx := context.Background()
	s := New(Options{})

	for _, key := range []string{"", "anything"} {
		_, err := s.Append(ctx, key, LevelInfo, "x")
		require.ErrorIs(t, err, ErrAuthKeyUnset)
		require.ErrorIs(t, err, ErrUnauthorized)
	}
	assert.Equal(t, uint64(0), s.Count())
	assert.False(t, s.AuthKeyConfigured())

	s.SetAuthKey("now-set")
	assert.True(t, s.AuthKeyConfigured())

	id, err := s.Append(ctx, "now-set", LevelInfo, "x")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), id)
}

func TestStore_SetAuthKeyRotates(t *testing.T) {
	ctx := context.Background()
	s := New(Options{AuthKey: "K1"})

	_, err := s.Append(ctx, "K1", LevelInfo, "before")
	require.NoError(t, err)

	s.SetAuthKey("K2")

	_, err = s.Append(ctx, "K1", LevelInfo, "old key")
	require.ErrorIs(t, err, ErrUnauthorized)

	id, err := s.Append(ctx, "K2", LevelInfo, "new key")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)

	// Rotation leaves existing entries alone.
	got, ok := s.Get(0)
	require.True(t, ok)
	assert.Equal(t, "before", got.Message)
}

func TestStore_SetAuthKeyEmptyDisablesWrites(t *testing.T) {
	ctx := context.Background()
	s := New(Options{AuthKey: "k"})

	s.SetAuthKey("")

	_, err := s.Append(ctx, "", LevelInfo, "x")
	require.ErrorIs(t, err, ErrAuthKeyUnset)
}

func TestStore_KeyComparisonIsExact(t *testing.T) {
	ctx := context.Background()
	s := New(Options{AuthKey: "s3cr3t"})

	for _, key := range []string{"S3CR3T", "s3cr3t ", " s3cr3t", "s3cr3", "s3cr3tt"} {
		_, err := s.Append(ctx, key, LevelInfo, "x")
		assert.ErrorIs(t, err, ErrUnauthorized, "key %q", key)
	}
	assert.Equal(t, uint64(0), s.Count())
}

func TestStore_CountMatchesList(t *testing.T) {
	ctx := context.Background()
	s := New(Options{AuthKey: "k"})

	assert.Equal(t, uint64(len(s.List())), s.Count())
	for i := 0; i < 5; i++ {
		_, _ = s.Append(ctx, "k", LevelInfo, "x")
		_, _ = s.Append(ctx, "bad", LevelInfo, "x")
		assert.Equal(t, uint64(len(s.List())), s.Count())
	}
	assert.Equal(t, uint64(5), s.Count())
}

func TestStore_ListReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := New(Options{AuthKey: "k"})
	_, err := s.Append(ctx, "k", LevelInfo, "original")
	require.NoError(t, err)

	entries := s.List()
	entries[0].Message = "tampered"

	got, ok := s.Get(0)
	require.True(t, ok)
	assert.Equal(t, "original", got.Message)
}

func TestStore_ListEmptyIsNotNil(t *testing.T) {
	s := New(Options{})
	entries := s.List()
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestStore_TimestampsNeverGoBackwards(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 1, 24, 14, 30, 45, 0, time.UTC)
	times := []time.Time{base, base.Add(-time.Hour), base.Add(time.Second)}
	i := 0
	clock := func() time.Time {
		ts := times[i]
		i++
		return ts
	}

	s := New(Options{AuthKey: "k", Clock: clock})
	for range times {
		_, err := s.Append(ctx, "k", LevelInfo, "x")
		require.NoError(t, err)
	}

	entries := s.List()
	assert.Equal(t, base.UnixNano(), entries[0].Timestamp)
	assert.Equal(t, base.UnixNano(), entries[1].Timestamp, "clock step back reuses previous timestamp")
	assert.Equal(t, base.Add(time.Second).UnixNano(), entries[2].Timestamp)
}

func TestStore_ConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	s := New(Options{AuthKey: "k"})

	const n = 200
	ids := make([]uint64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := s.Append(ctx, "k", LevelInfo, "concurrent")
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}

	// Readers run alongside writers and must always see a consistent prefix.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for j := 0; j < 100; j++ {
			entries := s.List()
			for k, e := range entries {
				assert.Equal(t, uint64(k), e.ID)
				assert.Equal(t, "concurrent", e.Message)
			}
		}
	}()

	wg.Wait()
	<-done

	assert.Equal(t, uint64(n), s.Count())
	seen := make(map[uint64]bool, n)
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
		assert.Less(t, id, uint64(n))
	}
}

func TestStore_ConcurrentRotationSeesOneKey(t *testing.T) {
	ctx := context.Background()
	s := New(Options{AuthKey: "A"})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := s.Append(ctx, "A", LevelInfo, "a"); err != nil {
				assert.ErrorIs(t, err, ErrUnauthorized)
			}
		}()
		go func(i int) {
			defer wg.Done()
			if i == 50 {
				s.SetAuthKey("B")
			}
		}(i)
	}
	wg.Wait()

	_, err := s.Append(ctx, "A", LevelInfo, "a")
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = s.Append(ctx, "B", LevelInfo, "b")
	require.NoError(t, err)

	entries := s.List()
	assert.Equal(t, uint64(len(entries)), s.Count())
}

func TestStore_IDSpaceExhausted(t *testing.T) {
	ctx := context.Background()
	s := New(Options{AuthKey: "k"})
	s.nextID = math.MaxUint64 - 1

	id, err := s.Append(ctx, "k", LevelInfo, "last")
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64-1), id)

	_, err = s.Append(ctx, "k", LevelInfo, "overflow")
	require.ErrorIs(t, err, ErrIDSpaceExhausted)
	assert.Equal(t, uint64(math.MaxUint64), s.nextID)
}

func TestStore_JournalFailureLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	j := &memJournal{}
	pub := &recordingPublisher{}
	s := New(Options{AuthKey: "k", Journal: j, Publisher: pub})

	_, err := s.Append(ctx, "k", LevelInfo, "first")
	require.NoError(t, err)

	j.failErr = errors.New("disk full")
	_, err = s.Append(ctx, "k", LevelInfo, "lost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, uint64(1), s.Count())
	assert.Len(t, pub.entries, 1)

	j.failErr = nil
	id, err := s.Append(ctx, "k", LevelInfo, "second")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id, "failed append must not consume an id")
}

func TestStore_CancelledCallerStillCommits(t *testing.T) {
	j := &memJournal{}
	s := New(Options{AuthKey: "k", Journal: j})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	id, err := s.Append(ctx, "k", LevelInfo, "client hung up")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), id)
	assert.Equal(t, uint64(1), s.Count())
	assert.Len(t, j.entries, 1)

	id, err = s.Append(context.Background(), "k", LevelInfo, "next")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)
}

func TestStore_OpenReplaysJournal(t *testing.T) {
	ctx := context.Background()
	j := &memJournal{}

	first := New(Options{AuthKey: "k", Journal: j})
	for _, msg := range []string{"a", "b", "c"} {
		_, err := first.Append(ctx, "k", LevelWarn, msg)
		require.NoError(t, err)
	}
	original := first.List()

	reopened, err := Open(ctx, Options{AuthKey: "k", Journal: j})
	require.NoError(t, err)
	assert.Equal(t, original, reopened.List())
	assert.Equal(t, uint64(3), reopened.Count())

	id, err := reopened.Append(ctx, "k", LevelInfo, "d")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), id)

	got, _ := reopened.Get(3)
	assert.GreaterOrEqual(t, got.Timestamp, original[2].Timestamp)
}

func TestStore_OpenRejectsGappedJournal(t *testing.T) {
	j := &memJournal{entries: []Entry{{ID: 0}, {ID: 2}}}

	_, err := Open(context.Background(), Options{Journal: j})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of sequence")
}

func TestStore_PublishesInIDOrder(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	s := New(Options{AuthKey: "k", Publisher: pub})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Append(ctx, "k", LevelInfo, "x")
		}()
	}
	_, _ = s.Append(ctx, "nope", LevelInfo, "rejected")
	wg.Wait()

	require.Len(t, pub.entries, 50)
	for i, e := range pub.entries {
		assert.Equal(t, uint64(i), e.ID)
	}
}

func TestEntry_Time(t *testing.T) {
	ts := time.Date(2026, 1, 24, 14, 30, 45, 123, time.UTC)
	e := Entry{Timestamp: ts.UnixNano()}
	assert.True(t, ts.Equal(e.Time()))
}

func TestStore_Authorize(t *testing.T) {
	s := New(Options{})
	assert.ErrorIs(t, s.Authorize("anything"), ErrAuthKeyUnset)

	s.SetAuthKey("k")
	assert.NoError(t, s.Authorize("k"))
	assert.ErrorIs(t, s.Authorize("K"), ErrUnauthorized)
	assert.Equal(t, uint64(0), s.Count(), "authorize never appends")
}

func TestStore_Since(t *testing.T) {
	ctx := context.Background()
	s := New(Options{AuthKey: "k"})
	for i := 0; i < 4; i++ {
		_, err := s.Append(ctx, "k", LevelInfo, "m")
		require.NoError(t, err)
	}

	got := s.Since(2)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(2), got[0].ID)
	assert.Equal(t, uint64(3), got[1].ID)

	assert.Len(t, s.Since(0), 4)
	assert.NotNil(t, s.Since(10))
	assert.Empty(t, s.Since(10))
}
