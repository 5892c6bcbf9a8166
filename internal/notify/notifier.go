// ABOUTME: Matrix notifier posting selected log entries to a room
// ABOUTME: Consumes the live feed outside the store lock and retries delivery via fortify

package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/id"

	"github.com/2389/auditlog-gateway/internal/feed"
	"github.com/2389/auditlog-gateway/internal/links"
	"github.com/2389/auditlog-gateway/internal/logstore"
	"github.com/2389/auditlog-gateway/internal/view"
)

const sendTimeout = 10 * time.Second

// Sender posts a plain text message to a room. *mautrix.Client implements it.
type Sender interface {
	SendText(ctx context.Context, roomID id.RoomID, text string) (*mautrix.RespSendEvent, error)
}

// NewMatrixClient creates a mautrix client for an existing access token.
func NewMatrixClient(homeserver, userID, accessToken string) (*mautrix.Client, error) {
	client, err := mautrix.NewClient(homeserver, id.UserID(userID), accessToken)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}
	return client, nil
}

// Config configures a Notifier.
type Config struct {
	Feed     *feed.Broadcaster
	Sender   Sender
	RoomID   string
	Levels   []string
	LinkBase func() string // read per message; deep links are omitted when nil or empty
	Retry    retry.Config
	Logger   *slog.Logger
}

// Notifier posts entries from the feed to a Matrix room.
type Notifier struct {
	feed     *feed.Broadcaster
	sender   Sender
	roomID   id.RoomID
	levels   []string
	linkBase func() string
	retryCfg retry.Config
	logger   *slog.Logger
}

// New creates a Notifier. A zero Retry config means three attempts starting
// at one second.
func New(cfg Config) (*Notifier, error) {
	if cfg.Feed == nil || cfg.Sender == nil {
		return nil, errors.New("notify: feed and sender are required")
	}
	if cfg.RoomID == "" {
		return nil, errors.New("notify: room id is required")
	}
	rc := cfg.Retry
	if rc.MaxAttempts == 0 {
		rc = retry.Config{
			MaxAttempts:   3,
			InitialDelay:  time.Second,
			BackoffPolicy: retry.BackoffExponential,
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		feed:     cfg.Feed,
		sender:   cfg.Sender,
		roomID:   id.RoomID(cfg.RoomID),
		levels:   cfg.Levels,
		linkBase: cfg.LinkBase,
		retryCfg: rc,
		logger:   logger.With("component", "notify", "room_id", cfg.RoomID),
	}, nil
}

// Run delivers entries until ctx is cancelled or the feed closes.
func (n *Notifier) Run(ctx context.Context) error {
	ch, subID := n.feed.Subscribe(ctx, n.levels...)
	defer n.feed.Unsubscribe(subID)

	n.logger.Info("matrix notifier started", "levels", n.levels)
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			if err := n.Deliver(ctx, e); err != nil && ctx.Err() == nil {
				n.logger.Error("delivering entry", "id", e.ID, "error", err)
			}
		}
	}
}

// Deliver posts one entry, retrying on failure.
func (n *Notifier) Deliver(ctx context.Context, e logstore.Entry) error {
	var base string
	if n.linkBase != nil {
		base = n.linkBase()
	}
	text := FormatMessage(e, base)
	r := retry.New[*mautrix.RespSendEvent](n.retryCfg)
	_, err := r.Do(ctx, func(ctx context.Context) (*mautrix.RespSendEvent, error) {
		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		defer cancel()
		return n.sender.SendText(sendCtx, n.roomID, text)
	})
	if err != nil {
		return fmt.Errorf("sending entry %d: %w", e.ID, err)
	}
	n.logger.Debug("entry delivered", "id", e.ID)
	return nil
}

// FormatMessage renders the room message for e.
func FormatMessage(e logstore.Entry, linkBase string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] entry #%d at %s UTC\n%s", e.Level, e.ID, view.FormatTimestamp(e.Timestamp, time.UTC), e.Message)
	if linkBase != "" {
		b.WriteString("\n")
		b.WriteString(links.EntryURL(linkBase, e.ID))
	}
	return b.String()
}
