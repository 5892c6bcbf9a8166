// ABOUTME: Websocket tail streaming newly committed entries to browsers and auditctl
// ABOUTME: Optional level filter and backlog replay; never blocks the store's writers

package gateway

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/2389/auditlog-gateway/internal/logstore"
)

const (
	tailWriteWait  = 10 * time.Second
	tailPongWait   = 60 * time.Second
	tailPingPeriod = (tailPongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// tailParams are the query parameters of GET /api/logs/ws.
type tailParams struct {
	levels  []string
	backlog bool
	fromID  uint64
}

// parseTailParams reads level (repeatable or comma separated), backlog and from.
func parseTailParams(r *http.Request) (tailParams, error) {
	q := r.URL.Query()
	var p tailParams
	for _, v := range q["level"] {
		for _, l := range strings.Split(v, ",") {
			if l = strings.TrimSpace(l); l != "" {
				p.levels = append(p.levels, l)
			}
		}
	}
	if v := q.Get("backlog"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return p, err
		}
		p.backlog = b
	}
	if v := q.Get("from"); v != "" {
		from, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return p, err
		}
		p.fromID = from
		p.backlog = true
	}
	return p, nil
}

func levelSet(levels []string) func(string) bool {
	if len(levels) == 0 {
		return func(string) bool { return true }
	}
	set := make(map[string]bool, len(levels))
	for _, l := range levels {
		set[l] = true
	}
	return func(l string) bool { return set[l] }
}

// handleTail handles GET /api/logs/ws.
func (g *Gateway) handleTail(w http.ResponseWriter, r *http.Request) {
	params, err := parseTailParams(r)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid tail parameters: "+err.Error())
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client
		g.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Subscribe before reading the backlog so nothing committed in between is missed.
	ch, subID := g.feed.Subscribe(ctx, params.levels...)
	defer g.feed.Unsubscribe(subID)

	go g.tailReadLoop(conn, cancel)

	logger := g.logger.With("remote_addr", r.RemoteAddr, "sub_id", subID)
	logger.Debug("tail connected", "levels", params.levels, "backlog", params.backlog)

	var next uint64
	if params.backlog {
		backlog := g.logs.Since(params.fromID)
		wanted := levelSet(params.levels)
		for _, e := range backlog {
			if !wanted(e.Level) {
				continue
			}
			if err := writeEntry(conn, e); err != nil {
				return
			}
		}
		next = params.fromID + uint64(len(backlog))
	}

	ping := time.NewTicker(tailPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "gateway shutting down"),
					time.Now().Add(tailWriteWait))
				return
			}
			if e.ID < next {
				continue
			}
			if err := writeEntry(conn, e); err != nil {
				logger.Debug("tail write failed", "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(tailWriteWait)); err != nil {
				return
			}
		}
	}
}

// tailReadLoop discards client messages and cancels the tail once the peer
// goes away.
func (g *Gateway) tailReadLoop(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(tailPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(tailPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeEntry(conn *websocket.Conn, e logstore.Entry) error {
	_ = conn.SetWriteDeadline(time.Now().Add(tailWriteWait))
	return conn.WriteJSON(e)
}
