// ABOUTME: HTTP JSON API over the log store: append, get, list, count and key rotation
// ABOUTME: Request bodies are validated against JSON schemas before decoding

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/2389/auditlog-gateway/internal/auth"
	"github.com/2389/auditlog-gateway/internal/links"
	"github.com/2389/auditlog-gateway/internal/logstore"
	"github.com/2389/auditlog-gateway/internal/rpc"
	"github.com/2389/auditlog-gateway/internal/view"
)

// maxBodyBytes bounds request bodies on the JSON API.
const maxBodyBytes = 1 << 20

// AppendRequest is the JSON request body for POST /api/logs.
type AppendRequest struct {
	AuthKey   string `json:"auth_key"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// AppendResponse is the JSON response for POST /api/logs.
type AppendResponse struct {
	ID   uint64 `json:"id"`
	Link string `json:"link"`
}

// ListResponse is the JSON response for GET /api/logs.
type ListResponse struct {
	Entries []logstore.Entry `json:"entries"`
}

// CountResponse is the JSON response for GET /api/logs/count.
type CountResponse struct {
	Count uint64 `json:"count"`
}

// SetAuthKeyRequest is the JSON request body for PUT /api/admin/auth-key.
type SetAuthKeyRequest struct {
	NewKey string `json:"new_key"`
}

// InfoResponse is the JSON response for GET /api/info.
type InfoResponse struct {
	ServerID      string `json:"server_id"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Entries       uint64 `json:"entries"`
	WritesEnabled bool   `json:"writes_enabled"`
	AdminEnabled  bool   `json:"admin_enabled"`
	Persistent    bool   `json:"persistent"`
	Subscribers   int    `json:"subscribers"`
	Dropped       uint64 `json:"dropped"`
	LinkBase      string `json:"link_base"`
}

const appendSchemaJSON = `{
  "type": "object",
  "properties": {
    "auth_key":   {"type": "string"},
    "level":      {"type": "string"},
    "message":    {"type": "string"},
    "request_id": {"type": "string", "maxLength": 128}
  },
  "required": ["auth_key", "level", "message"],
  "additionalProperties": false
}`

const setAuthKeySchemaJSON = `{
  "type": "object",
  "properties": {
    "new_key": {"type": "string"}
  },
  "required": ["new_key"],
  "additionalProperties": false
}`

var (
	appendSchema     = mustSchema(appendSchemaJSON)
	setAuthKeySchema = mustSchema(setAuthKeySchemaJSON)
)

func mustSchema(s string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(fmt.Sprintf("compiling schema: %v", err))
	}
	return schema
}

// decodeValidated reads a JSON body, validates it against schema and decodes it into dst.
func decodeValidated(r *http.Request, w http.ResponseWriter, schema *gojsonschema.Schema, dst any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return errors.New("request body too large or unreadable")
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return errors.New("invalid JSON body")
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return fmt.Errorf("invalid request: %s", strings.Join(msgs, "; "))
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}

// Handler returns the HTTP handler serving health checks, the JSON API,
// the websocket tail and the entry pages.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health endpoints - no auth required
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /health/ready", g.handleReady)

	// Log API - writes are gated by the auth key in the body
	mux.HandleFunc("POST /api/logs", g.handleAppend)
	mux.HandleFunc("GET /api/logs", g.handleList)
	mux.HandleFunc("GET /api/logs/count", g.handleCount)
	mux.HandleFunc("GET /api/logs/ws", g.handleTail)
	mux.HandleFunc("GET /api/logs/{id}", g.handleGet)
	mux.HandleFunc("GET /api/logs/{id}/qr.png", g.handleQRCode)
	mux.HandleFunc("GET /api/info", g.handleInfo)

	// Admin API - admin JWT required; refused outright without jwt_secret
	requireAdmin := auth.RequireAdminHTTP(g.verifier, g.logger.With("component", "auth"))
	mux.Handle("PUT /api/admin/auth-key", requireAdmin(http.HandlerFunc(g.handleSetAuthKey)))

	// Pages
	mux.HandleFunc("GET /{$}", g.handleIndex)

	return mux
}

// sendJSON writes v as a JSON response with the given status.
func (g *Gateway) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Debug("writing response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.sendJSON(w, status, map[string]string{"error": message})
}

// httpStatusFor maps a LogService status code onto an HTTP status.
func httpStatusFor(code codes.Code) int {
	switch code {
	case codes.OK:
		return http.StatusOK
	case codes.PermissionDenied, codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.ResourceExhausted:
		return http.StatusInsufficientStorage
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.Canceled, codes.DeadlineExceeded:
		return http.StatusRequestTimeout
	default:
		return http.StatusServiceUnavailable
	}
}

// parseID reads the {id} path value.
func parseID(r *http.Request) (uint64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid entry id %q", raw)
	}
	return id, nil
}

// handleAppend handles POST /api/logs.
func (g *Gateway) handleAppend(w http.ResponseWriter, r *http.Request) {
	var req AppendRequest
	if err := decodeValidated(r, w, appendSchema, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := g.service.Log(r.Context(), &rpc.LogRequest{
		AuthKey:   req.AuthKey,
		Level:     req.Level,
		Message:   req.Message,
		RequestID: req.RequestID,
	})
	if err != nil {
		st := status.Convert(err)
		code := httpStatusFor(st.Code())
		if code >= http.StatusInternalServerError {
			g.logger.Error("append failed", "error", err)
		}
		g.sendJSONError(w, code, st.Message())
		return
	}

	g.sendJSON(w, http.StatusCreated, AppendResponse{
		ID:   resp.ID,
		Link: links.EntryURL(g.LinkBase(), resp.ID),
	})
}

// handleList handles GET /api/logs. Entries are in ascending id order unless
// sort or dir is given.
func (g *Gateway) handleList(w http.ResponseWriter, r *http.Request) {
	entries := g.logs.List()

	q := r.URL.Query()
	if q.Has("sort") || q.Has("dir") {
		key, dir, err := view.ParseSort(q.Get("sort"), q.Get("dir"))
		if err != nil {
			g.sendJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		entries = view.Sort(entries, key, dir)
	}

	g.sendJSON(w, http.StatusOK, ListResponse{Entries: entries})
}

// handleGet handles GET /api/logs/{id}.
func (g *Gateway) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	e, ok := g.logs.Get(id)
	if !ok {
		g.sendJSONError(w, http.StatusNotFound, "entry not found")
		return
	}
	g.sendJSON(w, http.StatusOK, e)
}

// handleCount handles GET /api/logs/count.
func (g *Gateway) handleCount(w http.ResponseWriter, r *http.Request) {
	g.sendJSON(w, http.StatusOK, CountResponse{Count: g.logs.Count()})
}

// handleQRCode handles GET /api/logs/{id}/qr.png.
func (g *Gateway) handleQRCode(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, ok := g.logs.Get(id); !ok {
		g.sendJSONError(w, http.StatusNotFound, "entry not found")
		return
	}

	png, err := links.QRCode(links.EntryURL(g.LinkBase(), id))
	if err != nil {
		g.logger.Error("rendering qr code", "id", id, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	_, _ = w.Write(png)
}

// handleSetAuthKey handles PUT /api/admin/auth-key. RequireAdminHTTP has
// already authorized the caller.
func (g *Gateway) handleSetAuthKey(w http.ResponseWriter, r *http.Request) {
	var req SetAuthKeyRequest
	if err := decodeValidated(r, w, setAuthKeySchema, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	actor := auth.Actor(r.Context(), "unknown")
	g.service.RotateAuthKey(r.Context(), actor, req.NewKey)
	g.logger.Info("auth key rotated", "actor", actor, "writes_enabled", req.NewKey != "")
	w.WriteHeader(http.StatusNoContent)
}

// handleInfo handles GET /api/info.
func (g *Gateway) handleInfo(w http.ResponseWriter, r *http.Request) {
	g.sendJSON(w, http.StatusOK, InfoResponse{
		ServerID:      g.serverID,
		UptimeSeconds: int64(time.Since(g.startedAt).Seconds()),
		Entries:       g.logs.Count(),
		WritesEnabled: g.logs.AuthKeyConfigured(),
		AdminEnabled:  g.verifier != nil,
		Persistent:    g.journal != nil,
		Subscribers:   g.feed.Subscribers(),
		Dropped:       g.feed.Dropped(),
		LinkBase:      g.LinkBase(),
	})
}
