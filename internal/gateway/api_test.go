// ABOUTME: Tests for the HTTP log API, admin key rotation, pages and websocket tail
// ABOUTME: Drives Gateway.Handler through httptest recorders and servers

package gateway

import (
	"bytes"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"

	"github.com/2389/auditlog-gateway/internal/auth"
	"github.com/2389/auditlog-gateway/internal/config"
	"github.com/2389/auditlog-gateway/internal/logstore"
)

func doRequest(t *testing.T, h http.Handler, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func appendBody(key, level, msg string) string {
	b, _ := json.Marshal(AppendRequest{AuthKey: key, Level: level, Message: msg})
	return string(b)
}

func adminHeader(t *testing.T, gw *Gateway, subject, role string) http.Header {
	t.Helper()
	v, ok := gw.verifier.(*auth.JWTVerifier)
	require.True(t, ok)
	token, err := v.Generate(subject, role, time.Hour)
	require.NoError(t, err)
	return http.Header{"Authorization": {"Bearer " + token}}
}

func TestAPI_Scenario(t *testing.T) {
	gw := newTestGateway(t, nil)
	h := gw.Handler()

	rec := doRequest(t, h, http.MethodPost, "/api/logs", appendBody(testAuthKey, "INFO", "boot"), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decodeBody[AppendResponse](t, rec)
	assert.Equal(t, uint64(0), resp.ID)
	assert.Equal(t, "http://logs.test/?entry=0", resp.Link)

	rec = doRequest(t, h, http.MethodPost, "/api/logs", appendBody(testAuthKey, "WARN", "low disk"), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, uint64(1), decodeBody[AppendResponse](t, rec).ID)

	rec = doRequest(t, h, http.MethodPost, "/api/logs", appendBody("wrong", "ERROR", "x"), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "unauthorized")

	rec = doRequest(t, h, http.MethodGet, "/api/logs/count", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint64(2), decodeBody[CountResponse](t, rec).Count)

	rec = doRequest(t, h, http.MethodGet, "/api/logs/1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	e := decodeBody[logstore.Entry](t, rec)
	assert.Equal(t, "WARN", e.Level)
	assert.Equal(t, "low disk", e.Message)

	rec = doRequest(t, h, http.MethodGet, "/api/logs/5", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/api/logs", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[ListResponse](t, rec)
	require.Len(t, list.Entries, 2)
	assert.Equal(t, uint64(0), list.Entries[0].ID)
	assert.Equal(t, uint64(1), list.Entries[1].ID)
}

func TestAPI_AppendValidation(t *testing.T) {
	gw := newTestGateway(t, nil)
	h := gw.Handler()

	tests := []struct {
		name string
		body string
	}{
		{"not json", "{"},
		{"missing message", `{"auth_key":"s3cr3t","level":"INFO"}`},
		{"wrong type", `{"auth_key":"s3cr3t","level":"INFO","message":42}`},
		{"unknown field", `{"auth_key":"s3cr3t","level":"INFO","message":"m","extra":true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, h, http.MethodPost, "/api/logs", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
	assert.Equal(t, uint64(0), gw.Store().Count())
}

func TestAPI_AppendEmptyLevelAndMessage(t *testing.T) {
	gw := newTestGateway(t, nil)

	rec := doRequest(t, gw.Handler(), http.MethodPost, "/api/logs", appendBody(testAuthKey, "", ""), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	e, ok := gw.Store().Get(0)
	require.True(t, ok)
	assert.Equal(t, "", e.Level)
	assert.Equal(t, "", e.Message)
}

func TestAPI_AppendAcceptsAnyLevelText(t *testing.T) {
	gw := newTestGateway(t, nil)
	level := strings.Repeat("CUSTOM-", 40)

	rec := doRequest(t, gw.Handler(), http.MethodPost, "/api/logs", appendBody(testAuthKey, level, "m"), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	e, ok := gw.Store().Get(0)
	require.True(t, ok)
	assert.Equal(t, level, e.Level)
}

func TestAPI_AppendRequestIDReplay(t *testing.T) {
	gw := newTestGateway(t, nil)
	h := gw.Handler()
	body := `{"auth_key":"s3cr3t","level":"INFO","message":"once","request_id":"r-1"}`

	first := doRequest(t, h, http.MethodPost, "/api/logs", body, nil)
	require.Equal(t, http.StatusCreated, first.Code)
	again := doRequest(t, h, http.MethodPost, "/api/logs", body, nil)
	require.Equal(t, http.StatusCreated, again.Code)

	assert.Equal(t, decodeBody[AppendResponse](t, first).ID, decodeBody[AppendResponse](t, again).ID)
	assert.Equal(t, uint64(1), gw.Store().Count())
}

func TestAPI_AppendWritesDisabled(t *testing.T) {
	gw := newTestGateway(t, func(c *config.Config) { c.Auth.AuthKey = "" })

	rec := doRequest(t, gw.Handler(), http.MethodPost, "/api/logs", appendBody("", "INFO", "x"), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPI_ListSorted(t *testing.T) {
	gw := newTestGateway(t, nil)
	for _, level := range []string{"WARN", "ERROR", "INFO"} {
		_, err := gw.Store().Append(t.Context(), testAuthKey, level, "m")
		require.NoError(t, err)
	}
	h := gw.Handler()

	rec := doRequest(t, h, http.MethodGet, "/api/logs?sort=id&dir=desc", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[ListResponse](t, rec)
	assert.Equal(t, uint64(2), list.Entries[0].ID)

	rec = doRequest(t, h, http.MethodGet, "/api/logs?sort=level&dir=asc", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list = decodeBody[ListResponse](t, rec)
	assert.Equal(t, "ERROR", list.Entries[0].Level)

	rec = doRequest(t, h, http.MethodGet, "/api/logs?sort=bogus", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_GetInvalidID(t *testing.T) {
	gw := newTestGateway(t, nil)

	rec := doRequest(t, gw.Handler(), http.MethodGet, "/api/logs/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = doRequest(t, gw.Handler(), http.MethodGet, "/api/logs/-1", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_QRCode(t *testing.T) {
	gw := newTestGateway(t, nil)
	_, err := gw.Store().Append(t.Context(), testAuthKey, "ERROR", "boom")
	require.NoError(t, err)
	h := gw.Handler()

	rec := doRequest(t, h, http.MethodGet, "/api/logs/0/qr.png", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	_, err = png.Decode(bytes.NewReader(rec.Body.Bytes()))
	assert.NoError(t, err)

	rec = doRequest(t, h, http.MethodGet, "/api/logs/9/qr.png", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_SetAuthKey(t *testing.T) {
	gw := newTestGateway(t, nil)
	h := gw.Handler()
	body := `{"new_key":"rotated"}`

	rec := doRequest(t, h, http.MethodPut, "/api/admin/auth-key", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, h, http.MethodPut, "/api/admin/auth-key", body, http.Header{"Authorization": {"Bearer garbage"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, h, http.MethodPut, "/api/admin/auth-key", body, adminHeader(t, gw, "reader", ""))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(t, h, http.MethodPut, "/api/admin/auth-key", `{"key":"x"}`, adminHeader(t, gw, "ops", auth.RoleAdmin))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, h, http.MethodPut, "/api/admin/auth-key", body, adminHeader(t, gw, "ops", auth.RoleAdmin))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, err := gw.Store().Append(t.Context(), testAuthKey, "INFO", "x")
	assert.ErrorIs(t, err, logstore.ErrUnauthorized)
	_, err = gw.Store().Append(t.Context(), "rotated", "INFO", "x")
	assert.NoError(t, err)
}

func TestAPI_SetAuthKeyDisabledWithoutSecret(t *testing.T) {
	gw := newTestGateway(t, func(c *config.Config) { c.Auth.JWTSecret = "" })

	rec := doRequest(t, gw.Handler(), http.MethodPut, "/api/admin/auth-key", `{"new_key":"x"}`,
		http.Header{"Authorization": {"Bearer anything"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	_, err := gw.Store().Append(t.Context(), testAuthKey, "INFO", "still works")
	assert.NoError(t, err)
}

func TestAPI_Info(t *testing.T) {
	gw := newTestGateway(t, nil)

	rec := doRequest(t, gw.Handler(), http.MethodGet, "/api/info", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	info := decodeBody[InfoResponse](t, rec)
	assert.Equal(t, gw.serverID, info.ServerID)
	assert.True(t, info.WritesEnabled)
	assert.True(t, info.AdminEnabled)
	assert.False(t, info.Persistent)
	assert.Equal(t, "http://logs.test", info.LinkBase)
}

func TestPages(t *testing.T) {
	gw := newTestGateway(t, nil)
	_, err := gw.Store().Append(t.Context(), testAuthKey, "ERROR", "disk **full**")
	require.NoError(t, err)
	h := gw.Handler()

	rec := doRequest(t, h, http.MethodGet, "/?entry=0", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "<strong>full</strong>")
	assert.Contains(t, rec.Body.String(), "http://logs.test/?entry=0")
	assert.Contains(t, rec.Body.String(), "/api/logs/0/qr.png")

	rec = doRequest(t, h, http.MethodGet, "/?entry=7", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/?entry=nope", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `<a href="/?entry=0">0</a>`)

	rec = doRequest(t, h, http.MethodGet, "/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTPStatusFor(t *testing.T) {
	tests := []struct {
		code codes.Code
		want int
	}{
		{codes.OK, http.StatusOK},
		{codes.PermissionDenied, http.StatusUnauthorized},
		{codes.Unauthenticated, http.StatusUnauthorized},
		{codes.ResourceExhausted, http.StatusInsufficientStorage},
		{codes.InvalidArgument, http.StatusBadRequest},
		{codes.DeadlineExceeded, http.StatusRequestTimeout},
		{codes.Unavailable, http.StatusServiceUnavailable},
		{codes.Internal, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, httpStatusFor(tt.code), tt.code.String())
	}
}

func TestParseTailParams(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/logs/ws?level=ERROR,%20WARN&level=INFO&from=4", nil)
	p, err := parseTailParams(r)
	require.NoError(t, err)
	assert.Equal(t, []string{"ERROR", "WARN", "INFO"}, p.levels)
	assert.True(t, p.backlog, "from implies backlog")
	assert.Equal(t, uint64(4), p.fromID)

	r = httptest.NewRequest(http.MethodGet, "/api/logs/ws?backlog=maybe", nil)
	_, err = parseTailParams(r)
	assert.Error(t, err)
}

func dialTail(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/logs/ws" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEntry(t *testing.T, conn *websocket.Conn) logstore.Entry {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var e logstore.Entry
	require.NoError(t, conn.ReadJSON(&e))
	return e
}

func TestTail_BacklogAndLive(t *testing.T) {
	gw := newTestGateway(t, nil)
	srv := httptest.NewServer(gw.Handler())
	defer srv.Close()

	_, err := gw.Store().Append(t.Context(), testAuthKey, "INFO", "before")
	require.NoError(t, err)

	conn := dialTail(t, srv, "?backlog=true")
	assert.Equal(t, "before", readEntry(t, conn).Message)

	_, err = gw.Store().Append(t.Context(), testAuthKey, "ERROR", "after")
	require.NoError(t, err)

	e := readEntry(t, conn)
	assert.Equal(t, uint64(1), e.ID)
	assert.Equal(t, "after", e.Message)
}

func TestTail_LevelFilter(t *testing.T) {
	gw := newTestGateway(t, nil)
	srv := httptest.NewServer(gw.Handler())
	defer srv.Close()

	conn := dialTail(t, srv, "?level=ERROR,WARN")
	require.Eventually(t, func() bool { return gw.feed.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	for _, level := range []string{"INFO", "WARN", "INFO", "ERROR"} {
		_, err := gw.Store().Append(t.Context(), testAuthKey, level, level)
		require.NoError(t, err)
	}

	assert.Equal(t, "WARN", readEntry(t, conn).Level)
	assert.Equal(t, "ERROR", readEntry(t, conn).Level)
}

func TestTail_FromID(t *testing.T) {
	gw := newTestGateway(t, nil)
	srv := httptest.NewServer(gw.Handler())
	defer srv.Close()

	for i := 0; i < 3; i++ {
		_, err := gw.Store().Append(t.Context(), testAuthKey, "INFO", "m")
		require.NoError(t, err)
	}

	conn := dialTail(t, srv, "?from=1")
	assert.Equal(t, uint64(1), readEntry(t, conn).ID)
	assert.Equal(t, uint64(2), readEntry(t, conn).ID)
}

func TestTail_InvalidParams(t *testing.T) {
	gw := newTestGateway(t, nil)

	rec := doRequest(t, gw.Handler(), http.MethodGet, "/api/logs/ws?from=x", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTail_ClosedOnShutdown(t *testing.T) {
	gw := newTestGateway(t, nil)
	srv := httptest.NewServer(gw.Handler())
	defer srv.Close()

	conn := dialTail(t, srv, "")
	require.Eventually(t, func() bool { return gw.feed.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	gw.feed.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}
