// ABOUTME: LogService implementation backed by the in-memory log store
// ABOUTME: Maps store errors to gRPC status codes and records key rotations in the audit trail

package rpc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/2389/auditlog-gateway/internal/auth"
	"github.com/2389/auditlog-gateway/internal/dedupe"
	"github.com/2389/auditlog-gateway/internal/feed"
	"github.com/2389/auditlog-gateway/internal/logstore"
	"github.com/2389/auditlog-gateway/internal/store"
)

// Service implements LogServiceServer.
type Service struct {
	store    *logstore.Store
	requests *dedupe.Cache[uint64] // optional
	feed     *feed.Broadcaster     // optional, required for WatchLogs
	audit    store.AuditStore      // optional
	logger   *slog.Logger
}

var _ LogServiceServer = (*Service)(nil)

// ServiceConfig wires a Service.
type ServiceConfig struct {
	Store    *logstore.Store
	Requests *dedupe.Cache[uint64]
	Feed     *feed.Broadcaster
	Audit    store.AuditStore
	Logger   *slog.Logger
}

// NewService creates the LogService implementation.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    cfg.Store,
		requests: cfg.Requests,
		feed:     cfg.Feed,
		audit:    cfg.Audit,
		logger:   logger.With("component", "rpc"),
	}
}

// Log appends an entry. A request carrying a request_id that already
// succeeded with the same level and message returns the id issued the first
// time. Reusing a request_id for a different payload appends a new entry.
func (s *Service) Log(ctx context.Context, req *LogRequest) (*LogResponse, error) {
	id, replayed, err := s.append(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}
	if replayed {
		s.logger.Debug("replayed append", "request_id", req.RequestID, "id", id)
	}
	return &LogResponse{ID: id}, nil
}

func (s *Service) append(ctx context.Context, req *LogRequest) (uint64, bool, error) {
	if req.RequestID == "" || s.requests == nil {
		id, err := s.store.Append(ctx, req.AuthKey, req.Level, req.Message)
		return id, false, err
	}

	// A replay still needs a key that is valid now.
	if err := s.store.Authorize(req.AuthKey); err != nil {
		return 0, false, err
	}
	return s.requests.Do(requestKey(req), func() (uint64, error) {
		return s.store.Append(ctx, req.AuthKey, req.Level, req.Message)
	})
}

// requestKey scopes a request id to the payload it was first sent with.
func requestKey(req *LogRequest) string {
	h := sha256.New()
	h.Write([]byte(req.Level))
	h.Write([]byte{0})
	h.Write([]byte(req.Message))
	return req.RequestID + "/" + hex.EncodeToString(h.Sum(nil))
}

// GetLog returns the entry with the requested id, or an empty response.
func (s *Service) GetLog(_ context.Context, req *GetLogRequest) (*GetLogResponse, error) {
	e, ok := s.store.Get(req.ID)
	if !ok {
		return &GetLogResponse{}, nil
	}
	return &GetLogResponse{Entry: EntryToWire(e)}, nil
}

// GetLogs returns every entry in ascending id order.
func (s *Service) GetLogs(_ context.Context, _ *emptypb.Empty) (*GetLogsResponse, error) {
	entries := s.store.List()
	resp := &GetLogsResponse{Entries: make([]*LogEntry, len(entries))}
	for i, e := range entries {
		resp.Entries[i] = EntryToWire(e)
	}
	return resp, nil
}

// GetLogCount returns the number of committed entries.
func (s *Service) GetLogCount(_ context.Context, _ *emptypb.Empty) (*GetLogCountResponse, error) {
	return &GetLogCountResponse{Count: s.store.Count()}, nil
}

// SetAuthKey replaces the write key. Admin authorization is enforced by the
// auth.RequireAdmin interceptor before this runs.
func (s *Service) SetAuthKey(ctx context.Context, req *SetAuthKeyRequest) (*emptypb.Empty, error) {
	s.RotateAuthKey(ctx, auth.Actor(ctx, "unknown"), req.NewKey)
	return &emptypb.Empty{}, nil
}

// RotateAuthKey replaces the write key on behalf of actor and records the
// rotation in the audit trail. Audit failures are logged and never undo the
// rotation.
func (s *Service) RotateAuthKey(ctx context.Context, actor, newKey string) {
	s.store.SetAuthKey(newKey)

	if s.audit == nil {
		return
	}
	err := s.audit.AppendAuditLog(ctx, &store.AuditEntry{
		Actor:  actor,
		Action: store.AuditRotateAuthKey,
		Detail: map[string]any{"writes_enabled": newKey != ""},
	})
	if err != nil {
		s.logger.Error("recording key rotation", "error", err, "actor", actor)
	}
}

// WatchLogs streams committed entries until the client goes away.
func (s *Service) WatchLogs(req *WatchLogsRequest, stream LogService_WatchLogsServer) error {
	if s.feed == nil {
		return status.Error(codes.Unimplemented, "live feed not enabled")
	}
	ctx := stream.Context()

	// Subscribe before reading the backlog so nothing committed in between is missed.
	ch, subID := s.feed.Subscribe(ctx, req.Levels...)
	defer s.feed.Unsubscribe(subID)

	wanted := levelFilter(req.Levels)
	var next uint64
	if req.Backlog {
		backlog := s.store.Since(req.FromID)
		for _, e := range backlog {
			if !wanted(e.Level) {
				continue
			}
			if err := stream.Send(EntryToWire(e)); err != nil {
				return err
			}
		}
		// Live entries below next were already covered by the backlog.
		next = req.FromID + uint64(len(backlog))
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			if e.ID < next {
				continue
			}
			if err := stream.Send(EntryToWire(e)); err != nil {
				return err
			}
		}
	}
}

func levelFilter(levels []string) func(string) bool {
	if len(levels) == 0 {
		return func(string) bool { return true }
	}
	set := make(map[string]bool, len(levels))
	for _, l := range levels {
		set[l] = true
	}
	return func(l string) bool { return set[l] }
}

// toStatus maps store errors onto gRPC status codes.
func toStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, logstore.ErrAuthKeyUnset):
		return status.Error(codes.PermissionDenied, "writes disabled: no auth key configured")
	case errors.Is(err, logstore.ErrUnauthorized):
		return status.Error(codes.PermissionDenied, "unauthorized")
	case errors.Is(err, logstore.ErrIDSpaceExhausted):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Errorf(codes.Unavailable, "append failed: %v", err)
	}
}
