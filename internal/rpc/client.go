// ABOUTME: Typed gRPC client for LogService with retry on transient failures
// ABOUTME: Reads and request-id appends are retried via fortify, plain appends are not

package rpc

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/2389/auditlog-gateway/internal/logstore"
)

// Client is a typed client for auditlog.v1.LogService.
type Client struct {
	conn     grpc.ClientConnInterface
	closer   io.Closer
	token    string
	retryCfg retry.Config
}

// Option configures a Client.
type Option func(*Client)

// WithToken attaches an admin bearer token to privileged calls.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithRetry overrides the retry policy used for idempotent calls.
func WithRetry(maxAttempts int, initialDelay time.Duration) Option {
	return func(c *Client) {
		c.retryCfg.MaxAttempts = maxAttempts
		c.retryCfg.InitialDelay = initialDelay
	}
}

// New wraps an existing connection. The caller keeps ownership of conn.
func New(conn grpc.ClientConnInterface, opts ...Option) *Client {
	c := &Client{
		conn: conn,
		retryCfg: retry.Config{
			MaxAttempts:   3,
			InitialDelay:  100 * time.Millisecond,
			BackoffPolicy: retry.BackoffExponential,
			IsRetryable:   isTransient,
		},
	}
	for _, fn := range opts {
		fn(c)
	}
	return c
}

// Dial connects to a gateway at target using plaintext transport.
func Dial(target string, opts ...Option) (*Client, error) {
	conn, err := grpc.NewClient(target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", target, err)
	}
	c := New(conn, opts...)
	c.closer = conn
	return c, nil
}

// Close releases the connection if the client created it.
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	return c.conn.Invoke(ctx, method, in, out, grpc.ForceCodec(Codec{}))
}

// isTransient reports whether a call may succeed if retried.
func isTransient(err error) bool {
	return status.Code(err) == codes.Unavailable
}

// withRetry runs fn under the retry policy.
func withRetry[T any](ctx context.Context, cfg retry.Config, fn func(context.Context) (T, error)) (T, error) {
	return retry.New[T](cfg).Do(ctx, fn)
}

// fromStatus maps write rejections back onto the store's sentinels.
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.PermissionDenied:
		return fmt.Errorf("%w: %s", logstore.ErrUnauthorized, st.Message())
	case codes.ResourceExhausted:
		return fmt.Errorf("%w: %s", logstore.ErrIDSpaceExhausted, st.Message())
	}
	return err
}

// Log appends an entry and returns its id. It is not retried, since a lost
// response could otherwise commit the entry twice.
func (c *Client) Log(ctx context.Context, authKey, level, message string) (uint64, error) {
	out := new(LogResponse)
	err := c.invoke(ctx, MethodLog, &LogRequest{AuthKey: authKey, Level: level, Message: message}, out)
	if err != nil {
		return 0, fromStatus(err)
	}
	return out.ID, nil
}

// LogWithRequestID appends an entry tagged with a client request id. Retries
// of the same request id return the id issued the first time, so the call is
// retried on transient failures.
func (c *Client) LogWithRequestID(ctx context.Context, requestID, authKey, level, message string) (uint64, error) {
	req := &LogRequest{AuthKey: authKey, Level: level, Message: message, RequestID: requestID}
	id, err := withRetry(ctx, c.retryCfg, func(ctx context.Context) (uint64, error) {
		out := new(LogResponse)
		if err := c.invoke(ctx, MethodLog, req, out); err != nil {
			return 0, err
		}
		return out.ID, nil
	})
	if err != nil {
		return 0, fromStatus(err)
	}
	return id, nil
}

// GetLog fetches one entry. The bool is false when no entry has that id.
func (c *Client) GetLog(ctx context.Context, id uint64) (logstore.Entry, bool, error) {
	out, err := withRetry(ctx, c.retryCfg, func(ctx context.Context) (*GetLogResponse, error) {
		out := new(GetLogResponse)
		return out, c.invoke(ctx, MethodGetLog, &GetLogRequest{ID: id}, out)
	})
	if err != nil {
		return logstore.Entry{}, false, err
	}
	if out.Entry == nil {
		return logstore.Entry{}, false, nil
	}
	return out.Entry.Entry(), true, nil
}

// GetLogs fetches every entry in ascending id order.
func (c *Client) GetLogs(ctx context.Context) ([]logstore.Entry, error) {
	out, err := withRetry(ctx, c.retryCfg, func(ctx context.Context) (*GetLogsResponse, error) {
		out := new(GetLogsResponse)
		return out, c.invoke(ctx, MethodGetLogs, &emptypb.Empty{}, out)
	})
	if err != nil {
		return nil, err
	}
	entries := make([]logstore.Entry, len(out.Entries))
	for i, e := range out.Entries {
		entries[i] = e.Entry()
	}
	return entries, nil
}

// GetLogCount returns the number of committed entries.
func (c *Client) GetLogCount(ctx context.Context) (uint64, error) {
	out, err := withRetry(ctx, c.retryCfg, func(ctx context.Context) (*GetLogCountResponse, error) {
		out := new(GetLogCountResponse)
		return out, c.invoke(ctx, MethodGetLogCount, &emptypb.Empty{}, out)
	})
	if err != nil {
		return 0, err
	}
	return out.Count, nil
}

// SetAuthKey replaces the write key. Requires a client built WithToken
// holding an admin token.
func (c *Client) SetAuthKey(ctx context.Context, newKey string) error {
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
	}
	_, err := withRetry(ctx, c.retryCfg, func(ctx context.Context) (*emptypb.Empty, error) {
		out := new(emptypb.Empty)
		return out, c.invoke(ctx, MethodSetAuthKey, &SetAuthKeyRequest{NewKey: newKey}, out)
	})
	return err
}

// Watch streams committed entries to fn until ctx is cancelled, the server
// ends the stream, or fn returns an error.
func (c *Client) Watch(ctx context.Context, req *WatchLogsRequest, fn func(logstore.Entry) error) error {
	stream, err := c.conn.NewStream(ctx, &LogService_ServiceDesc.Streams[0], MethodWatchLogs, grpc.ForceCodec(Codec{}))
	if err != nil {
		return fmt.Errorf("opening watch stream: %w", err)
	}
	if err := stream.SendMsg(req); err != nil {
		return fmt.Errorf("sending watch request: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return fmt.Errorf("closing send side: %w", err)
	}

	for {
		m := new(LogEntry)
		if err := stream.RecvMsg(m); err != nil {
			if err == io.EOF || status.Code(err) == codes.Canceled {
				return nil
			}
			return err
		}
		if err := fn(m.Entry()); err != nil {
			return err
		}
	}
}
