// ABOUTME: Admin gate interceptor restricting privileged RPCs to admin tokens
// ABOUTME: Non-privileged methods pass through so the log API keeps its own key check

package auth

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// RequireAdmin returns a gRPC unary interceptor that demands an admin bearer
// token for the listed full method names. Every other method passes through
// unchanged. A nil verifier means no jwt_secret is configured, and the listed
// methods are refused outright.
func RequireAdmin(verifier TokenVerifier, logger *slog.Logger, methods ...string) grpc.UnaryServerInterceptor {
	guarded := make(map[string]bool, len(methods))
	for _, m := range methods {
		guarded[m] = true
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !guarded[info.FullMethod] {
			return handler(ctx, req)
		}

		if verifier == nil {
			logAuthFailure(logger, ctx, "admin operations disabled", "method", info.FullMethod)
			return nil, status.Error(codes.PermissionDenied, "admin operations disabled: no jwt_secret configured")
		}

		token, errMsg := bearerFromMetadata(ctx)
		if errMsg != "" {
			logAuthFailure(logger, ctx, errMsg, "method", info.FullMethod)
			return nil, status.Error(codes.Unauthenticated, errMsg)
		}

		authCtx, err := authenticate(verifier, token)
		if err != nil {
			logAuthFailure(logger, ctx, "invalid token", "method", info.FullMethod, "error", err)
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}

		if !authCtx.IsAdmin() {
			logAuthFailure(logger, ctx, "admin role required", "method", info.FullMethod, "subject", authCtx.Subject)
			return nil, status.Error(codes.PermissionDenied, "admin role required")
		}

		return handler(WithAuth(ctx, authCtx), req)
	}
}
