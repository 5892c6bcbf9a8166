// ABOUTME: Bearer token extraction and verification shared by gRPC and HTTP guards
// ABOUTME: Logs authentication failures with the peer address for security monitoring

package auth

import (
	"context"
	"log/slog"
	"strings"

	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
)

// logAuthFailure logs an authentication failure with structured context.
func logAuthFailure(logger *slog.Logger, ctx context.Context, reason string, attrs ...any) {
	if logger == nil {
		return
	}
	baseAttrs := []any{"reason", reason}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		baseAttrs = append(baseAttrs, "peer_addr", p.Addr.String())
	}
	baseAttrs = append(baseAttrs, attrs...)
	logger.Warn("auth failure", baseAttrs...)
}

// extractBearerToken extracts a bearer token from an Authorization value.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// bearerFromMetadata reads the authorization entry of incoming gRPC metadata.
func bearerFromMetadata(ctx context.Context) (string, string) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", "missing metadata"
	}
	values := md.Get("authorization")
	if len(values) == 0 {
		return "", "missing authorization header"
	}
	return extractBearerToken(values[0])
}

// authenticate verifies token and returns the caller identity.
func authenticate(verifier TokenVerifier, token string) (*AuthContext, error) {
	claims, err := verifier.Verify(token)
	if err != nil {
		return nil, err
	}
	return &AuthContext{Subject: claims.Subject, Role: claims.Role}, nil
}
