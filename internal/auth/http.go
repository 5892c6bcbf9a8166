// ABOUTME: HTTP middleware for admin JWT authentication on API endpoints
// ABOUTME: Extracts the bearer token from the Authorization header and checks the admin role

package auth

import (
	"log/slog"
	"net/http"
)

// RequireAdminHTTP creates an HTTP middleware that requires an admin bearer
// token. A nil verifier refuses every request with 403, matching the gRPC
// behavior when no jwt_secret is configured.
func RequireAdminHTTP(verifier TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil {
				writeAuthError(w, http.StatusForbidden, "admin operations disabled")
				return
			}

			token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				logHTTPFailure(logger, r, errMsg)
				writeAuthError(w, http.StatusUnauthorized, errMsg)
				return
			}

			authCtx, err := authenticate(verifier, token)
			if err != nil {
				logHTTPFailure(logger, r, "invalid token")
				writeAuthError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			if !authCtx.IsAdmin() {
				logHTTPFailure(logger, r, "admin role required")
				writeAuthError(w, http.StatusForbidden, "admin role required")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}

func logHTTPFailure(logger *slog.Logger, r *http.Request, reason string) {
	if logger == nil {
		return
	}
	logger.Warn("auth failure", "reason", reason, "remote_addr", r.RemoteAddr, "path", r.URL.Path)
}
