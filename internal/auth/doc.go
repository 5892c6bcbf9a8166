// Package auth guards the administrative surface of auditlog-gateway.
//
// # Two Kinds of Secret
//
// Appending to the log is authorized by the shared write key, which the log
// store checks itself. Administrative operations, such as replacing that key,
// are authorized separately with HS256 JWTs signed by the configured
// jwt_secret and carrying the claim "role": "admin".
//
// When no jwt_secret is configured the administrative operations are refused
// on every transport; the key can still be rotated through the key file.
//
// # gRPC
//
//	grpc.ChainUnaryInterceptor(
//	    auth.RequireAdmin(verifier, logger, "/auditlog.v1.LogService/SetAuthKey"),
//	)
//
// # HTTP
//
//	mux.Handle("PUT /api/admin/auth-key", auth.RequireAdminHTTP(verifier, logger)(h))
//
// # Token Management
//
//	verifier, err := auth.NewJWTVerifier(secret)
//	token, err := verifier.Generate("ops", auth.RoleAdmin, 24*time.Hour)
package auth
