// Package gateway orchestrates the auditlog-gateway server components.
//
// # Overview
//
// The gateway owns the log store and everything around it: the SQLite
// journal it replays at start, the live feed, the request id cache for
// retried appends, the gRPC LogService, the HTTP API and pages, the auth key
// file watcher and the Matrix notifier.
//
// # Listeners
//
// By default gRPC and HTTP listen on server.grpc_addr and server.http_addr.
// With tailscale.enabled the gateway joins the tailnet through tsnet and
// listens on :50061 (gRPC) and :80, or :443 with tailscale.https or
// tailscale.funnel.
//
// # HTTP API
//
//	POST /api/logs              append {auth_key, level, message, request_id?} -> 201 {id, link}
//	GET  /api/logs              list, ascending id; ?sort=id|date|level&dir=asc|desc
//	GET  /api/logs/{id}         one entry, 404 when absent
//	GET  /api/logs/count        {count}
//	GET  /api/logs/{id}/qr.png  QR code of the entry deep link
//	GET  /api/logs/ws           websocket tail; ?level=ERROR&backlog=true&from=<id>
//	GET  /api/info              instance status
//	PUT  /api/admin/auth-key    {new_key}; admin bearer token required
//	GET  /?entry=<id>           entry detail page
//	GET  /health, /health/ready liveness, readiness (ready once an auth key is set)
//
// Wrong or missing auth keys on append answer 401. Admin routes answer 401
// for missing or invalid tokens and 403 for non-admin tokens or when no
// jwt_secret is configured.
//
// # Shutdown
//
// Run blocks until its context is cancelled, then shuts down with a five
// second budget: HTTP first, then the feed (ending tails and watch streams),
// then gRPC, background workers and the journal.
package gateway
