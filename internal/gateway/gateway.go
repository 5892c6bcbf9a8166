// ABOUTME: Gateway orchestrator that coordinates the gRPC and HTTP servers
// ABOUTME: Wires the log store, journal, feed, key watcher and notifier and manages their lifecycle

package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"
	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/auditlog-gateway/internal/auth"
	"github.com/2389/auditlog-gateway/internal/config"
	"github.com/2389/auditlog-gateway/internal/dedupe"
	"github.com/2389/auditlog-gateway/internal/feed"
	"github.com/2389/auditlog-gateway/internal/keywatch"
	"github.com/2389/auditlog-gateway/internal/logstore"
	"github.com/2389/auditlog-gateway/internal/notify"
	"github.com/2389/auditlog-gateway/internal/rpc"
	"github.com/2389/auditlog-gateway/internal/store"
)

// Tailnet ports used when tailscale is enabled.
const (
	tailnetGRPCPort = ":50061"
	tailnetHTTPPort = ":80"
	tailnetTLSPort  = ":443"
)

// Gateway orchestrates the auditlog-gateway server components.
type Gateway struct {
	config *config.Config
	logger *slog.Logger

	// logs is the authoritative in-memory log
	logs *logstore.Store

	// journal and audit are nil when database.path is empty
	journal store.Journal
	audit   store.AuditStore

	feed     *feed.Broadcaster
	requests *dedupe.Cache[uint64]
	service  *rpc.Service
	verifier auth.TokenVerifier // nil when no jwt_secret is configured

	grpcServer  *grpc.Server
	httpServer  *http.Server
	tsnetServer *tsnet.Server

	keyWatcher *keywatch.Watcher
	notifier   *notify.Notifier

	// linkBase is the external URL entry links point at. Tailscale startup
	// may replace it while handlers are serving.
	linkBase atomic.Pointer[string]

	// serverID identifies this gateway instance
	serverID  string
	startedAt time.Time

	bgCancel context.CancelFunc
	bg       sync.WaitGroup
	closeMu  sync.Once
}

// determineLinkBase resolves the deep link base URL from config or environment.
func determineLinkBase(cfg *config.Config) string {
	if cfg.Links.BaseURL != "" {
		return cfg.LinkBase()
	}
	if envURL := os.Getenv("AUDITLOG_GATEWAY_URL"); envURL != "" {
		return strings.TrimRight(envURL, "/")
	}
	return cfg.LinkBase()
}

// initJournal opens the SQLite journal named by config or environment.
// An empty path keeps the log in memory only.
func initJournal(cfg *config.Config) (*store.SQLiteStore, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("AUDITLOG_DB_PATH"); envPath != "" {
		dbPath = envPath
	}
	if dbPath == "" {
		return nil, nil
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing journal: %w", err)
	}
	return s, nil
}

// initVerifier returns an admin token verifier, or nil when admin operations
// are disabled. The nil is returned as an untyped interface so auth guards see it.
func initVerifier(cfg *config.Config, logger *slog.Logger) (auth.TokenVerifier, error) {
	if cfg.Auth.JWTSecret == "" {
		logger.Warn("admin operations disabled - no jwt_secret configured")
		return nil, nil
	}
	v, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("creating JWT verifier: %w", err)
	}
	return v, nil
}

// createGRPCServer creates the gRPC server with keepalive and the admin guard.
func createGRPCServer(verifier auth.TokenVerifier, logger *slog.Logger) *grpc.Server {
	return grpc.NewServer(
		grpc.ForceServerCodec(rpc.Codec{}),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    15 * time.Second,
			Timeout: 5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.ChainUnaryInterceptor(
			auth.RequireAdmin(verifier, logger.With("component", "auth"), rpc.AdminMethods...),
		),
	)
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	gw := &Gateway{
		config:    cfg,
		logger:    logger.With("component", "gateway"),
		serverID:  generateServerID(),
		startedAt: time.Now(),
	}
	gw.setLinkBase(determineLinkBase(cfg))

	sqlStore, err := initJournal(cfg)
	if err != nil {
		return nil, err
	}
	if sqlStore != nil {
		gw.journal = sqlStore
		gw.audit = sqlStore
	} else {
		gw.logger.Warn("database.path not set - entries are kept in memory only")
	}

	gw.verifier, err = initVerifier(cfg, gw.logger)
	if err != nil {
		gw.closeJournal()
		return nil, err
	}

	gw.feed = feed.NewBroadcaster(logger)
	gw.requests = dedupe.New[uint64](cfg.Dedupe.TTL, cfg.Dedupe.MaxEntries)

	opts := logstore.Options{
		AuthKey:   cfg.Auth.AuthKey,
		Publisher: gw.feed,
		Logger:    logger,
	}
	if gw.journal != nil {
		opts.Journal = gw.journal
	}
	gw.logs, err = logstore.Open(context.Background(), opts)
	if err != nil {
		gw.closeComponents()
		return nil, fmt.Errorf("opening log store: %w", err)
	}
	gw.logger.Info("log store ready", "entries", gw.logs.Count(), "writes_enabled", gw.logs.AuthKeyConfigured())

	gw.service = rpc.NewService(rpc.ServiceConfig{
		Store:    gw.logs,
		Requests: gw.requests,
		Feed:     gw.feed,
		Audit:    gw.audit,
		Logger:   logger,
	})

	if err := gw.initKeyWatcher(); err != nil {
		gw.closeComponents()
		return nil, err
	}
	if err := gw.initNotifier(); err != nil {
		gw.closeComponents()
		return nil, err
	}

	gw.grpcServer = createGRPCServer(gw.verifier, logger)
	rpc.RegisterLogServiceServer(gw.grpcServer, gw.service)

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// initKeyWatcher loads the auth key file, if configured, and prepares a
// watcher for later changes.
func (g *Gateway) initKeyWatcher() error {
	path := g.config.Auth.AuthKeyFile
	if path == "" {
		return nil
	}
	w, err := keywatch.New(keywatch.Config{
		Path:    path,
		Rotator: g.service,
		Logger:  g.logger,
	})
	if err != nil {
		return fmt.Errorf("creating key watcher: %w", err)
	}
	if err := w.Load(context.Background()); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading auth key file: %w", err)
		}
		g.logger.Warn("auth key file does not exist yet", "path", path)
	}
	g.keyWatcher = w
	return nil
}

// initNotifier creates the Matrix notifier when enabled.
func (g *Gateway) initNotifier() error {
	m := g.config.Notify.Matrix
	if !m.Enabled {
		return nil
	}
	client, err := notify.NewMatrixClient(m.Homeserver, m.UserID, m.AccessToken)
	if err != nil {
		return err
	}
	n, err := notify.New(notify.Config{
		Feed:     g.feed,
		Sender:   client,
		RoomID:   m.RoomID,
		Levels:   m.Levels,
		LinkBase: g.LinkBase,
		Logger:   g.logger,
	})
	if err != nil {
		return err
	}
	g.notifier = n
	return nil
}

// Store returns the log store served by this gateway.
func (g *Gateway) Store() *logstore.Store {
	return g.logs
}

// setupTCPListeners creates standard TCP listeners for gRPC and HTTP.
func (g *Gateway) setupTCPListeners() (grpcLn, httpLn net.Listener, err error) {
	g.logger.Info("starting gateway",
		"grpc_addr", g.config.Server.GRPCAddr,
		"http_addr", g.config.Server.HTTPAddr,
	)

	grpcLn, err = net.Listen("tcp", g.config.Server.GRPCAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("listening on gRPC address: %w", err)
	}

	httpLn, err = net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		_ = grpcLn.Close()
		return nil, nil, fmt.Errorf("listening on HTTP address: %w", err)
	}

	return grpcLn, httpLn, nil
}

// warnIgnoredAddresses logs a warning if server addresses are configured but Tailscale is enabled.
func (g *Gateway) warnIgnoredAddresses() {
	if g.config.Server.GRPCAddr != "" || g.config.Server.HTTPAddr != "" {
		g.logger.Warn("server.grpc_addr and server.http_addr are ignored when tailscale is enabled",
			"grpc_addr", g.config.Server.GRPCAddr,
			"http_addr", g.config.Server.HTTPAddr,
		)
	}
}

// setupListeners creates listeners based on configuration (Tailscale or TCP).
func (g *Gateway) setupListeners(ctx context.Context) (grpcLn, httpLn net.Listener, err error) {
	if g.config.Tailscale.Enabled {
		g.warnIgnoredAddresses()
		return g.setupTailscaleListeners(ctx)
	}
	return g.setupTCPListeners()
}

// startServers starts gRPC and HTTP servers in goroutines, returning error channel.
func (g *Gateway) startServers(grpcLn, httpLn net.Listener) chan error {
	errCh := make(chan error, 2)

	go func() {
		g.logger.Info("gRPC server listening", "addr", grpcLn.Addr().String())
		if err := g.grpcServer.Serve(grpcLn); err != nil {
			errCh <- fmt.Errorf("gRPC server: %w", err)
		}
	}()

	go func() {
		g.logger.Info("HTTP server listening", "addr", httpLn.Addr().String())
		if err := g.httpServer.Serve(httpLn); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// startBackground runs the key watcher and notifier until Shutdown.
func (g *Gateway) startBackground(ctx context.Context) {
	bgCtx, cancel := context.WithCancel(ctx)
	g.bgCancel = cancel

	if g.keyWatcher != nil {
		g.bg.Add(1)
		go func() {
			defer g.bg.Done()
			if err := g.keyWatcher.Run(bgCtx); err != nil {
				g.logger.Error("key watcher stopped", "error", err)
			}
		}()
	}
	if g.notifier != nil {
		g.bg.Add(1)
		go func() {
			defer g.bg.Done()
			if err := g.notifier.Run(bgCtx); err != nil {
				g.logger.Error("notifier stopped", "error", err)
			}
		}()
	}
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		g.drainErrors(errCh)
		return err
	}
}

// drainErrors drains any remaining errors from the channel.
func (g *Gateway) drainErrors(errCh chan error) {
	select {
	case additionalErr := <-errCh:
		g.logger.Error("additional server error", "error", additionalErr)
	default:
	}
}

// Run starts the gateway servers and blocks until the context is canceled.
// Returns nil on graceful shutdown (context canceled), or an error if a server fails.
func (g *Gateway) Run(ctx context.Context) error {
	grpcListener, httpListener, err := g.setupListeners(ctx)
	if err != nil {
		_ = g.closeComponents()
		return err
	}

	g.startBackground(ctx)
	errCh := g.startServers(grpcListener, httpListener)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// The Run context is already canceled at this point.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "auditlog", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable (get one at https://login.tailscale.com/admin/settings/keys)")
	}
	return authKey, nil
}

// setupTailscaleListeners creates a tsnet server and returns listeners for gRPC and HTTP.
func (g *Gateway) setupTailscaleListeners(ctx context.Context) (grpcLn, httpLn net.Listener, err error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, nil, fmt.Errorf("starting tailscale: %w", err)
	}

	g.logTailscaleStatus(tsCfg.Hostname, status)
	g.updateLinkBaseFromStatus(status)

	grpcLn, err = g.tsnetServer.Listen("tcp", tailnetGRPCPort)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, nil, fmt.Errorf("listening on tailscale gRPC port: %w", err)
	}

	httpLn, err = g.createTailscaleHTTPListener(tsCfg, grpcLn)
	if err != nil {
		return nil, nil, err
	}
	return grpcLn, httpLn, nil
}

// logTailscaleStatus logs info about the tailscale node status.
func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// updateLinkBaseFromStatus points deep links at the node's tailnet DNS name
// unless a base URL was configured explicitly.
func (g *Gateway) updateLinkBaseFromStatus(status *ipnstate.Status) {
	if g.config.Links.BaseURL != "" || os.Getenv("AUDITLOG_GATEWAY_URL") != "" {
		return
	}
	if status.Self == nil || status.Self.DNSName == "" {
		return
	}
	scheme := "http"
	if g.config.Tailscale.HTTPS || g.config.Tailscale.Funnel {
		scheme = "https"
	}
	newBase := scheme + "://" + strings.TrimSuffix(status.Self.DNSName, ".")
	if old := g.LinkBase(); newBase != old {
		g.logger.Info("updated link base to use Tailscale DNS name", "old", old, "new", newBase)
		g.setLinkBase(newBase)
	}
}

// LinkBase returns the external URL entry links currently point at.
func (g *Gateway) LinkBase() string {
	if p := g.linkBase.Load(); p != nil {
		return *p
	}
	return ""
}

func (g *Gateway) setLinkBase(base string) {
	g.linkBase.Store(&base)
}

// createTailscaleHTTPListener creates the appropriate HTTP listener based on config.
func (g *Gateway) createTailscaleHTTPListener(tsCfg config.TailscaleConfig, grpcLn net.Listener) (net.Listener, error) {
	switch {
	case tsCfg.Funnel:
		g.logger.Info("enabling tailscale funnel (public HTTPS) on :443")
		ln, err := g.tsnetServer.ListenFunnel("tcp", tailnetTLSPort)
		if err != nil {
			_ = grpcLn.Close()
			_ = g.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
		}
		return ln, nil
	case tsCfg.HTTPS:
		return g.createTailscaleTLSListener(grpcLn)
	default:
		ln, err := g.tsnetServer.Listen("tcp", tailnetHTTPPort)
		if err != nil {
			_ = grpcLn.Close()
			_ = g.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
		}
		return ln, nil
	}
}

// createTailscaleTLSListener creates a TLS listener using Tailscale's auto-provisioned certs.
func (g *Gateway) createTailscaleTLSListener(grpcLn net.Listener) (net.Listener, error) {
	g.logger.Info("enabling HTTPS with Tailscale certs on :443")
	ln, err := g.tsnetServer.Listen("tcp", tailnetTLSPort)
	if err != nil {
		_ = grpcLn.Close()
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale HTTPS port: %w", err)
	}
	lc, err := g.tsnetServer.LocalClient()
	if err != nil {
		_ = ln.Close()
		_ = grpcLn.Close()
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("getting tailscale local client: %w", err)
	}
	return tls.NewListener(ln, &tls.Config{
		GetCertificate: lc.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}), nil
}

// shutdownGRPCServer gracefully stops the gRPC server or force-stops on context cancel.
func (g *Gateway) shutdownGRPCServer(ctx context.Context) {
	stopped := make(chan struct{})
	go func() {
		g.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		g.grpcServer.Stop()
	}
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

func (g *Gateway) closeJournal() error {
	if g.journal == nil {
		return nil
	}
	return g.journal.Close()
}

// closeComponents stops background work and releases the feed, request cache
// and journal. Safe to call more than once.
func (g *Gateway) closeComponents() error {
	var err error
	g.closeMu.Do(func() {
		if g.bgCancel != nil {
			g.bgCancel()
		}
		g.bg.Wait()
		if g.requests != nil {
			g.requests.Close()
		}
		if g.feed != nil {
			g.feed.Close()
		}
		err = g.closeJournal()
	})
	return err
}

// Shutdown gracefully stops all gateway servers and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	// Closing the feed ends websocket tails and WatchLogs streams, which
	// GracefulStop would otherwise wait on.
	g.feed.Close()
	g.shutdownGRPCServer(ctx)

	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}
	errs = appendCloseError(errs, "journal close", g.closeComponents())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once writes are possible, i.e. an auth key is configured.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if !g.logs.AuthKeyConfigured() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("no auth key configured"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d entries)", g.logs.Count())
}

// generateServerID creates a unique identifier for this gateway instance.
func generateServerID() string {
	return "auditlog-gateway-" + uuid.NewString()[:8]
}
