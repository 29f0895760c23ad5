// Package app wires the goban server runtime: configuration, logging, the
// Postgres pool and migrator, the auth endpoints, and the realtime gateway.
//
// The package owns process concerns only. Game rules live in rooms, session
// logic in auth/session, socket handling in realtime.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/jackc/pgx/v5/pgxpool"

	"goban/cmd/identity"
	"goban/cmd/internal/auth/api"
	"goban/cmd/internal/auth/session"
	"goban/cmd/internal/realtime"
	"goban/cmd/internal/rooms"
	"goban/cmd/security/password"
)

// App is the wired server runtime.
type App struct {
	cfg Config
	log Logger

	pool *pgxpool.Pool
	ws   *realtime.WSGateway
	auth *api.Handler
}

// New connects the database, applies the schema, and wires every subsystem.
// The returned App owns the pool and closes it when Run finishes.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("db pool: %w", err)
	}
	wired := false
	defer func() {
		if !wired {
			pool.Close()
		}
	}()

	if err := Migrate(ctx, pool); err != nil {
		return nil, err
	}
	log.Info("db.ready", "max_conns", cfg.DBMaxConns)

	users, err := identity.NewPostgresStore(pool)
	if err != nil {
		return nil, fmt.Errorf("identity store: %w", err)
	}

	sessCfg := session.DefaultConfig()
	sessCfg.JWTSecret = []byte(cfg.JWTSecret)
	sessCfg.AccessTokenTTL = cfg.AccessTokenTTL
	sessCfg.RefreshTokenTTL = cfg.RefreshTokenTTL
	sessCfg.RotateThreshold = cfg.RefreshRotateThreshold

	tokens, err := session.NewHS256Manager(sessCfg)
	if err != nil {
		return nil, fmt.Errorf("token manager: %w", err)
	}

	sessions, err := session.NewService(sessCfg, users, session.NewPostgresStore(pool), tokens, password.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("session service: %w", err)
	}

	hub := realtime.NewHub(log)

	ws, err := realtime.NewWSGateway(log, hub, rooms.NewService(log), sessions, realtime.Limits{
		MaxFrameBytes:     cfg.WSMaxFrameBytes,
		HeartbeatInterval: cfg.WSHeartbeatInterval,
		HeartbeatTimeout:  cfg.WSHeartbeatTimeout,
		ReadIdleTimeout:   cfg.WSReadIdleTimeout,
		AllowedOrigins:    cfg.WSAllowedOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("ws gateway: %w", err)
	}

	// The hub doubles as the login kicker: a fresh login displaces the
	// previous session's socket.
	authHandler, err := api.NewHandler(log, api.Config{
		TrustProxy: cfg.TrustProxy,
		RateLimit:  cfg.AuthRateLimit,
		RateWindow: cfg.AuthRateWindow,
	}, sessions, hub)
	if err != nil {
		return nil, fmt.Errorf("auth handler: %w", err)
	}

	wired = true
	return &App{
		cfg:  cfg,
		log:  log,
		pool: pool,
		ws:   ws,
		auth: authHandler,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or a
// fatal server error. On cancellation it drains HTTP within ShutdownTimeout,
// closes live sockets with a going-away status, then closes the pool.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.pool, a.ws, a.auth)

	handler := WithRequestLogging(WithSecurityHeaders(WithCORS(mux)), a.log)

	srv := &http.Server{
		Addr:    a.cfg.BindAddr,
		Handler: handler,
		// No Read/WriteTimeout: /ws connections are long-lived. Hijacked
		// sockets escape these anyway, but the header read stays bounded.
		ReadHeaderTimeout: 5 * time.Second,
	}

	baseURL := runtimeBaseURL(a.cfg.BindAddr)
	a.log.Info("server.start",
		"addr", a.cfg.BindAddr,
		"url", baseURL,
		"ws", wsBaseURL(baseURL)+"/ws",
		"env", a.cfg.AppEnv,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "signal")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		a.pool.Close()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
	}

	// Shutdown does not wait for hijacked WebSocket connections; tell every
	// live client to go away, and give the writers a beat to flush.
	a.ws.Hub().CloseAll(websocket.StatusGoingAway, "server shutting down")
	time.Sleep(time.Second)

	a.pool.Close()
	a.log.Info("server.stopped")
	return nil
}

// runtimeBaseURL renders the HTTP base URL implied by a bind address,
// substituting loopback when the server binds all interfaces.
func runtimeBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return "http://" + host + ":" + port
}

// wsBaseURL converts an HTTP base URL into its WebSocket counterpart.
func wsBaseURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return "ws://" + base
	}
}
