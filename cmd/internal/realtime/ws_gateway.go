// Package realtime is the WebSocket layer: per-connection sessions, the
// per-username hub, and the dispatch from inbound envelopes to the rooms
// service. The rooms service owns all game state; this package owns sockets
// and delivery order.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"goban/cmd/internal/auth/session"
	"goban/cmd/internal/metrics"
	"goban/cmd/internal/rooms"
	v1 "goban/shared/contracts/realtime/v1"
)

// AccessVerifier gates the upgrade. The auth session service implements it;
// tests substitute a stub.
type AccessVerifier interface {
	VerifyAccess(token string, now time.Time) (session.AccessClaims, error)
}

// WSGateway is the WebSocket entrypoint.
//
// It authenticates the upgrade, registers the connection with the Hub
// (displacing any previous socket for the same username), runs the
// per-connection read/write/heartbeat goroutines, and dispatches envelopes
// to the rooms service. Per frame, the response and all broadcast events
// are enqueued before the next frame is read.
type WSGateway struct {
	log      *slog.Logger
	hub      *Hub
	rooms    *rooms.Service
	verifier AccessVerifier

	limits Limits

	// Derived for websocket.Accept origin checks. Accept authorizes
	// same-host origins by default; cross-origin requires OriginPatterns.
	originPatterns []string
	anyOrigin      bool
}

// NewWSGateway constructs a gateway. hub and roomSvc fall back to fresh
// in-memory instances when nil; verifier must be non-nil.
func NewWSGateway(log *slog.Logger, hub *Hub, roomSvc *rooms.Service, verifier AccessVerifier, limits Limits) (*WSGateway, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if hub == nil {
		hub = NewHub(log)
	}
	if roomSvc == nil {
		roomSvc = rooms.NewService(log)
	}
	if verifier == nil {
		return nil, errors.New("realtime: nil access verifier")
	}

	g := &WSGateway{
		log:      log,
		hub:      hub,
		rooms:    roomSvc,
		verifier: verifier,
		limits:   limits.normalized(),
	}
	g.anyOrigin = g.limits.allowAnyOrigin()
	if !g.anyOrigin {
		g.originPatterns = deriveOriginPatterns(g.limits.AllowedOrigins)
	}
	return g, nil
}

// Hub exposes the registry, e.g. for the login handler's kick.
func (g *WSGateway) Hub() *Hub {
	return g.hub
}

// ServeHTTP adapter so the gateway can be mounted as an http.Handler.
func (g *WSGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS upgrades an HTTP request to a WebSocket session and runs the
// realtime loop until the peer disconnects or is displaced.
func (g *WSGateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	username, err := g.authenticate(r)
	if err != nil {
		g.log.Info("ws.reject.auth", "err", err, "remote", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	opts := &websocket.AcceptOptions{}
	if g.anyOrigin {
		opts.InsecureSkipVerify = true
	} else {
		opts.OriginPatterns = g.originPatterns
	}

	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err, "username", username)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	conn.SetReadLimit(g.limits.MaxFrameBytes)

	metrics.WSConnectionsAccepted.Inc()
	metrics.WSConnectionsActive.Inc()
	defer metrics.WSConnectionsActive.Dec()

	connID := newConnID(time.Now().UTC())
	client := NewClient(username, connID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// shutdown owns the exit path and is idempotent. Leaving the room and
	// broadcasting the fallout to remaining participants runs on every exit,
	// including a displacement kick.
	var closeOnce sync.Once
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.leaveAndNotify(username)
			g.hub.Unregister(username, client)
			client.Close()
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	g.hub.Register(username, client)
	g.log.Info("ws.open", "username", username, "conn_id", connID)

	// A member rejoining after a kick or a dropped connection resumes from
	// the current snapshot.
	if roomID, ok := g.rooms.RoomIDForUser(username); ok {
		if snap, found := g.rooms.Snapshot(roomID); found {
			client.SendEnvelope(v1.Event(v1.TypeRoomSnapshot, snap))
		}
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-client.Wake():
			}

			for _, fr := range client.Drain() {
				if fr.close {
					shutdown(fr.code, fr.reason)
					return
				}
				if err := g.writeFrame(ctx, conn, fr.data); err != nil {
					g.log.Info("ws.write.fail", "username", username, "conn_id", connID,
						"close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
				metrics.WSFramesWritten.Inc()
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.limits.HeartbeatInterval)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.limits.HeartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					g.log.Info("ws.ping.fail", "username", username, "conn_id", connID,
						"failures", failures, "err", err)
					if failures >= maxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

readLoop:
	for {
		readCtx := ctx
		var readCancel context.CancelFunc
		if g.limits.ReadIdleTimeout > 0 {
			readCtx, readCancel = context.WithTimeout(ctx, g.limits.ReadIdleTimeout)
		}
		mt, data, err := conn.Read(readCtx)
		if readCancel != nil {
			readCancel()
		}

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
			default:
				g.log.Info("ws.read.fail", "username", username, "conn_id", connID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
			}
			break readLoop
		}
		if mt != websocket.MessageText {
			continue readLoop
		}
		metrics.WSFramesRead.Inc()

		// Application-level liveness probe, outside the envelope codec.
		if string(data) == "ping" {
			client.SendText("pong")
			continue readLoop
		}

		var env v1.Inbound
		if err := json.Unmarshal(data, &env); err != nil {
			// Type mismatches still fill the fields that did decode, so a
			// reqId may survive; syntax errors leave nothing to answer.
			if env.ReqID != "" {
				g.reply(client, v1.RespErr(env, v1.CodeBadRequest, "invalid envelope"))
			}
			continue readLoop
		}
		if env.V != v1.Version {
			if env.ReqID != "" {
				g.reply(client, v1.RespErr(env, v1.CodeBadRequest, "unsupported protocol version"))
			}
			continue readLoop
		}

		g.dispatch(client, env)
	}

	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
	g.log.Info("ws.close", "username", username, "conn_id", connID)
}

// authenticate extracts the access token from the query string or the
// Authorization header and verifies it.
func (g *WSGateway) authenticate(r *http.Request) (string, error) {
	token := strings.TrimSpace(r.URL.Query().Get("accessToken"))
	if token == "" {
		token = wsBearerToken(r)
	}
	if token == "" {
		return "", errors.New("missing access token")
	}
	claims, err := g.verifier.VerifyAccess(token, time.Now().UTC())
	if err != nil {
		return "", err
	}
	return claims.Username, nil
}

func wsBearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func (g *WSGateway) writeFrame(parent context.Context, conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(parent, g.limits.WriteTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}
	return readErrUnknown
}

// ---- origin patterns ----

// deriveOriginPatterns maps the configured origin allowlist to the host
// patterns websocket.Accept matches against. Only hosts extracted from the
// allowlist are accepted.
func deriveOriginPatterns(allowed []string) []string {
	seen := make(map[string]struct{}, len(allowed))

	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" || h == "*" {
			continue
		}
		seen[h] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	slices.Sort(out)
	return out
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	// URL form.
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		h := strings.TrimSpace(u.Host)
		if h == "" {
			return ""
		}
		if host, _, err := net.SplitHostPort(h); err == nil {
			return strings.ToLower(host)
		}
		return strings.ToLower(h)
	}

	// host[:port] form.
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}
