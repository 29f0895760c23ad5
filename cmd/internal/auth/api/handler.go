// Package api exposes the HTTP auth endpoints: register, login, refresh,
// me and logout under /api/v1/auth. The handlers translate service errors
// to the stable wire codes shared with the WebSocket surface.
package api

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"goban/cmd/identity"
	"goban/cmd/internal/auth/session"
	"goban/cmd/internal/metrics"
	"goban/cmd/security/password"
	v1 "goban/shared/contracts/realtime/v1"
)

// Kicker evicts a user's live socket. The hub implements it; login uses it
// to enforce the single-session policy after credentials check out.
type Kicker interface {
	Kick(username string)
}

// Handler wires the HTTP auth endpoints to the session service.
type Handler struct {
	log      *slog.Logger
	cfg      Config
	sessions *session.Service
	hub      Kicker
	limiter  *ipRateLimiter

	now func() time.Time
}

// NewHandler constructs an auth Handler. hub may be nil (no kick on login).
func NewHandler(log *slog.Logger, cfg Config, sessions *session.Service, hub Kicker) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if sessions == nil {
		return nil, errors.New("auth: nil session service")
	}
	cfg = cfg.normalized()

	return &Handler{
		log:      log,
		cfg:      cfg,
		sessions: sessions,
		hub:      hub,
		limiter:  newIPRateLimiter(cfg.RateLimit, cfg.RateWindow),
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Register wires the auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/api/v1/auth/register", h.instrument("register", h.handleRegister))
	mux.HandleFunc("/api/v1/auth/login", h.instrument("login", h.handleLogin))
	mux.HandleFunc("/api/v1/auth/refresh", h.instrument("refresh", h.handleRefresh))
	mux.HandleFunc("/api/v1/auth/me", h.instrument("me", h.handleMe))
	mux.HandleFunc("/api/v1/auth/logout", h.instrument("logout", h.handleLogout))
}

// instrument applies the per-IP rate limit and records the request metric.
func (h *Handler) instrument(op string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := ""
		if ip := clientIP(r, h.cfg.TrustProxy); ip != nil {
			key = ip.String()
		}
		if ok, retryAfter := h.limiter.Allow(key, h.now()); !ok {
			h.log.Warn("auth.rate_limited", "op", op, "ip", key)
			writeRateLimited(w, v1.CodeRateLimited, retryAfter)
			metrics.AuthRequests.WithLabelValues(op, strconv.Itoa(http.StatusTooManyRequests)).Inc()
			return
		}

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		fn(sw, r)
		metrics.AuthRequests.WithLabelValues(op, strconv.Itoa(sw.status)).Inc()
	}
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, v1.CodeBadRequest, "invalid request body")
		return
	}

	u, err := h.sessions.Register(r.Context(), h.now(), req.Username, req.Password)
	if err != nil {
		switch {
		case identity.IsConflict(err):
			writeError(w, http.StatusConflict, v1.CodeUsernameTaken, "username already exists")
		case identity.IsInvalidInput(err),
			errors.Is(err, password.ErrPasswordTooShort),
			errors.Is(err, password.ErrPasswordTooLong),
			errors.Is(err, password.ErrWeakPassword):
			writeError(w, http.StatusBadRequest, v1.CodeBadRequest, "invalid username or password")
		default:
			h.log.Error("auth.register.fail", "err", err)
			writeError(w, http.StatusInternalServerError, v1.CodeInternal, "internal error")
		}
		return
	}

	h.log.Info("auth.register", "username", u.Username)
	writeJSON(w, http.StatusOK, registerResponse{Username: u.Username})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, v1.CodeBadRequest, "invalid request body")
		return
	}

	now := h.now()
	issued, err := h.sessions.Login(r.Context(), now, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, session.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, v1.CodeInvalidCredentials, "invalid credentials")
			return
		}
		h.log.Error("auth.login.fail", "err", err)
		writeError(w, http.StatusInternalServerError, v1.CodeInternal, "internal error")
		return
	}

	// Single-session policy: evict any live socket for this username.
	if h.hub != nil {
		h.hub.Kick(issued.Username)
	}

	h.log.Info("auth.login", "username", issued.Username)
	writeJSON(w, http.StatusOK, toLoginResponse(issued, now))
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req refreshRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, v1.CodeBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		writeError(w, http.StatusBadRequest, v1.CodeBadRequest, "refreshToken is required")
		return
	}

	now := h.now()
	issued, err := h.sessions.Refresh(r.Context(), now, req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrTokenExpired):
			writeError(w, http.StatusUnauthorized, v1.CodeTokenExpired, "refresh token expired")
		case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, session.ErrSessionRevoked):
			writeError(w, http.StatusUnauthorized, v1.CodeUnauthorized, "session not active")
		default:
			h.log.Error("auth.refresh.fail", "err", err)
			writeError(w, http.StatusInternalServerError, v1.CodeInternal, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, toRefreshResponse(issued, now))
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, v1.CodeUnauthorized, "missing bearer token")
		return
	}

	claims, err := h.sessions.VerifyAccess(token, h.now())
	if err != nil {
		if errors.Is(err, session.ErrTokenExpired) {
			writeError(w, http.StatusUnauthorized, v1.CodeTokenExpired, "access token expired")
			return
		}
		writeError(w, http.StatusUnauthorized, v1.CodeUnauthorized, "invalid token")
		return
	}

	writeJSON(w, http.StatusOK, meResponse{Username: claims.Username})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req logoutRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, v1.CodeBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		writeError(w, http.StatusBadRequest, v1.CodeBadRequest, "refreshToken is required")
		return
	}

	if err := h.sessions.Logout(r.Context(), h.now(), req.RefreshToken); err != nil {
		h.log.Error("auth.logout.fail", "err", err)
		writeError(w, http.StatusInternalServerError, v1.CodeInternal, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, logoutResponse{OK: true})
}

// ---- helpers ----

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for _, p := range parts {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}
