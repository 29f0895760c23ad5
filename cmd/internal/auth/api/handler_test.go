package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"goban/cmd/identity"
	"goban/cmd/internal/auth/session"
	"goban/cmd/security/password"
)

// ---- fakes ----

type memUsers struct {
	mu     sync.Mutex
	byName map[string]identity.User
}

func (m *memUsers) CreateUser(_ context.Context, in identity.CreateUserInput) (identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name := identity.NormalizeUsername(in.Username)
	if _, ok := m.byName[name]; ok {
		return identity.User{}, identity.ConflictError{Op: "mem.CreateUser", Field: "username"}
	}
	u := identity.User{ID: uuid.New(), Username: name, PasswordHash: in.PasswordHash, CreatedAt: in.Now}
	m.byName[name] = u
	return u, nil
}

func (m *memUsers) GetByUsername(_ context.Context, username string) (identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byName[identity.NormalizeUsername(username)]
	if !ok {
		return identity.User{}, identity.NotFoundError{Op: "mem.GetByUsername", Resource: "user"}
	}
	return u, nil
}

func (m *memUsers) nameOf(id uuid.UUID) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byName {
		if u.ID == id {
			return u.Username
		}
	}
	return ""
}

type memSessions struct {
	mu    sync.Mutex
	users *memUsers
	rows  map[uuid.UUID]*session.Row
}

func (m *memSessions) Upsert(_ context.Context, now time.Time, userID uuid.UUID, refreshHash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[userID] = &session.Row{
		ID: uuid.New(), UserID: userID, Username: m.users.nameOf(userID),
		RefreshTokenHash: refreshHash, CreatedAt: now, ExpiresAt: expiresAt,
	}
	return nil
}

func (m *memSessions) GetByRefreshHash(_ context.Context, refreshHash string) (session.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.RefreshTokenHash == refreshHash {
			return *r, nil
		}
	}
	return session.Row{}, session.ErrSessionNotFound
}

func (m *memSessions) Replace(_ context.Context, now time.Time, userID uuid.UUID, newHash string, newExpiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[userID]
	if !ok {
		return session.ErrSessionNotFound
	}
	r.ID = uuid.New()
	r.RefreshTokenHash = newHash
	r.ExpiresAt = newExpiresAt
	r.RevokedAt = nil
	r.CreatedAt = now
	return nil
}

func (m *memSessions) RevokeByHash(_ context.Context, now time.Time, refreshHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.RefreshTokenHash == refreshHash && r.RevokedAt == nil {
			at := now
			r.RevokedAt = &at
		}
	}
	return nil
}

type recordingKicker struct {
	mu     sync.Mutex
	kicked []string
}

func (k *recordingKicker) Kick(username string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.kicked = append(k.kicked, username)
}

func (k *recordingKicker) all() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]string(nil), k.kicked...)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// ---- harness ----

type authHarness struct {
	mux    *http.ServeMux
	clock  *fakeClock
	kicker *recordingKicker
}

func newAuthHarness(t *testing.T, cfg Config) *authHarness {
	t.Helper()

	sessCfg := session.DefaultConfig()
	sessCfg.JWTSecret = []byte("0123456789abcdef0123456789abcdef")
	sessCfg.RefreshTokenTTL = 100 * time.Second
	sessCfg.RotateThreshold = 20 * time.Second
	sessCfg.ClockSkew = 0

	pw := password.Config{
		Params: password.Argon2idParams{
			MemoryKiB: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
		},
		Policy: password.Policy{MinLength: 6, MaxLength: 256},
	}

	users := &memUsers{byName: make(map[string]identity.User)}
	store := &memSessions{users: users, rows: make(map[uuid.UUID]*session.Row)}
	tokens, err := session.NewHS256Manager(sessCfg)
	if err != nil {
		t.Fatalf("NewHS256Manager: %v", err)
	}
	svc, err := session.NewService(sessCfg, users, store, tokens, pw)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	kicker := &recordingKicker{}
	h, err := NewHandler(nil, cfg, svc, kicker)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	clock := &fakeClock{t: time.Now().UTC()}
	h.now = clock.Now

	mux := http.NewServeMux()
	h.Register(mux)
	return &authHarness{mux: mux, clock: clock, kicker: kicker}
}

func (a *authHarness) do(t *testing.T, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return m
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	m := decodeBody(t, rec)
	if ok, found := m["ok"].(bool); !found || ok {
		t.Fatalf("error body must carry ok:false, got %q", rec.Body.String())
	}
	e, _ := m["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func (a *authHarness) register(t *testing.T, username, pass string) *httptest.ResponseRecorder {
	t.Helper()
	return a.do(t, http.MethodPost, "/api/v1/auth/register",
		fmt.Sprintf(`{"username":%q,"password":%q}`, username, pass), nil)
}

func (a *authHarness) login(t *testing.T, username, pass string) *httptest.ResponseRecorder {
	t.Helper()
	return a.do(t, http.MethodPost, "/api/v1/auth/login",
		fmt.Sprintf(`{"username":%q,"password":%q}`, username, pass), nil)
}

func (a *authHarness) mustLogin(t *testing.T, username, pass string) map[string]any {
	t.Helper()
	rec := a.login(t, username, pass)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status: got %d body %s", rec.Code, rec.Body.String())
	}
	return decodeBody(t, rec)
}

// ---- tests ----

func TestRegisterEndpoint(t *testing.T) {
	a := newAuthHarness(t, Config{})

	rec := a.register(t, "  alice  ", "sturdy-passphrase")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body %s", rec.Code, rec.Body.String())
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-store" {
		t.Fatalf("Cache-Control: got %q", cc)
	}
	if got := decodeBody(t, rec)["username"]; got != "alice" {
		t.Fatalf("username: got %v", got)
	}

	if rec := a.register(t, "alice", "other-passphrase"); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate status: got %d", rec.Code)
	} else if code := errorCode(t, rec); code != "username_taken" {
		t.Fatalf("duplicate code: got %q", code)
	}

	// Password policy: 5 bytes rejected, 6 accepted.
	if rec := a.register(t, "bob", "12345"); rec.Code != http.StatusBadRequest {
		t.Fatalf("short password status: got %d", rec.Code)
	} else if code := errorCode(t, rec); code != "bad_request" {
		t.Fatalf("short password code: got %q", code)
	}
	if rec := a.register(t, "bob", "123456"); rec.Code != http.StatusOK {
		t.Fatalf("6-byte password status: got %d body %s", rec.Code, rec.Body.String())
	}

	if rec := a.do(t, http.MethodPost, "/api/v1/auth/register", `{"username":`, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("broken JSON status: got %d", rec.Code)
	}
	if rec := a.do(t, http.MethodPost, "/api/v1/auth/register", `{"username":"x","password":"y","extra":1}`, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown field status: got %d", rec.Code)
	}
	if rec := a.do(t, http.MethodGet, "/api/v1/auth/register", "", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET status: got %d", rec.Code)
	}
}

func TestLoginEndpoint(t *testing.T) {
	a := newAuthHarness(t, Config{})

	if rec := a.register(t, "alice", "sturdy-passphrase"); rec.Code != http.StatusOK {
		t.Fatalf("register: %d %s", rec.Code, rec.Body.String())
	}

	body := a.mustLogin(t, "alice", "sturdy-passphrase")
	if body["username"] != "alice" {
		t.Fatalf("username: got %v", body["username"])
	}
	if tok, _ := body["accessToken"].(string); tok == "" {
		t.Fatal("missing accessToken")
	}
	if tok, _ := body["refreshToken"].(string); tok == "" {
		t.Fatal("missing refreshToken")
	}
	if in, _ := body["refreshTokenExpiresIn"].(float64); int64(in) != 100 {
		t.Fatalf("refreshTokenExpiresIn: got %v", body["refreshTokenExpiresIn"])
	}
	if in, _ := body["accessTokenExpiresIn"].(float64); in <= 0 {
		t.Fatalf("accessTokenExpiresIn: got %v", body["accessTokenExpiresIn"])
	}

	if got := a.kicker.all(); len(got) != 1 || got[0] != "alice" {
		t.Fatalf("kicks: got %v", got)
	}

	if rec := a.login(t, "alice", "wrong"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password status: got %d", rec.Code)
	} else if code := errorCode(t, rec); code != "invalid_credentials" {
		t.Fatalf("wrong password code: got %q", code)
	}
	if rec := a.login(t, "nobody", "sturdy-passphrase"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("unknown user status: got %d", rec.Code)
	}

	// Failed logins never kick.
	if got := a.kicker.all(); len(got) != 1 {
		t.Fatalf("kicks after failures: got %v", got)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	a := newAuthHarness(t, Config{})

	a.register(t, "alice", "sturdy-passphrase")
	login := a.mustLogin(t, "alice", "sturdy-passphrase")
	token := login["refreshToken"].(string)

	refresh := func(tok string) *httptest.ResponseRecorder {
		return a.do(t, http.MethodPost, "/api/v1/auth/refresh",
			fmt.Sprintf(`{"refreshToken":%q}`, tok), nil)
	}

	// Outside the rotation window the same token comes back with its
	// remaining lifetime.
	a.clock.Advance(10 * time.Second)
	rec := refresh(token)
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh t+10: %d %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["refreshToken"] != token {
		t.Fatal("token must not rotate at t+10")
	}
	if in := int64(body["refreshTokenExpiresIn"].(float64)); in != 90 {
		t.Fatalf("refreshTokenExpiresIn at t+10: got %d, want 90", in)
	}
	if _, hasUser := body["username"]; hasUser {
		t.Fatal("refresh body must not include username")
	}

	// Inside the window the token rotates with a full ttl.
	a.clock.Advance(75 * time.Second) // t+85
	rec = refresh(token)
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh t+85: %d %s", rec.Code, rec.Body.String())
	}
	body = decodeBody(t, rec)
	rotated := body["refreshToken"].(string)
	if rotated == token {
		t.Fatal("token must rotate at t+85")
	}
	if in := int64(body["refreshTokenExpiresIn"].(float64)); in != 100 {
		t.Fatalf("rotated refreshTokenExpiresIn: got %d, want 100", in)
	}

	// The replaced token is gone.
	if rec := refresh(token); rec.Code != http.StatusUnauthorized {
		t.Fatalf("old token status: got %d", rec.Code)
	} else if code := errorCode(t, rec); code != "unauthorized" {
		t.Fatalf("old token code: got %q", code)
	}

	// The rotated token expires 100s after rotation.
	a.clock.Advance(101 * time.Second)
	if rec := refresh(rotated); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expired status: got %d", rec.Code)
	} else if code := errorCode(t, rec); code != "token_expired" {
		t.Fatalf("expired code: got %q", code)
	}

	if rec := refresh("no-such-token"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token status: got %d", rec.Code)
	}
	if rec := a.do(t, http.MethodPost, "/api/v1/auth/refresh", `{}`, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing token status: got %d", rec.Code)
	}
}

func TestMeEndpoint(t *testing.T) {
	a := newAuthHarness(t, Config{})

	a.register(t, "alice", "sturdy-passphrase")
	login := a.mustLogin(t, "alice", "sturdy-passphrase")
	access := login["accessToken"].(string)

	rec := a.do(t, http.MethodGet, "/api/v1/auth/me", "", map[string]string{
		"Authorization": "Bearer " + access,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("me status: %d %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody(t, rec)["username"]; got != "alice" {
		t.Fatalf("me username: got %v", got)
	}

	if rec := a.do(t, http.MethodGet, "/api/v1/auth/me", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no header status: got %d", rec.Code)
	}
	rec = a.do(t, http.MethodGet, "/api/v1/auth/me", "", map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token status: got %d", rec.Code)
	} else if code := errorCode(t, rec); code != "unauthorized" {
		t.Fatalf("bad token code: got %q", code)
	}

	// Past the access ttl the code distinguishes expiry.
	a.clock.Advance(16 * time.Minute)
	rec = a.do(t, http.MethodGet, "/api/v1/auth/me", "", map[string]string{
		"Authorization": "Bearer " + access,
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expired status: got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "token_expired" {
		t.Fatalf("expired code: got %q", code)
	}
}

func TestLogoutEndpoint(t *testing.T) {
	a := newAuthHarness(t, Config{})

	a.register(t, "alice", "sturdy-passphrase")
	login := a.mustLogin(t, "alice", "sturdy-passphrase")
	token := login["refreshToken"].(string)

	logout := func(tok string) *httptest.ResponseRecorder {
		return a.do(t, http.MethodPost, "/api/v1/auth/logout",
			fmt.Sprintf(`{"refreshToken":%q}`, tok), nil)
	}

	rec := logout(token)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout status: %d %s", rec.Code, rec.Body.String())
	}
	if ok, _ := decodeBody(t, rec)["ok"].(bool); !ok {
		t.Fatalf("logout body: got %s", rec.Body.String())
	}

	// Logout is idempotent; the revoked session stays revoked.
	if rec := logout(token); rec.Code != http.StatusOK {
		t.Fatalf("second logout status: got %d", rec.Code)
	}
	rec = a.do(t, http.MethodPost, "/api/v1/auth/refresh",
		fmt.Sprintf(`{"refreshToken":%q}`, token), nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after logout status: got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "unauthorized" {
		t.Fatalf("refresh after logout code: got %q", code)
	}
}

func TestAuthRateLimit(t *testing.T) {
	a := newAuthHarness(t, Config{RateLimit: 2, RateWindow: time.Minute})

	a.register(t, "alice", "sturdy-passphrase")
	a.login(t, "alice", "wrong")

	rec := a.login(t, "alice", "wrong")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third request status: got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "rate_limited" {
		t.Fatalf("code: got %q", code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After")
	}

	// The budget recovers after the window.
	a.clock.Advance(2 * time.Minute)
	if rec := a.login(t, "alice", "sturdy-passphrase"); rec.Code != http.StatusOK {
		t.Fatalf("after window status: got %d body %s", rec.Code, rec.Body.String())
	}
}
