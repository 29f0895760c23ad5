package session

import (
	"context"
	"strings"
	"time"

	"goban/cmd/identity"
	"goban/cmd/security/password"
)

// Service implements the high-level account operations for Goban.
//
// It registers users, checks credentials, issues access + refresh tokens,
// rotates refresh sessions near expiry, and revokes them on logout. Every
// operation takes the current time as a parameter so tests can pin the clock.
type Service struct {
	cfg    Config
	users  identity.Store
	store  Store
	tokens AccessTokenManager
	pw     password.Config

	// dummyHash equalizes login timing for unknown usernames.
	dummyHash string
}

// Issued is the result of a login or refresh.
type Issued struct {
	Username     string
	AccessToken  string
	AccessExp    time.Time
	RefreshToken string
	RefreshExp   time.Time
}

// AccessExpiresIn reports the access token lifetime in whole seconds from now.
func (i Issued) AccessExpiresIn(now time.Time) int64 {
	return secondsUntil(i.AccessExp, now)
}

// RefreshExpiresIn reports the refresh session lifetime in whole seconds from now.
func (i Issued) RefreshExpiresIn(now time.Time) int64 {
	return secondsUntil(i.RefreshExp, now)
}

func secondsUntil(t, now time.Time) int64 {
	d := int64(t.Sub(now) / time.Second)
	if d < 0 {
		return 0
	}
	return d
}

// NewService constructs a Service with the provided configuration, stores,
// token manager and password policy.
func NewService(cfg Config, users identity.Store, store Store, tokens AccessTokenManager, pw password.Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Service{cfg: cfg, users: users, store: store, tokens: tokens, pw: pw}

	// Dummy hash for timing-resistant login checks.
	if hash, err := pw.Hash("dummy-password-for-timing-only"); err == nil {
		s.dummyHash = hash
	}

	return s, nil
}

// Register creates a new account. The username is trimmed and kept
// case-sensitive; the password must satisfy the configured policy.
func (s *Service) Register(ctx context.Context, now time.Time, username, pass string) (identity.User, error) {
	username = identity.NormalizeUsername(username)
	if username == "" {
		return identity.User{}, identity.OpError{Op: "session.Register", Kind: identity.ErrInvalidInput, Msg: "username is required"}
	}

	hash, err := s.pw.Hash(pass)
	if err != nil {
		return identity.User{}, err
	}

	return s.users.CreateUser(ctx, identity.CreateUserInput{
		Username:     username,
		PasswordHash: hash,
		Now:          now,
	})
}

// Login verifies credentials and installs a fresh refresh session for the
// user, replacing any previous one.
func (s *Service) Login(ctx context.Context, now time.Time, username, pass string) (Issued, error) {
	username = identity.NormalizeUsername(username)
	if username == "" || pass == "" {
		return Issued{}, ErrInvalidCredentials
	}

	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if identity.IsNotFound(err) {
			// Timing resistance: run a real verify when the user is missing.
			if s.dummyHash != "" {
				_, _ = s.pw.Verify(s.dummyHash, pass)
			}
			return Issued{}, ErrInvalidCredentials
		}
		return Issued{}, err
	}

	ok, err := s.pw.Verify(u.PasswordHash, pass)
	if err != nil || !ok {
		return Issued{}, ErrInvalidCredentials
	}

	refreshPlain, refreshHash, err := newOpaqueRefreshToken(s.cfg.RefreshTokenBytes)
	if err != nil {
		return Issued{}, err
	}
	refreshExp := now.Add(s.cfg.RefreshTokenTTL)

	if err := s.store.Upsert(ctx, now, u.ID, refreshHash, refreshExp); err != nil {
		return Issued{}, err
	}

	accessToken, accessExp, err := s.tokens.Issue(u.Username, u.ID, now)
	if err != nil {
		return Issued{}, err
	}

	return Issued{
		Username:     u.Username,
		AccessToken:  accessToken,
		AccessExp:    accessExp,
		RefreshToken: refreshPlain,
		RefreshExp:   refreshExp,
	}, nil
}

// Refresh validates a refresh token and mints a new access token. When the
// session's remaining lifetime is at or below the rotation threshold, the
// stored secret is replaced and the new token returned; otherwise the caller
// keeps the token it presented and its original expiry.
func (s *Service) Refresh(ctx context.Context, now time.Time, refreshPlain string) (Issued, error) {
	refreshPlain = strings.TrimSpace(refreshPlain)
	// Issued tokens are well under 100 chars.
	if refreshPlain == "" || len(refreshPlain) > 4096 {
		return Issued{}, ErrSessionNotFound
	}

	row, err := s.store.GetByRefreshHash(ctx, hashRefreshTokenHex(refreshPlain))
	if err != nil {
		return Issued{}, err
	}
	if row.RevokedAt != nil {
		return Issued{}, ErrSessionRevoked
	}
	if !row.ExpiresAt.After(now) {
		return Issued{}, ErrTokenExpired
	}

	refreshToken := refreshPlain
	refreshExp := row.ExpiresAt
	if row.ExpiresAt.Sub(now) <= s.cfg.rotateThreshold() {
		newPlain, newHash, err := newOpaqueRefreshToken(s.cfg.RefreshTokenBytes)
		if err != nil {
			return Issued{}, err
		}
		refreshExp = now.Add(s.cfg.RefreshTokenTTL)
		if err := s.store.Replace(ctx, now, row.UserID, newHash, refreshExp); err != nil {
			return Issued{}, err
		}
		refreshToken = newPlain
	}

	accessToken, accessExp, err := s.tokens.Issue(row.Username, row.UserID, now)
	if err != nil {
		return Issued{}, err
	}

	return Issued{
		Username:     row.Username,
		AccessToken:  accessToken,
		AccessExp:    accessExp,
		RefreshToken: refreshToken,
		RefreshExp:   refreshExp,
	}, nil
}

// Logout revokes the session owning the presented refresh token. Unknown and
// already-revoked tokens succeed.
func (s *Service) Logout(ctx context.Context, now time.Time, refreshPlain string) error {
	refreshPlain = strings.TrimSpace(refreshPlain)
	if refreshPlain == "" || len(refreshPlain) > 4096 {
		return nil
	}
	return s.store.RevokeByHash(ctx, now, hashRefreshTokenHex(refreshPlain))
}

// VerifyAccess checks an access token without touching the database.
func (s *Service) VerifyAccess(token string, now time.Time) (AccessClaims, error) {
	return s.tokens.Verify(strings.TrimSpace(token), now)
}
