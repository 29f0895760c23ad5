package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessClaims is the verified identity envelope propagated across HTTP/WS.
type AccessClaims struct {
	Username  string
	UserID    uuid.UUID
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// AccessTokenManager issues and verifies short-lived access tokens.
type AccessTokenManager interface {
	Issue(username string, userID uuid.UUID, now time.Time) (token string, exp time.Time, err error)
	Verify(token string, now time.Time) (AccessClaims, error)
}

// jwtClaims is the wire layout: sub carries the username, uid the user id.
type jwtClaims struct {
	UID string `json:"uid"`
	jwt.RegisteredClaims
}

type hs256Manager struct {
	ttl       time.Duration
	clockSkew time.Duration
	secret    []byte
}

// NewHS256Manager builds an AccessTokenManager signing HS256 JWTs.
//
// Verification pins the algorithm allowlist to HS256 so a tampered header
// cannot downgrade the check, and applies ClockSkew as parser leeway.
func NewHS256Manager(cfg Config) (AccessTokenManager, error) {
	if len(cfg.JWTSecret) == 0 {
		return nil, ErrConfig
	}
	return &hs256Manager{
		ttl:       cfg.AccessTokenTTL,
		clockSkew: cfg.ClockSkew,
		secret:    cfg.JWTSecret,
	}, nil
}

func (m *hs256Manager) Issue(username string, userID uuid.UUID, now time.Time) (string, time.Time, error) {
	exp := now.Add(m.ttl)

	claims := jwtClaims{
		UID: userID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (m *hs256Manager) Verify(token string, now time.Time) (AccessClaims, error) {
	var claims jwtClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithLeeway(m.clockSkew),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return AccessClaims{}, ErrTokenExpired
		}
		return AccessClaims{}, ErrInvalidToken
	}

	if claims.Subject == "" {
		return AccessClaims{}, ErrInvalidToken
	}
	uid, err := uuid.Parse(claims.UID)
	if err != nil {
		return AccessClaims{}, ErrInvalidToken
	}

	out := AccessClaims{
		Username: claims.Subject,
		UserID:   uid,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	return out, nil
}
