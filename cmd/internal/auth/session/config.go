package session

import "time"

// Config defines all runtime configuration for the session subsystem.
//
// It controls access-token TTL, the refresh-token lifetime and rotation
// threshold, clock skew tolerance, refresh entropy size, and the JWT signing
// secret. The application config layer populates it from the environment
// (JWT_SECRET, ACCESS_TOKEN_TTL_SECS, REFRESH_TOKEN_TTL_SECS,
// REFRESH_TOKEN_ROTATE_THRESHOLD_SECS).
type Config struct {
	// AccessTokenTTL defines the lifetime of HS256 access tokens.
	AccessTokenTTL time.Duration

	// RefreshTokenTTL defines the lifetime of a freshly issued refresh session.
	RefreshTokenTTL time.Duration

	// RotateThreshold controls refresh rotation: when the remaining session
	// lifetime drops to this value or below, Refresh replaces the stored
	// secret. Zero disables rotation. Values above RefreshTokenTTL are
	// clamped down to it.
	RotateThreshold time.Duration

	// ClockSkew defines the allowed time skew during token validation.
	ClockSkew time.Duration

	// RefreshTokenBytes defines the number of random bytes used
	// to generate opaque refresh tokens.
	RefreshTokenBytes int

	// JWTSecret is the HS256 signing key for access tokens.
	JWTSecret []byte
}

// DefaultConfig returns the defaults used when the environment leaves the
// knobs unset. JWTSecret stays empty and must be provided by the caller.
func DefaultConfig() Config {
	return Config{
		AccessTokenTTL:    15 * time.Minute,
		RefreshTokenTTL:   30 * 24 * time.Hour,
		RotateThreshold:   24 * time.Hour,
		ClockSkew:         30 * time.Second,
		RefreshTokenBytes: 32,
	}
}

// Validate reports ErrConfig for configurations the service cannot run with.
func (c Config) Validate() error {
	if len(c.JWTSecret) == 0 {
		return ErrConfig
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return ErrConfig
	}
	if c.RotateThreshold < 0 || c.ClockSkew < 0 {
		return ErrConfig
	}
	if c.RefreshTokenBytes < 16 || c.RefreshTokenBytes > 64 {
		return ErrConfig
	}
	return nil
}

// rotateThreshold returns RotateThreshold clamped to [0, RefreshTokenTTL].
func (c Config) rotateThreshold() time.Duration {
	t := c.RotateThreshold
	if t < 0 {
		t = 0
	}
	if t > c.RefreshTokenTTL {
		t = c.RefreshTokenTTL
	}
	return t
}
