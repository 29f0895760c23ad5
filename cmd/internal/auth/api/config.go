package api

import "time"

// Config controls auth endpoint behavior. The app layer populates it from
// the environment (AUTH_RATE_LIMIT, AUTH_RATE_WINDOW, TRUST_PROXY).
type Config struct {
	// TrustProxy honors X-Forwarded-For / X-Real-IP for rate-limit keying.
	TrustProxy bool

	// MaxBodyBytes caps request bodies before JSON decoding.
	MaxBodyBytes int64

	// RateLimit is the per-IP request budget per RateWindow across all auth
	// endpoints. Zero disables limiting.
	RateLimit  int
	RateWindow time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		TrustProxy:   false,
		MaxBodyBytes: 1 << 20, // 1 MiB
		RateLimit:    20,
		RateWindow:   time.Minute,
	}
}

func (c Config) normalized() Config {
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 1 << 20
	}
	if c.RateLimit < 0 {
		c.RateLimit = 0
	}
	if c.RateWindow <= 0 {
		c.RateWindow = time.Minute
	}
	return c
}
