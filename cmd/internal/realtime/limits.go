package realtime

import "time"

// Security/performance defaults. The app layer may override any of them
// from the environment (WS_* variables) before constructing the gateway.
const (
	// Max bytes per websocket frame read (hard limit).
	defaultMaxFrameBytes = 64 << 10 // 64 KiB

	defaultHeartbeatInterval = 25 * time.Second
	defaultHeartbeatTimeout  = 5 * time.Second
	defaultWriteTimeout      = 5 * time.Second

	// Consecutive failed server pings before the connection is dropped.
	maxPingFailures = 3

	wsCloseGrace = 1 * time.Second
)

// Limits bundles the per-connection tunables of the gateway.
type Limits struct {
	// MaxFrameBytes caps a single inbound frame (WS_MAX_FRAME_BYTES).
	MaxFrameBytes int64

	// HeartbeatInterval is the server-side ping cadence
	// (WS_HEARTBEAT_INTERVAL); HeartbeatTimeout bounds each ping round trip
	// (WS_HEARTBEAT_TIMEOUT).
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration

	// ReadIdleTimeout bounds a single blocking read (WS_READ_IDLE_TIMEOUT).
	// Zero disables it; the protocol expects client text pings, so the
	// server-side heartbeat is the liveness authority.
	ReadIdleTimeout time.Duration

	// WriteTimeout bounds a single outbound frame write.
	WriteTimeout time.Duration

	// AllowedOrigins is the browser origin allowlist (WS_ALLOWED_ORIGINS,
	// CSV). The single entry "*" admits any origin.
	AllowedOrigins []string
}

// DefaultLimits returns the limits used when no environment overrides are
// present.
func DefaultLimits() Limits {
	return Limits{
		MaxFrameBytes:     defaultMaxFrameBytes,
		HeartbeatInterval: defaultHeartbeatInterval,
		HeartbeatTimeout:  defaultHeartbeatTimeout,
		ReadIdleTimeout:   0,
		WriteTimeout:      defaultWriteTimeout,
		AllowedOrigins:    []string{"*"},
	}
}

// normalized replaces out-of-range values with defaults. ReadIdleTimeout
// keeps zero as "disabled"; negatives are coerced to zero.
func (l Limits) normalized() Limits {
	if l.MaxFrameBytes <= 0 {
		l.MaxFrameBytes = defaultMaxFrameBytes
	}
	if l.HeartbeatInterval <= 0 {
		l.HeartbeatInterval = defaultHeartbeatInterval
	}
	if l.HeartbeatTimeout <= 0 {
		l.HeartbeatTimeout = defaultHeartbeatTimeout
	}
	if l.ReadIdleTimeout < 0 {
		l.ReadIdleTimeout = 0
	}
	if l.WriteTimeout <= 0 {
		l.WriteTimeout = defaultWriteTimeout
	}
	if len(l.AllowedOrigins) == 0 {
		l.AllowedOrigins = []string{"*"}
	}
	return l
}

// allowAnyOrigin reports whether the allowlist contains the wildcard.
func (l Limits) allowAnyOrigin() bool {
	for _, o := range l.AllowedOrigins {
		if o == "*" {
			return true
		}
	}
	return false
}
