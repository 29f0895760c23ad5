package app

import (
	"errors"
	"time"
)

// Config is the whole runtime configuration, loaded once from the
// environment. The app layer is the only place that reads env vars; every
// subsystem gets a plain struct carved out of this one.
type Config struct {
	// BindAddr is the HTTP listen address (BIND_ADDR).
	BindAddr string

	// AppEnv is the deployment environment (APP_ENV). "production" enables
	// the startup security checks.
	AppEnv string

	// LogLevel and LogFormat control the process logger (LOG_LEVEL,
	// LOG_FORMAT). Format "pretty" renders human-readable lines; anything
	// else is JSON.
	LogLevel  string
	LogFormat string

	// Database connection (DATABASE_URL, DB_MAX_CONNECTIONS,
	// DB_CONNECT_TIMEOUT_SECS, DB_ACQUIRE_TIMEOUT_SECS).
	DatabaseURL      string
	DBMaxConns       int32
	DBConnectTimeout time.Duration
	DBAcquireTimeout time.Duration

	// Token settings (JWT_SECRET, ACCESS_TOKEN_TTL_SECS,
	// REFRESH_TOKEN_TTL_SECS, REFRESH_TOKEN_ROTATE_THRESHOLD_SECS).
	// A rotate threshold of zero disables early rotation; values above the
	// refresh TTL are clamped down by the session service.
	JWTSecret              string
	AccessTokenTTL         time.Duration
	RefreshTokenTTL        time.Duration
	RefreshRotateThreshold time.Duration

	// WebSocket gateway knobs (WS_ALLOWED_ORIGINS, WS_MAX_FRAME_BYTES,
	// WS_HEARTBEAT_INTERVAL, WS_HEARTBEAT_TIMEOUT, WS_READ_IDLE_TIMEOUT).
	WSAllowedOrigins    []string
	WSMaxFrameBytes     int64
	WSHeartbeatInterval time.Duration
	WSHeartbeatTimeout  time.Duration
	WSReadIdleTimeout   time.Duration

	// Auth endpoint rate limiting (AUTH_RATE_LIMIT, AUTH_RATE_WINDOW,
	// TRUST_PROXY).
	AuthRateLimit  int
	AuthRateWindow time.Duration
	TrustProxy     bool

	// ShutdownTimeout bounds the graceful HTTP drain (SHUTDOWN_TIMEOUT).
	ShutdownTimeout time.Duration
}

// LoadConfig reads the environment. DATABASE_URL and JWT_SECRET have no
// defaults and missing values fail startup.
func LoadConfig() (Config, error) {
	cfg := Config{
		BindAddr: EnvString("BIND_ADDR", "127.0.0.1:8080"),
		AppEnv:   EnvString("APP_ENV", "development"),

		LogLevel:  EnvString("LOG_LEVEL", "info"),
		LogFormat: EnvString("LOG_FORMAT", "json"),

		DatabaseURL:      EnvString("DATABASE_URL", ""),
		DBMaxConns:       EnvInt32("DB_MAX_CONNECTIONS", 10),
		DBConnectTimeout: EnvSeconds("DB_CONNECT_TIMEOUT_SECS", 5*time.Second),
		DBAcquireTimeout: EnvSeconds("DB_ACQUIRE_TIMEOUT_SECS", 5*time.Second),

		JWTSecret:              EnvString("JWT_SECRET", ""),
		AccessTokenTTL:         EnvSeconds("ACCESS_TOKEN_TTL_SECS", 15*time.Minute),
		RefreshTokenTTL:        EnvSeconds("REFRESH_TOKEN_TTL_SECS", 30*24*time.Hour),
		RefreshRotateThreshold: EnvSeconds("REFRESH_TOKEN_ROTATE_THRESHOLD_SECS", 24*time.Hour),

		WSAllowedOrigins:    EnvCSV("WS_ALLOWED_ORIGINS", []string{"*"}),
		WSMaxFrameBytes:     EnvInt64("WS_MAX_FRAME_BYTES", 64<<10),
		WSHeartbeatInterval: EnvDuration("WS_HEARTBEAT_INTERVAL", 25*time.Second),
		WSHeartbeatTimeout:  EnvDuration("WS_HEARTBEAT_TIMEOUT", 5*time.Second),
		WSReadIdleTimeout:   EnvDuration("WS_READ_IDLE_TIMEOUT", 0),

		AuthRateLimit:  EnvInt("AUTH_RATE_LIMIT", 20),
		AuthRateWindow: EnvDuration("AUTH_RATE_WINDOW", time.Minute),
		TrustProxy:     EnvBool("TRUST_PROXY", false),

		ShutdownTimeout: EnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("config: DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, errors.New("config: JWT_SECRET is required")
	}

	return cfg, nil
}
