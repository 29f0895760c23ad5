package session

import "errors"

var (
	// ErrInvalidToken is returned when an access token fails verification or validation.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when an access token or refresh session is past its expiry.
	ErrTokenExpired = errors.New("token expired")

	// ErrInvalidCredentials is returned for unknown users and password mismatches alike.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrSessionNotFound is returned when a refresh token does not match any session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionRevoked is returned when the session has been revoked by logout.
	ErrSessionRevoked = errors.New("session revoked")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)
