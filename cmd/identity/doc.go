// Package identity implements Goban's user account foundation.
//
// It defines the canonical User record and the persistence boundary used by
// the HTTP auth endpoints. Refresh-token sessions are a separate concern and
// live in cmd/internal/auth/session.
package identity
