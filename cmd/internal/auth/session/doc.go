// Package session implements Goban's account and session operations.
//
// Each user holds at most one refresh session: the refresh_sessions row is
// keyed by user_id and logging in again replaces it, which pairs with the
// realtime hub's single-connection-per-user rule.
//
// Access tokens are short-lived HS256 JWTs carrying the username (sub) and
// user id (uid). Refresh tokens are opaque random strings stored hashed in
// Postgres (HMAC-SHA256 when GOBAN_TOKEN_HMAC_KEY is set; otherwise SHA-256
// for dev). A refresh close to expiry rotates the stored secret; earlier
// refreshes keep it, so clients can refresh freely without invalidating
// other tabs' stored tokens.
//
// Transport integration lives elsewhere: auth/api for HTTP, realtime for WS.
package session
