// Package token provides refresh-token hashing for server-side storage.
//
// The session store persists only these digests, never the plain token.
// Digests are stable 64-char hex, so lookup by digest works across restarts.
//
// Hashing runs in one of two modes, selected by GOBAN_TOKEN_HMAC_KEY:
// plain SHA-256 when the key is absent, HMAC-SHA256 when it is set.
// Production startup policy enforces a minimum key length once a key is
// configured; see HMACKeyFromEnv.
package token
