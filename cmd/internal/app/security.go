package app

import (
	"fmt"

	"goban/cmd/security/token"
)

// minProductionSecretBytes is the floor for both the HS256 signing key and
// the optional refresh-hash HMAC key in production. Measured in bytes, since
// both are raw HMAC input.
const minProductionSecretBytes = 32

// ValidateSecurityConfig fails startup on credentials that must not reach
// production. Other APP_ENV values skip the checks so local runs can use
// throwaway secrets.
func ValidateSecurityConfig(cfg Config) error {
	if cfg.AppEnv != "production" {
		return nil
	}

	if len(cfg.JWTSecret) < minProductionSecretBytes {
		return fmt.Errorf("security policy: APP_ENV=production requires a JWT_SECRET of at least %d bytes", minProductionSecretBytes)
	}

	// The refresh-hash HMAC key stays optional: without it, stored refresh
	// tokens are plain SHA-256 digests of high-entropy randoms. When the key
	// is set it has to meet the same floor as the JWT secret.
	if token.HMACEnabled() {
		if _, err := token.HMACKeyFromEnv(minProductionSecretBytes); err != nil {
			return fmt.Errorf("security policy: %s must hold at least %d bytes when set: %w",
				token.HMACEnvKey, minProductionSecretBytes, err)
		}
	}

	return nil
}
