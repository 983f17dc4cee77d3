package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	tokenScheme = "dak"
	// prefixSecretChars is how much of the secret part KeyPrefix keeps for logs.
	prefixSecretChars = 8
)

// GenerateKey mints a bearer token of the form dak-{env}-{26 lower-case base32 chars}.
func GenerateKey(env string) (string, error) {
	env = strings.ToLower(strings.TrimSpace(env))
	if env == "" || strings.Contains(env, "-") {
		return "", fmt.Errorf("invalid token environment %q", env)
	}
	return tokenScheme + "-" + env + "-" + strings.ToLower(rand.Text()), nil
}

// HashKey returns the SHA-256 hex digest stored in auth.keys.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// KeyPrefix returns a log-safe head of a token: scheme, env and the first secret characters.
// Tokens that do not follow the generated layout are cut to 12 characters.
func KeyPrefix(key string) string {
	scheme, rest, ok := strings.Cut(key, "-")
	if ok {
		if env, secret, ok := strings.Cut(rest, "-"); ok && len(secret) >= prefixSecretChars {
			return scheme + "-" + env + "-" + secret[:prefixSecretChars]
		}
	}
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
