package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// RefreshTokenLen is the length of an opaque refresh token (hex SHA-256).
const RefreshTokenLen = sha256.Size * 2

// NewRefreshToken returns an opaque refresh token: the hex SHA-256 digest of 32 random bytes.
// It is not self-verifying; validity comes only from the session store.
func NewRefreshToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:]), nil
}

// HashRefreshToken returns a SHA-256 hash of the refresh token string, hex-encoded.
// Sessions store this digest, never the raw token.
func HashRefreshToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// ValidRefreshTokenFormat reports whether token has the shape of a token from NewRefreshToken.
func ValidRefreshTokenFormat(token string) bool {
	if len(token) != RefreshTokenLen {
		return false
	}
	for i := 0; i < len(token); i++ {
		c := token[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
