package auth

import (
	"crypto/sha256"
	"encoding/hex"
)

// RevocationKey returns the SHA-256 hex of a refresh token string. The
// revocation list stores these keys so raw tokens never land in the store.
func RevocationKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
