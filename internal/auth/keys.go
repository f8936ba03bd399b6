package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// HashKey returns a SHA-256 hash of the key.
func HashKey(key string) string {
	key = strings.TrimSpace(key)

	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// VerifyKey reports whether key hashes to wantHash. The comparison is
// constant-time.
func VerifyKey(key, wantHash string) bool {
	got := HashKey(key)
	return subtle.ConstantTimeCompare([]byte(got), []byte(wantHash)) == 1
}
