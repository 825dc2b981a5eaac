package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashSecret digests a raw secret key with the same strategy used at
// provisioning time, so the digest doubles as the lookup key.
func HashSecret(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
