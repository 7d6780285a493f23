package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

const rawTokenBytes = 32

// newRawToken returns a random 256-bit token and its sha256 digest, both hex encoded.
func newRawToken() (raw, digest string, err error) {
	buf := make([]byte, rawTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	raw = hex.EncodeToString(buf)
	return raw, DigestToken(raw), nil
}

// DigestToken returns the one-way digest stored in place of a raw token.
func DigestToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
