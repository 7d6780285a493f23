package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is the work factor applied to password digests.
const DefaultBcryptCost = 12

// HashPassword hashes plaintext password using bcrypt.
func HashPassword(password string, cost int) (string, error) {
	if len(password) == 0 {
		return "", errors.New("password is empty")
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword reports whether candidate matches the stored digest.
// A mismatch or a malformed digest yields false, never an error.
func VerifyPassword(candidate, hash string) bool {
	if hash == "" || candidate == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(candidate)) == nil
}
