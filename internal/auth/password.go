package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the registration floor.
const MinPasswordLength = 8

// HashPassword hashes a plaintext password using bcrypt, enforcing the
// minimum length at the same boundary.
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", ErrInvalidInput
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares a plaintext password with the stored hash.
func VerifyPassword(hash, password string) error {
	if hash == "" {
		return ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrUnauthorized
	}
	return nil
}
