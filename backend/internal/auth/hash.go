package auth

import (
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/user/papertrade/backend/internal/models"
)

// maxPasswordBytes is bcrypt's input limit.
const maxPasswordBytes = 72

// PasswordCost is the bcrypt work factor for new hashes.
var PasswordCost = bcrypt.DefaultCost

var (
	dummyOnce sync.Once
	dummyHash []byte
)

// HashPassword generates a bcrypt hash of the password.
func HashPassword(password string) (string, error) {
	if len(password) > maxPasswordBytes {
		return "", fmt.Errorf("%w: password must be at most %d bytes", models.ErrInvalidRequest, maxPasswordBytes)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	if err != nil {
		return "", fmt.Errorf("error hashing password: %w", err)
	}
	return string(hashed), nil
}

// CheckPasswordHash compares a plain password with a stored hash. An empty hash never
// matches but still costs one bcrypt comparison, so unknown usernames take as long as
// wrong passwords.
func CheckPasswordHash(password, hash string) bool {
	if hash == "" {
		dummyOnce.Do(func() {
			dummyHash, _ = bcrypt.GenerateFromPassword([]byte("papertrade"), PasswordCost)
		})
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
