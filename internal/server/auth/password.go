package auth

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrijs2005/todoauth/internal/common"
)

const (
	// PasswordCost is the fixed bcrypt work factor for interactive sign-in.
	PasswordCost = 10

	// MaxPasswordBytes is the longest input bcrypt accepts.
	MaxPasswordBytes = 72
)

// Hasher hashes passwords with bcrypt. Each Hash call draws a fresh salt.
type Hasher struct {
	cost int
}

func NewHasher() *Hasher {
	return &Hasher{cost: PasswordCost}
}

// Hash returns the bcrypt encoding of plaintext.
func (h *Hasher) Hash(plaintext string) (string, error) {
	if len(plaintext) > MaxPasswordBytes {
		return "", common.NewValidationError("password must be at most 72 bytes")
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify reports whether plaintext matches hash. A malformed hash and a
// wrong password both yield false.
func (h *Hasher) Verify(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}
