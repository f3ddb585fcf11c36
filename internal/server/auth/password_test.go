package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrijs2005/todoauth/internal/common"
)

func TestHasher_SaltedAndVerifiable(t *testing.T) {
	h := NewHasher()

	first, err := h.Hash("password123")
	require.NoError(t, err)
	second, err := h.Hash("password123")
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "each hash must use its own salt")
	assert.NotContains(t, first, "password123")
	assert.True(t, h.Verify("password123", first))
	assert.True(t, h.Verify("password123", second))
}

func TestHasher_FixedCost(t *testing.T) {
	hash, err := NewHasher().Hash("password123")
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, PasswordCost, cost)
}

func TestHasher_VerifyFalse(t *testing.T) {
	h := NewHasher()
	hash, err := h.Hash("password123")
	require.NoError(t, err)

	tests := []struct {
		name      string
		plaintext string
		hash      string
	}{
		{"wrong password", "password124", hash},
		{"empty password", "", hash},
		{"malformed hash", "password123", "not-a-bcrypt-hash"},
		{"empty hash", "password123", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, h.Verify(tt.plaintext, tt.hash))
		})
	}
}

func TestHasher_TooLongIsValidationError(t *testing.T) {
	_, err := NewHasher().Hash(strings.Repeat("p", MaxPasswordBytes+1))
	assert.ErrorIs(t, err, common.ErrValidation)
}
