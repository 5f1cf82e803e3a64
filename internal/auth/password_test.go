package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestMain(m *testing.M) {
	hashCost = bcrypt.MinCost
	m.Run()
}

// ============================================
// HashPassword Tests
// ============================================

func TestHashPassword_Accepts(t *testing.T) {
	tests := []struct {
		name     string
		password string
	}{
		{"exactly 8", "password"},
		{"symbols", "p@ssw0rd!"},
		{"turkish letters count as characters", "şifreğüç"},
		{"72 bytes", strings.Repeat("a", 72)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := HashPassword(tt.password)
			require.NoError(t, err)
			assert.NotEqual(t, tt.password, hash)
			assert.True(t, CheckPassword(tt.password, hash))
		})
	}
}

func TestHashPassword_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		password string
		want     error
	}{
		{"empty", "", ErrPasswordTooShort},
		{"7 characters", "1234567", ErrPasswordTooShort},
		{"73 bytes", strings.Repeat("a", 73), ErrPasswordTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := HashPassword(tt.password)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, hash)
		})
	}
}

func TestHashPassword_Salted(t *testing.T) {
	first, err := HashPassword("correct-horse")
	require.NoError(t, err)
	second, err := HashPassword("correct-horse")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

// ============================================
// CheckPassword Tests
// ============================================

func TestCheckPassword(t *testing.T) {
	hash, err := HashPassword("correct-horse")
	require.NoError(t, err)

	assert.True(t, CheckPassword("correct-horse", hash))
	assert.False(t, CheckPassword("Correct-horse", hash))
	assert.False(t, CheckPassword("", hash))
	assert.False(t, CheckPassword("correct-horse", ""))
	assert.False(t, CheckPassword("correct-horse", "not-a-bcrypt-hash"))
}

func TestNeedsRehash(t *testing.T) {
	current, err := HashPassword("correct-horse")
	require.NoError(t, err)
	old, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost+1)
	require.NoError(t, err)

	assert.False(t, NeedsRehash(current))
	assert.True(t, NeedsRehash(string(old)))
	assert.True(t, NeedsRehash("garbage"))
}
