package auth

import (
	"strings"
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashAndCompare(t *testing.T) {
	h := NewHasher(MinBcryptCost)

	hash, err := h.Hash("Correct-Horse7")
	require.NoError(t, err)
	assert.NotEqual(t, "Correct-Horse7", hash)

	assert.True(t, h.Compare("Correct-Horse7", hash))
	assert.False(t, h.Compare("wrong-password", hash))
}

func TestCompareMalformedHashReturnsFalse(t *testing.T) {
	h := NewHasher(MinBcryptCost)

	assert.False(t, h.Compare("anything", "not-a-bcrypt-hash"))
	assert.False(t, h.Compare("anything", ""))
}

func TestHashRejectsEmptyPassword(t *testing.T) {
	h := NewHasher(MinBcryptCost)

	_, err := h.Hash("")
	assert.Error(t, err)
}

func TestHasherEnforcesMinimumCost(t *testing.T) {
	h := NewHasher(4)

	hash, err := h.Hash("Correct-Horse7")
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, cost, MinBcryptCost)
}

func TestNeedsRehash(t *testing.T) {
	h := NewHasher(MinBcryptCost)

	low, err := bcrypt.GenerateFromPassword([]byte("Correct-Horse7"), bcrypt.MinCost)
	require.NoError(t, err)

	assert.True(t, h.NeedsRehash(string(low), MinBcryptCost))
	assert.True(t, h.NeedsRehash("garbage", MinBcryptCost))

	current, err := h.Hash("Correct-Horse7")
	require.NoError(t, err)
	assert.False(t, h.NeedsRehash(current, MinBcryptCost))
}

func TestValidatePasswordReportsAllViolations(t *testing.T) {
	err := ValidatePassword("abc")

	var vErr *PasswordValidationError
	require.ErrorAs(t, err, &vErr)

	// too short + missing upper, digit, special
	assert.Len(t, vErr.Errors, 4)
}

func TestValidatePasswordLength(t *testing.T) {
	err := ValidatePassword("Aa1!" + strings.Repeat("x", 130))

	var vErr *PasswordValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Len(t, vErr.Errors, 1)
	assert.Contains(t, vErr.Errors[0], "at most")
}

func TestValidatePasswordRejectsCommonPasswords(t *testing.T) {
	assert.Error(t, ValidatePassword("password"))
	assert.Error(t, ValidatePassword("PASSWORD"))
	assert.Error(t, ValidatePassword("Password123!"))
}

func TestValidatePasswordAcceptsCompliant(t *testing.T) {
	assert.NoError(t, ValidatePassword("Tr0ub4dor&Three!"))
}

func TestGeneratePasswordPassesValidation(t *testing.T) {
	for i := 0; i < 50; i++ {
		pw, err := GeneratePassword(DefaultGeneratedLen)
		require.NoError(t, err)
		assert.Len(t, pw, DefaultGeneratedLen)
		assert.NoError(t, ValidatePassword(pw))
	}
}

func TestGeneratePasswordContainsEveryClass(t *testing.T) {
	pw, err := GeneratePassword(MinPasswordLen)
	require.NoError(t, err)

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSpecial = true
		}
	}
	assert.True(t, hasUpper)
	assert.True(t, hasLower)
	assert.True(t, hasDigit)
	assert.True(t, hasSpecial)
}
