package users

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	password := "testpassword123"

	hash, err := HashPassword(password)
	require.NoError(t, err)
	assert.NotEmpty(t, hash)
	assert.NotEqual(t, password, hash)

	// Verify the hash is valid bcrypt format (starts with $2a$)
	assert.True(t, len(hash) > 0)
	assert.Equal(t, "$2a$", hash[:4])
}

func TestCheckPassword(t *testing.T) {
	password := "correctpassword"

	hash, err := HashPassword(password)
	require.NoError(t, err)

	// Correct password should match
	assert.True(t, CheckPassword(password, hash))

	// Incorrect password should not match
	assert.False(t, CheckPassword("wrongpassword", hash))

	// Empty password should not match
	assert.False(t, CheckPassword("", hash))
}

func TestValidatePassword(t *testing.T) {
	// One character short of the minimum is rejected
	err := ValidatePassword("seven77")
	assert.ErrorIs(t, err, ErrPasswordTooShort)

	// Exactly the minimum length passes
	assert.NoError(t, ValidatePassword("eight888"))

	assert.ErrorIs(t, ValidatePassword(""), ErrPasswordTooShort)
}

func TestCheckPasswordWithSeededAdminHash(t *testing.T) {
	// The first migration seeds the admin account with this hash,
	// generated from the password "changeme"
	seededHash := "$2a$10$uejoNCSLZ9YkKOZriLlSGeg0pm/nuGVS3nRuSPyYuk/Z7HJHKBhGO"

	// The documented bootstrap password must match
	assert.True(t, CheckPassword("changeme", seededHash))

	// Nearby guesses must not
	assert.False(t, CheckPassword("admin", seededHash))
	assert.False(t, CheckPassword("changeme!", seededHash))
}
