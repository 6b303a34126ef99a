package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateToken(t *testing.T) {
	config := Config{JWTSecret: "test-secret", TokenExpiry: time.Hour}

	token, err := GenerateToken(config, "user-123", "alice", "user")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := ValidateToken(config.JWTSecret, token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "user", claims.Role)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	config := Config{JWTSecret: "test-secret", TokenExpiry: time.Hour}

	token, err := GenerateToken(config, "user-123", "alice", "user")
	require.NoError(t, err)

	_, err = ValidateToken("other-secret", token)
	assert.Error(t, err)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	config := Config{JWTSecret: "test-secret", TokenExpiry: -time.Minute}

	token, err := GenerateToken(config, "user-123", "alice", "user")
	require.NoError(t, err)

	_, err = ValidateToken(config.JWTSecret, token)
	assert.Error(t, err)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	_, err := ValidateToken("test-secret", "not.a.token")
	assert.Error(t, err)
}
