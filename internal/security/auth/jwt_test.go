package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	tm := NewTokenManager("a-very-long-test-secret-value-1234", "queueline")
	tok, err := tm.GenerateToken("manager-1", "m@example.com", time.Hour)
	require.NoError(t, err)

	claims, err := tm.ValidateToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "manager-1", claims.OwnerID)
	assert.Equal(t, "m@example.com", claims.Email)
	assert.Equal(t, "manager-1", claims.Subject)
}

func TestValidateRejects(t *testing.T) {
	tm := NewTokenManager("secret-one-secret-one-secret-one!", "queueline")
	other := NewTokenManager("secret-two-secret-two-secret-two!", "queueline")
	foreign := NewTokenManager("secret-one-secret-one-secret-one!", "someone-else")

	tok, err := other.GenerateToken("manager-1", "", time.Hour)
	require.NoError(t, err)
	_, err = tm.ValidateToken(tok)
	assert.Error(t, err, "wrong key")

	tok, err = foreign.GenerateToken("manager-1", "", time.Hour)
	require.NoError(t, err)
	_, err = tm.ValidateToken(tok)
	assert.Error(t, err, "wrong issuer")

	past := time.Now().Add(-2 * time.Hour)
	tm.now = func() time.Time { return past }
	tok, err = tm.GenerateToken("manager-1", "", time.Hour)
	require.NoError(t, err)
	tm.now = time.Now
	_, err = tm.ValidateToken(tok)
	assert.Error(t, err, "expired")

	_, err = tm.GenerateToken("", "", time.Hour)
	assert.Error(t, err)
}

func TestExtractToken(t *testing.T) {
	tok, err := ExtractToken("Bearer abc.def")
	require.NoError(t, err)
	assert.Equal(t, "abc.def", tok)

	tok, err = ExtractToken("bearer xyz")
	require.NoError(t, err)
	assert.Equal(t, "xyz", tok)

	for _, h := range []string{"", "Basic abc", "Bearer", "Bearer  "} {
		_, err := ExtractToken(h)
		assert.Error(t, err, h)
	}
}
