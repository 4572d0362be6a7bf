package auth

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateResetToken(t *testing.T) {
	token, digest, err := generateResetToken()
	require.NoError(t, err)

	raw, err := hex.DecodeString(token)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(raw)*8, 160)

	assert.Equal(t, hashResetToken(token), digest)
	assert.NotEqual(t, token, digest)
	assert.Len(t, digest, 64)
}

func TestGenerateResetToken_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		token, _, err := generateResetToken()
		require.NoError(t, err)
		require.False(t, seen[token])
		seen[token] = true
	}
}
