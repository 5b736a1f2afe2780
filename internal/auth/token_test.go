package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustManager(t *testing.T) *TokenManager {
	t.Helper()
	m, err := NewTokenManager("test-secret")
	require.NoError(t, err)
	return m
}

func TestGenerateDecode_RoundTrip(t *testing.T) {
	m := mustManager(t)

	for _, userID := range []string{"u1", "agent-007", "user with spaces", "用户"} {
		token, err := m.Generate(userID)
		require.NoError(t, err)

		got, err := m.Decode(token)
		require.NoError(t, err)
		assert.Equal(t, userID, got)
	}
}

func TestDecode_RejectsFlippedSignatureBit(t *testing.T) {
	m := mustManager(t)
	token, err := m.Generate("alice")
	require.NoError(t, err)

	encoded, sig, ok := strings.Cut(token, ".")
	require.True(t, ok)

	// Flip one hex character in the signature.
	flipped := []byte(sig)
	if flipped[0] == 'a' {
		flipped[0] = 'b'
	} else {
		flipped[0] = 'a'
	}
	tampered := encoded + "." + string(flipped)

	_, err = m.Decode(tampered)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestDecode_RejectsMalformedTokens(t *testing.T) {
	m := mustManager(t)

	for _, tok := range []string{
		"",
		"no-dot-here",
		"abc.def",                  // signature too short
		"abc." + strings.Repeat("0", 16), // wrong signature
	} {
		_, err := m.Decode(tok)
		assert.ErrorIs(t, err, ErrInvalidToken, "token %q should be rejected", tok)
	}
}

func TestGenerate_RejectsEmptyUserID(t *testing.T) {
	m := mustManager(t)
	_, err := m.Generate("")
	assert.Error(t, err)
}

func TestNewTokenManager_RejectsEmptySecret(t *testing.T) {
	_, err := NewTokenManager("")
	assert.Error(t, err)
}

func TestDecode_DifferentSecretsDoNotCrossValidate(t *testing.T) {
	m1, err := NewTokenManager("secret-one")
	require.NoError(t, err)
	m2, err := NewTokenManager("secret-two")
	require.NoError(t, err)

	token, err := m1.Generate("bob")
	require.NoError(t, err)

	_, err = m2.Decode(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
