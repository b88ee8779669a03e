package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealer_RoundTrip(t *testing.T) {
	s, err := NewSealer("correct horse", "model-api-key")
	require.NoError(t, err)

	sealed, err := s.Seal("sk-live-123")
	require.NoError(t, err)
	assert.True(t, IsSealed(sealed))
	assert.NotContains(t, sealed, "sk-live-123")

	again, err := s.Seal("sk-live-123")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonce must differ per seal")

	plain, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "sk-live-123", plain)
}

func TestSealer_KeysAreBoundToSecretAndPurpose(t *testing.T) {
	a, err := NewSealer("secret-a", "model-api-key")
	require.NoError(t, err)
	b, err := NewSealer("secret-b", "model-api-key")
	require.NoError(t, err)
	c, err := NewSealer("secret-a", "other")
	require.NoError(t, err)

	sealed, err := a.Seal("value")
	require.NoError(t, err)

	_, err = b.Open(sealed)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
	_, err = c.Open(sealed)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestSealer_RejectsBadInput(t *testing.T) {
	_, err := NewSealer("", "model-api-key")
	assert.ErrorIs(t, err, ErrInvalidKey)

	s, err := NewSealer("secret", "model-api-key")
	require.NoError(t, err)

	_, err = s.Open("plain text")
	assert.ErrorIs(t, err, ErrInvalidCipherText)
	_, err = s.Open("v1:%%%")
	assert.ErrorIs(t, err, ErrInvalidCipherText)
	_, err = s.Open("v1:AAAA")
	assert.ErrorIs(t, err, ErrInvalidCipherText)

	sealed, err := s.Seal("value")
	require.NoError(t, err)
	tampered := sealed[:len(sealed)-4] + strings.Repeat("A", 4)
	if tampered != sealed {
		_, err = s.Open(tampered)
		assert.Error(t, err)
	}
}
