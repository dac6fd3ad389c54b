package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCipherRoundTrip(t *testing.T) {
	c, err := NewCipher("test-secret")
	require.NoError(t, err)

	cases := []string{
		"",
		"a@b.com",
		"héllo wörld",
		"日本語のテキスト",
		"emoji 🚨 and \n newline \t tab",
	}
	for _, plain := range cases {
		sealed, err := c.Encrypt(plain)
		require.NoError(t, err, plain)
		if plain == "" {
			assert.Equal(t, "", sealed)
		} else {
			assert.NotEqual(t, plain, sealed)
		}

		got, err := c.Decrypt(sealed)
		require.NoError(t, err, plain)
		assert.Equal(t, plain, got)
	}
}

func TestCipherNonDeterministic(t *testing.T) {
	c, err := NewCipher("test-secret")
	require.NoError(t, err)

	a, err := c.Encrypt("same input")
	require.NoError(t, err)
	b, err := c.Encrypt("same input")
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "GCM nonce must randomize ciphertext")
}

func TestDecryptFailsClosed(t *testing.T) {
	c, err := NewCipher("test-secret")
	require.NoError(t, err)

	_, err = c.Decrypt("not json")
	assert.ErrorIs(t, err, ErrDecryptFailed)

	// tampered ciphertext
	sealed, err := c.Encrypt("sensitive")
	require.NoError(t, err)
	other, err := NewCipher("different-secret")
	require.NoError(t, err)
	_, err = other.Decrypt(sealed)
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestHashDeterministic(t *testing.T) {
	c, err := NewCipher("test-secret")
	require.NoError(t, err)

	assert.Equal(t, c.Hash("a@b.com"), c.Hash("a@b.com"))
	assert.NotEqual(t, c.Hash("a@b.com"), c.Hash("c@d.com"))

	other, err := NewCipher("different-secret")
	require.NoError(t, err)
	assert.NotEqual(t, c.Hash("a@b.com"), other.Hash("a@b.com"))
}

func TestNewCipherRequiresSecret(t *testing.T) {
	_, err := NewCipher("")
	assert.ErrorIs(t, err, ErrKeyMissing)
}
