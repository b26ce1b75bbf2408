package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptor_RoundTrip(t *testing.T) {
	enc, err := NewEncryptor("correct horse battery staple")
	require.NoError(t, err)

	plaintext := []byte(`{"run_id":"2c1f4a","state":"completed"}`)
	sealed, err := enc.Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "completed", "ciphertext should not leak plaintext")

	opened, err := enc.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestEncryptor_Decrypt_WrongPassphrase(t *testing.T) {
	enc, err := NewEncryptor("right passphrase")
	require.NoError(t, err)
	sealed, err := enc.Encrypt([]byte("payload"))
	require.NoError(t, err)

	wrong, err := NewEncryptor("wrong passphrase")
	require.NoError(t, err)
	_, err = wrong.Decrypt(sealed)
	assert.Error(t, err)
}

func TestEncryptor_Decrypt_TamperedArtifact(t *testing.T) {
	enc, err := NewEncryptor("passphrase")
	require.NoError(t, err)
	sealed, err := enc.Encrypt([]byte("payload"))
	require.NoError(t, err)

	sealed[len(sealed)-1] ^= 0xff
	_, err = enc.Decrypt(sealed)
	assert.Error(t, err)
}

func TestEncryptor_Decrypt_TruncatedArtifact(t *testing.T) {
	enc, err := NewEncryptor("passphrase")
	require.NoError(t, err)

	for _, data := range [][]byte{nil, []byte("short"), make([]byte, saltSize+4)} {
		_, err := enc.Decrypt(data)
		assert.Error(t, err, "%d bytes should not decrypt", len(data))
	}
}

func TestEncryptor_Encrypt_FreshSaltAndNonce(t *testing.T) {
	enc, err := NewEncryptor("passphrase")
	require.NoError(t, err)

	first, err := enc.Encrypt([]byte("payload"))
	require.NoError(t, err)
	second, err := enc.Encrypt([]byte("payload"))
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "same payload should never seal identically")
}

func TestNewEncryptor_RequiresPassphrase(t *testing.T) {
	_, err := NewEncryptor("")
	assert.Error(t, err)
}
