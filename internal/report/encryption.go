package report

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keySize          = 32 // AES-256
	saltSize         = 32
	pbkdf2Iterations = 100000
	encryptedExt     = ".enc"
)

// Encryptor seals report artifacts with AES-256-GCM. The key is
// derived from a passphrase with PBKDF2; a fresh salt and nonce are
// generated per artifact and ride in front of the ciphertext, so an
// artifact decrypts with nothing but the passphrase.
type Encryptor struct {
	passphrase []byte
}

// NewEncryptor creates an encryptor for the given passphrase.
func NewEncryptor(passphrase string) (*Encryptor, error) {
	if passphrase == "" {
		return nil, NewEncryptionError("encryption passphrase is empty", nil)
	}
	return &Encryptor{passphrase: []byte(passphrase)}, nil
}

// Encrypt seals data. The output layout is salt || nonce || ciphertext.
func (e *Encryptor) Encrypt(data []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, NewEncryptionError("failed to generate salt", err)
	}

	gcm, err := e.cipherFor(salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, NewEncryptionError("failed to generate nonce", err)
	}

	sealed := gcm.Seal(nonce, nonce, data, nil)
	return append(salt, sealed...), nil
}

// Decrypt opens an artifact produced by Encrypt.
func (e *Encryptor) Decrypt(data []byte) ([]byte, error) {
	if len(data) < saltSize {
		return nil, NewEncryptionError("encrypted artifact is truncated", nil)
	}
	salt, sealed := data[:saltSize], data[saltSize:]

	gcm, err := e.cipherFor(salt)
	if err != nil {
		return nil, err
	}

	if len(sealed) < gcm.NonceSize() {
		return nil, NewEncryptionError("encrypted artifact is truncated", nil)
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, NewEncryptionError("failed to decrypt artifact", err)
	}
	return plaintext, nil
}

func (e *Encryptor) cipherFor(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(e.passphrase, salt, pbkdf2Iterations, keySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, NewEncryptionError("failed to create cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, NewEncryptionError("failed to create GCM mode", err)
	}
	return gcm, nil
}
