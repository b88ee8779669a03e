package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

var (
	ErrInvalidKey        = errors.New("crypto: invalid encryption key")
	ErrEncryptionFailed  = errors.New("crypto: encryption failed")
	ErrDecryptionFailed  = errors.New("crypto: decryption failed")
	ErrInvalidCipherText = errors.New("crypto: invalid cipher text")
)

// sealedPrefix marks values produced by Sealer.Seal.
const sealedPrefix = "v1:"

// deriveKey expands secret into a 32-byte key bound to purpose.
func deriveKey(secret, purpose string) ([]byte, error) {
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte("nanobee/"+purpose))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, ErrInvalidKey
	}
	return key, nil
}

// Sealer encrypts short secrets with AES-256-GCM under a key derived from a
// configured secret. Different purposes never share a key.
type Sealer struct {
	aead cipher.AEAD
}

func NewSealer(secret, purpose string) (*Sealer, error) {
	if secret == "" {
		return nil, ErrInvalidKey
	}
	key, err := deriveKey(secret, purpose)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, ErrInvalidKey
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, ErrInvalidKey
	}
	return &Sealer{aead: gcm}, nil
}

// Seal encrypts plainText and returns a prefixed base64 string.
func (s *Sealer) Seal(plainText string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", ErrEncryptionFailed
	}
	cipherText := s.aead.Seal(nonce, nonce, []byte(plainText), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(cipherText), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed string) (string, error) {
	if !IsSealed(sealed) {
		return "", ErrInvalidCipherText
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(sealed, sealedPrefix))
	if err != nil {
		return "", ErrInvalidCipherText
	}

	nonceSize := s.aead.NonceSize()
	if len(data) < nonceSize {
		return "", ErrInvalidCipherText
	}
	nonce, cipherData := data[:nonceSize], data[nonceSize:]
	plainText, err := s.aead.Open(nil, nonce, cipherData, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plainText), nil
}

func IsSealed(s string) bool {
	return strings.HasPrefix(s, sealedPrefix)
}
