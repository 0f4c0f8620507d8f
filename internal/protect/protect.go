// Package protect provides reversible encryption for indexer credentials at rest.
package protect

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// protectedPrefix marks encrypted values in persisted configuration files.
	protectedPrefix = "enc:v1:"

	pbkdf2Iterations = 100000
	keyLength        = 32 // AES-256
	saltLength       = 16
)

var (
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	ErrDecryptionFailed  = errors.New("decryption failed")
)

// Protector encrypts and decrypts secret configuration values.
// Decrypt passes unprotected values through unchanged, so user-submitted
// plaintext and persisted ciphertext can flow through the same load path.
type Protector interface {
	Protect(plaintext string) (string, error)
	Unprotect(value string) (string, error)
}

// Service is the AES-256-GCM Protector implementation. The key is derived
// from an instance secret kept next to the configuration files.
type Service struct {
	key []byte
}

// New creates a protector with a key derived from the given secret and salt.
func New(secret string, salt []byte) *Service {
	key := pbkdf2.Key([]byte(secret), salt, pbkdf2Iterations, keyLength, sha256.New)
	return &Service{key: key}
}

// NewFromDir loads or creates the instance secret and salt under dir.
func NewFromDir(dir string) (*Service, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}
	secretPath := filepath.Join(dir, "instance.key")

	data, err := os.ReadFile(secretPath)
	if errors.Is(err, os.ErrNotExist) {
		data = make([]byte, keyLength+saltLength)
		if _, err := io.ReadFull(rand.Reader, data); err != nil {
			return nil, err
		}
		if err := os.WriteFile(secretPath, data, 0o600); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}
	if len(data) < keyLength+saltLength {
		return nil, errors.New("instance key file is truncated")
	}

	secret := base64.StdEncoding.EncodeToString(data[:keyLength])
	return New(secret, data[keyLength:keyLength+saltLength]), nil
}

// SigningKey derives a separate key for HMAC signing uses, so signed tokens
// and encrypted secrets never share key material.
func (s *Service) SigningKey() []byte {
	h := sha256.Sum256(append([]byte("sign:"), s.key...))
	return h[:]
}

// Protect encrypts a plaintext value. Empty input stays empty.
func (s *Service) Protect(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	block, err := aes.NewCipher(s.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return protectedPrefix + base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Unprotect decrypts a value produced by Protect. Values without the
// protected prefix are returned as-is.
func (s *Service) Unprotect(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	if !IsProtected(value) {
		return value, nil
	}

	data, err := base64.StdEncoding.DecodeString(value[len(protectedPrefix):])
	if err != nil {
		return "", ErrInvalidCiphertext
	}

	block, err := aes.NewCipher(s.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", ErrInvalidCiphertext
	}

	plaintext, err := gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// IsProtected checks whether a value carries the encryption prefix.
func IsProtected(value string) bool {
	return len(value) >= len(protectedPrefix) && value[:len(protectedPrefix)] == protectedPrefix
}
