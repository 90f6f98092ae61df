package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/mamadbah2/vitrine/internal/domain/models"
)

const (
	// NonceSize is the GCM nonce prepended to every blob.
	NonceSize = 12
	// TagSize is the GCM authentication tag appended by Seal.
	TagSize = 16
)

// Service performs AES-256-GCM envelope encryption with the device key.
type Service struct {
	keys   KeyStore
	random io.Reader
	logger *zap.Logger
}

// NewService wires an encryption service over the provided key store.
func NewService(keys KeyStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{keys: keys, random: rand.Reader, logger: logger}
}

// IsAvailable reports whether the key store can serve operations.
func (s *Service) IsAvailable() bool {
	return s != nil && s.keys != nil && s.keys.Available()
}

// Encrypt returns nonce || ciphertext || tag using a fresh random nonce.
func (s *Service) Encrypt(plaintext []byte) ([]byte, error) {
	if !s.IsAvailable() {
		return nil, fmt.Errorf("%w: key store not available", models.ErrStorageUnavailable)
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(s.random, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	var blob []byte
	err := s.keys.Use(func(key []byte) error {
		aead, err := newAEAD(key)
		if err != nil {
			return err
		}
		blob = aead.Seal(nonce, nonce, plaintext, nil)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return blob, nil
}

// Decrypt authenticates and opens a blob produced by Encrypt.
func (s *Service) Decrypt(blob []byte) ([]byte, error) {
	if !s.IsAvailable() {
		return nil, fmt.Errorf("%w: key store not available", models.ErrStorageUnavailable)
	}
	if len(blob) < NonceSize+TagSize {
		return nil, fmt.Errorf("%w: blob too short (%d bytes)", models.ErrIntegrity, len(blob))
	}

	var plaintext []byte
	err := s.keys.Use(func(key []byte) error {
		aead, err := newAEAD(key)
		if err != nil {
			return err
		}
		out, err := aead.Open(nil, blob[:NonceSize], blob[NonceSize:], nil)
		if err != nil {
			return fmt.Errorf("%w: %v", models.ErrIntegrity, err)
		}
		plaintext = out
		return nil
	})
	if err != nil {
		return nil, err
	}

	return plaintext, nil
}

// EncryptString encrypts text and base64-encodes the blob.
func (s *Service) EncryptString(plaintext string) (string, error) {
	blob, err := s.Encrypt([]byte(plaintext))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(blob), nil
}

// DecryptString reverses EncryptString.
func (s *Service) DecryptString(encoded string) (string, error) {
	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: invalid base64: %v", models.ErrIntegrity, err)
	}
	plaintext, err := s.Decrypt(blob)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, NonceSize)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return aead, nil
}
