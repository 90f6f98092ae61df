package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/awnumar/memguard"
	"go.uber.org/zap"

	"github.com/mamadbah2/vitrine/internal/domain/models"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// KeyStore holds the device key. Callers never receive the key itself, only
// a scoped view of it for the duration of one operation.
type KeyStore interface {
	Available() bool
	Use(fn func(key []byte) error) error
}

// FileKeyStore keeps the key sealed in a memguard enclave, persisted to a
// 0600 key file so ciphertext survives restarts.
type FileKeyStore struct {
	path   string
	logger *zap.Logger

	mu      sync.Mutex
	enclave *memguard.Enclave
	err     error
}

// NewFileKeyStore loads the key at path, creating it when the file does not exist.
// A key file that exists but cannot be used leaves the store unavailable.
func NewFileKeyStore(path string, logger *zap.Logger) *FileKeyStore {
	if logger == nil {
		logger = zap.NewNop()
	}

	ks := &FileKeyStore{path: path, logger: logger}
	ks.err = ks.load()
	if ks.err != nil {
		logger.Warn("key store unavailable", zap.String("path", path), zap.Error(ks.err))
	}
	return ks
}

func (k *FileKeyStore) load() error {
	if k.path == "" {
		return fmt.Errorf("%w: key file path is empty", models.ErrStorageUnavailable)
	}

	data, err := os.ReadFile(k.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return k.generate()
	case err != nil:
		return fmt.Errorf("%w: read key file: %v", models.ErrStorageUnavailable, err)
	}

	if len(data) != KeySize {
		memguard.WipeBytes(data)
		return fmt.Errorf("%w: key file has %d bytes, want %d", models.ErrStorageUnavailable, len(data), KeySize)
	}

	// NewBufferFromBytes wipes data.
	k.enclave = memguard.NewBufferFromBytes(data).Seal()
	return nil
}

func (k *FileKeyStore) generate() error {
	if err := os.MkdirAll(filepath.Dir(k.path), 0o700); err != nil {
		return fmt.Errorf("%w: create key directory: %v", models.ErrStorageUnavailable, err)
	}

	buf := memguard.NewBufferRandom(KeySize)

	f, err := os.OpenFile(k.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		buf.Destroy()
		return fmt.Errorf("%w: create key file: %v", models.ErrStorageUnavailable, err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		_ = os.Remove(k.path)
		buf.Destroy()
		return fmt.Errorf("%w: write key file: %v", models.ErrStorageUnavailable, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(k.path)
		buf.Destroy()
		return fmt.Errorf("%w: sync key file: %v", models.ErrStorageUnavailable, err)
	}
	if err := f.Close(); err != nil {
		buf.Destroy()
		return fmt.Errorf("%w: close key file: %v", models.ErrStorageUnavailable, err)
	}

	k.enclave = buf.Seal()
	k.logger.Info("generated new device key", zap.String("path", k.path))
	return nil
}

// Available reports whether the key could be loaded.
func (k *FileKeyStore) Available() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.err == nil && k.enclave != nil
}

// Err returns the reason the store is unavailable, if any.
func (k *FileKeyStore) Err() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.err
}

// Use opens the enclave into a locked buffer, calls fn and destroys the buffer.
func (k *FileKeyStore) Use(fn func(key []byte) error) error {
	k.mu.Lock()
	enclave, loadErr := k.enclave, k.err
	k.mu.Unlock()

	if loadErr != nil {
		return loadErr
	}
	if enclave == nil {
		return fmt.Errorf("%w: key not loaded", models.ErrStorageUnavailable)
	}

	buf, err := enclave.Open()
	if err != nil {
		return fmt.Errorf("%w: open key enclave: %v", models.ErrStorageUnavailable, err)
	}
	defer buf.Destroy()

	return fn(buf.Bytes())
}
