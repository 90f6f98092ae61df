package security

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/vitrine/internal/domain/models"
)

func newTestService(t *testing.T) (*Service, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keys", "device.key")
	return NewService(NewFileKeyStore(path, nil), nil), path
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)
	require.True(t, svc.IsAvailable())

	plaintext := []byte(`{"date":"19/10/2026","items":[]}`)

	blob, err := svc.Encrypt(plaintext)
	require.NoError(t, err)
	assert.Len(t, blob, NonceSize+len(plaintext)+TagSize)
	assert.False(t, bytes.Contains(blob, plaintext))

	out, err := svc.Decrypt(blob)
	require.NoError(t, err)
	assert.Equal(t, plaintext, out)
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	svc, _ := newTestService(t)

	a, err := svc.Encrypt([]byte("same"))
	require.NoError(t, err)
	b, err := svc.Encrypt([]byte("same"))
	require.NoError(t, err)

	assert.NotEqual(t, a[:NonceSize], b[:NonceSize])
	assert.NotEqual(t, a, b)
}

func TestDecryptRejectsTamperedBlob(t *testing.T) {
	svc, _ := newTestService(t)

	blob, err := svc.Encrypt([]byte("mapa de produção"))
	require.NoError(t, err)

	for _, idx := range []int{0, NonceSize, len(blob) - 1} {
		tampered := append([]byte(nil), blob...)
		tampered[idx] ^= 0xFF

		_, err := svc.Decrypt(tampered)
		assert.ErrorIs(t, err, models.ErrIntegrity, "byte %d", idx)
	}

	_, err = svc.Decrypt(blob[:NonceSize+TagSize-1])
	assert.ErrorIs(t, err, models.ErrIntegrity)
}

func TestDecryptWithDifferentKeyFails(t *testing.T) {
	a, _ := newTestService(t)
	b, _ := newTestService(t)

	blob, err := a.Encrypt([]byte("secret"))
	require.NoError(t, err)

	_, err = b.Decrypt(blob)
	assert.ErrorIs(t, err, models.ErrIntegrity)
}

func TestKeyPersistsAcrossReload(t *testing.T) {
	svc, path := newTestService(t)

	encoded, err := svc.EncryptString("olá")
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	reloaded := NewService(NewFileKeyStore(path, nil), nil)
	out, err := reloaded.DecryptString(encoded)
	require.NoError(t, err)
	assert.Equal(t, "olá", out)
}

func TestInvalidKeyFileIsUnavailable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.key")
	require.NoError(t, os.WriteFile(path, []byte("short"), 0o600))

	store := NewFileKeyStore(path, nil)
	svc := NewService(store, nil)

	assert.False(t, svc.IsAvailable())
	assert.ErrorIs(t, store.Err(), models.ErrStorageUnavailable)

	_, err := svc.Encrypt([]byte("x"))
	assert.ErrorIs(t, err, models.ErrStorageUnavailable)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("short"), content, "existing key file must not be replaced")
}

func TestDecryptStringRejectsInvalidBase64(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.DecryptString("not base64!")
	assert.ErrorIs(t, err, models.ErrIntegrity)
}
