package atomicfile

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteBytesReplacesContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ledger.xlsx")

	require.NoError(t, WriteBytes(path, []byte("v1"), 0o640))
	require.NoError(t, WriteBytes(path, []byte("v2"), 0o640))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())
}

func TestWriteFailureLeavesTargetUntouched(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("original"), 0o640))

	boom := errors.New("boom")
	err := Write(path, 0o640, func(w io.Writer) error {
		_, _ = w.Write([]byte("partial"))
		return boom
	})
	require.ErrorIs(t, err, boom)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must be removed")
}

func TestDirSyncFailureAfterReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o640))

	syncDir = func(string) error { return errors.New("fsync: input/output error") }
	t.Cleanup(func() { syncDir = SyncDir })

	err := WriteBytes(path, []byte("v2"), 0o640)
	require.ErrorIs(t, err, ErrDirSync)
	assert.True(t, Replaced(err))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}

func TestReplaced(t *testing.T) {
	assert.True(t, Replaced(nil))
	assert.False(t, Replaced(errors.New("rename temp file: permission denied")))
}
