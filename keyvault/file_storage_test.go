package keyvault

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileStorage(t *testing.T, dir, passphrase string) *FileStorage {
	t.Helper()
	fs, err := NewFileStorage(dir, passphrase)
	require.NoError(t, err)
	// Keep scrypt cheap in tests
	fs.scryptN = 1 << 10
	return fs
}

func TestFileStorage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fs := newTestFileStorage(t, dir, "correct horse")

	key := []byte("0123456789abcdef0123456789abcdef")
	require.NoError(t, fs.Store(ctx, "device", key))

	info, err := os.Stat(filepath.Join(dir, "device.key"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	raw, err := os.ReadFile(filepath.Join(dir, "device.key"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), string(key))

	loaded, err := fs.Load(ctx, "device")
	require.NoError(t, err)
	assert.Equal(t, key, loaded)
}

func TestFileStorage_Missing(t *testing.T) {
	fs := newTestFileStorage(t, t.TempDir(), "pw")
	_, err := fs.Load(context.Background(), "device")
	assert.ErrorIs(t, err, ErrNotStored)

	// Deleting something that is not there is not an error
	assert.NoError(t, fs.Delete(context.Background(), "device"))
}

func TestFileStorage_WrongPassphrase(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, newTestFileStorage(t, dir, "right").Store(ctx, "device", []byte("secret")))

	_, err := newTestFileStorage(t, dir, "wrong").Load(ctx, "device")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotStored)
}

func TestFileStorage_InvalidServiceTag(t *testing.T) {
	fs := newTestFileStorage(t, t.TempDir(), "pw")
	err := fs.Store(context.Background(), "../escape", []byte("x"))
	assert.Error(t, err)
}

func TestVault_SurvivesRestartWithFileStorage(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first := New(newTestFileStorage(t, dir, "pw"), "")
	pub, err := first.GetOrCreatePublicKey(ctx)
	require.NoError(t, err)

	second := New(newTestFileStorage(t, dir, "pw"), "")
	again, err := second.GetOrCreatePublicKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, pub, again)

	// Wrong passphrase must fail closed, never look like an empty vault
	locked := New(newTestFileStorage(t, dir, "nope"), "")
	_, err = locked.GetOrCreatePublicKey(ctx)
	assert.ErrorIs(t, err, ErrKeyStorageFailure)
}
