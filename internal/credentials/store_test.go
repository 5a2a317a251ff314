package credentials

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestFileStore_Lifecycle(t *testing.T) {
	root := t.TempDir()
	store, err := NewFileStore(root, "")
	require.NoError(t, err)

	exists, err := store.Exists("tenant-1")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.Ensure("tenant-1"))
	exists, err = store.Exists("tenant-1")
	require.NoError(t, err)
	assert.True(t, exists)

	m, err := store.Load("tenant-1")
	require.NoError(t, err)
	assert.False(t, m.Registered)

	saved := &Material{Registered: true, Data: json.RawMessage(`{"noiseKey":"abc"}`)}
	require.NoError(t, store.Save("tenant-1", saved))

	loaded, err := store.Load("tenant-1")
	require.NoError(t, err)
	assert.True(t, loaded.Registered)
	assert.JSONEq(t, `{"noiseKey":"abc"}`, string(loaded.Data))

	require.NoError(t, store.Remove("tenant-1"))
	exists, err = store.Exists("tenant-1")
	require.NoError(t, err)
	assert.False(t, exists)

	// removing twice is fine
	assert.NoError(t, store.Remove("tenant-1"))
}

func TestFileStore_Encrypted(t *testing.T) {
	root := t.TempDir()
	store, err := NewFileStore(root, testKey)
	require.NoError(t, err)

	require.NoError(t, store.Save("tenant-1", &Material{Registered: true, Data: json.RawMessage(`{"secret":"s3cr3t"}`)}))

	raw, err := os.ReadFile(filepath.Join(root, "tenant-1", credsFile))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "s3cr3t")

	loaded, err := store.Load("tenant-1")
	require.NoError(t, err)
	assert.True(t, loaded.Registered)

	plain, err := NewFileStore(root, "")
	require.NoError(t, err)
	_, err = plain.Load("tenant-1")
	assert.Error(t, err)
}

func TestFileStore_RejectsUnsafeIDs(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "")
	require.NoError(t, err)

	for _, id := range []string{"", "../escape", "a/b"} {
		assert.Error(t, store.Ensure(id), id)
		assert.Error(t, store.Remove(id), id)
	}
}

func TestNewFileStore_BadKey(t *testing.T) {
	_, err := NewFileStore(t.TempDir(), "zz")
	assert.Error(t, err)
}
