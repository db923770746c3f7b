package artifact

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justapithecus/chartd/types"
)

func TestName(t *testing.T) {
	key := types.KeyOf("query")
	assert.Equal(t, key.String()+".png", Name(key, types.FormatPNG))
	assert.Equal(t, key.String()+".jpg", Name(key, types.FormatJPEG))
}

func TestDiskStore_PutOpenExists(t *testing.T) {
	ctx := t.Context()
	store, err := NewDiskStore(filepath.Join(t.TempDir(), "charts"))
	require.NoError(t, err)

	name := Name(types.KeyOf("q"), types.FormatPNG)

	exists, err := store.Exists(ctx, name)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.Put(ctx, name, []byte("png-bytes")))

	exists, err = store.Exists(ctx, name)
	require.NoError(t, err)
	assert.True(t, exists)

	rc, err := store.Open(ctx, name)
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	path, err := store.Path(name)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(store.Dir(), name), path)
}

func TestDiskStore_Overwrite(t *testing.T) {
	ctx := t.Context()
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "a.png", []byte("first")))
	require.NoError(t, store.Put(ctx, "a.png", []byte("second")))

	path, _ := store.Path("a.png")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestDiskStore_OpenMissing(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Open(t.Context(), "missing.png")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDiskStore_NoTempFilesLeft(t *testing.T) {
	ctx := t.Context()
	dir := t.TempDir()
	store, err := NewDiskStore(dir)
	require.NoError(t, err)

	for _, name := range []string{"a.png", "b.png", "c.png"} {
		require.NoError(t, store.Put(ctx, name, []byte(name)))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".artifact-"), "temp file left behind: %s", e.Name())
	}
	assert.Len(t, entries, 3)
}

func TestDiskStore_CanceledPutWritesNothing(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDiskStore(dir)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	err = store.Put(ctx, "a.png", []byte("data"))
	require.ErrorIs(t, err, context.Canceled)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDiskStore_RejectsEscapingNames(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"", ".", "..", "../x.png", "a/b.png", `a\b.png`} {
		err := store.Put(t.Context(), name, []byte("x"))
		assert.Error(t, err, "name %q should be rejected", name)
	}
}

func TestNewDiskStore_EmptyDir(t *testing.T) {
	_, err := NewDiskStore("")
	assert.Error(t, err)
}
