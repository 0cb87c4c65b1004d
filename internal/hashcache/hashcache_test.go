package hashcache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkmatro/modsync/internal/gitblob"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()

	c, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	return c
}

func TestHashMatchesUncachedHasher(t *testing.T) {
	c := openTestCache(t)

	path := filepath.Join(t.TempDir(), "a.bin")
	require.NoError(t, os.WriteFile(path, []byte("hello\n"), 0o644))

	want, err := gitblob.Hash(path)
	require.NoError(t, err)

	got, err := c.Hash(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// Second call is a cache hit and must agree.
	again, err := c.Hash(path)
	require.NoError(t, err)
	assert.Equal(t, want, again)
}

func TestHashInvalidatesOnChange(t *testing.T) {
	c := openTestCache(t)

	path := filepath.Join(t.TempDir(), "a.bin")
	require.NoError(t, os.WriteFile(path, []byte("one"), 0o644))

	first, err := c.Hash(path)
	require.NoError(t, err)

	// Rewrite with different content and a different mtime.
	require.NoError(t, os.WriteFile(path, []byte("two!"), 0o644))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	second, err := c.Hash(path)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	want, err := gitblob.Hash(path)
	require.NoError(t, err)
	assert.Equal(t, want, second)
}

func TestHashMissingFile(t *testing.T) {
	c := openTestCache(t)

	_, err := c.Hash(filepath.Join(t.TempDir(), "missing.bin"))
	assert.ErrorIs(t, err, gitblob.ErrNotExists)
}

func TestForget(t *testing.T) {
	c := openTestCache(t)

	path := filepath.Join(t.TempDir(), "a.bin")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))

	_, err := c.Hash(path)
	require.NoError(t, err)

	require.NoError(t, c.Forget(path))

	// After forgetting, a deleted file reports not-exists even though a
	// stale record could have answered.
	require.NoError(t, os.Remove(path))

	_, err = c.Hash(path)
	assert.ErrorIs(t, err, gitblob.ErrNotExists)
}
