package version

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), MarkerFileName)

	return NewStore(path, []string{"CMP", "Mods by Max"}, "v0.0.3"), path
}

func TestGetCreatesMarkerOnFirstRun(t *testing.T) {
	store, path := newTestStore(t)

	got, err := store.Get("CMP")
	require.NoError(t, err)
	assert.Empty(t, got, "never-installed package reads as unset")

	// The file now exists with all package keys unset and self seeded.
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var versions map[string]*string
	require.NoError(t, json.Unmarshal(data, &versions))

	require.Contains(t, versions, "CMP")
	assert.Nil(t, versions["CMP"])
	require.Contains(t, versions, "Mods by Max")
	assert.Nil(t, versions["Mods by Max"])
	require.NotNil(t, versions[SelfKey])
	assert.Equal(t, "v0.0.3", *versions[SelfKey])
}

func TestSetAndGetRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)

	require.NoError(t, store.Set("CMP", "1.2.3"))

	got, err := store.Get("CMP")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", got)

	// Other keys are untouched by the read-modify-write cycle.
	other, err := store.Get("Mods by Max")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestSetEmptyClearsVersion(t *testing.T) {
	store, path := newTestStore(t)

	require.NoError(t, store.Set("Mods by Max", "2.0"))
	require.NoError(t, store.Set("Mods by Max", ""))

	got, err := store.Get("Mods by Max")
	require.NoError(t, err)
	assert.Empty(t, got)

	// Uninstall stores an explicit null, not a deleted key.
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var versions map[string]*string
	require.NoError(t, json.Unmarshal(data, &versions))
	require.Contains(t, versions, "Mods by Max")
	assert.Nil(t, versions["Mods by Max"])
}

func TestGetCorruptMarker(t *testing.T) {
	path := filepath.Join(t.TempDir(), MarkerFileName)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	store := NewStore(path, nil, "v0.0.3")

	_, err := store.Get("CMP")
	assert.Error(t, err)
}
