package syncer

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeRemotePath(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Maps/a.dta", "Maps/a.dta"},
		{"backslashes", `Maps\sub\a.dta`, "Maps/sub/a.dta"},
		{"repeated slashes", "Maps//sub///a.dta", "Maps/sub/a.dta"},
		{"leading and trailing", "/Maps/a.dta/", "Maps/a.dta"},
		{"nfc normalization", "Café.dta", "Café.dta"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeRemotePath(tt.in))
		})
	}
}

func TestJoinUnderRoot(t *testing.T) {
	root := t.TempDir()

	abs, err := joinUnderRoot(root, "Maps/a.dta")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "Maps", "a.dta"), abs)

	_, err = joinUnderRoot(root, "../escape.dta")
	assert.Error(t, err)

	_, err = joinUnderRoot(root, "a/../../escape.dta")
	assert.Error(t, err)

	_, err = joinUnderRoot(root, "a\x00b")
	assert.Error(t, err)

	_, err = joinUnderRoot(root, "")
	assert.Error(t, err)
}

func TestEncodeLocatorPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"map #12.dta", "map%20%2312.dta"},
		{"sub/map #12.dta", "sub/map%20%2312.dta"},
		{"plain.dta", "plain.dta"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, encodeLocatorPath(tt.in))
	}
}
