package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func contentFile(name, path, sha string, size int64) map[string]any {
	return map[string]any{
		"name": name, "path": path, "type": "file",
		"sha": sha, "size": size,
		"download_url": "https://raw.example.com/" + path,
	}
}

func TestListContentsPagination(t *testing.T) {
	// Page 1 is a full page, page 2 is short: the fetcher must request
	// exactly two pages and stop on the short one.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		assert.Equal(t, "1000", r.URL.Query().Get("per_page"))

		var items []map[string]any

		switch page {
		case 1:
			for i := 0; i < contentsPerPage; i++ {
				name := fmt.Sprintf("f%04d.bin", i)
				items = append(items, contentFile(name, "Maps/"+name, "sha"+strconv.Itoa(i), 10))
			}
		case 2:
			items = append(items, contentFile("last.bin", "Maps/last.bin", "shalast", 10))
		default:
			t.Errorf("unexpected page %d requested", page)
		}

		writeJSON(t, w, items)
	}))
	defer server.Close()

	c, _ := newTestClient(server)

	entries, err := c.ListContents(context.Background(), "owner/repo", "Maps", "main")
	require.NoError(t, err)
	assert.Len(t, entries, contentsPerPage+1)
	assert.Equal(t, "last.bin", entries[len(entries)-1].Path)
}

func TestListContentsRepeatedPageTerminates(t *testing.T) {
	// A server stuck returning the same full page must not loop the
	// fetcher forever: a page whose name set is a subset of everything
	// already seen ends the iteration.
	var requests int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++

		var items []map[string]any
		for i := 0; i < contentsPerPage; i++ {
			name := fmt.Sprintf("f%04d.bin", i)
			items = append(items, contentFile(name, "Maps/"+name, "sha"+strconv.Itoa(i), 10))
		}

		writeJSON(t, w, items)
	}))
	defer server.Close()

	c, _ := newTestClient(server)

	entries, err := c.ListContents(context.Background(), "owner/repo", "Maps", "main")
	require.NoError(t, err)
	assert.Len(t, entries, contentsPerPage)
	assert.Equal(t, 2, requests, "second identical page ends pagination")
}

func TestListContentsRecursesIntoDirectories(t *testing.T) {
	var server *httptest.Server

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/owner/repo/contents/Maps", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, []map[string]any{
			{
				"name": "sub", "path": "Maps/sub", "type": "dir",
				"url": server.URL + "/subdir?ref=main",
			},
			contentFile("top.bin", "Maps/top.bin", "sha-top", 4),
		})
	})
	mux.HandleFunc("/subdir", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, []map[string]any{
			contentFile("nested.bin", "Maps/sub/nested.bin", "sha-nested", 8),
		})
	})

	server = httptest.NewServer(mux)
	defer server.Close()

	c, _ := newTestClient(server)

	entries, err := c.ListContents(context.Background(), "owner/repo", "Maps", "main")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, RemoteEntry{Path: "sub", Kind: KindDir}, entries[0])
	assert.Equal(t, "sub/nested.bin", entries[1].Path)
	assert.Equal(t, KindFile, entries[1].Kind)
	assert.Equal(t, "sha-nested", entries[1].SHA)
	assert.Equal(t, "top.bin", entries[2].Path)
}

func TestListContentsMissingFolderIsEmpty(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	c, _ := newTestClient(server)

	entries, err := c.ListContents(context.Background(), "owner/repo", "Missions", "main")
	require.NoError(t, err, "a folder absent upstream is not an error")
	assert.Empty(t, entries)
}

func TestListTree(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.RawPath+r.URL.Path, "main:Maps")
		assert.Equal(t, "1", r.URL.Query().Get("recursive"))

		writeJSON(t, w, map[string]any{
			"sha": "root-sha",
			"tree": []map[string]any{
				{"path": "sub", "type": "tree", "sha": "t1"},
				{"path": "sub/a.dta", "type": "blob", "sha": "b1", "size": 100},
				{"path": "b #2.dta", "type": "blob", "sha": "b2", "size": 200},
			},
			"truncated": false,
		})
	}))
	defer server.Close()

	c, _ := newTestClient(server)

	entries, err := c.ListTree(context.Background(), "owner/repo", "main", "Maps")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, RemoteEntry{Path: "sub", Kind: KindDir}, entries[0])
	assert.Equal(t, RemoteEntry{Path: "sub/a.dta", Kind: KindFile, SHA: "b1", Size: 100}, entries[1])
	assert.Equal(t, RemoteEntry{Path: "b #2.dta", Kind: KindFile, SHA: "b2", Size: 200}, entries[2])
}

func TestListTreeMissingFolderIsEmpty(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	c, _ := newTestClient(server)

	entries, err := c.ListTree(context.Background(), "owner/repo", "main", "Gone")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLatestRelease(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/owner/repo/releases/latest", r.URL.Path)

		writeJSON(t, w, map[string]any{
			"tag_name": "v1.4.0",
			"assets": []map[string]any{
				{"name": "mod_installer.exe", "browser_download_url": "https://dl.example.com/mod_installer.exe"},
			},
		})
	}))
	defer server.Close()

	c, _ := newTestClient(server)

	release, err := c.LatestRelease(context.Background(), "owner/repo")
	require.NoError(t, err)
	assert.Equal(t, "v1.4.0", release.TagName)
	require.Len(t, release.Assets, 1)
	assert.Equal(t, "mod_installer.exe", release.Assets[0].Name)
}

func TestEscapePath(t *testing.T) {
	assert.Equal(t, "cmp_optional/Civil%20Uniform%20Mod/Maps", escapePath("cmp_optional/Civil Uniform Mod/Maps"))
}
