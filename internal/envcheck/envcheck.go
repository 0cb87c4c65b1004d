// Package envcheck validates the runtime environment before a sync
// session starts and cleans up after uninstalls.
package envcheck

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// probeTimeout bounds the connectivity probe. A working connection
// answers a HEAD request well within a second; anything slower is as
// good as offline for bulk downloads.
const probeTimeout = time.Second

// probeURL is the host every listing and download goes through.
const probeURL = "https://github.com"

// CheckConnectivity sends a HEAD request to the content host and
// returns an error when it cannot be reached. Any HTTP response counts
// as reachable, the status code is irrelevant here.
func CheckConnectivity(ctx context.Context, client *http.Client) error {
	return probe(ctx, client, probeURL)
}

func probe(ctx context.Context, client *http.Client, url string) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return fmt.Errorf("building connectivity probe: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("no internet connection: %w", err)
	}

	resp.Body.Close()

	return nil
}

// CheckGameDir verifies that dir looks like a game installation by the
// presence of the game executable.
func CheckGameDir(dir, executable string) error {
	path := filepath.Join(dir, executable)

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s not found in %s: place this tool in the game installation folder", executable, dir)
		}

		return fmt.Errorf("checking for %s: %w", executable, err)
	}

	if info.IsDir() {
		return fmt.Errorf("%s is a directory, expected the game executable", path)
	}

	return nil
}

// PruneEmptyDirs removes empty directories under each of the named
// folder roots, deepest first, including a root that ends up empty
// itself. Run after an uninstall so folders that only ever held
// package files do not linger.
func PruneEmptyDirs(root string, folders []string, logger *slog.Logger) {
	for _, folder := range folders {
		pruneTree(filepath.Join(root, folder), logger)
	}
}

func pruneTree(root string, logger *slog.Logger) {
	var dirs []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}

			return err
		}

		if d.IsDir() {
			dirs = append(dirs, path)
		}

		return nil
	})
	if err != nil {
		logger.Warn("walking folder for cleanup", slog.String("path", root), slog.String("error", err.Error()))
		return
	}

	// Deepest first, so a parent emptied by its children's removal is
	// itself removed in the same pass.
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			continue
		}

		if err := os.Remove(dir); err != nil {
			logger.Warn("removing empty folder", slog.String("path", dir), slog.String("error", err.Error()))
			continue
		}

		logger.Debug("removed empty folder", slog.String("path", dir))
	}
}
