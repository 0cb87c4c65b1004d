package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/darkmatro/modsync/internal/gitblob"
	"github.com/darkmatro/modsync/internal/github"
)

// Hasher computes the content digest of a local file. Implemented by
// gitblob (direct) and hashcache (bbolt-cached).
type Hasher interface {
	Hash(path string) (string, error)
}

// HasherFunc adapts a plain function to the Hasher interface.
type HasherFunc func(path string) (string, error)

// Hash implements Hasher.
func (f HasherFunc) Hash(path string) (string, error) { return f(path) }

// dirPerm is the permission mode for directories materialized under the
// install root.
const dirPerm = os.FileMode(0o755)

// Differ classifies remote entries against the local tree.
type Differ struct {
	hasher  Hasher
	logger  *slog.Logger
	workers int
}

// NewDiffer creates a diff engine. Hashing is CPU- and I/O-bound, so
// the worker pool is sized to the available cores, independent of the
// download concurrency.
func NewDiffer(hasher Hasher, logger *slog.Logger) *Differ {
	return &Differ{
		hasher:  hasher,
		logger:  logger,
		workers: runtime.GOMAXPROCS(0),
	}
}

// fileCheck carries one file entry through the parallel hash phase.
type fileCheck struct {
	entry   github.RemoteEntry
	dest    string
	locator string
	include bool
}

// Diff walks entries against localRoot and returns the worklist for
// mode. Directory entries are materialized locally in both modes. File
// entries are hashed on the worker pool; rawBaseURL (which already
// includes the folder) builds download locators for entries the
// listing did not provide one for.
//
// Invariant: a file appears in the install worklist exactly when no
// local file at the mapped path matches the remote digest, and in the
// uninstall worklist exactly when the local file provably matches.
func (d *Differ) Diff(ctx context.Context, entries []github.RemoteEntry, localRoot, rawBaseURL string, mode Mode) (*Worklist, error) {
	wl := &Worklist{}

	checks := make([]*fileCheck, 0, len(entries))

	for _, entry := range entries {
		rel := normalizeRemotePath(entry.Path)

		abs, err := joinUnderRoot(localRoot, rel)
		if err != nil {
			// A hostile path in the listing is skipped loudly, not
			// followed.
			d.logger.Warn("skipping unsafe remote path", slog.String("path", entry.Path), slog.String("error", err.Error()))
			continue
		}

		switch entry.Kind {
		case github.KindDir:
			if _, err := os.Stat(abs); os.IsNotExist(err) {
				wl.CreatedDirs = append(wl.CreatedDirs, abs)
			}

			if err := os.MkdirAll(abs, dirPerm); err != nil {
				return nil, fmt.Errorf("creating directory %s: %w", abs, err)
			}

		case github.KindFile:
			locator := entry.DownloadURL
			if locator == "" {
				locator = rawBaseURL + "/" + encodeLocatorPath(rel)
			}

			checks = append(checks, &fileCheck{entry: entry, dest: abs, locator: locator})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)

	for _, check := range checks {
		check := check
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			check.include = d.classify(check, mode)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Results are assembled in listing order regardless of hash
	// completion order.
	for _, check := range checks {
		if !check.include {
			continue
		}

		switch mode {
		case ModeInstall:
			wl.Downloads = append(wl.Downloads, TransferTask{
				SourceURL:    check.locator,
				DestPath:     check.dest,
				ExpectedSize: check.entry.Size,
			})
		case ModeUninstall:
			wl.Deletions = append(wl.Deletions, DeletionTask{
				TargetPath: check.dest,
				Size:       check.entry.Size,
			})
		}
	}

	return wl, nil
}

// classify decides whether a file entry belongs in the worklist.
func (d *Differ) classify(check *fileCheck, mode Mode) bool {
	digest, err := d.hasher.Hash(check.dest)

	switch mode {
	case ModeInstall:
		switch {
		case err == nil:
			return digest != check.entry.SHA
		case errors.Is(err, gitblob.ErrNotExists):
			return true
		default:
			// Unreadable existing file: treat as changed so the
			// download replaces whatever is there. Corruption must not
			// halt the sync.
			d.logger.Warn("hashing failed, scheduling re-download",
				slog.String("path", check.dest), slog.String("error", err.Error()))
			return true
		}

	case ModeUninstall:
		switch {
		case err == nil:
			// Only remove what is provably ours.
			return digest == check.entry.SHA
		case errors.Is(err, gitblob.ErrNotExists):
			return false
		default:
			d.logger.Warn("hashing failed, leaving file alone",
				slog.String("path", check.dest), slog.String("error", err.Error()))
			return false
		}
	}

	return false
}
