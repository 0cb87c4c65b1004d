package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/darkmatro/modsync/internal/config"
	"github.com/darkmatro/modsync/internal/github"
)

// Lister fetches remote folder listings. Implemented by the github
// client.
type Lister interface {
	ListContents(ctx context.Context, repo, folder, ref string) ([]github.RemoteEntry, error)
	ListTree(ctx context.Context, repo, ref, folder string) ([]github.RemoteEntry, error)
}

// ContentClient is the full remote surface the syncer needs.
type ContentClient interface {
	Lister
	Downloader
}

// MarkerStore persists the installed-version marker for a package.
type MarkerStore interface {
	Set(key, version string) error
}

// State is the lifecycle position of one sync session.
type State int

const (
	StateIdle State = iota
	StateScanning
	StateTransferring
	StatePersisting
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateTransferring:
		return "transferring"
	case StatePersisting:
		return "persisting"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Syncer drives a whole session: fetch listings for every configured
// folder root, diff them into one combined worklist, run a single
// transfer pass, then persist the version marker. The marker is only
// written after the entire worklist drained without error.
type Syncer struct {
	client     ContentClient
	hasher     Hasher
	differ     *Differ
	executor   *Executor
	markers    MarkerStore
	logger     *slog.Logger
	installDir string

	state State
}

// New creates a Syncer rooted at installDir.
func New(client ContentClient, hasher Hasher, markers MarkerStore, reporter Reporter, logger *slog.Logger, installDir string) *Syncer {
	return &Syncer{
		client:     client,
		hasher:     hasher,
		differ:     NewDiffer(hasher, logger),
		executor:   NewExecutor(client, reporter, logger),
		markers:    markers,
		logger:     logger,
		installDir: installDir,
		state:      StateIdle,
	}
}

// State returns the session's current lifecycle position.
func (s *Syncer) State() State {
	return s.state
}

func (s *Syncer) setState(state State) {
	s.logger.Debug("session state", slog.String("state", state.String()))
	s.state = state
}

func (s *Syncer) fail(err error) error {
	s.setState(StateFailed)
	return err
}

// source is one remote origin contributing folders to a package sync.
type source struct {
	repo    string
	ref     string
	rawBase string
	folders []string
	extras  []string
	// treeFolder reports whether a folder uses the recursive tree
	// listing strategy.
	treeFolder func(folder string) bool
}

// packageSources expands a package (and optionally its variant) into
// the remote origins to scan.
func packageSources(pkg *config.Package, withVariant bool) []source {
	sources := []source{{
		repo:       pkg.Repo,
		ref:        pkg.Ref,
		rawBase:    pkg.RawBaseURL,
		folders:    pkg.Folders,
		extras:     pkg.ExtraPaths,
		treeFolder: pkg.ListsFolderAsTree,
	}}

	if withVariant && pkg.Variant != nil {
		v := pkg.Variant
		sources = append(sources, source{
			repo:    v.Repo,
			ref:     v.Ref,
			rawBase: v.RawBaseURL,
			folders: v.Folders,
			// Variant sources share the package's strategy.
			treeFolder: pkg.ListsFolderAsTree,
		})
	}

	return sources
}

// Install synchronizes pkg into the install directory and records
// remoteVersion in the marker on success. An empty worklist still
// records the marker: already-in-sync is itself the current version.
func (s *Syncer) Install(ctx context.Context, pkg *config.Package, remoteVersion string, withVariant bool) error {
	s.logger.Info("installing package", slog.String("package", pkg.Key), slog.String("version", remoteVersion))
	s.setState(StateScanning)

	wl := &Worklist{}

	for _, src := range packageSources(pkg, withVariant) {
		for _, folder := range src.folders {
			if err := s.scanFolder(ctx, src, folder, ModeInstall, wl); err != nil {
				return s.fail(err)
			}
		}

		for _, extra := range src.extras {
			if err := s.scanExtra(ctx, src, extra, wl); err != nil {
				return s.fail(err)
			}
		}
	}

	s.setState(StateTransferring)

	if wl.Empty() {
		s.logger.Info("no new or updated files", slog.String("package", pkg.Key))
	} else {
		s.logger.Info("downloading files",
			slog.String("package", pkg.Key),
			slog.Int("files", len(wl.Downloads)),
			slog.Int64("bytes", wl.DownloadBytes()),
		)

		if err := s.executor.Download(ctx, wl.Downloads); err != nil {
			return s.fail(fmt.Errorf("transferring %s: %w", pkg.Key, err))
		}
	}

	s.setState(StatePersisting)

	if err := s.markers.Set(pkg.Key, remoteVersion); err != nil {
		return s.fail(fmt.Errorf("persisting version marker for %s: %w", pkg.Key, err))
	}

	s.setState(StateDone)
	s.logger.Info("synchronization complete",
		slog.String("package", pkg.Key), slog.String("version", remoteVersion))

	return nil
}

// Uninstall removes pkg's files whose content matches the remote
// listing, then clears the package's version marker. Locally modified
// files never match and are left in place.
func (s *Syncer) Uninstall(ctx context.Context, pkg *config.Package) error {
	if !pkg.Uninstall {
		return fmt.Errorf("package %q does not support uninstall", pkg.Key)
	}

	s.logger.Info("uninstalling package", slog.String("package", pkg.Key))
	s.setState(StateScanning)

	wl := &Worklist{}

	// Variant folders are always scanned on uninstall: whether the
	// variant was installed is answered by the hash match, not by
	// remembering the install-time choice.
	for _, src := range packageSources(pkg, true) {
		for _, folder := range src.folders {
			localRoot := filepath.Join(s.installDir, folder)
			if _, err := os.Stat(localRoot); os.IsNotExist(err) {
				continue
			}

			if err := s.scanFolder(ctx, src, folder, ModeUninstall, wl); err != nil {
				return s.fail(err)
			}
		}
	}

	s.setState(StateTransferring)

	if wl.Empty() {
		s.logger.Info("no files to delete", slog.String("package", pkg.Key))
		s.setState(StateDone)

		return nil
	}

	s.logger.Info("deleting files",
		slog.String("package", pkg.Key), slog.Int("files", len(wl.Deletions)))

	if err := s.executor.Delete(wl.Deletions, s.hasher); err != nil {
		return s.fail(fmt.Errorf("deleting %s files: %w", pkg.Key, err))
	}

	s.setState(StatePersisting)

	if err := s.markers.Set(pkg.Key, ""); err != nil {
		return s.fail(fmt.Errorf("clearing version marker for %s: %w", pkg.Key, err))
	}

	s.setState(StateDone)
	s.logger.Info("package uninstalled", slog.String("package", pkg.Key))

	return nil
}

// scanFolder fetches one folder root's listing and merges its diff
// into wl.
func (s *Syncer) scanFolder(ctx context.Context, src source, folder string, mode Mode, wl *Worklist) error {
	s.logger.Info("scanning folder", slog.String("repo", src.repo), slog.String("folder", folder))

	localRoot := filepath.Join(s.installDir, folder)

	if mode == ModeInstall {
		if _, err := os.Stat(localRoot); os.IsNotExist(err) {
			s.logger.Info("creating folder", slog.String("path", localRoot))
		}

		if err := os.MkdirAll(localRoot, dirPerm); err != nil {
			return fmt.Errorf("creating folder %s: %w", localRoot, err)
		}
	}

	var (
		entries []github.RemoteEntry
		err     error
	)

	if src.treeFolder(folder) {
		entries, err = s.client.ListTree(ctx, src.repo, src.ref, folder)
	} else {
		entries, err = s.client.ListContents(ctx, src.repo, folder, src.ref)
	}

	if err != nil {
		return fmt.Errorf("scanning %s/%s: %w", src.repo, folder, err)
	}

	folderWl, err := s.differ.Diff(ctx, entries, localRoot, src.rawBase+"/"+encodeLocatorPath(folder), mode)
	if err != nil {
		return fmt.Errorf("diffing %s/%s: %w", src.repo, folder, err)
	}

	wl.Merge(folderWl)

	return nil
}

// scanExtra fetches one nested extra path (always via the contents
// strategy) and merges its install diff into wl.
func (s *Syncer) scanExtra(ctx context.Context, src source, extra string, wl *Worklist) error {
	s.logger.Info("scanning extra path", slog.String("repo", src.repo), slog.String("path", extra))

	localRoot := filepath.Join(s.installDir, filepath.FromSlash(extra))
	if err := os.MkdirAll(localRoot, dirPerm); err != nil {
		return fmt.Errorf("creating folder %s: %w", localRoot, err)
	}

	entries, err := s.client.ListContents(ctx, src.repo, extra, src.ref)
	if err != nil {
		return fmt.Errorf("scanning %s/%s: %w", src.repo, extra, err)
	}

	extraWl, err := s.differ.Diff(ctx, entries, localRoot, src.rawBase+"/"+encodeLocatorPath(extra), ModeInstall)
	if err != nil {
		return fmt.Errorf("diffing %s/%s: %w", src.repo, extra, err)
	}

	wl.Merge(extraWl)

	return nil
}
