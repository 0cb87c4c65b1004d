// Package selfupdate replaces the running executable with the latest
// published release build.
package selfupdate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/darkmatro/modsync/internal/config"
	"github.com/darkmatro/modsync/internal/github"
	"github.com/darkmatro/modsync/internal/version"
)

// ReleaseClient is the remote surface the updater needs. Implemented by
// the github client.
type ReleaseClient interface {
	LatestRelease(ctx context.Context, repo string) (*github.Release, error)
	Download(ctx context.Context, url string, w io.Writer, report func(n int)) error
}

// MarkerStore reads and records the running build's version.
type MarkerStore interface {
	Get(key string) (string, error)
	Set(key, version string) error
}

// Updater checks the release feed and stages a replacement executable.
type Updater struct {
	client  ReleaseClient
	markers MarkerStore
	logger  *slog.Logger
	cfg     config.SelfUpdate
}

// New creates an updater against the configured release feed.
func New(client ReleaseClient, markers MarkerStore, logger *slog.Logger, cfg config.SelfUpdate) *Updater {
	return &Updater{
		client:  client,
		markers: markers,
		logger:  logger,
		cfg:     cfg,
	}
}

// Run checks for a newer release and applies it. It returns true when a
// replacement was staged and the process should exit so the swap can
// complete. Any failure is reported but never fatal: an update that
// cannot happen right now must not block a sync session.
func (u *Updater) Run(ctx context.Context) bool {
	current, err := u.markers.Get(version.SelfKey)
	if err != nil {
		u.logger.Warn("reading current build version", slog.String("error", err.Error()))
		return false
	}

	release, err := u.client.LatestRelease(ctx, u.cfg.Repo)
	if err != nil {
		u.logger.Warn("checking for updates", slog.String("error", err.Error()))
		return false
	}

	if release == nil || release.TagName == "" || release.TagName == current {
		u.logger.Debug("no update available", slog.String("current", current))
		return false
	}

	asset := findAsset(release, u.cfg.AssetName)
	if asset == nil {
		u.logger.Warn("release has no matching asset",
			slog.String("tag", release.TagName), slog.String("asset", u.cfg.AssetName))
		return false
	}

	u.logger.Info("updating to new version",
		slog.String("from", current), slog.String("to", release.TagName))

	if err := u.apply(ctx, asset.BrowserDownloadURL, release.TagName); err != nil {
		u.logger.Warn("applying update", slog.String("error", err.Error()))
		return false
	}

	return true
}

func findAsset(release *github.Release, name string) *github.ReleaseAsset {
	for i := range release.Assets {
		if release.Assets[i].Name == name {
			return &release.Assets[i]
		}
	}

	return nil
}

// apply downloads the new build next to the current executable and
// swaps it in.
func (u *Updater) apply(ctx context.Context, url, tag string) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locating current executable: %w", err)
	}

	staged := exe + ".new"

	if err := u.download(ctx, url, staged); err != nil {
		return err
	}

	if err := swap(exe, staged); err != nil {
		os.Remove(staged)
		return err
	}

	if err := u.markers.Set(version.SelfKey, tag); err != nil {
		return fmt.Errorf("recording new build version: %w", err)
	}

	return nil
}

func (u *Updater) download(ctx context.Context, url, dest string) error {
	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o755) //nolint:gosec // G302: must be executable
	if err != nil {
		return fmt.Errorf("creating %s: %w", dest, err)
	}

	if err := u.client.Download(ctx, url, f, func(int) {}); err != nil {
		f.Close()
		os.Remove(dest)

		return fmt.Errorf("downloading update: %w", err)
	}

	return f.Close()
}

// swap replaces the running executable with the staged file. On
// Windows the running image cannot be overwritten, only renamed aside,
// so the old build is parked as .old and cleaned up on the next start.
// Elsewhere a plain rename suffices.
func swap(exe, staged string) error {
	if runtime.GOOS != "windows" {
		if err := os.Rename(staged, exe); err != nil {
			return fmt.Errorf("replacing executable: %w", err)
		}

		return nil
	}

	old := exe + ".old"
	os.Remove(old)

	if err := os.Rename(exe, old); err != nil {
		return fmt.Errorf("parking old executable: %w", err)
	}

	if err := os.Rename(staged, exe); err != nil {
		// Try to restore the original so the install still runs.
		if restoreErr := os.Rename(old, exe); restoreErr != nil {
			return fmt.Errorf("installing new executable (restore also failed: %v): %w", restoreErr, err)
		}

		return fmt.Errorf("installing new executable: %w", err)
	}

	return nil
}

// CleanupStaleBuild removes the parked .old executable left by a
// previous update, and on Windows relaunch helpers from older builds.
func CleanupStaleBuild(logger *slog.Logger) {
	exe, err := os.Executable()
	if err != nil {
		return
	}

	for _, stale := range []string{exe + ".old", filepath.Join(filepath.Dir(exe), "update.bat")} {
		if err := os.Remove(stale); err == nil {
			logger.Debug("removed stale update file", slog.String("path", stale))
		}
	}
}

// Relaunch starts the (now replaced) executable as a detached process.
// The caller exits right after.
func Relaunch(logger *slog.Logger) {
	exe, err := os.Executable()
	if err != nil {
		logger.Warn("locating executable for relaunch", slog.String("error", err.Error()))
		return
	}

	cmd := exec.Command(exe) //nolint:gosec // G204: our own binary
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	if err := cmd.Start(); err != nil {
		logger.Warn("relaunching", slog.String("error", err.Error()))
	}
}
