package version

import (
	"context"
	"fmt"
	"regexp"

	"github.com/darkmatro/modsync/internal/config"
	"github.com/darkmatro/modsync/internal/github"
)

// readmeVersionPattern extracts the published version from the
// package's README ("... vX.Y.Z ...").
var readmeVersionPattern = regexp.MustCompile(`v([\d.]+)`)

// RemoteFetcher is the subset of the API client needed for version
// lookups.
type RemoteFetcher interface {
	RawFile(ctx context.Context, url string) ([]byte, error)
	LatestRelease(ctx context.Context, repo string) (*github.Release, error)
}

// FetchRemote looks up the currently published version of pkg using its
// configured version source.
func FetchRemote(ctx context.Context, fetcher RemoteFetcher, pkg *config.Package) (string, error) {
	switch pkg.VersionSource {
	case config.VersionFromReadme:
		return fetchFromReadme(ctx, fetcher, pkg)
	case config.VersionFromRelease:
		release, err := fetcher.LatestRelease(ctx, pkg.Repo)
		if err != nil {
			return "", fmt.Errorf("fetching latest release for %s: %w", pkg.Repo, err)
		}

		return release.TagName, nil
	default:
		return "", fmt.Errorf("package %q: unknown version source %q", pkg.Key, pkg.VersionSource)
	}
}

func fetchFromReadme(ctx context.Context, fetcher RemoteFetcher, pkg *config.Package) (string, error) {
	body, err := fetcher.RawFile(ctx, pkg.RawBaseURL+"/README.md")
	if err != nil {
		return "", fmt.Errorf("fetching README for %s: %w", pkg.Repo, err)
	}

	m := readmeVersionPattern.FindSubmatch(body)
	if m == nil {
		return "", fmt.Errorf("no version string found in README for %s", pkg.Repo)
	}

	return string(m[1]), nil
}
