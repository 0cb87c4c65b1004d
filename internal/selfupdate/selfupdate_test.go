package selfupdate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/darkmatro/modsync/internal/config"
	"github.com/darkmatro/modsync/internal/github"
)

type fakeReleaseClient struct {
	release *github.Release
	err     error
}

func (c *fakeReleaseClient) LatestRelease(context.Context, string) (*github.Release, error) {
	return c.release, c.err
}

func (c *fakeReleaseClient) Download(context.Context, string, io.Writer, func(n int)) error {
	return errors.New("not expected in this test")
}

type fakeMarkers struct {
	current string
	sets    map[string]string
}

func (m *fakeMarkers) Get(string) (string, error) { return m.current, nil }

func (m *fakeMarkers) Set(key, version string) error {
	if m.sets == nil {
		m.sets = make(map[string]string)
	}

	m.sets[key] = version

	return nil
}

func newTestUpdater(client *fakeReleaseClient, markers *fakeMarkers) *Updater {
	return New(client, markers, slog.New(slog.NewTextHandler(io.Discard, nil)), config.SelfUpdate{
		Repo:      "owner/tool",
		AssetName: "tool.exe",
	})
}

func TestRunUpToDate(t *testing.T) {
	client := &fakeReleaseClient{release: &github.Release{TagName: "v2.0"}}
	markers := &fakeMarkers{current: "v2.0"}

	assert.False(t, newTestUpdater(client, markers).Run(context.Background()))
	assert.Empty(t, markers.sets)
}

func TestRunNoReleasePublished(t *testing.T) {
	client := &fakeReleaseClient{release: nil}

	assert.False(t, newTestUpdater(client, &fakeMarkers{}).Run(context.Background()))
}

func TestRunFeedUnreachable(t *testing.T) {
	client := &fakeReleaseClient{err: errors.New("rate limited")}

	// An unreachable feed never blocks the session.
	assert.False(t, newTestUpdater(client, &fakeMarkers{current: "v1.0"}).Run(context.Background()))
}

func TestRunMissingAsset(t *testing.T) {
	client := &fakeReleaseClient{release: &github.Release{
		TagName: "v2.0",
		Assets:  []github.ReleaseAsset{{Name: "other.zip", BrowserDownloadURL: "https://example.com/other.zip"}},
	}}

	assert.False(t, newTestUpdater(client, &fakeMarkers{current: "v1.0"}).Run(context.Background()))
}

func TestFindAsset(t *testing.T) {
	release := &github.Release{Assets: []github.ReleaseAsset{
		{Name: "a.zip"},
		{Name: "tool.exe", BrowserDownloadURL: "https://example.com/tool.exe"},
	}}

	asset := findAsset(release, "tool.exe")
	if assert.NotNil(t, asset) {
		assert.Equal(t, "https://example.com/tool.exe", asset.BrowserDownloadURL)
	}

	assert.Nil(t, findAsset(release, "absent.bin"))
}
