package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
)

// contentsPerPage is the page-size ceiling requested from the flat
// contents API. A page shorter than this marks the end of a directory.
const contentsPerPage = 1000

// ListContents lists folder in repo through the flat paginated contents
// API, recursing into subdirectories. Entry paths are relative to
// folder. A folder absent upstream yields an empty listing and no
// error: optional packages legitimately lack some of the configured
// roots.
func (c *Client) ListContents(ctx context.Context, repo, folder, ref string) ([]RemoteEntry, error) {
	rootURL := fmt.Sprintf("%s/repos/%s/contents/%s", c.baseURL, repo, escapePath(folder))

	var entries []RemoteEntry
	if err := c.listContentsDir(ctx, rootURL, ref, "", &entries); err != nil {
		return nil, fmt.Errorf("listing %s/%s: %w", repo, folder, err)
	}

	return entries, nil
}

func (c *Client) listContentsDir(ctx context.Context, dirURL, ref, relDir string, out *[]RemoteEntry) error {
	// Names already returned for this directory. The server repeating
	// the last page must not loop the client forever: when a page's
	// name set is a subset of what was already seen, the listing has
	// stopped advancing.
	seen := make(map[string]struct{})

	for page := 1; ; page++ {
		body, err := c.getJSON(ctx, paginatedURL(dirURL, ref, page))
		if err != nil {
			if errors.Is(err, errAbsent) {
				return nil
			}

			return err
		}

		var items []contentItem
		if err := json.Unmarshal(body, &items); err != nil {
			return fmt.Errorf("decoding listing page %d: %w", page, err)
		}

		if len(items) == 0 {
			return nil
		}

		advanced := false

		for _, item := range items {
			if _, dup := seen[item.Name]; !dup {
				advanced = true
			}

			seen[item.Name] = struct{}{}
		}

		if !advanced {
			c.logger.Warn("listing page repeated, stopping pagination",
				slog.String("url", dirURL), slog.Int("page", page))
			return nil
		}

		for _, item := range items {
			relPath := path.Join(relDir, item.Name)

			switch item.Type {
			case "dir":
				*out = append(*out, RemoteEntry{Path: relPath, Kind: KindDir})

				if err := c.listContentsDir(ctx, item.URL, ref, relPath, out); err != nil {
					return err
				}
			case "file":
				*out = append(*out, RemoteEntry{
					Path:        relPath,
					Kind:        KindFile,
					SHA:         item.SHA,
					Size:        item.Size,
					DownloadURL: item.DownloadURL,
				})
			default:
				// Submodules and symlinks are not content; skip.
				c.logger.Debug("skipping unsupported entry type",
					slog.String("path", relPath), slog.String("type", item.Type))
			}
		}

		if len(items) < contentsPerPage {
			return nil
		}
	}
}

// paginatedURL appends ref and pagination parameters, tolerating
// directory URLs that already carry a query string (the API returns
// child URLs with ?ref=<ref> attached).
func paginatedURL(dirURL, ref string, page int) string {
	u := dirURL

	if !strings.Contains(u, "ref=") {
		if strings.Contains(u, "?") {
			u += "&ref=" + url.QueryEscape(ref)
		} else {
			u += "?ref=" + url.QueryEscape(ref)
		}
	}

	return fmt.Sprintf("%s&page=%d&per_page=%d", u, page, contentsPerPage)
}

// ListTree lists folder in repo through the recursive git trees API in
// a single request. Entry paths are relative to folder. An absent
// folder yields an empty listing and no error.
func (c *Client) ListTree(ctx context.Context, repo, ref, folder string) ([]RemoteEntry, error) {
	treeRef := url.PathEscape(ref + ":" + folder)
	treeURL := fmt.Sprintf("%s/repos/%s/git/trees/%s?recursive=1", c.baseURL, repo, treeRef)

	body, err := c.getJSON(ctx, treeURL)
	if err != nil {
		if errors.Is(err, errAbsent) {
			return nil, nil
		}

		return nil, fmt.Errorf("listing tree %s/%s: %w", repo, folder, err)
	}

	var tree treeResponse
	if err := json.Unmarshal(body, &tree); err != nil {
		return nil, fmt.Errorf("decoding tree %s/%s: %w", repo, folder, err)
	}

	if tree.Truncated {
		// The server caps very large recursive listings. Entries past
		// the cap would silently never sync, so make it loud.
		c.logger.Warn("tree listing truncated by server, some entries may be missed",
			slog.String("repo", repo), slog.String("folder", folder))
	}

	entries := make([]RemoteEntry, 0, len(tree.Tree))

	for _, item := range tree.Tree {
		switch item.Type {
		case "tree":
			entries = append(entries, RemoteEntry{Path: item.Path, Kind: KindDir})
		case "blob":
			entries = append(entries, RemoteEntry{
				Path: item.Path,
				Kind: KindFile,
				SHA:  item.SHA,
				Size: item.Size,
			})
		default:
			c.logger.Debug("skipping unsupported tree entry type",
				slog.String("path", item.Path), slog.String("type", item.Type))
		}
	}

	return entries, nil
}

// LatestRelease fetches the latest-release feed entry for repo.
func (c *Client) LatestRelease(ctx context.Context, repo string) (*Release, error) {
	body, err := c.getJSON(ctx, fmt.Sprintf("%s/repos/%s/releases/latest", c.baseURL, repo))
	if err != nil {
		if errors.Is(err, errAbsent) {
			return nil, fmt.Errorf("no releases published for %s", repo)
		}

		return nil, err
	}

	var release Release
	if err := json.Unmarshal(body, &release); err != nil {
		return nil, fmt.Errorf("decoding release feed for %s: %w", repo, err)
	}

	return &release, nil
}

// escapePath percent-encodes each segment of a repo-relative path for
// use in a request URL, leaving the separators intact.
func escapePath(p string) string {
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}

	return strings.Join(segs, "/")
}
