package github

// EntryKind distinguishes files from directories in a remote listing.
type EntryKind int

const (
	// KindFile is a downloadable blob with a content digest and size.
	KindFile EntryKind = iota

	// KindDir is a directory that must exist locally before any file
	// under it is written.
	KindDir
)

// RemoteEntry is one entry of a remote folder listing, path relative to
// the listed root. Immutable once produced; scoped to one fetch.
type RemoteEntry struct {
	// Path is the entry's path relative to the listed folder root,
	// forward-slash separated.
	Path string
	// Kind tags the entry as file or directory.
	Kind EntryKind
	// SHA is the git blob digest of the content (files only).
	SHA string
	// Size is the declared content size in bytes (files only).
	Size int64
	// DownloadURL is the raw content locator when the listing API
	// provides one (contents strategy). Empty for tree-strategy entries,
	// whose locator is built from the package's raw base URL.
	DownloadURL string
}

// contentItem is one element of a flat contents-API listing.
type contentItem struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Type        string `json:"type"`
	SHA         string `json:"sha"`
	Size        int64  `json:"size"`
	URL         string `json:"url"`
	DownloadURL string `json:"download_url"`
}

// treeResponse is a recursive git-trees API response.
type treeResponse struct {
	SHA       string     `json:"sha"`
	Tree      []treeItem `json:"tree"`
	Truncated bool       `json:"truncated"`
}

type treeItem struct {
	Path string `json:"path"`
	Type string `json:"type"`
	SHA  string `json:"sha"`
	Size int64  `json:"size"`
}

// Release is the latest-release feed entry used for version lookups and
// self-update.
type Release struct {
	TagName string         `json:"tag_name"`
	Assets  []ReleaseAsset `json:"assets"`
}

// ReleaseAsset is one downloadable artifact attached to a release.
type ReleaseAsset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}
