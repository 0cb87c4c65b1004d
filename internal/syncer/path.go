package syncer

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// normalizeRemotePath normalizes a listing-relative path: backslashes
// to forward slashes, repeated slashes collapsed, leading/trailing
// slashes trimmed, Unicode NFC applied. Every remote path passes
// through here before touching the filesystem.
func normalizeRemotePath(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")

	var b strings.Builder

	prevSlash := false

	for _, r := range path {
		if r == '/' {
			if prevSlash {
				continue
			}

			prevSlash = true
		} else {
			prevSlash = false
		}

		b.WriteRune(r)
	}

	path = strings.Trim(b.String(), "/")

	return norm.NFC.String(path)
}

// joinUnderRoot maps a normalized remote-relative path into root,
// rejecting traversal. The listing is remote input; a hostile or
// corrupted listing must not be able to address files outside the
// install tree.
func joinUnderRoot(root, relPath string) (string, error) {
	if relPath == "" {
		return "", fmt.Errorf("empty remote path")
	}

	if strings.ContainsRune(relPath, 0) {
		return "", fmt.Errorf("remote path contains null byte: %q", relPath)
	}

	for _, seg := range strings.Split(relPath, "/") {
		if seg == ".." {
			return "", fmt.Errorf("remote path contains ..: %q", relPath)
		}
	}

	abs := filepath.Join(root, filepath.FromSlash(relPath))
	if abs != root && !strings.HasPrefix(abs, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("remote path escapes root: %q", relPath)
	}

	return abs, nil
}

// encodeLocatorPath percent-encodes each segment of a relative path for
// inclusion in a download URL. Asset names legitimately contain '#'
// and spaces, which would otherwise truncate or corrupt the request;
// the local destination path keeps the raw name.
func encodeLocatorPath(relPath string) string {
	segs := strings.Split(relPath, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}

	return strings.Join(segs, "/")
}
