// Package gitblob computes git-compatible blob digests for local files.
// The remote repository identifies file content by the SHA-1 of the git
// object header plus content, so comparing this digest against the
// listing's sha field answers "is the local copy identical" without
// downloading anything.
package gitblob

import (
	"crypto/sha1" //nolint:gosec // G505: git blob ids are defined over SHA-1
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
)

// ErrNotExists reports that the path has no local file. This is a normal
// outcome during diffing (a missing file simply needs downloading), not
// a failure, so callers match it with errors.Is rather than logging it.
var ErrNotExists = errors.New("file does not exist")

// HashBytes returns the git blob digest of raw content: the SHA-1 of
// "blob <decimal length>\x00" followed by the content bytes.
func HashBytes(data []byte) string {
	h := sha1.New() //nolint:gosec // G401: matching the remote's content ids
	h.Write([]byte("blob " + strconv.Itoa(len(data)) + "\x00"))
	h.Write(data)

	return hex.EncodeToString(h.Sum(nil))
}

// Hash returns the git blob digest of the file at path. Returns
// ErrNotExists when the path is absent or is a directory. Any other read
// error is returned as-is; callers treat it as a transient local I/O
// anomaly (the entry is considered changed and gets re-downloaded).
//
// The file is read whole: the digest header needs the total length up
// front, and game assets are small enough that streaming with a second
// stat would buy nothing.
func Hash(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotExists
		}

		return "", fmt.Errorf("stat %s: %w", path, err)
	}

	if info.IsDir() {
		return "", ErrNotExists
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: paths come from the diff engine, rooted and normalized
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}

	return HashBytes(data), nil
}
