// Package hashcache caches git blob digests of local files in a bbolt
// database so repeated scans of an unchanged tree do not re-read every
// asset. A cached digest is only trusted while the file's modification
// time and size are unchanged.
package hashcache

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/darkmatro/modsync/internal/gitblob"
)

const (
	// cacheFilePerm is the permission mode for the cache database file.
	cacheFilePerm = fs.FileMode(0o600)

	// cacheOpenTimeout is the maximum time to wait for the bolt file lock.
	cacheOpenTimeout = 5 * time.Second
)

var digestsBucket = []byte("digests")

// entry is the cached record for one path.
type entry struct {
	MTime  int64  `json:"mtime"`
	Size   int64  `json:"size"`
	Digest string `json:"digest"`
}

// Cache is a digest cache backed by a bbolt database. Safe for
// concurrent use; the hash worker pool hits it from multiple goroutines.
type Cache struct {
	db *bolt.DB
}

// Open opens (or creates) the cache database at path.
func Open(path string) (*Cache, error) {
	db, err := bolt.Open(path, cacheFilePerm, &bolt.Options{Timeout: cacheOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening hash cache: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(digestsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing hash cache: %w", err)
	}

	return &Cache{db: db}, nil
}

// Close releases the database file lock.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Hash returns the git blob digest of the file at path, serving from
// the cache when mtime and size are unchanged. Returns
// gitblob.ErrNotExists for absent paths, like the uncached hasher.
func (c *Cache) Hash(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", gitblob.ErrNotExists
		}

		return "", fmt.Errorf("stat %s: %w", path, err)
	}

	if info.IsDir() {
		return "", gitblob.ErrNotExists
	}

	mtime := info.ModTime().UnixNano()
	size := info.Size()

	if digest, ok := c.lookup(path, mtime, size); ok {
		return digest, nil
	}

	digest, err := gitblob.Hash(path)
	if err != nil {
		return "", err
	}

	// A store failure degrades to re-hashing next run; the digest
	// itself is still good.
	if err := c.store(path, entry{MTime: mtime, Size: size, Digest: digest}); err != nil {
		return digest, nil //nolint:nilerr // cache write failure is not a hash failure
	}

	return digest, nil
}

func (c *Cache) lookup(path string, mtime, size int64) (string, bool) {
	var digest string

	err := c.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(digestsBucket).Get([]byte(path))
		if raw == nil {
			return nil
		}

		var e entry
		if err := json.Unmarshal(raw, &e); err != nil {
			// Corrupt record: treat as a miss, it gets rewritten.
			return nil
		}

		if e.MTime == mtime && e.Size == size {
			digest = e.Digest
		}

		return nil
	})
	if err != nil {
		return "", false
	}

	return digest, digest != ""
}

func (c *Cache) store(path string, e entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}

	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(digestsBucket).Put([]byte(path), raw)
	})
}

// Forget drops the cached record for path. Called after deleting a
// local file so a stale digest cannot satisfy a future lookup.
func (c *Cache) Forget(path string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(digestsBucket).Delete([]byte(path))
	})
}
