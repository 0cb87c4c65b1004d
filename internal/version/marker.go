// Package version tracks which remote version of each package is
// installed locally and looks up the currently published versions.
package version

import (
	"encoding/json"
	"fmt"
	"os"
)

// SelfKey is the marker key for this tool's own executable.
const SelfKey = "self"

// MarkerFileName is the default marker file, kept next to the
// executable in the game directory.
const MarkerFileName = "versions.json"

// Store persists the installed-version marker: a single flat JSON
// object mapping package keys to version strings (null when a package
// was never installed). The whole file is read, modified and truncated
// on every update; concurrent writers are not supported, matching the
// one-session-at-a-time model.
type Store struct {
	path string
	// keys are the package keys seeded (as null) when the file is
	// first created.
	keys []string
	// selfVersion seeds the "self" key on first creation so a fresh
	// install knows which build it is running.
	selfVersion string
}

// NewStore creates a marker store at path seeding keys on first use.
func NewStore(path string, keys []string, selfVersion string) *Store {
	return &Store{path: path, keys: keys, selfVersion: selfVersion}
}

// Get returns the installed version for key, or "" when the key is
// unset or null. Creates the marker file with all package versions
// unset when it does not exist yet.
func (s *Store) Get(key string) (string, error) {
	versions, err := s.load()
	if err != nil {
		return "", err
	}

	v := versions[key]
	if v == nil {
		return "", nil
	}

	return *v, nil
}

// Set records version for key. An empty version stores null (the
// package is no longer installed).
func (s *Store) Set(key, version string) error {
	versions, err := s.load()
	if err != nil {
		return err
	}

	if version == "" {
		versions[key] = nil
	} else {
		versions[key] = &version
	}

	return s.write(versions)
}

// load reads the whole marker file, creating it first if missing.
func (s *Store) load() (map[string]*string, error) {
	if err := s.ensure(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading version marker %s: %w", s.path, err)
	}

	var versions map[string]*string
	if err := json.Unmarshal(data, &versions); err != nil {
		return nil, fmt.Errorf("parsing version marker %s: %w", s.path, err)
	}

	if versions == nil {
		versions = make(map[string]*string)
	}

	return versions, nil
}

// ensure creates the marker file on first run: self at the current
// build, every package key unset.
func (s *Store) ensure() error {
	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("checking version marker %s: %w", s.path, err)
	}

	versions := make(map[string]*string, len(s.keys)+1)
	versions[SelfKey] = &s.selfVersion

	for _, k := range s.keys {
		versions[k] = nil
	}

	return s.write(versions)
}

func (s *Store) write(versions map[string]*string) error {
	data, err := json.Marshal(versions)
	if err != nil {
		return fmt.Errorf("encoding version marker: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("writing version marker %s: %w", s.path, err)
	}

	return nil
}
