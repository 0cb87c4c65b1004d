// Package config holds all runtime configuration: environment-based
// settings and the package manifest describing each remote content
// package. URLs, folder lists, and listing strategies live in the
// manifest rather than in code, so one engine serves every package.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Strategy selects how a remote folder is listed.
type Strategy string

const (
	// StrategyContents pages through the flat contents API, recursing
	// into directory entries.
	StrategyContents Strategy = "contents"

	// StrategyTree fetches a single recursive git tree listing.
	StrategyTree Strategy = "tree"
)

// VersionSource selects where a package's published version comes from.
type VersionSource string

const (
	// VersionFromReadme extracts a v-prefixed version from the raw README.
	VersionFromReadme VersionSource = "readme-regex"

	// VersionFromRelease reads the latest release tag.
	VersionFromRelease VersionSource = "release-tag"
)

// Variant is an optional secondary source merged into a package install
// when the user opts in (the localized file set of the mod pack).
type Variant struct {
	Prompt     string   `yaml:"prompt"`
	Repo       string   `yaml:"repo"`
	Ref        string   `yaml:"ref"`
	RawBaseURL string   `yaml:"raw_base_url"`
	Folders    []string `yaml:"folders"`
}

// Package describes one remote content package.
type Package struct {
	// Key identifies the package in the version marker file.
	Key string `yaml:"key"`
	// Name is the user-facing display name.
	Name string `yaml:"name"`
	// Repo is the hosted repository as "owner/name".
	Repo string `yaml:"repo"`
	// Ref is the branch or ref the listing and raw URLs resolve against.
	Ref string `yaml:"ref"`
	// RawBaseURL is the base for raw content downloads; the folder and
	// entry path are appended to it.
	RawBaseURL string `yaml:"raw_base_url"`
	// Strategy is the default listing strategy for this package's folders.
	Strategy Strategy `yaml:"strategy"`
	// TreeFolders forces the recursive tree strategy for the named
	// folders regardless of Strategy. The primary package lists its
	// largest folder this way to dodge contents-API pagination.
	TreeFolders []string `yaml:"tree_folders"`
	// Folders are the top-level folder roots mirrored locally.
	Folders []string `yaml:"folders"`
	// ExtraPaths are additional nested paths synced alongside Folders
	// (always via the contents strategy, as they are full paths rather
	// than top-level roots).
	ExtraPaths []string `yaml:"extra_paths"`
	// VersionSource selects the remote version lookup.
	VersionSource VersionSource `yaml:"version_source"`
	// Uninstall marks the package as removable (only files whose content
	// matches the remote are ever deleted).
	Uninstall bool `yaml:"uninstall"`
	// Variant is the optional opt-in secondary source.
	Variant *Variant `yaml:"variant"`
}

// ListsFolderAsTree reports whether folder should be fetched with the
// recursive tree strategy.
func (p *Package) ListsFolderAsTree(folder string) bool {
	if p.Strategy == StrategyTree {
		return true
	}

	for _, f := range p.TreeFolders {
		if f == folder {
			return true
		}
	}

	return false
}

// manifest is the on-disk shape of packages.yaml.
type manifest struct {
	Packages []Package `yaml:"packages"`
}

// SelfUpdate points at the release feed this tool updates itself from.
type SelfUpdate struct {
	Repo      string `yaml:"repo"`
	AssetName string `yaml:"asset_name"`
}

// Config holds all environment-based configuration plus the loaded
// package manifest.
type Config struct {
	// Token is an optional bearer token for the listing API. Raises the
	// unauthenticated rate limit; never required.
	Token string `env:"MODSYNC_TOKEN"`

	// InstallDir is the game installation root the remote folder layout
	// is mirrored into. Defaults to the current working directory, which
	// is where the tool is expected to live.
	InstallDir string `env:"MODSYNC_DIR"`

	// GameExecutable is the file whose presence identifies InstallDir as
	// a game installation.
	GameExecutable string `env:"MODSYNC_GAME_EXE" envDefault:"HD2_SabreSquadron.exe"`

	// PackagesPath overrides the packages.yaml manifest location.
	PackagesPath string `env:"MODSYNC_PACKAGES"`

	// SkipEnvChecks disables the connectivity and executable checks.
	// Meant for tests and CI.
	SkipEnvChecks bool `env:"MODSYNC_SKIP_ENV_CHECKS" envDefault:"false"`

	// Environment controls log format.
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	Packages   []Package
	SelfUpdate SelfUpdate
}

// defaultManifestName is looked for next to the executable when
// MODSYNC_PACKAGES is not set.
const defaultManifestName = "packages.yaml"

// Load reads configuration from environment variables (plus a .env file
// if present) and the package manifest. Without a manifest file the
// built-in package set is used.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.InstallDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("determining working directory: %w", err)
		}

		cfg.InstallDir = cwd
	}

	// The diff engine joins remote-relative paths onto InstallDir and
	// guards against traversal by prefix comparison, which only works
	// reliably with absolute paths.
	absDir, err := filepath.Abs(cfg.InstallDir)
	if err != nil {
		return nil, fmt.Errorf("resolving install dir to absolute path: %w", err)
	}

	cfg.InstallDir = absDir

	if err := cfg.loadManifest(); err != nil {
		return nil, err
	}

	cfg.SelfUpdate = DefaultSelfUpdate()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadManifest() error {
	path := c.PackagesPath
	if path == "" {
		if _, err := os.Stat(defaultManifestName); err != nil {
			// No manifest on disk; the built-in set mirrors the original
			// deployment.
			c.Packages = DefaultPackages()
			return nil
		}

		path = defaultManifestName
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: operator-supplied manifest path
	if err != nil {
		return fmt.Errorf("reading package manifest %s: %w", path, err)
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("parsing package manifest %s: %w", path, err)
	}

	c.Packages = m.Packages

	return nil
}

func (c *Config) validate() error {
	if len(c.Packages) == 0 {
		return fmt.Errorf("no packages configured")
	}

	seen := make(map[string]struct{})

	for i := range c.Packages {
		p := &c.Packages[i]
		if p.Key == "" || p.Name == "" {
			return fmt.Errorf("package %d: key and name are required", i)
		}

		if _, dup := seen[p.Key]; dup {
			return fmt.Errorf("duplicate package key %q", p.Key)
		}

		seen[p.Key] = struct{}{}

		if p.Repo == "" || p.RawBaseURL == "" {
			return fmt.Errorf("package %q: repo and raw_base_url are required", p.Key)
		}

		if p.Ref == "" {
			p.Ref = "main"
		}

		if p.Strategy == "" {
			p.Strategy = StrategyContents
		}

		if p.Strategy != StrategyContents && p.Strategy != StrategyTree {
			return fmt.Errorf("package %q: unknown strategy %q", p.Key, p.Strategy)
		}

		if len(p.Folders) == 0 {
			return fmt.Errorf("package %q: at least one folder is required", p.Key)
		}

		switch p.VersionSource {
		case VersionFromReadme, VersionFromRelease:
		case "":
			p.VersionSource = VersionFromRelease
		default:
			return fmt.Errorf("package %q: unknown version_source %q", p.Key, p.VersionSource)
		}

		if p.Variant != nil && (p.Variant.Repo == "" || p.Variant.RawBaseURL == "" || len(p.Variant.Folders) == 0) {
			return fmt.Errorf("package %q: variant needs repo, raw_base_url and folders", p.Key)
		}

		if p.Variant != nil && p.Variant.Ref == "" {
			p.Variant.Ref = "master"
		}
	}

	return nil
}

// DefaultPackages returns the built-in package set: the coop map package
// and the texture/sound mod pack, matching the layout the tool has
// always shipped with.
func DefaultPackages() []Package {
	return []Package{
		{
			Key:        "CMP",
			Name:       "Coop Map Package (CMP)",
			Repo:       "ehylla93/had2-cmp",
			Ref:        "main",
			RawBaseURL: "https://raw.githubusercontent.com/ehylla93/had2-cmp/main",
			Strategy:   StrategyContents,
			// Maps is by far the largest folder; one recursive tree call
			// replaces hundreds of paginated contents calls.
			TreeFolders: []string{"Maps"},
			Folders:     []string{"Maps", "Models", "Sounds", "Missions", "Scripts", "Text"},
			ExtraPaths: []string{
				"cmp_optional/Civil Uniform Mod/Maps",
				"cmp_optional/Civil Uniform Mod/Models",
			},
			VersionSource: VersionFromReadme,
		},
		{
			Key:           "Mods by Max",
			Name:          "Texture and Sounds mods by Max",
			Repo:          "DarkMatro/Texture-and-Sounds-mods-by-Max",
			Ref:           "master",
			RawBaseURL:    "https://raw.githubusercontent.com/DarkMatro/Texture-and-Sounds-mods-by-Max/master",
			Strategy:      StrategyTree,
			Folders:       []string{"Maps", "Maps_U", "Models", "PlayersProfiles", "Sounds", "Text"},
			VersionSource: VersionFromRelease,
			Uninstall:     true,
			Variant: &Variant{
				Prompt:     "Install additional files for the russian game version?",
				Repo:       "DarkMatro/Texture-and-Sounds-mods-by-Max_RUS",
				Ref:        "master",
				RawBaseURL: "https://raw.githubusercontent.com/DarkMatro/Texture-and-Sounds-mods-by-Max_RUS/master",
				Folders:    []string{"Maps", "Tables", "Text"},
			},
		},
	}
}

// DefaultSelfUpdate returns the release feed for the tool itself.
func DefaultSelfUpdate() SelfUpdate {
	return SelfUpdate{
		Repo:      "DarkMatro/HD2_mod_installer",
		AssetName: "mod_installer.exe",
	}
}
