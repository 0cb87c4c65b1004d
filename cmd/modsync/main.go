// Command modsync keeps a Hidden & Dangerous 2 installation in sync
// with the hosted mod packages: it diffs the local game folders against
// the remote listings by content digest and transfers only what
// changed. Run it from the game installation directory.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/darkmatro/modsync/internal/config"
	"github.com/darkmatro/modsync/internal/envcheck"
	apperrors "github.com/darkmatro/modsync/internal/errors"
	"github.com/darkmatro/modsync/internal/gitblob"
	"github.com/darkmatro/modsync/internal/github"
	"github.com/darkmatro/modsync/internal/hashcache"
	"github.com/darkmatro/modsync/internal/logging"
	"github.com/darkmatro/modsync/internal/selfupdate"
	"github.com/darkmatro/modsync/internal/syncer"
	"github.com/darkmatro/modsync/internal/version"
)

// Version is the build version, injected at link time via
// -ldflags "-X main.Version=...".
var Version = "dev"

// cacheFileName is the digest cache database, kept next to the marker
// file in the game directory.
const cacheFileName = "modsync.db"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.NewLogger(cfg.Environment, os.Stderr)

	logger.Info("starting",
		slog.String("version", Version),
		slog.String("install_dir", cfg.InstallDir),
	)

	selfupdate.CleanupStaleBuild(logger)

	if !cfg.SkipEnvChecks {
		if err := envcheck.CheckConnectivity(ctx, http.DefaultClient); err != nil {
			return err
		}

		if err := envcheck.CheckGameDir(cfg.InstallDir, cfg.GameExecutable); err != nil {
			return err
		}
	}

	client := github.NewClient(nil, cfg.Token, logger)

	markers := version.NewStore(
		filepath.Join(cfg.InstallDir, version.MarkerFileName),
		packageKeys(cfg.Packages),
		Version,
	)

	updater := selfupdate.New(client, markers, logger, cfg.SelfUpdate)
	if updater.Run(ctx) {
		fmt.Println("Updated to the latest version, restarting.")
		selfupdate.Relaunch(logger)

		return nil
	}

	hasher, closeCache := openHasher(cfg.InstallDir, logger)
	defer closeCache()

	app := &app{
		cfg:     cfg,
		client:  client,
		hasher:  hasher,
		markers: markers,
		logger:  logger,
		stdin:   bufio.NewReader(os.Stdin),
	}

	return app.menuLoop(ctx)
}

// openHasher opens the bbolt digest cache, degrading to direct hashing
// when the cache file cannot be opened (locked by another instance,
// read-only media).
func openHasher(dir string, logger *slog.Logger) (syncer.Hasher, func()) {
	cache, err := hashcache.Open(filepath.Join(dir, cacheFileName))
	if err != nil {
		logger.Warn("digest cache unavailable, hashing directly", slog.String("error", err.Error()))
		return syncer.HasherFunc(gitblob.Hash), func() {}
	}

	return cache, func() {
		if err := cache.Close(); err != nil {
			logger.Warn("closing digest cache", slog.String("error", err.Error()))
		}
	}
}

func packageKeys(packages []config.Package) []string {
	keys := make([]string, 0, len(packages))
	for _, p := range packages {
		keys = append(keys, p.Key)
	}

	return keys
}

// app holds everything the interactive menu needs.
type app struct {
	cfg     *config.Config
	client  *github.Client
	hasher  syncer.Hasher
	markers *version.Store
	logger  *slog.Logger
	stdin   *bufio.Reader
}

// menuItem is one selectable action.
type menuItem struct {
	label string
	run   func(ctx context.Context) error
}

// menuLoop prints the version banner and menu until the user exits or
// the context is cancelled.
func (a *app) menuLoop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		a.printBanner(ctx)

		items := a.menuItems()

		fmt.Println()
		for i, item := range items {
			fmt.Printf("  %d. %s\n", i+1, item.label)
		}
		fmt.Println("  0. Exit")

		choice, err := a.prompt("Choose an option: ")
		if err != nil {
			// Stdin closed: treat like exit.
			return nil
		}

		n, err := strconv.Atoi(choice)
		if err != nil || n < 0 || n > len(items) {
			fmt.Println("Invalid option.")
			continue
		}

		if n == 0 {
			return nil
		}

		if err := items[n-1].run(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}

			a.reportFailure(err)
		}
	}
}

func (a *app) menuItems() []menuItem {
	var items []menuItem

	for i := range a.cfg.Packages {
		pkg := &a.cfg.Packages[i]
		items = append(items, menuItem{
			label: "Install or update " + pkg.Name,
			run: func(ctx context.Context) error {
				return a.install(ctx, pkg)
			},
		})
	}

	for i := range a.cfg.Packages {
		pkg := &a.cfg.Packages[i]
		if !pkg.Uninstall {
			continue
		}

		items = append(items, menuItem{
			label: "Uninstall " + pkg.Name,
			run: func(ctx context.Context) error {
				return a.uninstall(ctx, pkg)
			},
		})
	}

	return items
}

// printBanner shows the installed and published version of every
// package. Remote lookups degrade to "unknown" so an exhausted rate
// limit still leaves the menu usable.
func (a *app) printBanner(ctx context.Context) {
	fmt.Println()
	fmt.Printf("HD2 mod sync %s\n", Version)

	for i := range a.cfg.Packages {
		pkg := &a.cfg.Packages[i]

		installed, err := a.markers.Get(pkg.Key)
		if err != nil {
			a.logger.Warn("reading version marker", slog.String("error", err.Error()))
			installed = "unknown"
		}

		if installed == "" {
			installed = "not installed"
		}

		remote, err := version.FetchRemote(ctx, a.client, pkg)
		if err != nil {
			a.logger.Warn("looking up published version",
				slog.String("package", pkg.Key), slog.String("error", err.Error()))
			remote = "unknown"
		}

		fmt.Printf("  %s: installed %s, latest %s\n", pkg.Name, installed, remote)
	}
}

func (a *app) install(ctx context.Context, pkg *config.Package) error {
	withVariant := false
	if pkg.Variant != nil {
		answer, err := a.promptYesNo(pkg.Variant.Prompt)
		if err != nil {
			return err
		}

		withVariant = answer
	}

	remote, err := version.FetchRemote(ctx, a.client, pkg)
	if err != nil {
		a.logger.Warn("looking up published version",
			slog.String("package", pkg.Key), slog.String("error", err.Error()))
		remote = "unknown"
	}

	s := a.newSyncer()

	if err := s.Install(ctx, pkg, remote, withVariant); err != nil {
		return err
	}

	fmt.Printf("%s is up to date.\n", pkg.Name)

	return nil
}

func (a *app) uninstall(ctx context.Context, pkg *config.Package) error {
	confirmed, err := a.promptYesNo("Remove " + pkg.Name + "? Files you modified yourself are kept.")
	if err != nil || !confirmed {
		return err
	}

	s := a.newSyncer()

	if err := s.Uninstall(ctx, pkg); err != nil {
		return err
	}

	// Folders that only ever held package files are left empty by the
	// deletion pass; clear them out.
	folders := append([]string{}, pkg.Folders...)
	if pkg.Variant != nil {
		folders = append(folders, pkg.Variant.Folders...)
	}

	envcheck.PruneEmptyDirs(a.cfg.InstallDir, folders, a.logger)

	fmt.Printf("%s removed.\n", pkg.Name)

	return nil
}

func (a *app) newSyncer() *syncer.Syncer {
	return syncer.New(a.client, a.hasher, a.markers,
		syncer.NewConsoleReporter(os.Stdout), a.logger, a.cfg.InstallDir)
}

// reportFailure words the error for the console: transient network
// trouble reads differently from a real failure.
func (a *app) reportFailure(err error) {
	switch {
	case errors.Is(err, apperrors.ErrRateLimited):
		fmt.Println("The server is rate limiting requests. Wait a few minutes and try again.")
	case github.IsTransient(err):
		fmt.Println("Network trouble: " + err.Error())
	default:
		fmt.Println("Failed: " + err.Error())
	}
}

func (a *app) prompt(label string) (string, error) {
	fmt.Print(label)

	line, err := a.stdin.ReadString('\n')
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(line), nil
}

func (a *app) promptYesNo(question string) (bool, error) {
	for {
		answer, err := a.prompt(question + " [y/n]: ")
		if err != nil {
			return false, err
		}

		switch strings.ToLower(answer) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}

		fmt.Println("Please answer y or n.")
	}
}
