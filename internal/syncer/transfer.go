package syncer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/darkmatro/modsync/internal/errors"
)

// Downloader streams raw content to a writer, reporting each chunk.
// Implemented by the github client.
type Downloader interface {
	Download(ctx context.Context, url string, w io.Writer, report func(n int)) error
}

// maxDownloadWorkers caps download concurrency regardless of core
// count, to avoid hammering the remote host or the local disk.
const maxDownloadWorkers = 32

// Executor runs a worklist: bounded-concurrency downloads with
// aggregate progress, and sequential deletions.
type Executor struct {
	dl       Downloader
	reporter Reporter
	logger   *slog.Logger
	workers  int
}

// NewExecutor creates an executor. Download concurrency is a small
// multiple of the core count, capped at maxDownloadWorkers.
func NewExecutor(dl Downloader, reporter Reporter, logger *slog.Logger) *Executor {
	workers := 4 * runtime.GOMAXPROCS(0)
	if workers > maxDownloadWorkers {
		workers = maxDownloadWorkers
	}

	return &Executor{
		dl:       dl,
		reporter: reporter,
		logger:   logger,
		workers:  workers,
	}
}

// Download fetches every task in tasks. Each task's failure is captured
// individually: the batch always drains, then the failed destinations
// are reported together, so a rerun only needs to re-fetch what
// actually failed. Any failure means the overall pass failed.
func (e *Executor) Download(ctx context.Context, tasks []TransferTask) error {
	if len(tasks) == 0 {
		return nil
	}

	var total int64
	for _, task := range tasks {
		total += task.ExpectedSize
	}

	e.reporter.Start("Downloading files", total)
	defer e.reporter.Done()

	failures := make([]error, len(tasks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			// Record the failure instead of returning it: a returned
			// error would cancel gctx and abort the siblings, leaving
			// the batch state ambiguous.
			failures[i] = e.downloadOne(gctx, task)
			return nil
		})
	}

	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}

	var failed int

	for i, err := range failures {
		if err == nil {
			continue
		}

		failed++

		e.logger.Error("download failed",
			slog.String("url", tasks[i].SourceURL),
			slog.String("dest", tasks[i].DestPath),
			slog.String("error", err.Error()),
		)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d downloads failed: %w", failed, len(tasks), apperrors.ErrTransferFailed)
	}

	return nil
}

func (e *Executor) downloadOne(ctx context.Context, task TransferTask) error {
	if err := os.MkdirAll(filepath.Dir(task.DestPath), dirPerm); err != nil {
		return fmt.Errorf("creating directory for %s: %w", task.DestPath, err)
	}

	f, err := os.Create(task.DestPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", task.DestPath, err)
	}

	if err := e.dl.Download(ctx, task.SourceURL, f, e.reporter.Report); err != nil {
		f.Close()
		// Leave the partial file in place: the next scan hashes it,
		// sees a mismatch, and re-downloads.
		return err
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", task.DestPath, err)
	}

	return nil
}

// forgetter is implemented by hashers with invalidation (the bbolt
// cache). Deleted paths are forgotten so a stale digest cannot be
// served later.
type forgetter interface {
	Forget(path string) error
}

// Delete removes every task's target. A file already gone is a logged
// anomaly (another process may have removed it), not a failure; any
// other removal error fails the pass after all tasks were attempted.
func (e *Executor) Delete(tasks []DeletionTask, hasher Hasher) error {
	if len(tasks) == 0 {
		return nil
	}

	var total int64
	for _, task := range tasks {
		total += task.Size
	}

	e.reporter.Start("Deleting files", total)
	defer e.reporter.Done()

	f, canForget := hasher.(forgetter)

	var failed int

	for _, task := range tasks {
		err := os.Remove(task.TargetPath)

		switch {
		case err == nil:
		case os.IsNotExist(err):
			e.logger.Warn("file already gone", slog.String("path", task.TargetPath))
		default:
			failed++
			e.logger.Error("deletion failed",
				slog.String("path", task.TargetPath), slog.String("error", err.Error()))

			continue
		}

		if canForget {
			if err := f.Forget(task.TargetPath); err != nil {
				e.logger.Warn("failed to drop cached digest",
					slog.String("path", task.TargetPath), slog.String("error", err.Error()))
			}
		}

		e.reporter.Report(int(task.Size))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d deletions failed: %w", failed, len(tasks), apperrors.ErrTransferFailed)
	}

	return nil
}
