// Package syncer is the tree-diff and selective-sync engine: it walks
// remote listings against the local filesystem, builds a minimal
// transfer set, and executes it with bounded concurrency.
package syncer

// Mode selects what the diff engine produces for file entries.
type Mode int

const (
	// ModeInstall collects files that are absent or differ locally for
	// download.
	ModeInstall Mode = iota

	// ModeUninstall collects local files whose content provably matches
	// the remote for deletion. Files the user modified are never touched.
	ModeUninstall
)

// TransferTask is one pending download. Created by the diff engine,
// consumed exactly once by the executor.
type TransferTask struct {
	// SourceURL locates the raw content.
	SourceURL string
	// DestPath is the absolute local destination.
	DestPath string
	// ExpectedSize is the remote-declared size in bytes, used for
	// aggregate progress totals.
	ExpectedSize int64
}

// DeletionTask is one pending local file removal (uninstall mode).
type DeletionTask struct {
	// TargetPath is the absolute local path to remove.
	TargetPath string
	// Size is the remote-declared size, used for progress totals.
	Size int64
}

// Worklist accumulates the outcome of diffing one or more folder roots.
type Worklist struct {
	Downloads []TransferTask
	Deletions []DeletionTask
	// CreatedDirs lists local directories materialized during the diff.
	CreatedDirs []string
}

// Merge appends other's tasks onto w. The orchestrator uses it to
// combine per-folder diffs into one transfer pass.
func (w *Worklist) Merge(other *Worklist) {
	w.Downloads = append(w.Downloads, other.Downloads...)
	w.Deletions = append(w.Deletions, other.Deletions...)
	w.CreatedDirs = append(w.CreatedDirs, other.CreatedDirs...)
}

// Empty reports whether the worklist holds no tasks at all.
func (w *Worklist) Empty() bool {
	return len(w.Downloads) == 0 && len(w.Deletions) == 0
}

// DownloadBytes is the total declared size of all pending downloads.
func (w *Worklist) DownloadBytes() int64 {
	var total int64
	for _, task := range w.Downloads {
		total += task.ExpectedSize
	}

	return total
}

// DeletionBytes is the total declared size of all pending deletions.
func (w *Worklist) DeletionBytes() int64 {
	var total int64
	for _, task := range w.Deletions {
		total += task.Size
	}

	return total
}
