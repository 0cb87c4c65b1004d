// Package errors defines the sentinel errors shared across the fetch and
// transfer layers. The orchestrator matches on these to decide between
// aborting a package's sync and logging-and-continuing.
package errors

import "errors"

// Remote listing errors.
var (
	// ErrRateLimited is returned once the rate-limit retry ceiling is
	// exhausted. Fatal: a required listing could not be fetched, so the
	// session must not pretend the tree was scanned.
	ErrRateLimited = errors.New("rate limit retries exhausted")

	// ErrUnexpectedStatus wraps any non-success HTTP status that is not
	// part of the expected taxonomy (404 absent, 401 unauthorized, 429
	// rate limited).
	ErrUnexpectedStatus = errors.New("unexpected API response status")
)

// Transfer errors.
var (
	// ErrTransferFailed is reported by the executor when one or more
	// download tasks in a batch failed. The per-task failures are logged
	// individually; this sentinel tells the orchestrator not to persist
	// the version marker.
	ErrTransferFailed = errors.New("one or more transfers failed")
)
