package syncer

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// Reporter receives aggregate byte progress from the transfer executor.
// Passed in explicitly so the executor has no ambient output channel.
type Reporter interface {
	// Start announces a new transfer pass and its total byte count.
	Start(label string, totalBytes int64)
	// Report adds a byte delta to the running total. Called from
	// multiple download goroutines.
	Report(bytesDelta int)
	// Done finishes the pass.
	Done()
}

// NopReporter discards all progress. Used in tests and automatic mode.
type NopReporter struct{}

func (NopReporter) Start(string, int64) {}
func (NopReporter) Report(int)          {}
func (NopReporter) Done()               {}

// printInterval throttles console progress updates.
const printInterval = 100 * time.Millisecond

// ConsoleReporter renders a single in-place progress line.
type ConsoleReporter struct {
	w io.Writer

	mu        sync.Mutex
	label     string
	total     int64
	done      int64
	lastPrint time.Time
}

// NewConsoleReporter creates a reporter writing to w.
func NewConsoleReporter(w io.Writer) *ConsoleReporter {
	return &ConsoleReporter{w: w}
}

// Start implements Reporter.
func (r *ConsoleReporter) Start(label string, totalBytes int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.label = label
	r.total = totalBytes
	r.done = 0
	r.lastPrint = time.Time{}

	r.printLocked()
}

// Report implements Reporter.
func (r *ConsoleReporter) Report(bytesDelta int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.done += int64(bytesDelta)

	if time.Since(r.lastPrint) >= printInterval {
		r.printLocked()
	}
}

// Done implements Reporter.
func (r *ConsoleReporter) Done() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.printLocked()
	fmt.Fprintln(r.w)
}

func (r *ConsoleReporter) printLocked() {
	r.lastPrint = time.Now()

	if r.total <= 0 {
		fmt.Fprintf(r.w, "\r%s: %s", r.label, humanize.Bytes(uint64(r.done)))
		return
	}

	pct := float64(r.done) / float64(r.total) * 100
	if pct > 100 {
		pct = 100
	}

	fmt.Fprintf(r.w, "\r%s: %s / %s (%.0f%%)",
		r.label, humanize.Bytes(uint64(r.done)), humanize.Bytes(uint64(r.total)), pct)
}
