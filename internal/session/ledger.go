// Package session tracks one batch run: which inputs succeeded, which
// failed and why, under a unique session identifier. Successes are
// appended durably as they happen; failures are flushed at finalize.
package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// Failure is one failed input with its captured reason.
type Failure struct {
	Path    string `json:"path"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Report is the aggregate outcome of a finished session.
type Report struct {
	SessionID string
	Total     int
	Succeeded int
	Failed    int
}

// Ledger records per-item outcomes for a single run. Methods are safe
// for concurrent use; the success log is the only file mutated while
// the run is in flight.
type Ledger struct {
	mu        sync.Mutex
	id        string
	dir       string
	succeeded int
	failures  []Failure
}

// NewLedger creates the status directory if needed and mints the
// session identifier that namespaces every output of this run.
func NewLedger(statusDir string) (*Ledger, error) {
	if err := os.MkdirAll(statusDir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "session: create status dir %s", statusDir)
	}
	return &Ledger{id: uuid.New().String(), dir: statusDir}, nil
}

// ID returns the session identifier.
func (l *Ledger) ID() string { return l.id }

// SuccessLogPath is the append-only newline-delimited success log.
func (l *Ledger) SuccessLogPath() string {
	return filepath.Join(l.dir, "successes_"+l.id+".status.txt")
}

// ErrorPathsFile is the JSON array of failed input paths.
func (l *Ledger) ErrorPathsFile() string {
	return filepath.Join(l.dir, "error_paths_"+l.id+".json")
}

// ErrorDetailsFile is the structured failure list with captured reasons.
func (l *Ledger) ErrorDetailsFile() string {
	return filepath.Join(l.dir, "error_details_"+l.id+".json")
}

// RecordSuccess durably appends one input path to the success log. The
// file is opened in append mode per write and closed immediately, so a
// run interrupted after N successes leaves exactly N entries visible.
func (l *Ledger) RecordSuccess(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.SuccessLogPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return eris.Wrap(err, "session: open success log")
	}
	if _, err := f.WriteString(path + "\n"); err != nil {
		_ = f.Close()
		return eris.Wrap(err, "session: append success")
	}
	if err := f.Close(); err != nil {
		return eris.Wrap(err, "session: close success log")
	}
	l.succeeded++
	return nil
}

// RecordFailure accumulates a failed input in memory until Finalize.
func (l *Ledger) RecordFailure(path, kind string, cause error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	l.failures = append(l.failures, Failure{Path: path, Kind: kind, Message: msg})
}

// Finalize writes the failed-path array and the failure-detail document
// and reports the aggregate counts. It runs regardless of how many
// items failed; errors here are not recoverable by the caller.
func (l *Ledger) Finalize() (Report, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	paths := make([]string, len(l.failures))
	for i, f := range l.failures {
		paths[i] = f.Path
	}
	pathsJSON, err := json.Marshal(paths)
	if err != nil {
		return Report{}, eris.Wrap(err, "session: marshal error paths")
	}
	if err := os.WriteFile(l.ErrorPathsFile(), pathsJSON, 0o644); err != nil {
		return Report{}, eris.Wrap(err, "session: write error paths")
	}

	failures := l.failures
	if failures == nil {
		failures = []Failure{}
	}
	detailsJSON, err := json.MarshalIndent(failures, "", "  ")
	if err != nil {
		return Report{}, eris.Wrap(err, "session: marshal error details")
	}
	if err := os.WriteFile(l.ErrorDetailsFile(), detailsJSON, 0o644); err != nil {
		return Report{}, eris.Wrap(err, "session: write error details")
	}

	return Report{
		SessionID: l.id,
		Total:     l.succeeded + len(l.failures),
		Succeeded: l.succeeded,
		Failed:    len(l.failures),
	}, nil
}
