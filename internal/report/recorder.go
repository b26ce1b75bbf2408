package report

import (
	"sync"
	"time"

	"backup-runner/internal/execution"
)

// CommandRecord is one command dispatched through a RecordingRunner.
type CommandRecord struct {
	Args     []string      `json:"args"`
	Host     string        `json:"host"`
	Shell    bool          `json:"shell,omitempty"`
	Start    time.Time     `json:"start"`
	Duration time.Duration `json:"duration_ns"`
	ExitCode int           `json:"exit_code"`
	Error    string        `json:"error,omitempty"`
}

// RecordingRunner wraps a Runner and keeps a transcript of every
// command that passes through it. In dry-run mode the transcript holds
// the commands that would have run. The transcript is safe to read
// concurrently with command execution.
type RecordingRunner struct {
	inner execution.Runner

	mu      sync.Mutex
	records []CommandRecord
}

// NewRecordingRunner wraps inner with a command transcript.
func NewRecordingRunner(inner execution.Runner) *RecordingRunner {
	return &RecordingRunner{inner: inner}
}

// Run executes cmd through the wrapped runner and records the result.
func (r *RecordingRunner) Run(cmd execution.Command) (execution.Result, error) {
	start := time.Now()
	result, err := r.inner.Run(cmd)
	r.record(cmd, start, time.Since(start), result, err)
	return result, err
}

// RunWithRetries executes cmd with the wrapped runner's retry settings
// and records the final result. Intermediate failed attempts do not
// appear in the transcript.
func (r *RecordingRunner) RunWithRetries(cmd execution.Command) (execution.Result, error) {
	start := time.Now()
	result, err := r.inner.RunWithRetries(cmd)
	r.record(cmd, start, time.Since(start), result, err)
	return result, err
}

// Compose returns the wrapped runner's composed argv without executing
// or recording anything.
func (r *RecordingRunner) Compose(cmd execution.Command) []string {
	return r.inner.Compose(cmd)
}

// IsDryRun reports whether the wrapped runner is in dry-run mode.
func (r *RecordingRunner) IsDryRun() bool {
	return r.inner.IsDryRun()
}

// Records returns a copy of the transcript in execution order.
func (r *RecordingRunner) Records() []CommandRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CommandRecord, len(r.records))
	copy(out, r.records)
	return out
}

func (r *RecordingRunner) record(cmd execution.Command, start time.Time, duration time.Duration, result execution.Result, err error) {
	rec := CommandRecord{
		Args:     append([]string(nil), cmd.Args...),
		Host:     cmd.Host,
		Shell:    cmd.UseShell,
		Start:    start,
		Duration: duration,
		ExitCode: result.ExitCode,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	r.mu.Lock()
	r.records = append(r.records, rec)
	r.mu.Unlock()
}
