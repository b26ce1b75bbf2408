package workflow

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"backup-runner/internal/execution"
	"backup-runner/internal/logging"
)

// State is the lifecycle state of a workflow run.
type State string

const (
	// StateIdle is the state before Run is called.
	StateIdle State = "idle"
	// StateRunningPreHooks is active while pre hooks execute.
	StateRunningPreHooks State = "running_pre_hooks"
	// StateRunningTransfer is active while the transfer step executes.
	StateRunningTransfer State = "running_transfer"
	// StateRunningPostHooks is active while post hooks execute.
	StateRunningPostHooks State = "running_post_hooks"
	// StateCompleted is the terminal state of a successful run.
	StateCompleted State = "completed"
	// StateFailed is the terminal state of a run with at least one error.
	StateFailed State = "failed"
)

// Config holds the identity of a workflow.
type Config struct {
	// Label names the backup job. It ends up in log lines, report files
	// and the destination directory of the transfer tool.
	Label string
	// SourceHost is the host whose data is backed up. Empty means the
	// local machine.
	SourceHost string
}

// TransferFunc is the signature of the transfer step.
type TransferFunc func() error

// Workflow orchestrates one backup job: pre hooks, transfer, post hooks.
// It is not safe for concurrent use; a job runs on a single goroutine.
type Workflow struct {
	config Config
	runner execution.Runner
	logger *logging.Logger

	runID     string
	state     State
	preHooks  []preHook
	postHooks []postHook
	filters   []PathFilter
	transfer  TransferFunc

	hookOutcomes    []HookOutcome
	transferOutcome TransferOutcome
	transitions     []StateTransition
}

// New creates a workflow for the given job. The runner executes every
// command the job issues; a nil logger falls back to a no-op logger.
func New(config Config, runner execution.Runner, logger *logging.Logger) *Workflow {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Workflow{
		config: config,
		runner: runner,
		logger: logger,
		runID:  uuid.New().String(),
		state:  StateIdle,
	}
}

// Label returns the job label.
func (w *Workflow) Label() string {
	return w.config.Label
}

// SourceHost returns the host whose data is backed up, or the empty
// string for the local machine.
func (w *Workflow) SourceHost() string {
	return w.config.SourceHost
}

// RunID returns the unique identifier assigned to this run.
func (w *Workflow) RunID() string {
	return w.runID
}

// State returns the current lifecycle state.
func (w *Workflow) State() State {
	return w.state
}

// Runner returns the command runner backing this workflow.
func (w *Workflow) Runner() execution.Runner {
	return w.runner
}

// Logger returns the workflow's logger, for backup types that want to
// log under the same label fields.
func (w *Workflow) Logger() *logging.Logger {
	return w.logger
}

// AddPreHook registers fn to run before the transfer step. Hooks run in
// ascending level order; hooks with equal levels run in registration
// order.
func (w *Workflow) AddPreHook(level int, description string, fn PreHookFunc) {
	w.preHooks = append(w.preHooks, preHook{level: level, description: description, fn: fn})
}

// AddPostHook registers fn to run after the transfer step. Hooks run in
// ascending level order; hooks with equal levels run in registration
// order. Post hooks run even when a pre hook or the transfer failed.
func (w *Workflow) AddPostHook(level int, description string, fn PostHookFunc) {
	w.postHooks = append(w.postHooks, postHook{level: level, description: description, fn: fn})
}

// SetTransfer installs the transfer step. A workflow without a transfer
// step runs its hooks only.
func (w *Workflow) SetTransfer(fn TransferFunc) {
	w.transfer = fn
}

// IncludeDir adds a directory include filter.
func (w *Workflow) IncludeDir(path string) {
	w.filters = append(w.filters, PathFilter{Kind: FilterInclude, Path: path})
}

// ExcludeDir adds a directory exclude filter.
func (w *Workflow) ExcludeDir(path string) {
	w.filters = append(w.filters, PathFilter{Kind: FilterExclude, Path: path})
}

// IncludeFile adds a file include filter. Transfer tools treat files and
// directories alike here; the separate name mirrors how job definitions
// distinguish them.
func (w *Workflow) IncludeFile(path string) {
	w.IncludeDir(path)
}

// ExcludeFile adds a file exclude filter.
func (w *Workflow) ExcludeFile(path string) {
	w.ExcludeDir(path)
}

// Filters returns the registered path filters in registration order.
func (w *Workflow) Filters() []PathFilter {
	out := make([]PathFilter, len(w.filters))
	copy(out, w.filters)
	return out
}

// PrefixFilterPaths rewrites every filter path that starts with oldPrefix
// to start with newPrefix instead. Snapshot-based backup types use this
// to point filters at the snapshot mount tree before the transfer runs.
func (w *Workflow) PrefixFilterPaths(oldPrefix, newPrefix string) {
	for i, f := range w.filters {
		if strings.HasPrefix(f.Path, oldPrefix) {
			w.filters[i].Path = newPrefix + strings.TrimPrefix(f.Path, oldPrefix)
		}
	}
}

// RunCommand executes args on host through the workflow's runner. An
// empty host runs the command on the local machine.
func (w *Workflow) RunCommand(args []string, host string) (execution.Result, error) {
	return w.runner.Run(execution.Command{Args: args, Host: w.resolveHost(host)})
}

// RunCommandWithRetries executes args on host, retrying per the runner's
// retry settings.
func (w *Workflow) RunCommandWithRetries(args []string, host string) (execution.Result, error) {
	return w.runner.RunWithRetries(execution.Command{Args: args, Host: w.resolveHost(host)})
}

// RunShellCommand executes a shell command line on host. On the local
// machine the line runs under /bin/sh; on a remote host the ssh far end
// provides the shell.
func (w *Workflow) RunShellCommand(line string, host string) (execution.Result, error) {
	return w.runner.Run(execution.Command{Args: []string{line}, Host: w.resolveHost(host), UseShell: true})
}

func (w *Workflow) resolveHost(host string) string {
	if host == "" {
		return execution.LocalHost
	}
	return host
}

// HookOutcomes returns the per-hook results of the last run in execution
// order.
func (w *Workflow) HookOutcomes() []HookOutcome {
	out := make([]HookOutcome, len(w.hookOutcomes))
	copy(out, w.hookOutcomes)
	return out
}

// TransferResult returns whether the transfer step ran and its error.
func (w *Workflow) TransferResult() TransferOutcome {
	return w.transferOutcome
}

// Transitions returns the state machine edges of the last run in order.
func (w *Workflow) Transitions() []StateTransition {
	out := make([]StateTransition, len(w.transitions))
	copy(out, w.transitions)
	return out
}

// Run executes the job: pre hooks in level order, then the transfer,
// then post hooks in level order. The first pre hook failure aborts the
// remaining pre hooks and the transfer. Post hooks always run, with
// errorCase set when anything before them failed, and their failures are
// collected rather than cutting the phase short. Run returns nil on a
// clean run and an ErrorList otherwise.
func (w *Workflow) Run() error {
	if w.state != StateIdle {
		return fmt.Errorf("workflow %q has already run (state %s)", w.config.Label, w.state)
	}

	// Hooks registered after this point do not participate in the run.
	pre := make([]preHook, len(w.preHooks))
	copy(pre, w.preHooks)
	sort.SliceStable(pre, func(i, j int) bool { return pre[i].level < pre[j].level })
	post := make([]postHook, len(w.postHooks))
	copy(post, w.postHooks)
	sort.SliceStable(post, func(i, j int) bool { return post[i].level < post[j].level })

	w.logger.WithFields(map[string]interface{}{
		"label":  w.config.Label,
		"run_id": w.runID,
	}).Info("Starting backup job")

	errs := &ErrorList{}
	errorCase := false

	w.setState(StateRunningPreHooks)
	for _, h := range pre {
		if err := w.runPreHook(h); err != nil {
			errs.Add(err)
			errorCase = true
			break
		}
	}

	if !errorCase {
		w.setState(StateRunningTransfer)
		if w.transfer != nil {
			start := time.Now()
			err := w.transfer()
			duration := time.Since(start)
			w.transferOutcome = TransferOutcome{Ran: true, Duration: duration, Err: err}
			if err != nil {
				w.transferOutcome.ErrMessage = err.Error()
				w.logger.WithField("duration", duration.String()).Errorf("Transfer failed: %v", err)
				errs.Add(fmt.Errorf("transfer failed: %w", err))
				errorCase = true
			} else {
				w.logger.WithField("duration", duration.String()).Info("Transfer completed")
			}
		}
	}

	w.setState(StateRunningPostHooks)
	for _, h := range post {
		if err := w.runPostHook(h, errorCase); err != nil {
			errs.Add(err)
		}
	}

	if errs.HasErrors() {
		w.setState(StateFailed)
		w.logger.Errorf("Backup job %q failed: %v", w.config.Label, errs)
		return errs
	}
	w.setState(StateCompleted)
	w.logger.Infof("Backup job %q completed", w.config.Label)
	return nil
}

func (w *Workflow) runPreHook(h preHook) error {
	start := time.Now()
	err := h.fn()
	duration := time.Since(start)
	w.logger.LogHookExecution(string(PhasePre), h.level, h.description, duration, err)
	w.recordHook(PhasePre, h.level, h.description, duration, err)
	if err != nil {
		return NewHookError(PhasePre, h.level, h.description, err)
	}
	return nil
}

func (w *Workflow) runPostHook(h postHook, errorCase bool) error {
	start := time.Now()
	err := h.fn(errorCase)
	duration := time.Since(start)
	w.logger.LogHookExecution(string(PhasePost), h.level, h.description, duration, err)
	w.recordHook(PhasePost, h.level, h.description, duration, err)
	if err != nil {
		return NewHookError(PhasePost, h.level, h.description, err)
	}
	return nil
}

func (w *Workflow) recordHook(phase Phase, level int, description string, duration time.Duration, err error) {
	outcome := HookOutcome{Phase: phase, Level: level, Description: description, Duration: duration, Err: err}
	if err != nil {
		outcome.ErrMessage = err.Error()
	}
	w.hookOutcomes = append(w.hookOutcomes, outcome)
}

func (w *Workflow) setState(next State) {
	w.transitions = append(w.transitions, StateTransition{From: w.state, To: next, At: time.Now()})
	w.logger.LogStateTransition(w.config.Label, string(w.state), string(next))
	w.state = next
}
