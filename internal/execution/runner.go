package execution

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"backup-runner/internal/logging"
)

// LocalHost is the sentinel host name for local execution
const LocalHost = "localhost"

// ErrCommandNotFound indicates the command binary could not be located
var ErrCommandNotFound = errors.New("command not found")

// Command describes a single external command invocation. A Command is a
// value; once constructed it is never mutated by the runner.
type Command struct {
	Args     []string
	Host     string // empty or LocalHost means local execution
	UseShell bool   // wrap in a shell locally; remote commands always get one
}

// Result captures the outcome of a command execution
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// CommandError represents a failed external command with its captured context
type CommandError struct {
	Command  string
	Host     string
	ExitCode int
	Stderr   string
	Cause    error
}

// Error implements the error interface
func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("command failed on %s with exit code %d: %s: %s", e.Host, e.ExitCode, e.Command, strings.TrimSpace(e.Stderr))
	}
	return fmt.Sprintf("command failed on %s with exit code %d: %s", e.Host, e.ExitCode, e.Command)
}

// Unwrap returns the underlying error
func (e *CommandError) Unwrap() error {
	return e.Cause
}

// NewCommandError creates a new command error
func NewCommandError(command, host string, exitCode int, stderr string, cause error) *CommandError {
	return &CommandError{
		Command:  command,
		Host:     host,
		ExitCode: exitCode,
		Stderr:   stderr,
		Cause:    cause,
	}
}

// Config holds runner configuration
type Config struct {
	SSHPath       string
	SSHPort       int
	RemoteUser    string
	DryRun        bool
	MaxRetries    int
	RetryInterval time.Duration
}

// Runner executes external commands locally or on a remote host
type Runner interface {
	// Run executes a single command and returns its captured result.
	// A non-zero exit is returned as a *CommandError.
	Run(cmd Command) (Result, error)
	// RunWithRetries behaves like Run but re-runs a failed command,
	// sleeping the configured interval between attempts.
	RunWithRetries(cmd Command) (Result, error)
	// Compose returns the fully composed argv exactly as Run would
	// execute it, without executing anything.
	Compose(cmd Command) []string
	// IsDryRun reports whether the runner is in dry-run mode.
	IsDryRun() bool
}

// runner implements Runner
type runner struct {
	config Config
	logger *logging.Logger

	// swapped out by tests
	execCommand func(name string, args ...string) *exec.Cmd
	sleep       func(time.Duration)
}

// NewRunner creates a new command runner. A nil logger falls back to a
// no-op logger.
func NewRunner(config Config, logger *logging.Logger) Runner {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &runner{
		config:      config,
		logger:      logger,
		execCommand: exec.Command,
		sleep:       time.Sleep,
	}
}

// IsDryRun reports whether the runner is in dry-run mode
func (r *runner) IsDryRun() bool {
	return r.config.DryRun
}

// Compose builds the final argument vector for a command. Remote commands
// are wrapped in an ssh client invocation; the remote end always interprets
// the command through a shell, regardless of UseShell. Callers must not
// rely on UseShell=false semantics for remote execution.
func (r *runner) Compose(cmd Command) []string {
	if isRemote(cmd.Host) {
		composed := []string{r.config.SSHPath, "-p", strconv.Itoa(r.config.SSHPort), fmt.Sprintf("%s@%s", r.config.RemoteUser, cmd.Host)}
		return append(composed, cmd.Args...)
	}

	if cmd.UseShell {
		return []string{"/bin/sh", "-c", strings.Join(cmd.Args, " ")}
	}

	out := make([]string, len(cmd.Args))
	copy(out, cmd.Args)
	return out
}

// Run executes a command and captures its output
func (r *runner) Run(cmd Command) (Result, error) {
	if len(cmd.Args) == 0 {
		return Result{ExitCode: -1}, NewCommandError("", hostLabel(cmd.Host), -1, "", errors.New("empty command"))
	}

	argv := r.Compose(cmd)
	commandLine := strings.Join(argv, " ")
	host := hostLabel(cmd.Host)

	r.logger.WithFields(map[string]interface{}{
		"command": commandLine,
		"host":    host,
	}).Debug("Executing command")

	if r.config.DryRun {
		r.logger.WithFields(map[string]interface{}{
			"command": commandLine,
			"host":    host,
		}).Info("Dry run, command not executed")
		return Result{ExitCode: 0}, nil
	}

	start := time.Now()

	execCmd := r.execCommand(argv[0], argv[1:]...)
	var stdout, stderr bytes.Buffer
	execCmd.Stdout = &stdout
	execCmd.Stderr = &stderr

	err := execCmd.Run()
	duration := time.Since(start)

	result := Result{
		ExitCode: 0,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}

	if err != nil {
		var exitErr *exec.ExitError
		var execErr *exec.Error

		switch {
		case errors.As(err, &exitErr):
			result.ExitCode = exitErr.ExitCode()
			cmdErr := NewCommandError(commandLine, host, result.ExitCode, result.Stderr, err)
			r.logger.LogCommandExecution(argv, host, duration, result.ExitCode, cmdErr)
			return result, cmdErr
		case errors.As(err, &execErr) && errors.Is(execErr.Err, exec.ErrNotFound):
			result.ExitCode = -1
			cmdErr := NewCommandError(commandLine, host, -1, "", fmt.Errorf("%w: %s", ErrCommandNotFound, argv[0]))
			r.logger.LogCommandExecution(argv, host, duration, -1, cmdErr)
			return result, cmdErr
		default:
			result.ExitCode = -1
			cmdErr := NewCommandError(commandLine, host, -1, result.Stderr, err)
			r.logger.LogCommandExecution(argv, host, duration, -1, cmdErr)
			return result, cmdErr
		}
	}

	r.logger.LogCommandExecution(argv, host, duration, 0, nil)
	return result, nil
}

// RunWithRetries runs a command, retrying MaxRetries additional times after
// a failure with RetryInterval sleeps in between. The last error is
// returned when every attempt fails.
func (r *runner) RunWithRetries(cmd Command) (Result, error) {
	var result Result
	var err error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			r.logger.WithFields(map[string]interface{}{
				"command": strings.Join(r.Compose(cmd), " "),
				"attempt": attempt,
				"max":     r.config.MaxRetries,
			}).Warn("Retrying failed command")
			r.sleep(r.config.RetryInterval)
		}

		result, err = r.Run(cmd)
		if err == nil {
			return result, nil
		}
	}

	return result, err
}

// isRemote reports whether a host name refers to a remote machine
func isRemote(host string) bool {
	return host != "" && host != LocalHost
}

// hostLabel normalizes the host name used in logs and errors
func hostLabel(host string) string {
	if host == "" {
		return LocalHost
	}
	return host
}
