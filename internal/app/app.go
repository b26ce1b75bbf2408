// Package app assembles backup jobs from their definitions and runs
// them. It sits between the command line and the workflow engine: for
// each job it builds the matching backup type, wires the job's own
// hook commands, runs the workflow, and hands the outcome to the report
// pipeline and the terminal summary.
package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"backup-runner/internal/config"
	"backup-runner/internal/display"
	"backup-runner/internal/execution"
	"backup-runner/internal/logging"
	"backup-runner/internal/lvm"
	"backup-runner/internal/rdiff"
	"backup-runner/internal/report"
	"backup-runner/internal/workflow"
	"backup-runner/internal/zfs"
)

// App builds and runs backup jobs against a fixed set of engine
// settings.
type App struct {
	settings *config.Settings
	logger   *logging.Logger
	display  *display.Renderer
	reports  *report.Writer

	// swapped out by tests
	newRunner  func(execution.Config, *logging.Logger) execution.Runner
	hintWriter io.Writer
}

// New validates the settings and prepares an App. The renderer receives
// the tables a run prints; nil renders to stdout without color. When
// reporting is enabled in the settings the report pipeline is
// constructed here, so a missing encryption key fails before any job
// runs.
func New(settings *config.Settings, logger *logging.Logger, renderer *display.Renderer) (*App, error) {
	if settings == nil {
		return nil, errors.New("settings are required")
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if renderer == nil {
		renderer = display.NewRenderer(os.Stdout, display.NewPlainColorSystem(), display.PlainTheme(), display.DefaultTableStyle)
	}

	a := &App{
		settings:   settings,
		logger:     logger,
		display:    renderer,
		newRunner:  execution.NewRunner,
		hintWriter: os.Stderr,
	}

	if settings.Report.Enabled {
		writer, err := report.NewWriter(report.Config{
			Dir:              settings.Report.Dir,
			Compression:      settings.Report.Compression,
			EncryptionKeyEnv: settings.Report.EncryptionKeyEnv,
			RetentionDays:    settings.Report.RetentionDays,
			S3Bucket:         settings.Report.S3Bucket,
			S3Region:         settings.Report.S3Region,
			S3Prefix:         settings.Report.S3Prefix,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("report pipeline: %w", err)
		}
		a.reports = writer
	}

	return a, nil
}

// Settings returns the engine settings this App was built with.
func (a *App) Settings() *config.Settings {
	return a.settings
}

// SetupSignalHandling exits the process on SIGINT or SIGTERM. External
// commands already in flight keep their process group; a killed run
// leaves cleanup to the next invocation's leak checks.
func (a *App) SetupSignalHandling() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		a.logger.WithField("signal", sig.String()).Error("Received shutdown signal, aborting")
		os.Exit(1)
	}()
}

// LoadJobs loads the job definitions named by args. Each argument may be
// a job file or a directory of job files; no arguments loads the
// configured jobs directory. Duplicate labels across arguments are
// rejected.
func (a *App) LoadJobs(args []string) ([]*config.JobDefinition, error) {
	if len(args) == 0 {
		return config.LoadJobsDir(a.settings.JobsDir)
	}

	var jobs []*config.JobDefinition
	seen := make(map[string]string)
	for _, arg := range args {
		loaded, err := loadArg(arg)
		if err != nil {
			return nil, err
		}
		for _, job := range loaded {
			if other, ok := seen[job.Label]; ok {
				return nil, config.NewDuplicateError(
					fmt.Sprintf("label %q defined in both %s and %s", job.Label, other, arg), nil)
			}
			seen[job.Label] = arg
			jobs = append(jobs, job)
		}
	}
	return jobs, nil
}

func loadArg(arg string) ([]*config.JobDefinition, error) {
	info, err := os.Stat(arg)
	if err != nil {
		return nil, config.NewNotFoundError(fmt.Sprintf("cannot read %s", arg), err)
	}
	if info.IsDir() {
		return config.LoadJobsDir(arg)
	}
	job, err := config.LoadJobFile(arg)
	if err != nil {
		return nil, err
	}
	return []*config.JobDefinition{job}, nil
}

// JobResult is the outcome of one job run.
type JobResult struct {
	Label    string
	Type     string
	Host     string
	State    string
	Duration time.Duration
	Errors   int
	Err      error
}

// RunJobs runs jobs one after the other in the order given. A failed
// job never stops the ones behind it; the summary table and the
// returned error report how many failed.
func (a *App) RunJobs(jobs []*config.JobDefinition) ([]JobResult, error) {
	results := make([]JobResult, 0, len(jobs))
	failed := 0
	for _, job := range jobs {
		res := a.RunJob(job)
		if res.Err != nil {
			failed++
		}
		results = append(results, res)
	}

	a.renderSummary(results)

	if failed > 0 {
		return results, fmt.Errorf("%d of %d jobs failed", failed, len(jobs))
	}
	return results, nil
}

// RunJob assembles and runs a single job.
func (a *App) RunJob(job *config.JobDefinition) JobResult {
	result := JobResult{Label: job.Label, Type: job.Type, Host: job.Host}

	a.logger.WithFields(map[string]interface{}{
		"label": job.Label,
		"type":  job.Type,
	}).Info("Starting job")

	built, err := a.assemble(job)
	if err != nil {
		a.handleJobError(job.Label, err)
		result.State = string(workflow.StateFailed)
		result.Errors = 1
		result.Err = err
		return result
	}

	start := time.Now()
	runErr := built.wf.Run()
	result.Duration = time.Since(start)
	result.State = string(built.wf.State())
	result.Err = runErr

	if runErr != nil {
		var list *workflow.ErrorList
		if errors.As(runErr, &list) {
			result.Errors = len(list.Errors())
		} else {
			result.Errors = 1
		}
		a.handleJobError(job.Label, runErr)
	} else if built.wf.Runner().IsDryRun() {
		result.State = "dry-run"
	}

	a.writeReport(built, runErr)
	return result
}

// build bundles what assembling one job produced.
type build struct {
	wf       *workflow.Workflow
	recorder *report.RecordingRunner
	jobType  string
}

// assemble resolves the job's settings and builds its workflow: the
// command runner, the backup type with its hooks, the path filters, and
// the job's own hook commands. Nothing is executed.
func (a *App) assemble(job *config.JobDefinition) (*build, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}
	settings, err := job.ResolveSettings(a.settings)
	if err != nil {
		return nil, err
	}

	var runner execution.Runner = a.newRunner(execution.Config{
		SSHPath:       settings.SSHPath,
		SSHPort:       settings.SSHPort,
		RemoteUser:    settings.RemoteUser,
		DryRun:        settings.DryRun,
		MaxRetries:    settings.MaxRetries,
		RetryInterval: settings.RetryInterval,
	}, a.logger)

	var recorder *report.RecordingRunner
	if a.reports != nil {
		recorder = report.NewRecordingRunner(runner)
		runner = recorder
	}

	wf := workflow.New(workflow.Config{
		Label:      job.Label,
		SourceHost: sourceHost(job.Host),
	}, runner, a.logger)

	switch job.Type {
	case config.JobTypeRdiff:
		if _, err := rdiff.New(wf, rdiffConfig(settings), a.logger); err != nil {
			return nil, err
		}
		addFilters(wf, job)
	case config.JobTypeRdiffLVM:
		mgr, err := a.attachVolumes(wf, job, settings)
		if err != nil {
			return nil, err
		}
		backup, err := rdiff.New(wf, rdiffConfig(settings), a.logger)
		if err != nil {
			return nil, err
		}
		backup.SetTopLevelSrcDir(mgr.MountBase())
		addFilters(wf, job)
	case config.JobTypeZFSLVM:
		mgr, err := a.attachVolumes(wf, job, settings)
		if err != nil {
			return nil, err
		}
		_, err = zfs.New(wf, zfs.Config{
			SourceDir:              mgr.MountBase(),
			RsyncDst:               job.RsyncDst,
			ZFSHost:                job.ZFSHost,
			Dataset:                job.Dataset,
			SnapshotPrefix:         settings.ZFSSnapshotPrefix,
			SnapshotExpirationDays: settings.SnapshotExpirationDays,
			RsyncPath:              settings.RsyncPath,
			RsyncOptions:           settings.RsyncOptions,
		}, a.logger)
		if err != nil {
			return nil, err
		}
	default:
		return nil, config.NewValidationError(fmt.Sprintf("unknown job type %q", job.Type), nil)
	}

	addHookCommands(wf, job)
	return &build{wf: wf, recorder: recorder, jobType: job.Type}, nil
}

func rdiffConfig(settings *config.Settings) rdiff.Config {
	return rdiff.Config{
		BackupStore:     settings.BackupStore,
		TopLevelSrcDir:  settings.TopLevelSrcDir,
		RdiffBackupPath: settings.RdiffBackupPath,
		RemoteUser:      settings.RemoteUser,
		SSHCompression:  settings.SSHCompression,
		RemoveOlderThan: settings.RemoveOlderThan,
	}
}

func (a *App) attachVolumes(wf *workflow.Workflow, job *config.JobDefinition, settings *config.Settings) (*lvm.Manager, error) {
	mgr, err := lvm.NewManager(wf, lvm.Config{
		SnapshotMountRoot: settings.SnapshotMountRoot,
		SnapshotSuffix:    settings.SnapshotSuffix,
		SnapshotSize:      settings.SnapshotSize,
	}, a.logger)
	if err != nil {
		return nil, err
	}
	for _, vol := range job.Volumes {
		if err := mgr.AddVolume(vol.Name, vol.MountPoint, vol.MountOptions...); err != nil {
			return nil, err
		}
	}
	return mgr, nil
}

// addFilters registers the job's path filters. Excludes go first:
// rdiff-backup applies the first matching filter, so an exclude carving
// a subtree out of an included tree has to precede that include.
func addFilters(wf *workflow.Workflow, job *config.JobDefinition) {
	for _, path := range job.Exclude {
		wf.ExcludeDir(path)
	}
	for _, path := range job.Include {
		wf.IncludeDir(path)
	}
}

// addHookCommands registers the job's own pre and post commands at
// LevelDefault. They run as shell lines on the source host. Post
// commands run in the error case too, so a service stopped by a pre
// command comes back even when the run fails in between.
func addHookCommands(wf *workflow.Workflow, job *config.JobDefinition) {
	host := wf.SourceHost()
	for _, line := range job.PreCommand {
		wf.AddPreHook(workflow.LevelDefault, "pre command: "+line, func() error {
			_, err := wf.RunShellCommand(line, host)
			return err
		})
	}
	for _, line := range job.PostCommand {
		wf.AddPostHook(workflow.LevelDefault, "post command: "+line, func(bool) error {
			_, err := wf.RunShellCommand(line, host)
			return err
		})
	}
}

// sourceHost normalizes the job's host field: the workflow treats the
// empty string as the local machine.
func sourceHost(host string) string {
	if host == execution.LocalHost {
		return ""
	}
	return host
}

// writeReport hands the finished run to the report pipeline. Reporting
// is a side channel: a failed write is logged and changes nothing about
// the run's outcome.
func (a *App) writeReport(built *build, runErr error) {
	if a.reports == nil {
		return
	}
	rep := report.Build(built.wf, built.jobType, built.recorder, runErr)
	if err := a.reports.Write(rep); err != nil {
		a.logger.WithFields(map[string]interface{}{
			"label":  rep.Label,
			"run_id": rep.RunID,
			"error":  err.Error(),
		}).Error("Failed to write run report")
	}
}

// handleJobError logs a failed job and prints hints for the failure
// classes an operator can usually fix without reading code.
func (a *App) handleJobError(label string, err error) {
	a.logger.WithFields(map[string]interface{}{
		"label": label,
		"error": err.Error(),
	}).Error("Job failed")

	fmt.Fprintf(a.hintWriter, "Error: job %s: %s\n", label, err)

	var cmdErr *execution.CommandError
	var snapErr *workflow.SnapshotError
	var cfgErr *config.ConfigError
	switch {
	case errors.As(err, &cmdErr):
		if errors.Is(err, execution.ErrCommandNotFound) {
			fmt.Fprintf(a.hintWriter, "\nTroubleshooting hints:\n")
			fmt.Fprintf(a.hintWriter, "- Check that the backup tools are installed on %s\n", cmdErr.Host)
			fmt.Fprintf(a.hintWriter, "- Verify the configured tool paths (ssh_path, rsync_path, rdiff_backup_path)\n")
		} else if cmdErr.Host != execution.LocalHost {
			fmt.Fprintf(a.hintWriter, "\nTroubleshooting hints:\n")
			fmt.Fprintf(a.hintWriter, "- Check ssh connectivity to %s as the configured remote user\n", cmdErr.Host)
			fmt.Fprintf(a.hintWriter, "- Verify the ssh port and that key authentication works non-interactively\n")
		}
	case errors.As(err, &snapErr):
		fmt.Fprintf(a.hintWriter, "\nTroubleshooting hints:\n")
		fmt.Fprintf(a.hintWriter, "- Check free extents in the volume group (vgs) and the configured snapshot_size\n")
		fmt.Fprintf(a.hintWriter, "- Look for snapshots or mounts leaked by an earlier run (lvs, mount)\n")
	case errors.As(err, &cfgErr):
		fmt.Fprintf(a.hintWriter, "\nTroubleshooting hints:\n")
		fmt.Fprintf(a.hintWriter, "- Review the job file and the engine configuration\n")
		fmt.Fprintf(a.hintWriter, "- Run the check command to validate all job files\n")
	}
}

func (a *App) renderSummary(results []JobResult) {
	rows := make([]display.ResultRow, 0, len(results))
	for _, res := range results {
		rows = append(rows, display.ResultRow{
			Label:    res.Label,
			Type:     res.Type,
			Host:     res.Host,
			State:    res.State,
			Duration: res.Duration,
			Errors:   res.Errors,
		})
	}
	a.display.SummaryTable(rows)
}

// RenderJobs prints the job table for the list command.
func (a *App) RenderJobs(jobs []*config.JobDefinition) {
	rows := make([]display.JobRow, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, display.JobRow{
			Label: job.Label,
			Type:  job.Type,
			Host:  job.Host,
			Paths: len(job.Include) + len(job.Exclude) + len(job.Volumes),
		})
	}
	a.display.JobTable(rows)
}

// jobFiles expands args into individual job file paths, in filename
// order per directory. No args expands the configured jobs directory.
func (a *App) jobFiles(args []string) ([]string, error) {
	if len(args) == 0 {
		args = []string{a.settings.JobsDir}
	}

	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, config.NewNotFoundError(fmt.Sprintf("cannot read %s", arg), err)
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, config.NewNotFoundError(fmt.Sprintf("cannot read jobs directory %s", arg), err)
		}
		var dirFiles []string
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			switch filepath.Ext(entry.Name()) {
			case ".yaml", ".yml":
				dirFiles = append(dirFiles, filepath.Join(arg, entry.Name()))
			}
		}
		sort.Strings(dirFiles)
		files = append(files, dirFiles...)
	}
	return files, nil
}
