package app

import (
	"errors"
	"fmt"

	"backup-runner/internal/config"
	"backup-runner/internal/display"
)

// FileCheck is the verdict on one job definition file.
type FileCheck struct {
	Path string
	Job  *config.JobDefinition
	Err  error
}

// Check validates every job file named by args without executing
// anything. Each file has to parse, validate, and assemble into a
// workflow, so check fails for exactly the problems a run would fail
// for. It renders the job table and a report of errors, warnings and
// recommended fixes, and reports whether everything passed.
func (a *App) Check(args []string) (bool, error) {
	files, err := a.jobFiles(args)
	if err != nil {
		return false, err
	}

	checks := make([]FileCheck, 0, len(files))
	seen := make(map[string]string)
	for _, path := range files {
		check := FileCheck{Path: path}
		job, err := config.LoadJobFile(path)
		if err == nil {
			check.Job = job
			if other, ok := seen[job.Label]; ok {
				err = config.NewDuplicateError(
					fmt.Sprintf("label %q already defined in %s", job.Label, other), nil)
			} else {
				seen[job.Label] = path
				_, err = a.assemble(job)
			}
		}
		check.Err = err
		checks = append(checks, check)
	}

	diag := a.diagnose(checks)

	var rows []display.JobRow
	for _, check := range checks {
		if check.Err != nil || check.Job == nil {
			continue
		}
		rows = append(rows, display.JobRow{
			Label: check.Job.Label,
			Type:  check.Job.Type,
			Host:  check.Job.Host,
			Paths: len(check.Job.Include) + len(check.Job.Exclude) + len(check.Job.Volumes),
		})
	}
	if len(rows) > 0 {
		a.display.JobTable(rows)
	}
	a.display.CheckReport(diag)

	return diag.OK, nil
}

// diagnose turns the per-file verdicts into the check report. Broken
// files are errors; jobs that would run but accumulate history forever
// get a warning, since unbounded retention is almost always an
// oversight on a backup host.
func (a *App) diagnose(checks []FileCheck) display.Diagnostics {
	diag := display.Diagnostics{OK: true}

	if len(checks) == 0 {
		diag.Warnings = append(diag.Warnings,
			fmt.Sprintf("no job files found in %s", a.settings.JobsDir))
		return diag
	}

	for _, check := range checks {
		if check.Err != nil {
			diag.OK = false
			diag.Errors = append(diag.Errors, fmt.Sprintf("%s: %v", check.Path, check.Err))
			diag.Fixes = appendFixes(diag.Fixes, check, a.settings)
			continue
		}

		job := check.Job
		resolved, err := job.ResolveSettings(a.settings)
		if err != nil {
			continue
		}
		switch job.Type {
		case config.JobTypeRdiff, config.JobTypeRdiffLVM:
			if resolved.RemoveOlderThan == "" {
				diag.Warnings = append(diag.Warnings,
					fmt.Sprintf("job %q keeps increments forever (remove_older_than is unset)", job.Label))
			}
		case config.JobTypeZFSLVM:
			if resolved.SnapshotExpirationDays == 0 {
				diag.Warnings = append(diag.Warnings,
					fmt.Sprintf("job %q keeps zfs snapshots forever (snapshot_expiration_days is unset)", job.Label))
			}
		}
	}

	return diag
}

func appendFixes(fixes []string, check FileCheck, settings *config.Settings) []string {
	var cfgErr *config.ConfigError
	if errors.As(check.Err, &cfgErr) && cfgErr.Type == config.ConfigErrorTypeParse {
		return append(fixes,
			fmt.Sprintf("Fix the YAML in %s; unknown keys are rejected, check for typos", check.Path))
	}

	if check.Job != nil && settings.BackupStore == "" {
		switch check.Job.Type {
		case config.JobTypeRdiff, config.JobTypeRdiffLVM:
			hasOverride := check.Job.Settings != nil && check.Job.Settings.BackupStore != nil
			if !hasOverride {
				return append(fixes,
					"Set backup_store in the engine configuration or the job's settings block")
			}
		}
	}
	return fixes
}
