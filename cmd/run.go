package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// runCmd runs backup jobs
var runCmd = &cobra.Command{
	Use:   "run [job-file|job-dir ...]",
	Short: "Run backup jobs",
	Long: `Run backup jobs.

Without arguments, every job file in the jobs directory runs in filename
order. Arguments name specific job files or directories of job files to
run instead. A failed job is reported but never stops the jobs after it;
the exit status is non-zero when any job failed.

Examples:
  # Run every job in the jobs directory
  backup-runner run

  # Run one specific job file
  backup-runner run /etc/backup-runner/jobs.d/www.yaml

  # Show the commands a run would execute without touching anything
  backup-runner run --dry-run`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// runRun loads the requested jobs and runs them in order
func runRun(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	a.SetupSignalHandling()

	jobs, err := a.LoadJobs(args)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return fmt.Errorf("no job files found in %s", a.Settings().JobsDir)
	}

	_, err = a.RunJobs(jobs)
	return err
}
