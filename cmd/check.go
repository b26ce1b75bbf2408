package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// checkCmd validates the configuration without running anything
var checkCmd = &cobra.Command{
	Use:   "check [job-file|job-dir ...]",
	Short: "Validate the engine settings and job files",
	Long: `Validate the engine settings and job files without running anything.

Every job file is loaded, validated and assembled exactly as a run would
assemble it, so check fails for the same problems a run would fail for:
unparseable YAML, unknown keys, missing required fields, duplicate labels
and unusable settings. Jobs that keep increments or snapshots forever are
reported as warnings.

Examples:
  # Check the jobs directory
  backup-runner check

  # Check one job file before installing it
  backup-runner check /tmp/new-job.yaml`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

// runCheck validates the requested jobs and reports problems
func runCheck(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	ok, err := a.Check(args)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("configuration check failed")
	}
	return nil
}
