package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// listCmd lists the configured jobs
var listCmd = &cobra.Command{
	Use:   "list [job-file|job-dir ...]",
	Short: "List the configured jobs",
	Long: `List the configured jobs as a table.

Without arguments, the jobs directory is listed. Arguments name specific
job files or directories of job files to list instead.`,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

// runList loads the requested jobs and renders them as a table
func runList(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	jobs, err := a.LoadJobs(args)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No jobs found in %s.\n", a.Settings().JobsDir)
		return nil
	}

	a.RenderJobs(jobs)
	return nil
}
