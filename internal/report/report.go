// Package report builds and persists structured run reports.
//
// Every workflow run produces one RunReport: the run id, the job's
// identity, each state transition with its timestamp, every command the
// run dispatched (or composed, in dry-run mode), the outcome of each
// hook and of the transfer, and the collected errors. The Writer turns
// the report into a JSON artifact, optionally compresses and encrypts
// it, stores it in the configured sinks and prunes expired local
// artifacts.
//
// Reporting is a side channel. Callers log a Writer failure and move
// on; a lost report never changes the outcome of the run it describes.
package report

import (
	"errors"
	"fmt"
	"time"

	"backup-runner/internal/workflow"
)

// artifactTimeLayout is the timestamp prefix of artifact file names.
// It sorts lexicographically and contains no characters that are
// awkward in file names or object keys.
const artifactTimeLayout = "2006-01-02T150405"

// RunReport is the structured record of one workflow run.
type RunReport struct {
	RunID      string `json:"run_id"`
	Label      string `json:"label"`
	JobType    string `json:"job_type,omitempty"`
	SourceHost string `json:"source_host,omitempty"`
	DryRun     bool   `json:"dry_run"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	State      string    `json:"state"`

	Transitions []workflow.StateTransition `json:"state_transitions"`
	Hooks       []workflow.HookOutcome     `json:"hooks,omitempty"`
	Transfer    *workflow.TransferOutcome  `json:"transfer,omitempty"`
	Commands    []CommandRecord            `json:"commands,omitempty"`
	Errors      []string                   `json:"errors,omitempty"`
}

// Build assembles the report for a finished workflow run. jobType names
// the backup type that drove the workflow, recorder is the transcript
// of its commands (nil when no transcript was kept) and runErr is the
// value Run returned.
func Build(wf *workflow.Workflow, jobType string, recorder *RecordingRunner, runErr error) *RunReport {
	r := &RunReport{
		RunID:       wf.RunID(),
		Label:       wf.Label(),
		JobType:     jobType,
		SourceHost:  wf.SourceHost(),
		State:       string(wf.State()),
		Transitions: wf.Transitions(),
		Hooks:       wf.HookOutcomes(),
	}
	if transfer := wf.TransferResult(); transfer.Ran {
		r.Transfer = &transfer
	}
	if recorder != nil {
		r.Commands = recorder.Records()
		r.DryRun = recorder.IsDryRun()
	}
	if len(r.Transitions) > 0 {
		r.StartedAt = r.Transitions[0].At
		r.FinishedAt = r.Transitions[len(r.Transitions)-1].At
	}

	var list *workflow.ErrorList
	switch {
	case errors.As(runErr, &list):
		for _, err := range list.Errors() {
			r.Errors = append(r.Errors, err.Error())
		}
	case runErr != nil:
		r.Errors = append(r.Errors, runErr.Error())
	}
	return r
}

// ArtifactBase returns the artifact file name for this report before
// any extension: a sortable UTC timestamp plus the run id. Retention
// pruning parses the timestamp back out of the name, so it works on
// compressed and encrypted artifacts without opening them.
func (r *RunReport) ArtifactBase() string {
	finished := r.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	return fmt.Sprintf("%s-%s", finished.UTC().Format(artifactTimeLayout), r.RunID)
}

// artifactTime extracts the timestamp prefix of an artifact file name.
// It returns false for names that were not produced by ArtifactBase.
func artifactTime(name string) (time.Time, bool) {
	if len(name) < len(artifactTimeLayout) {
		return time.Time{}, false
	}
	ts, err := time.Parse(artifactTimeLayout, name[:len(artifactTimeLayout)])
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
