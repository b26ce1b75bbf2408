package report

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backup-runner/internal/execution"
)

type fakeRunner struct {
	commands []execution.Command
	dryRun   bool
	err      error
}

func (f *fakeRunner) Run(cmd execution.Command) (execution.Result, error) {
	f.commands = append(f.commands, cmd)
	if f.err != nil {
		return execution.Result{ExitCode: 1}, f.err
	}
	return execution.Result{}, nil
}

func (f *fakeRunner) RunWithRetries(cmd execution.Command) (execution.Result, error) {
	return f.Run(cmd)
}

func (f *fakeRunner) Compose(cmd execution.Command) []string {
	return cmd.Args
}

func (f *fakeRunner) IsDryRun() bool {
	return f.dryRun
}

func TestRecordingRunner_Run_KeepsTranscript(t *testing.T) {
	inner := &fakeRunner{}
	rec := NewRecordingRunner(inner)

	_, err := rec.Run(execution.Command{Args: []string{"lvcreate", "-s"}, Host: "web1"})
	require.NoError(t, err)
	_, err = rec.Run(execution.Command{Args: []string{"sync"}, Host: "localhost", UseShell: true})
	require.NoError(t, err)
	_, err = rec.RunWithRetries(execution.Command{Args: []string{"umount", "/mnt"}, Host: "web1"})
	require.NoError(t, err)

	records := rec.Records()
	require.Len(t, records, 3)
	assert.Equal(t, []string{"lvcreate", "-s"}, records[0].Args)
	assert.Equal(t, "web1", records[0].Host)
	assert.True(t, records[1].Shell, "shell command should be flagged in the transcript")
	assert.Equal(t, "umount", records[2].Args[0])
	for i, r := range records {
		assert.False(t, r.Start.IsZero(), "record %d should have a start time", i)
		assert.Empty(t, r.Error, "record %d should have no error", i)
	}
	assert.Len(t, inner.commands, 3, "all commands should reach the wrapped runner")
}

func TestRecordingRunner_Run_RecordsFailures(t *testing.T) {
	inner := &fakeRunner{err: errors.New("exit status 5")}
	rec := NewRecordingRunner(inner)

	_, err := rec.Run(execution.Command{Args: []string{"mount", "/dev/vg0/home"}, Host: "web1"})
	require.Error(t, err)

	records := rec.Records()
	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].ExitCode)
	assert.Equal(t, "exit status 5", records[0].Error)
}

func TestRecordingRunner_Run_CopiesArgs(t *testing.T) {
	rec := NewRecordingRunner(&fakeRunner{})

	args := []string{"zfs", "destroy", "tank/backups@old"}
	_, err := rec.Run(execution.Command{Args: args, Host: "backupbox"})
	require.NoError(t, err)
	args[1] = "mutated"

	assert.Equal(t, "destroy", rec.Records()[0].Args[1],
		"transcript should not change when the caller mutates its slice")
}

func TestRecordingRunner_ComposeAndDryRun_PassThrough(t *testing.T) {
	rec := NewRecordingRunner(&fakeRunner{dryRun: true})

	composed := rec.Compose(execution.Command{Args: []string{"rsync", "-a"}})
	assert.Equal(t, []string{"rsync", "-a"}, composed)
	assert.Empty(t, rec.Records(), "Compose should not add a transcript entry")
	assert.True(t, rec.IsDryRun())
}
