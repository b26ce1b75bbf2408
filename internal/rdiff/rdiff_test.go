package rdiff

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"backup-runner/internal/execution"
	"backup-runner/internal/workflow"
)

// fakeRunner records commands and optionally fails the matching ones.
type fakeRunner struct {
	commands []execution.Command
	failOn   string
}

func (f *fakeRunner) Run(cmd execution.Command) (execution.Result, error) {
	f.commands = append(f.commands, cmd)
	if f.failOn != "" && strings.Contains(strings.Join(cmd.Args, " "), f.failOn) {
		return execution.Result{ExitCode: 1}, errors.New("command failed")
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
	return false
}

func newTestBackup(t *testing.T, sourceHost string, config Config) (*Backup, *fakeRunner) {
	t.Helper()
	runner := &fakeRunner{}
	wf := workflow.New(workflow.Config{Label: "mybackup", SourceHost: sourceHost}, runner, nil)
	if config.BackupStore == "" {
		config.BackupStore = "/backup-store"
	}
	b, err := New(wf, config, nil)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	return b, runner
}

func TestNewValidation(t *testing.T) {
	runner := &fakeRunner{}
	wf := workflow.New(workflow.Config{Label: "mybackup"}, runner, nil)

	if _, err := New(nil, Config{BackupStore: "/backup-store"}, nil); err == nil {
		t.Error("New() with nil workflow returned no error")
	}
	if _, err := New(wf, Config{}, nil); err == nil {
		t.Error("New() without a backup store returned no error")
	}
}

func TestTransferArgsLocalSource(t *testing.T) {
	b, _ := newTestBackup(t, "", Config{})
	b.Workflow().IncludeDir("/etc")

	want := []string{
		"/usr/bin/rdiff-backup",
		"--exclude-device-files",
		"--exclude-fifos",
		"--exclude-sockets",
		"--terminal-verbosity", "1",
		"--include", "/etc",
		"--exclude", "**",
		"/",
		"/backup-store/mybackup",
	}
	if got := b.TransferArgs(); !reflect.DeepEqual(got, want) {
		t.Errorf("TransferArgs() = %v, want %v", got, want)
	}
}

func TestTransferArgsRemoteSource(t *testing.T) {
	b, _ := newTestBackup(t, "web1.example.com", Config{})
	b.Workflow().IncludeDir("/srv/www")

	want := []string{
		"/usr/bin/rdiff-backup",
		"--exclude-device-files",
		"--exclude-fifos",
		"--exclude-sockets",
		"--terminal-verbosity", "1",
		"--ssh-no-compression",
		"--include", "/srv/www",
		"--exclude", "**",
		"root@web1.example.com::/",
		"/backup-store/mybackup",
	}
	if got := b.TransferArgs(); !reflect.DeepEqual(got, want) {
		t.Errorf("TransferArgs() = %v, want %v", got, want)
	}
}

func TestTransferArgsSSHCompressionLeftOn(t *testing.T) {
	b, _ := newTestBackup(t, "web1.example.com", Config{SSHCompression: true})

	for _, arg := range b.TransferArgs() {
		if arg == "--ssh-no-compression" {
			t.Error("TransferArgs() contains --ssh-no-compression with compression enabled")
		}
	}
}

func TestTransferArgsLocalSourceNeverDisablesSSHCompression(t *testing.T) {
	b, _ := newTestBackup(t, "", Config{})

	for _, arg := range b.TransferArgs() {
		if arg == "--ssh-no-compression" {
			t.Error("TransferArgs() contains --ssh-no-compression for a local source")
		}
	}
}

func TestTransferArgsKeepFilterOrder(t *testing.T) {
	b, _ := newTestBackup(t, "", Config{})
	wf := b.Workflow()
	wf.IncludeDir("/var/www")
	wf.ExcludeDir("/var/www/cache")
	wf.IncludeDir("/etc")

	args := strings.Join(b.TransferArgs(), " ")
	want := "--include /var/www --exclude /var/www/cache --include /etc --exclude **"
	if !strings.Contains(args, want) {
		t.Errorf("TransferArgs() = %q, want filters in call order %q", args, want)
	}
}

func TestTransferArgsCustomPaths(t *testing.T) {
	b, _ := newTestBackup(t, "db1", Config{
		TopLevelSrcDir:  "/srv",
		RdiffBackupPath: "/usr/local/bin/rdiff-backup",
		RemoteUser:      "backup",
	})

	args := b.TransferArgs()
	if args[0] != "/usr/local/bin/rdiff-backup" {
		t.Errorf("binary = %q, want /usr/local/bin/rdiff-backup", args[0])
	}
	if src := args[len(args)-2]; src != "backup@db1::/srv" {
		t.Errorf("source = %q, want backup@db1::/srv", src)
	}
}

func TestSetTopLevelSrcDir(t *testing.T) {
	b, _ := newTestBackup(t, "", Config{})
	b.SetTopLevelSrcDir("/tmp/mybackup")

	args := b.TransferArgs()
	if src := args[len(args)-2]; src != "/tmp/mybackup" {
		t.Errorf("source = %q, want /tmp/mybackup", src)
	}
}

func TestRunExecutesTransferLocally(t *testing.T) {
	b, runner := newTestBackup(t, "web1.example.com", Config{})
	b.Workflow().IncludeDir("/etc")

	if err := b.Workflow().Run(); err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}
	if len(runner.commands) != 1 {
		t.Fatalf("runner saw %d commands, want 1", len(runner.commands))
	}
	cmd := runner.commands[0]
	if cmd.Host != execution.LocalHost {
		t.Errorf("transfer ran on %q, want %q", cmd.Host, execution.LocalHost)
	}
	if !reflect.DeepEqual(cmd.Args, b.TransferArgs()) {
		t.Errorf("transfer args = %v, want %v", cmd.Args, b.TransferArgs())
	}
}

func TestRetentionRunsAfterSuccessfulTransfer(t *testing.T) {
	b, runner := newTestBackup(t, "", Config{RemoveOlderThan: "30D"})
	b.Workflow().IncludeDir("/etc")

	if err := b.Workflow().Run(); err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}
	if len(runner.commands) != 2 {
		t.Fatalf("runner saw %d commands, want transfer plus expiration", len(runner.commands))
	}

	want := []string{
		"/usr/bin/rdiff-backup",
		"--force",
		"--remove-older-than", "30D",
		"/backup-store/mybackup",
	}
	if !reflect.DeepEqual(runner.commands[1].Args, want) {
		t.Errorf("expiration args = %v, want %v", runner.commands[1].Args, want)
	}
}

func TestRetentionSkippedAfterFailedTransfer(t *testing.T) {
	b, runner := newTestBackup(t, "", Config{RemoveOlderThan: "30D"})
	runner.failOn = "--terminal-verbosity"

	if err := b.Workflow().Run(); err == nil {
		t.Fatal("Run() returned nil, want transfer error")
	}
	for _, cmd := range runner.commands {
		for _, arg := range cmd.Args {
			if arg == "--remove-older-than" {
				t.Fatal("expiration ran after a failed transfer")
			}
		}
	}
}

func TestNoRetentionWithoutTimespec(t *testing.T) {
	b, runner := newTestBackup(t, "", Config{})

	if err := b.Workflow().Run(); err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}
	if len(runner.commands) != 1 {
		t.Errorf("runner saw %d commands, want just the transfer", len(runner.commands))
	}
}
