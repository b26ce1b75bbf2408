// Package rdiff builds rdiff-backup transfers on top of the workflow
// engine. It composes the rdiff-backup command line from the workflow's
// path filters and registers an optional increment expiration post hook.
package rdiff

import (
	"errors"
	"fmt"
	"path/filepath"

	"backup-runner/internal/execution"
	"backup-runner/internal/logging"
	"backup-runner/internal/workflow"
)

// DefaultOptions are passed to every rdiff-backup invocation. Device
// files, fifos and sockets rarely restore cleanly, and terminal
// verbosity 1 keeps cron mail down to real problems.
var DefaultOptions = []string{
	"--exclude-device-files",
	"--exclude-fifos",
	"--exclude-sockets",
	"--terminal-verbosity", "1",
}

// Config holds the rdiff-backup specific settings of a job.
type Config struct {
	// BackupStore is the directory on the backup server that holds one
	// repository per job label.
	BackupStore string
	// TopLevelSrcDir is the directory the path filters are relative to.
	// Defaults to "/".
	TopLevelSrcDir string
	// RdiffBackupPath is the rdiff-backup binary. Defaults to
	// /usr/bin/rdiff-backup.
	RdiffBackupPath string
	// RemoteUser is the account used for remote sources. Defaults to
	// root.
	RemoteUser string
	// SSHCompression leaves ssh compression on for remote sources. Off
	// by default because rdiff-backup already compresses its deltas.
	SSHCompression bool
	// RemoveOlderThan is an rdiff-backup timespec such as "30D" or "8W".
	// When set, increments older than this are expired after each
	// successful run. Empty disables expiration.
	RemoveOlderThan string
}

// Backup wires an rdiff-backup transfer into a workflow.
type Backup struct {
	wf     *workflow.Workflow
	config Config
	logger *logging.Logger
}

// New attaches an rdiff-backup transfer to wf. The workflow's path
// filters become --include/--exclude arguments when the transfer runs,
// so filters may still be added after New.
func New(wf *workflow.Workflow, config Config, logger *logging.Logger) (*Backup, error) {
	if wf == nil {
		return nil, errors.New("workflow is required")
	}
	if config.BackupStore == "" {
		return nil, errors.New("backup store path is required")
	}
	if config.TopLevelSrcDir == "" {
		config.TopLevelSrcDir = "/"
	}
	if config.RdiffBackupPath == "" {
		config.RdiffBackupPath = "/usr/bin/rdiff-backup"
	}
	if config.RemoteUser == "" {
		config.RemoteUser = "root"
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	b := &Backup{
		wf:     wf,
		config: config,
		logger: logger,
	}
	wf.SetTransfer(b.transfer)
	if config.RemoveOlderThan != "" {
		wf.AddPostHook(workflow.LevelStoreRetention, "remove expired increments", b.removeOlderThan)
	}
	return b, nil
}

// Workflow returns the workflow this backup is attached to.
func (b *Backup) Workflow() *workflow.Workflow {
	return b.wf
}

// SetTopLevelSrcDir repoints the transfer at dir. Snapshot managers use
// this once their mount tree replaces the live filesystem as the source.
func (b *Backup) SetTopLevelSrcDir(dir string) {
	b.config.TopLevelSrcDir = dir
}

// Destination returns the rdiff-backup repository path for this job.
func (b *Backup) Destination() string {
	return filepath.Join(b.config.BackupStore, b.wf.Label())
}

// TransferArgs composes the full rdiff-backup command line from the
// current configuration and the workflow's filters.
func (b *Backup) TransferArgs() []string {
	args := []string{b.config.RdiffBackupPath}
	args = append(args, DefaultOptions...)
	if b.remoteSource() && !b.config.SSHCompression {
		args = append(args, "--ssh-no-compression")
	}
	for _, f := range b.wf.Filters() {
		switch f.Kind {
		case workflow.FilterInclude:
			args = append(args, "--include", f.Path)
		case workflow.FilterExclude:
			args = append(args, "--exclude", f.Path)
		}
	}
	// Everything not explicitly included stays out of the repository.
	args = append(args, "--exclude", "**")
	args = append(args, b.source(), b.Destination())
	return args
}

// transfer runs rdiff-backup on the backup server. Remote sources are
// reached through rdiff-backup's own ssh tunnelling, not through the
// runner's remote wrapping, which is why the command always executes
// locally.
func (b *Backup) transfer() error {
	b.logger.Infof("Backing up %s to %s", b.source(), b.Destination())
	_, err := b.wf.RunCommand(b.TransferArgs(), "")
	return err
}

func (b *Backup) removeOlderThan(errorCase bool) error {
	if errorCase {
		b.logger.Debug("Skipping increment expiration after an earlier failure")
		return nil
	}
	b.logger.Infof("Removing increments older than %s from %s", b.config.RemoveOlderThan, b.Destination())
	args := []string{
		b.config.RdiffBackupPath,
		"--force",
		"--remove-older-than", b.config.RemoveOlderThan,
		b.Destination(),
	}
	_, err := b.wf.RunCommand(args, "")
	return err
}

func (b *Backup) remoteSource() bool {
	host := b.wf.SourceHost()
	return host != "" && host != execution.LocalHost
}

func (b *Backup) source() string {
	if !b.remoteSource() {
		return b.config.TopLevelSrcDir
	}
	return fmt.Sprintf("%s@%s::%s", b.config.RemoteUser, b.wf.SourceHost(), b.config.TopLevelSrcDir)
}
