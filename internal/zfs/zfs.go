// Package zfs implements backups onto ZFS datasets. The transfer is an
// rsync of the source tree into the dataset; history comes from ZFS
// snapshots taken after each successful run instead of from the transfer
// tool, with expired snapshots destroyed by age.
package zfs

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"backup-runner/internal/logging"
	"backup-runner/internal/workflow"
)

// TimestampLayout is embedded in snapshot names. Expiration parses it
// back out, so the name is the only record of a snapshot's age this
// package relies on.
const TimestampLayout = "2006-01-02--1504"

// DefaultRsyncOptions mirror the dataset exactly: deletions propagate
// and files are updated in place so ZFS snapshots stay cheap.
var DefaultRsyncOptions = []string{
	"--archive",
	"--acls",
	"--numeric-ids",
	"--delete",
	"--inplace",
}

// Config holds the ZFS specific settings of a job.
type Config struct {
	// SourceDir is the directory tree rsync copies; usually a snapshot
	// mount base. The whole subtree is transferred.
	SourceDir string
	// RsyncDst is rsync's destination argument, for example
	// "backupbox:/backup-store/mybackup".
	RsyncDst string
	// ZFSHost is the host where zfs commands run.
	ZFSHost string
	// Dataset is the ZFS dataset backing RsyncDst, for example
	// "tank/backup-store/mybackup".
	Dataset string
	// SnapshotPrefix marks the snapshots this tool manages; foreign
	// snapshots on the dataset are never touched. Defaults to
	// backup-runner-.
	SnapshotPrefix string
	// SnapshotExpirationDays destroys managed snapshots older than this
	// many days. Zero keeps snapshots forever.
	SnapshotExpirationDays int
	// RsyncPath is the rsync binary on the source host. Defaults to
	// /usr/bin/rsync.
	RsyncPath string
	// RsyncOptions replaces DefaultRsyncOptions when set.
	RsyncOptions []string
}

// Backup wires an rsync-to-ZFS transfer into a workflow.
type Backup struct {
	wf     *workflow.Workflow
	config Config
	logger *logging.Logger

	now func() time.Time
}

// New attaches a ZFS backup to wf: the rsync transfer, a dataset
// snapshot post hook, and, when expiration is configured, a snapshot
// expiration post hook. Both post hooks stand down when the run already
// failed.
func New(wf *workflow.Workflow, config Config, logger *logging.Logger) (*Backup, error) {
	if wf == nil {
		return nil, errors.New("workflow is required")
	}
	if config.SourceDir == "" {
		return nil, errors.New("source directory is required")
	}
	if config.RsyncDst == "" {
		return nil, errors.New("rsync destination is required")
	}
	if config.ZFSHost == "" {
		return nil, errors.New("zfs host is required")
	}
	if config.Dataset == "" {
		return nil, errors.New("dataset name is required")
	}
	if config.SnapshotPrefix == "" {
		config.SnapshotPrefix = "backup-runner-"
	}
	if config.RsyncPath == "" {
		config.RsyncPath = "/usr/bin/rsync"
	}
	if config.RsyncOptions == nil {
		config.RsyncOptions = DefaultRsyncOptions
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	b := &Backup{
		wf:     wf,
		config: config,
		logger: logger,
		now:    time.Now,
	}
	wf.SetTransfer(b.transfer)
	wf.AddPostHook(workflow.LevelDatasetSnapshot, "create zfs snapshot", b.createSnapshot)
	if config.SnapshotExpirationDays > 0 {
		wf.AddPostHook(workflow.LevelDatasetRetention, "remove expired zfs snapshots", b.removeExpiredSnapshots)
	}
	return b, nil
}

// Workflow returns the workflow this backup is attached to.
func (b *Backup) Workflow() *workflow.Workflow {
	return b.wf
}

// TransferArgs composes the rsync command line.
func (b *Backup) TransferArgs() []string {
	args := []string{b.config.RsyncPath}
	args = append(args, b.config.RsyncOptions...)
	// The .zfs control directory would otherwise drag previous
	// snapshots into the copy.
	args = append(args, "--exclude", "/.zfs")
	src := strings.TrimSuffix(b.config.SourceDir, "/") + "/"
	args = append(args, src, b.config.RsyncDst)
	return args
}

// transfer runs rsync on the source host, pushing to the destination.
func (b *Backup) transfer() error {
	b.logger.Infof("Syncing %s to %s", b.config.SourceDir, b.config.RsyncDst)
	_, err := b.wf.RunCommand(b.TransferArgs(), b.wf.SourceHost())
	return err
}

// SnapshotName returns the snapshot a run started at t would create.
func (b *Backup) SnapshotName(t time.Time) string {
	return fmt.Sprintf("%s@%s%s", b.config.Dataset, b.config.SnapshotPrefix, t.Format(TimestampLayout))
}

func (b *Backup) createSnapshot(errorCase bool) error {
	if errorCase {
		b.logger.Debug("Skipping zfs snapshot after an earlier failure")
		return nil
	}
	name := b.SnapshotName(b.now())
	_, err := b.wf.RunCommand([]string{"zfs", "snapshot", name}, b.config.ZFSHost)
	b.logger.LogSnapshotOperation("create", name, err)
	if err != nil {
		return workflow.NewSnapshotError("create", name, err)
	}
	return nil
}

// removeExpiredSnapshots destroys managed snapshots older than the
// expiration window. Age comes from the timestamp embedded in the
// snapshot name; snapshots whose name will not parse are left alone.
func (b *Backup) removeExpiredSnapshots(errorCase bool) error {
	if errorCase {
		b.logger.Debug("Skipping zfs snapshot expiration after an earlier failure")
		return nil
	}

	res, err := b.wf.RunCommand(
		[]string{"zfs", "get", "-rH", "-o", "name,value", "type", b.config.Dataset},
		b.config.ZFSHost,
	)
	if err != nil {
		return workflow.NewSnapshotError("list", b.config.Dataset, err)
	}

	cutoff := b.now().Add(-time.Duration(b.config.SnapshotExpirationDays) * 24 * time.Hour)
	errs := &workflow.ErrorList{}
	for _, name := range b.expiredSnapshots(res.Stdout, cutoff) {
		_, err := b.wf.RunCommand([]string{"zfs", "destroy", name}, b.config.ZFSHost)
		b.logger.LogSnapshotOperation("destroy", name, err)
		if err != nil {
			errs.Add(workflow.NewSnapshotError("destroy", name, err))
		}
	}
	return errs.ErrOrNil()
}

// expiredSnapshots parses `zfs get -rH -o name,value type` output and
// returns the managed snapshots created before cutoff.
func (b *Backup) expiredSnapshots(listing string, cutoff time.Time) []string {
	var expired []string
	for _, line := range strings.Split(listing, "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 || fields[1] != "snapshot" {
			continue
		}
		name := fields[0]
		at := strings.IndexByte(name, '@')
		if at < 0 {
			continue
		}
		short := name[at+1:]
		if !strings.HasPrefix(short, b.config.SnapshotPrefix) {
			continue
		}
		created, err := time.Parse(TimestampLayout, strings.TrimPrefix(short, b.config.SnapshotPrefix))
		if err != nil {
			b.logger.Warnf("Cannot parse timestamp in snapshot name %q, leaving it alone", name)
			continue
		}
		if created.Before(cutoff) {
			expired = append(expired, name)
		}
	}
	return expired
}
