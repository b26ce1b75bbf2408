// Package lvm manages LVM snapshot lifecycles for backup jobs. A
// Manager registers pre hooks that snapshot and mount each configured
// logical volume on the source host, and a post hook that unmounts and
// removes the snapshots again whatever happened in between.
package lvm

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"backup-runner/internal/logging"
	"backup-runner/internal/workflow"
)

// Volume is one logical volume to snapshot.
type Volume struct {
	// Name is the volume in "vg/lv" form.
	Name string
	// MountPoint is where the volume is mounted on the source host, for
	// example "/var". The snapshot is mounted at the same relative
	// position under the manager's mount base.
	MountPoint string
	// MountOptions is a mount -o option string such as "ro,noatime".
	// Empty mounts with the defaults.
	MountOptions string
}

// snapshot tracks how far one volume got through the lifecycle, so
// teardown only undoes what actually happened.
type snapshot struct {
	volume         Volume
	lvPath         string // vg/lv-suffix, for lvremove
	device         string // /dev/vg/lv-suffix, for mount
	mountPoint     string
	created        bool
	mountPointMade bool
	mounted        bool
}

// Config holds snapshot settings shared by all volumes of a job.
type Config struct {
	// SnapshotMountRoot is the directory snapshot mounts are created
	// under. Defaults to /tmp.
	SnapshotMountRoot string
	// SnapshotSuffix is appended to the logical volume name of each
	// snapshot. Defaults to -backup-runner.
	SnapshotSuffix string
	// SnapshotSize is the copy-on-write space for each snapshot, in
	// lvcreate -L syntax. Defaults to 1G.
	SnapshotSize string
}

// Manager snapshots a set of logical volumes around a workflow run.
type Manager struct {
	wf        *workflow.Workflow
	config    Config
	logger    *logging.Logger
	volumes   []Volume
	snapshots []*snapshot
}

// NewManager attaches snapshot handling to wf. Creation and mounting run
// at workflow.LevelSnapshotCreate so job hooks at lower levels can
// quiesce services first; teardown runs at workflow.LevelSnapshotTeardown
// and executes even when the run failed.
func NewManager(wf *workflow.Workflow, config Config, logger *logging.Logger) (*Manager, error) {
	if wf == nil {
		return nil, errors.New("workflow is required")
	}
	if config.SnapshotMountRoot == "" {
		config.SnapshotMountRoot = "/tmp"
	}
	if config.SnapshotSuffix == "" {
		config.SnapshotSuffix = "-backup-runner"
	}
	if config.SnapshotSize == "" {
		config.SnapshotSize = "1G"
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	m := &Manager{
		wf:     wf,
		config: config,
		logger: logger,
	}
	wf.AddPreHook(workflow.LevelSnapshotCreate, "create lvm snapshots", m.createSnapshots)
	wf.AddPreHook(workflow.LevelSnapshotCreate, "mount lvm snapshots", m.mountSnapshots)
	wf.AddPostHook(workflow.LevelSnapshotTeardown, "remove lvm snapshots", m.removeSnapshots)
	return m, nil
}

// AddVolume registers a volume to snapshot. Volumes are processed in
// registration order. mountOptions are joined into a single mount -o
// argument.
func (m *Manager) AddVolume(name, mountPoint string, mountOptions ...string) error {
	parts := strings.Split(name, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("volume name %q is not in vg/lv form", name)
	}
	if mountPoint == "" {
		return fmt.Errorf("volume %q has no mount point", name)
	}
	m.volumes = append(m.volumes, Volume{
		Name:         name,
		MountPoint:   mountPoint,
		MountOptions: strings.Join(mountOptions, ","),
	})
	return nil
}

// Volumes returns the registered volumes in registration order.
func (m *Manager) Volumes() []Volume {
	out := make([]Volume, len(m.volumes))
	copy(out, m.volumes)
	return out
}

// MountBase returns the directory the snapshot mounts live under for
// this job. Transfers read the snapshotted tree from here.
func (m *Manager) MountBase() string {
	return filepath.Join(m.config.SnapshotMountRoot, m.wf.Label())
}

// createSnapshots runs lvcreate for every registered volume on the
// source host. The first failure aborts the pre phase; teardown then
// removes whatever was already created.
func (m *Manager) createSnapshots() error {
	host := m.wf.SourceHost()
	for _, vol := range m.volumes {
		parts := strings.Split(vol.Name, "/")
		vg, lv := parts[0], parts[1]
		snapLV := lv + m.config.SnapshotSuffix

		snap := &snapshot{
			volume:     vol,
			lvPath:     vg + "/" + snapLV,
			device:     "/dev/" + vg + "/" + snapLV,
			mountPoint: filepath.Join(m.MountBase(), vol.MountPoint),
		}
		m.snapshots = append(m.snapshots, snap)

		args := []string{"lvcreate", "-s", "-L", m.config.SnapshotSize, vol.Name, "-n", snapLV}
		_, err := m.wf.RunCommand(args, host)
		m.logger.LogSnapshotOperation("create", snap.lvPath, err)
		if err != nil {
			return workflow.NewSnapshotError("create", snap.lvPath, err)
		}
		snap.created = true
	}
	return nil
}

// mountSnapshots mounts every created snapshot under the mount base and
// then rewrites the workflow's path filters onto the mounted tree.
func (m *Manager) mountSnapshots() error {
	host := m.wf.SourceHost()
	for _, snap := range m.snapshots {
		if _, err := m.wf.RunCommand([]string{"mkdir", "-p", snap.mountPoint}, host); err != nil {
			return workflow.NewSnapshotError("prepare mount point", snap.mountPoint, err)
		}
		snap.mountPointMade = true

		// A mount already sitting at the target means a previous run
		// leaked; refuse rather than stack mounts on top of it.
		if _, err := m.wf.RunCommand([]string{"mountpoint", "-q", snap.mountPoint}, host); err == nil {
			return workflow.NewSnapshotError("mount", snap.mountPoint,
				fmt.Errorf("%s is already a mount point", snap.mountPoint))
		}

		args := []string{"mount"}
		if snap.volume.MountOptions != "" {
			args = append(args, "-o", snap.volume.MountOptions)
		}
		args = append(args, snap.device, snap.mountPoint)
		_, err := m.wf.RunCommand(args, host)
		m.logger.LogSnapshotOperation("mount", snap.mountPoint, err)
		if err != nil {
			return workflow.NewSnapshotError("mount", snap.mountPoint, err)
		}
		snap.mounted = true
	}

	m.wf.PrefixFilterPaths("", m.MountBase())
	return nil
}

// removeSnapshots unmounts and deletes the snapshots in reverse creation
// order. It keeps going past individual failures so one stuck volume
// does not leave the rest behind, and returns all failures together.
func (m *Manager) removeSnapshots(bool) error {
	host := m.wf.SourceHost()
	errs := &workflow.ErrorList{}
	for i := len(m.snapshots) - 1; i >= 0; i-- {
		snap := m.snapshots[i]

		if snap.mounted {
			_, err := m.wf.RunCommandWithRetries([]string{"umount", snap.mountPoint}, host)
			m.logger.LogSnapshotOperation("unmount", snap.mountPoint, err)
			if err != nil {
				// The volume cannot be removed while it is mounted.
				errs.Add(workflow.NewSnapshotError("unmount", snap.mountPoint, err))
				continue
			}
			snap.mounted = false
		}

		if snap.mountPointMade {
			if _, err := m.wf.RunCommand([]string{"rmdir", snap.mountPoint}, host); err != nil {
				errs.Add(workflow.NewSnapshotError("remove mount point", snap.mountPoint, err))
			} else {
				snap.mountPointMade = false
			}
		}

		if snap.created {
			_, err := m.wf.RunCommand([]string{"lvremove", "-f", snap.lvPath}, host)
			m.logger.LogSnapshotOperation("remove", snap.lvPath, err)
			if err != nil {
				errs.Add(workflow.NewSnapshotError("remove", snap.lvPath, err))
			} else {
				snap.created = false
			}
		}
	}
	return errs.ErrOrNil()
}
