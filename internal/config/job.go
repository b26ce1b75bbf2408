package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Job types supported by the engine.
const (
	// JobTypeRdiff backs up a live filesystem with rdiff-backup.
	JobTypeRdiff = "rdiff"
	// JobTypeRdiffLVM backs up LVM snapshots with rdiff-backup.
	JobTypeRdiffLVM = "rdiff-lvm"
	// JobTypeZFSLVM rsyncs LVM snapshots onto a ZFS dataset.
	JobTypeZFSLVM = "zfs-lvm"
)

// JobDefinition is one declarative job file.
type JobDefinition struct {
	// Label names the job and its backup destination.
	Label string `yaml:"label"`
	// Type selects the backup workflow: rdiff, rdiff-lvm or zfs-lvm.
	Type string `yaml:"type"`
	// Host is the source host. Empty or "localhost" backs up the local
	// machine.
	Host string `yaml:"host"`
	// Include and Exclude are path filters for rdiff types. The engine
	// registers the excludes before the includes: rdiff-backup applies
	// the first matching filter, so carving a subtree out of an included
	// tree needs its exclude up front.
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
	// Volumes lists the logical volumes to snapshot for LVM types.
	Volumes []VolumeDefinition `yaml:"volumes"`
	// RsyncDst, ZFSHost and Dataset configure zfs-lvm jobs.
	RsyncDst string `yaml:"rsync_dst"`
	ZFSHost  string `yaml:"zfs_host"`
	Dataset  string `yaml:"dataset"`
	// PreCommand and PostCommand are shell command lines run on the
	// source host as job hooks before and after the transfer. Post
	// commands run even when the job already failed.
	PreCommand  []string `yaml:"pre_command"`
	PostCommand []string `yaml:"post_command"`
	// Settings overrides a subset of the engine settings for this job.
	Settings *JobSettings `yaml:"settings"`
}

// VolumeDefinition is one logical volume of an LVM job.
type VolumeDefinition struct {
	// Name is the volume in vg/lv form.
	Name string `yaml:"name"`
	// MountPoint is where the volume is mounted on the source host.
	MountPoint string `yaml:"mount_point"`
	// MountOptions are passed to mount -o when mounting the snapshot.
	MountOptions []string `yaml:"mount_options"`
}

// JobSettings is the per-job settings override block. Nil fields keep
// the engine-wide value.
type JobSettings struct {
	BackupStore            *string  `yaml:"backup_store"`
	RemoteUser             *string  `yaml:"remote_user"`
	SSHPath                *string  `yaml:"ssh_path"`
	SSHPort                *int     `yaml:"ssh_port"`
	RsyncPath              *string  `yaml:"rsync_path"`
	RsyncOptions           []string `yaml:"rsync_options"`
	RdiffBackupPath        *string  `yaml:"rdiff_backup_path"`
	RemoveOlderThan        *string  `yaml:"remove_older_than"`
	SSHCompression         *bool    `yaml:"ssh_compression"`
	TopLevelSrcDir         *string  `yaml:"top_level_src_dir"`
	SnapshotMountRoot      *string  `yaml:"snapshot_mount_root"`
	SnapshotSuffix         *string  `yaml:"snapshot_suffix"`
	SnapshotSize           *string  `yaml:"snapshot_size"`
	ZFSSnapshotPrefix      *string  `yaml:"zfs_snapshot_prefix"`
	SnapshotExpirationDays *int     `yaml:"snapshot_expiration_days"`
	MaxRetries             *int     `yaml:"max_retries"`
	RetryInterval          *string  `yaml:"retry_interval"`
}

// Validate checks the job definition for problems no run could recover
// from.
func (j *JobDefinition) Validate() error {
	var errs []string

	switch {
	case j.Label == "":
		errs = append(errs, "label is required")
	case strings.ContainsAny(j.Label, "/ \t") || j.Label == "." || j.Label == "..":
		errs = append(errs, fmt.Sprintf("label %q cannot be used in paths", j.Label))
	}

	switch j.Type {
	case JobTypeRdiff:
		if len(j.Include) == 0 {
			errs = append(errs, "rdiff jobs need at least one include path")
		}
		if len(j.Volumes) > 0 {
			errs = append(errs, "volumes are only used by lvm job types")
		}
	case JobTypeRdiffLVM:
		if len(j.Include) == 0 {
			errs = append(errs, "rdiff-lvm jobs need at least one include path")
		}
		if len(j.Volumes) == 0 {
			errs = append(errs, "rdiff-lvm jobs need at least one volume")
		}
	case JobTypeZFSLVM:
		if len(j.Volumes) == 0 {
			errs = append(errs, "zfs-lvm jobs need at least one volume")
		}
		if j.RsyncDst == "" {
			errs = append(errs, "zfs-lvm jobs need rsync_dst")
		}
		if j.ZFSHost == "" {
			errs = append(errs, "zfs-lvm jobs need zfs_host")
		}
		if j.Dataset == "" {
			errs = append(errs, "zfs-lvm jobs need dataset")
		}
		if len(j.Include) > 0 || len(j.Exclude) > 0 {
			errs = append(errs, "zfs-lvm jobs copy the whole volume subtree; include/exclude are not supported")
		}
	case "":
		errs = append(errs, "type is required")
	default:
		errs = append(errs, fmt.Sprintf("unknown job type %q", j.Type))
	}

	for _, vol := range j.Volumes {
		parts := strings.Split(vol.Name, "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			errs = append(errs, fmt.Sprintf("volume name %q is not in vg/lv form", vol.Name))
		}
		if vol.MountPoint == "" {
			errs = append(errs, fmt.Sprintf("volume %q has no mount point", vol.Name))
		}
	}

	for _, cmd := range append(append([]string{}, j.PreCommand...), j.PostCommand...) {
		if strings.TrimSpace(cmd) == "" {
			errs = append(errs, "hook commands cannot be empty")
		}
	}

	if len(errs) > 0 {
		return NewValidationError(
			fmt.Sprintf("job %q: %s", j.Label, strings.Join(errs, "; ")), nil,
		).WithContext("label", j.Label)
	}
	return nil
}

// UsesLVM reports whether this job snapshots logical volumes.
func (j *JobDefinition) UsesLVM() bool {
	return j.Type == JobTypeRdiffLVM || j.Type == JobTypeZFSLVM
}

// ResolveSettings returns a copy of base with this job's overrides
// applied.
func (j *JobDefinition) ResolveSettings(base *Settings) (*Settings, error) {
	resolved := *base
	if base.RsyncOptions != nil {
		resolved.RsyncOptions = append([]string(nil), base.RsyncOptions...)
	}
	if j.Settings != nil {
		if err := j.Settings.applyTo(&resolved); err != nil {
			return nil, err
		}
	}
	if err := resolved.Validate(); err != nil {
		return nil, err
	}
	return &resolved, nil
}

func (p *JobSettings) applyTo(s *Settings) error {
	if p.BackupStore != nil {
		s.BackupStore = *p.BackupStore
	}
	if p.RemoteUser != nil {
		s.RemoteUser = *p.RemoteUser
	}
	if p.SSHPath != nil {
		s.SSHPath = *p.SSHPath
	}
	if p.SSHPort != nil {
		s.SSHPort = *p.SSHPort
	}
	if p.RsyncPath != nil {
		s.RsyncPath = *p.RsyncPath
	}
	if p.RsyncOptions != nil {
		s.RsyncOptions = append([]string(nil), p.RsyncOptions...)
	}
	if p.RdiffBackupPath != nil {
		s.RdiffBackupPath = *p.RdiffBackupPath
	}
	if p.RemoveOlderThan != nil {
		s.RemoveOlderThan = *p.RemoveOlderThan
	}
	if p.SSHCompression != nil {
		s.SSHCompression = *p.SSHCompression
	}
	if p.TopLevelSrcDir != nil {
		s.TopLevelSrcDir = *p.TopLevelSrcDir
	}
	if p.SnapshotMountRoot != nil {
		s.SnapshotMountRoot = *p.SnapshotMountRoot
	}
	if p.SnapshotSuffix != nil {
		s.SnapshotSuffix = *p.SnapshotSuffix
	}
	if p.SnapshotSize != nil {
		s.SnapshotSize = *p.SnapshotSize
	}
	if p.ZFSSnapshotPrefix != nil {
		s.ZFSSnapshotPrefix = *p.ZFSSnapshotPrefix
	}
	if p.SnapshotExpirationDays != nil {
		s.SnapshotExpirationDays = *p.SnapshotExpirationDays
	}
	if p.MaxRetries != nil {
		s.MaxRetries = *p.MaxRetries
	}
	if p.RetryInterval != nil {
		parsed, err := time.ParseDuration(*p.RetryInterval)
		if err != nil {
			return NewValidationError(fmt.Sprintf("invalid retry_interval %q", *p.RetryInterval), err)
		}
		s.RetryInterval = parsed
	}
	return nil
}

// LoadJobFile reads and validates one job definition. Unknown keys
// anywhere in the file are rejected, so a typoed setting fails loudly
// instead of silently keeping the default.
func LoadJobFile(path string) (*JobDefinition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, NewNotFoundError(fmt.Sprintf("cannot open job file %s", path), err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var job JobDefinition
	if err := dec.Decode(&job); err != nil {
		return nil, NewParseError(fmt.Sprintf("cannot parse job file %s", path), err)
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}
	return &job, nil
}

// LoadJobsDir loads every *.yaml and *.yml file in dir, in filename
// order. Duplicate labels across files are rejected.
func LoadJobsDir(dir string) ([]*JobDefinition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, NewNotFoundError(fmt.Sprintf("cannot read jobs directory %s", dir), err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch filepath.Ext(entry.Name()) {
		case ".yaml", ".yml":
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)

	jobs := make([]*JobDefinition, 0, len(paths))
	seen := make(map[string]string)
	for _, path := range paths {
		job, err := LoadJobFile(path)
		if err != nil {
			return nil, err
		}
		if other, ok := seen[job.Label]; ok {
			return nil, NewDuplicateError(
				fmt.Sprintf("label %q defined in both %s and %s", job.Label, other, path), nil)
		}
		seen[job.Label] = path
		jobs = append(jobs, job)
	}
	return jobs, nil
}
