// Package config holds the engine settings and the declarative job
// definitions. Settings are resolved in layers: built-in defaults, then
// the config file, then BACKUP_RUNNER_* environment variables, then
// command line flags, then per-job overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Settings holds engine-wide settings. Every job starts from these and
// may override a subset through its definition's settings block.
type Settings struct {
	// BackupStore is the directory on the backup server holding one
	// rdiff-backup repository per job.
	BackupStore string `mapstructure:"backup_store" yaml:"backup_store"`
	// RemoteUser is the ssh account used on remote hosts.
	RemoteUser string `mapstructure:"remote_user" yaml:"remote_user"`
	// SSHPath is the ssh binary used to reach remote hosts.
	SSHPath string `mapstructure:"ssh_path" yaml:"ssh_path"`
	// SSHPort is the ssh port on remote hosts.
	SSHPort int `mapstructure:"ssh_port" yaml:"ssh_port"`
	// RsyncPath is the rsync binary on source hosts.
	RsyncPath string `mapstructure:"rsync_path" yaml:"rsync_path"`
	// RsyncOptions replaces the default rsync option set when non-empty.
	RsyncOptions []string `mapstructure:"rsync_options" yaml:"rsync_options"`
	// RdiffBackupPath is the rdiff-backup binary on the backup server.
	RdiffBackupPath string `mapstructure:"rdiff_backup_path" yaml:"rdiff_backup_path"`
	// RemoveOlderThan expires rdiff-backup increments by this timespec
	// after successful runs. Empty keeps increments forever.
	RemoveOlderThan string `mapstructure:"remove_older_than" yaml:"remove_older_than"`
	// SSHCompression leaves ssh compression enabled for remote sources.
	SSHCompression bool `mapstructure:"ssh_compression" yaml:"ssh_compression"`
	// TopLevelSrcDir is the directory job filters are relative to.
	TopLevelSrcDir string `mapstructure:"top_level_src_dir" yaml:"top_level_src_dir"`
	// SnapshotMountRoot is where LVM snapshot mounts are created.
	SnapshotMountRoot string `mapstructure:"snapshot_mount_root" yaml:"snapshot_mount_root"`
	// SnapshotSuffix names LVM snapshots after their origin volume.
	SnapshotSuffix string `mapstructure:"snapshot_suffix" yaml:"snapshot_suffix"`
	// SnapshotSize is the copy-on-write space per LVM snapshot.
	SnapshotSize string `mapstructure:"snapshot_size" yaml:"snapshot_size"`
	// ZFSSnapshotPrefix marks the ZFS snapshots this tool manages.
	ZFSSnapshotPrefix string `mapstructure:"zfs_snapshot_prefix" yaml:"zfs_snapshot_prefix"`
	// SnapshotExpirationDays destroys managed ZFS snapshots older than
	// this. Zero keeps them forever.
	SnapshotExpirationDays int `mapstructure:"snapshot_expiration_days" yaml:"snapshot_expiration_days"`
	// MaxRetries is how many additional attempts retrying commands get.
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`
	// RetryInterval is the pause between retry attempts.
	RetryInterval time.Duration `mapstructure:"retry_interval" yaml:"retry_interval"`
	// DryRun logs the commands a run would execute without running them.
	DryRun bool `mapstructure:"dry_run" yaml:"dry_run"`
	// JobsDir is the directory scanned for job definition files.
	JobsDir string `mapstructure:"jobs_dir" yaml:"jobs_dir"`
	// Report configures the run report pipeline.
	Report ReportSettings `mapstructure:"report" yaml:"report"`
}

// ReportSettings configures where and how run reports are written.
type ReportSettings struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Dir is the local report directory, one subdirectory per job label.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// Compression is none, gzip, lz4 or zstd.
	Compression string `mapstructure:"compression" yaml:"compression"`
	// EncryptionKeyEnv names an environment variable holding the report
	// encryption passphrase. Empty writes reports unencrypted.
	EncryptionKeyEnv string `mapstructure:"encryption_key_env" yaml:"encryption_key_env"`
	// RetentionDays prunes local reports older than this. Zero keeps
	// them forever.
	RetentionDays int `mapstructure:"retention_days" yaml:"retention_days"`
	// S3Bucket uploads each report to this bucket when set.
	S3Bucket string `mapstructure:"s3_bucket" yaml:"s3_bucket"`
	S3Region string `mapstructure:"s3_region" yaml:"s3_region"`
	S3Prefix string `mapstructure:"s3_prefix" yaml:"s3_prefix"`
}

// DefaultSettings returns the built-in defaults.
func DefaultSettings() *Settings {
	s := &Settings{}
	s.SetDefaults()
	return s
}

// SetDefaults fills unset fields with the built-in defaults.
func (s *Settings) SetDefaults() {
	if s.RemoteUser == "" {
		s.RemoteUser = "root"
	}
	if s.SSHPath == "" {
		s.SSHPath = "/usr/bin/ssh"
	}
	if s.SSHPort == 0 {
		s.SSHPort = 22
	}
	if s.RsyncPath == "" {
		s.RsyncPath = "/usr/bin/rsync"
	}
	if s.RdiffBackupPath == "" {
		s.RdiffBackupPath = "/usr/bin/rdiff-backup"
	}
	if s.TopLevelSrcDir == "" {
		s.TopLevelSrcDir = "/"
	}
	if s.SnapshotMountRoot == "" {
		s.SnapshotMountRoot = "/tmp"
	}
	if s.SnapshotSuffix == "" {
		s.SnapshotSuffix = "-backup-runner"
	}
	if s.SnapshotSize == "" {
		s.SnapshotSize = "1G"
	}
	if s.ZFSSnapshotPrefix == "" {
		s.ZFSSnapshotPrefix = "backup-runner-"
	}
	if s.SnapshotExpirationDays == 0 {
		s.SnapshotExpirationDays = 60
	}
	if s.MaxRetries == 0 {
		s.MaxRetries = 3
	}
	if s.RetryInterval == 0 {
		s.RetryInterval = 60 * time.Second
	}
	if s.JobsDir == "" {
		s.JobsDir = "/etc/backup-runner/jobs.d"
	}
	s.Report.SetDefaults()
}

// SetDefaults fills unset report fields with the built-in defaults.
func (rs *ReportSettings) SetDefaults() {
	if rs.Dir == "" {
		rs.Dir = "/var/lib/backup-runner/reports"
	}
	if rs.Compression == "" {
		rs.Compression = "gzip"
	}
	if rs.RetentionDays == 0 {
		rs.RetentionDays = 90
	}
	if rs.S3Bucket != "" && rs.S3Region == "" {
		rs.S3Region = "us-east-1"
	}
}

// Validate checks the settings for values no run could work with.
func (s *Settings) Validate() error {
	var errs []error

	if s.SSHPort < 1 || s.SSHPort > 65535 {
		errs = append(errs, fmt.Errorf("ssh port %d is out of range", s.SSHPort))
	}
	if s.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max retries cannot be negative"))
	}
	if s.RetryInterval < 0 {
		errs = append(errs, fmt.Errorf("retry interval cannot be negative"))
	}
	if s.SnapshotExpirationDays < 0 {
		errs = append(errs, fmt.Errorf("snapshot expiration days cannot be negative"))
	}
	if err := s.Report.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("report: %w", err))
	}

	if len(errs) > 0 {
		return NewValidationError(fmt.Sprintf("settings validation failed: %v", errs), nil)
	}
	return nil
}

// Validate checks the report settings.
func (rs *ReportSettings) Validate() error {
	switch rs.Compression {
	case "", "none", "gzip", "lz4", "zstd":
	default:
		return fmt.Errorf("invalid compression algorithm: %s", rs.Compression)
	}
	if rs.RetentionDays < 0 {
		return fmt.Errorf("retention days cannot be negative")
	}
	return nil
}

// LoadFromEnvironment overrides settings from BACKUP_RUNNER_* variables.
func (s *Settings) LoadFromEnvironment() {
	if val := os.Getenv("BACKUP_RUNNER_BACKUP_STORE"); val != "" {
		s.BackupStore = val
	}
	if val := os.Getenv("BACKUP_RUNNER_REMOTE_USER"); val != "" {
		s.RemoteUser = val
	}
	if val := os.Getenv("BACKUP_RUNNER_SSH_PATH"); val != "" {
		s.SSHPath = val
	}
	if val := os.Getenv("BACKUP_RUNNER_SSH_PORT"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			s.SSHPort = parsed
		}
	}
	if val := os.Getenv("BACKUP_RUNNER_RSYNC_PATH"); val != "" {
		s.RsyncPath = val
	}
	if val := os.Getenv("BACKUP_RUNNER_RSYNC_OPTIONS"); val != "" {
		s.RsyncOptions = strings.Fields(val)
	}
	if val := os.Getenv("BACKUP_RUNNER_RDIFF_BACKUP_PATH"); val != "" {
		s.RdiffBackupPath = val
	}
	if val := os.Getenv("BACKUP_RUNNER_REMOVE_OLDER_THAN"); val != "" {
		s.RemoveOlderThan = val
	}
	if val := os.Getenv("BACKUP_RUNNER_SSH_COMPRESSION"); val != "" {
		s.SSHCompression = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("BACKUP_RUNNER_TOP_LEVEL_SRC_DIR"); val != "" {
		s.TopLevelSrcDir = val
	}
	if val := os.Getenv("BACKUP_RUNNER_SNAPSHOT_MOUNT_ROOT"); val != "" {
		s.SnapshotMountRoot = val
	}
	if val := os.Getenv("BACKUP_RUNNER_SNAPSHOT_SUFFIX"); val != "" {
		s.SnapshotSuffix = val
	}
	if val := os.Getenv("BACKUP_RUNNER_SNAPSHOT_SIZE"); val != "" {
		s.SnapshotSize = val
	}
	if val := os.Getenv("BACKUP_RUNNER_ZFS_SNAPSHOT_PREFIX"); val != "" {
		s.ZFSSnapshotPrefix = val
	}
	if val := os.Getenv("BACKUP_RUNNER_SNAPSHOT_EXPIRATION_DAYS"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			s.SnapshotExpirationDays = parsed
		}
	}
	if val := os.Getenv("BACKUP_RUNNER_MAX_RETRIES"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			s.MaxRetries = parsed
		}
	}
	if val := os.Getenv("BACKUP_RUNNER_RETRY_INTERVAL"); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			s.RetryInterval = parsed
		}
	}
	if val := os.Getenv("BACKUP_RUNNER_DRY_RUN"); val != "" {
		s.DryRun = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("BACKUP_RUNNER_JOBS_DIR"); val != "" {
		s.JobsDir = val
	}
	s.Report.LoadFromEnvironment()
}

// LoadFromEnvironment overrides report settings from environment
// variables.
func (rs *ReportSettings) LoadFromEnvironment() {
	if val := os.Getenv("BACKUP_RUNNER_REPORT_ENABLED"); val != "" {
		rs.Enabled = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("BACKUP_RUNNER_REPORT_DIR"); val != "" {
		rs.Dir = val
	}
	if val := os.Getenv("BACKUP_RUNNER_REPORT_COMPRESSION"); val != "" {
		rs.Compression = strings.ToLower(val)
	}
	if val := os.Getenv("BACKUP_RUNNER_REPORT_ENCRYPTION_KEY_ENV"); val != "" {
		rs.EncryptionKeyEnv = val
	}
	if val := os.Getenv("BACKUP_RUNNER_REPORT_RETENTION_DAYS"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			rs.RetentionDays = parsed
		}
	}
	if val := os.Getenv("BACKUP_RUNNER_REPORT_S3_BUCKET"); val != "" {
		rs.S3Bucket = val
	}
	if val := os.Getenv("BACKUP_RUNNER_REPORT_S3_REGION"); val != "" {
		rs.S3Region = val
	}
	if val := os.Getenv("BACKUP_RUNNER_REPORT_S3_PREFIX"); val != "" {
		rs.S3Prefix = val
	}
}
