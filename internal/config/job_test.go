package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJobFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const rdiffJobYAML = `label: mybackup
type: rdiff
host: webserver1
include: [/etc, /var/www]
exclude: [/var/www/cache]
pre_command:
  - systemctl stop nginx
post_command:
  - systemctl start nginx
settings:
  remove_older_than: 30D
`

func TestLoadJobFile(t *testing.T) {
	path := writeJobFile(t, t.TempDir(), "mybackup.yaml", rdiffJobYAML)

	job, err := LoadJobFile(path)
	require.NoError(t, err)

	assert.Equal(t, "mybackup", job.Label)
	assert.Equal(t, JobTypeRdiff, job.Type)
	assert.Equal(t, "webserver1", job.Host)
	assert.Equal(t, []string{"/etc", "/var/www"}, job.Include)
	assert.Equal(t, []string{"/var/www/cache"}, job.Exclude)
	assert.Equal(t, []string{"systemctl stop nginx"}, job.PreCommand)
	require.NotNil(t, job.Settings)
	require.NotNil(t, job.Settings.RemoveOlderThan)
	assert.Equal(t, "30D", *job.Settings.RemoveOlderThan)
	assert.False(t, job.UsesLVM())
}

func TestLoadJobFile_LVM(t *testing.T) {
	content := `label: dbbackup
type: rdiff-lvm
host: db1
include: [/var/lib/mysql]
volumes:
  - name: vg0/mysql
    mount_point: /var/lib/mysql
    mount_options: [ro]
`
	path := writeJobFile(t, t.TempDir(), "dbbackup.yaml", content)

	job, err := LoadJobFile(path)
	require.NoError(t, err)

	assert.True(t, job.UsesLVM())
	assert.Equal(t, []VolumeDefinition{
		{Name: "vg0/mysql", MountPoint: "/var/lib/mysql", MountOptions: []string{"ro"}},
	}, job.Volumes)
}

func TestLoadJobFile_RejectsUnknownKeys(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"top level typo", "label: x\ntype: rdiff\ninclude: [/etc]\nincludes_extra: [/opt]\n"},
		{"settings typo", "label: x\ntype: rdiff\ninclude: [/etc]\nsettings:\n  max_retriess: 5\n"},
		{"volume typo", "label: x\ntype: rdiff-lvm\ninclude: [/etc]\nvolumes:\n  - name: vg0/x\n    mountpoint: /x\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeJobFile(t, t.TempDir(), "job.yaml", tt.content)

			_, err := LoadJobFile(path)
			require.Error(t, err)

			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, ConfigErrorTypeParse, cfgErr.Type)
		})
	}
}

func TestLoadJobFile_Missing(t *testing.T) {
	_, err := LoadJobFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, ConfigErrorTypeNotFound, cfgErr.Type)
}

func TestJobDefinition_Validate(t *testing.T) {
	valid := func() *JobDefinition {
		return &JobDefinition{
			Label:   "mybackup",
			Type:    JobTypeRdiff,
			Include: []string{"/etc"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(j *JobDefinition)
		wantErr string
	}{
		{"valid", func(*JobDefinition) {}, ""},
		{"missing label", func(j *JobDefinition) { j.Label = "" }, "label is required"},
		{"label with slash", func(j *JobDefinition) { j.Label = "a/b" }, "cannot be used in paths"},
		{"label with space", func(j *JobDefinition) { j.Label = "a b" }, "cannot be used in paths"},
		{"dot label", func(j *JobDefinition) { j.Label = ".." }, "cannot be used in paths"},
		{"missing type", func(j *JobDefinition) { j.Type = "" }, "type is required"},
		{"unknown type", func(j *JobDefinition) { j.Type = "tar" }, "unknown job type"},
		{"rdiff without includes", func(j *JobDefinition) { j.Include = nil }, "at least one include"},
		{"rdiff with volumes", func(j *JobDefinition) {
			j.Volumes = []VolumeDefinition{{Name: "vg0/x", MountPoint: "/x"}}
		}, "only used by lvm"},
		{"empty pre command", func(j *JobDefinition) { j.PreCommand = []string{"  "} }, "cannot be empty"},
		{"rdiff-lvm without volumes", func(j *JobDefinition) { j.Type = JobTypeRdiffLVM }, "at least one volume"},
		{"bad volume name", func(j *JobDefinition) {
			j.Type = JobTypeRdiffLVM
			j.Volumes = []VolumeDefinition{{Name: "vg0", MountPoint: "/x"}}
		}, "vg/lv form"},
		{"volume without mount point", func(j *JobDefinition) {
			j.Type = JobTypeRdiffLVM
			j.Volumes = []VolumeDefinition{{Name: "vg0/x"}}
		}, "no mount point"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := valid()
			tt.mutate(j)

			err := j.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestJobDefinition_Validate_ZFS(t *testing.T) {
	valid := func() *JobDefinition {
		return &JobDefinition{
			Label:    "zbackup",
			Type:     JobTypeZFSLVM,
			Host:     "web1",
			RsyncDst: "backupbox:/backup-store/zbackup",
			ZFSHost:  "backupbox",
			Dataset:  "tank/backup-store/zbackup",
			Volumes:  []VolumeDefinition{{Name: "vg0/root", MountPoint: "/"}},
		}
	}

	assert.NoError(t, valid().Validate())

	tests := []struct {
		name    string
		mutate  func(j *JobDefinition)
		wantErr string
	}{
		{"missing rsync dst", func(j *JobDefinition) { j.RsyncDst = "" }, "rsync_dst"},
		{"missing zfs host", func(j *JobDefinition) { j.ZFSHost = "" }, "zfs_host"},
		{"missing dataset", func(j *JobDefinition) { j.Dataset = "" }, "dataset"},
		{"filters not supported", func(j *JobDefinition) { j.Include = []string{"/etc"} }, "not supported"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := valid()
			tt.mutate(j)

			err := j.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestJobDefinition_ResolveSettings(t *testing.T) {
	base := DefaultSettings()
	base.BackupStore = "/backup-store"

	maxRetries := 7
	interval := "5m"
	store := "/other-store"
	job := &JobDefinition{
		Label:   "mybackup",
		Type:    JobTypeRdiff,
		Include: []string{"/etc"},
		Settings: &JobSettings{
			BackupStore:   &store,
			MaxRetries:    &maxRetries,
			RetryInterval: &interval,
		},
	}

	resolved, err := job.ResolveSettings(base)
	require.NoError(t, err)

	assert.Equal(t, "/other-store", resolved.BackupStore)
	assert.Equal(t, 7, resolved.MaxRetries)
	assert.Equal(t, 5*time.Minute, resolved.RetryInterval)
	assert.Equal(t, "root", resolved.RemoteUser, "fields without an override keep the base value")

	assert.Equal(t, "/backup-store", base.BackupStore, "base settings must stay untouched")
	assert.Equal(t, 3, base.MaxRetries, "base settings must stay untouched")
}

func TestJobDefinition_ResolveSettings_BadDuration(t *testing.T) {
	interval := "banana"
	job := &JobDefinition{
		Label:    "mybackup",
		Type:     JobTypeRdiff,
		Include:  []string{"/etc"},
		Settings: &JobSettings{RetryInterval: &interval},
	}

	_, err := job.ResolveSettings(DefaultSettings())
	require.Error(t, err)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, ConfigErrorTypeValidation, cfgErr.Type)
}

func TestLoadJobsDir(t *testing.T) {
	dir := t.TempDir()
	writeJobFile(t, dir, "20-second.yaml", "label: second\ntype: rdiff\ninclude: [/etc]\n")
	writeJobFile(t, dir, "10-first.yaml", "label: first\ntype: rdiff\ninclude: [/etc]\n")
	writeJobFile(t, dir, "30-third.yml", "label: third\ntype: rdiff\ninclude: [/etc]\n")
	writeJobFile(t, dir, "README.txt", "not a job\n")

	jobs, err := LoadJobsDir(dir)
	require.NoError(t, err)

	var labels []string
	for _, job := range jobs {
		labels = append(labels, job.Label)
	}
	assert.Equal(t, []string{"first", "second", "third"}, labels,
		"jobs should come back in filename order")
}

func TestLoadJobsDir_DuplicateLabel(t *testing.T) {
	dir := t.TempDir()
	writeJobFile(t, dir, "a.yaml", "label: same\ntype: rdiff\ninclude: [/etc]\n")
	writeJobFile(t, dir, "b.yaml", "label: same\ntype: rdiff\ninclude: [/etc]\n")

	_, err := LoadJobsDir(dir)
	require.Error(t, err)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, ConfigErrorTypeDuplicate, cfgErr.Type)
}

func TestLoadJobsDir_Missing(t *testing.T) {
	_, err := LoadJobsDir(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, ConfigErrorTypeNotFound, cfgErr.Type)
}
