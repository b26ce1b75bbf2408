package report

import (
	"os"
	"path/filepath"
	"time"

	"backup-runner/internal/workflow"
)

// Sink persists one finished report artifact.
type Sink interface {
	Store(label, name string, data []byte) error
}

// LocalSink writes report artifacts under a directory tree, one
// subdirectory per job label.
type LocalSink struct {
	dir string
}

// NewLocalSink creates a sink rooted at dir.
func NewLocalSink(dir string) (*LocalSink, error) {
	if dir == "" {
		return nil, NewValidationError("report directory is required", nil)
	}
	return &LocalSink{dir: dir}, nil
}

// Dir returns the sink's root directory.
func (s *LocalSink) Dir() string {
	return s.dir
}

// Store writes the artifact to <dir>/<label>/<name>.
func (s *LocalSink) Store(label, name string, data []byte) error {
	target := filepath.Join(s.dir, label)
	if err := os.MkdirAll(target, 0o750); err != nil {
		return NewStorageError("failed to create report directory", err).
			WithContext("dir", target)
	}
	path := filepath.Join(target, name)
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return NewStorageError("failed to write report artifact", err).
			WithContext("path", path)
	}
	return nil
}

// Prune removes artifacts that finished before now minus retentionDays.
// Age comes from the timestamp prefix of the file name, so pruning
// works uniformly on plain, compressed and encrypted artifacts. Files
// whose names carry no parseable timestamp are left alone. Prune keeps
// going past individual failures and returns them collected, together
// with the number of artifacts it removed.
func (s *LocalSink) Prune(retentionDays int, now time.Time) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := now.UTC().AddDate(0, 0, -retentionDays)

	labels, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, NewRetentionError("failed to read report directory", err).
			WithContext("dir", s.dir)
	}

	removed := 0
	errs := &workflow.ErrorList{}
	for _, label := range labels {
		if !label.IsDir() {
			continue
		}
		labelDir := filepath.Join(s.dir, label.Name())
		artifacts, err := os.ReadDir(labelDir)
		if err != nil {
			errs.Add(NewRetentionError("failed to read report directory", err).
				WithContext("dir", labelDir))
			continue
		}
		for _, artifact := range artifacts {
			if artifact.IsDir() {
				continue
			}
			ts, ok := artifactTime(artifact.Name())
			if !ok || !ts.Before(cutoff) {
				continue
			}
			path := filepath.Join(labelDir, artifact.Name())
			if err := os.Remove(path); err != nil {
				errs.Add(NewRetentionError("failed to remove expired report", err).
					WithContext("path", path))
				continue
			}
			removed++
		}
	}
	return removed, errs.ErrOrNil()
}
