package report

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"backup-runner/internal/logging"
	"backup-runner/internal/workflow"
)

// Config controls how run reports are persisted.
type Config struct {
	// Dir is the root of the local report tree.
	Dir string
	// Compression names the artifact codec: none, gzip, lz4 or zstd.
	Compression string
	// EncryptionKeyEnv names the environment variable holding the
	// encryption passphrase. Empty disables encryption.
	EncryptionKeyEnv string
	// RetentionDays is how long local artifacts are kept. Zero disables
	// pruning.
	RetentionDays int
	// S3Bucket enables the S3 sink when non-empty.
	S3Bucket string
	// S3Region is the bucket's region.
	S3Region string
	// S3Prefix is prepended to every object key.
	S3Prefix string
}

// Writer runs the report pipeline: encode, compress, encrypt, store in
// every sink, prune expired local artifacts.
type Writer struct {
	config    Config
	codec     Codec
	encryptor *Encryptor
	local     *LocalSink
	sinks     []Sink
	logger    *logging.Logger

	now func() time.Time
}

// NewWriter builds the pipeline described by config. The encryption
// passphrase is read from the configured environment variable once, at
// construction time.
func NewWriter(config Config, logger *logging.Logger) (*Writer, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	codec, err := NewCodec(config.Compression)
	if err != nil {
		return nil, err
	}

	w := &Writer{
		config: config,
		codec:  codec,
		logger: logger,
		now:    time.Now,
	}

	if config.EncryptionKeyEnv != "" {
		passphrase := os.Getenv(config.EncryptionKeyEnv)
		if passphrase == "" {
			return nil, NewEncryptionError(
				fmt.Sprintf("environment variable %s is not set", config.EncryptionKeyEnv), nil)
		}
		w.encryptor, err = NewEncryptor(passphrase)
		if err != nil {
			return nil, err
		}
	}

	w.local, err = NewLocalSink(config.Dir)
	if err != nil {
		return nil, err
	}
	w.sinks = append(w.sinks, w.local)

	if config.S3Bucket != "" {
		s3sink, err := NewS3Sink(config.S3Bucket, config.S3Region, config.S3Prefix)
		if err != nil {
			return nil, err
		}
		w.sinks = append(w.sinks, s3sink)
	}

	return w, nil
}

// Write persists the report to every sink, then prunes expired local
// artifacts. Sink and pruning failures are collected so one bad sink
// does not starve the others.
func (w *Writer) Write(r *RunReport) error {
	name, data, err := w.encode(r)
	if err != nil {
		return err
	}

	errs := &workflow.ErrorList{}
	for _, sink := range w.sinks {
		if err := sink.Store(r.Label, name, data); err != nil {
			errs.Add(err)
		}
	}

	if w.config.RetentionDays > 0 {
		removed, err := w.local.Prune(w.config.RetentionDays, w.now())
		if err != nil {
			errs.Add(err)
		}
		if removed > 0 {
			w.logger.WithField("removed", removed).Debug("Pruned expired report artifacts")
		}
	}

	if errs.HasErrors() {
		return errs
	}
	w.logger.WithFields(map[string]interface{}{
		"label":    r.Label,
		"artifact": name,
	}).Debug("Report written")
	return nil
}

// encode turns the report into its artifact bytes and file name. The
// name records each applied stage as an extension, artifactBase.json
// plus the codec suffix plus .enc when encrypted.
func (w *Writer) encode(r *RunReport) (string, []byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", nil, NewEncodeError("failed to encode report", err)
	}
	name := r.ArtifactBase() + ".json"

	data, err = w.codec.Compress(data)
	if err != nil {
		return "", nil, err
	}
	name += w.codec.Extension()

	if w.encryptor != nil {
		data, err = w.encryptor.Encrypt(data)
		if err != nil {
			return "", nil, err
		}
		name += encryptedExt
	}
	return name, data, nil
}
