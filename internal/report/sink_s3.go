package report

import (
	"bytes"
	"context"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// s3PutTimeout bounds a single artifact upload. Reports are small, so
// a slow upload means a stuck endpoint rather than a big payload.
const s3PutTimeout = 2 * time.Minute

// S3Sink uploads report artifacts to an S3 bucket. Credentials come
// from the default AWS chain (environment, shared config, instance
// profile).
type S3Sink struct {
	client *s3.S3
	bucket string
	prefix string
}

// NewS3Sink creates a sink for the given bucket. prefix is prepended
// to every object key and may be empty.
func NewS3Sink(bucket, region, prefix string) (*S3Sink, error) {
	if bucket == "" {
		return nil, NewValidationError("S3 bucket is required", nil)
	}

	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return nil, NewStorageError("failed to create AWS session", err)
	}

	return &S3Sink{
		client: s3.New(sess),
		bucket: bucket,
		prefix: prefix,
	}, nil
}

// Store uploads the artifact to s3://<bucket>/<prefix>/<label>/<name>.
func (s *S3Sink) Store(label, name string, data []byte) error {
	key := s.objectKey(label, name)

	ctx, cancel := context.WithTimeout(context.Background(), s3PutTimeout)
	defer cancel()

	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentTypeFor(name)),
		Metadata: map[string]*string{
			"job-label": aws.String(label),
		},
	})
	if err != nil {
		return NewStorageError("failed to upload report to S3", err).
			WithContext("bucket", s.bucket).
			WithContext("key", key)
	}
	return nil
}

func (s *S3Sink) objectKey(label, name string) string {
	return path.Join(s.prefix, label, name)
}

func contentTypeFor(name string) string {
	if strings.HasSuffix(name, ".json") {
		return "application/json"
	}
	return "application/octet-stream"
}
