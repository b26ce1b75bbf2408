package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestS3Sink_ObjectKey(t *testing.T) {
	tests := []struct {
		prefix string
		label  string
		name   string
		want   string
	}{
		{"", "web", "a.json", "web/a.json"},
		{"reports", "web", "a.json.gz", "reports/web/a.json.gz"},
		{"reports/", "web", "a.json", "reports/web/a.json"},
		{"deep/prefix", "db", "b.json.zst.enc", "deep/prefix/db/b.json.zst.enc"},
	}
	for _, tt := range tests {
		s := &S3Sink{bucket: "bucket", prefix: tt.prefix}
		assert.Equal(t, tt.want, s.objectKey(tt.label, tt.name),
			"prefix %q label %q name %q", tt.prefix, tt.label, tt.name)
	}
}

func TestNewS3Sink_RequiresBucket(t *testing.T) {
	_, err := NewS3Sink("", "us-east-1", "")
	assert.Error(t, err)
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "application/json", contentTypeFor("a.json"))
	for _, name := range []string{"a.json.gz", "a.json.lz4", "a.json.zst.enc"} {
		assert.Equal(t, "application/octet-stream", contentTypeFor(name), name)
	}
}
