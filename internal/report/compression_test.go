package report

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_RoundTrip(t *testing.T) {
	payload := []byte(strings.Repeat("hook=post level=40 description=remove lvm snapshots\n", 200))

	tests := []struct {
		algorithm string
		extension string
	}{
		{"none", ""},
		{"gzip", ".gz"},
		{"lz4", ".lz4"},
		{"zstd", ".zst"},
	}
	for _, tt := range tests {
		t.Run(tt.algorithm, func(t *testing.T) {
			codec, err := NewCodec(tt.algorithm)
			require.NoError(t, err)
			assert.Equal(t, tt.algorithm, codec.Algorithm())
			assert.Equal(t, tt.extension, codec.Extension())

			compressed, err := codec.Compress(payload)
			require.NoError(t, err)
			if tt.algorithm != "none" {
				assert.NotEqual(t, payload, compressed)
				assert.Less(t, len(compressed), len(payload),
					"repetitive payload should shrink")
			}

			decompressed, err := codec.Decompress(compressed)
			require.NoError(t, err)
			assert.Equal(t, payload, decompressed)
		})
	}
}

func TestNewCodec_EmptySelectsPassthrough(t *testing.T) {
	codec, err := NewCodec("")
	require.NoError(t, err)
	assert.Equal(t, "none", codec.Algorithm())
}

func TestNewCodec_UnsupportedAlgorithm(t *testing.T) {
	_, err := NewCodec("brotli")
	require.Error(t, err)

	var reportErr *ReportError
	require.ErrorAs(t, err, &reportErr)
	assert.Equal(t, ReportErrorTypeCompress, reportErr.Type)
}

func TestCodec_Decompress_RejectsGarbage(t *testing.T) {
	for _, algorithm := range []string{"gzip", "zstd"} {
		codec, err := NewCodec(algorithm)
		require.NoError(t, err)

		_, err = codec.Decompress([]byte("definitely not compressed"))
		assert.Error(t, err, "%s should reject garbage input", algorithm)
	}
}
