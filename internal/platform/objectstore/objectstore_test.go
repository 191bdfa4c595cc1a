package objectstore

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapSource map[string]string

func (m mapSource) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	body, ok := m[bucket+"/"+key]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func TestParseRef(t *testing.T) {
	ref, err := ParseRef("gs://transcripts/2026/session-1.txt")
	require.NoError(t, err)
	assert.Equal(t, Ref{Scheme: "gs", Bucket: "transcripts", Key: "2026/session-1.txt"}, ref)

	for _, bad := range []string{"", "transcripts/x.txt", "gs://bucket-only", "gs:///key"} {
		_, err := ParseRef(bad)
		assert.Error(t, err, bad)
	}
}

func TestLoaderDispatchesByScheme(t *testing.T) {
	l := NewLoader(0)
	l.Register(mapSource{"b/k.txt": "hello"}, "s3", "minio")

	text, err := l.LoadText(context.Background(), "minio://b/k.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", text)

	_, err = l.LoadText(context.Background(), "gs://b/k.txt")
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = l.LoadText(context.Background(), "s3://b/missing.txt")
	assert.Error(t, err)
}

func TestLoaderEnforcesSizeLimit(t *testing.T) {
	l := NewLoader(4)
	l.Register(mapSource{"b/big": "12345", "b/ok": "1234"}, "gs")

	_, err := l.LoadText(context.Background(), "gs://b/big")
	assert.Error(t, err)
	text, err := l.LoadText(context.Background(), "gs://b/ok")
	require.NoError(t, err)
	assert.Equal(t, "1234", text)
}
