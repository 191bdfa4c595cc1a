// Package objectstore loads transcript bodies referenced by storage URI.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
)

var ErrNotConfigured = errors.New("object storage not configured")

// DefaultMaxBytes caps a single transcript read.
const DefaultMaxBytes = 8 << 20

// Source opens one object in one backend.
type Source interface {
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// Ref is a parsed storage reference such as gs://bucket/path/to/file.txt.
type Ref struct {
	Scheme string
	Bucket string
	Key    string
}

func ParseRef(raw string) (Ref, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Ref{}, errors.New("empty storage reference")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Ref{}, fmt.Errorf("invalid storage reference %q: %w", raw, err)
	}
	ref := Ref{
		Scheme: strings.ToLower(u.Scheme),
		Bucket: u.Host,
		Key:    strings.TrimPrefix(u.Path, "/"),
	}
	if ref.Scheme == "" || ref.Bucket == "" || ref.Key == "" {
		return Ref{}, fmt.Errorf("invalid storage reference %q: want scheme://bucket/key", raw)
	}
	return ref, nil
}

// Loader resolves references against registered sources by scheme.
type Loader struct {
	mu       sync.RWMutex
	sources  map[string]Source
	maxBytes int64
}

func NewLoader(maxBytes int64) *Loader {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Loader{sources: map[string]Source{}, maxBytes: maxBytes}
}

// Register binds src to each scheme ("gs", "s3", "minio").
func (l *Loader) Register(src Source, schemes ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range schemes {
		l.sources[strings.ToLower(s)] = src
	}
}

func (l *Loader) Schemes() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.sources))
	for s := range l.sources {
		out = append(out, s)
	}
	return out
}

// LoadText reads the object behind ref as UTF-8 text.
func (l *Loader) LoadText(ctx context.Context, ref string) (string, error) {
	parsed, err := ParseRef(ref)
	if err != nil {
		return "", err
	}
	l.mu.RLock()
	src := l.sources[parsed.Scheme]
	l.mu.RUnlock()
	if src == nil {
		return "", fmt.Errorf("%w: scheme %q", ErrNotConfigured, parsed.Scheme)
	}

	rc, err := src.Open(ctx, parsed.Bucket, parsed.Key)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", ref, err)
	}
	defer rc.Close()

	raw, err := io.ReadAll(io.LimitReader(rc, l.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", ref, err)
	}
	if int64(len(raw)) > l.maxBytes {
		return "", fmt.Errorf("object %s exceeds %d bytes", ref, l.maxBytes)
	}
	return string(raw), nil
}
