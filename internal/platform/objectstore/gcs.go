package objectstore

import (
	"context"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

type GCSConfig struct {
	// Credentials may be inline JSON or a file path.
	Credentials  string
	EmulatorHost string
}

type gcsSource struct {
	client *storage.Client
}

func NewGCSSource(ctx context.Context, cfg GCSConfig) (Source, func() error, error) {
	var opts []option.ClientOption
	if host := strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/"); host != "" {
		_ = os.Setenv("STORAGE_EMULATOR_HOST", host)
		opts = append(opts, option.WithoutAuthentication())
	} else {
		creds := strings.TrimSpace(cfg.Credentials)
		switch {
		case strings.HasPrefix(creds, "{"):
			opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
		case creds != "":
			opts = append(opts, option.WithCredentialsFile(creds))
		}
		opts = append(opts, option.WithScopes(storage.ScopeReadOnly))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, nil, err
	}
	return &gcsSource{client: client}, client.Close, nil
}

func (s *gcsSource) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	return s.client.Bucket(bucket).Object(key).NewReader(ctx)
}
