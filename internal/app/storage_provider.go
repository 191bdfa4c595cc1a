package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/objectstore"
)

var (
	newGCSSource   = objectstore.NewGCSSource
	newMinioSource = objectstore.NewMinioSource
)

type StorageProviderBootstrapErrorCode string

const (
	StorageProviderBootstrapErrorInvalidEmulatorHost StorageProviderBootstrapErrorCode = "invalid_emulator_host"
	StorageProviderBootstrapErrorMissingCredentials  StorageProviderBootstrapErrorCode = "missing_credentials"
	StorageProviderBootstrapErrorConnectFailed       StorageProviderBootstrapErrorCode = "connect_failed"
)

type StorageProviderBootstrapError struct {
	Code     StorageProviderBootstrapErrorCode
	Provider string
	Cause    error
}

func (e *StorageProviderBootstrapError) Error() string {
	if e == nil {
		return "object storage bootstrap failed"
	}
	return fmt.Sprintf("object storage bootstrap failed (code=%s provider=%q): %v", e.Code, e.Provider, e.Cause)
}

func (e *StorageProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveTranscriptLoader registers every configured object store on one
// loader. With none configured, references fail with objectstore.ErrNotConfigured
// and inline transcripts still work. The returned close func is never nil.
func resolveTranscriptLoader(ctx context.Context, log *logger.Logger, cfg StorageConfig) (*objectstore.Loader, func() error, error) {
	loader := objectstore.NewLoader(cfg.MaxBytes)
	closeFn := func() error { return nil }

	if cfg.GCSEnabled {
		if host := strings.TrimSpace(cfg.GCS.EmulatorHost); host != "" && strings.Contains(host, "://") &&
			!strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
			return nil, closeFn, storageBootstrapFailed(log, "gcs", StorageProviderBootstrapErrorInvalidEmulatorHost,
				fmt.Errorf("unsupported emulator host %q", host))
		}
		src, closer, err := newGCSSource(ctx, cfg.GCS)
		if err != nil {
			return nil, closeFn, storageBootstrapFailed(log, "gcs", StorageProviderBootstrapErrorConnectFailed, err)
		}
		loader.Register(src, "gs")
		closeFn = closer
		log.Info("Object storage provider ready", "provider", "gcs", "emulator_host", cfg.GCS.EmulatorHost)
	}

	if endpoint := strings.TrimSpace(cfg.Minio.Endpoint); endpoint != "" {
		if cfg.Minio.AccessKey == "" || cfg.Minio.SecretKey == "" {
			return nil, closeFn, storageBootstrapFailed(log, "minio", StorageProviderBootstrapErrorMissingCredentials,
				errors.New("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required"))
		}
		src, err := newMinioSource(cfg.Minio)
		if err != nil {
			return nil, closeFn, storageBootstrapFailed(log, "minio", StorageProviderBootstrapErrorConnectFailed, err)
		}
		loader.Register(src, "s3", "minio")
		log.Info("Object storage provider ready", "provider", "minio", "endpoint", endpoint)
	}

	if len(loader.Schemes()) == 0 {
		log.Warn("Object storage not configured; transcripts must be sent inline")
	}
	return loader, closeFn, nil
}

func storageBootstrapFailed(log *logger.Logger, provider string, code StorageProviderBootstrapErrorCode, cause error) error {
	err := &StorageProviderBootstrapError{Code: code, Provider: provider, Cause: cause}
	log.Error("Object storage bootstrap failed", "provider", provider, "error_code", code, "error", cause)
	return err
}
