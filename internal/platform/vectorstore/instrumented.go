package vectorstore

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/andychuong/ai-study-companion-sub000/internal/observability"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
)

type instrumentedStore struct {
	inner    Store
	provider string
	log      *logger.Logger
}

// Instrument wraps s with metrics, tracing and failure logging.
func Instrument(s Store, provider string, log *logger.Logger) Store {
	if s == nil {
		return nil
	}
	if _, ok := s.(Unconfigured); ok {
		return s
	}
	return &instrumentedStore{inner: s, provider: provider, log: log.With("service", "VectorStore", "provider", provider)}
}

func (s *instrumentedStore) start(ctx context.Context, op, namespace string) (context.Context, func(error)) {
	begin := time.Now()
	ctx, span := observability.StartSpan(ctx, "vector."+op,
		attribute.String("vector.provider", s.provider),
		attribute.String("vector.namespace", namespace),
	)
	return ctx, func(err error) {
		status := "ok"
		if err != nil {
			status = "error"
			s.log.Warn("vector operation failed", "operation", op, "namespace", namespace, "error", err)
		}
		observability.Current().ObserveVectorRequest(s.provider, op, status, time.Since(begin))
		observability.EndSpan(span, err)
	}
}

func (s *instrumentedStore) Upsert(ctx context.Context, namespace string, vectors []Vector) error {
	ctx, done := s.start(ctx, "upsert", namespace)
	err := s.inner.Upsert(ctx, namespace, vectors)
	done(err)
	return err
}

func (s *instrumentedStore) Query(ctx context.Context, namespace string, q []float32, topK int, filter map[string]any) ([]Match, error) {
	ctx, done := s.start(ctx, "query", namespace)
	out, err := s.inner.Query(ctx, namespace, q, topK, filter)
	done(err)
	return out, err
}

func (s *instrumentedStore) DeleteIDs(ctx context.Context, namespace string, ids []string) error {
	ctx, done := s.start(ctx, "delete_ids", namespace)
	err := s.inner.DeleteIDs(ctx, namespace, ids)
	done(err)
	return err
}

func (s *instrumentedStore) DeleteByFilter(ctx context.Context, namespace string, filter map[string]any) error {
	ctx, done := s.start(ctx, "delete_by_filter", namespace)
	err := s.inner.DeleteByFilter(ctx, namespace, filter)
	done(err)
	return err
}
