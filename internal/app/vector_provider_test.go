package app

import (
	"context"
	"errors"
	"testing"

	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/pinecone"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/qdrant"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/vectorstore"
)

func stubProviders(t *testing.T) {
	t.Helper()
	origQdrant := newQdrantVectorStore
	origPineconeClient := newPineconeClient
	origPineconeVectorStore := newPineconeVectorStore
	t.Cleanup(func() {
		newQdrantVectorStore = origQdrant
		newPineconeClient = origPineconeClient
		newPineconeVectorStore = origPineconeVectorStore
	})
}

func TestResolveVectorStoreQdrantSelected(t *testing.T) {
	stubProviders(t)
	stub := &testVectorStore{}
	var captured qdrant.Config
	newQdrantVectorStore = func(_ context.Context, _ *logger.Logger, cfg qdrant.Config) (vectorstore.Store, error) {
		captured = cfg
		return stub, nil
	}
	pineconeCalls := 0
	newPineconeClient = func(_ *logger.Logger, _ pinecone.ClientConfig) (pinecone.Client, error) {
		pineconeCalls++
		return &testPineconeClient{}, nil
	}

	vs, err := resolveVectorStore(context.Background(), logger.Nop(), VectorConfig{
		Provider: VectorProviderQdrant,
		Qdrant: qdrant.Config{
			URL:             "http://qdrant:6333",
			Collection:      "sessions",
			NamespacePrefix: "sc",
			VectorDim:       1536,
		},
	})
	if err != nil {
		t.Fatalf("resolveVectorStore: %v", err)
	}
	if !vectorstore.IsConfigured(vs) {
		t.Fatalf("expected a configured store")
	}
	if err := vs.Upsert(context.Background(), "ns", []vectorstore.Vector{{ID: "vec-1", Values: []float32{1, 2, 3}}}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if stub.upsertCalls != 1 {
		t.Fatalf("underlying qdrant store not called; upsert_calls=%d", stub.upsertCalls)
	}
	if captured.URL != "http://qdrant:6333" || captured.Collection != "sessions" {
		t.Fatalf("qdrant config not passed through: %+v", captured)
	}
	if pineconeCalls != 0 {
		t.Fatalf("pinecone init should be skipped; calls=%d", pineconeCalls)
	}
}

func TestResolveVectorStoreDegradesWithoutEndpoint(t *testing.T) {
	stubProviders(t)
	newQdrantVectorStore = func(context.Context, *logger.Logger, qdrant.Config) (vectorstore.Store, error) {
		t.Fatalf("qdrant init should be skipped without a URL")
		return nil, nil
	}

	for _, cfg := range []VectorConfig{
		{Provider: VectorProviderQdrant},
		{Provider: VectorProviderPinecone},
		{Provider: VectorProviderNone},
	} {
		vs, err := resolveVectorStore(context.Background(), logger.Nop(), cfg)
		if err != nil {
			t.Fatalf("%s: resolveVectorStore: %v", cfg.Provider, err)
		}
		if vectorstore.IsConfigured(vs) {
			t.Fatalf("%s: expected Unconfigured, got %T", cfg.Provider, vs)
		}
		matches, err := vs.Query(context.Background(), "ns", []float32{1}, 3, nil)
		if err != nil || len(matches) != 0 {
			t.Fatalf("%s: degraded query: matches=%v err=%v", cfg.Provider, matches, err)
		}
	}
}

func TestResolveVectorStorePineconeSelected(t *testing.T) {
	stubProviders(t)
	fakeClient := &testPineconeClient{}
	stub := &testVectorStore{}
	var capturedClient pinecone.ClientConfig
	var capturedIndex pinecone.Config
	newPineconeClient = func(_ *logger.Logger, cfg pinecone.ClientConfig) (pinecone.Client, error) {
		capturedClient = cfg
		return fakeClient, nil
	}
	newPineconeVectorStore = func(_ context.Context, _ *logger.Logger, pc pinecone.Client, cfg pinecone.Config) (vectorstore.Store, error) {
		if pc != fakeClient {
			t.Fatalf("pinecone client mismatch")
		}
		capturedIndex = cfg
		return stub, nil
	}

	vs, err := resolveVectorStore(context.Background(), logger.Nop(), VectorConfig{
		Provider:       VectorProviderPinecone,
		PineconeClient: pinecone.ClientConfig{APIKey: "test-key", APIVersion: "2025-10"},
		Pinecone:       pinecone.Config{IndexName: "sessions"},
	})
	if err != nil {
		t.Fatalf("resolveVectorStore: %v", err)
	}
	if err := vs.Upsert(context.Background(), "ns", []vectorstore.Vector{{ID: "vec-1", Values: []float32{1}}}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if stub.upsertCalls != 1 {
		t.Fatalf("underlying pinecone store not called; upsert_calls=%d", stub.upsertCalls)
	}
	if capturedClient.APIKey != "test-key" || capturedClient.APIVersion != "2025-10" {
		t.Fatalf("client config mismatch: %+v", capturedClient)
	}
	if capturedIndex.IndexName != "sessions" {
		t.Fatalf("index config mismatch: %+v", capturedIndex)
	}
}

func TestResolveVectorStoreBootstrapFailureIsClassified(t *testing.T) {
	stubProviders(t)
	newQdrantVectorStore = func(context.Context, *logger.Logger, qdrant.Config) (vectorstore.Store, error) {
		return nil, &qdrant.ConfigError{Code: qdrant.ConfigErrorInvalidVectorDim}
	}
	_, err := resolveVectorStore(context.Background(), logger.Nop(), VectorConfig{
		Provider: VectorProviderQdrant,
		Qdrant:   qdrant.Config{URL: "http://qdrant:6333"},
	})
	var got *VectorProviderBootstrapError
	if !errors.As(err, &got) {
		t.Fatalf("expected VectorProviderBootstrapError, got=%T (%v)", err, err)
	}
	if got.Code != VectorProviderBootstrapErrorInvalidQdrantVector {
		t.Fatalf("code: want=%q got=%q", VectorProviderBootstrapErrorInvalidQdrantVector, got.Code)
	}
}

func TestResolveVectorStoreInvalidProvider(t *testing.T) {
	_, err := resolveVectorStore(context.Background(), logger.Nop(), VectorConfig{Provider: "bad-provider"})
	var got *VectorProviderBootstrapError
	if !errors.As(err, &got) {
		t.Fatalf("expected VectorProviderBootstrapError, got=%T", err)
	}
	if got.Code != VectorProviderBootstrapErrorInvalidProvider {
		t.Fatalf("code: want=%q got=%q", VectorProviderBootstrapErrorInvalidProvider, got.Code)
	}
}

func TestClassifyConnectionRefused(t *testing.T) {
	err := classifyVectorProviderBootstrapError("qdrant", errors.New("dial tcp: connection refused"))
	if vectorProviderBootstrapErrorCode(err) != VectorProviderBootstrapErrorConnectFailed {
		t.Fatalf("code: got=%q", vectorProviderBootstrapErrorCode(err))
	}
}

type testVectorStore struct {
	vectorstore.Unconfigured
	upsertCalls int
}

func (t *testVectorStore) Upsert(context.Context, string, []vectorstore.Vector) error {
	t.upsertCalls++
	return nil
}

type testPineconeClient struct{}

func (t *testPineconeClient) DescribeIndex(context.Context, string) (*pinecone.IndexDescription, error) {
	return &pinecone.IndexDescription{}, nil
}

func (t *testPineconeClient) UpsertVectors(context.Context, string, pinecone.UpsertRequest) (*pinecone.UpsertResponse, error) {
	return &pinecone.UpsertResponse{}, nil
}

func (t *testPineconeClient) Query(context.Context, string, pinecone.QueryRequest) (*pinecone.QueryResponse, error) {
	return &pinecone.QueryResponse{}, nil
}

func (t *testPineconeClient) DeleteVectors(context.Context, string, pinecone.DeleteRequest) error {
	return nil
}
