package pinecone

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
)

func TestDescribeIndexSendsVersionHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/indexes/sessions", r.URL.Path)
		assert.Equal(t, "2025-10", r.Header.Get("X-Pinecone-Api-Version"))
		_, _ = w.Write([]byte(`{"name":"sessions","host":"sessions-abc.svc.pinecone.io","dimension":1536}`))
	}))
	defer srv.Close()

	pc, err := NewClient(logger.Nop(), ClientConfig{APIKey: "k", BaseURL: srv.URL + "/"})
	require.NoError(t, err)
	desc, err := pc.DescribeIndex(context.Background(), "sessions")
	require.NoError(t, err)
	assert.Equal(t, "sessions-abc.svc.pinecone.io", desc.Host)
	assert.Equal(t, 1536, desc.Dimension)
}

func TestClientRejectsBadInput(t *testing.T) {
	_, err := NewClient(logger.Nop(), ClientConfig{APIKey: "  "})
	assert.ErrorIs(t, err, errMissingKey)

	pc, err := NewClient(logger.Nop(), ClientConfig{APIKey: "k"})
	require.NoError(t, err)
	ctx := context.Background()
	_, err = pc.Query(ctx, "host", QueryRequest{})
	assert.Error(t, err)
	assert.Error(t, pc.DeleteVectors(ctx, "host", DeleteRequest{}))
	_, err = pc.UpsertVectors(ctx, "", UpsertRequest{Vectors: []Vector{{ID: "a"}}})
	assert.Error(t, err)

	resp, err := pc.UpsertVectors(ctx, "", UpsertRequest{})
	require.NoError(t, err)
	assert.Zero(t, resp.UpsertedCount)
}

func TestHTTPErrorTruncatesBody(t *testing.T) {
	long := make([]byte, 400)
	for i := range long {
		long[i] = 'x'
	}
	e := &HTTPError{Op: "query", StatusCode: 500, Body: string(long)}
	assert.Contains(t, e.Error(), "pinecone query: http 500")
	assert.Less(t, len(e.Error()), 300)
}
