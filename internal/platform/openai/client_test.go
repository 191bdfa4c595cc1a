package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
)

func outputJSON(text string) string {
	b, _ := json.Marshal(map[string]any{
		"output": []any{map[string]any{
			"type": "message",
			"role": "assistant",
			"content": []any{map[string]any{
				"type": "output_text",
				"text": text,
			}},
		}},
	})
	return string(b)
}

func newTestClient(t *testing.T, h http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(logger.Nop(), Config{APIKey: "k", BaseURL: srv.URL, MaxRetries: 1, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(logger.Nop(), Config{}); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("want ErrMissingAPIKey got=%v", err)
	}
}

func TestGenerateJSONSendsStrictSchema(t *testing.T) {
	var got responsesRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/responses" {
			t.Fatalf("unexpected path=%s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(outputJSON(`{"topics":["fractions"]}`)))
	})

	raw, err := c.GenerateJSON(context.Background(), "sys", "usr", "insights", map[string]any{"type": "object"})
	if err != nil {
		t.Fatalf("GenerateJSON: %v", err)
	}
	if string(raw) != `{"topics":["fractions"]}` {
		t.Fatalf("unexpected raw=%s", raw)
	}
	if got.Text.Format["strict"] != true || got.Text.Format["name"] != "insights" {
		t.Fatalf("format not strict json_schema: %#v", got.Text.Format)
	}
}

func TestGenerateJSONRejectsNonJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(outputJSON("sure! here you go")))
	})
	if _, err := c.GenerateJSON(context.Background(), "s", "u", "x", map[string]any{}); err == nil {
		t.Fatalf("want parse error")
	}
}

func TestRetriesServerErrorsThenSurfacesHTTPError(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	c.(*client).maxRetries = 1

	_, err := c.GenerateText(context.Background(), "s", "u")
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.HTTPStatusCode() != http.StatusServiceUnavailable {
		t.Fatalf("want 503 HTTPError got=%v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("want=2 calls got=%d", calls.Load())
	}
}

func TestEmbedReordersByIndex(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[2,2]},{"index":0,"embedding":[1,1]}]}`))
	})
	out, err := c.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if out[0][0] != 1 || out[1][0] != 2 {
		t.Fatalf("want reordered vectors got=%v", out)
	}
}

func TestWithModelKeepsEmbedModel(t *testing.T) {
	base := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	alt := WithModel(base, "gpt-4o-mini")
	if alt.Model() != "gpt-4o-mini" || base.Model() == "gpt-4o-mini" {
		t.Fatalf("WithModel must clone: base=%s alt=%s", base.Model(), alt.Model())
	}
	if alt.(*client).embedModel != base.(*client).embedModel {
		t.Fatalf("embed model changed")
	}
}

func TestRefusalPartIsAnError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"output":[{"type":"message","role":"assistant","content":[{"type":"refusal","refusal":"no"}]}]}`))
	})
	if _, err := c.GenerateText(context.Background(), "s", "u"); err == nil {
		t.Fatalf("want refusal error")
	}
}

func TestEmbedSplitsLargeInputs(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req embeddingsRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		var resp embeddingsResponse
		for i := range req.Input {
			resp.Data = append(resp.Data, struct {
				Embedding []float64 `json:"embedding"`
				Index     int       `json:"index"`
			}{Embedding: []float64{float64(i)}, Index: i})
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	inputs := make([]string, embedBatch+10)
	out, err := c.Embed(context.Background(), inputs)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(out) != len(inputs) || calls.Load() != 2 {
		t.Fatalf("want %d vectors over 2 calls got=%d over %d", len(inputs), len(out), calls.Load())
	}
	if out[embedBatch][0] != 0 {
		t.Fatalf("second batch should restart at index 0 got=%v", out[embedBatch])
	}
}
