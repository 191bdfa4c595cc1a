// Package llmtest provides a scripted llm.Gateway for tests.
package llmtest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// StatusError is an error carrying an HTTP status, as provider clients return.
type StatusError struct{ Code int }

func (e *StatusError) Error() string       { return fmt.Sprintf("fake http %d", e.Code) }
func (e *StatusError) HTTPStatusCode() int { return e.Code }

// Reply is one scripted response. Err wins over JSON/Text.
type Reply struct {
	JSON string
	Text string
	Err  error
}

// Call records one generation request.
type Call struct {
	Op     string
	Schema string
	System string
	User   string
}

// Fake answers generation calls from per-schema queues. When a queue has one
// reply left it is reused for every later call. Embeddings are derived from
// the input text so equal inputs embed equally.
type Fake struct {
	mu       sync.Mutex
	name     string
	replies  map[string][]Reply
	calls    []Call
	embedErr error
	embeds   int
	Dim      int
}

func New(name string) *Fake {
	return &Fake{name: name, replies: map[string][]Reply{}, Dim: 8}
}

// On queues replies for schemaName ("text" for GenerateText).
func (f *Fake) On(schemaName string, replies ...Reply) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[schemaName] = append(f.replies[schemaName], replies...)
	return f
}

func (f *Fake) FailEmbed(err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embedErr = err
	return f
}

func (f *Fake) next(key string) (Reply, bool) {
	q := f.replies[key]
	if len(q) == 0 {
		return Reply{}, false
	}
	r := q[0]
	if len(q) > 1 {
		f.replies[key] = q[1:]
	}
	return r, true
}

func (f *Fake) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: "json", Schema: schemaName, System: system, User: user})
	r, ok := f.next(schemaName)
	if !ok {
		return nil, fmt.Errorf("llmtest: no reply scripted for %q", schemaName)
	}
	if r.Err != nil {
		return nil, r.Err
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(r.JSON), &obj); err != nil {
		return nil, fmt.Errorf("failed to parse model JSON: %w", err)
	}
	return json.RawMessage(r.JSON), nil
}

func (f *Fake) GenerateText(ctx context.Context, system, user string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: "text", Schema: "text", System: system, User: user})
	r, ok := f.next("text")
	if !ok {
		return "", fmt.Errorf("llmtest: no text reply scripted")
	}
	return r.Text, r.Err
}

func (f *Fake) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embeds += len(inputs)
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		v := make([]float32, f.Dim)
		for j, r := range strings.ToLower(in) {
			v[j%f.Dim] += float32(r%31) / 31
		}
		out[i] = v
	}
	return out, nil
}

func (f *Fake) Model() string { return f.name }

// Calls returns generation calls, optionally filtered by schema name.
func (f *Fake) Calls(schema string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if schema == "" || c.Schema == schema {
			out = append(out, c)
		}
	}
	return out
}

func (f *Fake) Embedded() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.embeds
}
