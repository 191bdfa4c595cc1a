package llm

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotConfigured is returned by every call on a gateway built without
// credentials.
var ErrNotConfigured = errors.New("llm service not configured")

// Generator produces model output for one system/user prompt pair.
type Generator interface {
	// GenerateJSON returns a JSON object shaped by schema. Output that does not
	// parse is an error, never a default.
	GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (json.RawMessage, error)
	GenerateText(ctx context.Context, system, user string) (string, error)
	Model() string
}

type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// Gateway is the LLM capability handed to pipeline steps.
type Gateway interface {
	Generator
	Embedder
}

// Unconfigured fails every call with ErrNotConfigured.
type Unconfigured struct{}

func (Unconfigured) GenerateJSON(context.Context, string, string, string, map[string]any) (json.RawMessage, error) {
	return nil, ErrNotConfigured
}

func (Unconfigured) GenerateText(context.Context, string, string) (string, error) {
	return "", ErrNotConfigured
}

func (Unconfigured) Embed(context.Context, []string) ([][]float32, error) {
	return nil, ErrNotConfigured
}

func (Unconfigured) Model() string { return "unconfigured" }

// IsConfigured reports whether g can reach a model.
func IsConfigured(g Gateway) bool {
	if g == nil {
		return false
	}
	_, bad := g.(Unconfigured)
	return !bad
}

// DecodeJSON strictly decodes a model response into out. Unknown fields are
// tolerated; malformed JSON is not.
func DecodeJSON(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return errors.New("empty model response")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &ContractError{Err: err}
	}
	return nil
}

// ContractError marks a model response that does not meet the requested shape.
type ContractError struct {
	Err error
}

func (e *ContractError) Error() string { return "model response violates contract: " + e.Err.Error() }

func (e *ContractError) Unwrap() error { return e.Err }
