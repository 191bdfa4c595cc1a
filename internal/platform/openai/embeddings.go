package openai

import (
	"context"
	"fmt"
	"strings"
)

// embedBatch keeps each request far below the API's per-call input cap.
const embedBatch = 256

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed returns one vector per input, in input order. Blank inputs are sent
// as a single space since the API rejects empty strings.
func (c *client) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, 0, len(inputs))
	for start := 0; start < len(inputs); start += embedBatch {
		end := min(start+embedBatch, len(inputs))
		vecs, err := c.embedOnce(ctx, inputs[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (c *client) embedOnce(ctx context.Context, inputs []string) ([][]float32, error) {
	req := embeddingsRequest{Model: c.embedModel, Input: make([]string, len(inputs))}
	for i, s := range inputs {
		if s = strings.TrimSpace(s); s == "" {
			s = " "
		}
		req.Input[i] = s
	}

	var resp embeddingsResponse
	if err := c.post(ctx, "/v1/embeddings", req, &resp); err != nil {
		return nil, err
	}

	out := make([][]float32, len(inputs))
	for pos, d := range resp.Data {
		// Fall back to response position when the index is missing or repeated.
		idx := d.Index
		if idx < 0 || idx >= len(out) || out[idx] != nil {
			idx = pos
		}
		if idx >= len(out) {
			continue
		}
		vec := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		out[idx] = vec
	}
	for i, v := range out {
		if len(v) == 0 {
			return nil, fmt.Errorf("openai embeddings: no vector for input %d (sent=%d got=%d model=%s)", i, len(inputs), len(resp.Data), c.embedModel)
		}
	}
	return out, nil
}
