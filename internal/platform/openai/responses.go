package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type responsesInput struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responsesRequest struct {
	Model string           `json:"model"`
	Input []responsesInput `json:"input"`
	Text  struct {
		Format map[string]any `json:"format,omitempty"`
	} `json:"text,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

type responsesContent struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Refusal string `json:"refusal,omitempty"`
}

type responsesResponse struct {
	Output []struct {
		Type    string             `json:"type"`
		Role    string             `json:"role,omitempty"`
		Content []responsesContent `json:"content,omitempty"`
	} `json:"output"`
	Refusal string `json:"refusal,omitempty"`
}

// text joins the assistant's output_text parts. A refusal at either level is
// an error.
func (r responsesResponse) text() (string, error) {
	refusal := r.Refusal
	var sb strings.Builder
	for _, item := range r.Output {
		if item.Type != "message" || item.Role != "assistant" {
			continue
		}
		for _, part := range item.Content {
			switch part.Type {
			case "output_text":
				sb.WriteString(part.Text)
			case "refusal":
				refusal = part.Refusal
			}
		}
	}
	if refusal != "" {
		return "", fmt.Errorf("model refused: %s", refusal)
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", errors.New("openai: response has no output_text")
	}
	return sb.String(), nil
}

func (c *client) respond(ctx context.Context, system, user string, format map[string]any) (string, error) {
	req := responsesRequest{
		Model: c.model,
		Input: []responsesInput{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: c.temperature,
	}
	req.Text.Format = format

	var resp responsesResponse
	if err := c.post(ctx, "/v1/responses", req, &resp); err != nil {
		return "", err
	}
	return resp.text()
}

// GenerateJSON requests strict json_schema output. Text that is not a JSON
// object is rejected here rather than handed to the caller.
func (c *client) GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (json.RawMessage, error) {
	switch {
	case schemaName == "":
		return nil, errors.New("openai: schemaName required")
	case schema == nil:
		return nil, errors.New("openai: schema required")
	}
	text, err := c.respond(ctx, system, user, map[string]any{
		"type":   "json_schema",
		"name":   schemaName,
		"schema": schema,
		"strict": true,
	})
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, fmt.Errorf("openai: %s output is not a JSON object: %w", schemaName, err)
	}
	return json.RawMessage(text), nil
}

func (c *client) GenerateText(ctx context.Context, system string, user string) (string, error) {
	return c.respond(ctx, system, user, nil)
}
