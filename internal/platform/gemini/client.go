package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
)

var ErrMissingAPIKey = errors.New("missing GEMINI_API_KEY")

type Config struct {
	APIKey      string
	Model       string
	Timeout     time.Duration
	Temperature *float32
}

// Client generates with a Gemini model. It has no embedding method: vectors are
// always produced by the primary provider.
type Client struct {
	log         *logger.Logger
	models      *genai.Models
	model       string
	timeout     time.Duration
	temperature *float32
}

func NewClient(ctx context.Context, log *logger.Logger, cfg Config) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, ErrMissingAPIKey
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-2.5-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &Client{
		log:         log.With("service", "GeminiClient"),
		models:      gc.Models,
		model:       model,
		timeout:     cfg.Timeout,
		temperature: cfg.Temperature,
	}, nil
}

func (c *Client) Model() string { return c.model }

// APIError carries the HTTP status of a failed Gemini call.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gemini http %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) HTTPStatusCode() int { return e.StatusCode }

func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{StatusCode: apiErr.Code, Message: apiErr.Message}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &APIError{StatusCode: apiErrPtr.Code, Message: apiErrPtr.Message}
	}
	return err
}

func (c *Client) generate(ctx context.Context, system, user, mime string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       c.temperature,
		ResponseMIMEType:  mime,
	}
	resp, err := c.models.GenerateContent(ctx, c.model, genai.Text(user), cfg)
	if err != nil {
		return "", wrapErr(err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("gemini returned no text")
	}
	return text, nil
}

// GenerateJSON requests an application/json response. The schema is appended to
// the user prompt; output that is not a JSON object fails.
func (c *Client) GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (json.RawMessage, error) {
	if schemaName == "" || schema == nil {
		return nil, errors.New("schema required")
	}
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	prompt := user + "\n\nRespond with one JSON object named " + schemaName + " matching this JSON schema exactly:\n" + string(schemaJSON)

	text, err := c.generate(ctx, system, prompt, "application/json")
	if err != nil {
		return nil, err
	}
	text = stripFence(text)
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, fmt.Errorf("failed to parse model JSON: %w", err)
	}
	return json.RawMessage(text), nil
}

func (c *Client) GenerateText(ctx context.Context, system string, user string) (string, error) {
	return c.generate(ctx, system, user, "")
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
