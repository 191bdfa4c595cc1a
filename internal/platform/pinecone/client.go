package pinecone

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
)

// Client covers the control-plane lookup and the data-plane calls the vector
// store needs. Data-plane calls go to the index host, not the API base URL.
type Client interface {
	DescribeIndex(ctx context.Context, indexName string) (*IndexDescription, error)
	UpsertVectors(ctx context.Context, host string, req UpsertRequest) (*UpsertResponse, error)
	Query(ctx context.Context, host string, req QueryRequest) (*QueryResponse, error)
	DeleteVectors(ctx context.Context, host string, req DeleteRequest) error
}

type ClientConfig struct {
	APIKey     string
	APIVersion string
	BaseURL    string
	Timeout    time.Duration
	// Scheme for data-plane hosts. Tests set "http".
	Scheme string
}

func (c ClientConfig) withDefaults() ClientConfig {
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		c.BaseURL = "https://api.pinecone.io"
	}
	if c.APIVersion = strings.TrimSpace(c.APIVersion); c.APIVersion == "" {
		c.APIVersion = "2025-10"
	}
	if c.Scheme = strings.TrimSpace(c.Scheme); c.Scheme == "" {
		c.Scheme = "https"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

type client struct {
	log     *logger.Logger
	apiKey  string
	version string
	baseURL string
	scheme  string
	hc      *http.Client
}

var errMissingKey = errors.New("pinecone: PINECONE_API_KEY required")

func NewClient(log *logger.Logger, cfg ClientConfig) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("pinecone: logger required")
	}
	cfg = cfg.withDefaults()
	if cfg.APIKey == "" {
		return nil, errMissingKey
	}
	return &client{
		log:     log.With("client", "PineconeClient"),
		apiKey:  cfg.APIKey,
		version: cfg.APIVersion,
		baseURL: cfg.BaseURL,
		scheme:  cfg.Scheme,
		hc:      &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// HTTPError is a non-2xx response. Op names the call that failed.
type HTTPError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 256 {
		body = body[:256] + "..."
	}
	return fmt.Sprintf("pinecone %s: http %d: %s", e.Op, e.StatusCode, body)
}

func (e *HTTPError) HTTPStatusCode() int { return e.StatusCode }

type IndexDescription struct {
	Name      string `json:"name"`
	Host      string `json:"host"`
	Dimension int    `json:"dimension"`
	Metric    string `json:"metric"`
}

type Vector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type UpsertRequest struct {
	Vectors   []Vector `json:"vectors"`
	Namespace string   `json:"namespace,omitempty"`
}

type UpsertResponse struct {
	UpsertedCount int64 `json:"upsertedCount"`
}

type QueryRequest struct {
	Namespace       string         `json:"namespace,omitempty"`
	Vector          []float32      `json:"vector,omitempty"`
	TopK            int            `json:"topK"`
	Filter          map[string]any `json:"filter,omitempty"`
	IncludeValues   bool           `json:"includeValues,omitempty"`
	IncludeMetadata bool           `json:"includeMetadata,omitempty"`
}

type QueryMatch struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type QueryResponse struct {
	Matches []QueryMatch `json:"matches"`
}

// DeleteRequest deletes by IDs or by Filter. Exactly one should be set.
type DeleteRequest struct {
	IDs       []string       `json:"ids,omitempty"`
	Filter    map[string]any `json:"filter,omitempty"`
	Namespace string         `json:"namespace,omitempty"`
}

func (c *client) DescribeIndex(ctx context.Context, indexName string) (*IndexDescription, error) {
	indexName = strings.TrimSpace(indexName)
	if indexName == "" {
		return nil, fmt.Errorf("pinecone describe_index: index name required")
	}
	var out IndexDescription
	if err := c.call(ctx, "describe_index", http.MethodGet, c.baseURL+"/indexes/"+url.PathEscape(indexName), nil, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.Host) == "" {
		return nil, fmt.Errorf("pinecone describe_index %q: empty host", indexName)
	}
	return &out, nil
}

func (c *client) UpsertVectors(ctx context.Context, host string, req UpsertRequest) (*UpsertResponse, error) {
	var out UpsertResponse
	if len(req.Vectors) == 0 {
		return &out, nil
	}
	if err := c.data(ctx, "upsert", host, "/vectors/upsert", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) Query(ctx context.Context, host string, req QueryRequest) (*QueryResponse, error) {
	if len(req.Vector) == 0 {
		return nil, fmt.Errorf("pinecone query: vector required")
	}
	if req.TopK <= 0 {
		req.TopK = 10
	}
	var out QueryResponse
	if err := c.data(ctx, "query", host, "/query", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) DeleteVectors(ctx context.Context, host string, req DeleteRequest) error {
	if len(req.IDs) == 0 && len(req.Filter) == 0 {
		return fmt.Errorf("pinecone delete: ids or filter required")
	}
	return c.data(ctx, "delete", host, "/vectors/delete", req, nil)
}

func (c *client) data(ctx context.Context, op, host, path string, in, out any) error {
	host = strings.TrimSpace(host)
	if host == "" {
		return fmt.Errorf("pinecone %s: index host required", op)
	}
	return c.call(ctx, op, http.MethodPost, c.scheme+"://"+host+path, in, out)
}

// call sends in as JSON and decodes the reply into out when out is non-nil.
func (c *client) call(ctx context.Context, op, method, target string, in, out any) error {
	var body io.Reader = http.NoBody
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("pinecone %s: encode: %w", op, err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	req.Header.Set("Api-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Pinecone-Api-Version", c.version)

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("pinecone %s: %w", op, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode/100 != 2 {
		return &HTTPError{Op: op, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("pinecone %s: decode: %w", op, err)
	}
	return nil
}
