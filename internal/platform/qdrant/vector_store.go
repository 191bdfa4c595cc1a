package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/vectorstore"
)

// Payload keys owned by the adapter. Namespaces are emulated with a payload
// field because every namespace shares one collection.
const (
	payloadNamespaceKey = "_sc_namespace"
	payloadVectorIDKey  = "_sc_vector_id"
	maxErrorBodyBytes   = 1024
)

var pointIDSpace = uuid.MustParse("6b2f4a8e-91c3-4d7a-b5e0-3c1d9f2a7e64")

type vectorStore struct {
	log      *logger.Logger
	cfg      Config
	baseURL  string
	nsPrefix string
	distance string
	http     *http.Client
}

type point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

type searchRequest struct {
	Vector      []float32      `json:"vector"`
	Limit       int            `json:"limit"`
	WithPayload bool           `json:"with_payload"`
	WithVector  bool           `json:"with_vector"`
	Filter      map[string]any `json:"filter"`
}

type searchHit struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

type envelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
}

func NewVectorStore(ctx context.Context, log *logger.Logger, cfg Config) (vectorstore.Store, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	s := &vectorStore{
		log:      log.With("service", "QdrantVectorStore"),
		cfg:      cfg,
		baseURL:  strings.TrimRight(cfg.URL, "/"),
		nsPrefix: strings.TrimSpace(cfg.NamespacePrefix),
		http:     &http.Client{Timeout: cfg.timeout()},
	}
	if err := s.bootstrap(ctx); err != nil {
		return nil, err
	}
	log.Info("Qdrant vector store selected",
		"url", s.baseURL,
		"collection", cfg.Collection,
		"namespace_prefix", s.nsPrefix,
		"vector_dim", cfg.VectorDim,
		"distance", s.distance,
	)
	return s, nil
}

func (s *vectorStore) Upsert(ctx context.Context, namespace string, vectors []vectorstore.Vector) error {
	const op = "upsert"
	if len(vectors) == 0 {
		return nil
	}
	ns := s.qualifyNamespace(namespace)
	points := make([]point, 0, len(vectors))
	for _, v := range vectors {
		id := strings.TrimSpace(v.ID)
		if id == "" {
			return opErr(op, OperationErrorValidation, "vector id is required", nil)
		}
		if err := s.checkDim(op, "vector "+id, v.Values); err != nil {
			return err
		}
		payload := make(map[string]any, len(v.Metadata)+2)
		for k, val := range v.Metadata {
			payload[k] = val
		}
		payload[payloadNamespaceKey] = ns
		payload[payloadVectorIDKey] = id
		points = append(points, point{ID: s.pointID(ns, id), Vector: v.Values, Payload: payload})
	}
	return s.call(ctx, op, http.MethodPut, "/points?wait=true", map[string]any{"points": points}, nil)
}

func (s *vectorStore) Query(ctx context.Context, namespace string, q []float32, topK int, filter map[string]any) ([]vectorstore.Match, error) {
	const op = "query"
	if err := s.checkDim(op, "query vector", q); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = 10
	}
	ns := s.qualifyNamespace(namespace)
	qf, err := s.scopedFilter(ns, filter)
	if err != nil {
		var oe *OperationError
		if errors.As(err, &oe) && oe.Code == OperationErrorUnsupportedFilter {
			s.log.Warn("Qdrant query filter unsupported", "namespace", ns, "error", err)
		}
		return nil, err
	}

	var hits []searchHit
	req := searchRequest{Vector: q, Limit: topK, WithPayload: true, Filter: qf}
	if err := s.call(ctx, op, http.MethodPost, "/points/search", req, &hits); err != nil {
		return nil, err
	}
	out := make([]vectorstore.Match, 0, len(hits))
	for _, h := range hits {
		id := hitVectorID(h)
		if id == "" {
			continue
		}
		out = append(out, vectorstore.Match{ID: id, Score: s.similarity(h.Score), Metadata: userPayload(h.Payload)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *vectorStore) DeleteIDs(ctx context.Context, namespace string, ids []string) error {
	ns := s.qualifyNamespace(namespace)
	seen := make(map[string]bool, len(ids))
	pointIDs := make([]string, 0, len(ids))
	for _, raw := range ids {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		pid := s.pointID(ns, id)
		if !seen[pid] {
			seen[pid] = true
			pointIDs = append(pointIDs, pid)
		}
	}
	if len(pointIDs) == 0 {
		return nil
	}
	return s.call(ctx, "delete", http.MethodPost, "/points/delete?wait=true", map[string]any{"points": pointIDs}, nil)
}

// DeleteByFilter removes every point in namespace matching filter. An empty
// filter is rejected so a namespace is never wiped by accident.
func (s *vectorStore) DeleteByFilter(ctx context.Context, namespace string, filter map[string]any) error {
	const op = "delete_by_filter"
	if len(filter) == 0 {
		return opErr(op, OperationErrorValidation, "filter required", nil)
	}
	qf, err := s.scopedFilter(s.qualifyNamespace(namespace), filter)
	if err != nil {
		return err
	}
	return s.call(ctx, op, http.MethodPost, "/points/delete?wait=true", map[string]any{"filter": qf}, nil)
}

// bootstrap checks readiness and the collection's vector size, creating the
// collection when AutoCreate is set.
func (s *vectorStore) bootstrap(ctx context.Context) error {
	const op = "bootstrap_verify"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/readyz", nil)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build ready request failed", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant ready check failed", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusErr(op, resp.StatusCode, "qdrant is not ready")
	}

	var info struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	}
	err = s.call(ctx, op, http.MethodGet, "", nil, &info)
	if isNotFound(err) && s.cfg.AutoCreate {
		s.log.Info("Qdrant collection missing; creating", "collection", s.cfg.Collection, "vector_dim", s.cfg.VectorDim)
		create := map[string]any{"vectors": map[string]any{"size": s.cfg.VectorDim, "distance": s.cfg.distance()}}
		if err := s.call(ctx, op, http.MethodPut, "", create, nil); err != nil {
			return err
		}
		s.distance = s.cfg.distance()
		return nil
	}
	if err != nil {
		return err
	}
	vec := info.Config.Params.Vectors
	if vec.Size != 0 && vec.Size != s.cfg.VectorDim {
		return opErr(op, OperationErrorValidation,
			fmt.Sprintf("collection %q has vector size %d, configured %d", s.cfg.Collection, vec.Size, s.cfg.VectorDim), nil)
	}
	s.distance = strings.TrimSpace(vec.Distance)
	return nil
}

// call sends one JSON request to the collection and decodes the envelope's
// result into out when out is non-nil.
func (s *vectorStore) call(ctx context.Context, op, method, suffix string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+"/collections/"+s.cfg.Collection+suffix, body)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64*maxErrorBodyBytes))
	if err != nil {
		return opErr(op, OperationErrorDecodeFailed, "read response failed", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(raw) > maxErrorBodyBytes {
			raw = append(raw[:maxErrorBodyBytes], "..."...)
		}
		return statusErr(op, resp.StatusCode, fmt.Sprintf("body=%q", raw))
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode envelope failed", err)
	}
	if msg := envelopeError(env.Status); msg != "" {
		return statusErr(op, resp.StatusCode, msg)
	}
	if out == nil || len(env.Result) == 0 || string(env.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode result failed", err)
	}
	return nil
}

// envelopeError returns "" for status "ok" or an absent status.
func envelopeError(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var str string
	if json.Unmarshal(raw, &str) == nil {
		if strings.EqualFold(str, "ok") {
			return ""
		}
		return "status=" + str
	}
	var obj struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &obj) == nil && strings.TrimSpace(obj.Error) != "" {
		return strings.TrimSpace(obj.Error)
	}
	return "status=" + string(raw)
}

func (s *vectorStore) checkDim(op, what string, values []float32) error {
	if len(values) == 0 {
		return opErr(op, OperationErrorValidation, what+" is empty", nil)
	}
	if s.cfg.VectorDim > 0 && len(values) != s.cfg.VectorDim {
		return opErr(op, OperationErrorValidation,
			fmt.Sprintf("%s has dimension %d, expected %d", what, len(values), s.cfg.VectorDim), nil)
	}
	return nil
}

func (s *vectorStore) scopedFilter(ns string, filter map[string]any) (map[string]any, error) {
	scoped := translatedFilter{Must: []any{matchCondition(payloadNamespaceKey, ns)}}
	if len(filter) > 0 {
		tf, err := translateFilterMap(filter)
		if err != nil {
			return nil, err
		}
		scoped.Must = append(scoped.Must, tf.Must...)
		scoped.Should = append(scoped.Should, tf.Should...)
		scoped.MustNot = append(scoped.MustNot, tf.MustNot...)
	}
	return scoped.asMap(), nil
}

func (s *vectorStore) qualifyNamespace(namespace string) string {
	ns := strings.TrimSpace(namespace)
	if ns == "" {
		return s.nsPrefix
	}
	return s.nsPrefix + ":" + ns
}

// pointID derives a stable qdrant UUID from the namespace and caller id, so
// re-upserting the same id overwrites in place.
func (s *vectorStore) pointID(ns, vectorID string) string {
	return uuid.NewSHA1(pointIDSpace, []byte(ns+"|"+vectorID)).String()
}

// similarity maps distance metrics onto "higher is closer".
func (s *vectorStore) similarity(score float64) float64 {
	switch strings.ToLower(s.distance) {
	case "euclid", "manhattan":
		if score < 0 {
			score = -score
		}
		return 1 / (1 + score)
	default:
		return score
	}
}

func hitVectorID(h searchHit) string {
	if id, _ := h.Payload[payloadVectorIDKey].(string); strings.TrimSpace(id) != "" {
		return strings.TrimSpace(id)
	}
	var str string
	if json.Unmarshal(h.ID, &str) == nil {
		return strings.TrimSpace(str)
	}
	return strings.TrimSpace(string(h.ID))
}

func userPayload(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if k != payloadNamespaceKey && k != payloadVectorIDKey {
			out[k] = v
		}
	}
	return out
}
