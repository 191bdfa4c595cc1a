package steps

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/andychuong/ai-study-companion-sub000/internal/platform/llm"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/objectstore"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/vectorstore"
)

// SessionNamespace holds every transcript chunk vector.
const SessionNamespace = "sessions"

const (
	embedBatchSize   = 16
	embedConcurrency = 4
)

// vectorIDSpace seeds deterministic chunk vector ids.
var vectorIDSpace = uuid.MustParse("6f1f3c52-3f0e-4d8e-9a55-8b6f2d8f7a10")

// VectorID is stable for (session, chunk index) so re-indexing overwrites.
func VectorID(sessionID uuid.UUID, chunkIndex int) string {
	return uuid.NewSHA1(vectorIDSpace, []byte(sessionID.String()+":"+strconv.Itoa(chunkIndex))).String()
}

// ResolveTranscript prefers inline text and falls back to the storage reference.
func ResolveTranscript(ctx context.Context, loader *objectstore.Loader, text, ref string) (string, error) {
	if strings.TrimSpace(text) != "" {
		return text, nil
	}
	if strings.TrimSpace(ref) == "" {
		return "", fmt.Errorf("transcript: no text and no storage reference")
	}
	if loader == nil {
		return "", fmt.Errorf("transcript %s: %w", ref, objectstore.ErrNotConfigured)
	}
	return loader.LoadText(ctx, ref)
}

type EmbedChunksDeps struct {
	LLM llm.Embedder
	Log *logger.Logger
}

type EmbedChunksInput struct {
	Transcript string
	MaxWords   int
}

type EmbeddedChunk struct {
	Index     int       `json:"index"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding"`
}

type EmbedChunksOutput struct {
	Chunks []EmbeddedChunk `json:"chunks"`
}

// EmbedChunks splits the transcript and embeds each chunk, in bounded
// concurrent batches.
func EmbedChunks(ctx context.Context, deps EmbedChunksDeps, in EmbedChunksInput) (EmbedChunksOutput, error) {
	out := EmbedChunksOutput{}
	if deps.LLM == nil {
		return out, fmt.Errorf("embed_chunks: missing deps")
	}
	texts := ChunkTranscript(in.Transcript, in.MaxWords)
	if len(texts) == 0 {
		return out, fmt.Errorf("embed_chunks: transcript has no content")
	}

	vecs := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for start := 0; start < len(texts); start += embedBatchSize {
		start := start
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		g.Go(func() error {
			got, err := deps.LLM.Embed(gctx, texts[start:end])
			if err != nil {
				return err
			}
			if len(got) != end-start {
				return fmt.Errorf("embed_chunks: want %d embeddings got %d", end-start, len(got))
			}
			copy(vecs[start:end], got)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}

	out.Chunks = make([]EmbeddedChunk, len(texts))
	for i, t := range texts {
		out.Chunks[i] = EmbeddedChunk{Index: i, Text: t, Embedding: vecs[i]}
	}
	if deps.Log != nil {
		deps.Log.Debug("Transcript embedded", "chunks", len(texts))
	}
	return out, nil
}

type StoreVectorsDeps struct {
	Vec vectorstore.Store
	Log *logger.Logger
}

type StoreVectorsInput struct {
	SessionID uuid.UUID
	StudentID uuid.UUID
	Topics    []string
	Concepts  []string
	At        time.Time
	Chunks    []EmbeddedChunk
}

type StoreVectorsOutput struct {
	VectorIDs []string `json:"vectorIds"`
}

// StoreVectors upserts every chunk of a session in one batch, then removes
// vectors left over from a longer earlier version of the same session.
func StoreVectors(ctx context.Context, deps StoreVectorsDeps, in StoreVectorsInput) (StoreVectorsOutput, error) {
	out := StoreVectorsOutput{}
	if deps.Vec == nil {
		return out, fmt.Errorf("store_vectors: %w", vectorstore.ErrNotConfigured)
	}
	if in.SessionID == uuid.Nil || in.StudentID == uuid.Nil {
		return out, fmt.Errorf("store_vectors: missing session or student id")
	}
	ts := in.At.UTC().Format(time.RFC3339)
	vectors := make([]vectorstore.Vector, 0, len(in.Chunks))
	for _, c := range in.Chunks {
		id := VectorID(in.SessionID, c.Index)
		vectors = append(vectors, vectorstore.Vector{
			ID:     id,
			Values: c.Embedding,
			Metadata: map[string]any{
				"student_id":  in.StudentID.String(),
				"session_id":  in.SessionID.String(),
				"chunk_index": c.Index,
				"topics":      in.Topics,
				"concepts":    in.Concepts,
				"timestamp":   ts,
				"text":        c.Text,
			},
		})
		out.VectorIDs = append(out.VectorIDs, id)
	}
	if err := deps.Vec.Upsert(ctx, SessionNamespace, vectors); err != nil {
		return out, err
	}
	stale := map[string]any{
		"session_id":  in.SessionID.String(),
		"chunk_index": map[string]any{"$gte": len(in.Chunks)},
	}
	if err := deps.Vec.DeleteByFilter(ctx, SessionNamespace, stale); err != nil && deps.Log != nil {
		deps.Log.Warn("Stale chunk cleanup failed", "session_id", in.SessionID.String(), "error", err)
	}
	return out, nil
}

// RelatedSessions returns the student's chunks most similar to embedding.
// Without a configured index it returns no matches.
func RelatedSessions(ctx context.Context, vec vectorstore.Store, studentID uuid.UUID, embedding []float32, topK int) ([]vectorstore.Match, error) {
	if vec == nil {
		return []vectorstore.Match{}, nil
	}
	if topK <= 0 {
		topK = 5
	}
	return vec.Query(ctx, SessionNamespace, embedding, topK, map[string]any{"student_id": studentID.String()})
}

// priorExcerptChars caps each excerpt passed into a prompt.
const priorExcerptChars = 600

type PriorContextDeps struct {
	LLM llm.Embedder
	Vec vectorstore.Store
	Log *logger.Logger
}

type PriorContextInput struct {
	StudentID uuid.UUID
	// ExcludeSession drops chunks of the session being practiced.
	ExcludeSession *uuid.UUID
	Query          string
	TopK           int
}

// PriorContext returns text from the student's earlier sessions closest to
// Query. Retrieval only enriches a prompt, so failures yield no excerpts.
func PriorContext(ctx context.Context, deps PriorContextDeps, in PriorContextInput) []string {
	out := []string{}
	if deps.LLM == nil || deps.Vec == nil || strings.TrimSpace(in.Query) == "" {
		return out
	}
	warn := func(msg string, err error) {
		if deps.Log != nil {
			deps.Log.Warn(msg, "student_id", in.StudentID.String(), "error", err)
		}
	}
	emb, err := deps.LLM.Embed(ctx, []string{in.Query})
	if err != nil || len(emb) != 1 {
		if err != nil && !errors.Is(err, llm.ErrNotConfigured) {
			warn("Prior context embedding failed", err)
		}
		return out
	}
	matches, err := RelatedSessions(ctx, deps.Vec, in.StudentID, emb[0], in.TopK)
	if err != nil {
		warn("Prior context query failed", err)
		return out
	}
	for _, m := range matches {
		if in.ExcludeSession != nil && fmt.Sprint(m.Metadata["session_id"]) == in.ExcludeSession.String() {
			continue
		}
		text, _ := m.Metadata["text"].(string)
		if text = strings.TrimSpace(text); text == "" {
			continue
		}
		if r := []rune(text); len(r) > priorExcerptChars {
			text = string(r[:priorExcerptChars]) + "..."
		}
		out = append(out, text)
	}
	return out
}
