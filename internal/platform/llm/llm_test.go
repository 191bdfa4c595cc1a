package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andychuong/ai-study-companion-sub000/internal/platform/llm/llmtest"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
)

var schema = map[string]any{"type": "object"}

func TestFallbackRetriesOnceOnRateLimitAndServerErrors(t *testing.T) {
	for _, code := range []int{429, 500, 503} {
		primary := llmtest.New("premium").On("insights", llmtest.Reply{Err: &llmtest.StatusError{Code: code}})
		secondary := llmtest.New("cheap").On("insights", llmtest.Reply{JSON: `{"topics":["x"]}`})
		g := WithFallback(primary, secondary, logger.Nop())

		raw, err := g.GenerateJSON(context.Background(), "s", "u", "insights", schema)
		require.NoError(t, err, "code=%d", code)
		assert.JSONEq(t, `{"topics":["x"]}`, string(raw))
		assert.Len(t, primary.Calls("insights"), 1)
		assert.Len(t, secondary.Calls("insights"), 1)
	}
}

func TestFallbackSkipsClientErrorsAndContractFailures(t *testing.T) {
	cases := []error{
		&llmtest.StatusError{Code: 400},
		errors.New("failed to parse model JSON"),
		ErrNotConfigured,
	}
	for _, cause := range cases {
		primary := llmtest.New("premium").On("insights", llmtest.Reply{Err: cause})
		secondary := llmtest.New("cheap").On("insights", llmtest.Reply{JSON: `{}`})
		g := WithFallback(primary, secondary, logger.Nop())

		_, err := g.GenerateJSON(context.Background(), "s", "u", "insights", schema)
		assert.ErrorIs(t, err, cause)
		assert.Empty(t, secondary.Calls(""), "secondary must not be called for %v", cause)
	}
}

func TestFallbackSurfacesBothErrorsWhenSecondaryFails(t *testing.T) {
	first := &llmtest.StatusError{Code: 503}
	second := &llmtest.StatusError{Code: 500}
	primary := llmtest.New("premium").On("text", llmtest.Reply{Err: first})
	secondary := llmtest.New("cheap").On("text", llmtest.Reply{Err: second})
	g := WithFallback(primary, secondary, logger.Nop())

	_, err := g.GenerateText(context.Background(), "s", "u")
	assert.ErrorIs(t, err, first)
	assert.ErrorIs(t, err, second)
	assert.Len(t, secondary.Calls(""), 1, "exactly one retry")
}

func TestFallbackKeepsEmbeddingsOnPrimary(t *testing.T) {
	primary := llmtest.New("premium")
	secondary := llmtest.New("cheap")
	g := WithFallback(primary, secondary, logger.Nop())

	_, err := g.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 2, primary.Embedded())
	assert.Equal(t, 0, secondary.Embedded())
	assert.Equal(t, "premium", g.Model())
}

func TestUnconfiguredGateway(t *testing.T) {
	var g Gateway = Unconfigured{}
	_, err := g.GenerateJSON(context.Background(), "s", "u", "x", schema)
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = g.Embed(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.False(t, IsConfigured(g))
	assert.True(t, IsConfigured(llmtest.New("m")))
}

func TestRateLimitHonorsContext(t *testing.T) {
	g := WithRateLimit(llmtest.New("m").On("text", llmtest.Reply{Text: "hi"}), 0.001, 1)
	_, err := g.GenerateText(context.Background(), "s", "u")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = g.GenerateText(ctx, "s", "u")
	assert.Error(t, err, "second call must wait past the deadline")
}

func TestDecodeJSONWrapsContractErrors(t *testing.T) {
	var out struct{ Topics []string }
	err := DecodeJSON([]byte(`{"topics":"not-a-list"}`), &out)
	var ce *ContractError
	assert.ErrorAs(t, err, &ce)
	assert.Error(t, DecodeJSON(nil, &out))
}
