package temporalx

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
)

func TestBackoffDoublesAndCaps(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, Backoff(100*time.Millisecond, time.Second, 1))
	assert.Equal(t, 400*time.Millisecond, Backoff(100*time.Millisecond, time.Second, 3))
	assert.Equal(t, time.Second, Backoff(100*time.Millisecond, time.Second, 10))
	assert.Equal(t, 250*time.Millisecond, Backoff(0, 0, 1))
}

func TestRetryStopsOnSuccessOrPermanentError(t *testing.T) {
	cfg := Config{Backoff: time.Millisecond, BackoffMax: time.Millisecond}
	calls := 0
	err := Retry(context.Background(), logger.Nop(), cfg, time.Second, "op", func(context.Context) (bool, error) {
		calls++
		if calls < 3 {
			return true, errors.New("unavailable")
		}
		return false, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	perm := errors.New("bad request")
	err = Retry(context.Background(), logger.Nop(), cfg, time.Second, "op", func(context.Context) (bool, error) {
		calls++
		return false, perm
	})
	assert.ErrorIs(t, err, perm)
	assert.Equal(t, 1, calls)
}

func TestRetryWithoutBudgetTriesOnce(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), logger.Nop(), Config{}, 0, "op", func(context.Context) (bool, error) {
		calls++
		return true, errors.New("down")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryHonorsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, logger.Nop(), Config{}, time.Minute, "op", func(context.Context) (bool, error) {
		t.Fatal("fn must not run after cancel")
		return false, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsRetryableRPC(t *testing.T) {
	assert.True(t, isRetryableRPC(status.Error(codes.Unavailable, "down")))
	assert.False(t, isRetryableRPC(status.Error(codes.InvalidArgument, "bad")))
	assert.True(t, isRetryableRPC(context.DeadlineExceeded))
	assert.False(t, isRetryableRPC(nil))
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{Address: "temporal:7233", RetentionDays: 900}.WithDefaults()
	assert.True(t, cfg.Enabled())
	assert.Equal(t, "study-companion", cfg.Namespace)
	assert.Equal(t, 365, cfg.RetentionDays)
	assert.Equal(t, 4, cfg.MaxConcurrency)
	assert.False(t, Config{Address: "  "}.Enabled())
}
