package orchestrator

import (
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/andychuong/ai-study-companion-sub000/internal/platform/llm"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/objectstore"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/vectorstore"
)

type RetryPolicy struct {
	MaxAttempts int
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
	JitterFrac  float64
	Retryable   func(error) bool
}

// ErrPermanent matches any error wrapped by Permanent.
var ErrPermanent = errors.New("permanent step failure")

type permanentError struct{ err error }

func (e *permanentError) Error() string        { return e.err.Error() }
func (e *permanentError) Unwrap() error        { return e.err }
func (e *permanentError) Is(target error) bool { return target == ErrPermanent }

// Permanent marks err as not worth retrying. The step fails on this attempt.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool { return errors.Is(err, ErrPermanent) }

// DefaultRetryable retries everything except permanent errors and missing
// configuration. Transient provider errors and contract violations both retry.
func DefaultRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case IsPermanent(err),
		errors.Is(err, llm.ErrNotConfigured),
		errors.Is(err, vectorstore.ErrNotConfigured),
		errors.Is(err, objectstore.ErrNotConfigured):
		return false
	}
	return true
}

func shouldRetry(r RetryPolicy, attempts int, err error) bool {
	if r.MaxAttempts <= 0 || attempts >= r.MaxAttempts {
		return false
	}
	if r.Retryable == nil {
		return DefaultRetryable(err)
	}
	return r.Retryable(err)
}

func computeBackoff(r RetryPolicy, attempts int) time.Duration {
	minB := r.MinBackoff
	maxB := r.MaxBackoff
	j := r.JitterFrac
	if minB <= 0 {
		minB = 1 * time.Second
	}
	if maxB <= 0 {
		maxB = 30 * time.Second
	}
	if j <= 0 {
		j = 0.20
	}
	if attempts < 1 {
		attempts = 1
	}
	d := time.Duration(float64(minB) * math.Pow(2, float64(attempts-1)))
	if d > maxB {
		d = maxB
	}
	delta := float64(d) * j
	low := float64(d) - delta
	high := float64(d) + delta
	if low < 0 {
		low = 0
	}
	return time.Duration(low + rand.Float64()*(high-low))
}
