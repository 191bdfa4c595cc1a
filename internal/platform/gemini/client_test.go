package gemini

import (
	"errors"
	"fmt"
	"testing"

	"google.golang.org/genai"

	"github.com/andychuong/ai-study-companion-sub000/internal/platform/httpx"
)

func TestStripFence(t *testing.T) {
	cases := map[string]string{
		"{\"a\":1}":               "{\"a\":1}",
		"```json\n{\"a\":1}\n```": "{\"a\":1}",
		"```\n{\"a\":1}```":       "{\"a\":1}",
	}
	for in, want := range cases {
		if got := stripFence(in); got != want {
			t.Fatalf("stripFence(%q) want=%q got=%q", in, want, got)
		}
	}
}

func TestWrapErrExposesStatus(t *testing.T) {
	err := wrapErr(fmt.Errorf("call: %w", genai.APIError{Code: 429, Message: "quota"}))
	if !httpx.IsRateLimitOrServerError(err) {
		t.Fatalf("want rate limit classification got=%v", err)
	}
	plain := errors.New("boom")
	if wrapErr(plain) != plain {
		t.Fatalf("non-API errors pass through")
	}
}
