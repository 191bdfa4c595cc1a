package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusOf(t *testing.T) {
	cause := errors.New("practice not found")
	wrapped := fmt.Errorf("load: %w", New(http.StatusNotFound, "practice_not_found", cause))

	status, code, ok := StatusOf(wrapped)
	if !ok || status != http.StatusNotFound || code != "practice_not_found" {
		t.Fatalf("StatusOf: status=%d code=%q ok=%v", status, code, ok)
	}
	if !errors.Is(wrapped, cause) {
		t.Fatalf("cause lost through wrapping")
	}
	if _, _, ok := StatusOf(cause); ok {
		t.Fatalf("plain error should not report a status")
	}
	if _, _, ok := StatusOf(New(0, "x", nil)); ok {
		t.Fatalf("zero status should not report")
	}
}

func TestErrorMessage(t *testing.T) {
	if got := New(http.StatusBadGateway, "", nil).Error(); got != "Bad Gateway" {
		t.Fatalf("status text fallback: %q", got)
	}
	if got := New(http.StatusBadRequest, "invalid_payload", nil).Error(); got != "invalid_payload" {
		t.Fatalf("code fallback: %q", got)
	}
	var nilErr *Error
	if nilErr.Error() != "" {
		t.Fatalf("nil receiver")
	}
}
