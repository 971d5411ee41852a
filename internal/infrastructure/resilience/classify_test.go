package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/kirillkom/polis-rag/internal/core/domain"
)

func TestClassifyHTTPError(t *testing.T) {
	unavailable := &StatusError{Service: "ollama", Operation: "embed", StatusCode: http.StatusServiceUnavailable, Status: "503"}
	if c := ClassifyHTTPError(fmt.Errorf("wrapped: %w", unavailable)); !c.Retryable || !c.RecordFailure {
		t.Fatalf("503 must be retryable, got %+v", c)
	}
	badRequest := &StatusError{StatusCode: http.StatusBadRequest, Status: "400"}
	if c := ClassifyHTTPError(badRequest); c.Retryable || c.RecordFailure {
		t.Fatalf("400 must not be retried nor recorded, got %+v", c)
	}
	if c := ClassifyHTTPError(context.Canceled); c.Retryable || c.RecordFailure {
		t.Fatalf("cancellation must not be retried, got %+v", c)
	}
	if c := ClassifyHTTPError(errors.New("decode")); c.Retryable || !c.RecordFailure {
		t.Fatalf("unknown errors are recorded but not retried, got %+v", c)
	}
}

func TestWrapTemporaryMarksRetryableErrors(t *testing.T) {
	err := WrapTemporary("rerank", &StatusError{StatusCode: http.StatusTooManyRequests, Status: "429"}, nil)
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
	plain := errors.New("bad payload")
	if got := WrapTemporary("rerank", plain, nil); got != plain {
		t.Fatalf("non-retryable errors must pass through, got %v", got)
	}
}
