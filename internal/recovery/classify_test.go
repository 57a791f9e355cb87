package recovery

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassifyBySignature(t *testing.T) {
	tests := []struct {
		err  string
		want ErrorKind
	}{
		{"connection refused", KindConnection},
		{"dial tcp 10.0.0.1:443: no route", KindConnection},
		{"request timed out after 30s", KindTimeout},
		{"invalid api key provided", KindAuth},
		{"HTTP 401 Unauthorized", KindAuth},
		{"429 Too Many Requests", KindRateLimit},
		{"you have hit your usage limit", KindRateLimit},
		{"quota exceeded for this billing period", KindRateLimit},
		{"validation failed: missing field", KindValidation},
		{"502 Bad Gateway", KindBackend},
		{"model overloaded, try again later", KindBackend},
		{"something inexplicable", KindUnknown},
	}

	for _, tt := range tests {
		if got := Classify(errors.New(tt.err)); got != tt.want {
			t.Errorf("Classify(%q) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestClassifyStructuredErrors(t *testing.T) {
	if got := Classify(context.DeadlineExceeded); got != KindTimeout {
		t.Errorf("Classify(DeadlineExceeded) = %s, want TIMEOUT", got)
	}
	wrapped := fmt.Errorf("call failed: %w", context.DeadlineExceeded)
	if got := Classify(wrapped); got != KindTimeout {
		t.Errorf("Classify(wrapped deadline) = %s, want TIMEOUT", got)
	}
	if got := Classify(nil); got != KindUnknown {
		t.Errorf("Classify(nil) = %s, want UNKNOWN", got)
	}
}

func TestClassifyPrecedence(t *testing.T) {
	// Connection signatures are checked before rate-limit signatures, so a
	// message carrying both classifies as CONNECTION.
	err := errors.New("connection reset by peer while handling 429")
	if got := Classify(err); got != KindConnection {
		t.Errorf("Classify = %s, want CONNECTION by precedence", got)
	}
}

func TestIsRateLimited(t *testing.T) {
	if !IsRateLimited(errors.New("rate limit exceeded, retry after 30s")) {
		t.Error("IsRateLimited = false for a rate-limit error")
	}
	if IsRateLimited(errors.New("internal server error")) {
		t.Error("IsRateLimited = true for a backend error")
	}
	if IsRateLimited(nil) {
		t.Error("IsRateLimited(nil) = true")
	}
}

func TestNewErrorContext(t *testing.T) {
	errCtx := NewErrorContext(errors.New("usage limit reached"), "task-1", "sonnet", 2)

	if errCtx.Kind != KindRateLimit {
		t.Errorf("Kind = %s, want RATE_LIMIT", errCtx.Kind)
	}
	if errCtx.TaskID != "task-1" || errCtx.ModelID != "sonnet" || errCtx.Attempt != 2 {
		t.Errorf("context fields = %+v", errCtx)
	}
	if errCtx.Timestamp.IsZero() {
		t.Error("Timestamp not set")
	}
}
