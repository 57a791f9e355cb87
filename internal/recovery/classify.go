// Package recovery classifies executor failures and selects recovery
// strategies. It deliberately does not own the retry loop: RETRY-family
// strategies re-raise, and the engine's bounded outer loop does the delay
// and retry-count bookkeeping.
package recovery

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

// ErrorKind is a coarse failure taxonomy for executor errors.
type ErrorKind string

const (
	KindConnection ErrorKind = "CONNECTION"
	KindTimeout    ErrorKind = "TIMEOUT"
	KindAuth       ErrorKind = "AUTH"
	KindRateLimit  ErrorKind = "RATE_LIMIT"
	KindValidation ErrorKind = "VALIDATION"
	KindBackend    ErrorKind = "BACKEND"
	KindUnknown    ErrorKind = "UNKNOWN"
)

// kindOrder fixes the classification precedence: first match wins.
var kindOrder = []ErrorKind{
	KindConnection,
	KindTimeout,
	KindAuth,
	KindRateLimit,
	KindValidation,
	KindBackend,
}

// kindSignatures maps each kind to the lowercase substrings that identify
// it in an error message. Substring matching is the last-resort adapter for
// executors that only surface text; structured errors match by type first.
var kindSignatures = map[ErrorKind][]string{
	KindConnection: {
		"connection refused", "connection reset", "broken pipe",
		"no such host", "network is unreachable", "dial tcp", "eof",
	},
	KindTimeout: {
		"timeout", "timed out", "deadline exceeded",
	},
	KindAuth: {
		"unauthorized", "authentication", "invalid api key",
		"permission denied", "forbidden", "401", "403",
	},
	KindRateLimit: {
		"rate limit", "rate_limit", "ratelimit", "429",
		"too many requests", "usage limit", "quota exceeded",
		"retry after",
	},
	KindValidation: {
		"validation failed", "invalid output", "schema mismatch",
		"malformed response",
	},
	KindBackend: {
		"internal server error", "500", "502", "503", "504",
		"overloaded", "service unavailable", "backend error",
	},
}

// ErrorContext is the structured classification of one failure.
type ErrorContext struct {
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
	TaskID    string    `json:"task_id,omitempty"`
	ModelID   string    `json:"model_id,omitempty"`
	Attempt   int       `json:"attempt,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Classify determines the error kind by ordered matching: structured type
// checks first, then the substring table checked in kind order. Unmatched
// errors are UNKNOWN.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	// Structured checks beat text matching where the boundary allows it.
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindConnection
	}

	msg := strings.ToLower(err.Error())
	for _, kind := range kindOrder {
		for _, sig := range kindSignatures[kind] {
			if strings.Contains(msg, sig) {
				return kind
			}
		}
	}
	return KindUnknown
}

// NewErrorContext classifies err and captures its execution context.
func NewErrorContext(err error, taskID, modelID string, attempt int) *ErrorContext {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &ErrorContext{
		Kind:      Classify(err),
		Message:   msg,
		TaskID:    taskID,
		ModelID:   modelID,
		Attempt:   attempt,
		Timestamp: time.Now().UTC(),
	}
}

// IsRateLimited reports whether the error text matches a rate-limit
// signature. The engine uses this to requeue instead of failing, so the
// next dequeue re-selects a model and failover happens organically.
func IsRateLimited(err error) bool {
	return err != nil && Classify(err) == KindRateLimit
}
