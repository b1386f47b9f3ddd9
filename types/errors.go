package types

import (
	"fmt"
	"time"
)

// The failure taxonomy of the core. Backend-down and bad-input failures
// carry distinct flags so the HTTP layer can answer 503 for the former
// without ever masking it as a low-confidence result.

// EmbeddingError reports a failed embedding call. Unavailable marks a
// backend fault (retryable); otherwise the input itself was rejected.
type EmbeddingError struct {
	Backend     string
	Unavailable bool
	Err         error
}

func (e *EmbeddingError) Error() string {
	if e.Unavailable {
		return fmt.Sprintf("embedding backend %s unavailable: %v", e.Backend, e.Err)
	}
	return fmt.Sprintf("embedding rejected by %s: %v", e.Backend, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// IndexError reports index corruption, signature mismatch or a failed
// index operation.
type IndexError struct {
	Op  string
	Err error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index %s: %v", e.Op, e.Err)
}

func (e *IndexError) Unwrap() error { return e.Err }

// SynthesisError reports a failed answer-generation call. Insufficient
// evidence is not an error and never produces one of these; it is a
// regular result with zero confidence.
type SynthesisError struct {
	Unavailable bool
	Err         error
}

func (e *SynthesisError) Error() string {
	if e.Unavailable {
		return fmt.Sprintf("generation backend unavailable: %v", e.Err)
	}
	return fmt.Sprintf("synthesis failed: %v", e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// TimeoutError reports that the per-request deadline expired. Stage names
// the query state at expiry; callers should retry these more aggressively
// than plain failures.
type TimeoutError struct {
	Stage    QueryState
	Deadline time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("query deadline %s exceeded during %s", e.Deadline, e.Stage)
}
