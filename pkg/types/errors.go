package types

import (
	"fmt"
	"time"
)

// NoTraceMiss is the deterministic miss recorded when an evaluator needs a
// tool-call sequence but neither a trace nor output messages are present.
// Absence of a trace is a valid state, never an error.
const NoTraceMiss = "No trace available for evaluation"

// TransportError is a failed backend round trip. Status is the HTTP status
// when one was observed, 0 for connection-level failures.
type TransportError struct {
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("transport error (status %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// TimeoutError is a case-level invocation timeout. Timeouts are retried up
// to their own budget, separate from transport retries.
type TimeoutError struct {
	CaseID  string
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("case %s timed out after %s", e.CaseID, e.Elapsed)
}

// RetryExhaustedError is terminal for one case: all attempts failed. It is
// surfaced as a failed case and never aborts the run.
type RetryExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Last }

// BatchDispatchError reports a failed or inconsistent batch call. The
// gateway falls back to per-case dispatch when it sees one.
type BatchDispatchError struct {
	Err error
}

func (e *BatchDispatchError) Error() string {
	return fmt.Sprintf("batch dispatch failed: %v", e.Err)
}

func (e *BatchDispatchError) Unwrap() error { return e.Err }

// MalformedJudgeOutputError reports judge stdout that could not be parsed.
// The judge is scored 0 and the run continues.
type MalformedJudgeOutputError struct {
	Detail string
	Raw    string
}

func (e *MalformedJudgeOutputError) Error() string {
	return fmt.Sprintf("malformed judge output: %s", e.Detail)
}
