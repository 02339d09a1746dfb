package pipeline

import (
	"errors"
	"fmt"
)

// ErrStructuralViolation indicates a transcript about to be sent on a
// tool-enabled call breaks the tool-call pairing contract. The sanitizer and
// orchestrator prevent this by construction; seeing it at runtime is a
// programming bug. The pipeline logs it loudly and degrades to
// synthesis-without-tools rather than failing the request.
var ErrStructuralViolation = errors.New("pipeline: transcript violates tool-call pairing contract")

// ProviderError wraps a model API failure (transport, rate limit, rejected
// request). Provider errors are retryable up to the attempt budget; only when
// the budget is exhausted do they influence the user-visible reply, and even
// then as a degraded answer rather than a raw protocol error.
type ProviderError struct {
	// Stage is the pipeline stage whose model call failed.
	Stage Stage

	// Attempt is the 1-based attempt number, when the failure occurred
	// inside the retry loop. Zero for single-shot stages.
	Attempt int

	// Err is the underlying provider error.
	Err error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Attempt > 0 {
		return fmt.Sprintf("pipeline: provider call failed at stage %s (attempt %d): %v", e.Stage, e.Attempt, e.Err)
	}
	return fmt.Sprintf("pipeline: provider call failed at stage %s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying provider error.
func (e *ProviderError) Unwrap() error { return e.Err }
