package pipeline

import (
	"sync"
	"time"

	"github.com/convoke-ai/convoke/pkg/provider/llm"
)

// Stage identifies which pipeline step issued a model call. The tags appear
// in ledger records, logs and metrics, so they are stable strings rather than
// iota constants.
type Stage string

const (
	StageInterpretation Stage = "contextual-interpretation"
	StageClassification Stage = "intent-classification"
	StageToolCall       Stage = "tool-enabled-call"
	StageSynthesis      Stage = "synthesis-call"
)

// CallRecord captures a single model invocation for after-the-fact
// inspection. Request and Response hold stage-specific payloads and must be
// JSON-marshalable; Response is nil when the call failed.
type CallRecord struct {
	Stage       Stage         `json:"stage"`
	Description string        `json:"description"`
	Timestamp   time.Time     `json:"timestamp"`
	Duration    time.Duration `json:"duration"`
	Request     any           `json:"request,omitempty"`
	Response    any           `json:"response,omitempty"`
	Error       string        `json:"error,omitempty"`
	Usage       llm.Usage     `json:"usage"`
}

// Ledger is the request-scoped record of every model invocation made while
// serving one inbound message. Recording never fails and never blocks the
// hot path beyond a mutex acquisition; a dropped record is a diagnostics
// loss, not a request failure. A nil *Ledger is valid and records nothing.
type Ledger struct {
	mu      sync.Mutex
	records []CallRecord
}

// NewLedger returns an empty ledger for one request.
func NewLedger() *Ledger { return &Ledger{} }

// Record appends one call record.
func (l *Ledger) Record(rec CallRecord) {
	if l == nil {
		return
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	l.mu.Lock()
	l.records = append(l.records, rec)
	l.mu.Unlock()
}

// Records returns a snapshot of all records in insertion order.
func (l *Ledger) Records() []CallRecord {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]CallRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Len reports the number of recorded calls.
func (l *Ledger) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// TotalUsage sums token usage across all recorded calls.
func (l *Ledger) TotalUsage() llm.Usage {
	if l == nil {
		return llm.Usage{}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var total llm.Usage
	for _, rec := range l.records {
		total.Add(rec.Usage)
	}
	return total
}
