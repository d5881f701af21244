// Package audit records the operationally significant actions the pipeline
// takes on a loan: status transitions, exception lifecycle, funding
// preparation, and borrower communications. Publishing is fail-open: a sink
// failure is logged by the caller and never fails the pipeline.
package audit

import (
	"context"
	"sync"
	"time"
)

// Action names an auditable pipeline action.
type Action string

const (
	ActionStatusChanged        Action = "status_changed"
	ActionExceptionOpened      Action = "exception_opened"
	ActionExceptionResolved    Action = "exception_resolved"
	ActionFundingPrepared      Action = "funding_prepared"
	ActionCommunicationDrafted Action = "communication_drafted"
	ActionPipelineSuspended    Action = "pipeline_suspended"
)

// Event is one audit record. Keep it transport-agnostic so sinks can fan out.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	LoanID    string    `json:"loan_id"`
	Action    Action    `json:"action"`
	Subject   string    `json:"subject,omitempty"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	Severity  string    `json:"severity,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// Publisher delivers audit events to a sink.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// MemorySink buffers events in memory. Tests and single-process runs use it.
type MemorySink struct {
	mu     sync.RWMutex
	events []Event
}

func NewMemorySink() *MemorySink { return &MemorySink{} }

func (s *MemorySink) Publish(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *MemorySink) Close() error { return nil }

// Events returns a copy of everything published so far.
func (s *MemorySink) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event(nil), s.events...)
}

// ByLoan filters published events for one loan.
func (s *MemorySink) ByLoan(loanID string) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, e := range s.events {
		if e.LoanID == loanID {
			out = append(out, e)
		}
	}
	return out
}
