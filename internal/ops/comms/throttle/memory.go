package throttle

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process throttle keyed by loan and communication type.
type Memory struct {
	mu     sync.Mutex
	window time.Duration
	sent   map[string]time.Time
	now    func() time.Time
}

// NewMemory builds a memory throttle with the given cooldown window.
func NewMemory(window time.Duration) *Memory {
	return &Memory{
		window: window,
		sent:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// WithClock overrides the clock; tests use it to step through windows.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) Allow(_ context.Context, loanID, commType string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := loanID + "/" + commType
	now := m.now()
	if last, ok := m.sent[key]; ok && now.Sub(last) < m.window {
		return false, nil
	}
	m.sent[key] = now
	return true, nil
}
