package memory

import (
	"context"
	"sort"
	"sync"

	"loanops/internal/loan/models"
	"loanops/pkg/platform/sentinel"
)

// InMemoryLoanStore keeps records in a map. Clones on the way in and out so
// callers never share mutable state with the store.
type InMemoryLoanStore struct {
	mu    sync.RWMutex
	loans map[string]*models.LoanRecord
}

func New() *InMemoryLoanStore {
	return &InMemoryLoanStore{loans: make(map[string]*models.LoanRecord)}
}

func (s *InMemoryLoanStore) Get(_ context.Context, loanID string) (*models.LoanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.loans[loanID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return record.Clone(), nil
}

func (s *InMemoryLoanStore) Put(_ context.Context, record *models.LoanRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loans[record.LoanID] = record.Clone()
	return nil
}

func (s *InMemoryLoanStore) List(_ context.Context) ([]*models.LoanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.LoanRecord, 0, len(s.loans))
	for _, record := range s.loans {
		out = append(out, record.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LoanID < out[j].LoanID })
	return out, nil
}
