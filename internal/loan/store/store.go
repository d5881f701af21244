// Package store defines the LoanStore port. Backends live in subpackages:
// memory for single-run processing, postgres for a durable back office.
package store

import (
	"context"

	"loanops/internal/loan/models"
)

// LoanStore persists loan records between pipeline runs. Implementations
// return sentinel.ErrNotFound for unknown loan ids.
type LoanStore interface {
	Get(ctx context.Context, loanID string) (*models.LoanRecord, error)
	Put(ctx context.Context, record *models.LoanRecord) error
	List(ctx context.Context) ([]*models.LoanRecord, error)
}
