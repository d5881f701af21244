package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"loanops/internal/loan/models"
	"loanops/pkg/platform/sentinel"
)

// PostgresLoanStore persists loan records as JSONB alongside queryable
// columns for id and lifecycle status.
type PostgresLoanStore struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *PostgresLoanStore {
	return &PostgresLoanStore{pool: pool}
}

// Schema creates the loans table. Callers run it at startup or in test setup.
const Schema = `
CREATE TABLE IF NOT EXISTS loans (
    loan_id        TEXT PRIMARY KEY,
    funding_status TEXT NOT NULL,
    record         JSONB NOT NULL,
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
)`

func (s *PostgresLoanStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate loans table: %w", err)
	}
	return nil
}

func (s *PostgresLoanStore) Get(ctx context.Context, loanID string) (*models.LoanRecord, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT record FROM loans WHERE loan_id = $1`, loanID,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get loan %s: %w", loanID, err)
	}
	record, err := models.Decode(payload)
	if err != nil {
		return nil, fmt.Errorf("decode stored loan %s: %w", loanID, err)
	}
	return record, nil
}

func (s *PostgresLoanStore) Put(ctx context.Context, record *models.LoanRecord) error {
	payload, err := models.Encode(record)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
        INSERT INTO loans (loan_id, funding_status, record, updated_at)
        VALUES ($1, $2, $3, now())
        ON CONFLICT (loan_id) DO UPDATE
        SET funding_status = EXCLUDED.funding_status,
            record = EXCLUDED.record,
            updated_at = now()
    `, record.LoanID, string(record.FundingStatus), payload)
	if err != nil {
		return fmt.Errorf("save loan %s: %w", record.LoanID, err)
	}
	return nil
}

func (s *PostgresLoanStore) List(ctx context.Context) ([]*models.LoanRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT record FROM loans ORDER BY loan_id`)
	if err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}
	defer rows.Close()

	var out []*models.LoanRecord
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan loan row: %w", err)
		}
		record, err := models.Decode(payload)
		if err != nil {
			return nil, fmt.Errorf("decode stored loan: %w", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate loans: %w", err)
	}
	return out, nil
}
