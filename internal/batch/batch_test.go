package batch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loanops/internal/catalog"
	loan "loanops/internal/loan/models"
	"loanops/internal/loan/store/memory"
	"loanops/internal/ops/pipeline"
)

var testNow = time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

func newTestRunner(t *testing.T, opts ...Option) (*Runner, *memory.InMemoryLoanStore) {
	t.Helper()
	p, err := pipeline.New(catalog.Default(),
		pipeline.WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)
	s := memory.New()
	return New(p, s, opts...), s
}

func seedLoan(t *testing.T, s *memory.InMemoryLoanStore, id string, complete bool) {
	t.Helper()
	docs := make(map[string]*loan.Document)
	for _, name := range catalog.Default().RequiredDocuments["personal"] {
		docs[name] = &loan.Document{Name: name, Status: loan.DocumentReceived}
	}
	if !complete {
		delete(docs, "proof_of_identity")
	}
	require.NoError(t, s.Put(context.Background(), &loan.LoanRecord{
		LoanID:        id,
		BorrowerName:  "Maria Santos",
		BorrowerEmail: "maria.santos@example.com",
		LoanType:      "personal",
		LoanAmount:    50000,
		InterestRate:  5.5,
		TermMonths:    36,
		ApprovalDate:  "2026-08-01",
		FundingStatus: loan.StatusApproved,
		Documents:     docs,
	}))
}

func TestRunProcessesListedLoans(t *testing.T) {
	r, s := newTestRunner(t)
	seedLoan(t, s, "LN-2001", true)
	seedLoan(t, s, "LN-2002", false)

	summary, err := r.Run(context.Background(), []string{"LN-2002", "LN-2001"})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 1, summary.ByStatus[loan.StatusReadyToFund])
	assert.Equal(t, 1, summary.ByStatus[loan.StatusDocumentCollection])

	// Items come back sorted regardless of submission order.
	require.Len(t, summary.Items, 2)
	assert.Equal(t, "LN-2001", summary.Items[0].LoanID)
	assert.Equal(t, "LN-2002", summary.Items[1].LoanID)

	// Updated records were persisted.
	stored, err := s.Get(context.Background(), "LN-2001")
	require.NoError(t, err)
	assert.Equal(t, loan.StatusReadyToFund, stored.FundingStatus)
}

func TestRunEmptyListProcessesWholeStore(t *testing.T) {
	r, s := newTestRunner(t)
	seedLoan(t, s, "LN-2001", true)
	seedLoan(t, s, "LN-2002", true)
	seedLoan(t, s, "LN-2003", true)

	summary, err := r.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 3, summary.Succeeded)
}

func TestRunDedupesAndTrimsIDs(t *testing.T) {
	r, s := newTestRunner(t)
	seedLoan(t, s, "LN-2001", true)

	summary, err := r.Run(context.Background(), []string{" LN-2001", "LN-2001 ", "", "LN-2001"})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Total)
}

func TestRunRecordsPerLoanFailures(t *testing.T) {
	r, s := newTestRunner(t)
	seedLoan(t, s, "LN-2001", true)

	summary, err := r.Run(context.Background(), []string{"LN-2001", "LN-MISSING"})
	require.NoError(t, err, "a missing loan is an item outcome, not a batch error")

	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)

	assert.NoError(t, summary.Items[0].Err)
	require.Error(t, summary.Items[1].Err)
	assert.Equal(t, "LN-MISSING", summary.Items[1].LoanID)
	assert.Nil(t, summary.Items[1].Result)
}

func TestRunCancelledContext(t *testing.T) {
	r, s := newTestRunner(t, WithConcurrency(1))
	seedLoan(t, s, "LN-2001", true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Run(ctx, []string{"LN-2001"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
