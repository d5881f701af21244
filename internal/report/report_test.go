package report

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loanops/internal/catalog"
	loan "loanops/internal/loan/models"
	"loanops/internal/ops/pipeline"
)

var testNow = time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

func runLoan(t *testing.T, record *loan.LoanRecord) *pipeline.Result {
	t.Helper()
	p, err := pipeline.New(catalog.Default(),
		pipeline.WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)
	result, err := p.Run(context.Background(), record)
	require.NoError(t, err)
	return result
}

func cleanRecord() *loan.LoanRecord {
	docs := make(map[string]*loan.Document)
	for _, name := range catalog.Default().RequiredDocuments["personal"] {
		docs[name] = &loan.Document{Name: name, Status: loan.DocumentReceived}
	}
	return &loan.LoanRecord{
		LoanID:        "LN-7001",
		BorrowerName:  "Maria Santos",
		BorrowerEmail: "maria.santos@example.com",
		LoanType:      "personal",
		LoanAmount:    100000,
		InterestRate:  6.0,
		TermMonths:    60,
		ApprovalDate:  "2026-08-01",
		FundingStatus: loan.StatusApproved,
		Documents:     docs,
	}
}

func TestRenderCleanLoan(t *testing.T) {
	record := cleanRecord()
	result := runLoan(t, record)

	out := Render(record, result)

	assert.True(t, strings.HasPrefix(out, "# Loan Operations Report: LN-7001\n"))
	assert.Contains(t, out, "| Borrower | Maria Santos |")
	assert.Contains(t, out, "| Status | approved → ready_to_fund |")
	assert.Contains(t, out, "| Open exceptions | 0 |")
	assert.NotContains(t, out, "SUSPENDED")

	assert.Contains(t, out, "## Document Tracking")
	assert.Contains(t, out, "4 documents required; collection complete: true.")

	assert.Contains(t, out, "## Verification")
	assert.Contains(t, out, "## Compliance Review")

	assert.Contains(t, out, "## Funding")
	assert.Contains(t, out, "| Net disbursement | $97653.42 |")
	assert.Contains(t, out, "| Method | wire |")
	assert.Contains(t, out, "| Estimated date | 2026-09-02 |")

	assert.Contains(t, out, "## Communications")
	assert.Contains(t, out, "[funding_notice")
	assert.Contains(t, out, "[status_update")
}

func TestRenderMissingDocuments(t *testing.T) {
	record := cleanRecord()
	delete(record.Documents, "proof_of_identity")
	result := runLoan(t, record)

	out := Render(record, result)

	assert.Contains(t, out, "| Status | approved → document_collection |")
	assert.Contains(t, out, "| Open exceptions | 1 |")
	assert.Contains(t, out, "- Missing: proof_of_identity")

	assert.Contains(t, out, "## Exceptions")
	assert.Contains(t, out, "missing document: proof_of_identity")
	assert.Contains(t, out, "assigned: loan-ops")
	assert.Contains(t, out, "  - Next: ")

	// Funding was deferred, not calculated.
	assert.Contains(t, out, "funding preparation deferred")
	assert.NotContains(t, out, "Net disbursement")
}

func TestRenderSuspendedBanner(t *testing.T) {
	record := cleanRecord()
	record.Exceptions = []*loan.Exception{{
		ID:          "EXC-FRAUD",
		Category:    loan.CategoryVerification,
		Description: "possible fraud indicators on application",
		Severity:    loan.SeverityCritical,
		CreatedDate: "2026-08-30T00:00:00Z",
	}}
	result := runLoan(t, record)

	out := Render(record, result)

	assert.Contains(t, out, "> **SUSPENDED**")
	assert.Contains(t, out, "| Status | approved → suspended |")
	assert.Contains(t, out, "EXC-FRAUD")
}

func TestRenderTimestamp(t *testing.T) {
	record := cleanRecord()
	result := runLoan(t, record)

	out := Render(record, result)
	assert.Contains(t, out, "Generated: "+testNow.Format(time.RFC3339))
}
