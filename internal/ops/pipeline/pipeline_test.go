package pipeline

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loanops/internal/audit"
	"loanops/internal/catalog"
	loan "loanops/internal/loan/models"
	dErrors "loanops/pkg/domain-errors"
)

var testNow = time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

func newTestPipeline(t *testing.T, opts ...Option) (*Pipeline, *audit.MemorySink) {
	t.Helper()
	sink := audit.NewMemorySink()
	opts = append([]Option{
		WithClock(func() time.Time { return testNow }),
		WithAuditPublisher(sink),
		WithVerifierID("test-verifier"),
	}, opts...)
	p, err := New(catalog.Default(), opts...)
	require.NoError(t, err)
	return p, sink
}

func boolPtr(v bool) *bool { return &v }

// completeRecord is a personal loan with every required document received
// and fresh, which a clean run should take all the way to ready_to_fund.
func completeRecord() *loan.LoanRecord {
	docs := make(map[string]*loan.Document)
	for _, name := range catalog.Default().RequiredDocuments["personal"] {
		docs[name] = &loan.Document{Name: name, Status: loan.DocumentReceived}
	}
	docs["proof_of_income"].DocumentDate = testNow.AddDate(0, 0, -10).Format("2006-01-02")
	docs["bank_statements"].DocumentDate = testNow.AddDate(0, 0, -5).Format("2006-01-02")
	return &loan.LoanRecord{
		LoanID:        "LN-5001",
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

func TestRunCleanLoanReachesReadyToFund(t *testing.T) {
	p, sink := newTestPipeline(t)
	record := completeRecord()

	result, err := p.Run(context.Background(), record)
	require.NoError(t, err)

	assert.Equal(t, loan.StatusApproved, result.PreviousStatus)
	assert.Equal(t, loan.StatusReadyToFund, result.FinalStatus)
	assert.Equal(t, loan.StatusReadyToFund, record.FundingStatus)

	// Documents verified with attribution.
	for name, doc := range record.Documents {
		assert.Equal(t, loan.DocumentVerified, doc.Status, name)
		assert.Equal(t, "test-verifier", doc.VerifiedBy, name)
		assert.NotEmpty(t, doc.VerifiedDate, name)
	}

	// Compliance checks recorded on the record.
	require.Len(t, record.ComplianceChecks, 7)
	for name, check := range record.ComplianceChecks {
		require.NotNil(t, check.Passed, name)
		assert.True(t, *check.Passed, name)
	}

	// Funding figures applied as a unit.
	require.NotNil(t, record.FundingAmount)
	assert.Equal(t, 97653.42, *record.FundingAmount)
	assert.Equal(t, "wire", record.FundingMethod)
	assert.Equal(t, "2026-09-02", record.TargetFundingDate)
	require.NoError(t, record.Validate())

	// Funding notice and status update drafted.
	types := make([]string, 0, len(record.Communications))
	for _, comm := range record.Communications {
		types = append(types, comm.Type)
	}
	assert.Contains(t, types, "funding_notice")
	assert.Contains(t, types, "status_update")
	assert.NotContains(t, types, "document_request")

	// Status change audited.
	var sawTransition bool
	for _, event := range sink.ByLoan(record.LoanID) {
		if event.Action == audit.ActionStatusChanged && event.To == string(loan.StatusReadyToFund) {
			sawTransition = true
		}
	}
	assert.True(t, sawTransition)
}

func TestRunMissingDocumentsStaysInCollection(t *testing.T) {
	p, _ := newTestPipeline(t)
	record := completeRecord()
	delete(record.Documents, "tax_returns") // not required for personal; removing a required one below
	delete(record.Documents, "proof_of_identity")

	result, err := p.Run(context.Background(), record)
	require.NoError(t, err)

	assert.Equal(t, loan.StatusDocumentCollection, result.FinalStatus)

	// Missing document seeded pending and flagged with a low exception.
	doc, ok := record.Documents["proof_of_identity"]
	require.True(t, ok, "required documents are seeded on entry")
	assert.Equal(t, loan.DocumentPending, doc.Status)

	open := record.OpenExceptions()
	require.Len(t, open, 1)
	assert.Equal(t, loan.CategoryDocument, open[0].Category)
	assert.Equal(t, "missing document: proof_of_identity", open[0].Description)
	assert.Equal(t, loan.SeverityLow, open[0].Severity)
	assert.Equal(t, "loan-ops", open[0].AssignedTo)

	// No funding fields while short of ready_to_fund.
	assert.Nil(t, record.FundingAmount)
	assert.Empty(t, record.FundingMethod)

	// Borrower asked for the document.
	var sawRequest bool
	for _, comm := range record.Communications {
		if comm.Type == "document_request" {
			sawRequest = true
			assert.Contains(t, comm.Body, "proof_of_identity")
		}
	}
	assert.True(t, sawRequest)
}

func TestRunExpiredDocumentOpensMediumException(t *testing.T) {
	p, _ := newTestPipeline(t)
	record := completeRecord()
	record.Documents["bank_statements"].Status = loan.DocumentExpired

	result, err := p.Run(context.Background(), record)
	require.NoError(t, err)

	assert.Equal(t, loan.StatusDocumentCollection, result.FinalStatus)
	open := record.OpenExceptions()
	require.Len(t, open, 1)
	assert.Equal(t, "expired document: bank_statements", open[0].Description)
	assert.Equal(t, loan.SeverityMedium, open[0].Severity)
}

func TestRunStaleDocumentFailsVerification(t *testing.T) {
	p, _ := newTestPipeline(t)
	record := completeRecord()
	record.Documents["proof_of_income"].DocumentDate = testNow.AddDate(0, 0, -120).Format("2006-01-02")

	result, err := p.Run(context.Background(), record)
	require.NoError(t, err)

	assert.Equal(t, loan.StatusVerification, result.FinalStatus)
	assert.Equal(t, loan.DocumentReceived, record.Documents["proof_of_income"].Status,
		"failed verification leaves the document received")

	open := record.OpenExceptions()
	require.Len(t, open, 1)
	assert.Equal(t, loan.CategoryVerification, open[0].Category)
	assert.Contains(t, open[0].Description, "unable to verify document: proof_of_income")
	assert.Contains(t, open[0].Description, "not_expired")
}

func TestRunComplianceFailureBlocks(t *testing.T) {
	p, _ := newTestPipeline(t)
	record := completeRecord()
	record.Flags.AMLCleared = boolPtr(false)

	result, err := p.Run(context.Background(), record)
	require.NoError(t, err)

	assert.Equal(t, loan.StatusComplianceReview, result.FinalStatus)

	check := record.ComplianceChecks["anti_money_laundering"]
	require.NotNil(t, check)
	require.NotNil(t, check.Passed)
	assert.False(t, *check.Passed)
	assert.Equal(t, "AML flag detected - requires review", check.Findings)
	assert.Equal(t, "test-verifier", check.CheckedBy)

	open := record.OpenExceptions()
	require.Len(t, open, 1)
	assert.Equal(t, loan.CategoryCompliance, open[0].Category)
	assert.Equal(t, loan.SeverityHigh, open[0].Severity)
	assert.Equal(t, "supervisor", open[0].AssignedTo)
	assert.Nil(t, record.FundingAmount)
}

func TestRunCriticalExceptionSuspends(t *testing.T) {
	p, sink := newTestPipeline(t)
	record := completeRecord()
	record.Exceptions = []*loan.Exception{{
		ID:          "EXC-FRAUD",
		Category:    loan.CategoryVerification,
		Description: "possible fraud indicators on application",
		Severity:    loan.SeverityCritical,
		CreatedDate: "2026-08-30T00:00:00Z",
	}}

	result, err := p.Run(context.Background(), record)
	require.NoError(t, err)

	assert.Equal(t, loan.StatusSuspended, result.FinalStatus)
	assert.Equal(t, "supervisor", record.Exceptions[0].AssignedTo)
	assert.Nil(t, record.FundingAmount)

	var sawSuspension bool
	for _, event := range sink.ByLoan(record.LoanID) {
		if event.Action == audit.ActionPipelineSuspended {
			sawSuspension = true
		}
	}
	assert.True(t, sawSuspension)
}

func TestRunIsIdempotent(t *testing.T) {
	p, _ := newTestPipeline(t)
	record := completeRecord()
	delete(record.Documents, "proof_of_identity")

	first, err := p.Run(context.Background(), record)
	require.NoError(t, err)

	second, err := p.Run(context.Background(), record)
	require.NoError(t, err)

	assert.Equal(t, first.FinalStatus, second.FinalStatus)
	assert.Equal(t, first.Context.Audit, second.Context.Audit)
	assert.Len(t, record.OpenExceptions(), 1, "re-detection does not duplicate exceptions")

	// Throttling is the communication-side idempotence guard; without a
	// throttle drafts accumulate, one set per run.
	assert.Len(t, record.Communications, 6)
}

func TestRunResolvesClearedDocumentExceptions(t *testing.T) {
	p, sink := newTestPipeline(t)
	record := completeRecord()
	delete(record.Documents, "proof_of_identity")

	_, err := p.Run(context.Background(), record)
	require.NoError(t, err)
	require.Len(t, record.OpenExceptions(), 1)

	// Borrower sends the document in.
	record.Documents["proof_of_identity"] = &loan.Document{
		Name: "proof_of_identity", Status: loan.DocumentReceived,
	}
	result, err := p.Run(context.Background(), record)
	require.NoError(t, err)

	assert.Equal(t, loan.StatusReadyToFund, result.FinalStatus)
	assert.Empty(t, record.OpenExceptions())

	// The exception entry survives with its resolution annotated.
	require.Len(t, record.Exceptions, 1)
	assert.True(t, record.Exceptions[0].Resolved())
	assert.Contains(t, record.Exceptions[0].Resolution, "Document received")

	var sawResolution bool
	for _, event := range sink.ByLoan(record.LoanID) {
		if event.Action == audit.ActionExceptionResolved {
			sawResolution = true
		}
	}
	assert.True(t, sawResolution)
}

func TestRunRejectsInvalidRecord(t *testing.T) {
	p, _ := newTestPipeline(t)

	record := completeRecord()
	record.LoanAmount = -5
	_, err := p.Run(context.Background(), record)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestRunRejectsMalformedDocumentDate(t *testing.T) {
	p, _ := newTestPipeline(t)

	record := completeRecord()
	record.Documents["proof_of_income"].DocumentDate = "yesterday"
	_, err := p.Run(context.Background(), record)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	assert.Empty(t, record.Exceptions, "rejected records are not mutated")
}

func TestRunCancelledContextLeavesRecordUntouched(t *testing.T) {
	p, _ := newTestPipeline(t)
	record := completeRecord()
	record.Normalize()
	before := record.Clone()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Run(ctx, record)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
	assert.Equal(t, before, record)
}

func TestRunDemotionClearsStaleFundingFields(t *testing.T) {
	p, _ := newTestPipeline(t)
	record := completeRecord()

	_, err := p.Run(context.Background(), record)
	require.NoError(t, err)
	require.NotNil(t, record.FundingAmount)

	// A document expires after the loan was cleared.
	record.Documents["bank_statements"].Status = loan.DocumentExpired
	result, err := p.Run(context.Background(), record)
	require.NoError(t, err)

	assert.Equal(t, loan.StatusDocumentCollection, result.FinalStatus)
	assert.Nil(t, record.FundingAmount)
	assert.NoError(t, record.Validate())
}

func TestMarkFunded(t *testing.T) {
	p, sink := newTestPipeline(t)
	record := completeRecord()

	_, err := p.Run(context.Background(), record)
	require.NoError(t, err)
	require.Equal(t, loan.StatusReadyToFund, record.FundingStatus)

	require.NoError(t, p.MarkFunded(context.Background(), record, "2026-09-02", "****4821"))
	assert.Equal(t, loan.StatusFunded, record.FundingStatus)
	assert.Equal(t, "2026-09-02", record.ActualFundingDate)
	assert.Equal(t, "****4821", record.DisbursementAccount)

	var sawFunded bool
	for _, event := range sink.ByLoan(record.LoanID) {
		if event.Action == audit.ActionStatusChanged && event.To == string(loan.StatusFunded) {
			sawFunded = true
		}
	}
	assert.True(t, sawFunded)
}

func TestRunFundedLoanIsUntouched(t *testing.T) {
	p, sink := newTestPipeline(t)
	record := completeRecord()

	_, err := p.Run(context.Background(), record)
	require.NoError(t, err)
	require.NoError(t, p.MarkFunded(context.Background(), record, "2026-09-02", "****4821"))
	require.Equal(t, loan.StatusFunded, record.FundingStatus)

	before := record.Clone()
	eventsBefore := len(sink.Events())

	result, err := p.Run(context.Background(), record)
	require.NoError(t, err)

	// The terminal state survives: no demotion, no new trail entries, no
	// fresh drafts, and no second shot at disbursement.
	assert.Equal(t, loan.StatusFunded, result.PreviousStatus)
	assert.Equal(t, loan.StatusFunded, result.FinalStatus)
	assert.Equal(t, before, record)
	assert.Len(t, sink.Events(), eventsBefore)
	assert.Contains(t, result.Context.FundingNote, "funded")

	err = p.MarkFunded(context.Background(), record, "2026-09-03", "")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestMarkFundedRequiresReadyToFund(t *testing.T) {
	p, _ := newTestPipeline(t)
	record := completeRecord()

	err := p.MarkFunded(context.Background(), record, "2026-09-02", "")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestRunBlockedFundingNoteExplainsDeferral(t *testing.T) {
	p, _ := newTestPipeline(t)
	record := completeRecord()
	record.Flags.AMLCleared = boolPtr(false)

	result, err := p.Run(context.Background(), record)
	require.NoError(t, err)

	assert.Nil(t, result.Context.Funding)
	assert.True(t, strings.HasPrefix(result.Context.FundingNote, "funding preparation deferred"))
}
