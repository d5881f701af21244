package exceptions

import (
	"testing"

	"github.com/stretchr/testify/assert"

	loan "loanops/internal/loan/models"
)

func TestAnalyzeFraudFlag(t *testing.T) {
	r := NewResolver()

	analysis := r.Analyze(loan.CategoryVerification, "fraud_flag")

	assert.Equal(t, loan.SeverityCritical, analysis.Severity)
	assert.Equal(t, "Escalate immediately", analysis.RecommendedAction)
	assert.Equal(t, []string{"Escalate immediately", "Suspend processing", "Notify fraud team"}, analysis.ProposedResolutions)
	assert.True(t, analysis.EscalationRequired)
	assert.Equal(t, "Blocks funding", analysis.ImpactAssessment)
	assert.True(t, analysis.SLAImpact)
}

func TestAnalyzeSeverityTable(t *testing.T) {
	r := NewResolver()

	cases := []struct {
		category loan.ExceptionCategory
		issue    string
		severity loan.Severity
	}{
		{loan.CategoryVerification, "fraud_flag", loan.SeverityCritical},
		{loan.CategoryCompliance, "failed_check", loan.SeverityHigh},
		{loan.CategoryDocument, "missing", loan.SeverityLow},
		{loan.CategoryDocument, "expired", loan.SeverityMedium},
		{loan.CategoryVerification, "mismatch", loan.SeverityMedium},
		{loan.CategoryFunding, "wire_error", loan.SeverityMedium},
	}
	for _, tc := range cases {
		analysis := r.Analyze(tc.category, tc.issue)
		assert.Equal(t, tc.severity, analysis.Severity, "%s/%s", tc.category, tc.issue)
	}
}

func TestAnalyzeKnownIssues(t *testing.T) {
	r := NewResolver()

	analysis := r.Analyze(loan.CategoryDocument, "missing")
	assert.Equal(t, "Request document from borrower", analysis.RecommendedAction)
	assert.False(t, analysis.EscalationRequired)
	assert.Equal(t, "May delay funding", analysis.ImpactAssessment)
	assert.False(t, analysis.SLAImpact, "low severity does not threaten SLA")

	analysis = r.Analyze(loan.CategoryCompliance, "failed_check")
	assert.Equal(t, "Review findings", analysis.RecommendedAction)
	assert.True(t, analysis.EscalationRequired)
}

func TestAnalyzeUnknownIssueEscalates(t *testing.T) {
	r := NewResolver()

	analysis := r.Analyze(loan.CategoryDocument, "water_damaged")
	assert.Equal(t, []string{"Escalate to supervisor"}, analysis.ProposedResolutions)
	assert.Equal(t, "Escalate to supervisor", analysis.RecommendedAction)
	assert.Equal(t, loan.SeverityMedium, analysis.Severity)
}

func TestInferIssue(t *testing.T) {
	cases := []struct {
		name     string
		exc      *loan.Exception
		expected string
	}{
		{
			"pipeline missing tag",
			&loan.Exception{Category: loan.CategoryDocument, Description: "missing document: tax_returns"},
			"missing",
		},
		{
			"pipeline expired tag",
			&loan.Exception{Category: loan.CategoryDocument, Description: "expired document: bank_statements"},
			"expired",
		},
		{
			"compliance failed check",
			&loan.Exception{Category: loan.CategoryCompliance, Description: "failed check anti_money_laundering: AML flag detected - requires review"},
			"failed_check",
		},
		{
			"space variant of underscore tag",
			&loan.Exception{Category: loan.CategoryVerification, Description: "unable to verify document: proof_of_income (failed: not_expired)"},
			"unable_to_verify",
		},
		{
			"fraud shorthand",
			&loan.Exception{Category: loan.CategoryVerification, Description: "possible fraud indicators on application"},
			"fraud_flag",
		},
		{
			"unmatched description",
			&loan.Exception{Category: loan.CategoryFunding, Description: "borrower requested a delay"},
			"unknown",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, InferIssue(tc.exc))
		})
	}
}
