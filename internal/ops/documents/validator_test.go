package documents

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	loan "loanops/internal/loan/models"
	ops "loanops/internal/ops/models"
	dErrors "loanops/pkg/domain-errors"
)

var testNow = time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

func newTestValidator() *Validator {
	return NewValidator(WithClock(func() time.Time { return testNow }))
}

func boolPtr(v bool) *bool { return &v }

func TestValidatePassesWithDefaults(t *testing.T) {
	v := newTestValidator()

	result, err := v.Validate(&loan.Document{Name: "tax_returns", Status: loan.DocumentReceived})
	require.NoError(t, err)

	assert.True(t, result.Passed)
	assert.Equal(t, ops.RecommendationVerified, result.Recommendation)
	assert.Empty(t, result.FailedChecks)
	assert.Equal(t, testNow.Format(time.RFC3339), result.VerificationDate)
}

func TestValidateDeclaredFlags(t *testing.T) {
	v := newTestValidator()

	t.Run("unsigned fails signatures_valid", func(t *testing.T) {
		result, err := v.Validate(&loan.Document{
			Name:   "signed_application",
			Status: loan.DocumentReceived,
			Signed: boolPtr(false),
		})
		require.NoError(t, err)
		assert.False(t, result.Passed)
		assert.Equal(t, ops.RecommendationRequiresAttention, result.Recommendation)
		assert.Equal(t, []string{"signatures_valid"}, result.FailedChecks)
	})

	t.Run("incomplete pages fail complete", func(t *testing.T) {
		result, err := v.Validate(&loan.Document{
			Name:          "bank_statements",
			Status:        loan.DocumentReceived,
			PagesComplete: boolPtr(false),
		})
		require.NoError(t, err)
		assert.False(t, result.Passed)
		assert.Contains(t, result.FailedChecks, "complete")
	})
}

func TestValidateFreshnessWindow(t *testing.T) {
	v := newTestValidator()

	t.Run("89 days old passes", func(t *testing.T) {
		date := testNow.AddDate(0, 0, -89).Format("2006-01-02")
		result, err := v.Validate(&loan.Document{
			Name: "proof_of_income", Status: loan.DocumentReceived, DocumentDate: date,
		})
		require.NoError(t, err)
		assert.True(t, result.Passed)
	})

	t.Run("91 days old fails not_expired", func(t *testing.T) {
		date := testNow.AddDate(0, 0, -91).Format("2006-01-02")
		result, err := v.Validate(&loan.Document{
			Name: "bank_statements", Status: loan.DocumentReceived, DocumentDate: date,
		})
		require.NoError(t, err)
		assert.False(t, result.Passed)
		assert.Equal(t, []string{"not_expired"}, result.FailedChecks)
	})

	t.Run("freshness only applies to date-sensitive documents", func(t *testing.T) {
		date := testNow.AddDate(0, 0, -200).Format("2006-01-02")
		result, err := v.Validate(&loan.Document{
			Name: "tax_returns", Status: loan.DocumentReceived, DocumentDate: date,
		})
		require.NoError(t, err)
		assert.True(t, result.Passed)
	})
}

func TestValidateMalformedDateIsInputError(t *testing.T) {
	v := newTestValidator()

	_, err := v.Validate(&loan.Document{
		Name: "proof_of_income", Status: loan.DocumentReceived, DocumentDate: "08/31/2026",
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestValidDocumentDate(t *testing.T) {
	assert.True(t, ValidDocumentDate(&loan.Document{Name: "x"}))
	assert.True(t, ValidDocumentDate(&loan.Document{Name: "x", DocumentDate: "2026-05-01"}))
	assert.False(t, ValidDocumentDate(&loan.Document{Name: "x", DocumentDate: "May 1st"}))
}
