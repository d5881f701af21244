package documents

import (
	"fmt"
	"strings"
	"time"

	"loanops/internal/catalog"
	loan "loanops/internal/loan/models"
	ops "loanops/internal/ops/models"
	dErrors "loanops/pkg/domain-errors"
)

const dateLayout = "2006-01-02"

// Validator applies the per-document authenticity and freshness checks.
type Validator struct {
	now func() time.Time
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithClock pins the evaluation time; tests use it to make freshness
// deterministic.
func WithClock(now func() time.Time) ValidatorOption {
	return func(v *Validator) { v.now = now }
}

func NewValidator(opts ...ValidatorOption) *Validator {
	v := &Validator{now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate evaluates one document's declared metadata. Absent signed and
// completeness flags are treated as true. For date-sensitive documents a
// stated date more than 90 days old fails not_expired; callers must reject
// malformed dates before calling, so one here is an invalid-input error, not
// a verification failure.
func (v *Validator) Validate(doc *loan.Document) (ops.VerificationResult, error) {
	checks := ops.CheckVector{
		DocumentPresent: true,
		Legible:         true,
		Complete:        boolOr(doc.PagesComplete, true),
		NotExpired:      true,
		SignaturesValid: boolOr(doc.Signed, true),
		DatesConsistent: true,
	}

	if catalog.DateSensitiveDocuments[doc.Name] && doc.DocumentDate != "" {
		stated, err := time.Parse(dateLayout, doc.DocumentDate)
		if err != nil {
			return ops.VerificationResult{}, dErrors.Wrap(err, dErrors.CodeInvalidInput,
				fmt.Sprintf("document %q has malformed document_date %q", doc.Name, doc.DocumentDate))
		}
		if v.now().Sub(stated) > catalog.FreshnessWindowDays*24*time.Hour {
			checks.NotExpired = false
		}
	}

	failed := checks.Failed()
	result := ops.VerificationResult{
		DocumentName:     doc.Name,
		Passed:           checks.AllPassed(),
		VerificationDate: v.now().Format(time.RFC3339),
		Checks:           checks,
		FailedChecks:     failed,
	}
	if result.Passed {
		result.Recommendation = ops.RecommendationVerified
		result.Notes = "Document verified successfully"
	} else {
		result.Recommendation = ops.RecommendationRequiresAttention
		result.Notes = "Document failed verification: " + strings.Join(failed, ", ")
	}
	return result, nil
}

// ValidDocumentDate reports whether the stated document date, when present,
// parses. The orchestrator rejects records violating this before validation.
func ValidDocumentDate(doc *loan.Document) bool {
	if doc.DocumentDate == "" {
		return true
	}
	_, err := time.Parse(dateLayout, doc.DocumentDate)
	return err == nil
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
