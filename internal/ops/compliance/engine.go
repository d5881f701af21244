// Package compliance evaluates the fixed battery of regulatory predicates
// against a loan record. The predicates are illustrative operating rules, not
// legal advice; their pass conditions and findings strings are part of the
// pipeline's contract.
package compliance

import (
	"time"

	"loanops/internal/catalog"
	loan "loanops/internal/loan/models"
	ops "loanops/internal/ops/models"
)

// Engine runs the compliance check battery.
type Engine struct {
	checks []string
	strict bool
	now    func() time.Time
}

// Option configures the Engine.
type Option func(*Engine)

// WithStrictDefaults flips absent attestation flags from assume-compliant to
// fail-closed. Default off, matching the documented predicate table.
func WithStrictDefaults() Option {
	return func(e *Engine) { e.strict = true }
}

// WithClock pins the evaluation time.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(cat *catalog.Catalog, opts ...Option) *Engine {
	e := &Engine{
		checks: cat.ComplianceChecks,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate runs every configured check against the record. Each call produces
// fresh results; it never patches prior values.
func (e *Engine) Evaluate(record *loan.LoanRecord) ops.ComplianceReport {
	report := ops.ComplianceReport{
		LoanID:      record.LoanID,
		TotalChecks: len(e.checks),
		Results:     make(map[string]ops.CheckResult, len(e.checks)),
	}
	checkedDate := e.now().Format(time.RFC3339)

	for _, name := range e.checks {
		passed, findings := e.evaluateOne(name, record)
		report.Results[name] = ops.CheckResult{
			CheckName:   name,
			Passed:      passed,
			Findings:    findings,
			CheckedDate: checkedDate,
		}
		if !passed {
			report.FailedChecks = append(report.FailedChecks, name)
		}
	}

	report.PassedChecks = report.TotalChecks - len(report.FailedChecks)
	report.CompliancePassed = len(report.FailedChecks) == 0
	if report.CompliancePassed {
		report.Recommendation = ops.RecommendationCleared
	} else {
		report.Recommendation = ops.RecommendationRemediation
	}
	return report
}

func (e *Engine) evaluateOne(check string, record *loan.LoanRecord) (bool, string) {
	switch check {
	case "anti_money_laundering":
		if e.flag(record.Flags.AMLCleared) {
			return true, ""
		}
		return false, "AML flag detected - requires review"
	case "know_your_customer":
		if e.flag(record.Flags.KYCVerified) {
			return true, ""
		}
		return false, "KYC verification incomplete"
	case "truth_in_lending":
		if e.flag(record.Flags.TILADisclosed) {
			return true, ""
		}
		return false, "TILA disclosure missing"
	case "flood_insurance":
		if record.LoanType != "mortgage" {
			return true, "N/A - not a mortgage"
		}
		if e.flag(record.Flags.FloodCertClear) || boolValue(record.Flags.FloodInsuranceObtained) {
			return true, ""
		}
		return false, "Flood insurance required but not obtained"
	default:
		// equal_credit_opportunity, fair_lending, privacy_disclosure, and any
		// catalog additions pass unless flagged.
		return true, ""
	}
}

// flag resolves a tri-state attestation. Absent flags assume compliance
// unless strict defaults are on.
func (e *Engine) flag(p *bool) bool {
	if p == nil {
		return !e.strict
	}
	return *p
}

func boolValue(p *bool) bool { return p != nil && *p }
