// Package models defines the stage outputs of the operations pipeline. Each
// stage produces one of these reports; the orchestrator accumulates them in a
// Context that later stages receive read-only.
package models

import (
	loan "loanops/internal/loan/models"
)

// Recommendation values emitted by the verification and compliance stages.
const (
	RecommendationVerified          = "VERIFIED"
	RecommendationRequiresAttention = "REQUIRES_ATTENTION"
	RecommendationCleared           = "CLEARED"
	RecommendationRemediation       = "REQUIRES_REMEDIATION"
)

// DocumentAudit is the document tracking stage output: required documents
// classified by their current collection state.
type DocumentAudit struct {
	LoanID              string   `json:"loan_id"`
	LoanType            string   `json:"loan_type"`
	TotalRequired       int      `json:"total_required"`
	Missing             []string `json:"missing_documents"`
	Expired             []string `json:"expired_documents"`
	PendingVerification []string `json:"pending_verification"`
	CollectionComplete  bool     `json:"collection_complete"`
	ActionRequired      bool     `json:"action_required"`
	SLAHoursRemaining   int      `json:"sla_hours_remaining"`
}

// CheckVector is the per-document verification check battery.
type CheckVector struct {
	DocumentPresent bool `json:"document_present"`
	Legible         bool `json:"legible"`
	Complete        bool `json:"complete"`
	NotExpired      bool `json:"not_expired"`
	SignaturesValid bool `json:"signatures_valid"`
	DatesConsistent bool `json:"dates_consistent"`
}

// AllPassed reports the conjunction of every check.
func (v CheckVector) AllPassed() bool {
	return v.DocumentPresent && v.Legible && v.Complete &&
		v.NotExpired && v.SignaturesValid && v.DatesConsistent
}

// Failed returns the names of failed checks in canonical order.
func (v CheckVector) Failed() []string {
	var failed []string
	for _, c := range []struct {
		name   string
		passed bool
	}{
		{"document_present", v.DocumentPresent},
		{"legible", v.Legible},
		{"complete", v.Complete},
		{"not_expired", v.NotExpired},
		{"signatures_valid", v.SignaturesValid},
		{"dates_consistent", v.DatesConsistent},
	} {
		if !c.passed {
			failed = append(failed, c.name)
		}
	}
	return failed
}

// VerificationResult is one document's verification outcome.
type VerificationResult struct {
	DocumentName     string      `json:"document_name"`
	Passed           bool        `json:"verification_passed"`
	VerificationDate string      `json:"verification_date"`
	Checks           CheckVector `json:"checks_performed"`
	FailedChecks     []string    `json:"failed_checks"`
	Recommendation   string      `json:"recommendation"`
	Notes            string      `json:"notes"`
}

// CheckResult is one compliance predicate's outcome.
type CheckResult struct {
	CheckName   string `json:"check_name"`
	Passed      bool   `json:"passed"`
	Findings    string `json:"findings,omitempty"`
	CheckedDate string `json:"checked_date"`
}

// ComplianceReport aggregates the full check battery.
type ComplianceReport struct {
	LoanID           string                 `json:"loan_id"`
	CompliancePassed bool                   `json:"compliance_passed"`
	TotalChecks      int                    `json:"total_checks"`
	PassedChecks     int                    `json:"passed_checks"`
	FailedChecks     []string               `json:"failed_checks"`
	Results          map[string]CheckResult `json:"results"`
	Recommendation   string                 `json:"recommendation"`
}

// ExceptionAnalysis is the resolver's classification of one exception.
type ExceptionAnalysis struct {
	ExceptionID         string        `json:"exception_id,omitempty"`
	Category            string        `json:"exception_type"`
	Issue               string        `json:"issue"`
	Severity            loan.Severity `json:"severity"`
	ImpactAssessment    string        `json:"impact_assessment"`
	ProposedResolutions []string      `json:"proposed_resolutions"`
	RecommendedAction   string        `json:"recommended_action"`
	EscalationRequired  bool          `json:"escalation_required"`
	SLAImpact           bool          `json:"sla_impact"`
}

// FundingPlan is the disbursement breakdown for an unblocked loan.
type FundingPlan struct {
	LoanAmount           float64            `json:"loan_amount"`
	InterestRate         float64            `json:"interest_rate"`
	LoanType             string             `json:"loan_type"`
	FeeBreakdown         map[string]float64 `json:"fee_breakdown"`
	TotalFees            float64            `json:"total_fees"`
	PrepaidInterest      float64            `json:"prepaid_interest"`
	NetDisbursement      float64            `json:"net_disbursement"`
	FundingMethod        string             `json:"funding_method"`
	EstimatedFundingDate string             `json:"estimated_funding_date"`
}

// Context accumulates stage outputs over one pipeline run. Stages receive it
// read-only; only the orchestrator writes to it.
type Context struct {
	Audit         *DocumentAudit        `json:"document_audit,omitempty"`
	Verifications []VerificationResult  `json:"verifications,omitempty"`
	Compliance    *ComplianceReport     `json:"compliance,omitempty"`
	Exceptions    []ExceptionAnalysis   `json:"exception_analyses,omitempty"`
	Funding       *FundingPlan          `json:"funding,omitempty"`
	FundingNote   string                `json:"funding_note,omitempty"`
	Drafts        []*loan.Communication `json:"communications,omitempty"`
}
