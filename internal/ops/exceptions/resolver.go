// Package exceptions classifies open exceptions and proposes resolution
// steps. The resolver is a pure lookup: no mutation, safe to call
// concurrently for distinct exceptions.
package exceptions

import (
	"strings"

	loan "loanops/internal/loan/models"
	ops "loanops/internal/ops/models"
)

// Issue tags per category. Tags outside this vocabulary fall back to a
// single supervisor escalation.
var issueVocabulary = map[loan.ExceptionCategory][]string{
	loan.CategoryDocument:     {"missing", "expired", "illegible", "incomplete"},
	loan.CategoryCompliance:   {"failed_check", "pending_review", "requires_override"},
	loan.CategoryVerification: {"mismatch", "unable_to_verify", "fraud_flag"},
	loan.CategoryFunding:      {"insufficient_funds", "wire_error", "hold_required"},
}

var resolutions = map[loan.ExceptionCategory]map[string][]string{
	loan.CategoryDocument: {
		"missing":    {"Request document from borrower", "Set follow-up reminder", "Escalate if SLA breached"},
		"expired":    {"Request updated document", "Verify if recent version exists"},
		"illegible":  {"Request clearer copy", "Accept if key information readable"},
		"incomplete": {"Request missing pages", "Verify completeness requirements"},
	},
	loan.CategoryCompliance: {
		"failed_check":      {"Review findings", "Request remediation", "Escalate to compliance officer"},
		"pending_review":    {"Expedite review", "Provide additional documentation"},
		"requires_override": {"Document justification", "Obtain management approval"},
	},
	loan.CategoryVerification: {
		"mismatch":         {"Investigate discrepancy", "Request clarification from borrower"},
		"unable_to_verify": {"Try alternate verification method", "Request additional proof"},
		"fraud_flag":       {"Escalate immediately", "Suspend processing", "Notify fraud team"},
	},
	loan.CategoryFunding: {
		"insufficient_funds": {"Verify funding source", "Delay funding date"},
		"wire_error":         {"Verify wire instructions", "Resubmit wire request"},
		"hold_required":      {"Identify hold reason", "Resolve blocking issues"},
	},
}

// Resolver analyzes exceptions.
type Resolver struct{}

func NewResolver() *Resolver { return &Resolver{} }

// Analyze classifies one exception by category and issue tag: severity,
// escalation and SLA flags, impact statement, and an ordered candidate list
// of resolution actions (first entry is the recommendation).
func (r *Resolver) Analyze(category loan.ExceptionCategory, issue string) ops.ExceptionAnalysis {
	actions, known := resolutions[category][issue]
	if !known {
		actions = []string{"Escalate to supervisor"}
	}

	severity := severityFor(category, issue)
	impact := "May delay funding"
	if severity.Blocking() {
		impact = "Blocks funding"
	}

	return ops.ExceptionAnalysis{
		Category:            string(category),
		Issue:               issue,
		Severity:            severity,
		ImpactAssessment:    impact,
		ProposedResolutions: actions,
		RecommendedAction:   actions[0],
		EscalationRequired:  severity.Blocking(),
		SLAImpact:           severity != loan.SeverityLow,
	}
}

func severityFor(category loan.ExceptionCategory, issue string) loan.Severity {
	switch {
	case category == loan.CategoryVerification && issue == "fraud_flag":
		return loan.SeverityCritical
	case category == loan.CategoryCompliance && issue == "failed_check":
		return loan.SeverityHigh
	case category == loan.CategoryDocument && issue == "missing":
		return loan.SeverityLow
	default:
		return loan.SeverityMedium
	}
}

// InferIssue extracts the issue tag from an exception's description by
// scanning for the category's vocabulary. Pipeline-created exceptions embed
// the tag; externally created ones usually mention it. Unmatched
// descriptions yield "unknown", which Analyze treats as a supervisor
// escalation.
func InferIssue(exc *loan.Exception) string {
	desc := strings.ToLower(exc.Description)
	for _, tag := range issueVocabulary[exc.Category] {
		if strings.Contains(desc, tag) || strings.Contains(desc, strings.ReplaceAll(tag, "_", " ")) {
			return tag
		}
	}
	// Common shorthand: "fraud" without the full tag still means fraud_flag.
	if exc.Category == loan.CategoryVerification && strings.Contains(desc, "fraud") {
		return "fraud_flag"
	}
	return "unknown"
}
