// Package report renders a pipeline run as a markdown operations report for
// back-office review.
package report

import (
	"fmt"
	"strings"
	"time"

	loan "loanops/internal/loan/models"
	ops "loanops/internal/ops/models"
	"loanops/internal/ops/pipeline"
)

// Render produces the markdown operations report for a completed run.
func Render(record *loan.LoanRecord, result *pipeline.Result) string {
	var b strings.Builder
	runCtx := result.Context

	fmt.Fprintf(&b, "# Loan Operations Report: %s\n\n", record.LoanID)
	fmt.Fprintf(&b, "Generated: %s\n\n", result.CompletedAt.Format(time.RFC3339))

	if record.HasCriticalException() {
		b.WriteString("> **SUSPENDED**: a critical exception is open on this loan. ")
		b.WriteString("No further processing until it is resolved.\n\n")
	}

	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| Borrower | %s |\n", record.BorrowerName)
	fmt.Fprintf(&b, "| Loan type | %s |\n", record.LoanType)
	fmt.Fprintf(&b, "| Loan amount | $%.2f |\n", record.LoanAmount)
	fmt.Fprintf(&b, "| Status | %s → %s |\n", result.PreviousStatus, result.FinalStatus)
	fmt.Fprintf(&b, "| Open exceptions | %d |\n\n", len(record.OpenExceptions()))

	writeDocuments(&b, runCtx.Audit)
	writeVerification(&b, runCtx.Verifications)
	writeCompliance(&b, runCtx.Compliance)
	writeExceptions(&b, record, runCtx.Exceptions)
	writeFunding(&b, runCtx)
	writeCommunications(&b, runCtx.Drafts)

	return b.String()
}

func writeDocuments(b *strings.Builder, audit *ops.DocumentAudit) {
	if audit == nil {
		return
	}
	b.WriteString("## Document Tracking\n\n")
	fmt.Fprintf(b, "%d documents required; collection complete: %v.\n\n",
		audit.TotalRequired, audit.CollectionComplete)
	if len(audit.Missing) > 0 {
		fmt.Fprintf(b, "- Missing: %s\n", strings.Join(audit.Missing, ", "))
	}
	if len(audit.Expired) > 0 {
		fmt.Fprintf(b, "- Expired: %s\n", strings.Join(audit.Expired, ", "))
	}
	if len(audit.PendingVerification) > 0 {
		fmt.Fprintf(b, "- Pending verification: %s\n", strings.Join(audit.PendingVerification, ", "))
	}
	if audit.ActionRequired {
		fmt.Fprintf(b, "- SLA: %d hours remaining to chase outstanding documents\n", audit.SLAHoursRemaining)
	}
	b.WriteString("\n")
}

func writeVerification(b *strings.Builder, results []ops.VerificationResult) {
	if len(results) == 0 {
		return
	}
	b.WriteString("## Verification\n\n")
	b.WriteString("| Document | Recommendation | Failed checks |\n|---|---|---|\n")
	for _, r := range results {
		failed := "-"
		if names := r.Checks.Failed(); len(names) > 0 {
			failed = strings.Join(names, ", ")
		}
		fmt.Fprintf(b, "| %s | %s | %s |\n", r.DocumentName, r.Recommendation, failed)
	}
	b.WriteString("\n")
}

func writeCompliance(b *strings.Builder, report *ops.ComplianceReport) {
	if report == nil {
		return
	}
	b.WriteString("## Compliance Review\n\n")
	fmt.Fprintf(b, "Recommendation: **%s**\n\n", report.Recommendation)
	if len(report.FailedChecks) > 0 {
		for _, name := range report.FailedChecks {
			fmt.Fprintf(b, "- %s: %s\n", name, report.Results[name].Findings)
		}
		b.WriteString("\n")
	}
}

func writeExceptions(b *strings.Builder, record *loan.LoanRecord, analyses []ops.ExceptionAnalysis) {
	open := record.OpenExceptions()
	if len(open) == 0 && len(analyses) == 0 {
		return
	}
	b.WriteString("## Exceptions\n\n")
	if len(open) == 0 {
		b.WriteString("All exceptions resolved.\n\n")
		return
	}
	byID := make(map[string]ops.ExceptionAnalysis, len(analyses))
	for _, a := range analyses {
		byID[a.ExceptionID] = a
	}
	for _, exc := range open {
		fmt.Fprintf(b, "- **%s** [%s/%s] %s (assigned: %s)\n",
			exc.ID, exc.Category, exc.Severity, exc.Description, exc.AssignedTo)
		if a, ok := byID[exc.ID]; ok && a.RecommendedAction != "" {
			fmt.Fprintf(b, "  - Next: %s\n", a.RecommendedAction)
		}
	}
	b.WriteString("\n")
}

func writeFunding(b *strings.Builder, runCtx *ops.Context) {
	b.WriteString("## Funding\n\n")
	if runCtx.Funding == nil {
		if runCtx.FundingNote != "" {
			fmt.Fprintf(b, "%s\n\n", runCtx.FundingNote)
		} else {
			b.WriteString("Funding not yet prepared.\n\n")
		}
		return
	}
	plan := runCtx.Funding
	fmt.Fprintf(b, "| | |\n|---|---|\n")
	fmt.Fprintf(b, "| Total fees | $%.2f |\n", plan.TotalFees)
	fmt.Fprintf(b, "| Prepaid interest | $%.2f |\n", plan.PrepaidInterest)
	fmt.Fprintf(b, "| Net disbursement | $%.2f |\n", plan.NetDisbursement)
	fmt.Fprintf(b, "| Method | %s |\n", plan.FundingMethod)
	fmt.Fprintf(b, "| Estimated date | %s |\n\n", plan.EstimatedFundingDate)
}

func writeCommunications(b *strings.Builder, drafts []*loan.Communication) {
	if len(drafts) == 0 {
		return
	}
	b.WriteString("## Communications\n\n")
	for _, c := range drafts {
		delivery := "held"
		if c.Delivered {
			delivery = "queued"
		}
		fmt.Fprintf(b, "- [%s, %s priority, %s] %s\n", c.Type, c.Priority, delivery, c.Subject)
	}
	b.WriteString("\n")
}
