// Package documents implements the document tracking and verification stages.
package documents

import (
	"fmt"

	"loanops/internal/catalog"
	loan "loanops/internal/loan/models"
	ops "loanops/internal/ops/models"
)

// Auditor compares required documents against the loan file and classifies
// the gaps. It never mutates the record; the orchestrator applies transitions
// based on the report.
type Auditor struct {
	catalog *catalog.Catalog
}

func NewAuditor(cat *catalog.Catalog) (*Auditor, error) {
	if cat == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	return &Auditor{catalog: cat}, nil
}

// Audit classifies every required document for the loan's type:
// absent or pending -> missing, expired -> expired, received -> pending
// verification. Verified and rejected documents are settled and appear in no
// list.
func (a *Auditor) Audit(record *loan.LoanRecord) ops.DocumentAudit {
	required := a.catalog.DocumentsFor(record.LoanType)

	audit := ops.DocumentAudit{
		LoanID:            record.LoanID,
		LoanType:          record.LoanType,
		TotalRequired:     len(required),
		SLAHoursRemaining: a.catalog.SLAHours["document_follow_up"],
	}

	for _, name := range required {
		doc, ok := record.Documents[name]
		switch {
		case !ok, doc.Status == loan.DocumentPending:
			audit.Missing = append(audit.Missing, name)
		case doc.Status == loan.DocumentExpired:
			audit.Expired = append(audit.Expired, name)
		case doc.Status == loan.DocumentReceived:
			audit.PendingVerification = append(audit.PendingVerification, name)
		}
	}

	audit.CollectionComplete = len(audit.Missing) == 0 && len(audit.Expired) == 0
	audit.ActionRequired = !audit.CollectionComplete
	return audit
}

// Required exposes the catalog document list so the orchestrator can seed
// pending entries for a loan entering the pipeline.
func (a *Auditor) Required(loanType string) []string {
	return a.catalog.DocumentsFor(loanType)
}
