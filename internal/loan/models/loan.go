// Package models defines the loan record aggregate tracked by the operations
// pipeline: one approved loan's documents, compliance checks, exceptions, and
// communications on its way to funding.
package models

import (
	dErrors "loanops/pkg/domain-errors"
	"loanops/pkg/email"
)

// DocumentStatus tracks a single required document through collection.
type DocumentStatus string

const (
	DocumentPending  DocumentStatus = "pending"
	DocumentReceived DocumentStatus = "received"
	DocumentVerified DocumentStatus = "verified"
	DocumentRejected DocumentStatus = "rejected"
	DocumentExpired  DocumentStatus = "expired"
)

func (s DocumentStatus) IsValid() bool {
	switch s {
	case DocumentPending, DocumentReceived, DocumentVerified, DocumentRejected, DocumentExpired:
		return true
	}
	return false
}

// FundingStatus is the loan's lifecycle state. States advance in the order
// listed; Suspended is reachable from any non-terminal state.
type FundingStatus string

const (
	StatusApproved           FundingStatus = "approved"
	StatusDocumentCollection FundingStatus = "document_collection"
	StatusVerification       FundingStatus = "verification"
	StatusComplianceReview   FundingStatus = "compliance_review"
	StatusExceptionHandling  FundingStatus = "exception_handling"
	StatusReadyToFund        FundingStatus = "ready_to_fund"
	StatusFunded             FundingStatus = "funded"
	StatusSuspended          FundingStatus = "suspended"
)

func (s FundingStatus) IsValid() bool {
	switch s {
	case StatusApproved, StatusDocumentCollection, StatusVerification,
		StatusComplianceReview, StatusExceptionHandling, StatusReadyToFund,
		StatusFunded, StatusSuspended:
		return true
	}
	return false
}

// IsTerminal reports whether no further pipeline run can advance the loan.
func (s FundingStatus) IsTerminal() bool { return s == StatusFunded }

// Severity grades an exception. High and critical block funding.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Blocking reports whether an exception of this severity prevents advancing
// to ready_to_fund or funded.
func (s Severity) Blocking() bool { return s == SeverityHigh || s == SeverityCritical }

// ExceptionCategory names the stage family that raised an exception.
type ExceptionCategory string

const (
	CategoryDocument     ExceptionCategory = "document"
	CategoryCompliance   ExceptionCategory = "compliance"
	CategoryVerification ExceptionCategory = "verification"
	CategoryFunding      ExceptionCategory = "funding"
)

// Document is one required document in the loan file. Entries are created
// pending when the loan enters the pipeline and are only ever mutated, never
// deleted.
type Document struct {
	Name            string         `json:"name"`
	Status          DocumentStatus `json:"status"`
	ReceivedDate    string         `json:"received_date,omitempty"`
	VerifiedDate    string         `json:"verified_date,omitempty"`
	VerifiedBy      string         `json:"verified_by,omitempty"`
	RejectionReason string         `json:"rejection_reason,omitempty"`
	ExpirationDate  string         `json:"expiration_date,omitempty"`
	Notes           string         `json:"notes,omitempty"`

	// Declared metadata used by verification. Absent flags are treated as
	// true (declared complete/signed unless stated otherwise).
	Signed        *bool  `json:"signed,omitempty"`
	PagesComplete *bool  `json:"pages_complete,omitempty"`
	DocumentDate  string `json:"document_date,omitempty"`
}

// ComplianceCheck is one regulatory check result. Passed is tri-state:
// nil means not yet evaluated.
type ComplianceCheck struct {
	CheckName        string `json:"check_name"`
	Passed           *bool  `json:"passed"`
	CheckedDate      string `json:"checked_date,omitempty"`
	CheckedBy        string `json:"checked_by,omitempty"`
	Findings         string `json:"findings,omitempty"`
	RequiresOverride bool   `json:"requires_override,omitempty"`
}

// Exception records a gap, failure, or risk item. Resolution annotates the
// entry; it is never removed.
type Exception struct {
	ID           string            `json:"id"`
	Category     ExceptionCategory `json:"category"`
	Description  string            `json:"description"`
	Severity     Severity          `json:"severity"`
	CreatedDate  string            `json:"created_date"`
	ResolvedDate string            `json:"resolved_date,omitempty"`
	Resolution   string            `json:"resolution,omitempty"`
	AssignedTo   string            `json:"assigned_to,omitempty"`
}

// Resolved reports whether the exception has been closed out.
func (e *Exception) Resolved() bool { return e.ResolvedDate != "" }

// Communication is one drafted borrower message. Append-only.
type Communication struct {
	ID        string `json:"id,omitempty"`
	Type      string `json:"type"`
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	Priority  string `json:"priority"`
	DraftedAt string `json:"drafted_at"`
	Delivered bool   `json:"delivered,omitempty"`
}

// ComplianceFlags carries the loan-level attestations the compliance engine
// evaluates. Pointers are tri-state: nil means the fact was never recorded.
type ComplianceFlags struct {
	AMLCleared             *bool `json:"aml_cleared,omitempty"`
	KYCVerified            *bool `json:"kyc_verified,omitempty"`
	TILADisclosed          *bool `json:"tila_disclosed,omitempty"`
	FloodCertClear         *bool `json:"flood_cert_clear,omitempty"`
	FloodInsuranceObtained *bool `json:"flood_insurance_obtained,omitempty"`
}

// LoanRecord is the single mutable aggregate for one loan's post-approval
// journey. The pipeline owns it for the duration of a run; stages receive a
// read view and the orchestrator applies their outputs.
type LoanRecord struct {
	LoanID        string `json:"loan_id"`
	BorrowerName  string `json:"borrower_name"`
	BorrowerEmail string `json:"borrower_email"`
	BorrowerPhone string `json:"borrower_phone,omitempty"`

	LoanType     string  `json:"loan_type"`
	LoanAmount   float64 `json:"loan_amount"`
	InterestRate float64 `json:"interest_rate"`
	TermMonths   int     `json:"term_months"`

	ApprovalDate       string   `json:"approval_date"`
	ApprovalConditions []string `json:"approval_conditions,omitempty"`
	Underwriter        string   `json:"underwriter,omitempty"`

	FundingStatus     FundingStatus `json:"funding_status"`
	TargetFundingDate string        `json:"target_funding_date,omitempty"`
	ActualFundingDate string        `json:"actual_funding_date,omitempty"`

	Documents        map[string]*Document        `json:"documents"`
	ComplianceChecks map[string]*ComplianceCheck `json:"compliance_checks"`
	Exceptions       []*Exception                `json:"exceptions"`
	Communications   []*Communication            `json:"communications"`

	Flags ComplianceFlags `json:"compliance_flags,omitempty"`

	// Funding fields are populated only once the loan reaches ready_to_fund.
	FundingAmount       *float64 `json:"funding_amount,omitempty"`
	FundingMethod       string   `json:"funding_method,omitempty"`
	DisbursementAccount string   `json:"disbursement_account,omitempty"`
}

// OpenExceptions returns the unresolved exceptions in creation order.
func (r *LoanRecord) OpenExceptions() []*Exception {
	var open []*Exception
	for _, exc := range r.Exceptions {
		if !exc.Resolved() {
			open = append(open, exc)
		}
	}
	return open
}

// HasBlockingException reports whether any unresolved exception is high or
// critical severity.
func (r *LoanRecord) HasBlockingException() bool {
	for _, exc := range r.Exceptions {
		if !exc.Resolved() && exc.Severity.Blocking() {
			return true
		}
	}
	return false
}

// HasCriticalException reports whether any unresolved exception is critical.
func (r *LoanRecord) HasCriticalException() bool {
	for _, exc := range r.Exceptions {
		if !exc.Resolved() && exc.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// HasOpenException reports whether an unresolved exception with the given
// category already references description. Used to avoid duplicate entries
// when a stage re-detects a known failure.
func (r *LoanRecord) HasOpenException(category ExceptionCategory, description string) bool {
	for _, exc := range r.Exceptions {
		if !exc.Resolved() && exc.Category == category && exc.Description == description {
			return true
		}
	}
	return false
}

// Normalize fills derived and defaulted fields after decoding: map keys become
// entry names, absent statuses become their documented defaults, and nil
// collections become empty ones. Invariant violations are left for Validate.
func (r *LoanRecord) Normalize() {
	if r.FundingStatus == "" {
		r.FundingStatus = StatusApproved
	}
	if r.BorrowerName == "" && r.BorrowerEmail != "" {
		first, last := email.DeriveNameFromEmail(r.BorrowerEmail)
		r.BorrowerName = first + " " + last
	}
	if r.Documents == nil {
		r.Documents = make(map[string]*Document)
	}
	for name, doc := range r.Documents {
		if doc.Name == "" {
			doc.Name = name
		}
		if doc.Status == "" {
			doc.Status = DocumentPending
		}
	}
	if r.ComplianceChecks == nil {
		r.ComplianceChecks = make(map[string]*ComplianceCheck)
	}
	for name, check := range r.ComplianceChecks {
		if check.CheckName == "" {
			check.CheckName = name
		}
	}
	for _, exc := range r.Exceptions {
		if exc.Severity == "" {
			exc.Severity = SeverityMedium
		}
	}
}

// Validate enforces the record invariants. A failure here is an input error:
// the pipeline must not run on the record.
func (r *LoanRecord) Validate() error {
	switch {
	case r.LoanID == "":
		return dErrors.New(dErrors.CodeInvalidInput, "loan_id is required")
	case r.BorrowerName == "":
		return dErrors.New(dErrors.CodeInvalidInput, "borrower_name is required")
	case r.BorrowerEmail == "":
		return dErrors.New(dErrors.CodeInvalidInput, "borrower_email is required")
	case r.LoanType == "":
		return dErrors.New(dErrors.CodeInvalidInput, "loan_type is required")
	case r.LoanAmount <= 0:
		return dErrors.New(dErrors.CodeInvalidInput, "loan_amount must be positive")
	case r.InterestRate < 0:
		return dErrors.New(dErrors.CodeInvalidInput, "interest_rate must not be negative")
	case r.TermMonths <= 0:
		return dErrors.New(dErrors.CodeInvalidInput, "term_months must be positive")
	case r.ApprovalDate == "":
		return dErrors.New(dErrors.CodeInvalidInput, "approval_date is required")
	}
	if !r.FundingStatus.IsValid() {
		return dErrors.Newf(dErrors.CodeInvalidInput, "unknown funding_status %q", r.FundingStatus)
	}
	for name, doc := range r.Documents {
		if !doc.Status.IsValid() {
			return dErrors.Newf(dErrors.CodeInvalidInput, "document %q has unknown status %q", name, doc.Status)
		}
	}
	seen := make(map[string]struct{}, len(r.Exceptions))
	for _, exc := range r.Exceptions {
		if exc.ID == "" {
			return dErrors.New(dErrors.CodeInvalidInput, "exception id is required")
		}
		if _, dup := seen[exc.ID]; dup {
			return dErrors.Newf(dErrors.CodeInvalidInput, "duplicate exception id %q", exc.ID)
		}
		seen[exc.ID] = struct{}{}
		if !exc.Severity.IsValid() {
			return dErrors.Newf(dErrors.CodeInvalidInput, "exception %s has unknown severity %q", exc.ID, exc.Severity)
		}
	}
	if r.FundingAmount != nil &&
		r.FundingStatus != StatusReadyToFund && r.FundingStatus != StatusFunded {
		return dErrors.New(dErrors.CodeInvalidInput, "funding fields set before ready_to_fund")
	}
	return nil
}

// Clone deep-copies the record so a pipeline run can work on a snapshot and
// apply stage outputs atomically.
func (r *LoanRecord) Clone() *LoanRecord {
	out := *r
	out.ApprovalConditions = append([]string(nil), r.ApprovalConditions...)
	out.Documents = make(map[string]*Document, len(r.Documents))
	for name, doc := range r.Documents {
		d := *doc
		if doc.Signed != nil {
			v := *doc.Signed
			d.Signed = &v
		}
		if doc.PagesComplete != nil {
			v := *doc.PagesComplete
			d.PagesComplete = &v
		}
		out.Documents[name] = &d
	}
	out.ComplianceChecks = make(map[string]*ComplianceCheck, len(r.ComplianceChecks))
	for name, check := range r.ComplianceChecks {
		c := *check
		if check.Passed != nil {
			v := *check.Passed
			c.Passed = &v
		}
		out.ComplianceChecks[name] = &c
	}
	out.Exceptions = make([]*Exception, len(r.Exceptions))
	for i, exc := range r.Exceptions {
		e := *exc
		out.Exceptions[i] = &e
	}
	out.Communications = make([]*Communication, len(r.Communications))
	for i, comm := range r.Communications {
		c := *comm
		out.Communications[i] = &c
	}
	out.Flags = r.Flags.clone()
	if r.FundingAmount != nil {
		v := *r.FundingAmount
		out.FundingAmount = &v
	}
	return &out
}

func (f ComplianceFlags) clone() ComplianceFlags {
	cp := func(p *bool) *bool {
		if p == nil {
			return nil
		}
		v := *p
		return &v
	}
	return ComplianceFlags{
		AMLCleared:             cp(f.AMLCleared),
		KYCVerified:            cp(f.KYCVerified),
		TILADisclosed:          cp(f.TILADisclosed),
		FloodCertClear:         cp(f.FloodCertClear),
		FloodInsuranceObtained: cp(f.FloodInsuranceObtained),
	}
}
