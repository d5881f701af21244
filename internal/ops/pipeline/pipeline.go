// Package pipeline runs the six loan operations stages in fixed order over a
// single loan record: document tracking, verification, compliance review,
// exception handling, funding preparation, and borrower communication. Each
// stage sees the accumulated outputs of every stage before it; the record is
// mutated only through stage applications, and a cancelled run leaves it
// untouched.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"loanops/internal/audit"
	"loanops/internal/catalog"
	loan "loanops/internal/loan/models"
	"loanops/internal/ops/comms"
	"loanops/internal/ops/comms/throttle"
	"loanops/internal/ops/compliance"
	"loanops/internal/ops/documents"
	"loanops/internal/ops/exceptions"
	"loanops/internal/ops/funding"
	ops "loanops/internal/ops/models"
	"loanops/internal/platform/metrics"
	dErrors "loanops/pkg/domain-errors"
)

// Stage names, in execution order. Also used as metric and span labels.
const (
	StageDocumentTracking  = "document_tracking"
	StageVerification      = "verification"
	StageCompliance        = "compliance_review"
	StageExceptionHandling = "exception_handling"
	StageFunding           = "funding_preparation"
	StageCommunication     = "communication"
)

// Pipeline orchestrates one loan's post-approval processing.
type Pipeline struct {
	auditor    *documents.Auditor
	validator  *documents.Validator
	engine     *compliance.Engine
	resolver   *exceptions.Resolver
	calculator *funding.Calculator
	composer   *comms.Composer
	throttle   throttle.Throttle
	publisher  audit.Publisher
	metrics    *metrics.Metrics
	logger     *slog.Logger
	tracer     trace.Tracer
	now        func() time.Time
	verifier   string
}

// Option configures the Pipeline.
type Option func(*config)

type config struct {
	logger     *slog.Logger
	metrics    *metrics.Metrics
	publisher  audit.Publisher
	throttle   throttle.Throttle
	generator  comms.Generator
	genTimeout time.Duration
	now        func() time.Time
	verifier   string
	strict     bool
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *config) { c.metrics = m }
}

func WithAuditPublisher(p audit.Publisher) Option {
	return func(c *config) { c.publisher = p }
}

func WithThrottle(t throttle.Throttle) Option {
	return func(c *config) { c.throttle = t }
}

// WithGenerator attaches the external prose collaborator, bounded by timeout.
func WithGenerator(g comms.Generator, timeout time.Duration) Option {
	return func(c *config) {
		c.generator = g
		c.genTimeout = timeout
	}
}

// WithClock pins all stage timestamps; tests use it for determinism.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

// WithVerifierID names the identity recorded on verified documents and
// compliance checks.
func WithVerifierID(id string) Option {
	return func(c *config) { c.verifier = id }
}

// WithStrictCompliance flips absent compliance attestations to fail-closed.
func WithStrictCompliance() Option {
	return func(c *config) { c.strict = true }
}

// New builds a pipeline over the given catalog.
func New(cat *catalog.Catalog, opts ...Option) (*Pipeline, error) {
	if cat == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	cfg := config{
		now:      time.Now,
		verifier: "loan-ops-system",
		throttle: throttle.Unlimited{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	auditor, err := documents.NewAuditor(cat)
	if err != nil {
		return nil, err
	}

	engineOpts := []compliance.Option{compliance.WithClock(cfg.now)}
	if cfg.strict {
		engineOpts = append(engineOpts, compliance.WithStrictDefaults())
	}
	composerOpts := []comms.Option{comms.WithClock(cfg.now)}
	if cfg.logger != nil {
		composerOpts = append(composerOpts, comms.WithLogger(cfg.logger))
	}
	if cfg.generator != nil {
		composerOpts = append(composerOpts, comms.WithGenerator(cfg.generator, cfg.genTimeout))
	}

	return &Pipeline{
		auditor:    auditor,
		validator:  documents.NewValidator(documents.WithClock(cfg.now)),
		engine:     compliance.New(cat, engineOpts...),
		resolver:   exceptions.NewResolver(),
		calculator: funding.New(funding.WithClock(cfg.now)),
		composer:   comms.New(composerOpts...),
		throttle:   cfg.throttle,
		publisher:  cfg.publisher,
		metrics:    cfg.metrics,
		logger:     cfg.logger,
		tracer:     otel.Tracer("loanops/pipeline"),
		now:        cfg.now,
		verifier:   cfg.verifier,
	}, nil
}

// Preview returns a pipeline whose runs leave no trace outside the record it
// is handed: no audit events, no throttle state consumed, no metrics. Report
// rendering uses it to evaluate a copy of a stored record without the run
// showing up in the trail.
func (p *Pipeline) Preview() *Pipeline {
	cp := *p
	cp.publisher = nil
	cp.throttle = throttle.Unlimited{}
	cp.metrics = nil
	return &cp
}

// Result summarizes one pipeline run.
type Result struct {
	LoanID         string
	PreviousStatus loan.FundingStatus
	FinalStatus    loan.FundingStatus
	Context        *ops.Context
	StartedAt      time.Time
	CompletedAt    time.Time
}

// Run executes all six stages against record. On success the record reflects
// every stage's applied output and its lifecycle status; on error or
// cancellation the record is unchanged. Re-running recomputes everything from
// current record contents.
func (p *Pipeline) Run(ctx context.Context, record *loan.LoanRecord) (*Result, error) {
	record.Normalize()
	if err := record.Validate(); err != nil {
		return nil, err
	}
	if err := p.validateDocumentDates(record); err != nil {
		return nil, err
	}

	// funded is terminal. Re-running the stages would walk the record back to
	// ready_to_fund and leave it eligible for a second disbursement, so a
	// funded loan is returned untouched.
	if record.FundingStatus.IsTerminal() {
		now := p.now()
		return &Result{
			LoanID:         record.LoanID,
			PreviousStatus: record.FundingStatus,
			FinalStatus:    record.FundingStatus,
			Context:        &ops.Context{FundingNote: "loan is funded; no further processing"},
			StartedAt:      now,
			CompletedAt:    now,
		}, nil
	}

	// Stages work on a snapshot; the record is only replaced after the run
	// completes, so cancellation discards partial state.
	work := record.Clone()
	runCtx := &ops.Context{}
	result := &Result{
		LoanID:         record.LoanID,
		PreviousStatus: record.FundingStatus,
		StartedAt:      p.now(),
		Context:        runCtx,
	}

	stages := []struct {
		name string
		run  func(ctx context.Context, work *loan.LoanRecord, runCtx *ops.Context) error
	}{
		{StageDocumentTracking, p.runDocumentTracking},
		{StageVerification, p.runVerification},
		{StageCompliance, p.runCompliance},
		{StageExceptionHandling, p.runExceptionHandling},
		{StageFunding, p.runFunding},
		{StageCommunication, p.runCommunication},
	}
	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "pipeline run cancelled")
		}
		if err := p.runStage(ctx, stage.name, work, runCtx, stage.run); err != nil {
			return nil, err
		}
	}

	final := p.finalStatus(work, runCtx)
	if final != loan.StatusReadyToFund && final != loan.StatusFunded {
		// A re-run can demote a previously cleared loan; stale funding
		// figures must not survive the demotion.
		work.FundingAmount = nil
		work.FundingMethod = ""
	}
	if final != work.FundingStatus {
		p.emit(ctx, audit.Event{
			Timestamp: p.now(),
			LoanID:    work.LoanID,
			Action:    audit.ActionStatusChanged,
			From:      string(work.FundingStatus),
			To:        string(final),
		})
		work.FundingStatus = final
	}
	if final == loan.StatusSuspended {
		p.emit(ctx, audit.Event{
			Timestamp: p.now(),
			LoanID:    work.LoanID,
			Action:    audit.ActionPipelineSuspended,
			Detail:    "critical exception open",
		})
	}

	*record = *work
	result.FinalStatus = final
	result.CompletedAt = p.now()

	if p.metrics != nil {
		p.metrics.ObserveRun(string(final))
		if final == loan.StatusReadyToFund && runCtx.Funding != nil {
			p.metrics.ObserveReadyToFund(runCtx.Funding.NetDisbursement)
		}
	}
	if p.logger != nil {
		p.logger.InfoContext(ctx, "pipeline run complete",
			"loan_id", record.LoanID,
			"previous_status", result.PreviousStatus,
			"final_status", final,
			"open_exceptions", len(record.OpenExceptions()),
		)
	}
	return result, nil
}

func (p *Pipeline) runStage(
	ctx context.Context,
	name string,
	work *loan.LoanRecord,
	runCtx *ops.Context,
	fn func(context.Context, *loan.LoanRecord, *ops.Context) error,
) error {
	spanCtx, span := p.tracer.Start(ctx, "pipeline."+name,
		trace.WithAttributes(attribute.String("loan.id", work.LoanID)))
	defer span.End()

	start := time.Now()
	err := fn(spanCtx, work, runCtx)
	if p.metrics != nil {
		p.metrics.ObserveStage(name, time.Since(start).Seconds())
	}
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("stage %s: %w", name, err)
	}
	return nil
}

// validateDocumentDates enforces the validator's contract: a malformed
// document date is an input error for the whole record, rejected before any
// stage runs.
func (p *Pipeline) validateDocumentDates(record *loan.LoanRecord) error {
	for name, doc := range record.Documents {
		if !documents.ValidDocumentDate(doc) {
			return dErrors.Newf(dErrors.CodeInvalidInput,
				"document %q has malformed document_date %q", name, doc.DocumentDate)
		}
	}
	return nil
}

// --- stage 1: document tracking -----------------------------------------

func (p *Pipeline) runDocumentTracking(ctx context.Context, work *loan.LoanRecord, runCtx *ops.Context) error {
	// A loan entering the pipeline gets a pending entry per required
	// document; entries are never deleted afterwards.
	for _, name := range p.auditor.Required(work.LoanType) {
		if _, ok := work.Documents[name]; !ok {
			work.Documents[name] = &loan.Document{Name: name, Status: loan.DocumentPending}
		}
	}

	docAudit := p.auditor.Audit(work)
	runCtx.Audit = &docAudit

	for _, name := range docAudit.Missing {
		p.openException(ctx, work, loan.CategoryDocument, "missing",
			fmt.Sprintf("missing document: %s", name))
	}
	for _, name := range docAudit.Expired {
		p.openException(ctx, work, loan.CategoryDocument, "expired",
			fmt.Sprintf("expired document: %s", name))
	}
	return nil
}

// --- stage 2: verification -----------------------------------------------

func (p *Pipeline) runVerification(ctx context.Context, work *loan.LoanRecord, runCtx *ops.Context) error {
	for _, name := range runCtx.Audit.PendingVerification {
		doc := work.Documents[name]
		result, err := p.validator.Validate(doc)
		if err != nil {
			return err
		}
		runCtx.Verifications = append(runCtx.Verifications, result)

		if result.Passed {
			doc.Status = loan.DocumentVerified
			doc.VerifiedBy = p.verifier
			doc.VerifiedDate = result.VerificationDate
			continue
		}
		p.openException(ctx, work, loan.CategoryVerification, "unable_to_verify",
			fmt.Sprintf("unable to verify document: %s (failed: %s)",
				name, strings.Join(result.FailedChecks, ", ")))
	}
	return nil
}

// --- stage 3: compliance review ------------------------------------------

func (p *Pipeline) runCompliance(ctx context.Context, work *loan.LoanRecord, runCtx *ops.Context) error {
	report := p.engine.Evaluate(work)
	runCtx.Compliance = &report

	// Each run writes fresh check values; prior entries are replaced, never
	// patched.
	for name, result := range report.Results {
		passed := result.Passed
		work.ComplianceChecks[name] = &loan.ComplianceCheck{
			CheckName:   name,
			Passed:      &passed,
			CheckedDate: result.CheckedDate,
			CheckedBy:   p.verifier,
			Findings:    result.Findings,
		}
	}

	for _, name := range report.FailedChecks {
		p.openException(ctx, work, loan.CategoryCompliance, "failed_check",
			fmt.Sprintf("failed check %s: %s", name, report.Results[name].Findings))
	}
	return nil
}

// --- stage 4: exception handling -----------------------------------------

func (p *Pipeline) runExceptionHandling(ctx context.Context, work *loan.LoanRecord, runCtx *ops.Context) error {
	for _, exc := range work.Exceptions {
		if exc.Resolved() {
			continue
		}
		issue := exceptions.InferIssue(exc)

		// Document gaps that have since been filled are closed out here;
		// resolution annotates the entry, it never removes it.
		if exc.Category == loan.CategoryDocument && p.documentGapCleared(exc, issue, runCtx.Audit) {
			exc.ResolvedDate = p.now().Format(time.RFC3339)
			exc.Resolution = "Document received; no longer outstanding"
			p.emit(ctx, audit.Event{
				Timestamp: p.now(),
				LoanID:    work.LoanID,
				Action:    audit.ActionExceptionResolved,
				Subject:   exc.ID,
				Detail:    exc.Resolution,
			})
			continue
		}

		analysis := p.resolver.Analyze(exc.Category, issue)
		analysis.ExceptionID = exc.ID
		runCtx.Exceptions = append(runCtx.Exceptions, analysis)

		if exc.AssignedTo == "" {
			if analysis.EscalationRequired {
				exc.AssignedTo = "supervisor"
			} else {
				exc.AssignedTo = "loan-ops"
			}
		}
	}
	return nil
}

// documentGapCleared reports whether the document named in a missing/expired
// exception no longer appears in the corresponding audit list.
func (p *Pipeline) documentGapCleared(exc *loan.Exception, issue string, docAudit *ops.DocumentAudit) bool {
	_, name, found := strings.Cut(exc.Description, ": ")
	if !found {
		return false
	}
	switch issue {
	case "missing":
		return !contains(docAudit.Missing, name)
	case "expired":
		return !contains(docAudit.Expired, name)
	}
	return false
}

// --- stage 5: funding preparation ----------------------------------------

func (p *Pipeline) runFunding(ctx context.Context, work *loan.LoanRecord, runCtx *ops.Context) error {
	// Funding fields may only exist on a loan that will reach ready_to_fund
	// in this run.
	if status := p.finalStatus(work, runCtx); status != loan.StatusReadyToFund {
		runCtx.FundingNote = fmt.Sprintf("funding preparation deferred: loan is at %s", status)
		return nil
	}

	plan := p.calculator.Calculate(work.LoanAmount, work.InterestRate, work.LoanType, nil)
	runCtx.Funding = &plan

	net := plan.NetDisbursement
	work.FundingAmount = &net
	work.FundingMethod = plan.FundingMethod
	if work.TargetFundingDate == "" {
		work.TargetFundingDate = plan.EstimatedFundingDate
	}

	p.emit(ctx, audit.Event{
		Timestamp: p.now(),
		LoanID:    work.LoanID,
		Action:    audit.ActionFundingPrepared,
		Detail:    fmt.Sprintf("net disbursement %.2f via %s", plan.NetDisbursement, plan.FundingMethod),
	})
	return nil
}

// --- stage 6: communication ----------------------------------------------

func (p *Pipeline) runCommunication(ctx context.Context, work *loan.LoanRecord, runCtx *ops.Context) error {
	status := p.finalStatus(work, runCtx)

	type draft struct {
		commType string
		tc       comms.TemplateContext
	}
	var needed []draft

	if len(runCtx.Audit.Missing) > 0 || len(runCtx.Audit.Expired) > 0 {
		needed = append(needed, draft{comms.TypeDocumentRequest, comms.TemplateContext{
			LoanID:           work.LoanID,
			MissingDocuments: append(append([]string(nil), runCtx.Audit.Missing...), runCtx.Audit.Expired...),
		}})
	}
	if open := work.OpenExceptions(); len(open) > 0 {
		tc := comms.TemplateContext{
			LoanID:           work.LoanID,
			IssueDescription: open[0].Description,
		}
		for _, analysis := range runCtx.Exceptions {
			if analysis.ExceptionID == open[0].ID {
				tc.ActionRequired = analysis.RecommendedAction
				break
			}
		}
		needed = append(needed, draft{comms.TypeExceptionNotice, tc})
	}
	if runCtx.Funding != nil {
		needed = append(needed, draft{comms.TypeFundingNotice, comms.TemplateContext{
			LoanID:          work.LoanID,
			LoanAmount:      runCtx.Funding.LoanAmount,
			NetDisbursement: runCtx.Funding.NetDisbursement,
			FundingMethod:   runCtx.Funding.FundingMethod,
			FundingDate:     runCtx.Funding.EstimatedFundingDate,
			AccountLast4:    accountLast4(work.DisbursementAccount),
		}})
	}
	needed = append(needed, draft{comms.TypeStatusUpdate, comms.TemplateContext{
		LoanID:      work.LoanID,
		Status:      string(status),
		NextSteps:   nextSteps(status),
		FundingDate: work.TargetFundingDate,
	}})

	for _, d := range needed {
		message := p.composer.Compose(ctx, d.commType, work.BorrowerName, d.tc)

		allowed, err := p.throttle.Allow(ctx, work.LoanID, d.commType)
		if err != nil {
			// Fail open: a broken throttle must not silence the borrower.
			if p.logger != nil {
				p.logger.WarnContext(ctx, "communication throttle unavailable",
					"loan_id", work.LoanID, "error", err)
			}
			allowed = true
		}
		message.Delivered = allowed

		work.Communications = append(work.Communications, message)
		runCtx.Drafts = append(runCtx.Drafts, message)

		p.emit(ctx, audit.Event{
			Timestamp: p.now(),
			LoanID:    work.LoanID,
			Action:    audit.ActionCommunicationDrafted,
			Subject:   message.Type,
			Detail:    message.Subject,
		})
	}
	return nil
}

// --- lifecycle -----------------------------------------------------------

// finalStatus computes the state for the furthest stage the record has
// successfully cleared. A critical open exception suspends the loan
// regardless of stage completion.
func (p *Pipeline) finalStatus(work *loan.LoanRecord, runCtx *ops.Context) loan.FundingStatus {
	switch {
	case work.HasCriticalException():
		return loan.StatusSuspended
	case runCtx.Audit == nil || !runCtx.Audit.CollectionComplete:
		return loan.StatusDocumentCollection
	case p.verificationOutstanding(work):
		return loan.StatusVerification
	case runCtx.Compliance == nil || !runCtx.Compliance.CompliancePassed:
		return loan.StatusComplianceReview
	case work.HasBlockingException():
		return loan.StatusExceptionHandling
	default:
		return loan.StatusReadyToFund
	}
}

// verificationOutstanding reports whether any required document is still
// awaiting a successful verification.
func (p *Pipeline) verificationOutstanding(work *loan.LoanRecord) bool {
	for _, name := range p.auditor.Required(work.LoanType) {
		if doc, ok := work.Documents[name]; ok && doc.Status == loan.DocumentReceived {
			return true
		}
	}
	for _, exc := range work.Exceptions {
		if !exc.Resolved() && exc.Category == loan.CategoryVerification {
			return true
		}
	}
	return false
}

// MarkFunded records actual disbursement, the only transition into the
// terminal funded state. It is driven externally (the money moved), not by a
// pipeline run.
func (p *Pipeline) MarkFunded(ctx context.Context, record *loan.LoanRecord, fundingDate, account string) error {
	if record.FundingStatus != loan.StatusReadyToFund {
		return dErrors.Newf(dErrors.CodeConflict,
			"loan %s is %s, not ready_to_fund", record.LoanID, record.FundingStatus)
	}
	record.ActualFundingDate = fundingDate
	if account != "" {
		record.DisbursementAccount = account
	}
	record.FundingStatus = loan.StatusFunded
	p.emit(ctx, audit.Event{
		Timestamp: p.now(),
		LoanID:    record.LoanID,
		Action:    audit.ActionStatusChanged,
		From:      string(loan.StatusReadyToFund),
		To:        string(loan.StatusFunded),
		Detail:    "disbursement executed " + fundingDate,
	})
	return nil
}

// openException appends an unresolved exception unless an open entry with the
// same category and description already exists. Severity comes from the
// resolver's classification of the issue tag.
func (p *Pipeline) openException(ctx context.Context, work *loan.LoanRecord, category loan.ExceptionCategory, issue, description string) {
	if work.HasOpenException(category, description) {
		return
	}
	analysis := p.resolver.Analyze(category, issue)
	exc := &loan.Exception{
		ID:          "EXC-" + strings.ToUpper(uuid.NewString()[:8]),
		Category:    category,
		Description: description,
		Severity:    analysis.Severity,
		CreatedDate: p.now().Format(time.RFC3339),
	}
	work.Exceptions = append(work.Exceptions, exc)

	if p.metrics != nil {
		p.metrics.IncExceptionsOpened(string(exc.Severity))
	}
	p.emit(ctx, audit.Event{
		Timestamp: p.now(),
		LoanID:    work.LoanID,
		Action:    audit.ActionExceptionOpened,
		Subject:   exc.ID,
		Severity:  string(exc.Severity),
		Detail:    description,
	})
}

// emit publishes an audit event. Audit is fail-open: failures are logged and
// never fail the pipeline.
func (p *Pipeline) emit(ctx context.Context, event audit.Event) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, event); err != nil && p.logger != nil {
		p.logger.WarnContext(ctx, "audit publish failed",
			"loan_id", event.LoanID,
			"action", event.Action,
			"error", err,
		)
	}
}

// nextSteps is the borrower-facing line in status updates for each state.
func nextSteps(status loan.FundingStatus) string {
	switch status {
	case loan.StatusDocumentCollection:
		return "Please submit the outstanding documents so your loan can proceed."
	case loan.StatusVerification:
		return "Your documents are being verified; no action is needed at this time."
	case loan.StatusComplianceReview:
		return "Your loan is in compliance review; we will contact you if anything is needed."
	case loan.StatusExceptionHandling:
		return "Our operations team is resolving open items on your loan."
	case loan.StatusReadyToFund:
		return "Your loan is cleared for funding; disbursement details will follow."
	case loan.StatusFunded:
		return "Your loan has been funded. Thank you for your business."
	case loan.StatusSuspended:
		return "Your loan is under review; a specialist will contact you shortly."
	default:
		return "We will update you as your loan progresses."
	}
}

func accountLast4(account string) string {
	if len(account) < 4 {
		return ""
	}
	return account[len(account)-4:]
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
