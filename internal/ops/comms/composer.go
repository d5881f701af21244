// Package comms drafts borrower communications. The deterministic templates
// are the contract; an optional prose generator may restyle the body, but the
// subject line and required facts must survive, and any generator failure or
// timeout falls back to the template.
package comms

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	loan "loanops/internal/loan/models"
	"loanops/pkg/platform/circuit"
)

// Communication types.
const (
	TypeDocumentRequest = "document_request"
	TypeStatusUpdate    = "status_update"
	TypeFundingNotice   = "funding_notice"
	TypeExceptionNotice = "exception_notice"
)

// probeInterval is how many drafts are skipped between generator probes
// while the breaker is open.
const probeInterval = 10

// Generator is the external prose collaborator. Implementations must honor
// ctx cancellation; the composer bounds each call with a timeout.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// TemplateContext carries the type-specific facts a template needs.
type TemplateContext struct {
	LoanID           string
	Status           string
	NextSteps        string
	FundingDate      string
	MissingDocuments []string
	LoanAmount       float64
	NetDisbursement  float64
	FundingMethod    string
	AccountLast4     string
	IssueDescription string
	ActionRequired   string
	ResponseDeadline string
}

// Composer selects and fills message templates.
type Composer struct {
	generator Generator
	timeout   time.Duration
	breaker   *circuit.Breaker
	skipped   atomic.Int64
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures the Composer.
type Option func(*Composer)

// WithGenerator attaches the prose collaborator.
func WithGenerator(g Generator, timeout time.Duration) Option {
	return func(c *Composer) {
		c.generator = g
		c.timeout = timeout
	}
}

// WithLogger sets the logger used when the generator fails over.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Composer) { c.logger = logger }
}

// WithClock pins drafted_at timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Composer) { c.now = now }
}

func New(opts ...Option) *Composer {
	c := &Composer{
		timeout: 10 * time.Second,
		breaker: circuit.New("comms-generator", circuit.WithFailureThreshold(3)),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compose drafts one communication. Unknown types fall back to the status
// update template. Priority is high for document requests and exception
// notices.
func (c *Composer) Compose(ctx context.Context, commType, recipient string, tc TemplateContext) *loan.Communication {
	body := c.body(commType, recipient, tc)
	body = c.polish(ctx, commType, body)

	priority := "normal"
	if commType == TypeDocumentRequest || commType == TypeExceptionNotice {
		priority = "high"
	}

	return &loan.Communication{
		ID:        uuid.NewString(),
		Type:      commType,
		Recipient: recipient,
		Subject:   c.subject(commType, tc),
		Body:      body,
		Priority:  priority,
		DraftedAt: c.now().Format(time.RFC3339),
	}
}

// polish hands the deterministic body to the prose generator when one is
// configured. Timeouts and errors trip a circuit breaker and the template
// text stands; while the breaker is open only every probeInterval-th draft
// reaches the generator so a recovered backend closes it again.
func (c *Composer) polish(ctx context.Context, commType, body string) string {
	if c.generator == nil {
		return body
	}
	if c.breaker.IsOpen() && c.skipped.Add(1)%probeInterval != 0 {
		return body
	}
	genCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := fmt.Sprintf("Rewrite the following %s for a borrower, keeping every fact and figure intact:\n\n%s", commType, body)
	polished, err := c.generator.Generate(genCtx, prompt)
	if err != nil {
		_, change := c.breaker.RecordFailure()
		if c.logger != nil {
			c.logger.WarnContext(ctx, "prose generator unavailable, using template body",
				"communication_type", commType,
				"breaker_opened", change.Opened,
				"error", err,
			)
		}
		return body
	}
	if usePrimary, _ := c.breaker.RecordSuccess(); !usePrimary {
		return body
	}
	if strings.TrimSpace(polished) == "" {
		return body
	}
	return polished
}

func (c *Composer) subject(commType string, tc TemplateContext) string {
	switch commType {
	case TypeDocumentRequest:
		return fmt.Sprintf("Action Required: Documents Needed for Loan #%s", tc.LoanID)
	case TypeStatusUpdate:
		return fmt.Sprintf("Loan Status Update - #%s", tc.LoanID)
	case TypeFundingNotice:
		return "Congratulations! Your Loan is Ready for Funding"
	case TypeExceptionNotice:
		return "Action Required: Issue with Your Loan Application"
	default:
		return "Loan Update"
	}
}

func (c *Composer) body(commType, recipient string, tc TemplateContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", recipient)

	switch commType {
	case TypeDocumentRequest:
		b.WriteString("We are processing your loan application and need the following document(s) to proceed:\n\n")
		docs := tc.MissingDocuments
		if len(docs) == 0 {
			docs = []string{"Required document"}
		}
		for _, doc := range docs {
			fmt.Fprintf(&b, "- %s\n", doc)
		}
		b.WriteString("\nPlease submit these documents at your earliest convenience. You can:\n")
		b.WriteString("- Upload securely through our portal\n")
		b.WriteString("- Email to loans@example.com\n")
		b.WriteString("- Fax to (555) 123-4567\n\n")
		b.WriteString("If you have any questions, please contact us at (555) 987-6543.\n\n")
		b.WriteString("Thank you for your prompt attention to this matter.\n")

	case TypeFundingNotice:
		fmt.Fprintf(&b, "Great news! Your loan (#%s) has been approved for funding.\n\n", orDefault(tc.LoanID, "N/A"))
		b.WriteString("Funding Details:\n")
		fmt.Fprintf(&b, "- Loan Amount: $%s\n", formatAmount(tc.LoanAmount))
		fmt.Fprintf(&b, "- Net Disbursement: $%s\n", formatAmount(tc.NetDisbursement))
		fmt.Fprintf(&b, "- Funding Method: %s\n", orDefault(tc.FundingMethod, "Wire Transfer"))
		fmt.Fprintf(&b, "- Expected Funding Date: %s\n\n", orDefault(tc.FundingDate, "Within 2 business days"))
		b.WriteString("Please ensure your receiving account information is accurate. Funds will be disbursed to:\n")
		fmt.Fprintf(&b, "Account ending in: %s\n\n", orDefault(tc.AccountLast4, "****"))
		b.WriteString("Congratulations on your new loan!\n")

	case TypeExceptionNotice:
		b.WriteString("We've encountered an issue while processing your loan application that requires your attention:\n\n")
		fmt.Fprintf(&b, "Issue: %s\n\n", orDefault(tc.IssueDescription, "Additional information needed"))
		fmt.Fprintf(&b, "Action Required: %s\n\n", orDefault(tc.ActionRequired, "Please contact us"))
		fmt.Fprintf(&b, "This may affect your expected funding timeline. Please respond within %s to avoid delays.\n\n",
			orDefault(tc.ResponseDeadline, "48 hours"))
		b.WriteString("Contact us at (555) 987-6543 or reply to this message.\n\n")
		b.WriteString("Thank you for your cooperation.\n")

	default: // status_update and unknown types
		fmt.Fprintf(&b, "This is an update on your loan application (Loan #%s):\n\n", orDefault(tc.LoanID, "N/A"))
		fmt.Fprintf(&b, "Current Status: %s\n", orDefault(tc.Status, "In Progress"))
		if tc.NextSteps != "" {
			fmt.Fprintf(&b, "Next Steps: %s\n", tc.NextSteps)
		}
		if tc.FundingDate != "" {
			fmt.Fprintf(&b, "Estimated Funding Date: %s\n", tc.FundingDate)
		}
		b.WriteString("\nWe will keep you informed of any updates. If you have questions, please don't hesitate to reach out.\n")
	}

	b.WriteString("\nBest regards,\nLoan Operations Team")
	return b.String()
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// formatAmount renders 1234567.8 as 1,234,567.80.
func formatAmount(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	dot := strings.Index(s, ".")
	intPart, frac := s[:dot], s[dot:]
	neg := strings.HasPrefix(intPart, "-")
	if neg {
		intPart = intPart[1:]
	}
	var groups []string
	for len(intPart) > 3 {
		groups = append([]string{intPart[len(intPart)-3:]}, groups...)
		intPart = intPart[:len(intPart)-3]
	}
	groups = append([]string{intPart}, groups...)
	out := strings.Join(groups, ",") + frac
	if neg {
		out = "-" + out
	}
	return out
}
