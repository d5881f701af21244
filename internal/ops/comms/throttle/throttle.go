// Package throttle rate-limits borrower communications so repeated pipeline
// runs do not resend the same message type within the cooldown window.
// Throttled drafts are still recorded on the loan; they are just not marked
// deliverable.
package throttle

import "context"

// Throttle decides whether a communication of the given type may be sent to
// the loan's borrower now. Allow returns true and records the send when the
// cooldown window is clear.
type Throttle interface {
	Allow(ctx context.Context, loanID, commType string) (bool, error)
}

// Unlimited never throttles. Used when no throttle backend is configured.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, string, string) (bool, error) { return true, nil }
