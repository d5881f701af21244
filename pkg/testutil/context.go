package testutil

import (
	"context"
	"net/http"

	"loanops/internal/platform/middleware"
)

// WithOperator adds an authenticated operator to the request context,
// simulating what the auth middleware does for a valid bearer token.
func WithOperator(req *http.Request, operatorID, role string) *http.Request {
	ctx := req.Context()
	if operatorID != "" {
		ctx = context.WithValue(ctx, middleware.ContextKeyOperatorID, operatorID)
	}
	if role != "" {
		ctx = context.WithValue(ctx, middleware.ContextKeyOperatorRole, role)
	}
	return req.WithContext(ctx)
}
