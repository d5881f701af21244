package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// TokenValidator validates operator access tokens.
type TokenValidator interface {
	ValidateToken(tokenString string) (*OperatorClaims, error)
}

// OperatorClaims are the claims the API trusts after validation.
type OperatorClaims struct {
	OperatorID string
	Role       string
}

type contextKeyOperatorID struct{}
type contextKeyOperatorRole struct{}

var (
	ContextKeyOperatorID   = contextKeyOperatorID{}
	ContextKeyOperatorRole = contextKeyOperatorRole{}
)

// GetOperatorID retrieves the authenticated operator from the context.
func GetOperatorID(ctx context.Context) string {
	id, ok := ctx.Value(ContextKeyOperatorID).(string)
	if !ok {
		return ""
	}
	return id
}

// GetOperatorRole retrieves the operator's role from the context.
func GetOperatorRole(ctx context.Context) string {
	role, ok := ctx.Value(ContextKeyOperatorRole).(string)
	if !ok {
		return ""
	}
	return role
}

// RequireAuth rejects requests without a valid bearer token and stores the
// operator identity on the request context.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := GetRequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				writeUnauthorized(w, "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				writeUnauthorized(w, "Invalid or expired token")
				return
			}

			ctx = context.WithValue(ctx, ContextKeyOperatorID, claims.OperatorID)
			ctx = context.WithValue(ctx, ContextKeyOperatorRole, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}
