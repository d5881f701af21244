// Package httptransport is the thin HTTP layer over the loan operations
// pipeline. Handlers delegate to the pipeline, store, and report packages;
// no business logic lives here.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"loanops/internal/auth"
	"loanops/internal/batch"
	"loanops/internal/loan/store"
	"loanops/internal/ops/pipeline"
	"loanops/internal/platform/middleware"
)

// Handler serves the loan operations API.
type Handler struct {
	pipeline   *pipeline.Pipeline
	store      store.LoanStore
	batch      *batch.Runner
	tokens     *auth.TokenService
	secretHash string
	logger     *slog.Logger
}

func NewHandler(
	p *pipeline.Pipeline,
	s store.LoanStore,
	b *batch.Runner,
	tokens *auth.TokenService,
	secretHash string,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		pipeline:   p,
		store:      s,
		batch:      b,
		tokens:     tokens,
		secretHash: secretHash,
		logger:     logger,
	}
}

// NewRouter wires all endpoints. Everything under /loans requires an operator
// token; health and metrics are open for the platform.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Post("/auth/token", h.handleToken)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(tokenValidator{h.tokens}, h.logger))
		r.Get("/loans", h.handleListLoans)
		r.Post("/loans", h.handleCreateLoan)
		r.Get("/loans/{loanID}", h.handleGetLoan)
		r.Post("/loans/{loanID}/run", h.handleRunLoan)
		r.Get("/loans/{loanID}/report", h.handleLoanReport)
		r.Post("/loans/{loanID}/fund", h.handleFundLoan)
		r.Post("/loans/run", h.handleRunBatch)
	})
	return r
}

// tokenValidator adapts auth.TokenService to the middleware contract.
type tokenValidator struct {
	tokens *auth.TokenService
}

func (v tokenValidator) ValidateToken(tokenString string) (*middleware.OperatorClaims, error) {
	claims, err := v.tokens.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	return &middleware.OperatorClaims{
		OperatorID: claims.OperatorID,
		Role:       claims.Role,
	}, nil
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
