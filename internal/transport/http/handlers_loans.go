package httptransport

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	loan "loanops/internal/loan/models"
	"loanops/internal/platform/middleware"
	"loanops/internal/report"
	dErrors "loanops/pkg/domain-errors"
	"loanops/pkg/platform/httputil"
	"loanops/pkg/platform/sentinel"
)

// loanSummary is the list-view projection of a record.
type loanSummary struct {
	LoanID         string             `json:"loan_id"`
	BorrowerName   string             `json:"borrower_name"`
	LoanType       string             `json:"loan_type"`
	LoanAmount     float64            `json:"loan_amount"`
	FundingStatus  loan.FundingStatus `json:"funding_status"`
	OpenExceptions int                `json:"open_exceptions"`
}

func (h *Handler) handleListLoans(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.List(r.Context())
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "could not list loans"))
		return
	}
	summaries := make([]loanSummary, 0, len(records))
	for _, record := range records {
		summaries = append(summaries, loanSummary{
			LoanID:         record.LoanID,
			BorrowerName:   record.BorrowerName,
			LoanType:       record.LoanType,
			LoanAmount:     record.LoanAmount,
			FundingStatus:  record.FundingStatus,
			OpenExceptions: len(record.OpenExceptions()),
		})
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"loans": summaries})
}

func (h *Handler) handleGetLoan(w http.ResponseWriter, r *http.Request) {
	record, err := h.loadLoan(w, r)
	if err != nil {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

func (h *Handler) handleCreateLoan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	record, ok := httputil.DecodeAndPrepare[loan.LoanRecord](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	record.Normalize()
	if err := record.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if _, err := h.store.Get(ctx, record.LoanID); err == nil {
		httputil.WriteError(w, dErrors.Newf(dErrors.CodeConflict, "loan %s already exists", record.LoanID))
		return
	}
	if err := h.store.Put(ctx, &record); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "could not store loan"))
		return
	}
	h.logger.InfoContext(ctx, "loan created",
		"request_id", requestID,
		"loan_id", record.LoanID,
		"operator", middleware.GetOperatorID(ctx),
	)
	httputil.WriteJSON(w, http.StatusCreated, record)
}

func (h *Handler) handleRunLoan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	start := time.Now()

	record, err := h.loadLoan(w, r)
	if err != nil {
		return
	}

	result, err := h.pipeline.Run(ctx, record)
	if err != nil {
		h.logger.ErrorContext(ctx, "pipeline run failed",
			"request_id", requestID,
			"loan_id", record.LoanID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	if err := h.store.Put(ctx, record); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "could not persist loan"))
		return
	}

	h.logger.InfoContext(ctx, "pipeline run complete",
		"request_id", requestID,
		"loan_id", record.LoanID,
		"final_status", result.FinalStatus,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"loan_id":         result.LoanID,
		"previous_status": result.PreviousStatus,
		"final_status":    result.FinalStatus,
		"context":         result.Context,
	})
}

func (h *Handler) handleLoanReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	record, err := h.loadLoan(w, r)
	if err != nil {
		return
	}
	// Reports are rendered from a fresh run over a copy; the stored record
	// is not advanced by viewing a report, and the run publishes no audit
	// events and consumes no communication cooldowns.
	working := record.Clone()
	result, err := h.pipeline.Preview().Run(ctx, working)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(report.Render(working, result)))
}

type fundRequest struct {
	FundingDate         string `json:"funding_date"`
	DisbursementAccount string `json:"disbursement_account"`
}

func (h *Handler) handleFundLoan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	record, err := h.loadLoan(w, r)
	if err != nil {
		return
	}
	req, ok := httputil.DecodeAndPrepare[fundRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if req.FundingDate == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "funding_date is required"))
		return
	}
	if err := h.pipeline.MarkFunded(ctx, record, req.FundingDate, req.DisbursementAccount); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.store.Put(ctx, record); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "could not persist loan"))
		return
	}
	h.logger.InfoContext(ctx, "loan funded",
		"request_id", requestID,
		"loan_id", record.LoanID,
		"operator", middleware.GetOperatorID(ctx),
	)
	httputil.WriteJSON(w, http.StatusOK, record)
}

type batchRequest struct {
	LoanIDs []string `json:"loan_ids"`
}

func (h *Handler) handleRunBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[batchRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	summary, err := h.batch.Run(ctx, req.LoanIDs)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "batch run failed"))
		return
	}

	type itemView struct {
		LoanID      string             `json:"loan_id"`
		FinalStatus loan.FundingStatus `json:"final_status,omitempty"`
		Error       string             `json:"error,omitempty"`
	}
	items := make([]itemView, 0, len(summary.Items))
	for _, item := range summary.Items {
		view := itemView{LoanID: item.LoanID}
		if item.Err != nil {
			view.Error = item.Err.Error()
		} else {
			view.FinalStatus = item.Result.FinalStatus
		}
		items = append(items, view)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"total":     summary.Total,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"items":     items,
	})
}

// loadLoan fetches the record named in the URL, writing the error response
// itself on failure.
func (h *Handler) loadLoan(w http.ResponseWriter, r *http.Request) (*loan.LoanRecord, error) {
	loanID := chi.URLParam(r, "loanID")
	record, err := h.store.Get(r.Context(), loanID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			err = dErrors.Newf(dErrors.CodeNotFound, "loan %s not found", loanID)
		} else {
			err = dErrors.Wrap(err, dErrors.CodeInternal, "could not load loan")
		}
		httputil.WriteError(w, err)
		return nil, err
	}
	return record, nil
}
