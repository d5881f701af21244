package httptransport

import (
	"net/http"

	"loanops/internal/auth"
	"loanops/internal/platform/middleware"
	dErrors "loanops/pkg/domain-errors"
	"loanops/pkg/platform/httputil"
)

type tokenRequest struct {
	OperatorID string `json:"operator_id"`
	Secret     string `json:"secret"`
}

func (r *tokenRequest) Validate() error {
	if r.OperatorID == "" || r.Secret == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "operator_id and secret are required")
	}
	return nil
}

// handleToken exchanges operator credentials for a bearer token.
func (h *Handler) handleToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[tokenRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if err := auth.VerifySecret(req.Secret, h.secretHash); err != nil {
		h.logger.WarnContext(ctx, "token request rejected",
			"request_id", requestID,
			"operator_id", req.OperatorID,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials"))
		return
	}
	token, err := h.tokens.Issue(req.OperatorID, "operator")
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "could not issue token"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"access_token": token,
		"token_type":   "Bearer",
	})
}
