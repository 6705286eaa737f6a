// Package strength exposes the password strength evaluation endpoint.
package strength

import (
	"encoding/json"
	"net/http"

	"github.com/codesociety/authcore/internal/httputil"
	"github.com/codesociety/authcore/pkg/auth"
)

// Handler handles password strength endpoints.
type Handler struct {
	evaluator *auth.StrengthEvaluator
}

// NewHandler creates a new strength handler.
func NewHandler(evaluator *auth.StrengthEvaluator) *Handler {
	return &Handler{evaluator: evaluator}
}

// EvaluateRequest carries the candidate password.
type EvaluateRequest struct {
	Password string `json:"password"`
}

// EvaluateResponse is the strength report.
type EvaluateResponse struct {
	Score      int      `json:"score"`
	Valid      bool     `json:"valid"`
	Violations []string `json:"violations"`
}

// Evaluate scores a candidate password and lists policy violations.
// POST /v1/password/strength
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result := h.evaluator.Evaluate(req.Password)
	violations := result.Violations
	if violations == nil {
		violations = []string{}
	}

	httputil.JSON(w, http.StatusOK, EvaluateResponse{
		Score:      result.Score,
		Valid:      result.Valid,
		Violations: violations,
	})
}
