// Package securitylog exposes the recent security event feed.
package securitylog

import (
	"net/http"
	"time"

	"github.com/codesociety/authcore/internal/http/middleware"
	"github.com/codesociety/authcore/internal/httputil"
	"github.com/codesociety/authcore/pkg/auth"
)

// Handler handles security event endpoints.
type Handler struct {
	audit *auth.SecurityAuditLog
}

// NewHandler creates a new security log handler.
func NewHandler(audit *auth.SecurityAuditLog) *Handler {
	return &Handler{audit: audit}
}

// EventResponse is one security event.
type EventResponse struct {
	ID        string         `json:"id"`
	Timestamp string         `json:"timestamp"`
	Kind      string         `json:"kind"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Recent lists the buffered security events for the current account, newest
// first.
// GET /v1/me/security/events
// Requires authentication
func (h *Handler) Recent(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	events := h.audit.Recent()
	out := make([]EventResponse, 0, len(events))
	for i := len(events) - 1; i >= 0; i-- {
		event := events[i]
		if event.AccountID == nil || *event.AccountID != accountID {
			continue
		}
		out = append(out, EventResponse{
			ID:        event.ID.String(),
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Kind:      event.Kind,
			Metadata:  event.Metadata,
		})
	}

	httputil.JSON(w, http.StatusOK, map[string]any{"events": out})
}
