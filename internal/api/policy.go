package api

import (
	"log/slog"
	"net/http"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// PolicyRequest replaces the recommendation bands.
type PolicyRequest struct {
	Bands []domain.PolicyBand `json:"bands"`
}

// GetPolicy handles GET /policy.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	if h.policy == nil {
		writeError(w, http.StatusServiceUnavailable, "policy engine not available")
		return
	}

	bands := h.policy.Bands()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"bands": bands,
		"count": len(bands),
	})
}

// ReplacePolicy handles POST /policy. The new bands are compiled before
// they replace the running ones; a rejected policy leaves the old one active.
func (h *Handler) ReplacePolicy(w http.ResponseWriter, r *http.Request) {
	if h.policy == nil {
		writeError(w, http.StatusServiceUnavailable, "policy engine not available")
		return
	}

	var req PolicyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	if err := h.policy.Reload(req.Bands); err != nil {
		writeError(w, http.StatusBadRequest, "invalid policy: "+err.Error())
		return
	}

	slog.Info("recommendation policy reloaded",
		"tenant_id", GetTenantID(r.Context()),
		"bands", len(req.Bands),
	)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "policy reloaded",
		"count":   len(req.Bands),
	})
}
