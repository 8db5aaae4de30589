package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

// ModelRequest is the request body for creating or replacing a scoring model.
type ModelRequest struct {
	ID          string            `json:"id,omitempty"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Active      *bool             `json:"active,omitempty"`
	Variables   []domain.Variable `json:"variables"`
}

// ModelResponse carries a saved model and the configuration problems the
// scoring engine would report for it. Models with warnings are stored; every
// simulation against them answers CONFIG_ERROR until they are fixed.
type ModelResponse struct {
	Model    *domain.ScoringModel `json:"model"`
	Warnings []string             `json:"warnings"`
}

// check validates the request shape and normalizes directions.
func (req *ModelRequest) check() error {
	if req.Name == "" || len(req.Variables) == 0 {
		return fmt.Errorf("name and at least one variable are required")
	}

	seen := make(map[string]bool, len(req.Variables))
	for i := range req.Variables {
		v := &req.Variables[i]
		if v.ID == "" || v.Name == "" {
			return fmt.Errorf("variable %d: id and name are required", i)
		}
		if seen[v.ID] {
			return fmt.Errorf("duplicate variable id %q", v.ID)
		}
		seen[v.ID] = true
		v.FavorableDirection = domain.ParseDirection(string(v.FavorableDirection))
	}
	return nil
}

func modelWarnings(vars []domain.Variable) []string {
	warnings := []string{}
	if res := scoring.ValidateVariables(vars); res != nil {
		warnings = append(warnings, res.Error)
	}
	return warnings
}

// ListModels handles GET /models.
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.requireRepo(w) {
		return
	}

	models, err := h.repo.ListModels(ctx, GetTenantID(ctx))
	if err != nil {
		writeRepoError(w, err, "")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"models": models,
		"count":  len(models),
	})
}

// GetModel handles GET /models/{id}.
func (h *Handler) GetModel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.requireRepo(w) {
		return
	}

	model, err := h.catalog.Model(ctx, GetTenantID(ctx), chi.URLParam(r, "id"))
	if err != nil {
		writeRepoError(w, err, "model not found")
		return
	}

	writeJSON(w, http.StatusOK, model)
}

// CreateModel handles POST /models.
func (h *Handler) CreateModel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req ModelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if err := req.check(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !h.requireRepo(w) {
		return
	}

	if req.ID == "" {
		req.ID = uuid.New().String()
	} else if _, err := h.repo.GetModel(ctx, tenantID, req.ID); err == nil {
		writeError(w, http.StatusConflict, "model already exists")
		return
	}

	model := &domain.ScoringModel{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Active:      req.Active == nil || *req.Active,
		Variables:   req.Variables,
	}

	if err := h.repo.SaveModel(ctx, tenantID, model); err != nil {
		writeRepoError(w, err, "")
		return
	}

	warnings := modelWarnings(model.Variables)
	slog.Info("model created",
		"tenant_id", tenantID,
		"model_id", model.ID,
		"variables", len(model.Variables),
		"warnings", len(warnings),
	)
	writeJSON(w, http.StatusCreated, ModelResponse{Model: model, Warnings: warnings})
}

// UpdateModel handles PUT /models/{id}, replacing the variable set.
func (h *Handler) UpdateModel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	modelID := chi.URLParam(r, "id")

	var req ModelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if err := req.check(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ID != "" && req.ID != modelID {
		writeError(w, http.StatusBadRequest, "model id in body does not match URL")
		return
	}
	if !h.requireRepo(w) {
		return
	}

	model, err := h.repo.GetModel(ctx, tenantID, modelID)
	if err != nil {
		writeRepoError(w, err, "model not found")
		return
	}

	model.Name = req.Name
	model.Description = req.Description
	if req.Active != nil {
		model.Active = *req.Active
	}
	model.Variables = req.Variables

	if err := h.repo.SaveModel(ctx, tenantID, model); err != nil {
		writeRepoError(w, err, "")
		return
	}
	h.catalog.Invalidate(ctx, tenantID, modelID)

	slog.Info("model updated", "tenant_id", tenantID, "model_id", modelID)
	writeJSON(w, http.StatusOK, ModelResponse{Model: model, Warnings: modelWarnings(model.Variables)})
}

// DeleteModel handles DELETE /models/{id}.
func (h *Handler) DeleteModel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	modelID := chi.URLParam(r, "id")
	if !h.requireRepo(w) {
		return
	}

	if err := h.repo.DeleteModel(ctx, tenantID, modelID); err != nil {
		writeRepoError(w, err, "model not found")
		return
	}
	h.catalog.Invalidate(ctx, tenantID, modelID)

	slog.Info("model deleted", "tenant_id", tenantID, "model_id", modelID)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "model deleted",
	})
}

// ValidateModel handles POST /models/validate. It reports what the scoring
// engine would say about a variable set without storing anything.
func (h *Handler) ValidateModel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Variables []domain.Variable `json:"variables"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	for i := range req.Variables {
		req.Variables[i].FavorableDirection = domain.ParseDirection(string(req.Variables[i].FavorableDirection))
	}

	resp := map[string]interface{}{
		"valid":      true,
		"weight_sum": scoring.Round2(sumWeights(req.Variables)),
	}
	if res := scoring.ValidateVariables(req.Variables); res != nil {
		resp["valid"] = false
		resp["error"] = res.Error
		resp["error_code"] = res.ErrorCode
	}

	writeJSON(w, http.StatusOK, resp)
}

func sumWeights(vars []domain.Variable) float64 {
	m := domain.ScoringModel{Variables: vars}
	return m.WeightSum()
}
