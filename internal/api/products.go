package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ProductRequest is the request body for creating or replacing a product.
type ProductRequest struct {
	ID             string  `json:"id,omitempty"`
	Name           string  `json:"name"`
	Description    string  `json:"description,omitempty"`
	MinAmount      float64 `json:"minAmount"`
	MaxAmount      float64 `json:"maxAmount"`
	InterestRate   float64 `json:"interestRate"`
	DurationMonths int     `json:"durationMonths"`
	ScoringModelID string  `json:"scoringModelId"`
	Active         *bool   `json:"active,omitempty"`
}

func (req *ProductRequest) check() string {
	switch {
	case req.Name == "" || req.ScoringModelID == "":
		return "name and scoringModelId are required"
	case req.MinAmount < 0 || req.MaxAmount < req.MinAmount:
		return "amounts must satisfy 0 <= minAmount <= maxAmount"
	case req.InterestRate < 0 || req.DurationMonths < 0:
		return "interestRate and durationMonths must not be negative"
	}
	return ""
}

// apply copies the request onto p.
func (req *ProductRequest) apply(p *domain.CreditProduct) {
	p.Name = req.Name
	p.Description = req.Description
	p.MinAmount = req.MinAmount
	p.MaxAmount = req.MaxAmount
	p.InterestRate = req.InterestRate
	p.DurationMonths = req.DurationMonths
	p.ScoringModelID = req.ScoringModelID
	if req.Active != nil {
		p.Active = *req.Active
	}
}

// ListProducts handles GET /products.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.requireRepo(w) {
		return
	}

	products, err := h.repo.ListProducts(ctx, GetTenantID(ctx))
	if err != nil {
		writeRepoError(w, err, "")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"products": products,
		"count":    len(products),
	})
}

// GetProduct handles GET /products/{id}.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.requireRepo(w) {
		return
	}

	product, err := h.repo.GetProduct(ctx, GetTenantID(ctx), chi.URLParam(r, "id"))
	if err != nil {
		writeRepoError(w, err, "product not found")
		return
	}

	writeJSON(w, http.StatusOK, product)
}

// CreateProduct handles POST /products. The scoring model must exist.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req ProductRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if msg := req.check(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if !h.requireRepo(w) {
		return
	}

	if _, err := h.repo.GetModel(ctx, tenantID, req.ScoringModelID); err != nil {
		writeRepoError(w, err, "scoring model not found")
		return
	}

	product := &domain.CreditProduct{ID: req.ID, Active: true}
	if product.ID == "" {
		product.ID = uuid.New().String()
	} else if _, err := h.repo.GetProduct(ctx, tenantID, product.ID); err == nil {
		writeError(w, http.StatusConflict, "product already exists")
		return
	}
	req.apply(product)

	if err := h.repo.SaveProduct(ctx, tenantID, product); err != nil {
		writeRepoError(w, err, "")
		return
	}

	slog.Info("product created",
		"tenant_id", tenantID,
		"product_id", product.ID,
		"model_id", product.ScoringModelID,
	)
	writeJSON(w, http.StatusCreated, product)
}

// UpdateProduct handles PUT /products/{id}.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	productID := chi.URLParam(r, "id")

	var req ProductRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if msg := req.check(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if !h.requireRepo(w) {
		return
	}

	product, err := h.repo.GetProduct(ctx, tenantID, productID)
	if err != nil {
		writeRepoError(w, err, "product not found")
		return
	}
	if _, err := h.repo.GetModel(ctx, tenantID, req.ScoringModelID); err != nil {
		writeRepoError(w, err, "scoring model not found")
		return
	}
	req.apply(product)

	if err := h.repo.SaveProduct(ctx, tenantID, product); err != nil {
		writeRepoError(w, err, "")
		return
	}

	slog.Info("product updated", "tenant_id", tenantID, "product_id", productID)
	writeJSON(w, http.StatusOK, product)
}

// DeleteProduct handles DELETE /products/{id}.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	productID := chi.URLParam(r, "id")
	if !h.requireRepo(w) {
		return
	}

	if err := h.repo.DeleteProduct(ctx, tenantID, productID); err != nil {
		writeRepoError(w, err, "product not found")
		return
	}

	slog.Info("product deleted", "tenant_id", tenantID, "product_id", productID)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "product deleted",
	})
}

// ProductVariables handles GET /products/{id}/variables: the variables an
// applicant has to fill in for a product.
func (h *Handler) ProductVariables(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.requireRepo(w) {
		return
	}

	product, model, err := h.catalog.ProductModel(ctx, GetTenantID(ctx), chi.URLParam(r, "id"))
	if err != nil {
		writeRepoError(w, err, "product not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"product":         product,
		"model_variables": model.Variables,
	})
}

// ProductStats handles GET /products/{id}/stats.
func (h *Handler) ProductStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	productID := chi.URLParam(r, "id")
	if !h.requireRepo(w) {
		return
	}

	if _, err := h.repo.GetProduct(ctx, tenantID, productID); err != nil {
		writeRepoError(w, err, "product not found")
		return
	}

	st, err := h.stats.ProductStats(ctx, tenantID, productID)
	if err != nil {
		slog.Error("failed to compute product stats", "product_id", productID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute statistics")
		return
	}

	writeJSON(w, http.StatusOK, st)
}
