package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/decision"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// SimulationRequest is the request body for POST /simulations/calculate
// and POST /simulations.
type SimulationRequest struct {
	ProductID     string               `json:"product_id"`
	ModelID       string               `json:"model_id"`
	ApplicantID   string               `json:"applicant_id,omitempty"`
	Values        domain.Values        `json:"values"`
	MissingPolicy domain.MissingPolicy `json:"missing_policy,omitempty"`
}

func (req *SimulationRequest) validate() string {
	if req.ProductID == "" && req.ModelID == "" {
		return "product_id or model_id is required"
	}
	if req.Values == nil {
		return "values is required"
	}
	if !req.MissingPolicy.Valid() {
		return "missing_policy must be REFUSE or PENALIZE"
	}
	return ""
}

// CalculateResponse is the scoring result plus the persisted simulation.
type CalculateResponse struct {
	*domain.ScoringResult
	SimulationID         string   `json:"simulation_id"`
	Recommendation       string   `json:"recommendation"`
	RecommendationReason string   `json:"recommendation_reason"`
	Reasons              []string `json:"reasons,omitempty"`
	Metadata             struct {
		TraceID   string `json:"traceId"`
		ScoringMs int64  `json:"scoringMs"`
		TotalMs   int64  `json:"totalMs"`
		Version   string `json:"version"`
	} `json:"metadata"`
}

// Calculate handles POST /simulations/calculate. CONFIG_ERROR and
// NON_ELIGIBLE outcomes are answered with 200.
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	var req SimulationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if !h.requireRepo(w) {
		return
	}

	// 1. Resolve the model
	model, err := h.catalog.Resolve(ctx, tenantID, req.ProductID, req.ModelID)
	if err != nil {
		notFound := "model not found"
		if req.ProductID != "" {
			notFound = "product not found"
		}
		writeRepoError(w, err, notFound)
		return
	}

	// 2. Score and recommend
	sim, err := h.processor.Process(ctx, &decision.Request{
		TenantID:      tenantID,
		TraceID:       traceID,
		ProductID:     req.ProductID,
		ApplicantID:   req.ApplicantID,
		Model:         model,
		Values:        req.Values,
		MissingPolicy: req.MissingPolicy,
		StartTime:     start,
	})
	if err != nil {
		slog.Error("simulation processing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to calculate score")
		return
	}

	// 3. Save
	if err := h.repo.SaveSimulation(ctx, tenantID, sim); err != nil {
		slog.Error("failed to save simulation", "simulation_id", sim.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save simulation")
		return
	}
	if _, err := h.stats.RecordSimulation(ctx, tenantID, sim.ProductID); err != nil {
		slog.Warn("failed to record simulation", "simulation_id", sim.ID, "error", err)
	}

	// 4. Notify
	h.publishOutcome(r, tenantID, sim)

	slog.Info("simulation calculated",
		"simulation_id", sim.ID,
		"tenant_id", tenantID,
		"model_id", sim.ModelID,
		"status", sim.Result.Status,
		"score", sim.Result.ScoreFinal,
		"recommendation", sim.Recommendation,
	)

	resp := CalculateResponse{
		ScoringResult:        sim.Result,
		SimulationID:         sim.ID,
		Recommendation:       sim.Recommendation,
		RecommendationReason: sim.RecommendationReason,
		Reasons:              decision.Reasons(sim),
	}
	resp.Metadata.TraceID = traceID
	resp.Metadata.ScoringMs = sim.Metadata.ScoringMs
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) publishOutcome(r *http.Request, tenantID string, sim *domain.Simulation) {
	if h.bus == nil {
		return
	}
	payload, err := json.Marshal(sim)
	if err != nil {
		slog.Error("failed to encode simulation event", "simulation_id", sim.ID, "error", err)
		return
	}
	if err := h.bus.Publish(r.Context(), tenantID, domain.TopicSimulationScored, payload); err != nil {
		slog.Warn("failed to publish scored simulation", "simulation_id", sim.ID, "error", err)
	}
	if decision.ShouldNotify(sim) {
		if err := h.bus.Publish(r.Context(), tenantID, domain.TopicSimulationBlocked, payload); err != nil {
			slog.Warn("failed to publish blocked simulation", "simulation_id", sim.ID, "error", err)
		}
	}
}

// Submit handles POST /simulations: the request is queued for the worker
// and answered with 202 and the simulation id it will be stored under.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req SimulationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if h.bus == nil {
		writeError(w, http.StatusServiceUnavailable, "event bus not available")
		return
	}

	simID := uuid.New().String()
	payload, err := json.Marshal(worker.SimulationMessage{
		SimulationID:  simID,
		TenantID:      tenantID,
		TraceID:       GetTraceID(ctx),
		ProductID:     req.ProductID,
		ModelID:       req.ModelID,
		ApplicantID:   req.ApplicantID,
		Values:        req.Values,
		MissingPolicy: req.MissingPolicy,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid values")
		return
	}

	if err := h.bus.Publish(ctx, tenantID, domain.TopicSimulationRequested, payload); err != nil {
		slog.Error("failed to queue simulation", "simulation_id", simID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "failed to queue simulation")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"simulation_id": simID,
		"status":        "queued",
	})
}

// ListSimulations handles GET /simulations?product_id=&limit=.
func (h *Handler) ListSimulations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.requireRepo(w) {
		return
	}

	filter := domain.SimulationFilter{
		ProductID: r.URL.Query().Get("product_id"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}

	sims, err := h.repo.ListSimulations(ctx, GetTenantID(ctx), filter)
	if err != nil {
		writeRepoError(w, err, "")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"simulations": sims,
		"count":       len(sims),
	})
}

// GetSimulation handles GET /simulations/{id}.
func (h *Handler) GetSimulation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	simID := chi.URLParam(r, "id")
	if !h.requireRepo(w) {
		return
	}

	sim, err := h.repo.GetSimulation(ctx, GetTenantID(ctx), simID)
	if err != nil {
		writeRepoError(w, err, "simulation not found")
		return
	}

	writeJSON(w, http.StatusOK, sim)
}

// SimulationStats handles GET /simulations/stats.
func (h *Handler) SimulationStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.requireRepo(w) {
		return
	}

	st, err := h.stats.InstitutionStats(ctx, GetTenantID(ctx))
	if err != nil {
		slog.Error("failed to compute simulation stats", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute statistics")
		return
	}

	writeJSON(w, http.StatusOK, st)
}
