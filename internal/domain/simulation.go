package domain

import "time"

// Recommendation labels produced by the recommendation policy.
const (
	RecommendationEligible    = "eligible"
	RecommendationConditional = "conditional"
	RecommendationIneligible  = "ineligible"
)

// Simulation is one persisted scoring request and its outcome.
type Simulation struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	ProductID   string `json:"productId,omitempty"`
	ModelID     string `json:"modelId"`
	ApplicantID string `json:"applicantId,omitempty"`

	Values Values         `json:"values"`
	Result *ScoringResult `json:"result"`

	Recommendation       string `json:"recommendation"`
	RecommendationReason string `json:"recommendationReason"`

	CreatedAt time.Time          `json:"createdAt"`
	Metadata  SimulationMetadata `json:"metadata"`
}

// SimulationMetadata contains processing information.
type SimulationMetadata struct {
	TraceID       string `json:"traceId,omitempty"`
	ScoringMs     int64  `json:"scoringMs"`
	TotalMs       int64  `json:"totalMs"`
	Variables     int    `json:"variables"`
	EngineVersion string `json:"engineVersion"`
}

// SimulationFilter narrows simulation listings.
type SimulationFilter struct {
	ProductID string
	Limit     int
}

// SimulationStats summarizes all simulations of an institution.
type SimulationStats struct {
	TotalSimulations   int     `json:"total_simulations"`
	AverageScore       float64 `json:"average_score"`
	ScoresAbove60Count int     `json:"scores_above_60_count"`
	PercentageAbove60  float64 `json:"percentage_above_60"`
}

// ProductStats summarizes the simulations of one credit product.
type ProductStats struct {
	ProductID           string  `json:"product_id"`
	TotalSimulations    int     `json:"total_simulations"`
	AverageScore        float64 `json:"average_score"`
	SimulationsLastHour int64   `json:"simulations_last_hour"`
}
