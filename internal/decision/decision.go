// Package decision turns an applicant's values into a persisted-ready
// Simulation: it runs the scoring engine and the recommendation policy.
package decision

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

// Recommender produces a recommendation for a scoring result.
type Recommender interface {
	Evaluate(ctx context.Context, result *domain.ScoringResult) (string, string, error)
}

// Processor scores simulation requests.
type Processor struct {
	// Policy maps results to recommendations.
	Policy Recommender

	// MissingPolicy applies when a request names none.
	MissingPolicy domain.MissingPolicy
}

// NewProcessor creates a processor with the REFUSE missing-value default.
func NewProcessor(policy Recommender) *Processor {
	return &Processor{
		Policy:        policy,
		MissingPolicy: domain.MissingRefuse,
	}
}

// Request contains all data needed to score one applicant.
type Request struct {
	// ID is optional; a UUID is assigned when empty.
	ID            string
	TenantID      string
	TraceID       string
	ProductID     string
	ApplicantID   string
	Model         *domain.ScoringModel
	Values        domain.Values
	MissingPolicy domain.MissingPolicy
	StartTime     time.Time
}

// Process scores the request. CONFIG_ERROR and NON_ELIGIBLE outcomes are
// results, not errors; an error means the request itself could not be run.
func (p *Processor) Process(ctx context.Context, req *Request) (*domain.Simulation, error) {
	if req == nil || req.Model == nil {
		return nil, fmt.Errorf("request and scoring model are required")
	}
	if !req.MissingPolicy.Valid() {
		return nil, fmt.Errorf("unknown missing policy %q", req.MissingPolicy)
	}

	startTime := req.StartTime
	if startTime.IsZero() {
		startTime = time.Now()
	}

	missing := req.MissingPolicy
	if missing == "" {
		missing = p.MissingPolicy
	}

	scoringStart := time.Now()
	result := scoring.Calculate(domain.ScoringInput{
		Variables:     req.Model.Variables,
		Values:        req.Values,
		MissingPolicy: missing,
	})
	scoringMs := time.Since(scoringStart).Milliseconds()

	recommendation := domain.RecommendationIneligible
	reason := ""
	if p.Policy != nil {
		rec, why, err := p.Policy.Evaluate(ctx, result)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate recommendation policy: %w", err)
		}
		recommendation, reason = rec, why
	}

	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}

	values := req.Values
	if values == nil {
		values = domain.Values{}
	}

	return &domain.Simulation{
		ID:                   id,
		TenantID:             req.TenantID,
		ProductID:            req.ProductID,
		ModelID:              req.Model.ID,
		ApplicantID:          req.ApplicantID,
		Values:               values,
		Result:               result,
		Recommendation:       recommendation,
		RecommendationReason: reason,
		CreatedAt:            time.Now().UTC(),
		Metadata: domain.SimulationMetadata{
			TraceID:       req.TraceID,
			ScoringMs:     scoringMs,
			TotalMs:       time.Since(startTime).Milliseconds(),
			Variables:     len(req.Model.Variables),
			EngineVersion: "kestrel-" + scoring.EngineVersion,
		},
	}, nil
}

// ShouldNotify returns true if the simulation was rejected by a blocking
// criterion.
func ShouldNotify(sim *domain.Simulation) bool {
	return sim != nil && sim.Result != nil && sim.Result.Status == domain.StatusNonEligible
}

// Reasons extracts human-readable reasons for a non-eligible or invalid
// simulation.
func Reasons(sim *domain.Simulation) []string {
	if sim == nil || sim.Result == nil {
		return nil
	}

	var reasons []string
	if sim.Result.Error != "" {
		reasons = append(reasons, sim.Result.Error)
	}
	for _, bf := range sim.Result.BlockingFailed {
		reasons = append(reasons, bf.Message)
	}
	return reasons
}
