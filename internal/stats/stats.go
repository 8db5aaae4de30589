// Package stats computes simulation statistics per institution and product.
package stats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

// EligibleThreshold is the score from which a simulation counts as a
// favorable outcome in institution statistics.
const EligibleThreshold = 60.0

// hourlyWindow bounds the per-product volume counter.
const hourlyWindow = time.Hour

// Service computes statistics from persisted simulations.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
}

// NewService creates a new stats service. cache may be nil, in which case
// hourly volumes read as zero.
func NewService(repo domain.Repository, cache domain.Cache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
	}
}

// InstitutionStats summarizes every simulation of a tenant.
func (s *Service) InstitutionStats(ctx context.Context, tenantID string) (*domain.SimulationStats, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	scores, err := s.repo.ListSimulationScores(ctx, tenantID, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load simulation scores: %w", err)
	}

	return Summarize(scores), nil
}

// ProductStats summarizes the simulations of one product.
func (s *Service) ProductStats(ctx context.Context, tenantID, productID string) (*domain.ProductStats, error) {
	if tenantID == "" || productID == "" {
		return nil, fmt.Errorf("tenantID and productID are required")
	}

	scores, err := s.repo.ListSimulationScores(ctx, tenantID, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to load simulation scores: %w", err)
	}

	summary := Summarize(scores)
	out := &domain.ProductStats{
		ProductID:        productID,
		TotalSimulations: summary.TotalSimulations,
		AverageScore:     summary.AverageScore,
	}

	if s.cache != nil {
		n, err := s.cache.GetCounter(ctx, tenantID, counterKey(productID))
		if err != nil {
			slog.Warn("failed to read hourly simulation counter",
				"tenant_id", tenantID,
				"product_id", productID,
				"error", err,
			)
		}
		out.SimulationsLastHour = n
	}

	return out, nil
}

// RecordSimulation bumps the hourly volume counter of a product.
// Simulations without a product are not counted.
func (s *Service) RecordSimulation(ctx context.Context, tenantID, productID string) (int64, error) {
	if s.cache == nil || productID == "" {
		return 0, nil
	}
	return s.cache.IncrementCounter(ctx, tenantID, counterKey(productID), hourlyWindow)
}

// Summarize computes count, average and the share of scores at or above
// EligibleThreshold, rounded to two decimals.
func Summarize(scores []float64) *domain.SimulationStats {
	out := &domain.SimulationStats{TotalSimulations: len(scores)}
	if len(scores) == 0 {
		return out
	}

	var sum float64
	for _, s := range scores {
		sum += s
		if s >= EligibleThreshold {
			out.ScoresAbove60Count++
		}
	}

	out.AverageScore = scoring.Round2(sum / float64(len(scores)))
	out.PercentageAbove60 = scoring.Round2(float64(out.ScoresAbove60Count) / float64(len(scores)) * 100)
	return out
}

func counterKey(productID string) string {
	return "simulations:" + productID + ":hourly"
}
