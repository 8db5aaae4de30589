package policy

import (
	"context"
	"sync"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func result(score float64, status domain.Status, class domain.Classification) *domain.ScoringResult {
	return &domain.ScoringResult{
		ScoreFinal:     score,
		Status:         status,
		Classification: class,
		BlockingFailed: []domain.BlockingFailed{},
		Details:        []domain.VariableDetail{},
		WeightSum:      100,
	}
}

func TestDefaultBands(t *testing.T) {
	engine, err := NewEngine(DefaultBands())
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	tests := []struct {
		name   string
		res    *domain.ScoringResult
		want   string
		reason string
	}{
		{"excellent", result(85, domain.StatusEligible, domain.ClassExcellent), domain.RecommendationEligible, "Score: 85/100 - EXCELLENT"},
		{"threshold 60", result(60, domain.StatusEligible, domain.ClassGood), domain.RecommendationEligible, "Score: 60/100 - BON"},
		{"average", result(45.5, domain.StatusEligible, domain.ClassAverage), domain.RecommendationConditional, "Score: 45.5/100 - MOYEN"},
		{"risky", result(39.99, domain.StatusEligible, domain.ClassRisky), domain.RecommendationIneligible, "Score: 39.99/100 - RISQUE"},
		{"blocked", result(0, domain.StatusNonEligible, domain.ClassRisky), domain.RecommendationIneligible, "Score: 0/100 - RISQUE"},
		{"config error", result(0, domain.StatusConfigError, domain.ClassRisky), domain.RecommendationIneligible, "Score: 0/100 - RISQUE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, reason, err := engine.Evaluate(context.Background(), tt.res)
			if err != nil {
				t.Fatalf("evaluate failed: %v", err)
			}
			if rec != tt.want {
				t.Errorf("expected %s, got %s", tt.want, rec)
			}
			if reason != tt.reason {
				t.Errorf("expected reason %q, got %q", tt.reason, reason)
			}
		})
	}
}

func TestNewEngineRejectsInvalidBands(t *testing.T) {
	tests := []struct {
		name  string
		bands []domain.PolicyBand
	}{
		{"empty", nil},
		{"invalid CEL", []domain.PolicyBand{{Recommendation: "eligible", Expression: "this is not CEL !!!"}}},
		{"non boolean", []domain.PolicyBand{{Recommendation: "eligible", Expression: "score * 2.0"}}},
		{"unknown variable", []domain.PolicyBand{{Recommendation: "eligible", Expression: "amount > 10.0"}}},
		{"missing recommendation", []domain.PolicyBand{{Expression: "true"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewEngine(tt.bands); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestCustomBandsUseAllVariables(t *testing.T) {
	engine, err := NewEngine([]domain.PolicyBand{
		{Recommendation: "manual_review", Expression: `status == "CONFIG_ERROR" || weight_sum != 100.0`},
		{Recommendation: "ineligible", Expression: "blocking_count > 0"},
		{Recommendation: "eligible", Expression: `classification == "EXCELLENT"`},
	})
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	cfgErr := result(0, domain.StatusConfigError, domain.ClassRisky)
	if rec, _, _ := engine.Evaluate(context.Background(), cfgErr); rec != "manual_review" {
		t.Errorf("expected manual_review, got %s", rec)
	}

	blocked := result(0, domain.StatusNonEligible, domain.ClassRisky)
	blocked.BlockingFailed = []domain.BlockingFailed{{ID: "age"}}
	if rec, _, _ := engine.Evaluate(context.Background(), blocked); rec != "ineligible" {
		t.Errorf("expected ineligible, got %s", rec)
	}

	if rec, _, _ := engine.Evaluate(context.Background(), result(90, domain.StatusEligible, domain.ClassExcellent)); rec != "eligible" {
		t.Errorf("expected eligible, got %s", rec)
	}

	// no band matches
	if rec, _, _ := engine.Evaluate(context.Background(), result(70, domain.StatusEligible, domain.ClassGood)); rec != domain.RecommendationIneligible {
		t.Errorf("expected fallback ineligible, got %s", rec)
	}
}

func TestReload(t *testing.T) {
	engine, _ := NewEngine(DefaultBands())

	if err := engine.Reload([]domain.PolicyBand{{Recommendation: "eligible", Expression: "score >= 30.0"}}); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if len(engine.Bands()) != 1 {
		t.Errorf("expected 1 band, got %d", len(engine.Bands()))
	}

	rec, _, _ := engine.Evaluate(context.Background(), result(35, domain.StatusEligible, domain.ClassRisky))
	if rec != "eligible" {
		t.Errorf("expected eligible after reload, got %s", rec)
	}

	// failed reload keeps the previous bands
	if err := engine.Reload([]domain.PolicyBand{{Recommendation: "x", Expression: "score"}}); err == nil {
		t.Error("expected reload error")
	}
	if engine.Bands()[0].Expression != "score >= 30.0" {
		t.Errorf("bands changed after failed reload: %+v", engine.Bands())
	}
}

func TestEvaluateCancelledContext(t *testing.T) {
	engine, _ := NewEngine(DefaultBands())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := engine.Evaluate(ctx, result(80, domain.StatusEligible, domain.ClassExcellent)); err == nil {
		t.Error("expected context error")
	}
}

func TestConcurrentEvaluateAndReload(t *testing.T) {
	engine, _ := NewEngine(DefaultBands())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, _, err := engine.Evaluate(context.Background(), result(50, domain.StatusEligible, domain.ClassAverage)); err != nil {
				t.Errorf("evaluate failed: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if err := engine.Reload(DefaultBands()); err != nil {
				t.Errorf("reload failed: %v", err)
			}
		}()
	}
	wg.Wait()
}
