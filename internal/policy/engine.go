// Package policy turns scoring results into loan recommendations using
// CEL expressions evaluated over the result.
package policy

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Engine is the CEL-based recommendation engine.
type Engine struct {
	mu    sync.RWMutex
	env   *cel.Env
	bands []*compiledBand
}

type compiledBand struct {
	Config  domain.PolicyBand
	Program cel.Program
}

// DefaultBands returns the standard thresholds: 60 and above is eligible,
// 40 and above is conditional, anything else is ineligible.
func DefaultBands() []domain.PolicyBand {
	return []domain.PolicyBand{
		{
			Recommendation: domain.RecommendationEligible,
			Expression:     "score >= 60.0",
			Description:    "Good or excellent profile",
		},
		{
			Recommendation: domain.RecommendationConditional,
			Expression:     "score >= 40.0",
			Description:    "Average profile, needs review",
		},
		{
			Recommendation: domain.RecommendationIneligible,
			Expression:     "true",
			Description:    "Risky profile",
		},
	}
}

// NewEngine creates an engine and compiles bands. Empty bands are rejected.
func NewEngine(bands []domain.PolicyBand) (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("score", cel.DoubleType),
		cel.Variable("status", cel.StringType),
		cel.Variable("classification", cel.StringType),
		cel.Variable("blocking_count", cel.IntType),
		cel.Variable("weight_sum", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	e := &Engine{env: env}
	if err := e.Reload(bands); err != nil {
		return nil, err
	}
	return e, nil
}

// Validate compiles bands without replacing the loaded ones.
func (e *Engine) Validate(bands []domain.PolicyBand) error {
	_, err := e.compile(bands)
	return err
}

// Reload atomically replaces the loaded bands.
func (e *Engine) Reload(bands []domain.PolicyBand) error {
	compiled, err := e.compile(bands)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.bands = compiled
	e.mu.Unlock()
	return nil
}

// Bands returns a copy of the loaded band configuration.
func (e *Engine) Bands() []domain.PolicyBand {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]domain.PolicyBand, len(e.bands))
	for i, b := range e.bands {
		out[i] = b.Config
	}
	return out
}

// Evaluate returns the recommendation of the first matching band and a
// human-readable reason. Results matching no band are ineligible.
func (e *Engine) Evaluate(ctx context.Context, result *domain.ScoringResult) (string, string, error) {
	if result == nil {
		return "", "", fmt.Errorf("scoring result is required")
	}

	e.mu.RLock()
	bands := e.bands
	e.mu.RUnlock()

	activation := map[string]any{
		"score":          result.ScoreFinal,
		"status":         string(result.Status),
		"classification": string(result.Classification),
		"blocking_count": int64(len(result.BlockingFailed)),
		"weight_sum":     result.WeightSum,
	}

	reason := Reason(result)
	for _, b := range bands {
		if err := ctx.Err(); err != nil {
			return "", "", err
		}

		out, _, err := b.Program.Eval(activation)
		if err != nil {
			return "", "", fmt.Errorf("failed to evaluate band %s: %w", b.Config.Recommendation, err)
		}
		if matched, ok := out.(types.Bool); ok && bool(matched) {
			return b.Config.Recommendation, reason, nil
		}
	}

	return domain.RecommendationIneligible, reason, nil
}

// Reason formats the standard recommendation reason, "Score: 72.5/100 - BON".
func Reason(result *domain.ScoringResult) string {
	return "Score: " + strconv.FormatFloat(result.ScoreFinal, 'f', -1, 64) + "/100 - " + string(result.Classification)
}

func (e *Engine) compile(bands []domain.PolicyBand) ([]*compiledBand, error) {
	if len(bands) == 0 {
		return nil, fmt.Errorf("at least one policy band is required")
	}

	compiled := make([]*compiledBand, 0, len(bands))
	for i, b := range bands {
		if b.Recommendation == "" {
			return nil, fmt.Errorf("band %d: recommendation is required", i)
		}

		ast, issues := e.env.Compile(b.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("failed to compile band %d (%s): %w", i, b.Recommendation, issues.Err())
		}
		if ast.OutputType() != cel.BoolType {
			return nil, fmt.Errorf("band %d (%s): expression must return bool, got %s", i, b.Recommendation, ast.OutputType())
		}

		program, err := e.env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("failed to create program for band %d: %w", i, err)
		}
		compiled = append(compiled, &compiledBand{Config: b, Program: program})
	}

	return compiled, nil
}
