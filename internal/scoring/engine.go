// Package scoring implements the weighted, normalized scoring engine.
//
// Calculate is a pure function: it holds no state, performs no I/O and is
// safe for concurrent use. Every failure is reported inside the returned
// ScoringResult; Calculate never returns a Go error.
package scoring

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// EngineVersion is stamped on persisted simulations.
const EngineVersion = "1.0.0"

// WeightTolerance is the allowed deviation of the weight sum from 100.
const WeightTolerance = 0.1

// Classification thresholds.
const (
	thresholdAverage   = 40.0
	thresholdGood      = 60.0
	thresholdExcellent = 80.0
)

// Calculate scores the applicant values of input against its variables.
func Calculate(input domain.ScoringInput) *domain.ScoringResult {
	weightSum := sumWeights(input.Variables)

	if res := validate(input.Variables, weightSum); res != nil {
		return res
	}

	if !input.MissingPolicy.Valid() {
		return configError(weightSum, domain.ErrorMissingPolicy,
			fmt.Sprintf("unknown missing value policy %q (expected %s or %s)",
				input.MissingPolicy, domain.MissingRefuse, domain.MissingPenalize))
	}

	policy := input.MissingPolicy.OrDefault()
	if policy == domain.MissingRefuse {
		var missing []string
		for _, v := range input.Variables {
			if _, ok := input.Values.Lookup(v.ID); !ok {
				missing = append(missing, v.Name)
			}
		}
		if len(missing) > 0 {
			return configError(weightSum, domain.ErrorMissingValue,
				fmt.Sprintf("missing values for: %s", strings.Join(missing, ", ")))
		}
	}

	var (
		total   float64
		details = make([]domain.VariableDetail, 0, len(input.Variables))
		failed  = make([]domain.BlockingFailed, 0)
	)

	for _, v := range input.Variables {
		raw, ok := input.Values.Lookup(v.ID)
		var value float64
		switch {
		case ok:
			c, err := raw.Float()
			if err != nil || !finite(c) {
				return configError(weightSum, domain.ErrorInvalidValue,
					fmt.Sprintf("invalid value for %q: %s", v.Name, raw.String()))
			}
			value = c
		case policy == domain.MissingPenalize:
			value = v.Min
		default:
			return configError(weightSum, domain.ErrorMissingValue,
				fmt.Sprintf("missing value for %q", v.Name))
		}

		scoreVariable := Normalize(value, v.Min, v.Max, v.FavorableDirection)
		scorePondere := scoreVariable * v.Weight / 100
		total += scorePondere

		details = append(details, domain.VariableDetail{
			ID:                 v.ID,
			Name:               v.Name,
			Value:              value,
			Min:                v.Min,
			Max:                v.Max,
			FavorableDirection: v.FavorableDirection,
			Weight:             v.Weight,
			ScoreVariable:      scoreVariable,
			ScorePondere:       scorePondere,
		})

		if v.Blocking {
			if bf, out := checkBlocking(v, value); out {
				failed = append(failed, bf)
			}
		}
	}

	res := &domain.ScoringResult{
		BlockingFailed: failed,
		Details:        details,
		WeightSum:      weightSum,
	}

	if len(failed) > 0 {
		res.Status = domain.StatusNonEligible
		res.ScoreFinal = 0
	} else {
		res.Status = domain.StatusEligible
		res.ScoreFinal = Round2(clamp(total, 0, 100))
	}
	res.Classification = Classify(res.ScoreFinal)

	return res
}

// ValidateVariables checks the weight sum and each variable's range and
// direction. It returns nil when the configuration can be scored, or the
// CONFIG_ERROR result Calculate would produce.
func ValidateVariables(vars []domain.Variable) *domain.ScoringResult {
	return validate(vars, sumWeights(vars))
}

func validate(vars []domain.Variable, weightSum float64) *domain.ScoringResult {
	if !finite(weightSum) {
		return configError(0, domain.ErrorWeightSum, "weight sum is not a finite number")
	}
	if math.Abs(weightSum-100) > WeightTolerance {
		return configError(weightSum, domain.ErrorWeightSum,
			fmt.Sprintf("weight sum is %.2f%% (must be 100 ± %.1f%%)", weightSum, WeightTolerance))
	}

	for _, v := range vars {
		switch {
		case !finite(v.Min) || !finite(v.Max):
			return configError(weightSum, domain.ErrorRange,
				fmt.Sprintf("variable %q: min (%v) and max (%v) must be finite", v.Name, v.Min, v.Max))
		case v.Max == v.Min:
			return configError(weightSum, domain.ErrorRange,
				fmt.Sprintf("variable %q: min and max are identical (%v), division by zero impossible", v.Name, v.Min))
		case v.Min > v.Max:
			return configError(weightSum, domain.ErrorRange,
				fmt.Sprintf("variable %q: min (%v) > max (%v)", v.Name, v.Min, v.Max))
		case !v.FavorableDirection.Valid():
			return configError(weightSum, domain.ErrorDirection,
				fmt.Sprintf("variable %q: invalid favorable direction %q", v.Name, v.FavorableDirection))
		}
	}

	return nil
}

// Normalize maps value onto [0, 100] for the given range and direction,
// clamping out-of-range values to the bounds and rounding to 2 decimals.
// The range must be valid (min < max).
func Normalize(value, min, max float64, dir domain.Direction) float64 {
	c := clamp(value, min, max)

	var n float64
	if dir == domain.DirectionDecreasing {
		n = (max - c) / (max - min) * 100
	} else {
		n = (c - min) / (max - min) * 100
	}
	return Round2(n)
}

// Classify buckets a final score.
func Classify(score float64) domain.Classification {
	switch {
	case score < thresholdAverage:
		return domain.ClassRisky
	case score < thresholdGood:
		return domain.ClassAverage
	case score < thresholdExcellent:
		return domain.ClassGood
	default:
		return domain.ClassExcellent
	}
}

// Round2 rounds x to two decimal places. The float product x*100 is
// rounded to an integer, so 1.005 (stored as 1.00499...) gives 1.
// Non-finite values are returned unchanged.
func Round2(x float64) float64 {
	if !finite(x) {
		return x
	}
	return decimal.NewFromFloat(x * 100).Round(0).Shift(-2).InexactFloat64()
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

func checkBlocking(v domain.Variable, value float64) (domain.BlockingFailed, bool) {
	var msg string
	switch {
	case value < v.Min:
		msg = fmt.Sprintf("%q is below minimum (%v < %v)", v.Name, value, v.Min)
	case value > v.Max:
		msg = fmt.Sprintf("%q exceeds maximum (%v > %v)", v.Name, value, v.Max)
	default:
		return domain.BlockingFailed{}, false
	}

	return domain.BlockingFailed{
		ID:      v.ID,
		Name:    v.Name,
		Value:   value,
		Min:     v.Min,
		Max:     v.Max,
		Message: msg,
	}, true
}

func configError(weightSum float64, code domain.ErrorCode, msg string) *domain.ScoringResult {
	return &domain.ScoringResult{
		ScoreFinal:     0,
		Status:         domain.StatusConfigError,
		Classification: domain.ClassRisky,
		BlockingFailed: []domain.BlockingFailed{},
		Details:        []domain.VariableDetail{},
		WeightSum:      weightSum,
		Error:          msg,
		ErrorCode:      code,
	}
}

func sumWeights(vars []domain.Variable) float64 {
	var sum float64
	for _, v := range vars {
		sum += v.Weight
	}
	return sum
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
