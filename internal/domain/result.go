package domain

import (
	"errors"
	"fmt"
)

// Status is the outcome of a scoring request.
type Status string

const (
	StatusEligible    Status = "ELIGIBLE"
	StatusNonEligible Status = "NON_ELIGIBLE" // a blocking criterion failed
	StatusConfigError Status = "CONFIG_ERROR" // model or submitted data invalid
)

// Classification is the qualitative bucket of a final score.
type Classification string

const (
	ClassRisky     Classification = "RISQUE"
	ClassAverage   Classification = "MOYEN"
	ClassGood      Classification = "BON"
	ClassExcellent Classification = "EXCELLENT"
)

// ErrorCode identifies the kind of a CONFIG_ERROR.
type ErrorCode string

const (
	ErrorWeightSum     ErrorCode = "WEIGHT_SUM"
	ErrorRange         ErrorCode = "RANGE"
	ErrorDirection     ErrorCode = "DIRECTION"
	ErrorMissingValue  ErrorCode = "MISSING_VALUE"
	ErrorInvalidValue  ErrorCode = "INVALID_VALUE"
	ErrorMissingPolicy ErrorCode = "MISSING_POLICY"
)

// Sentinel errors matching each ErrorCode, for use with errors.Is.
var (
	ErrWeightSum     = errors.New("invalid weight sum")
	ErrRange         = errors.New("invalid variable range")
	ErrDirection     = errors.New("invalid favorable direction")
	ErrMissingValue  = errors.New("missing applicant value")
	ErrInvalidValue  = errors.New("invalid applicant value")
	ErrMissingPolicy = errors.New("unknown missing value policy")
)

var codeErrors = map[ErrorCode]error{
	ErrorWeightSum:     ErrWeightSum,
	ErrorRange:         ErrRange,
	ErrorDirection:     ErrDirection,
	ErrorMissingValue:  ErrMissingValue,
	ErrorInvalidValue:  ErrInvalidValue,
	ErrorMissingPolicy: ErrMissingPolicy,
}

// VariableDetail is the per-variable breakdown of a score.
type VariableDetail struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Value              float64   `json:"value"`
	Min                float64   `json:"min"`
	Max                float64   `json:"max"`
	FavorableDirection Direction `json:"favorableDirection"`
	Weight             float64   `json:"weight"`
	ScoreVariable      float64   `json:"score_variable"`
	ScorePondere       float64   `json:"score_pondere"`
}

// BlockingFailed describes a blocking variable whose value is out of range.
type BlockingFailed struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Value   float64 `json:"value"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Message string  `json:"message"`
}

// ScoringResult is the output of the scoring engine.
type ScoringResult struct {
	ScoreFinal     float64          `json:"score_final"`
	Status         Status           `json:"status"`
	Classification Classification   `json:"classification"`
	BlockingFailed []BlockingFailed `json:"blocking_failed"`
	Details        []VariableDetail `json:"details"`
	WeightSum      float64          `json:"weight_sum"`
	Error          string           `json:"error,omitempty"`
	ErrorCode      ErrorCode        `json:"error_code,omitempty"`
}

// Eligible reports whether the applicant passed.
func (r *ScoringResult) Eligible() bool {
	return r.Status == StatusEligible
}

// Err returns nil unless the result is a CONFIG_ERROR, in which case the
// returned error wraps the sentinel for its ErrorCode.
func (r *ScoringResult) Err() error {
	if r.Status != StatusConfigError {
		return nil
	}
	if sentinel, ok := codeErrors[r.ErrorCode]; ok {
		return fmt.Errorf("%w: %s", sentinel, r.Error)
	}
	return errors.New(r.Error)
}
