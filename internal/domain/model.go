package domain

import "time"

// ScoringModel is a named set of weighted variables owned by an institution.
type ScoringModel struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenantId,omitempty"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Active      bool       `json:"active"`
	Variables   []Variable `json:"variables"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// WeightSum returns the sum of all variable weights.
func (m *ScoringModel) WeightSum() float64 {
	var sum float64
	for _, v := range m.Variables {
		sum += v.Weight
	}
	return sum
}

// CreditProduct is a loan offer scored with a ScoringModel.
type CreditProduct struct {
	ID             string  `json:"id"`
	TenantID       string  `json:"tenantId,omitempty"`
	Name           string  `json:"name"`
	Description    string  `json:"description,omitempty"`
	MinAmount      float64 `json:"minAmount"`
	MaxAmount      float64 `json:"maxAmount"`
	InterestRate   float64 `json:"interestRate"`
	DurationMonths int     `json:"durationMonths"`
	ScoringModelID string  `json:"scoringModelId"`
	Active         bool    `json:"active"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}
