package domain

// PolicyBand maps a CEL condition over a scoring result to a recommendation.
// Bands are evaluated in order and the first match wins.
type PolicyBand struct {
	Recommendation string `json:"recommendation"`
	Expression     string `json:"expression"`
	Description    string `json:"description,omitempty"`
}
