package domain

import "fmt"

// ConfidenceLevel is the band a classification confidence falls into.
type ConfidenceLevel string

const (
	ConfidenceLow    ConfidenceLevel = "low"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceHigh   ConfidenceLevel = "high"
)

// Confidence band thresholds.
const (
	HighConfidenceThreshold   = 0.9
	MediumConfidenceThreshold = 0.6
)

// LevelFor returns the band for c. Values outside [0,1] are clamped first,
// so exactly one band applies to every input.
func LevelFor(c float64) ConfidenceLevel {
	c = ClampConfidence(c)
	switch {
	case c >= HighConfidenceThreshold:
		return ConfidenceHigh
	case c >= MediumConfidenceThreshold:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// ClampConfidence bounds c to [0,1]. NaN maps to 0.
func ClampConfidence(c float64) float64 {
	if c != c || c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// RequestClassification is the (agent type, confidence, reasoning) verdict for a query.
type RequestClassification struct {
	AgentType  AgentType `json:"agent_type"`
	Confidence float64   `json:"confidence"`
	Reasoning  string    `json:"reasoning"`
}

// ConfidenceLevel derives the band from Confidence.
func (c RequestClassification) ConfidenceLevel() ConfidenceLevel {
	return LevelFor(c.Confidence)
}

func (c RequestClassification) String() string {
	return fmt.Sprintf("%s (%.2f, %s)", c.AgentType, c.Confidence, c.ConfidenceLevel())
}

// ValidationResult reports structured validation failures instead of raising them.
type ValidationResult struct {
	Success bool     `json:"success"`
	Reason  string   `json:"reason,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

// Err converts a failed result into an error wrapping ErrValidation.
func (v ValidationResult) Err() error {
	if v.Success {
		return nil
	}
	return NewDomainError("Validate", ErrValidation, v.Reason)
}
