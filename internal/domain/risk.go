package domain

import (
	"fmt"
	"time"
)

// RiskClassification is the coarse underwriting-risk bucket produced by
// the fraud-analysis provider.
type RiskClassification string

const (
	RiskRegular       RiskClassification = "REGULAR"
	RiskHigh          RiskClassification = "HIGH_RISK"
	RiskPreferred     RiskClassification = "PREFERRED"
	RiskNoInformation RiskClassification = "NO_INFORMATION"
)

// RiskAnalysis is the fraud provider's verdict, attached to a policy
// request once analysis completes. At most one per request; a later
// analysis replaces the prior one.
type RiskAnalysis struct {
	Classification RiskClassification `json:"classification"`
	AnalyzedAt     time.Time          `json:"analyzedAt"`
	Occurrences    []RiskOccurrence   `json:"occurrences,omitempty"`
}

// RiskOccurrence is one flagged signal within a risk analysis.
type RiskOccurrence struct {
	Type        string    `json:"type"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Validate checks that a provider response satisfies the collaborator
// contract. A failing analysis is treated as a provider failure.
func (a *RiskAnalysis) Validate() error {
	if a == nil {
		return fmt.Errorf("%w: risk analysis is required", ErrInvalidInput)
	}
	switch a.Classification {
	case RiskRegular, RiskHigh, RiskPreferred, RiskNoInformation:
	case "":
		return fmt.Errorf("%w: risk classification is required", ErrInvalidInput)
	default:
		return fmt.Errorf("%w: unknown risk classification %q", ErrInvalidInput, a.Classification)
	}
	if a.AnalyzedAt.IsZero() {
		return fmt.Errorf("%w: analyzedAt is required", ErrInvalidInput)
	}
	now := time.Now().UTC()
	if a.AnalyzedAt.After(now) {
		return fmt.Errorf("%w: analyzedAt is in the future", ErrInvalidInput)
	}
	for i := range a.Occurrences {
		if err := a.Occurrences[i].Validate(now); err != nil {
			return fmt.Errorf("occurrence %d: %w", i, err)
		}
	}
	return nil
}

// Validate checks a single occurrence against the provider contract.
func (o *RiskOccurrence) Validate(now time.Time) error {
	if o.Type == "" {
		return fmt.Errorf("%w: occurrence type is required", ErrInvalidInput)
	}
	if o.Description == "" {
		return fmt.Errorf("%w: occurrence description is required", ErrInvalidInput)
	}
	if o.CreatedAt.IsZero() || o.UpdatedAt.IsZero() {
		return fmt.Errorf("%w: occurrence timestamps are required", ErrInvalidInput)
	}
	if o.CreatedAt.After(now) || o.UpdatedAt.After(now) {
		return fmt.Errorf("%w: occurrence timestamps must not be in the future", ErrInvalidInput)
	}
	if o.UpdatedAt.Before(o.CreatedAt) {
		return fmt.Errorf("%w: occurrence updatedAt precedes createdAt", ErrInvalidInput)
	}
	return nil
}

// RiskRule is a configurable CEL expression evaluated by the embedded
// fraud analyzer. Triggered rules contribute their weight to the
// aggregate risk score and are reported as occurrences.
type RiskRule struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Expression  string  `json:"expression"`
	Occurrence  string  `json:"occurrenceType"`
	Weight      float64 `json:"weight"`
	Enabled     bool    `json:"enabled"`
}
