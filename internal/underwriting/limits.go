// Package underwriting implements the risk-based acceptance rule for
// insured amounts.
package underwriting

import (
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Limits per risk classification. Bounds are inclusive.
const (
	limitRegular           = 500_000.0
	limitHighRisk          = 50_000.0
	limitPreferred         = 1_000_000.0
	limitNoInformationLife = 100_000.0
	limitNoInformation     = 50_000.0
)

// Limit returns the maximum acceptable insured amount for a
// classification and category.
func Limit(category domain.Category, classification domain.RiskClassification) float64 {
	switch classification {
	case domain.RiskRegular:
		return limitRegular
	case domain.RiskHigh:
		return limitHighRisk
	case domain.RiskPreferred:
		return limitPreferred
	default:
		if category == domain.CategoryLife {
			return limitNoInformationLife
		}
		return limitNoInformation
	}
}

// IsAmountAcceptable reports whether the insured amount is within the
// limit for the given category and risk classification. Pure function;
// a caller passing an empty classification violates the contract and is
// treated as NO_INFORMATION would be by Limit.
func IsAmountAcceptable(category domain.Category, insuredAmount float64, classification domain.RiskClassification) bool {
	return insuredAmount <= Limit(category, classification)
}

// Decide returns the acceptance outcome together with a human-readable
// reason carried into the status history ledger.
func Decide(category domain.Category, insuredAmount float64, classification domain.RiskClassification) (bool, string) {
	limit := Limit(category, classification)
	if insuredAmount <= limit {
		return true, fmt.Sprintf("insured amount %.2f within %s limit %.2f", insuredAmount, classification, limit)
	}
	return false, fmt.Sprintf("insured amount %.2f exceeds %s limit %.2f for category %s", insuredAmount, classification, limit, category)
}
