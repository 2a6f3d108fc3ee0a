package fraud

import (
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// New creates a fraud-analysis provider based on configuration.
func New(cfg domain.FraudConfig) (domain.FraudAnalysisProvider, error) {
	switch cfg.Provider {
	case "", "embedded":
		return NewCELAnalyzer(cfg)

	case "http":
		return NewHTTPProvider(cfg)

	default:
		return nil, fmt.Errorf("unsupported fraud provider: %s", cfg.Provider)
	}
}
