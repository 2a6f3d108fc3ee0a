// Package fraud provides fraud-analysis provider implementations.
package fraud

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// CELAnalyzer is the embedded fraud-analysis provider. It evaluates
// configurable CEL risk rules against a policy request, reports triggered
// rules as occurrences and maps the weighted aggregate score to a risk
// classification.
type CELAnalyzer struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule

	// Score thresholds: >= high yields HIGH_RISK, <= preferred yields
	// PREFERRED, anything between is REGULAR. No loaded rules yields
	// NO_INFORMATION.
	highThreshold      float64
	preferredThreshold float64
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.RiskRule
	Program cel.Program
}

// NewCELAnalyzer creates the embedded analyzer.
func NewCELAnalyzer(cfg domain.FraudConfig) (*CELAnalyzer, error) {
	high := cfg.HighRiskThreshold
	if high <= 0 {
		high = 0.7
	}
	preferred := cfg.PreferredThreshold
	if preferred <= 0 {
		preferred = 0.1
	}

	// CEL environment with policy-request variables
	env, err := cel.NewEnv(
		cel.Variable("category", cel.StringType),
		cel.Variable("sales_channel", cel.StringType),
		cel.Variable("payment_method", cel.StringType),
		cel.Variable("insured_amount", cel.DoubleType),
		cel.Variable("premium_amount", cel.DoubleType),
		cel.Variable("total_coverage", cel.DoubleType),
		cel.Variable("coverage_count", cel.IntType),
		cel.Variable("assistance_count", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &CELAnalyzer{
		env:                env,
		compiledRules:      make(map[string]*CompiledRule),
		highThreshold:      high,
		preferredThreshold: preferred,
	}, nil
}

// LoadRule compiles and loads a risk rule into the analyzer.
func (a *CELAnalyzer) LoadRule(cfg *domain.RiskRule) error {
	if cfg == nil {
		return fmt.Errorf("risk rule config is required")
	}

	ast, issues := a.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	program, err := a.env.Program(ast)
	if err != nil {
		return fmt.Errorf("failed to build program for rule %s: %w", cfg.ID, err)
	}

	a.mu.Lock()
	a.compiledRules[cfg.ID] = &CompiledRule{Config: cfg, Program: program}
	a.mu.Unlock()

	return nil
}

// LoadRules compiles and loads multiple rules, skipping disabled ones.
func (a *CELAnalyzer) LoadRules(configs []*domain.RiskRule) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := a.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules atomically replaces the loaded rule set.
func (a *CELAnalyzer) ReloadRules(configs []*domain.RiskRule) error {
	replacement, err := NewCELAnalyzer(domain.FraudConfig{
		HighRiskThreshold:  a.highThreshold,
		PreferredThreshold: a.preferredThreshold,
	})
	if err != nil {
		return err
	}
	if err := replacement.LoadRules(configs); err != nil {
		return err
	}

	a.mu.Lock()
	a.compiledRules = replacement.compiledRules
	a.mu.Unlock()
	return nil
}

// RulesCount returns the number of loaded rules.
func (a *CELAnalyzer) RulesCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.compiledRules)
}

// LoadedRules returns the configurations currently loaded.
func (a *CELAnalyzer) LoadedRules() []*domain.RiskRule {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rules := make([]*domain.RiskRule, 0, len(a.compiledRules))
	for _, r := range a.compiledRules {
		rules = append(rules, r.Config)
	}
	return rules
}

// Analyze evaluates all loaded rules against the policy request.
func (a *CELAnalyzer) Analyze(ctx context.Context, pr *domain.PolicyRequest) (*domain.RiskAnalysis, error) {
	if pr == nil {
		return nil, fmt.Errorf("%w: policy request is required", domain.ErrInvalidInput)
	}

	a.mu.RLock()
	rules := make([]*CompiledRule, 0, len(a.compiledRules))
	for _, rule := range a.compiledRules {
		rules = append(rules, rule)
	}
	a.mu.RUnlock()

	now := time.Now().UTC()
	analysis := &domain.RiskAnalysis{
		Classification: domain.RiskNoInformation,
		AnalyzedAt:     now,
	}

	if len(rules) == 0 {
		return analysis, nil
	}

	activation := map[string]any{
		"category":         string(pr.Category),
		"sales_channel":    string(pr.SalesChannel),
		"payment_method":   string(pr.PaymentMethod),
		"insured_amount":   pr.InsuredAmount,
		"premium_amount":   pr.TotalMonthlyPremiumAmount,
		"total_coverage":   pr.TotalCoverage(),
		"coverage_count":   int64(len(pr.Coverages)),
		"assistance_count": int64(len(pr.Assistances)),
	}

	var score, totalWeight float64
	for _, rule := range rules {
		out, _, err := rule.Program.Eval(activation)
		if err != nil {
			return nil, fmt.Errorf("rule %s evaluation failed: %w", rule.Config.ID, err)
		}

		weight := rule.Config.Weight
		if weight <= 0 {
			weight = 1.0
		}
		totalWeight += weight

		if toScore(out) > 0 {
			score += weight
			analysis.Occurrences = append(analysis.Occurrences, domain.RiskOccurrence{
				Type:        occurrenceType(rule.Config),
				Description: occurrenceDescription(rule.Config),
				CreatedAt:   now,
				UpdatedAt:   now,
			})
		}
	}

	if totalWeight > 0 {
		score /= totalWeight
	}

	switch {
	case score >= a.highThreshold:
		analysis.Classification = domain.RiskHigh
	case score <= a.preferredThreshold:
		analysis.Classification = domain.RiskPreferred
	default:
		analysis.Classification = domain.RiskRegular
	}

	return analysis, nil
}

// toScore converts a CEL value to a numeric score.
func toScore(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return 1.0
		}
		return 0.0
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0.0
	}
}

func occurrenceType(cfg *domain.RiskRule) string {
	if cfg.Occurrence != "" {
		return cfg.Occurrence
	}
	return cfg.ID
}

func occurrenceDescription(cfg *domain.RiskRule) string {
	if cfg.Description != "" {
		return cfg.Description
	}
	return cfg.Name
}
