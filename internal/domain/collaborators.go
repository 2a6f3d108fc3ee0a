package domain

import (
	"context"
)

// FraudAnalysisProvider scores a policy request for underwriting risk.
// A returned error (including a response that fails RiskAnalysis.Validate)
// is never surfaced by the orchestrator; it always resolves to a REJECTED
// transition.
type FraudAnalysisProvider interface {
	Analyze(ctx context.Context, pr *PolicyRequest) (*RiskAnalysis, error)
}

// PaymentProcessor charges the first premium installment. The outcome is
// modeled as a boolean: a declined payment is a business result, not an
// error. A returned error is unexpected and propagates to the caller.
type PaymentProcessor interface {
	Process(ctx context.Context, pr *PolicyRequest) (bool, error)
}

// SubscriptionIssuer creates the subscription backing an approved policy.
// Any error is converted by the orchestrator into a REJECTED transition
// plus a SUBSCRIPTION_ERROR rule violation.
type SubscriptionIssuer interface {
	Issue(ctx context.Context, pr *PolicyRequest) error
}
