// Package workflow implements the policy-request lifecycle orchestrator.
// Every business action ends in at most one attempted status transition
// and at most one emitted domain event.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/lifecycle"
	"github.com/opensource-finance/kestrel/internal/underwriting"
)

var tracer = otel.Tracer("kestrel-workflow")

const (
	policyCacheTTL = 5 * time.Minute

	// Duplicate-submission throttle per customer.
	submissionWindow = time.Minute
	submissionLimit  = 20
)

// TransitionObserver is notified after every successful transition.
// Metrics live behind this hook, never inside the core.
type TransitionObserver func(pr *domain.PolicyRequest, from, to domain.Status)

// Orchestrator coordinates the policy-request lifecycle: it loads state,
// asks the underwriting rule or an external collaborator for a decision,
// checks transition legality, appends to the history ledger, mutates the
// entity and emits the matching domain event.
type Orchestrator struct {
	repo          domain.Repository
	bus           domain.EventBus
	cache         domain.Cache
	fraud         domain.FraudAnalysisProvider
	payments      domain.PaymentProcessor
	subscriptions domain.SubscriptionIssuer
	observers     []TransitionObserver
}

// NewOrchestrator creates the workflow orchestrator. The cache is
// optional; all other collaborators are required by the operations that
// use them.
func NewOrchestrator(repo domain.Repository, bus domain.EventBus, cache domain.Cache, fraud domain.FraudAnalysisProvider, payments domain.PaymentProcessor, subscriptions domain.SubscriptionIssuer) *Orchestrator {
	return &Orchestrator{
		repo:          repo,
		bus:           bus,
		cache:         cache,
		fraud:         fraud,
		payments:      payments,
		subscriptions: subscriptions,
	}
}

// OnTransition registers an observer called after each successful
// transition. Not safe to call concurrently with operations.
func (o *Orchestrator) OnTransition(obs TransitionObserver) {
	o.observers = append(o.observers, obs)
}

// Create registers a new policy request. Status is forced to RECEIVED
// regardless of input, a creation marker is appended to the ledger and a
// PolicyRequestCreated event is emitted.
func (o *Orchestrator) Create(ctx context.Context, pr *domain.PolicyRequest) (*domain.PolicyRequest, error) {
	ctx, span := tracer.Start(ctx, "workflow.Create")
	defer span.End()

	if err := validateNewRequest(pr); err != nil {
		return nil, err
	}

	if o.cache != nil {
		count, err := o.cache.IncrementCounter(ctx, "submissions:"+pr.CustomerID, submissionWindow)
		if err == nil && count > submissionLimit {
			return nil, fmt.Errorf("%w: too many submissions for customer %s", domain.ErrInvalidInput, pr.CustomerID)
		}
	}

	now := time.Now().UTC()
	if pr.ID == "" {
		pr.ID = uuid.New().String()
	}
	pr.Status = domain.StatusReceived
	pr.FinishedAt = nil
	pr.Version = 1
	pr.CreatedAt = now
	pr.UpdatedAt = now
	span.SetAttributes(attribute.String("policy_request.id", pr.ID))

	entry, err := lifecycle.NewHistoryEntry(pr.ID, "", domain.StatusReceived, "policy request received", now)
	if err != nil {
		return nil, err
	}

	if err := o.repo.SavePolicyRequest(ctx, pr); err != nil {
		return nil, fmt.Errorf("failed to save policy request: %w", err)
	}
	if err := o.repo.AppendHistory(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to append creation marker: %w", err)
	}

	if err := o.publish(ctx, pr, domain.EventPolicyRequestCreated, domain.KeyCreated); err != nil {
		return nil, err
	}

	slog.Info("policy request created",
		"id", pr.ID,
		"customer_id", pr.CustomerID,
		"category", pr.Category,
	)

	return pr, nil
}

// Get loads a policy request, consulting the cache first.
func (o *Orchestrator) Get(ctx context.Context, id string) (*domain.PolicyRequest, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: policy request id is required", domain.ErrInvalidInput)
	}

	if o.cache != nil {
		if pr, err := o.cache.GetPolicyRequest(ctx, id); err == nil && pr != nil {
			return pr, nil
		}
	}

	pr, err := o.repo.GetPolicyRequest(ctx, id)
	if err != nil {
		return nil, err
	}

	if o.cache != nil {
		_ = o.cache.SetPolicyRequest(ctx, pr, policyCacheTTL)
	}

	return pr, nil
}

// GetByCustomer lists all policy requests for a customer.
func (o *Orchestrator) GetByCustomer(ctx context.Context, customerID string) ([]*domain.PolicyRequest, error) {
	if customerID == "" {
		return nil, fmt.Errorf("%w: customer id is required", domain.ErrInvalidInput)
	}
	return o.repo.ListByCustomer(ctx, customerID)
}

// History returns the status ledger of a request, most recent first.
// The repository stores entries in append order; display order is the
// reverse.
func (o *Orchestrator) History(ctx context.Context, id string) ([]*domain.StatusHistoryEntry, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: policy request id is required", domain.ErrInvalidInput)
	}
	if _, err := o.repo.GetPolicyRequest(ctx, id); err != nil {
		return nil, err
	}

	entries, err := o.repo.GetHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// Validate evaluates the underwriting rule against the attached risk
// analysis and routes to VALIDATED or REJECTED. A missing analysis is a
// MISSING_RISK_ANALYSIS rule violation, not a state-machine failure. An
// underwriting rejection is a successful-but-rejected outcome, not an
// error.
func (o *Orchestrator) Validate(ctx context.Context, id string) (*domain.PolicyRequest, error) {
	ctx, span := tracer.Start(ctx, "workflow.Validate")
	defer span.End()

	pr, err := o.repo.GetPolicyRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	return o.validate(ctx, pr)
}

func (o *Orchestrator) validate(ctx context.Context, pr *domain.PolicyRequest) (*domain.PolicyRequest, error) {
	if pr.RiskAnalysis == nil {
		return nil, &domain.RuleViolationError{
			Code:    domain.CodeMissingRiskAnalysis,
			Message: "policy request has no risk analysis attached",
		}
	}

	if len(pr.Coverages) == 0 {
		if err := o.updateStatus(ctx, pr, domain.StatusRejected, "policy request declares no coverages", ""); err != nil {
			return nil, err
		}
		return pr, nil
	}

	accepted, reason := underwriting.Decide(pr.Category, pr.InsuredAmount, pr.RiskAnalysis.Classification)
	target := domain.StatusValidated
	if !accepted {
		target = domain.StatusRejected
	}

	if err := o.updateStatus(ctx, pr, target, reason, ""); err != nil {
		return nil, err
	}
	return pr, nil
}

// RunFraudAnalysis calls the fraud provider, attaches the returned
// analysis and immediately validates. Any provider failure, including a
// malformed response, is swallowed and converted into a REJECTED
// transition; it is never surfaced to the caller as an error.
func (o *Orchestrator) RunFraudAnalysis(ctx context.Context, id string) (*domain.PolicyRequest, error) {
	ctx, span := tracer.Start(ctx, "workflow.RunFraudAnalysis")
	defer span.End()

	pr, err := o.repo.GetPolicyRequest(ctx, id)
	if err != nil {
		return nil, err
	}

	analysis, err := o.fraud.Analyze(ctx, pr)
	if err == nil {
		err = analysis.Validate()
	}
	if err != nil {
		// Provider failure resolves to rejection, never to an error.
		slog.Warn("fraud analysis failed, rejecting policy request",
			"id", pr.ID,
			"error", err,
		)
		if uerr := o.updateStatus(ctx, pr, domain.StatusRejected, "fraud analysis unavailable: "+err.Error(), ""); uerr != nil {
			return nil, uerr
		}
		return pr, nil
	}

	pr.RiskAnalysis = analysis
	pr.UpdatedAt = time.Now().UTC()
	if err := o.repo.UpdatePolicyRequest(ctx, pr); err != nil {
		return nil, fmt.Errorf("failed to attach risk analysis: %w", err)
	}
	o.invalidate(ctx, pr.ID)

	slog.Info("risk analysis attached",
		"id", pr.ID,
		"classification", analysis.Classification,
		"occurrences", len(analysis.Occurrences),
	)

	return o.validate(ctx, pr)
}

// ProcessPayment charges the first installment of a VALIDATED request.
// A declined payment transitions the request to REJECTED and surfaces a
// PAYMENT_FAILED rule violation; a processor error propagates untouched.
func (o *Orchestrator) ProcessPayment(ctx context.Context, id string) (*domain.PolicyRequest, error) {
	ctx, span := tracer.Start(ctx, "workflow.ProcessPayment")
	defer span.End()

	pr, err := o.repo.GetPolicyRequest(ctx, id)
	if err != nil {
		return nil, err
	}

	if pr.Status != domain.StatusValidated {
		return nil, &domain.InvalidTransitionError{From: pr.Status, To: domain.StatusPending}
	}

	approved, err := o.payments.Process(ctx, pr)
	if err != nil {
		return nil, fmt.Errorf("payment processor failed: %w", err)
	}

	if !approved {
		if uerr := o.updateStatus(ctx, pr, domain.StatusRejected, "payment rejected by processor", domain.EventPaymentRejected); uerr != nil {
			return nil, uerr
		}
		return pr, &domain.RuleViolationError{
			Code:    domain.CodePaymentFailed,
			Message: "payment was rejected by the processor",
		}
	}

	if err := o.updateStatus(ctx, pr, domain.StatusPending, "payment confirmed", domain.EventPaymentProcessed); err != nil {
		return nil, err
	}
	return pr, nil
}

// ProcessSubscription issues the subscription of a PENDING request. Any
// issuer error is caught and converted into a REJECTED transition plus a
// SUBSCRIPTION_ERROR rule violation.
func (o *Orchestrator) ProcessSubscription(ctx context.Context, id string) (*domain.PolicyRequest, error) {
	ctx, span := tracer.Start(ctx, "workflow.ProcessSubscription")
	defer span.End()

	pr, err := o.repo.GetPolicyRequest(ctx, id)
	if err != nil {
		return nil, err
	}

	if pr.Status != domain.StatusPending {
		return nil, &domain.InvalidTransitionError{From: pr.Status, To: domain.StatusApproved}
	}

	if err := o.subscriptions.Issue(ctx, pr); err != nil {
		slog.Warn("subscription issuance failed, rejecting policy request",
			"id", pr.ID,
			"error", err,
		)
		if uerr := o.updateStatus(ctx, pr, domain.StatusRejected, "subscription issuance failed: "+err.Error(), ""); uerr != nil {
			return nil, uerr
		}
		return pr, &domain.RuleViolationError{
			Code:    domain.CodeSubscriptionError,
			Message: "subscription issuer failed; policy request rejected",
		}
	}

	if err := o.updateStatus(ctx, pr, domain.StatusApproved, "subscription issued", ""); err != nil {
		return nil, err
	}
	return pr, nil
}

// Cancel transitions a request to CANCELLED. Cancelling an APPROVED
// request is explicitly forbidden with its own rule violation, distinct
// from the generic transition-table failure.
func (o *Orchestrator) Cancel(ctx context.Context, id, reason string) (*domain.PolicyRequest, error) {
	ctx, span := tracer.Start(ctx, "workflow.Cancel")
	defer span.End()

	pr, err := o.repo.GetPolicyRequest(ctx, id)
	if err != nil {
		return nil, err
	}

	if pr.Status == domain.StatusApproved {
		return nil, &domain.RuleViolationError{
			Code:    domain.CodeCannotCancelApproved,
			Message: "an approved policy request cannot be cancelled",
		}
	}

	if reason == "" {
		reason = "cancelled on request"
	}
	if err := o.updateStatus(ctx, pr, domain.StatusCancelled, reason, ""); err != nil {
		return nil, err
	}
	return pr, nil
}

// updateStatus is the single choke point for every transition. It
// validates legality, appends a ledger entry, mutates the entity, stamps
// finishedAt on terminal statuses and emits exactly one domain event. On
// an illegal transition it fails with no mutation. A publish error
// propagates even though the mutation already happened.
func (o *Orchestrator) updateStatus(ctx context.Context, pr *domain.PolicyRequest, to domain.Status, reason string, evType domain.EventType) error {
	from := pr.Status
	if !lifecycle.CanTransition(from, to) {
		return &domain.InvalidTransitionError{From: from, To: to}
	}

	now := time.Now().UTC()
	entry, err := lifecycle.NewHistoryEntry(pr.ID, from, to, reason, now)
	if err != nil {
		return err
	}

	pr.Status = to
	pr.UpdatedAt = now
	if lifecycle.IsTerminal(to) && pr.FinishedAt == nil {
		finished := now
		pr.FinishedAt = &finished
	}

	if err := o.repo.UpdatePolicyRequest(ctx, pr); err != nil {
		return fmt.Errorf("failed to persist status %s: %w", to, err)
	}
	if err := o.repo.AppendHistory(ctx, entry); err != nil {
		return fmt.Errorf("failed to append history entry: %w", err)
	}
	o.invalidate(ctx, pr.ID)

	for _, obs := range o.observers {
		obs(pr, from, to)
	}

	if evType == "" {
		evType = domain.EventTypeFor(to)
	}
	if err := o.publish(ctx, pr, evType, domain.RoutingKeyFor(to)); err != nil {
		return err
	}

	slog.Info("policy request transitioned",
		"id", pr.ID,
		"from", from,
		"to", to,
		"reason", reason,
	)

	return nil
}

// publish emits one domain event. Publish errors are not recovered
// anywhere in the orchestration layer.
func (o *Orchestrator) publish(ctx context.Context, pr *domain.PolicyRequest, evType domain.EventType, key string) error {
	if o.bus == nil {
		return nil
	}

	event := domain.Event{
		Type:            evType,
		PolicyRequestID: pr.ID,
		CustomerID:      pr.CustomerID,
		Status:          pr.Status,
		Timestamp:       time.Now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := o.bus.Publish(ctx, domain.TopicPolicyEvents, key, payload); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", evType, err)
	}
	return nil
}

func (o *Orchestrator) invalidate(ctx context.Context, id string) {
	if o.cache != nil {
		_ = o.cache.Delete(ctx, "policy:"+id)
	}
}

func validateNewRequest(pr *domain.PolicyRequest) error {
	if pr == nil {
		return fmt.Errorf("%w: policy request is required", domain.ErrInvalidInput)
	}
	if pr.CustomerID == "" {
		return fmt.Errorf("%w: customerId is required", domain.ErrInvalidInput)
	}
	if pr.ProductID == "" {
		return fmt.Errorf("%w: productId is required", domain.ErrInvalidInput)
	}
	if pr.Category == "" {
		return fmt.Errorf("%w: category is required", domain.ErrInvalidInput)
	}
	if pr.TotalMonthlyPremiumAmount <= 0 {
		return fmt.Errorf("%w: totalMonthlyPremiumAmount must be positive", domain.ErrInvalidInput)
	}
	if pr.InsuredAmount <= 0 {
		return fmt.Errorf("%w: insuredAmount must be positive", domain.ErrInvalidInput)
	}
	return nil
}
