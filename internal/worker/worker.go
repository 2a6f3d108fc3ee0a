// Package worker provides async event processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/workflow"
)

// Worker drives fraud analysis and validation off the request path. It
// subscribes to the policy events topic and reacts to created events;
// once a request reaches VALIDATED it announces the pending charge on
// the payment-requested key.
type Worker struct {
	bus  domain.EventBus
	orch *workflow.Orchestrator

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, orch *workflow.Orchestrator) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		orch:   orch,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to the policy events topic.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicPolicyEvents, domain.KeyAll, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("worker started",
		"topic", domain.TopicPolicyEvents,
	)

	return nil
}

// handleMessage filters the event stream down to created events.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	var event domain.Event
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		slog.Error("failed to parse policy event",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if event.Type != domain.EventPolicyRequestCreated {
		return nil
	}

	return w.processCreated(ctx, event.PolicyRequestID)
}

// processCreated runs fraud analysis and validation for a freshly
// created request. A rejection is a normal outcome here, not an error.
func (w *Worker) processCreated(ctx context.Context, id string) error {
	start := time.Now()

	pr, err := w.orch.RunFraudAnalysis(ctx, id)
	if err != nil {
		slog.Error("async fraud analysis failed",
			"id", id,
			"error", err,
		)
		return err
	}

	if pr.Status == domain.StatusValidated {
		if err := w.announcePayment(ctx, pr); err != nil {
			slog.Error("failed to announce payment request",
				"id", pr.ID,
				"error", err,
			)
		}
	}

	slog.Info("policy request processed",
		"id", pr.ID,
		"status", pr.Status,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// announcePayment publishes a payment-requested event for a validated
// request so the payment gateway can pick it up.
func (w *Worker) announcePayment(ctx context.Context, pr *domain.PolicyRequest) error {
	event := domain.Event{
		Type:            domain.EventPaymentRequested,
		PolicyRequestID: pr.ID,
		CustomerID:      pr.CustomerID,
		Status:          pr.Status,
		Timestamp:       time.Now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return w.bus.Publish(ctx, domain.TopicPolicyEvents, domain.KeyPaymentRequested, payload)
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("worker stopped")
	return nil
}
