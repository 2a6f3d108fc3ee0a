// Package payment provides payment processor implementations.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// New creates a payment processor based on configuration.
func New(cfg domain.PaymentConfig, bus domain.EventBus) (domain.PaymentProcessor, error) {
	switch cfg.Mode {
	case "", "static":
		return &StaticProcessor{Approve: cfg.StaticApprove}, nil

	case "bus":
		if bus == nil {
			return nil, errors.New("bus payment processor requires an event bus")
		}
		timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		return &BusProcessor{bus: bus, timeout: timeout}, nil

	default:
		return nil, fmt.Errorf("unsupported payment mode: %s", cfg.Mode)
	}
}

// StaticProcessor resolves every charge to a fixed outcome. Used in the
// Community tier and in tests.
type StaticProcessor struct {
	Approve bool
	Err     error
}

func (p *StaticProcessor) Process(ctx context.Context, pr *domain.PolicyRequest) (bool, error) {
	if p.Err != nil {
		return false, p.Err
	}
	return p.Approve, nil
}

// chargeRequest is the wire format sent to the payment gateway over the
// bus.
type chargeRequest struct {
	PolicyRequestID string               `json:"policyRequestId"`
	CustomerID      string               `json:"customerId"`
	Amount          float64              `json:"amount"`
	PaymentMethod   domain.PaymentMethod `json:"paymentMethod"`
}

type chargeReply struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}

// BusProcessor charges the first installment through a request-reply
// exchange on the payment topic. A gateway decline comes back as
// approved=false; transport failures surface as errors.
type BusProcessor struct {
	bus     domain.EventBus
	timeout time.Duration
}

func (p *BusProcessor) Process(ctx context.Context, pr *domain.PolicyRequest) (bool, error) {
	payload, err := json.Marshal(chargeRequest{
		PolicyRequestID: pr.ID,
		CustomerID:      pr.CustomerID,
		Amount:          pr.TotalMonthlyPremiumAmount,
		PaymentMethod:   pr.PaymentMethod,
	})
	if err != nil {
		return false, fmt.Errorf("failed to marshal charge request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	data, err := p.bus.Request(reqCtx, domain.TopicPaymentRequest, domain.KeyPaymentRequested, payload)
	if err != nil {
		return false, fmt.Errorf("payment gateway request failed: %w", err)
	}

	var reply chargeReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return false, fmt.Errorf("malformed payment gateway reply: %w", err)
	}

	return reply.Approved, nil
}
