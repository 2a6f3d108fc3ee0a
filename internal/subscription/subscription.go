// Package subscription provides subscription issuer implementations.
package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// New creates a subscription issuer based on configuration.
func New(cfg domain.SubscriptionConfig, bus domain.EventBus) (domain.SubscriptionIssuer, error) {
	switch cfg.Mode {
	case "", "static":
		issuer := &StaticIssuer{}
		if cfg.StaticError != "" {
			issuer.Err = errors.New(cfg.StaticError)
		}
		return issuer, nil

	case "bus":
		if bus == nil {
			return nil, errors.New("bus subscription issuer requires an event bus")
		}
		timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		return &BusIssuer{bus: bus, timeout: timeout}, nil

	default:
		return nil, fmt.Errorf("unsupported subscription mode: %s", cfg.Mode)
	}
}

// StaticIssuer issues every subscription, or fails every one when Err is
// set. Used in the Community tier and in tests.
type StaticIssuer struct {
	Err error
}

func (i *StaticIssuer) Issue(ctx context.Context, pr *domain.PolicyRequest) error {
	return i.Err
}

type issueRequest struct {
	PolicyRequestID string          `json:"policyRequestId"`
	CustomerID      string          `json:"customerId"`
	ProductID       string          `json:"productId"`
	Category        domain.Category `json:"category"`
	InsuredAmount   float64         `json:"insuredAmount"`
}

type issueReply struct {
	Issued bool   `json:"issued"`
	Reason string `json:"reason,omitempty"`
}

// BusIssuer issues subscriptions through a request-reply exchange on the
// subscription topic. Both transport failures and an issued=false reply
// surface as errors; the orchestrator decides what a failure means.
type BusIssuer struct {
	bus     domain.EventBus
	timeout time.Duration
}

func (i *BusIssuer) Issue(ctx context.Context, pr *domain.PolicyRequest) error {
	payload, err := json.Marshal(issueRequest{
		PolicyRequestID: pr.ID,
		CustomerID:      pr.CustomerID,
		ProductID:       pr.ProductID,
		Category:        pr.Category,
		InsuredAmount:   pr.InsuredAmount,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal issue request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	data, err := i.bus.Request(reqCtx, domain.TopicSubscriptionRequest, domain.KeyApproved, payload)
	if err != nil {
		return fmt.Errorf("subscription issuer request failed: %w", err)
	}

	var reply issueReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return fmt.Errorf("malformed subscription issuer reply: %w", err)
	}

	if !reply.Issued {
		if reply.Reason == "" {
			reply.Reason = "subscription declined"
		}
		return errors.New(reply.Reason)
	}
	return nil
}
