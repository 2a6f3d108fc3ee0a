package subscription

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestStaticIssuer(t *testing.T) {
	ctx := context.Background()
	pr := &domain.PolicyRequest{ID: "pr-001"}

	t.Run("Issues", func(t *testing.T) {
		i, err := New(domain.SubscriptionConfig{}, nil)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		if err := i.Issue(ctx, pr); err != nil {
			t.Errorf("expected success, got %v", err)
		}
	})

	t.Run("ConfiguredFailure", func(t *testing.T) {
		i, err := New(domain.SubscriptionConfig{StaticError: "issuer offline"}, nil)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		err = i.Issue(ctx, pr)
		if err == nil || !strings.Contains(err.Error(), "issuer offline") {
			t.Errorf("expected configured failure, got %v", err)
		}
	})
}

func TestBusIssuer(t *testing.T) {
	ctx := context.Background()
	b := bus.NewChannelBus(100)
	defer b.Close()

	// Issuer stand-in: decline LIFE requests.
	_, err := b.Subscribe(ctx, domain.TopicSubscriptionRequest, domain.KeyApproved, func(ctx context.Context, msg *domain.Message) error {
		var req struct {
			Category domain.Category `json:"category"`
		}
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return err
		}
		reply, _ := json.Marshal(map[string]any{
			"issued": req.Category != domain.CategoryLife,
			"reason": "manual underwriting required",
		})
		return b.Publish(ctx, domain.TopicSubscriptionRequest, bus.ReplyKey(msg), reply)
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	issuer, err := New(domain.SubscriptionConfig{Mode: "bus", TimeoutSeconds: 2}, b)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	t.Run("Issued", func(t *testing.T) {
		pr := &domain.PolicyRequest{ID: "pr-auto", Category: domain.CategoryAuto}
		if err := issuer.Issue(ctx, pr); err != nil {
			t.Errorf("expected success, got %v", err)
		}
	})

	t.Run("Declined", func(t *testing.T) {
		pr := &domain.PolicyRequest{ID: "pr-life", Category: domain.CategoryLife}
		err := issuer.Issue(ctx, pr)
		if err == nil || !strings.Contains(err.Error(), "manual underwriting") {
			t.Errorf("expected decline reason, got %v", err)
		}
	})
}

func TestNewSubscription(t *testing.T) {
	t.Run("BusRequiresBus", func(t *testing.T) {
		if _, err := New(domain.SubscriptionConfig{Mode: "bus"}, nil); err == nil {
			t.Error("expected error without bus")
		}
	})

	t.Run("UnsupportedMode", func(t *testing.T) {
		if _, err := New(domain.SubscriptionConfig{Mode: "fax"}, nil); err == nil {
			t.Error("expected error for unsupported mode")
		}
	})
}
