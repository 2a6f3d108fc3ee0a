package payment

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestStaticProcessor(t *testing.T) {
	ctx := context.Background()
	pr := &domain.PolicyRequest{ID: "pr-001", TotalMonthlyPremiumAmount: 99.90}

	t.Run("Approve", func(t *testing.T) {
		p := &StaticProcessor{Approve: true}
		ok, err := p.Process(ctx, pr)
		if err != nil || !ok {
			t.Errorf("expected approval, got ok=%v err=%v", ok, err)
		}
	})

	t.Run("Decline", func(t *testing.T) {
		p := &StaticProcessor{Approve: false}
		ok, err := p.Process(ctx, pr)
		if err != nil || ok {
			t.Errorf("expected decline, got ok=%v err=%v", ok, err)
		}
	})

	t.Run("Error", func(t *testing.T) {
		p := &StaticProcessor{Err: errors.New("gateway down")}
		_, err := p.Process(ctx, pr)
		if err == nil {
			t.Error("expected error")
		}
	})
}

func TestBusProcessor(t *testing.T) {
	ctx := context.Background()
	b := bus.NewChannelBus(100)
	defer b.Close()

	// Gateway stand-in: approve charges under 1000.
	_, err := b.Subscribe(ctx, domain.TopicPaymentRequest, domain.KeyPaymentRequested, func(ctx context.Context, msg *domain.Message) error {
		var req struct {
			Amount float64 `json:"amount"`
		}
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return err
		}
		reply, _ := json.Marshal(map[string]any{"approved": req.Amount < 1000})
		return b.Publish(ctx, domain.TopicPaymentRequest, bus.ReplyKey(msg), reply)
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	p, err := New(domain.PaymentConfig{Mode: "bus", TimeoutSeconds: 2}, b)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	t.Run("Approved", func(t *testing.T) {
		ok, err := p.Process(ctx, &domain.PolicyRequest{ID: "pr-ok", TotalMonthlyPremiumAmount: 120})
		if err != nil {
			t.Fatalf("Process failed: %v", err)
		}
		if !ok {
			t.Error("expected approval")
		}
	})

	t.Run("Declined", func(t *testing.T) {
		ok, err := p.Process(ctx, &domain.PolicyRequest{ID: "pr-big", TotalMonthlyPremiumAmount: 5000})
		if err != nil {
			t.Fatalf("Process failed: %v", err)
		}
		if ok {
			t.Error("expected decline")
		}
	})
}

func TestNewPayment(t *testing.T) {
	t.Run("DefaultsToStatic", func(t *testing.T) {
		p, err := New(domain.PaymentConfig{StaticApprove: true}, nil)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		if _, ok := p.(*StaticProcessor); !ok {
			t.Error("expected StaticProcessor")
		}
	})

	t.Run("BusRequiresBus", func(t *testing.T) {
		if _, err := New(domain.PaymentConfig{Mode: "bus"}, nil); err == nil {
			t.Error("expected error without bus")
		}
	})

	t.Run("UnsupportedMode", func(t *testing.T) {
		if _, err := New(domain.PaymentConfig{Mode: "card-terminal"}, nil); err == nil {
			t.Error("expected error for unsupported mode")
		}
	})
}
