package lifecycle

import (
	"errors"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestNewHistoryEntry(t *testing.T) {
	t.Run("LegalTransition", func(t *testing.T) {
		at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		entry, err := NewHistoryEntry("pr-001", domain.StatusReceived, domain.StatusValidated, "amount within limit", at)
		if err != nil {
			t.Fatalf("NewHistoryEntry failed: %v", err)
		}
		if entry.ID == "" {
			t.Error("expected generated entry id")
		}
		if entry.PreviousStatus != domain.StatusReceived || entry.NewStatus != domain.StatusValidated {
			t.Errorf("unexpected statuses: %s -> %s", entry.PreviousStatus, entry.NewStatus)
		}
		if !entry.ChangedAt.Equal(at) {
			t.Errorf("expected ChangedAt %v, got %v", at, entry.ChangedAt)
		}
		if entry.Reason != "amount within limit" {
			t.Errorf("unexpected reason %q", entry.Reason)
		}
	})

	t.Run("CreationMarker", func(t *testing.T) {
		entry, err := NewHistoryEntry("pr-001", "", domain.StatusReceived, "", time.Time{})
		if err != nil {
			t.Fatalf("creation marker failed: %v", err)
		}
		if entry.PreviousStatus != "" {
			t.Errorf("creation marker should have no previous status, got %s", entry.PreviousStatus)
		}
		if entry.ChangedAt.IsZero() {
			t.Error("ChangedAt should default to now")
		}
	})

	t.Run("IllegalTransition", func(t *testing.T) {
		_, err := NewHistoryEntry("pr-001", domain.StatusReceived, domain.StatusApproved, "", time.Time{})
		var ite *domain.InvalidTransitionError
		if !errors.As(err, &ite) {
			t.Fatalf("expected InvalidTransitionError, got %v", err)
		}
		if ite.From != domain.StatusReceived || ite.To != domain.StatusApproved {
			t.Errorf("error should name both states, got %v", ite)
		}
	})

	t.Run("SameStatus", func(t *testing.T) {
		_, err := NewHistoryEntry("pr-001", domain.StatusPending, domain.StatusPending, "", time.Time{})
		var ite *domain.InvalidTransitionError
		if !errors.As(err, &ite) {
			t.Fatalf("expected InvalidTransitionError for self transition, got %v", err)
		}
	})

	t.Run("MissingRequestID", func(t *testing.T) {
		_, err := NewHistoryEntry("", domain.StatusReceived, domain.StatusValidated, "", time.Time{})
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("MissingNewStatus", func(t *testing.T) {
		_, err := NewHistoryEntry("pr-001", domain.StatusReceived, "", "", time.Time{})
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput, got %v", err)
		}
	})
}
