package lifecycle

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// NewHistoryEntry builds one immutable ledger record for a transition.
// An empty previous status is legal only for the creation marker (the
// first RECEIVED entry). ChangedAt defaults to the current time when the
// caller passes the zero value. Persistence is the orchestrator's job.
func NewHistoryEntry(policyRequestID string, previous, next domain.Status, reason string, changedAt time.Time) (*domain.StatusHistoryEntry, error) {
	if policyRequestID == "" {
		return nil, fmt.Errorf("%w: policyRequestId is required", domain.ErrInvalidInput)
	}
	if next == "" {
		return nil, fmt.Errorf("%w: new status is required", domain.ErrInvalidInput)
	}
	if !CanTransition(previous, next) {
		return nil, &domain.InvalidTransitionError{From: previous, To: next}
	}
	if changedAt.IsZero() {
		changedAt = time.Now().UTC()
	}
	return &domain.StatusHistoryEntry{
		ID:              uuid.New().String(),
		PolicyRequestID: policyRequestID,
		PreviousStatus:  previous,
		NewStatus:       next,
		Reason:          reason,
		ChangedAt:       changedAt,
	}, nil
}
