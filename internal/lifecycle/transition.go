// Package lifecycle implements the policy-request state machine and the
// append-only status history ledger. The transition table lives here and
// only here; every other layer asks this package.
package lifecycle

import (
	"github.com/opensource-finance/kestrel/internal/domain"
)

// transitions is the directed transition table. A missing entry means no
// outgoing transition is legal.
var transitions = map[domain.Status][]domain.Status{
	domain.StatusReceived:  {domain.StatusValidated, domain.StatusRejected, domain.StatusCancelled},
	domain.StatusValidated: {domain.StatusPending, domain.StatusRejected, domain.StatusCancelled},
	domain.StatusPending:   {domain.StatusApproved, domain.StatusRejected, domain.StatusCancelled},
}

// CanTransition reports whether the move from one status to another is
// legal. An empty from status means a new request, for which only
// RECEIVED is legal. Self-transitions are always illegal, including from
// a terminal status to itself.
func CanTransition(from, to domain.Status) bool {
	if to == from {
		return false
	}
	if from == "" {
		return to == domain.StatusReceived
	}
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status has no legal outgoing transition.
func IsTerminal(status domain.Status) bool {
	switch status {
	case domain.StatusApproved, domain.StatusRejected, domain.StatusCancelled:
		return true
	default:
		return false
	}
}
