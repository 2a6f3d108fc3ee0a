package domain

import "time"

// EventType discriminates the domain event envelope.
type EventType string

const (
	EventPolicyRequestCreated EventType = "POLICY_REQUEST_CREATED"
	EventPolicyValidated      EventType = "POLICY_VALIDATED"
	EventPolicyRejected       EventType = "POLICY_REJECTED"
	EventSubscriptionApproved EventType = "SUBSCRIPTION_APPROVED"
	EventPolicyCancelled      EventType = "POLICY_CANCELLED"
	EventPaymentProcessed     EventType = "PAYMENT_PROCESSED"
	EventPaymentRejected      EventType = "PAYMENT_REJECTED"
	EventPaymentRequested     EventType = "PAYMENT_REQUESTED"
)

// Event is the single tagged-variant envelope for every domain event.
type Event struct {
	Type            EventType `json:"type"`
	PolicyRequestID string    `json:"policyRequestId"`
	CustomerID      string    `json:"customerId"`
	Status          Status    `json:"status"`
	Timestamp       time.Time `json:"timestamp"`
}

// Routing keys for the policy events topic.
const (
	KeyCreated          = "created"
	KeyValidated        = "validated"
	KeyRejected         = "rejected"
	KeyApproved         = "approved"
	KeyCancelled        = "cancelled"
	KeyProcessed        = "processed"
	KeyPaymentRequested = "payment-requested"
	KeyStatusChanged    = "status-changed"
)

// RoutingKeyFor maps a new status to its event routing key. Statuses
// without a dedicated key fall back to the generic status-changed key.
func RoutingKeyFor(status Status) string {
	switch status {
	case StatusValidated:
		return KeyValidated
	case StatusRejected:
		return KeyRejected
	case StatusApproved:
		return KeyApproved
	case StatusCancelled:
		return KeyCancelled
	case StatusPending:
		return KeyProcessed
	default:
		return KeyStatusChanged
	}
}

// EventTypeFor maps a new status to the event emitted by a default
// transition. Payment outcomes override this at the call site.
func EventTypeFor(status Status) EventType {
	switch status {
	case StatusValidated:
		return EventPolicyValidated
	case StatusRejected:
		return EventPolicyRejected
	case StatusApproved:
		return EventSubscriptionApproved
	case StatusCancelled:
		return EventPolicyCancelled
	case StatusPending:
		return EventPaymentProcessed
	default:
		return EventPolicyRequestCreated
	}
}
