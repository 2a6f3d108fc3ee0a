package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a policy request id is unknown.
	ErrNotFound = errors.New("policy request not found")

	// ErrInvalidInput marks malformed or missing required fields.
	ErrInvalidInput = errors.New("invalid input")

	// ErrVersionConflict is returned by the repository when an update
	// carries a stale version token.
	ErrVersionConflict = errors.New("version conflict")
)

// InvalidTransitionError reports a status transition that is not in the
// lifecycle table. The orchestrator performs no mutation when it occurs.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	from := string(e.From)
	if from == "" {
		from = "none"
	}
	return fmt.Sprintf("invalid status transition from %s to %s", from, e.To)
}

// Business rule codes carried by RuleViolationError.
const (
	CodeMissingRiskAnalysis  = "MISSING_RISK_ANALYSIS"
	CodePaymentFailed        = "PAYMENT_FAILED"
	CodeSubscriptionError    = "SUBSCRIPTION_ERROR"
	CodeCannotCancelApproved = "CANNOT_CANCEL_APPROVED"
)

// RuleViolationError is a named business-rule violation. Depending on the
// rule it may be surfaced to the caller after the entity has already been
// transitioned (payment failure, subscription error) or before any
// mutation (missing risk analysis, cancel after approval).
type RuleViolationError struct {
	Code    string
	Message string
}

func (e *RuleViolationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsRuleViolation reports whether err is a RuleViolationError with the
// given code.
func IsRuleViolation(err error, code string) bool {
	var rv *RuleViolationError
	return errors.As(err, &rv) && rv.Code == code
}
