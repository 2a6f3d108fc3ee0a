// Package domain defines the core types and interfaces for Kestrel.
package domain

import (
	"time"
)

// Status is the lifecycle state of a policy request.
type Status string

const (
	StatusReceived  Status = "RECEIVED"
	StatusValidated Status = "VALIDATED"
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
	StatusCancelled Status = "CANCELLED"
)

// Category is the insurance product line of a policy request.
type Category string

const (
	CategoryAuto        Category = "AUTO"
	CategoryLife        Category = "LIFE"
	CategoryResidential Category = "RESIDENTIAL"
	CategoryTravel      Category = "TRAVEL"
)

// SalesChannel is the channel the request originated from.
type SalesChannel string

const (
	ChannelMobile   SalesChannel = "MOBILE"
	ChannelWhatsApp SalesChannel = "WHATSAPP"
	ChannelWebsite  SalesChannel = "WEBSITE"
	ChannelBranch   SalesChannel = "BRANCH"
)

// PaymentMethod is how the customer intends to pay the premium.
type PaymentMethod string

const (
	PaymentCreditCard   PaymentMethod = "CREDIT_CARD"
	PaymentDebitAccount PaymentMethod = "DEBIT_ACCOUNT"
	PaymentBoleto       PaymentMethod = "BOLETO"
	PaymentPix          PaymentMethod = "PIX"
)

// PolicyRequest is the aggregate root of the underwriting workflow.
// It is mutated only through the workflow orchestrator; Version is a
// monotonic token checked-and-incremented by the repository on update.
type PolicyRequest struct {
	ID                        string             `json:"id"`
	CustomerID                string             `json:"customerId"`
	ProductID                 string             `json:"productId"`
	Category                  Category           `json:"category"`
	SalesChannel              SalesChannel       `json:"salesChannel"`
	PaymentMethod             PaymentMethod      `json:"paymentMethod"`
	TotalMonthlyPremiumAmount float64            `json:"totalMonthlyPremiumAmount"`
	InsuredAmount             float64            `json:"insuredAmount"`
	Coverages                 map[string]float64 `json:"coverages"`
	Assistances               []string           `json:"assistances"`
	Status                    Status             `json:"status"`
	RiskAnalysis              *RiskAnalysis      `json:"riskAnalysis,omitempty"`
	FinishedAt                *time.Time         `json:"finishedAt,omitempty"`
	Version                   int64              `json:"version"`
	CreatedAt                 time.Time          `json:"createdAt"`
	UpdatedAt                 time.Time          `json:"updatedAt"`
}

// TotalCoverage returns the sum of all declared coverage amounts.
// Entries contribute as-is; there is no per-entry positivity check.
func (p *PolicyRequest) TotalCoverage() float64 {
	var total float64
	for _, amount := range p.Coverages {
		total += amount
	}
	return total
}

// StatusHistoryEntry is one immutable record of a status transition.
// The very first RECEIVED entry is a creation marker and carries no
// previous status.
type StatusHistoryEntry struct {
	ID              string    `json:"id"`
	PolicyRequestID string    `json:"policyRequestId"`
	PreviousStatus  Status    `json:"previousStatus,omitempty"`
	NewStatus       Status    `json:"newStatus"`
	Reason          string    `json:"reason,omitempty"`
	ChangedAt       time.Time `json:"changedAt"`
}
