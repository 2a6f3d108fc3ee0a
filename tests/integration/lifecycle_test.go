//go:build integration
// +build integration

// Package integration provides end-to-end tests for the Kestrel policy
// request workflow engine.
//
// These tests verify the COMPLETE request lifecycle:
//
//	Create → Fraud Analysis → Payment → Subscription → Approved
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// UNDERSTANDING THE DOMAIN:
//
// 1. POLICY REQUEST: A customer's application for an insurance product.
//
// 2. STATUS: Every request moves through a fixed state machine:
//   - RECEIVED  → just created, nothing verified yet
//   - VALIDATED → risk analysis done, amounts within approval limits
//   - PENDING   → payment charged, waiting for the policy to be issued
//   - APPROVED  → subscription issued, terminal
//   - REJECTED / CANCELLED → terminal failure states
//
// 3. RISK CLASSIFICATION: The fraud analysis classifies the customer as
//    REGULAR, PREFERRED, HIGH_RISK or NO_INFORMATION. Each class has its
//    own insured-amount ceiling per product category. With no risk rules
//    seeded the analyzer returns NO_INFORMATION, whose limits are:
//
// | Category   | Limit    |
// |------------|----------|
// | LIFE       | $100,000 |
// | everything | $50,000  |
//
// 4. LEDGER: Every status change is recorded in an append-only history,
//    starting with a creation marker for RECEIVED.
//
// NOTE: These tests assume a default (static approve) payment processor
// and subscription issuer, i.e. a Community-tier Kestrel with no risk
// rules configured.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL string
}

func getTestConfig() TestConfig {
	baseURL := os.Getenv("KESTREL_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return TestConfig{BaseURL: baseURL}
}

// ============================================================================
// API Request/Response Types (matching Kestrel's API contract)
// ============================================================================

// CreateRequest is the body sent to POST /policy-requests
type CreateRequest struct {
	CustomerID                string             `json:"customerId"`
	ProductID                 string             `json:"productId"`
	Category                  string             `json:"category"`
	SalesChannel              string             `json:"salesChannel"`
	PaymentMethod             string             `json:"paymentMethod"`
	TotalMonthlyPremiumAmount float64            `json:"totalMonthlyPremiumAmount"`
	InsuredAmount             float64            `json:"insuredAmount"`
	Coverages                 map[string]float64 `json:"coverages"`
}

// PolicyResponse is what the policy-request endpoints return
type PolicyResponse struct {
	ID            string         `json:"id"`
	CustomerID    string         `json:"customerId"`
	Status        string         `json:"status"`
	InsuredAmount float64        `json:"insuredAmount"`
	Version       int64          `json:"version"`
	RiskAnalysis  *RiskAnalysis  `json:"riskAnalysis,omitempty"`
	FinishedAt    *time.Time     `json:"finishedAt,omitempty"`
	History       []HistoryEntry `json:"-"`
}

type RiskAnalysis struct {
	Classification string `json:"classification"`
}

type HistoryEntry struct {
	PreviousStatus string `json:"previousStatus"`
	NewStatus      string `json:"newStatus"`
	Reason         string `json:"reason"`
}

type HistoryResponse struct {
	History []HistoryEntry `json:"history"`
	Count   int            `json:"count"`
}

// ============================================================================
// Test Helper Functions
// ============================================================================

func doPost(t *testing.T, config TestConfig, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
	}

	httpReq, err := http.NewRequest("POST", config.BaseURL+path, &buf)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}

	return resp, respBody
}

func createPolicyRequest(t *testing.T, config TestConfig, req CreateRequest) PolicyResponse {
	t.Helper()

	resp, body := doPost(t, config, "/policy-requests", req)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.StatusCode, string(body))
	}

	var result PolicyResponse
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("Failed to unmarshal response: %v (body: %s)", err, string(body))
	}
	return result
}

func transition(t *testing.T, config TestConfig, id, action string, wantStatus int) PolicyResponse {
	t.Helper()

	resp, body := doPost(t, config, "/policy-requests/"+id+"/"+action, nil)
	if resp.StatusCode != wantStatus {
		t.Fatalf("Expected status %d for %s, got %d: %s", wantStatus, action, resp.StatusCode, string(body))
	}

	var result PolicyResponse
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("Failed to unmarshal %s response: %v (body: %s)", action, err, string(body))
	}
	return result
}

func smallAutoRequest(customerID string) CreateRequest {
	return CreateRequest{
		CustomerID:                customerID,
		ProductID:                 "prod-auto-001",
		Category:                  "AUTO",
		SalesChannel:              "MOBILE",
		PaymentMethod:             "CREDIT_CARD",
		TotalMonthlyPremiumAmount: 85.00,
		InsuredAmount:             40000.00, // Under the $50,000 NO_INFORMATION limit
		Coverages:                 map[string]float64{"collision": 40000.00},
	}
}

// ============================================================================
// SCENARIO 1: Full Happy Path (Create → Approved)
// ============================================================================

func TestFullLifecycle_Approved(t *testing.T) {
	/*
	   SCENARIO: A $40,000 AUTO request from a customer with no risk signals

	   EXPECTED BEHAVIOR:
	   - Create       → RECEIVED (status is forced server-side)
	   - Fraud check  → NO_INFORMATION, $40,000 < $50,000 limit → VALIDATED
	   - Payment      → static processor approves → PENDING
	   - Subscription → static issuer succeeds → APPROVED, finishedAt set
	   - History      → 4 entries, most recent first, creation marker last
	*/
	config := getTestConfig()

	created := createPolicyRequest(t, config, smallAutoRequest("it-happy-001"))
	if created.Status != "RECEIVED" {
		t.Fatalf("Expected RECEIVED after create, got %s", created.Status)
	}

	analyzed := transition(t, config, created.ID, "fraud-analysis", http.StatusOK)
	if analyzed.Status != "VALIDATED" {
		t.Fatalf("Expected VALIDATED after fraud analysis, got %s", analyzed.Status)
	}
	if analyzed.RiskAnalysis == nil {
		t.Error("Expected risk analysis attached after fraud analysis")
	}

	paid := transition(t, config, created.ID, "payment", http.StatusOK)
	if paid.Status != "PENDING" {
		t.Fatalf("Expected PENDING after payment, got %s", paid.Status)
	}

	approved := transition(t, config, created.ID, "subscription", http.StatusOK)
	if approved.Status != "APPROVED" {
		t.Fatalf("Expected APPROVED after subscription, got %s", approved.Status)
	}
	if approved.FinishedAt == nil {
		t.Error("Expected finishedAt on approved request")
	}

	// Verify the ledger
	resp, err := http.Get(config.BaseURL + "/policy-requests/" + created.ID + "/history")
	if err != nil {
		t.Fatalf("History request failed: %v", err)
	}
	defer resp.Body.Close()

	var history HistoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		t.Fatalf("Failed to decode history: %v", err)
	}

	if history.Count != 4 {
		t.Errorf("Expected 4 ledger entries, got %d", history.Count)
	}
	// Display order is most recent first; the creation marker closes the list
	if len(history.History) > 0 && history.History[0].NewStatus != "APPROVED" {
		t.Errorf("Expected most recent entry first, got %s", history.History[0].NewStatus)
	}
	if n := len(history.History); n > 0 && history.History[n-1].NewStatus != "RECEIVED" {
		t.Errorf("Expected creation marker last, got %s", history.History[n-1].NewStatus)
	}

	t.Logf("✓ Full lifecycle: RECEIVED → VALIDATED → PENDING → APPROVED (%d ledger entries)", history.Count)
}

// ============================================================================
// SCENARIO 2: Over-Limit Rejection
// ============================================================================

func TestOverLimit_Rejected(t *testing.T) {
	/*
	   SCENARIO: A $2,000,000 AUTO request

	   EXPECTED BEHAVIOR:
	   - With no rules seeded the classification is NO_INFORMATION
	   - $2,000,000 exceeds every approval limit → REJECTED, terminal
	   - Further transitions are refused with 409
	*/
	config := getTestConfig()

	req := smallAutoRequest("it-overlimit-001")
	req.InsuredAmount = 2000000.00
	req.Coverages = map[string]float64{"collision": 2000000.00}

	created := createPolicyRequest(t, config, req)

	rejected := transition(t, config, created.ID, "fraud-analysis", http.StatusOK)
	if rejected.Status != "REJECTED" {
		t.Fatalf("Expected REJECTED for over-limit amount, got %s", rejected.Status)
	}
	if rejected.FinishedAt == nil {
		t.Error("Expected finishedAt on rejected request")
	}

	// Terminal state refuses further transitions
	resp, body := doPost(t, config, "/policy-requests/"+created.ID+"/payment", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409 for payment after rejection, got %d: %s", resp.StatusCode, string(body))
	}

	t.Logf("✓ Over-limit request rejected and locked: status=%s", rejected.Status)
}

// ============================================================================
// SCENARIO 3: Boundary Testing (Exactly at the Limit)
// ============================================================================

func TestExactLimit_Validated(t *testing.T) {
	/*
	   SCENARIO: An AUTO request insured for exactly $50,000

	   EXPECTED BEHAVIOR:
	   - NO_INFORMATION limits are inclusive (amount <= limit passes)
	   - $50,000 exactly → VALIDATED

	   WHY THIS TEST:
	   Boundary conditions catch off-by-one errors in limit comparisons.
	*/
	config := getTestConfig()

	req := smallAutoRequest("it-boundary-001")
	req.InsuredAmount = 50000.00
	req.Coverages = map[string]float64{"collision": 50000.00}

	created := createPolicyRequest(t, config, req)
	analyzed := transition(t, config, created.ID, "fraud-analysis", http.StatusOK)

	if analyzed.Status != "VALIDATED" {
		t.Errorf("Expected VALIDATED for exactly $50,000 (limit is inclusive), got %s", analyzed.Status)
	}

	t.Logf("✓ Boundary test passed: $50,000 exactly → status=%s", analyzed.Status)
}

// ============================================================================
// SCENARIO 4: Out-of-Order Transitions
// ============================================================================

func TestOutOfOrderTransitions_Conflict(t *testing.T) {
	/*
	   SCENARIO: Trying to skip lifecycle steps

	   EXPECTED BEHAVIOR:
	   - Payment on a RECEIVED request      → 409 (needs VALIDATED)
	   - Subscription on a RECEIVED request → 409 (needs PENDING)
	   - The request itself is left untouched in RECEIVED
	*/
	config := getTestConfig()

	created := createPolicyRequest(t, config, smallAutoRequest("it-order-001"))

	resp, body := doPost(t, config, "/policy-requests/"+created.ID+"/payment", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409 for payment before validation, got %d: %s", resp.StatusCode, string(body))
	}

	resp, body = doPost(t, config, "/policy-requests/"+created.ID+"/subscription", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409 for subscription before payment, got %d: %s", resp.StatusCode, string(body))
	}

	// Verify nothing moved
	getResp, err := http.Get(config.BaseURL + "/policy-requests/" + created.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	defer getResp.Body.Close()

	var current PolicyResponse
	json.NewDecoder(getResp.Body).Decode(&current)
	if current.Status != "RECEIVED" {
		t.Errorf("Expected request untouched in RECEIVED, got %s", current.Status)
	}

	t.Logf("✓ Out-of-order transitions refused, request still %s", current.Status)
}

// ============================================================================
// SCENARIO 5: Cancellation Rules
// ============================================================================

func TestCancellation(t *testing.T) {
	/*
	   SCENARIO: Cancellation is allowed from any non-terminal state but
	   never from APPROVED.

	   EXPECTED BEHAVIOR:
	   - Cancel from RECEIVED → 200, CANCELLED
	   - Cancel again         → 409 (terminal)
	   - Cancel an APPROVED request → 422 with code CANNOT_CANCEL_APPROVED
	*/
	config := getTestConfig()

	t.Run("FromReceived", func(t *testing.T) {
		created := createPolicyRequest(t, config, smallAutoRequest("it-cancel-001"))

		cancelled := transition(t, config, created.ID, "cancel", http.StatusOK)
		if cancelled.Status != "CANCELLED" {
			t.Fatalf("Expected CANCELLED, got %s", cancelled.Status)
		}

		resp, _ := doPost(t, config, "/policy-requests/"+created.ID+"/cancel", nil)
		if resp.StatusCode != http.StatusConflict {
			t.Errorf("Expected 409 for repeated cancel, got %d", resp.StatusCode)
		}
	})

	t.Run("ApprovedIsFinal", func(t *testing.T) {
		created := createPolicyRequest(t, config, smallAutoRequest("it-cancel-002"))
		transition(t, config, created.ID, "fraud-analysis", http.StatusOK)
		transition(t, config, created.ID, "payment", http.StatusOK)
		transition(t, config, created.ID, "subscription", http.StatusOK)

		resp, body := doPost(t, config, "/policy-requests/"+created.ID+"/cancel", nil)
		if resp.StatusCode != http.StatusUnprocessableEntity {
			t.Fatalf("Expected 422 for cancelling approved request, got %d: %s", resp.StatusCode, string(body))
		}

		var errResp map[string]string
		json.Unmarshal(body, &errResp)
		if errResp["code"] != "CANNOT_CANCEL_APPROVED" {
			t.Errorf("Expected code CANNOT_CANCEL_APPROVED, got %s", errResp["code"])
		}
	})

	t.Logf("✓ Cancellation rules enforced")
}

// ============================================================================
// SCENARIO 6: Input Validation
// ============================================================================

func TestInputValidation(t *testing.T) {
	/*
	   SCENARIO: Malformed create requests

	   EXPECTED: HTTP 400 Bad Request, nothing persisted
	*/
	config := getTestConfig()

	cases := []struct {
		name   string
		mutate func(*CreateRequest)
	}{
		{"MissingCustomer", func(r *CreateRequest) { r.CustomerID = "" }},
		{"MissingProduct", func(r *CreateRequest) { r.ProductID = "" }},
		{"ZeroPremium", func(r *CreateRequest) { r.TotalMonthlyPremiumAmount = 0 }},
		{"NegativeInsured", func(r *CreateRequest) { r.InsuredAmount = -1000 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := smallAutoRequest(fmt.Sprintf("it-invalid-%s", tc.name))
			tc.mutate(&req)

			resp, body := doPost(t, config, "/policy-requests", req)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d: %s", resp.StatusCode, string(body))
			}
		})
	}

	t.Logf("✓ Input validation rejects malformed requests")
}

// ============================================================================
// SCENARIO 7: Response Contract Verification
// ============================================================================

func TestResponseContract(t *testing.T) {
	/*
	   SCENARIO: Verify responses include all required fields

	   This ensures the API contract is stable for clients.
	*/
	config := getTestConfig()

	created := createPolicyRequest(t, config, smallAutoRequest("it-contract-001"))

	if created.ID == "" {
		t.Error("Missing id")
	}
	if created.CustomerID != "it-contract-001" {
		t.Errorf("Wrong customerId: %s", created.CustomerID)
	}
	if created.Version != 1 {
		t.Errorf("Expected version 1 on create, got %d", created.Version)
	}
	if created.FinishedAt != nil {
		t.Error("finishedAt must be unset on a fresh request")
	}

	// Terminal transition bumps the version via optimistic concurrency
	cancelled := transition(t, config, created.ID, "cancel", http.StatusOK)
	if cancelled.Version <= created.Version {
		t.Errorf("Expected version bump after transition, got %d -> %d", created.Version, cancelled.Version)
	}

	t.Logf("✓ Contract verified: id=%s, version %d → %d", created.ID[:8], created.Version, cancelled.Version)
}
