package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/fraud"
	"github.com/opensource-finance/kestrel/internal/workflow"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	orch     *workflow.Orchestrator
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	analyzer *fraud.CELAnalyzer
	version  string
}

// NewHandler creates a new API handler. The analyzer is nil when fraud
// analysis is delegated to a remote provider.
func NewHandler(orch *workflow.Orchestrator, repo domain.Repository, cache domain.Cache, bus domain.EventBus, analyzer *fraud.CELAnalyzer, version string) *Handler {
	return &Handler{
		orch:     orch,
		repo:     repo,
		cache:    cache,
		bus:      bus,
		analyzer: analyzer,
		version:  version,
	}
}

// CreatePolicyRequest is the request body for POST /policy-requests.
type CreatePolicyRequest struct {
	CustomerID                string               `json:"customerId"`
	ProductID                 string               `json:"productId"`
	Category                  domain.Category      `json:"category"`
	SalesChannel              domain.SalesChannel  `json:"salesChannel"`
	PaymentMethod             domain.PaymentMethod `json:"paymentMethod"`
	TotalMonthlyPremiumAmount float64              `json:"totalMonthlyPremiumAmount"`
	InsuredAmount             float64              `json:"insuredAmount"`
	Coverages                 map[string]float64   `json:"coverages"`
	Assistances               []string             `json:"assistances,omitempty"`
}

// CancelRequest is the request body for POST /policy-requests/{id}/cancel.
type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

// Create handles POST /policy-requests.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreatePolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	pr, err := h.orch.Create(r.Context(), &domain.PolicyRequest{
		CustomerID:                req.CustomerID,
		ProductID:                 req.ProductID,
		Category:                  req.Category,
		SalesChannel:              req.SalesChannel,
		PaymentMethod:             req.PaymentMethod,
		TotalMonthlyPremiumAmount: req.TotalMonthlyPremiumAmount,
		InsuredAmount:             req.InsuredAmount,
		Coverages:                 req.Coverages,
		Assistances:               req.Assistances,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, pr)
}

// Get handles GET /policy-requests/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	pr, err := h.orch.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pr)
}

// History handles GET /policy-requests/{id}/history.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entries, err := h.orch.History(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"policyRequestId": id,
		"history":         entries,
		"count":           len(entries),
	})
}

// ListByCustomer handles GET /customers/{id}/policy-requests.
func (h *Handler) ListByCustomer(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "id")
	requests, err := h.orch.GetByCustomer(r.Context(), customerID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"customerId":     customerID,
		"policyRequests": requests,
		"count":          len(requests),
	})
}

// RunFraudAnalysis handles POST /policy-requests/{id}/fraud-analysis.
func (h *Handler) RunFraudAnalysis(w http.ResponseWriter, r *http.Request) {
	pr, err := h.orch.RunFraudAnalysis(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pr)
}

// ProcessPayment handles POST /policy-requests/{id}/payment.
func (h *Handler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	pr, err := h.orch.ProcessPayment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		// A payment decline still carries the rejected entity.
		if domain.IsRuleViolation(err, domain.CodePaymentFailed) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":         err.Error(),
				"policyRequest": pr,
			})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pr)
}

// ProcessSubscription handles POST /policy-requests/{id}/subscription.
func (h *Handler) ProcessSubscription(w http.ResponseWriter, r *http.Request) {
	pr, err := h.orch.ProcessSubscription(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if domain.IsRuleViolation(err, domain.CodeSubscriptionError) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":         err.Error(),
				"policyRequest": pr,
			})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pr)
}

// Cancel handles POST /policy-requests/{id}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if r.Body != nil {
		// An empty body means no reason given.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	pr, err := h.orch.Cancel(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pr)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check bus health
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListRiskRules returns all rules loaded in the embedded analyzer.
// Rules are loaded from the database at startup and can be reloaded via
// POST /risk-rules/reload.
func (h *Handler) ListRiskRules(w http.ResponseWriter, r *http.Request) {
	if h.analyzer == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "embedded analyzer not available",
		})
		return
	}

	loaded := h.analyzer.LoadedRules()
	writeJSON(w, http.StatusOK, map[string]any{
		"rules":  loaded,
		"count":  len(loaded),
		"source": "database",
	})
}

// CreateRiskRuleRequest is the request body for creating a risk rule.
type CreateRiskRuleRequest struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Expression  string  `json:"expression"`
	Occurrence  string  `json:"occurrenceType"`
	Weight      float64 `json:"weight"`
	Enabled     bool    `json:"enabled"`
}

// CreateRiskRule creates a new rule and saves it to the database. After
// saving, call POST /risk-rules/reload to hot-reload into the analyzer.
func (h *Handler) CreateRiskRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.analyzer == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "embedded analyzer not available",
		})
		return
	}

	var req CreateRiskRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	// Validate
	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	rule := &domain.RiskRule{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Expression:  req.Expression,
		Occurrence:  req.Occurrence,
		Weight:      req.Weight,
		Enabled:     req.Enabled,
	}

	// Validate CEL expression by attempting to load
	if err := h.analyzer.LoadRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	// Persist to repository
	if h.repo != nil {
		if err := h.repo.SaveRiskRule(ctx, rule); err != nil {
			slog.Error("failed to save risk rule", "id", rule.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	slog.Info("risk rule created", "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule":    rule,
		"message": "Rule created. Call POST /risk-rules/reload to apply changes.",
	})
}

// ReloadRiskRules reloads all rules from the database into the analyzer.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadRiskRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil || h.analyzer == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository or analyzer not available",
		})
		return
	}

	dbRules, err := h.repo.ListRiskRules(ctx)
	if err != nil {
		slog.Error("failed to list risk rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := h.analyzer.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload risk rules into analyzer", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("risk rules reloaded from database", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   len(dbRules),
	})
}

// writeError maps domain errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	var ite *domain.InvalidTransitionError
	var rv *domain.RuleViolationError

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})

	case errors.Is(err, domain.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})

	case errors.Is(err, domain.ErrVersionConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})

	case errors.As(err, &ite):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})

	case errors.As(err, &rv):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": rv.Message,
			"code":  rv.Code,
		})

	default:
		slog.Error("unhandled error", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "internal server error",
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
