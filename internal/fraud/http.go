package fraud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// HTTPProvider calls a remote fraud-scoring service. The response must
// satisfy the collaborator contract; a malformed response is returned as
// an error and resolves to rejection in the orchestrator.
type HTTPProvider struct {
	url    string
	client *http.Client
}

// NewHTTPProvider creates a remote fraud-analysis provider.
func NewHTTPProvider(cfg domain.FraudConfig) (*HTTPProvider, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("fraud provider url is required")
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPProvider{
		url:    cfg.URL,
		client: &http.Client{Timeout: timeout},
	}, nil
}

type analyzeRequest struct {
	PolicyRequestID string `json:"policyRequestId"`
	CustomerID      string `json:"customerId"`
}

// Analyze posts the request identifiers to the remote scorer and
// validates the returned analysis.
func (p *HTTPProvider) Analyze(ctx context.Context, pr *domain.PolicyRequest) (*domain.RiskAnalysis, error) {
	if pr == nil {
		return nil, fmt.Errorf("%w: policy request is required", domain.ErrInvalidInput)
	}

	body, err := json.Marshal(analyzeRequest{
		PolicyRequestID: pr.ID,
		CustomerID:      pr.CustomerID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal analysis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build analysis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fraud provider call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fraud provider returned status %d", resp.StatusCode)
	}

	var analysis domain.RiskAnalysis
	if err := json.NewDecoder(resp.Body).Decode(&analysis); err != nil {
		return nil, fmt.Errorf("failed to decode fraud provider response: %w", err)
	}

	if err := analysis.Validate(); err != nil {
		return nil, fmt.Errorf("malformed fraud provider response: %w", err)
	}

	return &analysis, nil
}
