// Load generator for driving Kestrel through full policy-request lifecycles.
//
// Usage:
//   go run cmd/loadgen/main.go -url http://localhost:8080 -count 1000
//
// This tool:
//   1. Generates synthetic policy requests across product categories
//   2. Drives each through create -> fraud-analysis -> payment -> subscription
//   3. Tracks outcome distribution (approved / rejected / errored)
//   4. Reports per-stage latency and overall throughput
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// CreateRequest is the Kestrel API request format
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

// PolicyResponse is the subset of the Kestrel API response we track
type PolicyResponse struct {
	ID            string  `json:"id"`
	Status        string  `json:"status"`
	CustomerID    string  `json:"customerId"`
	InsuredAmount float64 `json:"insuredAmount"`
}

// Metrics tracks load run results
type Metrics struct {
	Approved  int64
	Rejected  int64
	Cancelled int64
	Errors    int64

	TotalProcessed int64

	CreateTimeMs     int64
	AnalysisTimeMs   int64
	SettlementTimeMs int64
}

var categories = []string{"AUTO", "HOME", "LIFE", "TRAVEL", "RESIDENTIAL"}
var channels = []string{"MOBILE", "WEBSITE", "WHATSAPP", "PHONE"}
var paymentMethods = []string{"CREDIT_CARD", "DEBIT_ACCOUNT", "PIX", "BOLETO"}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	count := flag.Int("count", 1000, "Number of policy requests to generate")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	seed := flag.Int64("seed", time.Now().UnixNano(), "Random seed")
	highAmountRate := flag.Float64("high-rate", 0.2, "Fraction of requests with amounts over approval limits")
	verbose := flag.Bool("verbose", false, "Print each request result")
	flag.Parse()

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║          KESTREL LOADGEN - Policy Request Lifecycle           ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nKestrel URL:  %s\n", *baseURL)
	fmt.Printf("Requests:     %d\n", *count)
	fmt.Printf("Workers:      %d\n", *workers)
	fmt.Printf("High Rate:    %.2f\n", *highAmountRate)
	fmt.Printf("Seed:         %d\n", *seed)
	fmt.Println()

	// Check Kestrel is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  cd kestrel && go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Kestrel is healthy")

	// Generate synthetic requests
	rng := rand.New(rand.NewSource(*seed))
	requests := generateRequests(rng, *count, *highAmountRate)
	fmt.Printf("✓ Generated %d synthetic policy requests\n", len(requests))

	fmt.Printf("\nRunning load with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runLoad(requests, *baseURL, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func generateRequests(rng *rand.Rand, count int, highRate float64) []CreateRequest {
	requests := make([]CreateRequest, 0, count)

	for i := 0; i < count; i++ {
		category := categories[rng.Intn(len(categories))]

		// Most requests stay under the NO_INFORMATION limits so a rule-less
		// analyzer still approves them. A configurable fraction goes over.
		insured := 1_000 + rng.Float64()*30_000
		if rng.Float64() < highRate {
			insured = 600_000 + rng.Float64()*1_000_000
		}

		requests = append(requests, CreateRequest{
			CustomerID:                fmt.Sprintf("loadgen-cust-%03d", rng.Intn(500)),
			ProductID:                 fmt.Sprintf("prod-%s-%02d", category, rng.Intn(10)),
			Category:                  category,
			SalesChannel:              channels[rng.Intn(len(channels))],
			PaymentMethod:             paymentMethods[rng.Intn(len(paymentMethods))],
			TotalMonthlyPremiumAmount: 10 + rng.Float64()*400,
			InsuredAmount:             insured,
			Coverages:                 map[string]float64{"base": insured},
		})
	}

	return requests
}

func runLoad(requests []CreateRequest, baseURL string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan CreateRequest, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for req := range work {
				finalStatus, err := driveLifecycle(client, baseURL, req, metrics)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.Errors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", req.CustomerID, err)
					}
					continue
				}

				switch finalStatus {
				case "APPROVED":
					atomic.AddInt64(&metrics.Approved, 1)
				case "REJECTED":
					atomic.AddInt64(&metrics.Rejected, 1)
				case "CANCELLED":
					atomic.AddInt64(&metrics.Cancelled, 1)
				}

				if verbose {
					fmt.Printf("✓ %-18s | %-11s | Insured: $%12.2f | Final: %s\n",
						req.CustomerID, req.Category, req.InsuredAmount, finalStatus)
				}
			}
		}()
	}

	for _, req := range requests {
		work <- req
	}
	close(work)

	wg.Wait()

	return metrics
}

// driveLifecycle runs one request from creation to a terminal or settled
// state and returns the final status.
func driveLifecycle(client *http.Client, baseURL string, req CreateRequest, metrics *Metrics) (string, error) {
	start := time.Now()
	created, err := post(client, baseURL+"/policy-requests", req, http.StatusCreated)
	atomic.AddInt64(&metrics.CreateTimeMs, time.Since(start).Milliseconds())
	if err != nil {
		return "", fmt.Errorf("create: %w", err)
	}

	start = time.Now()
	analyzed, err := post(client, baseURL+"/policy-requests/"+created.ID+"/fraud-analysis", nil, http.StatusOK)
	atomic.AddInt64(&metrics.AnalysisTimeMs, time.Since(start).Milliseconds())
	if err != nil {
		return "", fmt.Errorf("fraud-analysis: %w", err)
	}

	if analyzed.Status != "VALIDATED" {
		return analyzed.Status, nil
	}

	start = time.Now()
	paid, err := post(client, baseURL+"/policy-requests/"+created.ID+"/payment", nil, http.StatusOK)
	if err != nil {
		atomic.AddInt64(&metrics.SettlementTimeMs, time.Since(start).Milliseconds())
		return "", fmt.Errorf("payment: %w", err)
	}

	if paid.Status != "PENDING" {
		atomic.AddInt64(&metrics.SettlementTimeMs, time.Since(start).Milliseconds())
		return paid.Status, nil
	}

	issued, err := post(client, baseURL+"/policy-requests/"+created.ID+"/subscription", nil, http.StatusOK)
	atomic.AddInt64(&metrics.SettlementTimeMs, time.Since(start).Milliseconds())
	if err != nil {
		return "", fmt.Errorf("subscription: %w", err)
	}

	return issued.Status, nil
}

func post(client *http.Client, url string, body any, wantStatus int) (*PolicyResponse, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}

	httpReq, err := http.NewRequest(http.MethodPost, url, &buf)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != wantStatus && resp.StatusCode != http.StatusUnprocessableEntity {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result PolicyResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}

	// Declined payments and subscriptions come back 422 with the rejected
	// request attached, which is still a valid terminal outcome.
	if resp.StatusCode == http.StatusUnprocessableEntity && result.Status == "" {
		var wrapped struct {
			PolicyRequest PolicyResponse `json:"policyRequest"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, err
		}
		result = wrapped.PolicyRequest
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                       LOADGEN RESULTS                         ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 OUTCOME DISTRIBUTION\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Approved:         %d\n", m.Approved)
	fmt.Printf("   Rejected:         %d\n", m.Rejected)
	fmt.Printf("   Cancelled:        %d\n", m.Cancelled)
	fmt.Printf("   Errors:           %d\n", m.Errors)

	if m.TotalProcessed > 0 {
		approvalRate := float64(m.Approved) / float64(m.TotalProcessed) * 100
		rejectionRate := float64(m.Rejected) / float64(m.TotalProcessed) * 100
		fmt.Printf("\n🎯 RATES\n")
		fmt.Printf("   Approval Rate:    %.2f%%\n", approvalRate)
		fmt.Printf("   Rejection Rate:   %.2f%%\n", rejectionRate)
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		fmt.Printf("   Avg Create:       %.2f ms\n", float64(m.CreateTimeMs)/float64(m.TotalProcessed))
		fmt.Printf("   Avg Analysis:     %.2f ms\n", float64(m.AnalysisTimeMs)/float64(m.TotalProcessed))
		fmt.Printf("   Avg Settlement:   %.2f ms\n", float64(m.SettlementTimeMs)/float64(m.TotalProcessed))
		fmt.Printf("   Throughput:       %.2f req/sec\n", float64(m.TotalProcessed)/duration.Seconds())
	}

	fmt.Println()
}
