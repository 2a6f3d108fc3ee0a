// Kestrel - Policy request workflows that deploy in 60 seconds.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/fraud"
	"github.com/opensource-finance/kestrel/internal/payment"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/subscription"
	"github.com/opensource-finance/kestrel/internal/worker"
	"github.com/opensource-finance/kestrel/internal/workflow"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("KESTREL_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize CEL risk analyzer. The analyzer always exists so the
	// /risk-rules API works even when scoring is delegated to a remote
	// provider.
	analyzer, err := fraud.NewCELAnalyzer(cfg.Fraud)
	if err != nil {
		slog.Error("failed to initialize risk analyzer", "error", err)
		os.Exit(1)
	}

	// Load risk rules from database (no hardcoded defaults - configure via API)
	if err := loadRulesFromDatabase(ctx, repo, analyzer); err != nil {
		slog.Error("failed to load risk rules", "error", err)
		os.Exit(1)
	}
	slog.Info("risk analyzer initialized", "rules_count", analyzer.RulesCount())

	// Select the fraud-analysis provider
	var provider domain.FraudAnalysisProvider = analyzer
	if cfg.Fraud.Provider == "http" {
		provider, err = fraud.NewHTTPProvider(cfg.Fraud)
		if err != nil {
			slog.Error("failed to initialize fraud provider", "error", err)
			os.Exit(1)
		}
		slog.Info("remote fraud provider initialized", "url", cfg.Fraud.URL)
	}

	// Initialize Payment Processor
	payments, err := payment.New(cfg.Payment, busImpl)
	if err != nil {
		slog.Error("failed to initialize payment processor", "error", err)
		os.Exit(1)
	}
	slog.Info("payment processor initialized", "mode", cfg.Payment.Mode)

	// Initialize Subscription Issuer
	subscriptions, err := subscription.New(cfg.Subscription, busImpl)
	if err != nil {
		slog.Error("failed to initialize subscription issuer", "error", err)
		os.Exit(1)
	}
	slog.Info("subscription issuer initialized", "mode", cfg.Subscription.Mode)

	// Initialize Workflow Orchestrator
	orch := workflow.NewOrchestrator(repo, busImpl, cacheImpl, provider, payments, subscriptions)
	slog.Info("workflow orchestrator initialized")

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("KESTREL_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, orch)

		if err := asyncWorker.Start(); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started")
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, orch, repo, cacheImpl, busImpl, analyzer, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// loadRulesFromDatabase loads risk rules from the database into the analyzer.
// All rules must be configured via POST /risk-rules API - no hardcoded defaults.
func loadRulesFromDatabase(ctx context.Context, repo domain.Repository, analyzer *fraud.CELAnalyzer) error {
	dbRules, err := repo.ListRiskRules(ctx)
	if err != nil {
		slog.Warn("failed to list risk rules from database", "error", err)
		return nil // Start with empty rules - they can be added via API
	}

	if len(dbRules) > 0 {
		slog.Info("loading risk rules from database", "count", len(dbRules))
		return analyzer.LoadRules(dbRules)
	}

	slog.Info("no risk rules in database - configure via POST /risk-rules API")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🪶 KESTREL                  ║")
	fmt.Println("  ║      Policy Request Workflow Engine       ║")
	fmt.Println("  ║       Every request, fully tracked.       ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /policy-requests                      - Create a policy request")
	fmt.Println("    GET  /policy-requests/{id}                 - Get a policy request")
	fmt.Println("    GET  /policy-requests/{id}/history         - Status change ledger")
	fmt.Println("    POST /policy-requests/{id}/fraud-analysis  - Run fraud analysis")
	fmt.Println("    POST /policy-requests/{id}/payment         - Process payment")
	fmt.Println("    POST /policy-requests/{id}/subscription    - Issue subscription")
	fmt.Println("    POST /policy-requests/{id}/cancel          - Cancel the request")
	fmt.Println("    GET  /customers/{id}/policy-requests       - List by customer")
	fmt.Println("    GET  /risk-rules                           - List risk rules")
	fmt.Println("    POST /risk-rules                           - Create a risk rule")
	fmt.Println("    POST /risk-rules/reload                    - Hot-reload rules from database")
	fmt.Println("    GET  /health                               - Health check")
	fmt.Println()
}
