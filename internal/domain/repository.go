package domain

import (
	"context"
	"time"
)

// Repository defines the persistence contract for the workflow core.
// UpdatePolicyRequest enforces optimistic concurrency: the row is updated
// only when the stored version matches the entity's version, and the
// version is incremented atomically. A stale token yields
// ErrVersionConflict.
type Repository interface {
	// Policy request operations
	SavePolicyRequest(ctx context.Context, pr *PolicyRequest) error
	UpdatePolicyRequest(ctx context.Context, pr *PolicyRequest) error
	GetPolicyRequest(ctx context.Context, id string) (*PolicyRequest, error)
	ListByCustomer(ctx context.Context, customerID string) ([]*PolicyRequest, error)

	// Status history ledger (append-only)
	AppendHistory(ctx context.Context, entry *StatusHistoryEntry) error
	GetHistory(ctx context.Context, policyRequestID string) ([]*StatusHistoryEntry, error)

	// Risk rule configuration for the embedded fraud analyzer
	SaveRiskRule(ctx context.Context, rule *RiskRule) error
	ListRiskRules(ctx context.Context) ([]*RiskRule, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
