// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SavePolicyRequest inserts a new policy request row.
func (r *SQLRepository) SavePolicyRequest(ctx context.Context, pr *domain.PolicyRequest) error {
	if pr == nil || pr.ID == "" {
		return fmt.Errorf("%w: policy request id is required", domain.ErrInvalidInput)
	}

	coverages, _ := json.Marshal(pr.Coverages)
	assistances, _ := json.Marshal(pr.Assistances)
	riskAnalysis, err := marshalRiskAnalysis(pr.RiskAnalysis)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO policy_requests (
			id, customer_id, product_id, category, sales_channel,
			payment_method, total_monthly_premium_amount, insured_amount,
			coverages, assistances, status, risk_analysis, finished_at,
			version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		pr.ID, pr.CustomerID, pr.ProductID, pr.Category, pr.SalesChannel,
		pr.PaymentMethod, pr.TotalMonthlyPremiumAmount, pr.InsuredAmount,
		string(coverages), string(assistances), pr.Status, riskAnalysis,
		pr.FinishedAt, pr.Version, pr.CreatedAt, pr.UpdatedAt,
	)
	return err
}

// UpdatePolicyRequest persists a mutated policy request under optimistic
// concurrency: the UPDATE matches on both id and the version the caller
// loaded, and increments the version in the same statement. Zero rows
// affected means the row either vanished or moved on, distinguished by a
// follow-up lookup.
func (r *SQLRepository) UpdatePolicyRequest(ctx context.Context, pr *domain.PolicyRequest) error {
	if pr == nil || pr.ID == "" {
		return fmt.Errorf("%w: policy request id is required", domain.ErrInvalidInput)
	}

	coverages, _ := json.Marshal(pr.Coverages)
	assistances, _ := json.Marshal(pr.Assistances)
	riskAnalysis, err := marshalRiskAnalysis(pr.RiskAnalysis)
	if err != nil {
		return err
	}

	query := `
		UPDATE policy_requests SET
			category = ?, sales_channel = ?, payment_method = ?,
			total_monthly_premium_amount = ?, insured_amount = ?,
			coverages = ?, assistances = ?, status = ?, risk_analysis = ?,
			finished_at = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		pr.Category, pr.SalesChannel, pr.PaymentMethod,
		pr.TotalMonthlyPremiumAmount, pr.InsuredAmount,
		string(coverages), string(assistances), pr.Status, riskAnalysis,
		pr.FinishedAt, pr.UpdatedAt,
		pr.ID, pr.Version,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		var exists int
		check := `SELECT COUNT(1) FROM policy_requests WHERE id = ?`
		if err := r.db.QueryRowContext(ctx, r.rebind(check), pr.ID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return domain.ErrNotFound
		}
		return domain.ErrVersionConflict
	}

	pr.Version++
	return nil
}

// GetPolicyRequest retrieves a policy request by ID.
func (r *SQLRepository) GetPolicyRequest(ctx context.Context, id string) (*domain.PolicyRequest, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: policy request id is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, customer_id, product_id, category, sales_channel,
			   payment_method, total_monthly_premium_amount, insured_amount,
			   coverages, assistances, status, risk_analysis, finished_at,
			   version, created_at, updated_at
		FROM policy_requests
		WHERE id = ?
	`

	pr, err := scanPolicyRequest(r.db.QueryRowContext(ctx, r.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return pr, err
}

// ListByCustomer retrieves all policy requests for a customer, newest
// first.
func (r *SQLRepository) ListByCustomer(ctx context.Context, customerID string) ([]*domain.PolicyRequest, error) {
	if customerID == "" {
		return nil, fmt.Errorf("%w: customer id is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, customer_id, product_id, category, sales_channel,
			   payment_method, total_monthly_premium_amount, insured_amount,
			   coverages, assistances, status, risk_analysis, finished_at,
			   version, created_at, updated_at
		FROM policy_requests
		WHERE customer_id = ?
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []*domain.PolicyRequest
	for rows.Next() {
		pr, err := scanPolicyRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, pr)
	}

	return requests, rows.Err()
}

// AppendHistory inserts one ledger entry. The ledger is append-only;
// there is no update or delete path.
func (r *SQLRepository) AppendHistory(ctx context.Context, entry *domain.StatusHistoryEntry) error {
	if entry == nil || entry.PolicyRequestID == "" {
		return fmt.Errorf("%w: policy request id is required", domain.ErrInvalidInput)
	}

	query := `
		INSERT INTO status_history (
			id, policy_request_id, previous_status, new_status, reason, changed_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		entry.ID, entry.PolicyRequestID,
		string(entry.PreviousStatus), entry.NewStatus,
		entry.Reason, entry.ChangedAt,
	)
	return err
}

// GetHistory retrieves the full ledger of a policy request in
// chronological order.
func (r *SQLRepository) GetHistory(ctx context.Context, policyRequestID string) ([]*domain.StatusHistoryEntry, error) {
	if policyRequestID == "" {
		return nil, fmt.Errorf("%w: policy request id is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, policy_request_id, previous_status, new_status, reason, changed_at
		FROM status_history
		WHERE policy_request_id = ?
		ORDER BY changed_at ASC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), policyRequestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.StatusHistoryEntry
	for rows.Next() {
		var entry domain.StatusHistoryEntry
		var previous sql.NullString
		var reason sql.NullString

		if err := rows.Scan(
			&entry.ID, &entry.PolicyRequestID,
			&previous, &entry.NewStatus,
			&reason, &entry.ChangedAt,
		); err != nil {
			return nil, err
		}

		entry.PreviousStatus = domain.Status(previous.String)
		entry.Reason = reason.String
		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

// SaveRiskRule upserts a risk rule for the embedded fraud analyzer.
func (r *SQLRepository) SaveRiskRule(ctx context.Context, rule *domain.RiskRule) error {
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: risk rule id is required", domain.ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO risk_rules (
			id, name, description, expression, occurrence_type, weight, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			occurrence_type = excluded.occurrence_type,
			weight = excluded.weight,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description,
		rule.Expression, rule.Occurrence, rule.Weight, enabled,
		now, now,
	)
	return err
}

// ListRiskRules retrieves all enabled risk rules.
func (r *SQLRepository) ListRiskRules(ctx context.Context) ([]*domain.RiskRule, error) {
	query := `
		SELECT id, name, description, expression, occurrence_type, weight, enabled
		FROM risk_rules
		WHERE enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.RiskRule
	for rows.Next() {
		var rule domain.RiskRule
		var description sql.NullString
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.Name, &description,
			&rule.Expression, &rule.Occurrence, &rule.Weight, &enabled,
		); err != nil {
			return nil, err
		}

		rule.Description = description.String
		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanPolicyRequest(row scanner) (*domain.PolicyRequest, error) {
	var pr domain.PolicyRequest
	var coverages, assistances string
	var riskAnalysis sql.NullString
	var finishedAt sql.NullTime

	err := row.Scan(
		&pr.ID, &pr.CustomerID, &pr.ProductID, &pr.Category, &pr.SalesChannel,
		&pr.PaymentMethod, &pr.TotalMonthlyPremiumAmount, &pr.InsuredAmount,
		&coverages, &assistances, &pr.Status, &riskAnalysis, &finishedAt,
		&pr.Version, &pr.CreatedAt, &pr.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if coverages != "" {
		json.Unmarshal([]byte(coverages), &pr.Coverages)
	}
	if assistances != "" {
		json.Unmarshal([]byte(assistances), &pr.Assistances)
	}
	if riskAnalysis.Valid && riskAnalysis.String != "" {
		var analysis domain.RiskAnalysis
		if err := json.Unmarshal([]byte(riskAnalysis.String), &analysis); err != nil {
			return nil, fmt.Errorf("failed to parse risk analysis for %s: %w", pr.ID, err)
		}
		pr.RiskAnalysis = &analysis
	}
	if finishedAt.Valid {
		f := finishedAt.Time
		pr.FinishedAt = &f
	}

	return &pr, nil
}

func marshalRiskAnalysis(analysis *domain.RiskAnalysis) (any, error) {
	if analysis == nil {
		return nil, nil
	}
	data, err := json.Marshal(analysis)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal risk analysis: %w", err)
	}
	return string(data), nil
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
