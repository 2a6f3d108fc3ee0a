package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaPolicyRequests = `
CREATE TABLE IF NOT EXISTS policy_requests (
    id TEXT PRIMARY KEY,
    customer_id TEXT NOT NULL,
    product_id TEXT NOT NULL,
    category TEXT NOT NULL,
    sales_channel TEXT NOT NULL,
    payment_method TEXT NOT NULL,
    total_monthly_premium_amount REAL NOT NULL,
    insured_amount REAL NOT NULL,
    coverages TEXT NOT NULL,
    assistances TEXT,
    status TEXT NOT NULL,
    risk_analysis TEXT,
    finished_at TIMESTAMP,
    version INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_policy_requests_customer ON policy_requests(customer_id);
CREATE INDEX IF NOT EXISTS idx_policy_requests_status ON policy_requests(status);
CREATE INDEX IF NOT EXISTS idx_policy_requests_created ON policy_requests(created_at);
`

// schemaStatusHistory is the append-only ledger. Rows are never updated
// or deleted.
const schemaStatusHistory = `
CREATE TABLE IF NOT EXISTS status_history (
    id TEXT PRIMARY KEY,
    policy_request_id TEXT NOT NULL,
    previous_status TEXT,
    new_status TEXT NOT NULL,
    reason TEXT,
    changed_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_status_history_request ON status_history(policy_request_id);
CREATE INDEX IF NOT EXISTS idx_status_history_changed ON status_history(policy_request_id, changed_at);
`

const schemaRiskRules = `
CREATE TABLE IF NOT EXISTS risk_rules (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    expression TEXT NOT NULL,
    occurrence_type TEXT NOT NULL,
    weight REAL NOT NULL DEFAULT 1.0,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_risk_rules_enabled ON risk_rules(enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaPolicyRequests,
		schemaStatusHistory,
		schemaRiskRules,
	}
}
