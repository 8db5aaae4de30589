package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaScoringModels = `
CREATE TABLE IF NOT EXISTS scoring_models (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    active INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_scoring_models_tenant ON scoring_models(tenant_id);
`

// schemaModelVariables stores the variables of a model in their scoring
// order; position is significant.
const schemaModelVariables = `
CREATE TABLE IF NOT EXISTS model_variables (
    tenant_id TEXT NOT NULL,
    model_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    id TEXT NOT NULL,
    name TEXT NOT NULL,
    weight DOUBLE PRECISION NOT NULL,
    min_value DOUBLE PRECISION NOT NULL,
    max_value DOUBLE PRECISION NOT NULL,
    favorable_direction TEXT NOT NULL,
    blocking INTEGER NOT NULL DEFAULT 0,
    unit TEXT,
    var_type TEXT,
    PRIMARY KEY (tenant_id, model_id, position)
);

CREATE INDEX IF NOT EXISTS idx_model_variables_model ON model_variables(tenant_id, model_id);
`

const schemaCreditProducts = `
CREATE TABLE IF NOT EXISTS credit_products (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    min_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
    max_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
    interest_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
    duration_months INTEGER NOT NULL DEFAULT 0,
    scoring_model_id TEXT NOT NULL,
    active INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_credit_products_tenant ON credit_products(tenant_id);
CREATE INDEX IF NOT EXISTS idx_credit_products_model ON credit_products(tenant_id, scoring_model_id);
`

const schemaSimulations = `
CREATE TABLE IF NOT EXISTS simulations (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    product_id TEXT,
    model_id TEXT NOT NULL,
    applicant_id TEXT,
    score DOUBLE PRECISION NOT NULL,
    status TEXT NOT NULL,
    classification TEXT NOT NULL,
    recommendation TEXT NOT NULL,
    recommendation_reason TEXT,
    applicant_values TEXT NOT NULL,
    result TEXT NOT NULL,
    metadata TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_simulations_tenant ON simulations(tenant_id);
CREATE INDEX IF NOT EXISTS idx_simulations_product ON simulations(tenant_id, product_id);
CREATE INDEX IF NOT EXISTS idx_simulations_created ON simulations(tenant_id, created_at);
CREATE INDEX IF NOT EXISTS idx_simulations_status ON simulations(tenant_id, status);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaScoringModels,
		schemaModelVariables,
		schemaCreditProducts,
		schemaSimulations,
	}
}
