package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
	`CREATE TABLE IF NOT EXISTS locations (
		id BIGINT PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		category SMALLINT NOT NULL DEFAULT 0,
		solar_system_id BIGINT NOT NULL DEFAULT 0,
		solar_system_name VARCHAR(100) NOT NULL DEFAULT '',
		type_id BIGINT NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS handlers (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		organization_id BIGINT NOT NULL,
		organization_name VARCHAR(255) NOT NULL,
		organization_category VARCHAR(32) NOT NULL,
		operation_mode VARCHAR(32) NOT NULL,
		character_id BIGINT,
		character_corporation_id BIGINT,
		price_per_volume_modifier NUMERIC(10,2),
		last_sync TIMESTAMPTZ,
		last_error VARCHAR(64) NOT NULL DEFAULT '',
		version_hash VARCHAR(64) NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_handlers_singleton ON handlers ((true));`,
	`CREATE TABLE IF NOT EXISTS tokens (
		character_id BIGINT PRIMARY KEY,
		refresh_token TEXT NOT NULL,
		access_token TEXT NOT NULL DEFAULT '',
		expires_at TIMESTAMPTZ NOT NULL DEFAULT 'epoch',
		scopes TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS pricing_rules (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		handler_id UUID NOT NULL REFERENCES handlers(id) ON DELETE CASCADE,
		start_location_id BIGINT NOT NULL REFERENCES locations(id),
		end_location_id BIGINT NOT NULL REFERENCES locations(id),
		is_bidirectional BOOLEAN NOT NULL DEFAULT TRUE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		is_default BOOLEAN NOT NULL DEFAULT FALSE,
		price_base NUMERIC(20,2),
		price_min NUMERIC(20,2),
		price_per_volume NUMERIC(20,2),
		use_price_per_volume_modifier BOOLEAN NOT NULL DEFAULT FALSE,
		price_per_collateral_percent NUMERIC(10,2),
		volume_min NUMERIC(20,2),
		volume_max NUMERIC(20,2),
		collateral_min NUMERIC(20,2),
		collateral_max NUMERIC(20,2),
		days_to_complete INT,
		days_to_expire INT,
		details TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_pricing_rules_default ON pricing_rules (handler_id) WHERE is_default;`,
	`CREATE INDEX IF NOT EXISTS idx_pricing_rules_route ON pricing_rules (start_location_id, end_location_id);`,
	`CREATE TABLE IF NOT EXISTS contracts (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		handler_id UUID NOT NULL REFERENCES handlers(id) ON DELETE CASCADE,
		contract_id BIGINT NOT NULL,
		status VARCHAR(32) NOT NULL,
		status_raw VARCHAR(64) NOT NULL DEFAULT '',
		issuer_id BIGINT NOT NULL,
		issuer_corporation_id BIGINT NOT NULL,
		acceptor_id BIGINT,
		acceptor_corporation_id BIGINT,
		assignee_id BIGINT NOT NULL,
		start_location_id BIGINT NOT NULL,
		end_location_id BIGINT NOT NULL,
		volume NUMERIC(20,2) NOT NULL,
		collateral NUMERIC(20,2) NOT NULL,
		reward NUMERIC(20,2) NOT NULL,
		price NUMERIC(20,2) NOT NULL DEFAULT 0,
		expected_price NUMERIC(20,2),
		days_to_complete INT NOT NULL,
		for_corporation BOOLEAN NOT NULL DEFAULT FALSE,
		availability VARCHAR(32) NOT NULL,
		title VARCHAR(100) NOT NULL DEFAULT '',
		date_issued TIMESTAMPTZ NOT NULL,
		date_expired TIMESTAMPTZ NOT NULL,
		date_accepted TIMESTAMPTZ,
		date_completed TIMESTAMPTZ,
		pricing_id UUID REFERENCES pricing_rules(id) ON DELETE SET NULL,
		issues JSONB,
		date_notified TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_contracts_handler_contract ON contracts (handler_id, contract_id);`,
	`CREATE INDEX IF NOT EXISTS idx_contracts_status ON contracts (handler_id, status);`,
	`CREATE INDEX IF NOT EXISTS idx_contracts_pricing_id ON contracts (pricing_id) WHERE pricing_id IS NOT NULL;`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}

// Migrate applies the schema to an already opened database.
func Migrate(db *gorm.DB) error {
	return runMigrations(db)
}
