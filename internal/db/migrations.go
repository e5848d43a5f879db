package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'permit_status') THEN
			CREATE TYPE permit_status AS ENUM ('active', 'expiring_soon', 'expired');
		END IF;
	END
	$$;`,
	`CREATE TABLE IF NOT EXISTS bills (
		id UUID PRIMARY KEY,
		bill_number VARCHAR(32) NOT NULL,
		customer_name TEXT NOT NULL,
		bill_date DATE NOT NULL,
		items JSONB NOT NULL DEFAULT '[]'::jsonb,
		total_amount NUMERIC(14,2) NOT NULL,
		bill_pdf_path TEXT,
		created_by UUID NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS bill_sequence (
		name VARCHAR(32) PRIMARY KEY,
		last_value BIGINT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS permit_part_a (
		id UUID PRIMARY KEY,
		vehicle_number VARCHAR(32) NOT NULL,
		permit_number VARCHAR(64) NOT NULL,
		holder_name TEXT NOT NULL,
		father_name TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		mobile VARCHAR(32) NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		valid_from DATE NOT NULL,
		valid_to DATE NOT NULL,
		total_fee NUMERIC(14,2) NOT NULL,
		paid NUMERIC(14,2) NOT NULL,
		balance NUMERIC(14,2) NOT NULL,
		status permit_status NOT NULL DEFAULT 'active',
		bill_id UUID REFERENCES bills(id) ON DELETE SET NULL,
		notes TEXT NOT NULL DEFAULT '',
		images JSONB NOT NULL DEFAULT '[]'::jsonb,
		created_by UUID NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT chk_part_a_paid CHECK (paid <= total_fee),
		CONSTRAINT chk_part_a_balance CHECK (balance = total_fee - paid)
	);`,
	`CREATE TABLE IF NOT EXISTS permit_part_b (
		id UUID PRIMARY KEY,
		vehicle_number VARCHAR(32) NOT NULL,
		permit_number VARCHAR(64) NOT NULL,
		part_b_number VARCHAR(64) NOT NULL,
		valid_from DATE NOT NULL,
		valid_to DATE NOT NULL,
		total_fee NUMERIC(14,2),
		paid NUMERIC(14,2),
		balance NUMERIC(14,2),
		status permit_status NOT NULL DEFAULT 'active',
		bill_id UUID REFERENCES bills(id) ON DELETE SET NULL,
		notes TEXT NOT NULL DEFAULT '',
		created_by UUID NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT chk_part_b_fees CHECK (
			(total_fee IS NULL AND paid IS NULL AND balance IS NULL)
			OR (paid <= total_fee AND balance = total_fee - paid)
		)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_part_a_key ON permit_part_a (vehicle_number, permit_number);`,
	`CREATE INDEX IF NOT EXISTS idx_part_a_status ON permit_part_a (status);`,
	`CREATE INDEX IF NOT EXISTS idx_part_a_bill_id ON permit_part_a (bill_id) WHERE bill_id IS NOT NULL;`,
	`CREATE INDEX IF NOT EXISTS idx_part_b_key ON permit_part_b (vehicle_number, permit_number);`,
	`CREATE INDEX IF NOT EXISTS idx_part_b_status ON permit_part_b (status);`,
	`CREATE INDEX IF NOT EXISTS idx_part_b_bill_id ON permit_part_b (bill_id) WHERE bill_id IS NOT NULL;`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
