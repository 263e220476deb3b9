package db

import (
	"context"
	"database/sql"
)

// DB wraps *sql.DB so callers depend on this package.
type DB struct {
	*sql.DB
}

const verificationMigration = `
CREATE EXTENSION IF NOT EXISTS "pgcrypto";

CREATE TABLE IF NOT EXISTS verifications (
    id uuid PRIMARY KEY,
    order_ref text NOT NULL,
    personal_number_digest text NOT NULL,
    completed_at timestamptz NOT NULL,
    created_at timestamptz NOT NULL DEFAULT NOW(),
    CONSTRAINT verifications_order_ref_unique
        UNIQUE (order_ref)
);

CREATE INDEX IF NOT EXISTS verifications_completed_at_idx
ON verifications (completed_at);
`

// RunVerificationMigration creates the verifications table used to
// record completed identity verifications.
func RunVerificationMigration(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, verificationMigration)
	return err
}
