package postgres

import (
	"context"
	"fmt"

	"github.com/lib/pq"
)

var (
	createLeaseTableSQL = `
CREATE TABLE IF NOT EXISTS %s (
    lease_key               VARCHAR   NOT NULL,
    lease_owner             VARCHAR,
    lease_counter           BIGINT    NOT NULL DEFAULT 0,
    owner_switches          BIGINT    NOT NULL DEFAULT 0,
    checkpoint              VARCHAR,
    checkpoint_sub          BIGINT    NOT NULL DEFAULT 0,
    pending_checkpoint      VARCHAR,
    pending_checkpoint_sub  BIGINT,
    parent_shard_ids        TEXT[]    NOT NULL DEFAULT '{}',
    child_shard_ids         TEXT[]    NOT NULL DEFAULT '{}',
    starting_hash_key       VARCHAR,
    ending_hash_key         VARCHAR,

    PRIMARY KEY (lease_key)
);`

	leaseTableExistsSQL = `SELECT to_regclass($1) IS NOT NULL;`
)

// Migrate creates the lease table.
func Migrate(ctx context.Context, db DBTX, tableName string) error {
	var query = fmt.Sprintf(createLeaseTableSQL, pq.QuoteIdentifier(tableName))
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create lease table: %w", err)
	}
	return nil
}

// TableExists reports whether the lease table is there.
func TableExists(ctx context.Context, db DBTX, tableName string) (bool, error) {
	var exists bool
	if err := db.QueryRowContext(ctx, leaseTableExistsSQL, pq.QuoteIdentifier(tableName)).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to look up lease table: %w", err)
	}
	return exists, nil
}
