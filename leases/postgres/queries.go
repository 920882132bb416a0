package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// Queries provides table-aware lease operations. Every conditional write reports whether its WHERE clause matched.
type Queries struct {
	db        DBTX
	tableName string
}

// NewQueries creates a new Queries instance with the given table name.
func NewQueries(db DBTX, tableName string) *Queries {
	return &Queries{
		db:        db,
		tableName: tableName,
	}
}

const leaseColumns = `lease_key, lease_owner, lease_counter, owner_switches, checkpoint, checkpoint_sub,
    pending_checkpoint, pending_checkpoint_sub, parent_shard_ids, child_shard_ids, starting_hash_key, ending_hash_key`

var (
	insertLeaseSQL = `
INSERT INTO %s (` + leaseColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (lease_key) DO NOTHING;`

	getLeaseSQL = `
SELECT ` + leaseColumns + `
FROM %s
WHERE lease_key = $1;`

	listLeasesSQL = `
SELECT ` + leaseColumns + `
FROM %s
ORDER BY lease_key ASC;`

	renewLeaseSQL = `
UPDATE %s
SET lease_counter = lease_counter + 1
WHERE lease_key = $1 AND lease_counter = $2;`

	takeLeaseSQL = `
UPDATE %s
SET lease_counter = lease_counter + 1,
    lease_owner = $3,
    owner_switches = owner_switches + $4
WHERE lease_key = $1 AND lease_counter = $2;`

	evictLeaseSQL = `
UPDATE %s
SET lease_counter = lease_counter + 1,
    lease_owner = NULL
WHERE lease_key = $1 AND lease_owner IS NOT DISTINCT FROM $2;`

	updateLeaseSQL = `
UPDATE %s
SET lease_counter = lease_counter + 1,
    checkpoint = $3,
    checkpoint_sub = $4,
    pending_checkpoint = $5,
    pending_checkpoint_sub = $6,
    owner_switches = $7,
    child_shard_ids = $8,
    starting_hash_key = COALESCE($9, starting_hash_key),
    ending_hash_key = COALESCE($10, ending_hash_key)
WHERE lease_key = $1 AND lease_counter = $2;`

	deleteLeaseSQL = `
DELETE FROM %s
WHERE lease_key = $1;`

	deleteAllLeasesSQL = `
DELETE FROM %s;`

	isEmptySQL = `
SELECT NOT EXISTS (SELECT 1 FROM %s);`
)

func (q *Queries) render(query string) string {
	return fmt.Sprintf(query, pq.QuoteIdentifier(q.tableName))
}

// InsertLease inserts the lease unless its key is taken.
func (q *Queries) InsertLease(ctx context.Context, rec *LeaseRecord) (bool, error) {
	result, err := q.db.ExecContext(ctx, q.render(insertLeaseSQL),
		rec.LeaseKey, rec.LeaseOwner, rec.LeaseCounter, rec.OwnerSwitches,
		rec.Checkpoint, rec.CheckpointSub, rec.PendingCheckpoint, rec.PendingCheckpointSub,
		rec.ParentShardIds, rec.ChildShardIds, rec.StartingHashKey, rec.EndingHashKey,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert lease: %w", err)
	}
	return matched(result)
}

// GetLease returns the lease or nil when there is none.
func (q *Queries) GetLease(ctx context.Context, leaseKey string) (*LeaseRecord, error) {
	var rec LeaseRecord
	err := q.db.QueryRowContext(ctx, q.render(getLeaseSQL), leaseKey).Scan(rec.scanDest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lease: %w", err)
	}
	return &rec, nil
}

// ListLeases returns every lease ordered by key.
func (q *Queries) ListLeases(ctx context.Context) ([]*LeaseRecord, error) {
	rows, err := q.db.QueryContext(ctx, q.render(listLeasesSQL))
	if err != nil {
		return nil, fmt.Errorf("failed to list leases: %w", err)
	}
	defer rows.Close()

	var records []*LeaseRecord
	for rows.Next() {
		var rec LeaseRecord
		if err := rows.Scan(rec.scanDest()...); err != nil {
			return nil, fmt.Errorf("failed to scan lease: %w", err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate leases: %w", err)
	}
	return records, nil
}

func (q *Queries) RenewLease(ctx context.Context, leaseKey string, counter int64) (bool, error) {
	result, err := q.db.ExecContext(ctx, q.render(renewLeaseSQL), leaseKey, counter)
	if err != nil {
		return false, fmt.Errorf("failed to renew lease: %w", err)
	}
	return matched(result)
}

// TakeLease hands the lease to owner, adding switches to the owner switch count.
func (q *Queries) TakeLease(ctx context.Context, leaseKey string, counter int64, owner string, switches int64) (bool, error) {
	result, err := q.db.ExecContext(ctx, q.render(takeLeaseSQL), leaseKey, counter, owner, switches)
	if err != nil {
		return false, fmt.Errorf("failed to take lease: %w", err)
	}
	return matched(result)
}

// EvictLease clears the owner if it is still the expected one. An empty owner expects an unowned lease.
func (q *Queries) EvictLease(ctx context.Context, leaseKey string, owner string) (bool, error) {
	result, err := q.db.ExecContext(ctx, q.render(evictLeaseSQL), leaseKey, nullString(owner))
	if err != nil {
		return false, fmt.Errorf("failed to evict lease: %w", err)
	}
	return matched(result)
}

// UpdateLease writes the checkpoint state and child links of rec. Parents are never rewritten and a missing hash
// key range keeps the stored one.
func (q *Queries) UpdateLease(ctx context.Context, rec *LeaseRecord) (bool, error) {
	result, err := q.db.ExecContext(ctx, q.render(updateLeaseSQL),
		rec.LeaseKey, rec.LeaseCounter,
		rec.Checkpoint, rec.CheckpointSub, rec.PendingCheckpoint, rec.PendingCheckpointSub,
		rec.OwnerSwitches, rec.ChildShardIds, rec.StartingHashKey, rec.EndingHashKey,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update lease: %w", err)
	}
	return matched(result)
}

func (q *Queries) DeleteLease(ctx context.Context, leaseKey string) error {
	if _, err := q.db.ExecContext(ctx, q.render(deleteLeaseSQL), leaseKey); err != nil {
		return fmt.Errorf("failed to delete lease: %w", err)
	}
	return nil
}

func (q *Queries) DeleteAll(ctx context.Context) error {
	if _, err := q.db.ExecContext(ctx, q.render(deleteAllLeasesSQL)); err != nil {
		return fmt.Errorf("failed to delete leases: %w", err)
	}
	return nil
}

func (q *Queries) IsEmpty(ctx context.Context) (bool, error) {
	var empty bool
	if err := q.db.QueryRowContext(ctx, q.render(isEmptySQL)).Scan(&empty); err != nil {
		return false, fmt.Errorf("failed to count leases: %w", err)
	}
	return empty, nil
}

func matched(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}
