package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/vmware/go-kcl-leases/clientlibrary/types"
	"github.com/vmware/go-kcl-leases/leases/impl"
)

// DBTX is an interface that both sql.DB and sql.Tx implement.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Datastore is the health surface of a SQL backed store.
type Datastore interface {
	ServiceName() string
	GetDBStats() sql.DBStats
	PingContext(context.Context) error
	Close() error
}

// LeaseRecord represents a lease row in the database.
type LeaseRecord struct {
	LeaseKey             string
	LeaseOwner           sql.NullString
	LeaseCounter         int64
	OwnerSwitches        int64
	Checkpoint           sql.NullString
	CheckpointSub        int64
	PendingCheckpoint    sql.NullString
	PendingCheckpointSub sql.NullInt64
	ParentShardIds       pq.StringArray
	ChildShardIds        pq.StringArray
	StartingHashKey      sql.NullString
	EndingHashKey        sql.NullString
}

// scanDest lists the destinations in column order.
func (r *LeaseRecord) scanDest() []interface{} {
	return []interface{}{
		&r.LeaseKey, &r.LeaseOwner, &r.LeaseCounter, &r.OwnerSwitches,
		&r.Checkpoint, &r.CheckpointSub, &r.PendingCheckpoint, &r.PendingCheckpointSub,
		&r.ParentShardIds, &r.ChildShardIds, &r.StartingHashKey, &r.EndingHashKey,
	}
}

// ToRecord flattens a lease into a row. The concurrency token and timestamp stay local.
func ToRecord(lease *impl.KinesisClientLease) *LeaseRecord {
	rec := &LeaseRecord{
		LeaseKey:       lease.GetLeaseKey(),
		LeaseOwner:     nullString(lease.GetLeaseOwner()),
		LeaseCounter:   lease.GetLeaseCounter(),
		OwnerSwitches:  lease.GetOwnerSwitchesSinceCheckpoint(),
		ParentShardIds: pq.StringArray(lease.GetParentShardIds()),
		ChildShardIds:  pq.StringArray(lease.GetChildShardIds()),
	}
	if cp := lease.GetCheckpoint(); cp != nil {
		rec.Checkpoint = nullString(cp.GetSequenceNumber())
		rec.CheckpointSub = cp.GetSubSequenceNumber()
	}
	if pending := lease.GetPendingCheckpoint(); pending != nil {
		rec.PendingCheckpoint = nullString(pending.GetSequenceNumber())
		rec.PendingCheckpointSub = sql.NullInt64{Int64: pending.GetSubSequenceNumber(), Valid: true}
	}
	if hkr := lease.GetHashKeyRange(); hkr != nil {
		rec.StartingHashKey = nullString(hkr.SerializedStartingHashKey())
		rec.EndingHashKey = nullString(hkr.SerializedEndingHashKey())
	}
	return rec
}

// ToLease rebuilds the lease held in a row.
func (r *LeaseRecord) ToLease() (*impl.KinesisClientLease, error) {
	var checkpoint, pending *types.ExtendedSequenceNumber
	if r.Checkpoint.Valid {
		checkpoint = types.NewExtendedSequenceNumber(r.Checkpoint.String, r.CheckpointSub)
	}
	if r.PendingCheckpoint.Valid {
		pending = types.NewExtendedSequenceNumber(r.PendingCheckpoint.String, r.PendingCheckpointSub.Int64)
	}

	var hkr *types.HashKeyRange
	if r.StartingHashKey.Valid && r.EndingHashKey.Valid {
		var err error
		if hkr, err = types.NewHashKeyRange(r.StartingHashKey.String, r.EndingHashKey.String); err != nil {
			return nil, err
		}
	}

	return impl.NewKinesisClientLeaseWithFields(r.LeaseKey, r.LeaseOwner.String, r.LeaseCounter, uuid.Nil, 0,
		checkpoint, pending, r.OwnerSwitches, r.ParentShardIds, r.ChildShardIds, hkr), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
