package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	cc "github.com/vmware/go-kcl-leases/clientlibrary/common"
	"github.com/vmware/go-kcl-leases/clientlibrary/config"
	"github.com/vmware/go-kcl-leases/leases/impl"
	"github.com/vmware/go-kcl-leases/logger"
)

const (
	// undefined_table
	pgUndefinedTable pq.ErrorCode = "42P01"

	// insufficient_resources
	pgInsufficientResources pq.ErrorClass = "53"
)

// PostgresLeaseManager is an implementation of ILeaseManager that keeps one row per lease in a PostgreSQL table.
// Conditional writes are single UPDATE statements guarded by the lease counter.
type PostgresLeaseManager struct {
	log       logger.Logger
	db        *sql.DB
	queries   *Queries
	tableName string
	fencer    impl.Fencer
}

var (
	_ impl.ILeaseManager = (*PostgresLeaseManager)(nil)
	_ Datastore          = (*PostgresLeaseManager)(nil)
)

func NewPostgresLeaseManager(kclConfig *config.LeaseClientConfiguration, db *sql.DB) *PostgresLeaseManager {
	return &PostgresLeaseManager{
		log:       kclConfig.Logger,
		db:        db,
		queries:   NewQueries(db, kclConfig.TableName),
		tableName: kclConfig.TableName,
		fencer:    impl.DefaultFencer(),
	}
}

// Open connects with the lib/pq driver.
func Open(kclConfig *config.LeaseClientConfiguration, dataSourceName string) (*PostgresLeaseManager, error) {
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return NewPostgresLeaseManager(kclConfig, db), nil
}

// WithFencer replaces the clock and token generator applied after successful writes.
func (m *PostgresLeaseManager) WithFencer(fencer impl.Fencer) *PostgresLeaseManager {
	m.fencer = fencer
	return m
}

func (m *PostgresLeaseManager) ServiceName() string {
	return "postgres"
}

func (m *PostgresLeaseManager) GetDBStats() sql.DBStats {
	return m.db.Stats()
}

func (m *PostgresLeaseManager) PingContext(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

func (m *PostgresLeaseManager) Close() error {
	return m.db.Close()
}

func (m *PostgresLeaseManager) CreateLeaseTableIfNotExists(ctx context.Context) (bool, error) {
	exists, err := m.LeaseTableExists(ctx)
	if err != nil || exists {
		return false, err
	}

	if err := Migrate(ctx, m.db, m.tableName); err != nil {
		return false, m.convertError("create table", "", err)
	}
	m.log.Infof("Created lease table %s", m.tableName)
	return true, nil
}

func (m *PostgresLeaseManager) LeaseTableExists(ctx context.Context) (bool, error) {
	exists, err := TableExists(ctx, m.db, m.tableName)
	if err != nil {
		return false, m.convertError("describe table", "", err)
	}
	return exists, nil
}

func (m *PostgresLeaseManager) WaitUntilLeaseTableExists(ctx context.Context, secondsBetweenPolls, timeoutSeconds int64) (bool, error) {
	return impl.WaitUntilLeaseTableExists(ctx, m.LeaseTableExists, secondsBetweenPolls, timeoutSeconds)
}

func (m *PostgresLeaseManager) ListLeases(ctx context.Context) ([]*impl.KinesisClientLease, error) {
	records, err := m.queries.ListLeases(ctx)
	if err != nil {
		return nil, m.convertError("list", "", err)
	}

	leases := make([]*impl.KinesisClientLease, 0, len(records))
	for _, rec := range records {
		lease, err := m.toLease(rec)
		if err != nil {
			return nil, err
		}
		leases = append(leases, lease)
	}
	return leases, nil
}

func (m *PostgresLeaseManager) CreateLeaseIfNotExists(ctx context.Context, lease *impl.KinesisClientLease) (bool, error) {
	if lease.GetLeaseKey() == "" {
		return false, cc.IllegalArgumentError.MakeErr().WithDetail("String attributeValues cannot be null or empty.")
	}

	created, err := m.queries.InsertLease(ctx, ToRecord(lease))
	if err != nil {
		return false, m.convertError("create", lease.GetLeaseKey(), err)
	}
	if !created {
		m.log.Debugf("Did not create lease %s because it already existed", lease.GetLeaseKey())
	}
	return created, nil
}

func (m *PostgresLeaseManager) GetLease(ctx context.Context, shardId string) (*impl.KinesisClientLease, error) {
	rec, err := m.queries.GetLease(ctx, shardId)
	if err != nil {
		return nil, m.convertError("get", shardId, err)
	}
	if rec == nil {
		return nil, nil
	}
	return m.toLease(rec)
}

func (m *PostgresLeaseManager) RenewLease(ctx context.Context, lease *impl.KinesisClientLease) (bool, error) {
	ok, err := m.queries.RenewLease(ctx, lease.GetLeaseKey(), lease.GetLeaseCounter())
	if err != nil {
		return false, m.convertError("renew", lease.GetLeaseKey(), err)
	}
	if !ok {
		logger.ForLease(m.log, lease.GetLeaseKey(), lease.GetLeaseOwner()).Debugf("Lease renewal failed, counter moved on")
		return false, nil
	}

	m.fencer.Renewed(lease)
	return true, nil
}

func (m *PostgresLeaseManager) TakeLease(ctx context.Context, lease *impl.KinesisClientLease, owner string) (bool, error) {
	var switches int64
	if impl.OwnerChanged(lease, owner) {
		switches = 1
	}

	ok, err := m.queries.TakeLease(ctx, lease.GetLeaseKey(), lease.GetLeaseCounter(), owner, switches)
	if err != nil {
		return false, m.convertError("take", lease.GetLeaseKey(), err)
	}
	if !ok {
		logger.ForLease(m.log, lease.GetLeaseKey(), owner).Debugf("Lease take failed, counter moved on")
		return false, nil
	}

	m.fencer.Taken(lease, owner)
	return true, nil
}

func (m *PostgresLeaseManager) EvictLease(ctx context.Context, lease *impl.KinesisClientLease) (bool, error) {
	ok, err := m.queries.EvictLease(ctx, lease.GetLeaseKey(), lease.GetLeaseOwner())
	if err != nil {
		return false, m.convertError("evict", lease.GetLeaseKey(), err)
	}
	if !ok {
		logger.ForLease(m.log, lease.GetLeaseKey(), lease.GetLeaseOwner()).Debugf("Lease eviction failed, owner moved on")
		return false, nil
	}

	m.fencer.Evicted(lease)
	return true, nil
}

func (m *PostgresLeaseManager) DeleteLease(ctx context.Context, lease *impl.KinesisClientLease) error {
	if err := m.queries.DeleteLease(ctx, lease.GetLeaseKey()); err != nil {
		return m.convertError("delete", lease.GetLeaseKey(), err)
	}
	return nil
}

func (m *PostgresLeaseManager) DeleteAll(ctx context.Context) error {
	if err := m.queries.DeleteAll(ctx); err != nil {
		return m.convertError("delete", "", err)
	}
	return nil
}

func (m *PostgresLeaseManager) UpdateLease(ctx context.Context, lease *impl.KinesisClientLease) (bool, error) {
	if lease.GetCheckpoint() == nil {
		return false, cc.IllegalArgumentError.MakeErr().WithDetail("Checkpoint should not be null")
	}

	ok, err := m.queries.UpdateLease(ctx, ToRecord(lease))
	if err != nil {
		return false, m.convertError("update", lease.GetLeaseKey(), err)
	}
	if !ok {
		logger.ForLease(m.log, lease.GetLeaseKey(), lease.GetLeaseOwner()).Debugf("Lease update failed, counter moved on")
		return false, nil
	}

	m.fencer.Updated(lease)
	return true, nil
}

func (m *PostgresLeaseManager) IsLeaseTableEmpty(ctx context.Context) (bool, error) {
	empty, err := m.queries.IsEmpty(ctx)
	if err != nil {
		return false, m.convertError("list", "", err)
	}
	return empty, nil
}

func (m *PostgresLeaseManager) toLease(rec *LeaseRecord) (*impl.KinesisClientLease, error) {
	lease, err := rec.ToLease()
	if err != nil {
		return nil, cc.LeasingInvalidStateError.MakeErr().
			WithDetail(fmt.Sprintf("corrupt hash key range on lease %s", rec.LeaseKey)).WithCause(err)
	}
	return lease, nil
}

// convertError maps a PostgreSQL failure to the leasing error codes.
func (m *PostgresLeaseManager) convertError(operation, leaseKey string, err error) error {
	detail := fmt.Sprintf("%s lease %s in table %s", operation, leaseKey, m.tableName)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == pgUndefinedTable:
			return cc.LeasingInvalidStateError.MakeErr().WithDetail(detail).WithCause(err)
		case pqErr.Code.Class() == pgInsufficientResources:
			m.log.Warnf("Database out of resources during %s: %+v", detail, err)
			return cc.LeasingProvisionedThroughputError.MakeErr().WithDetail(detail).WithCause(err)
		}
	}
	return cc.LeasingDependencyError.MakeErr().WithDetail(detail).WithCause(err)
}
