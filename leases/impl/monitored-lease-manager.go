package impl

import (
	"context"
	"time"

	"github.com/vmware/go-kcl-leases/clientlibrary/metrics"
)

// MonitoredLeaseManager decorates an ILeaseManager with metrics: lease lifecycle events, condition failures and
// the latency of every call.
type MonitoredLeaseManager struct {
	ILeaseManager
	mService metrics.MonitoringService
	workerID string
}

var _ ILeaseManager = (*MonitoredLeaseManager)(nil)

func NewMonitoredLeaseManager(delegate ILeaseManager, mService metrics.MonitoringService, workerID string) *MonitoredLeaseManager {
	if mService == nil {
		mService = metrics.NoopMonitoringService{}
	}
	return &MonitoredLeaseManager{
		ILeaseManager: delegate,
		mService:      mService,
		workerID:      workerID,
	}
}

func (m *MonitoredLeaseManager) timed(operation string) func() {
	start := time.Now()
	return func() {
		m.mService.RecordLeaseOperationTime(operation, float64(time.Since(start).Milliseconds()))
	}
}

func (m *MonitoredLeaseManager) conditional(operation string, lease *KinesisClientLease, ok bool, err error) {
	if err == nil && !ok {
		m.mService.ConditionalCheckFailed(lease.GetLeaseKey(), operation)
	}
}

func (m *MonitoredLeaseManager) CreateLeaseIfNotExists(ctx context.Context, lease *KinesisClientLease) (bool, error) {
	defer m.timed("CreateLease")()

	ok, err := m.ILeaseManager.CreateLeaseIfNotExists(ctx, lease)
	if ok {
		m.mService.LeaseCreated(lease.GetLeaseKey())
	}
	return ok, err
}

func (m *MonitoredLeaseManager) RenewLease(ctx context.Context, lease *KinesisClientLease) (bool, error) {
	defer m.timed("RenewLease")()

	ok, err := m.ILeaseManager.RenewLease(ctx, lease)
	m.conditional("RenewLease", lease, ok, err)
	if ok {
		m.mService.LeaseRenewed(lease.GetLeaseKey())
	} else if err == nil && lease.GetLeaseOwner() == m.workerID {
		m.mService.LeaseLost(lease.GetLeaseKey())
	}
	return ok, err
}

func (m *MonitoredLeaseManager) TakeLease(ctx context.Context, lease *KinesisClientLease, owner string) (bool, error) {
	defer m.timed("TakeLease")()

	ok, err := m.ILeaseManager.TakeLease(ctx, lease, owner)
	m.conditional("TakeLease", lease, ok, err)
	if ok {
		if owner == m.workerID {
			m.mService.LeaseGained(lease.GetLeaseKey())
		}
		m.mService.OwnerSwitches(lease.GetLeaseKey(), lease.GetOwnerSwitchesSinceCheckpoint())
	}
	return ok, err
}

func (m *MonitoredLeaseManager) EvictLease(ctx context.Context, lease *KinesisClientLease) (bool, error) {
	defer m.timed("EvictLease")()

	previousOwner := lease.GetLeaseOwner()
	ok, err := m.ILeaseManager.EvictLease(ctx, lease)
	m.conditional("EvictLease", lease, ok, err)
	if ok {
		m.mService.LeaseEvicted(lease.GetLeaseKey())
		if previousOwner == m.workerID {
			m.mService.LeaseLost(lease.GetLeaseKey())
		}
	}
	return ok, err
}

func (m *MonitoredLeaseManager) UpdateLease(ctx context.Context, lease *KinesisClientLease) (bool, error) {
	defer m.timed("UpdateLease")()

	ok, err := m.ILeaseManager.UpdateLease(ctx, lease)
	m.conditional("UpdateLease", lease, ok, err)
	if ok {
		m.mService.OwnerSwitches(lease.GetLeaseKey(), lease.GetOwnerSwitchesSinceCheckpoint())
	}
	return ok, err
}

func (m *MonitoredLeaseManager) DeleteLease(ctx context.Context, lease *KinesisClientLease) error {
	defer m.timed("DeleteLease")()

	err := m.ILeaseManager.DeleteLease(ctx, lease)
	if err == nil {
		m.mService.LeaseDeleted(lease.GetLeaseKey())
	}
	return err
}

func (m *MonitoredLeaseManager) ListLeases(ctx context.Context) ([]*KinesisClientLease, error) {
	defer m.timed("ListLeases")()
	return m.ILeaseManager.ListLeases(ctx)
}

func (m *MonitoredLeaseManager) GetLease(ctx context.Context, shardId string) (*KinesisClientLease, error) {
	defer m.timed("GetLease")()
	return m.ILeaseManager.GetLease(ctx, shardId)
}
