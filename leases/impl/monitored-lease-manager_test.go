package impl

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmware/go-kcl-leases/clientlibrary/metrics"
	"github.com/vmware/go-kcl-leases/logger"
)

// recordingMonitoringService remembers the lease events it was told about.
type recordingMonitoringService struct {
	metrics.NoopMonitoringService

	mu     sync.Mutex
	events []string
	timed  map[string]int
}

func (r *recordingMonitoringService) record(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingMonitoringService) LeaseCreated(shard string) { r.record("created " + shard) }
func (r *recordingMonitoringService) LeaseDeleted(shard string) { r.record("deleted " + shard) }
func (r *recordingMonitoringService) LeaseGained(shard string)  { r.record("gained " + shard) }
func (r *recordingMonitoringService) LeaseLost(shard string)    { r.record("lost " + shard) }
func (r *recordingMonitoringService) LeaseRenewed(shard string) { r.record("renewed " + shard) }
func (r *recordingMonitoringService) LeaseEvicted(shard string) { r.record("evicted " + shard) }
func (r *recordingMonitoringService) ConditionalCheckFailed(shard, operation string) {
	r.record("conflict " + operation + " " + shard)
}

func (r *recordingMonitoringService) RecordLeaseOperationTime(operation string, millis float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timed == nil {
		r.timed = map[string]int{}
	}
	r.timed[operation]++
}

func TestMonitoredLeaseManagerEvents(t *testing.T) {
	var (
		ctx      = context.Background()
		mService = &recordingMonitoringService{}
		mgr      = NewMonitoredLeaseManager(NewMemoryLeaseManager(logger.GetDefaultLogger()), mService, "worker-1")
		lease    = NewKinesisClientLease()
	)
	_, err := mgr.CreateLeaseTableIfNotExists(ctx)
	require.NoError(t, err)
	require.NoError(t, lease.SetLeaseKey("shardId-000000000001"))
	require.NoError(t, lease.SetCheckpoint(seq("100")))

	created, err := mgr.CreateLeaseIfNotExists(ctx, lease)
	require.NoError(t, err)
	require.True(t, created)

	ok, err := mgr.TakeLease(ctx, lease, "worker-1")
	require.NoError(t, err)
	require.True(t, ok)

	stale := lease.Copy()
	ok, err = mgr.RenewLease(ctx, lease)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = mgr.RenewLease(ctx, stale)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = mgr.EvictLease(ctx, lease)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, mgr.DeleteLease(ctx, lease))

	assert.Equal(t, []string{
		"created shardId-000000000001",
		"gained shardId-000000000001",
		"renewed shardId-000000000001",
		"conflict RenewLease shardId-000000000001",
		"lost shardId-000000000001",
		"evicted shardId-000000000001",
		"lost shardId-000000000001",
		"deleted shardId-000000000001",
	}, mService.events)
	assert.Equal(t, 2, mService.timed["RenewLease"])
	assert.Equal(t, 1, mService.timed["DeleteLease"])
}
