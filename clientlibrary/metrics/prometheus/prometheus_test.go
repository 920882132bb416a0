package prometheus

import (
	"bytes"
	"testing"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmware/go-kcl-leases/clientlibrary/metrics"
	"github.com/vmware/go-kcl-leases/logger"
)

var _ metrics.MonitoringService = (*MonitoringService)(nil)
var _ metrics.MonitoringService = metrics.NoopMonitoringService{}

func scrape(t *testing.T, reg *prom.Registry) string {
	families, err := reg.Gather()
	require.NoError(t, err)

	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.FmtText)
	for _, mf := range families {
		require.NoError(t, enc.Encode(mf))
	}
	return buf.String()
}

func TestLeaseMetrics(t *testing.T) {
	reg := prom.NewRegistry()
	svc := NewMonitoringService(":0", "us-west-2", logger.GetDefaultLogger()).WithRegistry(reg)
	require.NoError(t, svc.Init("orders", "orders-stream", "worker-1"))

	svc.LeaseCreated("shardId-000000000001")
	svc.LeaseGained("shardId-000000000001")
	svc.LeaseRenewed("shardId-000000000001")
	svc.LeaseRenewed("shardId-000000000001")
	svc.ConditionalCheckFailed("shardId-000000000001", "UpdateLease")
	svc.CheckpointAdvanced("shardId-000000000001")
	svc.OwnerSwitches("shardId-000000000001", 3)
	svc.RecordLeaseOperationTime("TakeLease", 12)

	out := scrape(t, reg)
	assert.Contains(t, out, `orders_leases_created{kinesisStream="orders-stream",shard="shardId-000000000001"} 1`)
	assert.Contains(t, out, `orders_leases_held{kinesisStream="orders-stream",shard="shardId-000000000001",workerID="worker-1"} 1`)
	assert.Contains(t, out, `orders_lease_renewals{kinesisStream="orders-stream",shard="shardId-000000000001",workerID="worker-1"} 2`)
	assert.Contains(t, out, `orders_lease_condition_failures{kinesisStream="orders-stream",operation="UpdateLease",shard="shardId-000000000001"} 1`)
	assert.Contains(t, out, `orders_owner_switches_since_checkpoint{kinesisStream="orders-stream",shard="shardId-000000000001"} 3`)
	assert.Contains(t, out, `orders_lease_operation_duration_seconds_count{kinesisStream="orders-stream",operation="TakeLease"} 1`)

	svc.LeaseLost("shardId-000000000001")
	out = scrape(t, reg)
	assert.Contains(t, out, `orders_leases_held{kinesisStream="orders-stream",shard="shardId-000000000001",workerID="worker-1"} 0`)
}

func TestInitTwiceFailsOnSameRegistry(t *testing.T) {
	reg := prom.NewRegistry()
	require.NoError(t, NewMonitoringService(":0", "us-west-2", logger.GetDefaultLogger()).WithRegistry(reg).Init("app", "s", "w"))

	err := NewMonitoringService(":0", "us-west-2", logger.GetDefaultLogger()).WithRegistry(reg).Init("app", "s", "w")
	assert.Error(t, err)
}
