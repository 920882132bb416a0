package config

import (
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/stretchr/testify/assert"

	"github.com/vmware/go-kcl-leases/clientlibrary/metrics"
)

func TestConfig(t *testing.T) {
	kclConfig := NewLeaseClientConfig("appName", "StreamName", "us-west-2", "workerId").
		WithFailoverTimeMillis(500).
		WithInitialPositionInStream(TRIM_HORIZON).
		WithTableName("leases").
		WithLeaseTableCapacity(5, 7).
		WithShardSyncMaxAttempts(4).
		WithConsistentReads(true)

	assert.Equal(t, "appName", kclConfig.ApplicationName)
	assert.Equal(t, "leases", kclConfig.TableName)
	assert.Equal(t, 500, kclConfig.FailoverTimeMillis)
	assert.Equal(t, TRIM_HORIZON, kclConfig.InitialPositionInStream)
	assert.Equal(t, 5, kclConfig.InitialLeaseTableReadCapacity)
	assert.Equal(t, 7, kclConfig.InitialLeaseTableWriteCapacity)
	assert.Equal(t, 4, kclConfig.ShardSyncMaxAttempts)
	assert.True(t, kclConfig.ConsistentReads)
	assert.Equal(t, "TRIM_HORIZON", aws.StringValue(InitalPositionInStreamToShardIteratorType(kclConfig.InitialPositionInStream)))
}

func TestConfigDefaults(t *testing.T) {
	kclConfig := NewLeaseClientConfig("appName", "StreamName", "us-west-2", "")

	assert.NotEmpty(t, kclConfig.WorkerID)
	assert.Equal(t, "appName", kclConfig.TableName)
	assert.Equal(t, LATEST, kclConfig.InitialPositionInStream)
	assert.True(t, kclConfig.CleanupTerminatedShardsBeforeExpiry)
	assert.Equal(t, DefaultRedisKeyPrefix, kclConfig.RedisKeyPrefix)
	assert.NotNil(t, kclConfig.Logger)
	assert.Equal(t, metrics.NoopMonitoringService{}, kclConfig.MonitoringService)

	kclConfig.WithMonitoringService(nil)
	assert.Equal(t, metrics.NoopMonitoringService{}, kclConfig.MonitoringService)
}

func TestConfigAtTimestamp(t *testing.T) {
	ts := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	kclConfig := NewLeaseClientConfig("appName", "StreamName", "us-west-2", "w").
		WithTimestampAtInitialPositionInStream(&ts)

	assert.Equal(t, AT_TIMESTAMP, kclConfig.InitialPositionInStream)
	assert.Equal(t, &ts, kclConfig.InitialPositionInStreamExtended.Timestamp)
}

func TestConfigFailsFast(t *testing.T) {
	assert.Panics(t, func() {
		NewLeaseClientConfig("", "StreamName", "us-west-2", "w")
	})
	assert.Panics(t, func() {
		NewLeaseClientConfig("app", "StreamName", "us-west-2", "w").WithFailoverTimeMillis(0)
	})
	assert.Panics(t, func() {
		NewLeaseClientConfig("app", "StreamName", "us-west-2", "w").WithLogger(nil)
	})
}
