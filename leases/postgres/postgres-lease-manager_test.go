package postgres

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmware/go-kcl-leases/clientlibrary/config"
	"github.com/vmware/go-kcl-leases/clientlibrary/types"
	"github.com/vmware/go-kcl-leases/leases/impl"
	"github.com/vmware/go-kcl-leases/leases/leasetest"
)

func newTestConfig() *config.LeaseClientConfiguration {
	return config.NewLeaseClientConfig("leases-test", "stream", "us-west-2", "worker-1").
		WithTableName("test_leases")
}

func TestPostgresLeaseManager(t *testing.T) {
	leasetest.RunLeaseManagerTests(t, func(t *testing.T) impl.ILeaseManager {
		return NewPostgresLeaseManager(newTestConfig(), SetupTestDatabase(t))
	})
}

func TestPostgresLeaseManagerDatastore(t *testing.T) {
	var (
		ctx = context.Background()
		sut = NewPostgresLeaseManager(newTestConfig(), SetupTestDatabase(t))
	)

	assert.Equal(t, "postgres", sut.ServiceName())
	require.NoError(t, sut.PingContext(ctx))
	assert.GreaterOrEqual(t, sut.GetDBStats().OpenConnections, 1)
}

func TestLeaseRecord(t *testing.T) {
	t.Run("should keep every stored field", func(t *testing.T) {
		// Arrange
		lease := leasetest.NewLease("shardId-000000000002", "shardId-000000000000")
		lease.SetLeaseOwner("worker-1")
		lease.SetLeaseCounter(4)
		require.NoError(t, lease.SetCheckpoint(types.NewExtendedSequenceNumber("100", 2)))
		lease.SetPendingCheckpoint(types.NewExtendedSequenceNumber("150", 0))
		require.NoError(t, lease.SetChildShardIds([]string{"shardId-000000000003"}))
		require.NoError(t, lease.SetHashKeyRange(types.MustNewHashKeyRange("0", "99")))

		// Act
		rec := ToRecord(lease)
		back, err := rec.ToLease()

		// Assert
		require.NoError(t, err)
		assert.True(t, lease.Equals(back))
		assert.Equal(t, []string{"shardId-000000000003"}, back.GetChildShardIds())
		assert.True(t, lease.GetHashKeyRange().Equals(back.GetHashKeyRange()))
	})

	t.Run("should map empty values to NULL", func(t *testing.T) {
		// Arrange
		lease := leasetest.NewLease("shardId-000000000001")

		// Act
		rec := ToRecord(lease)

		// Assert
		assert.False(t, rec.LeaseOwner.Valid)
		assert.False(t, rec.PendingCheckpoint.Valid)
		assert.False(t, rec.PendingCheckpointSub.Valid)
		assert.False(t, rec.StartingHashKey.Valid)
		assert.Equal(t, sql.NullString{String: "TRIM_HORIZON", Valid: true}, rec.Checkpoint)
	})

	t.Run("should reject a corrupt hash key range", func(t *testing.T) {
		// Arrange
		rec := ToRecord(leasetest.NewLease("shardId-000000000001"))
		rec.StartingHashKey = sql.NullString{String: "99", Valid: true}
		rec.EndingHashKey = sql.NullString{String: "0", Valid: true}

		// Act
		_, err := rec.ToLease()

		// Assert
		assert.Error(t, err)
	})
}
