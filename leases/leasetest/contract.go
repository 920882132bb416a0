// Package leasetest holds the behaviour every ILeaseManager backend has to show. Backends run it from their own
// tests with a factory for a manager whose lease table does not exist yet.
package leasetest

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cc "github.com/vmware/go-kcl-leases/clientlibrary/common"
	"github.com/vmware/go-kcl-leases/clientlibrary/types"
	"github.com/vmware/go-kcl-leases/leases/impl"
)

// NewLease returns an unowned lease for shardID checkpointed at TRIM_HORIZON.
func NewLease(shardID string, parents ...string) *impl.KinesisClientLease {
	return impl.NewKinesisClientLeaseWithFields(shardID, "", 0, uuid.Nil, 0,
		types.TRIM_HORIZON, nil, 0, parents, []string{}, nil)
}

// RunLeaseManagerTests checks the conditional write semantics shared by all lease managers.
func RunLeaseManagerTests(t *testing.T, newManager func(t *testing.T) impl.ILeaseManager) {
	var (
		ctx      = context.Background()
		newTable = func(t *testing.T) impl.ILeaseManager {
			sut := newManager(t)
			created, err := sut.CreateLeaseTableIfNotExists(ctx)
			require.NoError(t, err)
			require.True(t, created)
			return sut
		}
		mustCreate = func(t *testing.T, sut impl.ILeaseManager, lease *impl.KinesisClientLease) {
			created, err := sut.CreateLeaseIfNotExists(ctx, lease)
			require.NoError(t, err)
			require.True(t, created)
		}
		mustGet = func(t *testing.T, sut impl.ILeaseManager, key string) *impl.KinesisClientLease {
			lease, err := sut.GetLease(ctx, key)
			require.NoError(t, err)
			require.NotNil(t, lease)
			return lease
		}
	)

	t.Run("should fail with invalid state before the table exists", func(t *testing.T) {
		sut := newManager(t)

		exists, err := sut.LeaseTableExists(ctx)
		require.NoError(t, err)
		assert.False(t, exists)

		_, err = sut.ListLeases(ctx)
		assert.True(t, cc.IsErrorCode(err, cc.LeasingInvalidStateError), "got %v", err)
	})

	t.Run("should create the table only once", func(t *testing.T) {
		sut := newTable(t)

		created, err := sut.CreateLeaseTableIfNotExists(ctx)
		require.NoError(t, err)
		assert.False(t, created)

		exists, err := sut.WaitUntilLeaseTableExists(ctx, 1, 5)
		require.NoError(t, err)
		assert.True(t, exists)

		empty, err := sut.IsLeaseTableEmpty(ctx)
		require.NoError(t, err)
		assert.True(t, empty)
	})

	t.Run("should create a lease only once and read it back", func(t *testing.T) {
		var (
			sut   = newTable(t)
			lease = NewLease("shardId-000000000002", "shardId-000000000000", "shardId-000000000001")
		)
		require.NoError(t, lease.SetHashKeyRange(types.MustNewHashKeyRange("0", "340282366920938463463374607431768211455")))
		mustCreate(t, sut, lease)

		created, err := sut.CreateLeaseIfNotExists(ctx, NewLease("shardId-000000000002"))
		require.NoError(t, err)
		assert.False(t, created)

		stored := mustGet(t, sut, "shardId-000000000002")
		assert.True(t, lease.Equals(stored), "stored %s", stored)
		assert.Equal(t, []string{"shardId-000000000000", "shardId-000000000001"}, stored.GetParentShardIds())
		assert.True(t, lease.GetHashKeyRange().Equals(stored.GetHashKeyRange()))
		assert.False(t, stored.IsOwned())
	})

	t.Run("should return nil for a missing lease", func(t *testing.T) {
		sut := newTable(t)

		lease, err := sut.GetLease(ctx, "shardId-000000000009")
		require.NoError(t, err)
		assert.Nil(t, lease)
	})

	t.Run("should renew only with the current counter", func(t *testing.T) {
		var (
			sut   = newTable(t)
			lease = NewLease("shardId-000000000001")
		)
		mustCreate(t, sut, lease)
		stale := lease.Copy()

		ok, err := sut.RenewLease(ctx, lease)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(1), lease.GetLeaseCounter())
		assert.NotZero(t, lease.GetLastCounterIncrementNanos())

		ok, err = sut.RenewLease(ctx, stale)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, int64(0), stale.GetLeaseCounter())

		assert.Equal(t, int64(1), mustGet(t, sut, "shardId-000000000001").GetLeaseCounter())
	})

	t.Run("should take a lease and count the owner switch", func(t *testing.T) {
		var (
			sut   = newTable(t)
			lease = NewLease("shardId-000000000001")
		)
		mustCreate(t, sut, lease)

		ok, err := sut.TakeLease(ctx, lease, "worker-1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "worker-1", lease.GetLeaseOwner())
		assert.Equal(t, int64(1), lease.GetOwnerSwitchesSinceCheckpoint())
		assert.NotEqual(t, uuid.Nil, lease.GetConcurrencyToken())
		firstToken := lease.GetConcurrencyToken()

		ok, err = sut.TakeLease(ctx, lease, "worker-1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(1), lease.GetOwnerSwitchesSinceCheckpoint(), "same owner is not a switch")
		assert.NotEqual(t, firstToken, lease.GetConcurrencyToken())

		stored := mustGet(t, sut, "shardId-000000000001")
		assert.Equal(t, "worker-1", stored.GetLeaseOwner())
		assert.Equal(t, int64(2), stored.GetLeaseCounter())
		assert.Equal(t, int64(1), stored.GetOwnerSwitchesSinceCheckpoint())
		assert.True(t, lease.Equals(stored))
	})

	t.Run("should not take a lease with a stale counter", func(t *testing.T) {
		var (
			sut   = newTable(t)
			lease = NewLease("shardId-000000000001")
		)
		mustCreate(t, sut, lease)
		stale := lease.Copy()

		ok, err := sut.TakeLease(ctx, lease, "worker-1")
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = sut.TakeLease(ctx, stale, "worker-2")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, "worker-1", mustGet(t, sut, "shardId-000000000001").GetLeaseOwner())
	})

	t.Run("should evict only the expected owner", func(t *testing.T) {
		var (
			sut   = newTable(t)
			lease = NewLease("shardId-000000000001")
		)
		mustCreate(t, sut, lease)
		ok, err := sut.TakeLease(ctx, lease, "worker-1")
		require.NoError(t, err)
		require.True(t, ok)

		wrongOwner := lease.Copy()
		wrongOwner.SetLeaseOwner("worker-2")
		ok, err = sut.EvictLease(ctx, wrongOwner)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = sut.EvictLease(ctx, lease)
		require.NoError(t, err)
		require.True(t, ok)
		assert.False(t, lease.IsOwned())

		stored := mustGet(t, sut, "shardId-000000000001")
		assert.False(t, stored.IsOwned())
		assert.Equal(t, lease.GetLeaseCounter(), stored.GetLeaseCounter())
	})

	t.Run("should update checkpoint state and children but never parents", func(t *testing.T) {
		var (
			sut   = newTable(t)
			lease = NewLease("shardId-000000000002", "shardId-000000000000")
		)
		mustCreate(t, sut, lease)

		require.NoError(t, lease.SetCheckpoint(types.NewExtendedSequenceNumber("100", 3)))
		lease.SetPendingCheckpoint(types.NewExtendedSequenceNumber("150", 0))
		require.NoError(t, lease.SetOwnerSwitchesSinceCheckpoint(2))
		require.NoError(t, lease.SetChildShardIds([]string{"shardId-000000000004", "shardId-000000000003"}))
		require.NoError(t, lease.SetParentShardIds([]string{"shardId-000000000009"}))

		ok, err := sut.UpdateLease(ctx, lease)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(1), lease.GetLeaseCounter())

		stored := mustGet(t, sut, "shardId-000000000002")
		assert.True(t, stored.GetCheckpoint().Equals(types.NewExtendedSequenceNumber("100", 3)))
		assert.True(t, stored.GetPendingCheckpoint().Equals(types.NewExtendedSequenceNumber("150", 0)))
		assert.Equal(t, int64(2), stored.GetOwnerSwitchesSinceCheckpoint())
		assert.Equal(t, []string{"shardId-000000000003", "shardId-000000000004"}, stored.GetChildShardIds())
		assert.Equal(t, []string{"shardId-000000000000"}, stored.GetParentShardIds())
		assert.Equal(t, int64(1), stored.GetLeaseCounter())
	})

	t.Run("should clear the pending checkpoint and children", func(t *testing.T) {
		var (
			sut   = newTable(t)
			lease = NewLease("shardId-000000000001")
		)
		lease.SetPendingCheckpoint(types.NewExtendedSequenceNumber("150", 0))
		require.NoError(t, lease.SetChildShardIds([]string{"shardId-000000000002"}))
		mustCreate(t, sut, lease)

		lease.SetPendingCheckpoint(nil)
		require.NoError(t, lease.SetChildShardIds([]string{}))
		ok, err := sut.UpdateLease(ctx, lease)
		require.NoError(t, err)
		require.True(t, ok)

		stored := mustGet(t, sut, "shardId-000000000001")
		assert.False(t, stored.HasPendingCheckpoint())
		assert.Empty(t, stored.GetChildShardIds())
	})

	t.Run("should not update with a stale counter", func(t *testing.T) {
		var (
			sut   = newTable(t)
			lease = NewLease("shardId-000000000001")
		)
		mustCreate(t, sut, lease)
		stale := lease.Copy()

		ok, err := sut.RenewLease(ctx, lease)
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, stale.SetCheckpoint(types.NewExtendedSequenceNumber("500", 0)))
		ok, err = sut.UpdateLease(ctx, stale)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.True(t, mustGet(t, sut, "shardId-000000000001").GetCheckpoint().Equals(types.TRIM_HORIZON))
	})

	t.Run("should reject an update without a checkpoint", func(t *testing.T) {
		var (
			sut   = newTable(t)
			lease = impl.NewKinesisClientLease()
		)
		require.NoError(t, lease.SetLeaseKey("shardId-000000000001"))

		_, err := sut.UpdateLease(ctx, lease)
		assert.True(t, cc.IsErrorCode(err, cc.IllegalArgumentError), "got %v", err)
	})

	t.Run("should list and delete leases", func(t *testing.T) {
		sut := newTable(t)
		for _, key := range []string{"shardId-000000000002", "shardId-000000000000", "shardId-000000000001"} {
			mustCreate(t, sut, NewLease(key))
		}

		leases, err := sut.ListLeases(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"shardId-000000000000", "shardId-000000000001", "shardId-000000000002"}, keysOf(leases))

		require.NoError(t, sut.DeleteLease(ctx, NewLease("shardId-000000000001")))
		leases, err = sut.ListLeases(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"shardId-000000000000", "shardId-000000000002"}, keysOf(leases))

		empty, err := sut.IsLeaseTableEmpty(ctx)
		require.NoError(t, err)
		assert.False(t, empty)

		require.NoError(t, sut.DeleteAll(ctx))
		empty, err = sut.IsLeaseTableEmpty(ctx)
		require.NoError(t, err)
		assert.True(t, empty)
	})
}

func keysOf(leases []*impl.KinesisClientLease) []string {
	keys := make([]string, 0, len(leases))
	for _, l := range leases {
		keys = append(keys, l.GetLeaseKey())
	}
	return keys
}
