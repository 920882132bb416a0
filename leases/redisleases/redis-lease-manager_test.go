package redisleases

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cc "github.com/vmware/go-kcl-leases/clientlibrary/common"
	"github.com/vmware/go-kcl-leases/clientlibrary/config"
	"github.com/vmware/go-kcl-leases/clientlibrary/types"
	"github.com/vmware/go-kcl-leases/leases/impl"
	"github.com/vmware/go-kcl-leases/leases/leasetest"
)

const testRedisAddrEnv = "LEASES_REDIS_ADDR"

func newTestManager(t *testing.T) impl.ILeaseManager {
	addr := os.Getenv(testRedisAddrEnv)
	if addr == "" {
		t.Skipf("%s is not set", testRedisAddrEnv)
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	cfg := config.NewLeaseClientConfig("leases-test", "stream", "us-west-2", "worker-1").
		WithTableName("test_" + uuid.New().String()[0:8]).
		WithRedisKeyPrefix("leases-test")
	mgr := NewRedisLeaseManager(cfg, client)

	t.Cleanup(func() {
		ctx := context.Background()
		_ = mgr.DeleteAll(ctx)
		_ = client.Del(ctx, mgr.tableKey()).Err()
		_ = client.Close()
	})
	return mgr
}

func TestRedisLeaseManager(t *testing.T) {
	leasetest.RunLeaseManagerTests(t, newTestManager)
}

func TestLeaseHash(t *testing.T) {
	t.Run("should keep every stored field", func(t *testing.T) {
		lease := leasetest.NewLease("shardId-000000000002", "shardId-000000000000", "shardId-000000000001")
		lease.SetLeaseOwner("worker-1")
		lease.SetLeaseCounter(9)
		require.NoError(t, lease.SetCheckpoint(types.NewExtendedSequenceNumber("100", 2)))
		lease.SetPendingCheckpoint(types.NewExtendedSequenceNumber("150", 1))
		require.NoError(t, lease.SetOwnerSwitchesSinceCheckpoint(3))
		require.NoError(t, lease.SetChildShardIds([]string{"shardId-000000000003"}))
		require.NoError(t, lease.SetHashKeyRange(types.MustNewHashKeyRange("0", "99")))

		back, err := fromHash(toHash(lease))

		require.NoError(t, err)
		assert.True(t, lease.Equals(back))
		assert.Equal(t, []string{"shardId-000000000003"}, back.GetChildShardIds())
		assert.True(t, lease.GetHashKeyRange().Equals(back.GetHashKeyRange()))
	})

	t.Run("should leave out empty values", func(t *testing.T) {
		fields := toHash(leasetest.NewLease("shardId-000000000001"))

		assert.NotContains(t, fields, impl.LEASE_OWNER_KEY)
		assert.NotContains(t, fields, impl.PENDING_CHECKPOINT_SEQUENCE_NUMBER_KEY)
		assert.NotContains(t, fields, impl.PARENT_SHARD_ID_KEY)
		assert.NotContains(t, fields, impl.STARTING_HASH_KEY)
		assert.Equal(t, "TRIM_HORIZON", fields[impl.CHECKPOINT_SEQUENCE_NUMBER_KEY])
	})

	t.Run("should reject a corrupt hash key range", func(t *testing.T) {
		fields := toHash(leasetest.NewLease("shardId-000000000001"))
		fields[impl.STARTING_HASH_KEY] = "x"
		fields[impl.ENDING_HASH_KEY] = "99"

		_, err := fromHash(fields)
		assert.Error(t, err)
	})

	for _, field := range []string{impl.LEASE_COUNTER_KEY, impl.OWNER_SWITCHES_KEY, impl.CHECKPOINT_SUBSEQUENCE_NUMBER_KEY} {
		t.Run("should reject a corrupt "+field, func(t *testing.T) {
			fields := toHash(leasetest.NewLease("shardId-000000000001"))
			fields[field] = "seven"

			back, err := fromHash(fields)

			assert.Nil(t, back)
			assert.True(t, cc.IsErrorCode(err, cc.LeasingInvalidStateError))
		})
	}
}

func TestMutationArgs(t *testing.T) {
	mut := &mutation{
		field:    impl.LEASE_COUNTER_KEY,
		expected: "4",
		set:      map[string]string{"b": "2", "a": "1"},
		del:      []string{"c"},
		incr:     map[string]int64{impl.LEASE_COUNTER_KEY: 1},
	}

	assert.Equal(t, []interface{}{
		impl.LEASE_COUNTER_KEY, "4",
		2, "a", "1", "b", "2",
		1, "c",
		1, impl.LEASE_COUNTER_KEY, int64(1),
	}, mut.args())
}
