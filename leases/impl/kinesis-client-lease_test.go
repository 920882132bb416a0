package impl

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cc "github.com/vmware/go-kcl-leases/clientlibrary/common"
	"github.com/vmware/go-kcl-leases/clientlibrary/types"
)

func seq(n string) *types.ExtendedSequenceNumber {
	return types.NewExtendedSequenceNumber(n, 0)
}

func newTestLease() *KinesisClientLease {
	return NewKinesisClientLeaseWithFields("shardId-000000000002", "worker-1", 7, uuid.New(), 1000,
		seq("100"), nil, 0,
		[]string{"shardId-000000000000", "shardId-000000000001"},
		[]string{"shardId-000000000003"},
		types.MustNewHashKeyRange("0", "99"))
}

func TestLeaseKeyIsImmutable(t *testing.T) {
	lease := NewKinesisClientLease()
	require.NoError(t, lease.SetLeaseKey("shardId-000000000001"))

	err := lease.SetLeaseKey("shardId-000000000002")
	assert.True(t, cc.IsErrorCode(err, cc.IllegalArgumentError))
	assert.Equal(t, "shardId-000000000001", lease.GetLeaseKey())
}

func TestLeaseIsExpired(t *testing.T) {
	lease := NewLease("shardId-0", "worker-1", 1, uuid.New(), 0)
	assert.True(t, lease.IsExpired(100, 50), "never renewed")

	lease.SetLastCounterIncrementNanos(1000)
	assert.False(t, lease.IsExpired(100, 1050))
	assert.True(t, lease.IsExpired(100, 1101))
	assert.True(t, lease.IsExpired(MAX_ABS_AGE_NANOS*2, 1000+MAX_ABS_AGE_NANOS+1))
}

func TestLeaseOwnership(t *testing.T) {
	lease := NewKinesisClientLease()
	assert.False(t, lease.IsOwned())

	lease.SetLeaseOwner("worker-1")
	assert.True(t, lease.IsOwned())

	lease.SetLeaseOwner("")
	assert.False(t, lease.IsOwned())
}

func TestCopyIsIndependent(t *testing.T) {
	orig := newTestLease()
	cp := orig.Copy()

	assert.True(t, orig.Equals(cp))
	assert.Equal(t, orig.HashCode(), cp.HashCode())
	assert.Equal(t, orig.GetConcurrencyToken(), cp.GetConcurrencyToken())
	assert.True(t, orig.GetHashKeyRange().Equals(cp.GetHashKeyRange()))

	require.NoError(t, cp.SetParentShardIds([]string{"shardId-000000000009"}))
	cp.AddChildShardId("shardId-000000000010")
	assert.Equal(t, []string{"shardId-000000000000", "shardId-000000000001"}, orig.GetParentShardIds())
	assert.Equal(t, []string{"shardId-000000000003"}, orig.GetChildShardIds())

	orig.AddChildShardId("shardId-000000000011")
	assert.False(t, cp.HasChildShardId("shardId-000000000011"))
}

func TestAccessorsReturnCopies(t *testing.T) {
	lease := newTestLease()

	parents := lease.GetParentShardIds()
	parents[0] = "mutated"
	assert.Equal(t, []string{"shardId-000000000000", "shardId-000000000001"}, lease.GetParentShardIds())

	ids := []string{"shardId-000000000004"}
	require.NoError(t, lease.SetChildShardIds(ids))
	ids[0] = "mutated"
	assert.Equal(t, []string{"shardId-000000000004"}, lease.GetChildShardIds())

	// empty but never nil
	assert.NotNil(t, NewKinesisClientLease().GetParentShardIds())
	assert.Empty(t, (&KinesisClientLease{}).GetChildShardIds())
}

func TestEqualsIgnoresChildrenAndHashKeyRange(t *testing.T) {
	a := newTestLease()
	b := a.Copy()

	require.NoError(t, b.SetChildShardIds([]string{"shardId-000000000042"}))
	require.NoError(t, b.SetHashKeyRange(types.MustNewHashKeyRange("100", "200")))
	b.SetConcurrencyToken(uuid.New())
	b.SetLastCounterIncrementNanos(999999)

	assert.True(t, a.Equals(b))
	assert.Equal(t, a.HashCode(), b.HashCode())
}

func TestEqualsComparesCheckpointFields(t *testing.T) {
	base := newTestLease()

	tests := []struct {
		name   string
		mutate func(l *KinesisClientLease)
	}{
		{"checkpoint", func(l *KinesisClientLease) { _ = l.SetCheckpoint(seq("101")) }},
		{"pending", func(l *KinesisClientLease) { l.SetPendingCheckpoint(seq("150")) }},
		{"ownerSwitches", func(l *KinesisClientLease) { _ = l.SetOwnerSwitchesSinceCheckpoint(1) }},
		{"parents", func(l *KinesisClientLease) { _ = l.SetParentShardIds([]string{"shardId-000000000000"}) }},
		{"owner", func(l *KinesisClientLease) { l.SetLeaseOwner("worker-2") }},
		{"counter", func(l *KinesisClientLease) { l.SetLeaseCounter(8) }},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			other := base.Copy()
			test.mutate(other)
			assert.False(t, base.Equals(other))
			assert.False(t, other.Equals(base))
		})
	}

	assert.False(t, base.Equals(nil))
}

func TestParentSetEqualityIgnoresOrder(t *testing.T) {
	a := newTestLease()
	b := a.Copy()
	require.NoError(t, b.SetParentShardIds([]string{"shardId-000000000001", "shardId-000000000000", "shardId-000000000001"}))

	assert.True(t, a.Equals(b))
	assert.Equal(t, a.HashCode(), b.HashCode())
}

func TestUpdateMergesCheckpointFields(t *testing.T) {
	local := newTestLease()
	localChildren := local.GetChildShardIds()
	localRange := local.GetHashKeyRange()

	remote := NewKinesisClientLeaseWithFields("shardId-000000000002", "worker-2", 9, uuid.New(), 2000,
		seq("120"), seq("130"), 3,
		[]string{"shardId-000000000005"},
		[]string{"shardId-000000000099"},
		types.MustNewHashKeyRange("0", "10"))

	require.NoError(t, local.Update(remote))

	assert.Equal(t, "worker-2", local.GetLeaseOwner())
	assert.Equal(t, int64(9), local.GetLeaseCounter())
	assert.Equal(t, remote.GetConcurrencyToken(), local.GetConcurrencyToken())
	assert.Equal(t, int64(2000), local.GetLastCounterIncrementNanos())
	assert.True(t, seq("120").Equals(local.GetCheckpoint()))
	assert.True(t, seq("130").Equals(local.GetPendingCheckpoint()))
	assert.Equal(t, int64(3), local.GetOwnerSwitchesSinceCheckpoint())
	assert.Equal(t, []string{"shardId-000000000005"}, local.GetParentShardIds())

	assert.Equal(t, localChildren, local.GetChildShardIds())
	assert.True(t, localRange.Equals(local.GetHashKeyRange()))
	assert.True(t, local.Equals(remote))

	// no aliasing of the parent set
	require.NoError(t, remote.SetParentShardIds([]string{}))
	assert.Equal(t, []string{"shardId-000000000005"}, local.GetParentShardIds())
}

func TestUpdateRejectsForeignTypes(t *testing.T) {
	lease := newTestLease()
	before := lease.Copy()

	err := lease.Update(NewLease("shardId-000000000002", "worker-9", 100, uuid.New(), 1))
	assert.True(t, cc.IsErrorCode(err, cc.IllegalArgumentError))

	err = lease.Update(nil)
	assert.True(t, cc.IsErrorCode(err, cc.IllegalArgumentError))

	var typedNil *KinesisClientLease
	err = lease.Update(typedNil)
	assert.True(t, cc.IsErrorCode(err, cc.IllegalArgumentError))

	err = lease.Update(NewKinesisClientLease())
	assert.True(t, cc.IsErrorCode(err, cc.IllegalArgumentError), "no checkpoint to adopt")

	assert.True(t, before.Equals(lease))
	assert.Equal(t, before.GetConcurrencyToken(), lease.GetConcurrencyToken())
}

func TestRequiredSettersRejectNil(t *testing.T) {
	lease := newTestLease()
	before := lease.Copy()

	assert.True(t, cc.IsErrorCode(lease.SetCheckpoint(nil), cc.IllegalArgumentError))
	assert.True(t, cc.IsErrorCode(lease.SetOwnerSwitchesSinceCheckpoint(-1), cc.IllegalArgumentError))
	assert.True(t, cc.IsErrorCode(lease.SetParentShardIds(nil), cc.IllegalArgumentError))
	assert.True(t, cc.IsErrorCode(lease.SetChildShardIds(nil), cc.IllegalArgumentError))
	assert.True(t, cc.IsErrorCode(lease.SetHashKeyRange(nil), cc.IllegalArgumentError))

	assert.True(t, before.Equals(lease))
	assert.Equal(t, before.GetChildShardIds(), lease.GetChildShardIds())
	assert.True(t, before.GetHashKeyRange().Equals(lease.GetHashKeyRange()))
}

func TestSetMutatorsReplace(t *testing.T) {
	lease := NewKinesisClientLease()

	require.NoError(t, lease.SetParentShardIds([]string{"x"}))
	require.NoError(t, lease.SetParentShardIds([]string{"y"}))
	assert.Equal(t, []string{"y"}, lease.GetParentShardIds())

	require.NoError(t, lease.SetChildShardIds([]string{"a", "b"}))
	require.NoError(t, lease.SetChildShardIds([]string{}))
	assert.Empty(t, lease.GetChildShardIds())

	assert.True(t, lease.AddChildShardId("c"))
	assert.False(t, lease.AddChildShardId("c"))
	assert.Equal(t, []string{"c"}, lease.GetChildShardIds())
}

func TestPendingCheckpointCanBeCleared(t *testing.T) {
	lease := newTestLease()
	lease.SetPendingCheckpoint(seq("150"))
	assert.True(t, lease.HasPendingCheckpoint())

	lease.SetPendingCheckpoint(nil)
	assert.False(t, lease.HasPendingCheckpoint())
	assert.Nil(t, lease.GetPendingCheckpoint())
}

func TestTwoPhaseCheckpointAcrossOwnerSwitch(t *testing.T) {
	lease := NewKinesisClientLease()
	require.NoError(t, lease.SetLeaseKey("shardId-000000000001"))
	require.NoError(t, lease.SetCheckpoint(seq("100")))
	lease.SetLeaseOwner("worker-0")

	// worker-a takes the lease without advancing the checkpoint
	lease.SetLeaseOwner("worker-a")
	lease.SetLeaseCounter(lease.GetLeaseCounter() + 1)
	lease.SetConcurrencyToken(uuid.New())
	require.NoError(t, lease.SetOwnerSwitchesSinceCheckpoint(lease.GetOwnerSwitchesSinceCheckpoint()+1))
	assert.Equal(t, int64(1), lease.GetOwnerSwitchesSinceCheckpoint())

	lease.SetPendingCheckpoint(seq("150"))
	assert.True(t, seq("100").Equals(lease.GetCheckpoint()))

	require.NoError(t, lease.SetCheckpoint(seq("150")))
	lease.SetPendingCheckpoint(nil)
	require.NoError(t, lease.SetOwnerSwitchesSinceCheckpoint(0))

	assert.True(t, seq("150").Equals(lease.GetCheckpoint()))
	assert.Nil(t, lease.GetPendingCheckpoint())
	assert.Equal(t, int64(0), lease.GetOwnerSwitchesSinceCheckpoint())
}

func TestIsClosed(t *testing.T) {
	lease := NewKinesisClientLease()
	assert.False(t, lease.IsClosed())

	require.NoError(t, lease.SetCheckpoint(types.SHARD_END))
	assert.True(t, lease.IsClosed())
}
