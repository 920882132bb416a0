package impl

import (
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cc "github.com/vmware/go-kcl-leases/clientlibrary/common"
)

func TestSerializerRoundTrip(t *testing.T) {
	var (
		serializer = &KinesisClientLeaseSerializer{}
		lease      = newTestLease()
	)
	lease.SetPendingCheckpoint(seq("150"))

	record, err := serializer.ToDynamoRecord(lease)
	require.NoError(t, err)
	assert.Equal(t, "shardId-000000000002", aws.StringValue(record[LEASE_KEY_KEY].S))
	assert.Equal(t, "7", aws.StringValue(record[LEASE_COUNTER_KEY].N))
	assert.ElementsMatch(t, []string{"shardId-000000000000", "shardId-000000000001"},
		aws.StringValueSlice(record[PARENT_SHARD_ID_KEY].SS))

	back, err := serializer.FromDynamoRecord(record)
	require.NoError(t, err)
	assert.True(t, lease.Equals(back))
	assert.Equal(t, lease.GetChildShardIds(), back.GetChildShardIds())
	assert.True(t, lease.GetHashKeyRange().Equals(back.GetHashKeyRange()))
	assert.True(t, back.GetPendingCheckpoint().Equals(seq("150")))
}

func TestSerializerLeavesOutEmptyAttributes(t *testing.T) {
	lease := NewKinesisClientLease()
	require.NoError(t, lease.SetLeaseKey("shardId-000000000001"))

	record, err := (&KinesisClientLeaseSerializer{}).ToDynamoRecord(lease)
	require.NoError(t, err)
	for _, name := range []string{LEASE_OWNER_KEY, CHECKPOINT_SEQUENCE_NUMBER_KEY, PENDING_CHECKPOINT_SEQUENCE_NUMBER_KEY,
		PARENT_SHARD_ID_KEY, CHILD_SHARD_IDS_KEY, STARTING_HASH_KEY} {
		assert.NotContains(t, record, name)
	}
}

func TestSerializerRejectsCorruptHashKeyRange(t *testing.T) {
	record, err := (&KinesisClientLeaseSerializer{}).ToDynamoRecord(newTestLease())
	require.NoError(t, err)
	record[STARTING_HASH_KEY] = &dynamodb.AttributeValue{S: aws.String("not-a-number")}

	_, err = (&KinesisClientLeaseSerializer{}).FromDynamoRecord(record)
	assert.True(t, cc.IsErrorCode(err, cc.LeasingInvalidStateError))
}

func TestSerializerOwnerExpectation(t *testing.T) {
	serializer := &KinesisClientLeaseSerializer{}

	owned := serializer.GetDynamoLeaseOwnerExpectation(newTestLease())
	assert.Equal(t, "worker-1", aws.StringValue(owned[LEASE_OWNER_KEY].Value.S))

	unowned := newTestLease()
	unowned.SetLeaseOwner("")
	expected := serializer.GetDynamoLeaseOwnerExpectation(unowned)
	assert.False(t, aws.BoolValue(expected[LEASE_OWNER_KEY].Exists))
}

func TestSerializerTakeLeaseUpdate(t *testing.T) {
	serializer := &KinesisClientLeaseSerializer{}

	updates := serializer.GetDynamoTakeLeaseUpdate(newTestLease(), "worker-2")
	assert.Equal(t, "worker-2", aws.StringValue(updates[LEASE_OWNER_KEY].Value.S))
	assert.Equal(t, dynamodb.AttributeActionAdd, aws.StringValue(updates[OWNER_SWITCHES_KEY].Action))

	updates = serializer.GetDynamoTakeLeaseUpdate(newTestLease(), "worker-1")
	assert.NotContains(t, updates, OWNER_SWITCHES_KEY)
}

func TestSerializerUpdateLeaseUpdate(t *testing.T) {
	serializer := &KinesisClientLeaseSerializer{}

	updates, err := serializer.GetDynamoUpdateLeaseUpdate(newTestLease())
	require.NoError(t, err)
	assert.Equal(t, "8", aws.StringValue(updates[LEASE_COUNTER_KEY].Value.N))
	assert.Equal(t, "100", aws.StringValue(updates[CHECKPOINT_SEQUENCE_NUMBER_KEY].Value.S))
	assert.Equal(t, dynamodb.AttributeActionDelete, aws.StringValue(updates[PENDING_CHECKPOINT_SEQUENCE_NUMBER_KEY].Action))
	assert.Equal(t, []string{"shardId-000000000003"}, aws.StringValueSlice(updates[CHILD_SHARD_IDS_KEY].Value.SS))
	assert.NotContains(t, updates, PARENT_SHARD_ID_KEY)

	noCheckpoint := NewKinesisClientLease()
	_, err = serializer.GetDynamoUpdateLeaseUpdate(noCheckpoint)
	assert.True(t, cc.IsErrorCode(err, cc.IllegalArgumentError))
}
