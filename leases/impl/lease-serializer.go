package impl

import (
	"fmt"

	"github.com/aws/aws-sdk-go/service/dynamodb"

	cc "github.com/vmware/go-kcl-leases/clientlibrary/common"
	"github.com/vmware/go-kcl-leases/clientlibrary/types"
	"github.com/vmware/go-kcl-leases/leases/dynamoutils"
)

const (
	LEASE_KEY_KEY                             = "leaseKey"
	LEASE_OWNER_KEY                           = "leaseOwner"
	LEASE_COUNTER_KEY                         = "leaseCounter"
	OWNER_SWITCHES_KEY                        = "ownerSwitchesSinceCheckpoint"
	CHECKPOINT_SEQUENCE_NUMBER_KEY            = "checkpoint"
	CHECKPOINT_SUBSEQUENCE_NUMBER_KEY         = "checkpointSubSequenceNumber"
	PENDING_CHECKPOINT_SEQUENCE_NUMBER_KEY    = "pendingCheckpoint"
	PENDING_CHECKPOINT_SUBSEQUENCE_NUMBER_KEY = "pendingCheckpointSubSequenceNumber"
	PARENT_SHARD_ID_KEY                       = "parentShardId"
	CHILD_SHARD_IDS_KEY                       = "childShardIds"
	STARTING_HASH_KEY                         = "startingHashKey"
	ENDING_HASH_KEY                           = "endingHashKey"
)

/**
 * An implementation of a lease serializer for KinesisClientLease objects. The concurrency token and the last
 * counter increment time are local to a worker and never stored.
 */
type KinesisClientLeaseSerializer struct {
}

/**
 * Construct a DynamoDB record out of a KinesisClientLease object
 *
 * @param lease lease object to serialize
 * @return an attribute value map representing the lease object
 */
func (lc *KinesisClientLeaseSerializer) ToDynamoRecord(lease *KinesisClientLease) (map[string]*dynamodb.AttributeValue, error) {
	result := map[string]*dynamodb.AttributeValue{}

	var err error
	if result[LEASE_KEY_KEY], err = dynamoutils.CreateAttributeValueFromString(lease.GetLeaseKey()); err != nil {
		return nil, err
	}
	result[LEASE_COUNTER_KEY] = dynamoutils.CreateAttributeValueFromLong(lease.GetLeaseCounter())

	if lease.IsOwned() {
		result[LEASE_OWNER_KEY], _ = dynamoutils.CreateAttributeValueFromString(lease.GetLeaseOwner())
	}

	result[OWNER_SWITCHES_KEY] = dynamoutils.CreateAttributeValueFromLong(lease.GetOwnerSwitchesSinceCheckpoint())

	if cp := lease.GetCheckpoint(); cp != nil {
		if result[CHECKPOINT_SEQUENCE_NUMBER_KEY], err = dynamoutils.CreateAttributeValueFromString(cp.GetSequenceNumber()); err != nil {
			return nil, err
		}
		result[CHECKPOINT_SUBSEQUENCE_NUMBER_KEY] = dynamoutils.CreateAttributeValueFromLong(cp.GetSubSequenceNumber())
	}

	if pending := lease.GetPendingCheckpoint(); pending != nil {
		if result[PENDING_CHECKPOINT_SEQUENCE_NUMBER_KEY], err = dynamoutils.CreateAttributeValueFromString(pending.GetSequenceNumber()); err != nil {
			return nil, err
		}
		result[PENDING_CHECKPOINT_SUBSEQUENCE_NUMBER_KEY] = dynamoutils.CreateAttributeValueFromLong(pending.GetSubSequenceNumber())
	}

	if parents := lease.GetParentShardIds(); len(parents) > 0 {
		result[PARENT_SHARD_ID_KEY], _ = dynamoutils.CreateAttributeValueFromSS(parents)
	}

	if children := lease.GetChildShardIds(); len(children) > 0 {
		result[CHILD_SHARD_IDS_KEY], _ = dynamoutils.CreateAttributeValueFromSS(children)
	}

	if hkr := lease.GetHashKeyRange(); hkr != nil {
		result[STARTING_HASH_KEY], _ = dynamoutils.CreateAttributeValueFromString(hkr.SerializedStartingHashKey())
		result[ENDING_HASH_KEY], _ = dynamoutils.CreateAttributeValueFromString(hkr.SerializedEndingHashKey())
	}

	return result, nil
}

/**
 * Construct a KinesisClientLease object out of a DynamoDB record.
 *
 * @param dynamoRecord attribute value map from DynamoDB
 * @return a deserialized lease object representing the attribute value map
 *
 * @error LeasingInvalidStateError if the record carries an unreadable hash key range
 */
func (lc *KinesisClientLeaseSerializer) FromDynamoRecord(dynamoRecord map[string]*dynamodb.AttributeValue) (*KinesisClientLease, error) {
	result := NewKinesisClientLease()

	_ = result.SetLeaseKey(dynamoutils.SafeGetString(dynamoRecord, LEASE_KEY_KEY))
	result.SetLeaseOwner(dynamoutils.SafeGetString(dynamoRecord, LEASE_OWNER_KEY))
	result.SetLeaseCounter(dynamoutils.SafeGetLong(dynamoRecord, LEASE_COUNTER_KEY))

	result.ownerSwitchesSinceCheckpoint = dynamoutils.SafeGetLong(dynamoRecord, OWNER_SWITCHES_KEY)

	if dynamoutils.HasAttribute(dynamoRecord, CHECKPOINT_SEQUENCE_NUMBER_KEY) {
		result.checkpoint = types.NewExtendedSequenceNumber(
			dynamoutils.SafeGetString(dynamoRecord, CHECKPOINT_SEQUENCE_NUMBER_KEY),
			dynamoutils.SafeGetLong(dynamoRecord, CHECKPOINT_SUBSEQUENCE_NUMBER_KEY))
	}

	if dynamoutils.HasAttribute(dynamoRecord, PENDING_CHECKPOINT_SEQUENCE_NUMBER_KEY) {
		result.pendingCheckpoint = types.NewExtendedSequenceNumber(
			dynamoutils.SafeGetString(dynamoRecord, PENDING_CHECKPOINT_SEQUENCE_NUMBER_KEY),
			dynamoutils.SafeGetLong(dynamoRecord, PENDING_CHECKPOINT_SUBSEQUENCE_NUMBER_KEY))
	}

	_ = result.SetParentShardIds(dynamoutils.SafeGetSS(dynamoRecord, PARENT_SHARD_ID_KEY))
	_ = result.SetChildShardIds(dynamoutils.SafeGetSS(dynamoRecord, CHILD_SHARD_IDS_KEY))

	if dynamoutils.HasAttribute(dynamoRecord, STARTING_HASH_KEY) {
		hkr, err := types.NewHashKeyRange(
			dynamoutils.SafeGetString(dynamoRecord, STARTING_HASH_KEY),
			dynamoutils.SafeGetString(dynamoRecord, ENDING_HASH_KEY))
		if err != nil {
			return nil, cc.LeasingInvalidStateError.MakeErr().
				WithDetail(fmt.Sprintf("lease %s has a corrupt hash key range", result.GetLeaseKey())).
				WithCause(err)
		}
		result.hashKeyRange = hkr
	}

	return result, nil
}

/**
 * Special getDynamoHashKey implementation used by ILeaseManager.GetLease().
 *
 * @param leaseKey
 * @return the attribute value map representing a Lease's hash key given a string.
 */
func (lc *KinesisClientLeaseSerializer) GetDynamoHashKey(leaseKey string) map[string]*dynamodb.AttributeValue {
	result := map[string]*dynamodb.AttributeValue{}
	result[LEASE_KEY_KEY], _ = dynamoutils.CreateAttributeValueFromString(leaseKey)
	return result
}

/**
 * @param lease
 * @return the attribute value map asserting that a lease counter is what we expect.
 */
func (lc *KinesisClientLeaseSerializer) GetDynamoLeaseCounterExpectation(lease *KinesisClientLease) map[string]*dynamodb.ExpectedAttributeValue {
	result := map[string]*dynamodb.ExpectedAttributeValue{}
	expectedAV := &dynamodb.ExpectedAttributeValue{}
	expectedAV.SetValue(dynamoutils.CreateAttributeValueFromLong(lease.GetLeaseCounter()))
	result[LEASE_COUNTER_KEY] = expectedAV
	return result
}

/**
 * @param lease
 * @return the attribute value map asserting that the lease owner is what we expect. An unowned lease expects the
 *         owner attribute to be absent.
 */
func (lc *KinesisClientLeaseSerializer) GetDynamoLeaseOwnerExpectation(lease *KinesisClientLease) map[string]*dynamodb.ExpectedAttributeValue {
	result := map[string]*dynamodb.ExpectedAttributeValue{}
	expectedAV := &dynamodb.ExpectedAttributeValue{}
	if lease.IsOwned() {
		val, _ := dynamoutils.CreateAttributeValueFromString(lease.GetLeaseOwner())
		expectedAV.SetValue(val)
	} else {
		expectedAV.SetExists(false)
	}
	result[LEASE_OWNER_KEY] = expectedAV
	return result
}

/**
 * @return the attribute value map asserting that a lease does not exist.
 */
func (lc *KinesisClientLeaseSerializer) GetDynamoNonexistantExpectation() map[string]*dynamodb.ExpectedAttributeValue {
	result := map[string]*dynamodb.ExpectedAttributeValue{}
	expectedAV := &dynamodb.ExpectedAttributeValue{}
	expectedAV.SetExists(false)
	result[LEASE_KEY_KEY] = expectedAV

	return result
}

/**
 * @param lease
 * @return the attribute value map that increments a lease counter
 */
func (lc *KinesisClientLeaseSerializer) GetDynamoLeaseCounterUpdate(lease *KinesisClientLease) map[string]*dynamodb.AttributeValueUpdate {
	result := map[string]*dynamodb.AttributeValueUpdate{}
	result[LEASE_COUNTER_KEY] = putUpdate(dynamoutils.CreateAttributeValueFromLong(lease.GetLeaseCounter() + 1))
	return result
}

/**
 * @param lease
 * @param newOwner
 * @return the attribute value map that takes a lease for a new owner, counting the owner switch if there is one
 */
func (lc *KinesisClientLeaseSerializer) GetDynamoTakeLeaseUpdate(lease *KinesisClientLease, newOwner string) map[string]*dynamodb.AttributeValueUpdate {
	result := map[string]*dynamodb.AttributeValueUpdate{}
	val, _ := dynamoutils.CreateAttributeValueFromString(newOwner)
	result[LEASE_OWNER_KEY] = putUpdate(val)

	if OwnerChanged(lease, newOwner) {
		updatedAV := &dynamodb.AttributeValueUpdate{}
		updatedAV.SetValue(dynamoutils.CreateAttributeValueFromLong(1))
		updatedAV.SetAction(dynamodb.AttributeActionAdd)
		result[OWNER_SWITCHES_KEY] = updatedAV
	}
	return result
}

/**
 * @param lease
 * @return the attribute value map that voids a lease
 */
func (lc *KinesisClientLeaseSerializer) GetDynamoEvictLeaseUpdate(lease *KinesisClientLease) map[string]*dynamodb.AttributeValueUpdate {
	result := map[string]*dynamodb.AttributeValueUpdate{}
	result[LEASE_OWNER_KEY] = deleteUpdate()
	return result
}

/**
 * @param lease
 * @return the attribute value map that updates application-specific data for a lease and increments the lease
 *         counter
 */
func (lc *KinesisClientLeaseSerializer) GetDynamoUpdateLeaseUpdate(lease *KinesisClientLease) (map[string]*dynamodb.AttributeValueUpdate, error) {
	result := lc.GetDynamoLeaseCounterUpdate(lease)

	cp := lease.GetCheckpoint()
	if cp == nil {
		return nil, cc.IllegalArgumentError.MakeErr().WithDetail("Checkpoint should not be null")
	}
	val, err := dynamoutils.CreateAttributeValueFromString(cp.GetSequenceNumber())
	if err != nil {
		return nil, err
	}
	result[CHECKPOINT_SEQUENCE_NUMBER_KEY] = putUpdate(val)
	result[CHECKPOINT_SUBSEQUENCE_NUMBER_KEY] = putUpdate(dynamoutils.CreateAttributeValueFromLong(cp.GetSubSequenceNumber()))
	result[OWNER_SWITCHES_KEY] = putUpdate(dynamoutils.CreateAttributeValueFromLong(lease.GetOwnerSwitchesSinceCheckpoint()))

	if pending := lease.GetPendingCheckpoint(); pending != nil {
		val, err := dynamoutils.CreateAttributeValueFromString(pending.GetSequenceNumber())
		if err != nil {
			return nil, err
		}
		result[PENDING_CHECKPOINT_SEQUENCE_NUMBER_KEY] = putUpdate(val)
		result[PENDING_CHECKPOINT_SUBSEQUENCE_NUMBER_KEY] = putUpdate(dynamoutils.CreateAttributeValueFromLong(pending.GetSubSequenceNumber()))
	} else {
		result[PENDING_CHECKPOINT_SEQUENCE_NUMBER_KEY] = deleteUpdate()
		result[PENDING_CHECKPOINT_SUBSEQUENCE_NUMBER_KEY] = deleteUpdate()
	}

	if children := lease.GetChildShardIds(); len(children) > 0 {
		val, _ := dynamoutils.CreateAttributeValueFromSS(children)
		result[CHILD_SHARD_IDS_KEY] = putUpdate(val)
	} else {
		result[CHILD_SHARD_IDS_KEY] = deleteUpdate()
	}

	if hkr := lease.GetHashKeyRange(); hkr != nil {
		start, _ := dynamoutils.CreateAttributeValueFromString(hkr.SerializedStartingHashKey())
		end, _ := dynamoutils.CreateAttributeValueFromString(hkr.SerializedEndingHashKey())
		result[STARTING_HASH_KEY] = putUpdate(start)
		result[ENDING_HASH_KEY] = putUpdate(end)
	}

	return result, nil
}

/**
 * @return the key schema for creating a DynamoDB table to store leases
 */
func (lc *KinesisClientLeaseSerializer) GetKeySchema() []*dynamodb.KeySchemaElement {
	keySchema := []*dynamodb.KeySchemaElement{}
	schemaElement := &dynamodb.KeySchemaElement{}
	schemaElement.SetAttributeName(LEASE_KEY_KEY)
	schemaElement.SetKeyType(dynamodb.KeyTypeHash)
	keySchema = append(keySchema, schemaElement)
	return keySchema
}

/**
 * @return attribute definitions for creating a DynamoDB table to store leases
 */
func (lc *KinesisClientLeaseSerializer) GetAttributeDefinitions() []*dynamodb.AttributeDefinition {
	definitions := []*dynamodb.AttributeDefinition{}
	definition := &dynamodb.AttributeDefinition{}
	definition.SetAttributeName(LEASE_KEY_KEY)
	definition.SetAttributeType(dynamodb.ScalarAttributeTypeS)
	definitions = append(definitions, definition)
	return definitions
}

func putUpdate(val *dynamodb.AttributeValue) *dynamodb.AttributeValueUpdate {
	updatedAV := &dynamodb.AttributeValueUpdate{}
	updatedAV.SetValue(val)
	updatedAV.SetAction(dynamodb.AttributeActionPut)
	return updatedAV
}

func deleteUpdate() *dynamodb.AttributeValueUpdate {
	updatedAV := &dynamodb.AttributeValueUpdate{}
	updatedAV.SetAction(dynamodb.AttributeActionDelete)
	return updatedAV
}
