package impl

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"

	cc "github.com/vmware/go-kcl-leases/clientlibrary/common"
	"github.com/vmware/go-kcl-leases/clientlibrary/config"
	"github.com/vmware/go-kcl-leases/clientlibrary/utils"
	"github.com/vmware/go-kcl-leases/logger"
)

const (
	// CREATING - The table is being created.
	TABLE_CREATING = "CREATING"

	// UPDATING - The table is being updated.
	TABLE_UPDATING = "UPDATING"

	// DELETING - The table is being deleted.
	TABLE_DELETING = "DELETING"

	// ACTIVE - The table is ready for use.
	TABLE_ACTIVE = "ACTIVE"
)

// DynamoLeaseManager is an implementation of ILeaseManager that uses DynamoDB.
type DynamoLeaseManager struct {
	log             logger.Logger
	tableName       string
	readCapacity    int64
	writeCapacity   int64
	consistentReads bool

	svc        dynamodbiface.DynamoDBAPI
	serializer *KinesisClientLeaseSerializer
	fencer     Fencer
	kclConfig  *config.LeaseClientConfiguration
}

var _ ILeaseManager = (*DynamoLeaseManager)(nil)

func NewDynamoLeaseManager(kclConfig *config.LeaseClientConfiguration) *DynamoLeaseManager {
	return &DynamoLeaseManager{
		log:             kclConfig.Logger,
		tableName:       kclConfig.TableName,
		readCapacity:    int64(kclConfig.InitialLeaseTableReadCapacity),
		writeCapacity:   int64(kclConfig.InitialLeaseTableWriteCapacity),
		consistentReads: kclConfig.ConsistentReads,
		serializer:      &KinesisClientLeaseSerializer{},
		fencer:          DefaultFencer(),
		kclConfig:       kclConfig,
	}
}

// WithDynamoDB is used to provide DynamoDB service
func (l *DynamoLeaseManager) WithDynamoDB(svc dynamodbiface.DynamoDBAPI) *DynamoLeaseManager {
	l.svc = svc
	return l
}

// WithFencer replaces the clock and token generator applied after successful writes.
func (l *DynamoLeaseManager) WithFencer(fencer Fencer) *DynamoLeaseManager {
	l.fencer = fencer
	return l
}

// Init creates the DynamoDB client unless one was provided.
func (l *DynamoLeaseManager) Init() error {
	if l.svc != nil {
		return nil
	}

	l.log.Infof("Creating DynamoDB session")
	s, err := session.NewSession(&aws.Config{
		Region:      aws.String(l.kclConfig.RegionName),
		Endpoint:    aws.String(l.kclConfig.DynamoDBEndpoint),
		Credentials: l.kclConfig.DynamoDBCredentials,
		Retryer: client.DefaultRetryer{
			NumMaxRetries:    l.kclConfig.NumMaxRetries,
			MinRetryDelay:    client.DefaultRetryerMinRetryDelay,
			MinThrottleDelay: client.DefaultRetryerMinThrottleDelay,
			MaxRetryDelay:    client.DefaultRetryerMaxRetryDelay,
			MaxThrottleDelay: client.DefaultRetryerMaxRetryDelay,
		},
	})
	if err != nil {
		return cc.LeasingDependencyError.MakeErr().WithDetail("failed in getting DynamoDB session").WithCause(err)
	}

	l.svc = dynamodb.New(s)
	return nil
}

func (l *DynamoLeaseManager) CreateLeaseTableIfNotExists(ctx context.Context) (bool, error) {
	status, err := l.tableStatus(ctx)
	if err != nil {
		return false, err
	}
	if status != nil {
		return false, nil
	}

	input := &dynamodb.CreateTableInput{
		AttributeDefinitions: l.serializer.GetAttributeDefinitions(),
		KeySchema:            l.serializer.GetKeySchema(),
		ProvisionedThroughput: &dynamodb.ProvisionedThroughput{
			ReadCapacityUnits:  aws.Int64(l.readCapacity),
			WriteCapacityUnits: aws.Int64(l.writeCapacity),
		},
		TableName: aws.String(l.tableName),
	}
	if _, err := l.svc.CreateTableWithContext(ctx, input); err != nil {
		switch utils.AWSErrCode(err) {
		case dynamodb.ErrCodeResourceInUseException:
			l.log.Infof("Table %s already exists.", l.tableName)
			return false, nil
		case dynamodb.ErrCodeLimitExceededException:
			return false, cc.LeasingProvisionedThroughputError.MakeErr().
				WithDetail("Capacity exceeded when creating table " + l.tableName).WithCause(err)
		}
		return false, cc.LeasingDependencyError.MakeErr().WithDetail("create table " + l.tableName).WithCause(err)
	}

	l.log.Infof("Created lease table %s", l.tableName)
	return true, nil
}

func (l *DynamoLeaseManager) LeaseTableExists(ctx context.Context) (bool, error) {
	status, err := l.tableStatus(ctx)
	if err != nil {
		return false, err
	}
	return aws.StringValue(status) == TABLE_ACTIVE, nil
}

func (l *DynamoLeaseManager) WaitUntilLeaseTableExists(ctx context.Context, secondsBetweenPolls, timeoutSeconds int64) (bool, error) {
	return WaitUntilLeaseTableExists(ctx, l.LeaseTableExists, secondsBetweenPolls, timeoutSeconds)
}

func (l *DynamoLeaseManager) ListLeases(ctx context.Context) ([]*KinesisClientLease, error) {
	return l.list(ctx, 0)
}

func (l *DynamoLeaseManager) CreateLeaseIfNotExists(ctx context.Context, lease *KinesisClientLease) (bool, error) {
	item, err := l.serializer.ToDynamoRecord(lease)
	if err != nil {
		return false, err
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(l.tableName),
		Item:      item,
		Expected:  l.serializer.GetDynamoNonexistantExpectation(),
	}
	if _, err := l.svc.PutItemWithContext(ctx, input); err != nil {
		if isConditionFailed(err) {
			l.log.Debugf("Did not create lease %s because it already existed", lease.GetLeaseKey())
			return false, nil
		}
		return false, l.convertError("create", lease.GetLeaseKey(), err)
	}
	return true, nil
}

func (l *DynamoLeaseManager) GetLease(ctx context.Context, shardId string) (*KinesisClientLease, error) {
	input := &dynamodb.GetItemInput{
		TableName:      aws.String(l.tableName),
		Key:            l.serializer.GetDynamoHashKey(shardId),
		ConsistentRead: aws.Bool(l.consistentReads),
	}
	result, err := l.svc.GetItemWithContext(ctx, input)
	if err != nil {
		return nil, l.convertError("get", shardId, err)
	}

	if len(result.Item) == 0 {
		return nil, nil
	}
	return l.serializer.FromDynamoRecord(result.Item)
}

func (l *DynamoLeaseManager) RenewLease(ctx context.Context, lease *KinesisClientLease) (bool, error) {
	input := &dynamodb.UpdateItemInput{
		TableName:        aws.String(l.tableName),
		Key:              l.serializer.GetDynamoHashKey(lease.GetLeaseKey()),
		Expected:         l.serializer.GetDynamoLeaseCounterExpectation(lease),
		AttributeUpdates: l.serializer.GetDynamoLeaseCounterUpdate(lease),
	}

	if _, err := l.svc.UpdateItemWithContext(ctx, input); err != nil {
		if !isConditionFailed(err) {
			return false, l.convertError("renew", lease.GetLeaseKey(), err)
		}

		// If we had a spurious retry during the Dynamo update, then this conditional PUT failure
		// might be incorrect. So, we get the item straight away and check if the lease owner + lease counter
		// are what we expected.
		expectedOwner := lease.GetLeaseOwner()
		expectedCounter := lease.GetLeaseCounter() + 1
		updatedLease, err := l.GetLease(ctx, lease.GetLeaseKey())
		if err != nil {
			return false, err
		}
		if updatedLease == nil || expectedOwner != updatedLease.GetLeaseOwner() ||
			expectedCounter != updatedLease.GetLeaseCounter() {
			logger.ForLease(l.log, lease.GetLeaseKey(), expectedOwner).Debugf("Lease renewal failed, counter moved on")
			return false, nil
		}

		l.log.Infof("Detected spurious renewal failure for lease with key %s, but recovered", lease.GetLeaseKey())
	}

	l.fencer.Renewed(lease)
	return true, nil
}

func (l *DynamoLeaseManager) TakeLease(ctx context.Context, lease *KinesisClientLease, owner string) (bool, error) {
	updates := l.serializer.GetDynamoLeaseCounterUpdate(lease)

	// putAll to updates
	for k, v := range l.serializer.GetDynamoTakeLeaseUpdate(lease, owner) {
		updates[k] = v
	}

	input := &dynamodb.UpdateItemInput{
		TableName:        aws.String(l.tableName),
		Key:              l.serializer.GetDynamoHashKey(lease.GetLeaseKey()),
		Expected:         l.serializer.GetDynamoLeaseCounterExpectation(lease),
		AttributeUpdates: updates,
	}
	if _, err := l.svc.UpdateItemWithContext(ctx, input); err != nil {
		if isConditionFailed(err) {
			logger.ForLease(l.log, lease.GetLeaseKey(), owner).Debugf("Lease take failed, counter moved on")
			return false, nil
		}
		return false, l.convertError("take", lease.GetLeaseKey(), err)
	}

	l.fencer.Taken(lease, owner)
	return true, nil
}

func (l *DynamoLeaseManager) EvictLease(ctx context.Context, lease *KinesisClientLease) (bool, error) {
	updates := l.serializer.GetDynamoLeaseCounterUpdate(lease)

	// putAll to updates
	for k, v := range l.serializer.GetDynamoEvictLeaseUpdate(lease) {
		updates[k] = v
	}

	input := &dynamodb.UpdateItemInput{
		TableName:        aws.String(l.tableName),
		Key:              l.serializer.GetDynamoHashKey(lease.GetLeaseKey()),
		Expected:         l.serializer.GetDynamoLeaseOwnerExpectation(lease),
		AttributeUpdates: updates,
	}
	if _, err := l.svc.UpdateItemWithContext(ctx, input); err != nil {
		if isConditionFailed(err) {
			logger.ForLease(l.log, lease.GetLeaseKey(), lease.GetLeaseOwner()).Debugf("Lease eviction failed, owner moved on")
			return false, nil
		}
		return false, l.convertError("evict", lease.GetLeaseKey(), err)
	}

	l.fencer.Evicted(lease)
	return true, nil
}

func (l *DynamoLeaseManager) DeleteLease(ctx context.Context, lease *KinesisClientLease) error {
	input := &dynamodb.DeleteItemInput{
		TableName: aws.String(l.tableName),
		Key:       l.serializer.GetDynamoHashKey(lease.GetLeaseKey()),
	}
	if _, err := l.svc.DeleteItemWithContext(ctx, input); err != nil {
		return l.convertError("delete", lease.GetLeaseKey(), err)
	}
	return nil
}

func (l *DynamoLeaseManager) DeleteAll(ctx context.Context) error {
	allLeases, err := l.ListLeases(ctx)
	if err != nil {
		return err
	}

	for _, v := range allLeases {
		if err := l.DeleteLease(ctx, v); err != nil {
			return err
		}
	}
	return nil
}

func (l *DynamoLeaseManager) UpdateLease(ctx context.Context, lease *KinesisClientLease) (bool, error) {
	updates, err := l.serializer.GetDynamoUpdateLeaseUpdate(lease)
	if err != nil {
		return false, err
	}

	input := &dynamodb.UpdateItemInput{
		TableName:        aws.String(l.tableName),
		Key:              l.serializer.GetDynamoHashKey(lease.GetLeaseKey()),
		Expected:         l.serializer.GetDynamoLeaseCounterExpectation(lease),
		AttributeUpdates: updates,
	}
	if _, err := l.svc.UpdateItemWithContext(ctx, input); err != nil {
		if isConditionFailed(err) {
			logger.ForLease(l.log, lease.GetLeaseKey(), lease.GetLeaseOwner()).Debugf("Lease update failed, counter moved on")
			return false, nil
		}
		return false, l.convertError("update", lease.GetLeaseKey(), err)
	}

	l.fencer.Updated(lease)
	return true, nil
}

func (l *DynamoLeaseManager) IsLeaseTableEmpty(ctx context.Context) (bool, error) {
	result, err := l.list(ctx, 1)
	if err != nil {
		return false, err
	}
	return len(result) == 0, nil
}

// tableStatus check the current lease table status, nil if the table does not exist
func (l *DynamoLeaseManager) tableStatus(ctx context.Context) (*string, error) {
	input := &dynamodb.DescribeTableInput{
		TableName: aws.String(l.tableName),
	}

	result, err := l.svc.DescribeTableWithContext(ctx, input)
	if err != nil {
		if utils.AWSErrCode(err) == dynamodb.ErrCodeResourceNotFoundException {
			return nil, nil
		}
		return nil, cc.LeasingDependencyError.MakeErr().WithDetail("describe table " + l.tableName).WithCause(err)
	}

	return result.Table.TableStatus, nil
}

// list with the given page size (number of items to consider at a time). A positive limit reads a single page.
func (l *DynamoLeaseManager) list(ctx context.Context, limit int64) ([]*KinesisClientLease, error) {
	input := &dynamodb.ScanInput{
		TableName:      aws.String(l.tableName),
		ConsistentRead: aws.Bool(l.consistentReads),
	}

	if limit > 0 {
		input.SetLimit(limit)
	}

	result := []*KinesisClientLease{}

	for {
		scanResult, err := l.svc.ScanWithContext(ctx, input)
		if err != nil {
			return nil, l.convertError("list", "", err)
		}

		for _, v := range scanResult.Items {
			lease, err := l.serializer.FromDynamoRecord(v)
			if err != nil {
				return nil, err
			}
			result = append(result, lease)
		}

		if limit > 0 || len(scanResult.LastEvaluatedKey) == 0 {
			break
		}
		input.SetExclusiveStartKey(scanResult.LastEvaluatedKey)
	}

	return result, nil
}

// convertError maps a DynamoDB failure to the leasing error codes.
func (l *DynamoLeaseManager) convertError(operation, leaseKey string, err error) error {
	detail := fmt.Sprintf("%s lease %s in table %s", operation, leaseKey, l.tableName)

	switch utils.AWSErrCode(err) {
	case dynamodb.ErrCodeProvisionedThroughputExceededException, dynamodb.ErrCodeRequestLimitExceeded:
		l.log.Warnf("Throughput exceeded during %s: %+v", detail, err)
		return cc.LeasingProvisionedThroughputError.MakeErr().WithDetail(detail).WithCause(err)
	case dynamodb.ErrCodeResourceNotFoundException:
		return cc.LeasingInvalidStateError.MakeErr().WithDetail(detail).WithCause(err)
	}
	return cc.LeasingDependencyError.MakeErr().WithDetail(detail).WithCause(err)
}

func isConditionFailed(err error) bool {
	return utils.AWSErrCode(err) == dynamodb.ErrCodeConditionalCheckFailedException
}
