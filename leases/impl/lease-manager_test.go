package impl_test

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cc "github.com/vmware/go-kcl-leases/clientlibrary/common"
	"github.com/vmware/go-kcl-leases/clientlibrary/config"
	"github.com/vmware/go-kcl-leases/leases/impl"
	"github.com/vmware/go-kcl-leases/leases/leasetest"
	"github.com/vmware/go-kcl-leases/logger"
)

// mockDynamoDB keeps one table in memory and evaluates the Expected and AttributeUpdates clauses the lease
// manager sends. Scans return pageSize items at a time.
type mockDynamoDB struct {
	dynamodbiface.DynamoDBAPI

	mu       sync.Mutex
	created  bool
	items    map[string]map[string]*dynamodb.AttributeValue
	pageSize int
	err      error
}

func newMockDynamoDB() *mockDynamoDB {
	return &mockDynamoDB{items: map[string]map[string]*dynamodb.AttributeValue{}, pageSize: 2}
}

func (m *mockDynamoDB) check() error {
	if m.err != nil {
		return m.err
	}
	if !m.created {
		return awserr.New(dynamodb.ErrCodeResourceNotFoundException, "table not found", nil)
	}
	return nil
}

func (m *mockDynamoDB) CreateTableWithContext(ctx aws.Context, input *dynamodb.CreateTableInput, opts ...request.Option) (*dynamodb.CreateTableOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.created {
		return nil, awserr.New(dynamodb.ErrCodeResourceInUseException, "table exists", nil)
	}
	m.created = true
	return &dynamodb.CreateTableOutput{}, nil
}

func (m *mockDynamoDB) DescribeTableWithContext(ctx aws.Context, input *dynamodb.DescribeTableInput, opts ...request.Option) (*dynamodb.DescribeTableOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(); err != nil {
		return nil, err
	}
	return &dynamodb.DescribeTableOutput{
		Table: &dynamodb.TableDescription{TableName: input.TableName, TableStatus: aws.String(dynamodb.TableStatusActive)},
	}, nil
}

func (m *mockDynamoDB) PutItemWithContext(ctx aws.Context, input *dynamodb.PutItemInput, opts ...request.Option) (*dynamodb.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(); err != nil {
		return nil, err
	}
	key := aws.StringValue(input.Item[impl.LEASE_KEY_KEY].S)
	if !expectationsHold(m.items[key], input.Expected) {
		return nil, awserr.New(dynamodb.ErrCodeConditionalCheckFailedException, "condition failed", nil)
	}
	m.items[key] = copyItem(input.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDynamoDB) GetItemWithContext(ctx aws.Context, input *dynamodb.GetItemInput, opts ...request.Option) (*dynamodb.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(); err != nil {
		return nil, err
	}
	item, ok := m.items[aws.StringValue(input.Key[impl.LEASE_KEY_KEY].S)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: copyItem(item)}, nil
}

func (m *mockDynamoDB) UpdateItemWithContext(ctx aws.Context, input *dynamodb.UpdateItemInput, opts ...request.Option) (*dynamodb.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(); err != nil {
		return nil, err
	}
	key := aws.StringValue(input.Key[impl.LEASE_KEY_KEY].S)
	item := m.items[key]
	if !expectationsHold(item, input.Expected) {
		return nil, awserr.New(dynamodb.ErrCodeConditionalCheckFailedException, "condition failed", nil)
	}

	updated := copyItem(item)
	if updated == nil {
		updated = copyItem(input.Key)
	}
	for name, update := range input.AttributeUpdates {
		switch aws.StringValue(update.Action) {
		case dynamodb.AttributeActionPut:
			updated[name] = update.Value
		case dynamodb.AttributeActionDelete:
			delete(updated, name)
		case dynamodb.AttributeActionAdd:
			var current int64
			if existing, ok := updated[name]; ok {
				current, _ = strconv.ParseInt(aws.StringValue(existing.N), 10, 64)
			}
			delta, _ := strconv.ParseInt(aws.StringValue(update.Value.N), 10, 64)
			updated[name] = &dynamodb.AttributeValue{N: aws.String(strconv.FormatInt(current+delta, 10))}
		}
	}
	m.items[key] = updated
	return &dynamodb.UpdateItemOutput{}, nil
}

func (m *mockDynamoDB) DeleteItemWithContext(ctx aws.Context, input *dynamodb.DeleteItemInput, opts ...request.Option) (*dynamodb.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(); err != nil {
		return nil, err
	}
	delete(m.items, aws.StringValue(input.Key[impl.LEASE_KEY_KEY].S))
	return &dynamodb.DeleteItemOutput{}, nil
}

func (m *mockDynamoDB) ScanWithContext(ctx aws.Context, input *dynamodb.ScanInput, opts ...request.Option) (*dynamodb.ScanOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		if input.ExclusiveStartKey != nil && k <= aws.StringValue(input.ExclusiveStartKey[impl.LEASE_KEY_KEY].S) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	limit := m.pageSize
	if input.Limit != nil && int(*input.Limit) < limit {
		limit = int(*input.Limit)
	}

	out := &dynamodb.ScanOutput{}
	for i, k := range keys {
		if i == limit {
			out.LastEvaluatedKey = map[string]*dynamodb.AttributeValue{
				impl.LEASE_KEY_KEY: {S: aws.String(keys[i-1])},
			}
			break
		}
		out.Items = append(out.Items, copyItem(m.items[k]))
	}
	return out, nil
}

func expectationsHold(item map[string]*dynamodb.AttributeValue, expected map[string]*dynamodb.ExpectedAttributeValue) bool {
	for name, exp := range expected {
		actual, present := item[name]
		if exp.Exists != nil && !*exp.Exists {
			if present {
				return false
			}
			continue
		}
		if exp.Value != nil && (!present || !sameValue(actual, exp.Value)) {
			return false
		}
	}
	return true
}

func sameValue(a, b *dynamodb.AttributeValue) bool {
	if aws.StringValue(a.S) != aws.StringValue(b.S) || aws.StringValue(a.N) != aws.StringValue(b.N) {
		return false
	}
	as, bs := aws.StringValueSlice(a.SS), aws.StringValueSlice(b.SS)
	sort.Strings(as)
	sort.Strings(bs)
	if len(as) != len(bs) {
		return false
	}
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func copyItem(item map[string]*dynamodb.AttributeValue) map[string]*dynamodb.AttributeValue {
	if item == nil {
		return nil
	}
	out := make(map[string]*dynamodb.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func newTestConfig() *config.LeaseClientConfiguration {
	return config.NewLeaseClientConfig("leases-test", "stream", "us-west-2", "worker-1").
		WithTableName("leases-test")
}

func TestMemoryLeaseManager(t *testing.T) {
	leasetest.RunLeaseManagerTests(t, func(t *testing.T) impl.ILeaseManager {
		return impl.NewMemoryLeaseManager(logger.GetDefaultLogger())
	})
}

func TestDynamoLeaseManager(t *testing.T) {
	leasetest.RunLeaseManagerTests(t, func(t *testing.T) impl.ILeaseManager {
		mgr := impl.NewDynamoLeaseManager(newTestConfig()).WithDynamoDB(newMockDynamoDB())
		require.NoError(t, mgr.Init())
		return mgr
	})
}

func TestMonitoredLeaseManager(t *testing.T) {
	leasetest.RunLeaseManagerTests(t, func(t *testing.T) impl.ILeaseManager {
		return impl.NewMonitoredLeaseManager(impl.NewMemoryLeaseManager(logger.GetDefaultLogger()), nil, "worker-1")
	})
}

func TestDynamoLeaseManagerErrorMapping(t *testing.T) {
	var (
		ctx   = context.Background()
		tests = []struct {
			name string
			code string
			want cc.ErrorCode
		}{
			{"throughput", dynamodb.ErrCodeProvisionedThroughputExceededException, cc.LeasingProvisionedThroughputError},
			{"request limit", dynamodb.ErrCodeRequestLimitExceeded, cc.LeasingProvisionedThroughputError},
			{"missing table", dynamodb.ErrCodeResourceNotFoundException, cc.LeasingInvalidStateError},
			{"anything else", dynamodb.ErrCodeInternalServerError, cc.LeasingDependencyError},
		}
	)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockDynamoDB()
			mock.created = true
			mock.err = awserr.New(tt.code, tt.name, nil)
			mgr := impl.NewDynamoLeaseManager(newTestConfig()).WithDynamoDB(mock)

			_, err := mgr.GetLease(ctx, "shardId-000000000001")
			assert.True(t, cc.IsErrorCode(err, tt.want), "got %v", err)
		})
	}
}

func TestDynamoLeaseManagerRecoversSpuriousRenewFailure(t *testing.T) {
	var (
		ctx   = context.Background()
		mock  = newMockDynamoDB()
		mgr   = impl.NewDynamoLeaseManager(newTestConfig()).WithDynamoDB(mock)
		lease = leasetest.NewLease("shardId-000000000001")
	)
	_, err := mgr.CreateLeaseTableIfNotExists(ctx)
	require.NoError(t, err)
	created, err := mgr.CreateLeaseIfNotExists(ctx, lease)
	require.NoError(t, err)
	require.True(t, created)

	// the first attempt landed but its response was lost, so the retry sees the bumped counter
	mock.items["shardId-000000000001"][impl.LEASE_COUNTER_KEY] = &dynamodb.AttributeValue{N: aws.String("1")}

	ok, err := mgr.RenewLease(ctx, lease)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1), lease.GetLeaseCounter())
}
