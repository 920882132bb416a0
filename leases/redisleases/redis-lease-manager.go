package redisleases

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	cc "github.com/vmware/go-kcl-leases/clientlibrary/common"
	"github.com/vmware/go-kcl-leases/clientlibrary/config"
	"github.com/vmware/go-kcl-leases/leases/impl"
	"github.com/vmware/go-kcl-leases/logger"
)

// RedisLeaseManager is an implementation of ILeaseManager on Redis. Each lease is a hash, an index set lists the
// lease keys and a marker key stands for the table. Conditional writes run as Lua scripts so the check and the
// write are atomic.
type RedisLeaseManager struct {
	log       logger.Logger
	client    redis.Cmdable
	prefix    string
	tableName string
	fencer    impl.Fencer
}

var _ impl.ILeaseManager = (*RedisLeaseManager)(nil)

func NewRedisLeaseManager(kclConfig *config.LeaseClientConfiguration, client redis.Cmdable) *RedisLeaseManager {
	prefix := kclConfig.RedisKeyPrefix
	if prefix == "" {
		prefix = config.DefaultRedisKeyPrefix
	}
	return &RedisLeaseManager{
		log:       kclConfig.Logger,
		client:    client,
		prefix:    prefix,
		tableName: kclConfig.TableName,
		fencer:    impl.DefaultFencer(),
	}
}

// WithFencer replaces the clock and token generator applied after successful writes.
func (m *RedisLeaseManager) WithFencer(fencer impl.Fencer) *RedisLeaseManager {
	m.fencer = fencer
	return m
}

func (m *RedisLeaseManager) tableKey() string {
	return m.prefix + ":" + m.tableName
}

func (m *RedisLeaseManager) indexKey() string {
	return m.tableKey() + ":leases"
}

func (m *RedisLeaseManager) leaseKey(shardId string) string {
	return m.tableKey() + ":lease:" + shardId
}

func (m *RedisLeaseManager) CreateLeaseTableIfNotExists(ctx context.Context) (bool, error) {
	created, err := m.client.SetNX(ctx, m.tableKey(), impl.TABLE_ACTIVE, 0).Result()
	if err != nil {
		return false, m.convertError("create table", "", err)
	}
	if created {
		m.log.Infof("Created lease table %s", m.tableKey())
	}
	return created, nil
}

func (m *RedisLeaseManager) LeaseTableExists(ctx context.Context) (bool, error) {
	n, err := m.client.Exists(ctx, m.tableKey()).Result()
	if err != nil {
		return false, m.convertError("describe table", "", err)
	}
	return n == 1, nil
}

func (m *RedisLeaseManager) WaitUntilLeaseTableExists(ctx context.Context, secondsBetweenPolls, timeoutSeconds int64) (bool, error) {
	return impl.WaitUntilLeaseTableExists(ctx, m.LeaseTableExists, secondsBetweenPolls, timeoutSeconds)
}

func (m *RedisLeaseManager) ListLeases(ctx context.Context) ([]*impl.KinesisClientLease, error) {
	if err := m.checkTable(ctx, "list"); err != nil {
		return nil, err
	}

	keys, err := m.client.SMembers(ctx, m.indexKey()).Result()
	if err != nil {
		return nil, m.convertError("list", "", err)
	}
	sort.Strings(keys)

	cmds := make([]*redis.MapStringStringCmd, len(keys))
	pipe := m.client.Pipeline()
	for i, k := range keys {
		cmds[i] = pipe.HGetAll(ctx, m.leaseKey(k))
	}
	if len(keys) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, m.convertError("list", "", err)
		}
	}

	leases := make([]*impl.KinesisClientLease, 0, len(keys))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			// deleted between the index read and the fetch
			continue
		}
		lease, err := fromHash(fields)
		if err != nil {
			return nil, err
		}
		leases = append(leases, lease)
	}
	return leases, nil
}

func (m *RedisLeaseManager) CreateLeaseIfNotExists(ctx context.Context, lease *impl.KinesisClientLease) (bool, error) {
	if lease.GetLeaseKey() == "" {
		return false, cc.IllegalArgumentError.MakeErr().WithDetail("String attributeValues cannot be null or empty.")
	}

	fields := toHash(lease)
	args := []interface{}{lease.GetLeaseKey()}
	for _, k := range sortedFields(fields) {
		args = append(args, k, fields[k])
	}

	keys := []string{m.tableKey(), m.leaseKey(lease.GetLeaseKey()), m.indexKey()}
	res, err := createLease.Run(ctx, m.client, keys, args...).Int()
	if err != nil {
		return false, m.convertError("create", lease.GetLeaseKey(), err)
	}
	switch res {
	case scriptTableMissing:
		return false, m.tableMissing("create")
	case scriptConditionMet:
		return true, nil
	}
	m.log.Debugf("Did not create lease %s because it already existed", lease.GetLeaseKey())
	return false, nil
}

func (m *RedisLeaseManager) GetLease(ctx context.Context, shardId string) (*impl.KinesisClientLease, error) {
	if err := m.checkTable(ctx, "get"); err != nil {
		return nil, err
	}

	fields, err := m.client.HGetAll(ctx, m.leaseKey(shardId)).Result()
	if err != nil {
		return nil, m.convertError("get", shardId, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return fromHash(fields)
}

func (m *RedisLeaseManager) RenewLease(ctx context.Context, lease *impl.KinesisClientLease) (bool, error) {
	ok, err := m.compareAndSet(ctx, "renew", lease.GetLeaseKey(), &mutation{
		field:    impl.LEASE_COUNTER_KEY,
		expected: strconv.FormatInt(lease.GetLeaseCounter(), 10),
		incr:     map[string]int64{impl.LEASE_COUNTER_KEY: 1},
	})
	if err != nil || !ok {
		return false, err
	}

	m.fencer.Renewed(lease)
	return true, nil
}

func (m *RedisLeaseManager) TakeLease(ctx context.Context, lease *impl.KinesisClientLease, owner string) (bool, error) {
	mut := &mutation{
		field:    impl.LEASE_COUNTER_KEY,
		expected: strconv.FormatInt(lease.GetLeaseCounter(), 10),
		set:      map[string]string{impl.LEASE_OWNER_KEY: owner},
		incr:     map[string]int64{impl.LEASE_COUNTER_KEY: 1},
	}
	if impl.OwnerChanged(lease, owner) {
		mut.incr[impl.OWNER_SWITCHES_KEY] = 1
	}

	ok, err := m.compareAndSet(ctx, "take", lease.GetLeaseKey(), mut)
	if err != nil || !ok {
		return false, err
	}

	m.fencer.Taken(lease, owner)
	return true, nil
}

func (m *RedisLeaseManager) EvictLease(ctx context.Context, lease *impl.KinesisClientLease) (bool, error) {
	ok, err := m.compareAndSet(ctx, "evict", lease.GetLeaseKey(), &mutation{
		field:    impl.LEASE_OWNER_KEY,
		expected: lease.GetLeaseOwner(),
		del:      []string{impl.LEASE_OWNER_KEY},
		incr:     map[string]int64{impl.LEASE_COUNTER_KEY: 1},
	})
	if err != nil || !ok {
		return false, err
	}

	m.fencer.Evicted(lease)
	return true, nil
}

func (m *RedisLeaseManager) DeleteLease(ctx context.Context, lease *impl.KinesisClientLease) error {
	if err := m.checkTable(ctx, "delete"); err != nil {
		return err
	}

	_, err := m.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, m.leaseKey(lease.GetLeaseKey()))
		pipe.SRem(ctx, m.indexKey(), lease.GetLeaseKey())
		return nil
	})
	if err != nil {
		return m.convertError("delete", lease.GetLeaseKey(), err)
	}
	return nil
}

func (m *RedisLeaseManager) DeleteAll(ctx context.Context) error {
	if err := m.checkTable(ctx, "delete"); err != nil {
		return err
	}

	keys, err := m.client.SMembers(ctx, m.indexKey()).Result()
	if err != nil {
		return m.convertError("delete", "", err)
	}

	_, err = m.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, k := range keys {
			pipe.Del(ctx, m.leaseKey(k))
		}
		pipe.Del(ctx, m.indexKey())
		return nil
	})
	if err != nil {
		return m.convertError("delete", "", err)
	}
	return nil
}

func (m *RedisLeaseManager) UpdateLease(ctx context.Context, lease *impl.KinesisClientLease) (bool, error) {
	cp := lease.GetCheckpoint()
	if cp == nil {
		return false, cc.IllegalArgumentError.MakeErr().WithDetail("Checkpoint should not be null")
	}

	mut := &mutation{
		field:    impl.LEASE_COUNTER_KEY,
		expected: strconv.FormatInt(lease.GetLeaseCounter(), 10),
		set: map[string]string{
			impl.CHECKPOINT_SEQUENCE_NUMBER_KEY:    cp.GetSequenceNumber(),
			impl.CHECKPOINT_SUBSEQUENCE_NUMBER_KEY: strconv.FormatInt(cp.GetSubSequenceNumber(), 10),
			impl.OWNER_SWITCHES_KEY:                strconv.FormatInt(lease.GetOwnerSwitchesSinceCheckpoint(), 10),
		},
		incr: map[string]int64{impl.LEASE_COUNTER_KEY: 1},
	}

	if pending := lease.GetPendingCheckpoint(); pending != nil {
		mut.set[impl.PENDING_CHECKPOINT_SEQUENCE_NUMBER_KEY] = pending.GetSequenceNumber()
		mut.set[impl.PENDING_CHECKPOINT_SUBSEQUENCE_NUMBER_KEY] = strconv.FormatInt(pending.GetSubSequenceNumber(), 10)
	} else {
		mut.del = append(mut.del, impl.PENDING_CHECKPOINT_SEQUENCE_NUMBER_KEY, impl.PENDING_CHECKPOINT_SUBSEQUENCE_NUMBER_KEY)
	}

	if children := lease.GetChildShardIds(); len(children) > 0 {
		mut.set[impl.CHILD_SHARD_IDS_KEY] = strings.Join(children, setSeparator)
	} else {
		mut.del = append(mut.del, impl.CHILD_SHARD_IDS_KEY)
	}

	if hkr := lease.GetHashKeyRange(); hkr != nil {
		mut.set[impl.STARTING_HASH_KEY] = hkr.SerializedStartingHashKey()
		mut.set[impl.ENDING_HASH_KEY] = hkr.SerializedEndingHashKey()
	}

	ok, err := m.compareAndSet(ctx, "update", lease.GetLeaseKey(), mut)
	if err != nil || !ok {
		return false, err
	}

	m.fencer.Updated(lease)
	return true, nil
}

func (m *RedisLeaseManager) IsLeaseTableEmpty(ctx context.Context) (bool, error) {
	if err := m.checkTable(ctx, "list"); err != nil {
		return false, err
	}

	n, err := m.client.SCard(ctx, m.indexKey()).Result()
	if err != nil {
		return false, m.convertError("list", "", err)
	}
	return n == 0, nil
}

func (m *RedisLeaseManager) compareAndSet(ctx context.Context, operation, shardId string, mut *mutation) (bool, error) {
	keys := []string{m.tableKey(), m.leaseKey(shardId)}
	res, err := compareAndSet.Run(ctx, m.client, keys, mut.args()...).Int()
	if err != nil {
		return false, m.convertError(operation, shardId, err)
	}

	switch res {
	case scriptTableMissing:
		return false, m.tableMissing(operation)
	case scriptConditionMet:
		return true, nil
	}
	logger.ForLease(m.log, shardId, "").Debugf("Lease %s failed, %s moved on", operation, mut.field)
	return false, nil
}

func (m *RedisLeaseManager) checkTable(ctx context.Context, operation string) error {
	exists, err := m.LeaseTableExists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return m.tableMissing(operation)
	}
	return nil
}

func (m *RedisLeaseManager) tableMissing(operation string) error {
	return cc.LeasingInvalidStateError.MakeErr().
		WithDetail(fmt.Sprintf("%s: lease table %s does not exist", operation, m.tableKey()))
}

// convertError maps a Redis failure to the leasing error codes.
func (m *RedisLeaseManager) convertError(operation, leaseKey string, err error) error {
	detail := fmt.Sprintf("%s lease %s in table %s", operation, leaseKey, m.tableKey())

	var redisErr redis.Error
	if errors.As(err, &redisErr) {
		msg := redisErr.Error()
		if strings.HasPrefix(msg, "OOM") || strings.HasPrefix(msg, "BUSY") {
			m.log.Warnf("Redis out of capacity during %s: %+v", detail, err)
			return cc.LeasingProvisionedThroughputError.MakeErr().WithDetail(detail).WithCause(err)
		}
	}
	return cc.LeasingDependencyError.MakeErr().WithDetail(detail).WithCause(err)
}
