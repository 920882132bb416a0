package impl

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	cc "github.com/vmware/go-kcl-leases/clientlibrary/common"
	"github.com/vmware/go-kcl-leases/logger"
)

// MemoryLeaseManager keeps leases in process memory. It honours the same conditional semantics as the remote
// managers and is used by tests and single-process tools. The stored copies never alias caller-held leases.
type MemoryLeaseManager struct {
	mu          sync.Mutex
	log         logger.Logger
	tableExists bool
	leases      map[string]*KinesisClientLease
	fencer      Fencer
}

var _ ILeaseManager = (*MemoryLeaseManager)(nil)

func NewMemoryLeaseManager(log logger.Logger) *MemoryLeaseManager {
	return &MemoryLeaseManager{
		log:    log,
		leases: map[string]*KinesisClientLease{},
		fencer: DefaultFencer(),
	}
}

// WithFencer replaces the clock and token generator applied after successful writes.
func (m *MemoryLeaseManager) WithFencer(fencer Fencer) *MemoryLeaseManager {
	m.fencer = fencer
	return m
}

func (m *MemoryLeaseManager) CreateLeaseTableIfNotExists(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tableExists {
		return false, nil
	}
	m.tableExists = true
	return true, nil
}

func (m *MemoryLeaseManager) LeaseTableExists(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tableExists, nil
}

func (m *MemoryLeaseManager) WaitUntilLeaseTableExists(ctx context.Context, secondsBetweenPolls, timeoutSeconds int64) (bool, error) {
	return WaitUntilLeaseTableExists(ctx, m.LeaseTableExists, secondsBetweenPolls, timeoutSeconds)
}

func (m *MemoryLeaseManager) ListLeases(ctx context.Context) ([]*KinesisClientLease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkTable("list"); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(m.leases))
	for k := range m.leases {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := make([]*KinesisClientLease, 0, len(keys))
	for _, k := range keys {
		result = append(result, m.leases[k].Copy())
	}
	return result, nil
}

func (m *MemoryLeaseManager) CreateLeaseIfNotExists(ctx context.Context, lease *KinesisClientLease) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkTable("create"); err != nil {
		return false, err
	}
	if lease.GetLeaseKey() == "" {
		return false, cc.IllegalArgumentError.MakeErr().WithDetail("String attributeValues cannot be null or empty.")
	}
	if _, ok := m.leases[lease.GetLeaseKey()]; ok {
		return false, nil
	}

	m.leases[lease.GetLeaseKey()] = m.stored(lease)
	return true, nil
}

func (m *MemoryLeaseManager) GetLease(ctx context.Context, shardId string) (*KinesisClientLease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkTable("get"); err != nil {
		return nil, err
	}
	stored, ok := m.leases[shardId]
	if !ok {
		return nil, nil
	}
	return stored.Copy(), nil
}

func (m *MemoryLeaseManager) RenewLease(ctx context.Context, lease *KinesisClientLease) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, err := m.counterMatches("renew", lease)
	if stored == nil || err != nil {
		return false, err
	}

	stored.SetLeaseCounter(stored.GetLeaseCounter() + 1)
	m.fencer.Renewed(lease)
	return true, nil
}

func (m *MemoryLeaseManager) TakeLease(ctx context.Context, lease *KinesisClientLease, owner string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, err := m.counterMatches("take", lease)
	if stored == nil || err != nil {
		return false, err
	}

	if OwnerChanged(lease, owner) {
		stored.ownerSwitchesSinceCheckpoint++
	}
	stored.SetLeaseOwner(owner)
	stored.SetLeaseCounter(lease.GetLeaseCounter() + 1)
	m.fencer.Taken(lease, owner)
	return true, nil
}

func (m *MemoryLeaseManager) EvictLease(ctx context.Context, lease *KinesisClientLease) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkTable("evict"); err != nil {
		return false, err
	}
	stored, ok := m.leases[lease.GetLeaseKey()]
	if !ok || stored.GetLeaseOwner() != lease.GetLeaseOwner() {
		return false, nil
	}

	stored.SetLeaseOwner("")
	stored.SetLeaseCounter(lease.GetLeaseCounter() + 1)
	m.fencer.Evicted(lease)
	return true, nil
}

func (m *MemoryLeaseManager) DeleteLease(ctx context.Context, lease *KinesisClientLease) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkTable("delete"); err != nil {
		return err
	}
	delete(m.leases, lease.GetLeaseKey())
	return nil
}

func (m *MemoryLeaseManager) DeleteAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkTable("delete"); err != nil {
		return err
	}
	m.leases = map[string]*KinesisClientLease{}
	return nil
}

func (m *MemoryLeaseManager) UpdateLease(ctx context.Context, lease *KinesisClientLease) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if lease.GetCheckpoint() == nil {
		return false, cc.IllegalArgumentError.MakeErr().WithDetail("Checkpoint should not be null")
	}
	stored, err := m.counterMatches("update", lease)
	if stored == nil || err != nil {
		return false, err
	}

	stored.checkpoint = lease.GetCheckpoint()
	stored.pendingCheckpoint = lease.GetPendingCheckpoint()
	stored.ownerSwitchesSinceCheckpoint = lease.GetOwnerSwitchesSinceCheckpoint()
	stored.childShardIds = copySet(lease.childShardIds)
	if hkr := lease.GetHashKeyRange(); hkr != nil {
		stored.hashKeyRange = hkr.Copy()
	}
	stored.SetLeaseCounter(lease.GetLeaseCounter() + 1)

	m.fencer.Updated(lease)
	return true, nil
}

func (m *MemoryLeaseManager) IsLeaseTableEmpty(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkTable("list"); err != nil {
		return false, err
	}
	return len(m.leases) == 0, nil
}

// counterMatches returns the stored lease when its counter equals the caller's, nil otherwise.
func (m *MemoryLeaseManager) counterMatches(operation string, lease *KinesisClientLease) (*KinesisClientLease, error) {
	if err := m.checkTable(operation); err != nil {
		return nil, err
	}
	stored, ok := m.leases[lease.GetLeaseKey()]
	if !ok || stored.GetLeaseCounter() != lease.GetLeaseCounter() {
		logger.ForLease(m.log, lease.GetLeaseKey(), lease.GetLeaseOwner()).Debugf("Lease %s failed, counter moved on", operation)
		return nil, nil
	}
	return stored, nil
}

func (m *MemoryLeaseManager) checkTable(operation string) error {
	if !m.tableExists {
		return cc.LeasingInvalidStateError.MakeErr().WithDetail(operation + ": lease table does not exist")
	}
	return nil
}

// stored strips the local-only fields the remote managers never persist.
func (m *MemoryLeaseManager) stored(lease *KinesisClientLease) *KinesisClientLease {
	cp := lease.Copy()
	cp.SetConcurrencyToken(uuid.Nil)
	cp.SetLastCounterIncrementNanos(0)
	return cp
}
