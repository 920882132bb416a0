package impl

import (
	"context"
	"sort"

	"github.com/matryer/try"

	cc "github.com/vmware/go-kcl-leases/clientlibrary/common"
	"github.com/vmware/go-kcl-leases/clientlibrary/config"
	"github.com/vmware/go-kcl-leases/clientlibrary/topology"
	"github.com/vmware/go-kcl-leases/clientlibrary/types"
	"github.com/vmware/go-kcl-leases/logger"
)

// SyncResult lists what one Sync pass changed, by lease key.
type SyncResult struct {
	Created         []string `yaml:"created"`
	ChildLinksAdded []string `yaml:"childLinksAdded"`
	Deleted         []string `yaml:"deleted"`
}

// ShardSyncer keeps the lease table in step with the stream topology: it creates leases for new shards, records
// children on their parents once a reshard happens, and removes leases of shards that were fully processed.
type ShardSyncer struct {
	log         logger.Logger
	kclConfig   *config.LeaseClientConfiguration
	detector    topology.ShardDetector
	manager     ILeaseManager
	maxAttempts int
}

func NewShardSyncer(kclConfig *config.LeaseClientConfiguration, detector topology.ShardDetector, manager ILeaseManager) *ShardSyncer {
	maxAttempts := kclConfig.ShardSyncMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = config.DefaultShardSyncMaxAttempts
	}
	if maxAttempts > try.MaxRetries {
		// try.Do stops on its own limit with an untyped error
		maxAttempts = try.MaxRetries
	}
	return &ShardSyncer{
		log:         kclConfig.Logger,
		kclConfig:   kclConfig,
		detector:    detector,
		manager:     manager,
		maxAttempts: maxAttempts,
	}
}

// Sync runs one pass. A parent whose counter keeps moving under us is skipped and picked up by the next pass.
func (s *ShardSyncer) Sync(ctx context.Context) (*SyncResult, error) {
	shards, err := s.detector.ListShards(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(shards, func(i, j int) bool { return shards[i].ShardID < shards[j].ShardID })

	leases, err := s.manager.ListLeases(ctx)
	if err != nil {
		return nil, err
	}
	byKey := make(map[string]*KinesisClientLease, len(leases))
	for _, l := range leases {
		byKey[l.GetLeaseKey()] = l
	}

	result := &SyncResult{}
	childrenOf := topology.ChildrenOf(shards)

	for _, shard := range shards {
		if _, ok := byKey[shard.ShardID]; ok {
			continue
		}
		if shard.Closed && anyHasLease(childrenOf[shard.ShardID], byKey) {
			// consumed and cleaned up already, the children carry on
			continue
		}

		lease, err := s.newLeaseForShard(shard)
		if err != nil {
			return nil, err
		}
		created, err := s.manager.CreateLeaseIfNotExists(ctx, lease)
		if err != nil {
			return nil, err
		}
		if !created {
			// another worker won the race, read its copy
			if lease, err = s.manager.GetLease(ctx, shard.ShardID); err != nil {
				return nil, err
			}
			if lease == nil {
				continue
			}
		} else {
			s.log.Infof("Created lease for shard %s with parents %v", shard.ShardID, shard.ParentShardIds)
			result.Created = append(result.Created, shard.ShardID)
		}
		byKey[shard.ShardID] = lease
	}

	parentIDs := make([]string, 0, len(childrenOf))
	for id := range childrenOf {
		parentIDs = append(parentIDs, id)
	}
	sort.Strings(parentIDs)

	for _, parentID := range parentIDs {
		parent, ok := byKey[parentID]
		if !ok {
			continue
		}
		linked, err := s.addChildren(ctx, parent, childrenOf[parentID])
		if err != nil {
			if cc.IsErrorCode(err, cc.LeasingError) {
				s.log.Warnf("Could not record children of %s this pass: %+v", parentID, err)
				continue
			}
			return nil, err
		}
		if linked != nil {
			byKey[parentID] = linked
			result.ChildLinksAdded = append(result.ChildLinksAdded, parentID)
		}
	}

	if s.kclConfig.CleanupTerminatedShardsBeforeExpiry {
		deleted, err := s.cleanup(ctx, topology.ByID(shards), byKey)
		if err != nil {
			return nil, err
		}
		result.Deleted = deleted
	}

	return result, nil
}

// addChildren records childIDs on the parent lease. It returns the updated lease, or nil when nothing was missing.
func (s *ShardSyncer) addChildren(ctx context.Context, parent *KinesisClientLease, childIDs []string) (*KinesisClientLease, error) {
	current := parent.Copy()
	if !addMissing(current, childIDs) {
		return nil, nil
	}

	err := try.Do(func(attempt int) (bool, error) {
		ok, err := s.manager.UpdateLease(ctx, current)
		if err != nil || ok {
			return false, err
		}

		fresh, err := s.manager.GetLease(ctx, parent.GetLeaseKey())
		if err != nil {
			return false, err
		}
		if fresh == nil {
			current = nil
			return false, nil
		}
		current = fresh
		if !addMissing(current, childIDs) {
			// someone else recorded them
			current = nil
			return false, nil
		}
		return attempt < s.maxAttempts, cc.LeasingError.MakeErr().
			WithDetail("lease counter of " + parent.GetLeaseKey() + " kept moving")
	})
	if try.IsMaxRetries(err) {
		return nil, cc.LeasingError.MakeErr().
			WithDetail("lease counter of " + parent.GetLeaseKey() + " kept moving").WithCause(err)
	}
	if err != nil {
		return nil, err
	}
	return current, nil
}

func (s *ShardSyncer) cleanup(ctx context.Context, shards map[string]*topology.Shard, byKey map[string]*KinesisClientLease) ([]string, error) {
	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var deleted []string
	for _, key := range keys {
		lease := byKey[key]
		if !lease.IsClosed() {
			continue
		}

		_, inTopology := shards[key]
		if inTopology && !childrenStarted(lease, byKey) {
			continue
		}

		if err := s.manager.DeleteLease(ctx, lease); err != nil {
			return deleted, err
		}
		s.log.Infof("Deleted lease of finished shard %s", key)
		deleted = append(deleted, key)
	}
	return deleted, nil
}

func (s *ShardSyncer) newLeaseForShard(shard *topology.Shard) (*KinesisClientLease, error) {
	lease := NewKinesisClientLease()
	if err := lease.SetLeaseKey(shard.ShardID); err != nil {
		return nil, err
	}

	checkpoint := s.initialPosition()
	if len(shard.ParentShardIds) > 0 {
		// children always start from the beginning so nothing between the parents' end and here is lost
		checkpoint = types.TRIM_HORIZON
	}
	if err := lease.SetCheckpoint(checkpoint); err != nil {
		return nil, err
	}
	if err := lease.SetParentShardIds(append([]string{}, shard.ParentShardIds...)); err != nil {
		return nil, err
	}
	if shard.HashKeyRange != nil {
		if err := lease.SetHashKeyRange(shard.HashKeyRange); err != nil {
			return nil, err
		}
	}
	return lease, nil
}

func (s *ShardSyncer) initialPosition() *types.ExtendedSequenceNumber {
	switch s.kclConfig.InitialPositionInStreamExtended.Position {
	case config.TRIM_HORIZON:
		return types.TRIM_HORIZON
	case config.AT_TIMESTAMP:
		return types.AT_TIMESTAMP
	}
	return types.LATEST
}

// IsReadyForProcessing reports whether every parent of lease is either gone from the table or processed to its end.
func IsReadyForProcessing(lease *KinesisClientLease, byKey map[string]*KinesisClientLease) bool {
	for _, parentID := range lease.GetParentShardIds() {
		if parent, ok := byKey[parentID]; ok && !parent.IsClosed() {
			return false
		}
	}
	return true
}

func addMissing(lease *KinesisClientLease, childIDs []string) bool {
	added := false
	for _, id := range childIDs {
		if lease.AddChildShardId(id) {
			added = true
		}
	}
	return added
}

func anyHasLease(ids []string, byKey map[string]*KinesisClientLease) bool {
	for _, id := range ids {
		if _, ok := byKey[id]; ok {
			return true
		}
	}
	return false
}

// childrenStarted is true once every recorded child checkpointed past its starting position.
func childrenStarted(lease *KinesisClientLease, byKey map[string]*KinesisClientLease) bool {
	children := lease.GetChildShardIds()
	if len(children) == 0 {
		return false
	}
	for _, id := range children {
		child, ok := byKey[id]
		if !ok {
			return false
		}
		cp := child.GetCheckpoint()
		if cp == nil || (cp.IsSentinelCheckpoint() && !cp.IsShardEnd()) {
			return false
		}
	}
	return true
}
