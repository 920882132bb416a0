package impl

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	cc "github.com/vmware/go-kcl-leases/clientlibrary/common"
	. "github.com/vmware/go-kcl-leases/clientlibrary/types"
	. "github.com/vmware/go-kcl-leases/leases/interfaces"
)

// KinesisClientLease is a Lease subclass containing KinesisClientLibrary related fields for checkpoints.
// Note: golang doesn't support inheritance, use composition instead.
type KinesisClientLease struct {
	Lease

	checkpoint                   *ExtendedSequenceNumber
	pendingCheckpoint            *ExtendedSequenceNumber
	ownerSwitchesSinceCheckpoint int64
	parentShardIds               map[string]struct{}
	childShardIds                map[string]struct{}
	hashKeyRange                 *HashKeyRange
}

var _ ILease = (*KinesisClientLease)(nil)

// NewKinesisClientLease returns an empty lease: no key, no owner, no checkpoint.
func NewKinesisClientLease() *KinesisClientLease {
	return &KinesisClientLease{
		parentShardIds: map[string]struct{}{},
		childShardIds:  map[string]struct{}{},
	}
}

// NewKinesisClientLeaseWithFields builds a fully populated lease. The slices are copied.
func NewKinesisClientLeaseWithFields(leaseKey, leaseOwner string, leaseCounter int64, concurrencyToken uuid.UUID,
	lastCounterIncrementNanos int64, checkpoint, pendingCheckpoint *ExtendedSequenceNumber, ownerSwitchesSinceCheckpoint int64,
	parentShardIds, childShardIds []string, hashKeyRange *HashKeyRange) *KinesisClientLease {
	return &KinesisClientLease{
		Lease:                        *NewLease(leaseKey, leaseOwner, leaseCounter, concurrencyToken, lastCounterIncrementNanos),
		checkpoint:                   checkpoint,
		pendingCheckpoint:            pendingCheckpoint,
		ownerSwitchesSinceCheckpoint: ownerSwitchesSinceCheckpoint,
		parentShardIds:               toSet(parentShardIds),
		childShardIds:                toSet(childShardIds),
		hashKeyRange:                 hashKeyRange.Copy(),
	}
}

// CopyKinesisClientLease to clone a lease object. Nothing is shared with the source.
func CopyKinesisClientLease(other *KinesisClientLease) *KinesisClientLease {
	return &KinesisClientLease{
		Lease:                        *CopyLease(&other.Lease),
		checkpoint:                   other.checkpoint,
		pendingCheckpoint:            other.pendingCheckpoint,
		ownerSwitchesSinceCheckpoint: other.ownerSwitchesSinceCheckpoint,
		parentShardIds:               copySet(other.parentShardIds),
		childShardIds:                copySet(other.childShardIds),
		hashKeyRange:                 other.hashKeyRange.Copy(),
	}
}

// Copy returns a deep copy of this lease.
func (l *KinesisClientLease) Copy() *KinesisClientLease {
	return CopyKinesisClientLease(l)
}

// Update updates this lease with another lease's values: the core lease fields, the checkpoints, owner switches and
// parent shard ids. Child shard ids and the hash key range are left alone, they are maintained by the shard syncer.
// The receiver is untouched when an error is returned.
func (l *KinesisClientLease) Update(other ILease) error {
	casted, ok := other.(*KinesisClientLease)
	if !ok || casted == nil {
		return cc.IllegalArgumentError.MakeErr().
			WithDetail(fmt.Sprintf("Must pass KinesisClientLease object to KinesisClientLease.Update(ILease), got %T", other))
	}
	if casted.checkpoint == nil {
		return cc.IllegalArgumentError.MakeErr().WithDetail("Checkpoint should not be null")
	}

	if err := l.Lease.Update(casted); err != nil {
		return err
	}
	l.checkpoint = casted.checkpoint
	l.pendingCheckpoint = casted.pendingCheckpoint
	l.ownerSwitchesSinceCheckpoint = casted.ownerSwitchesSinceCheckpoint
	l.parentShardIds = copySet(casted.parentShardIds)
	return nil
}

// GetCheckpoint returns most recently application-supplied checkpoint value. During fail over, the new worker
// will pick up after the old worker's last checkpoint.
func (l *KinesisClientLease) GetCheckpoint() *ExtendedSequenceNumber {
	return l.checkpoint
}

// GetPendingCheckpoint returns pending checkpoint, possibly nil.
func (l *KinesisClientLease) GetPendingCheckpoint() *ExtendedSequenceNumber {
	return l.pendingCheckpoint
}

func (l *KinesisClientLease) HasPendingCheckpoint() bool {
	return l.pendingCheckpoint != nil
}

// GetOwnerSwitchesSinceCheckpoint counts of distinct lease holders between checkpoints.
func (l *KinesisClientLease) GetOwnerSwitchesSinceCheckpoint() int64 {
	return l.ownerSwitchesSinceCheckpoint
}

// GetParentShardIds returns shardIds that parent this lease. Used for resharding.
func (l *KinesisClientLease) GetParentShardIds() []string {
	return sortedKeys(l.parentShardIds)
}

// GetChildShardIds returns shardIds that are children of this lease. Used for resharding.
func (l *KinesisClientLease) GetChildShardIds() []string {
	return sortedKeys(l.childShardIds)
}

func (l *KinesisClientLease) HasParentShardId(shardID string) bool {
	_, ok := l.parentShardIds[shardID]
	return ok
}

func (l *KinesisClientLease) HasChildShardId(shardID string) bool {
	_, ok := l.childShardIds[shardID]
	return ok
}

// GetHashKeyRange returns the hash key range of the shard, nil if never recorded.
func (l *KinesisClientLease) GetHashKeyRange() *HashKeyRange {
	return l.hashKeyRange
}

// IsClosed reports whether the shard was processed to its end.
func (l *KinesisClientLease) IsClosed() bool {
	return l.checkpoint.IsShardEnd()
}

// SetCheckpoint sets checkpoint. It cannot be nil.
func (l *KinesisClientLease) SetCheckpoint(checkpoint *ExtendedSequenceNumber) error {
	if checkpoint == nil {
		return cc.IllegalArgumentError.MakeErr().WithDetail("Checkpoint should not be null")
	}
	l.checkpoint = checkpoint
	return nil
}

// SetPendingCheckpoint sets the checkpoint the application is about to commit. nil clears it.
func (l *KinesisClientLease) SetPendingCheckpoint(pendingCheckpoint *ExtendedSequenceNumber) {
	l.pendingCheckpoint = pendingCheckpoint
}

func (l *KinesisClientLease) SetOwnerSwitchesSinceCheckpoint(ownerSwitchesSinceCheckpoint int64) error {
	if ownerSwitchesSinceCheckpoint < 0 {
		return cc.IllegalArgumentError.MakeErr().WithDetail("ownerSwitchesSinceCheckpoint should not be negative")
	}
	l.ownerSwitchesSinceCheckpoint = ownerSwitchesSinceCheckpoint
	return nil
}

// SetParentShardIds replaces the parent set. nil is rejected, an empty slice clears it.
func (l *KinesisClientLease) SetParentShardIds(parentShardIds []string) error {
	if parentShardIds == nil {
		return cc.IllegalArgumentError.MakeErr().WithDetail("parentShardIds should not be null")
	}
	l.parentShardIds = toSet(parentShardIds)
	return nil
}

// SetChildShardIds replaces the child set. nil is rejected, an empty slice clears it.
func (l *KinesisClientLease) SetChildShardIds(childShardIds []string) error {
	if childShardIds == nil {
		return cc.IllegalArgumentError.MakeErr().WithDetail("childShardIds should not be null")
	}
	l.childShardIds = toSet(childShardIds)
	return nil
}

// AddChildShardId records one more child. Returns false if it was already known.
func (l *KinesisClientLease) AddChildShardId(shardID string) bool {
	if l.HasChildShardId(shardID) {
		return false
	}
	if l.childShardIds == nil {
		l.childShardIds = map[string]struct{}{}
	}
	l.childShardIds[shardID] = struct{}{}
	return true
}

func (l *KinesisClientLease) SetHashKeyRange(hashKeyRange *HashKeyRange) error {
	if hashKeyRange == nil {
		return cc.IllegalArgumentError.MakeErr().WithDetail("hashKeyRangeForLease should not be null")
	}
	l.hashKeyRange = hashKeyRange.Copy()
	return nil
}

// Equals compares the core lease fields, checkpoint, pending checkpoint, owner switches and parent shard ids.
// Child shard ids and the hash key range do not take part.
func (l *KinesisClientLease) Equals(other *KinesisClientLease) bool {
	if l == other {
		return true
	}
	if l == nil || other == nil {
		return false
	}
	return l.Lease.Equals(&other.Lease) &&
		l.checkpoint.Equals(other.checkpoint) &&
		l.pendingCheckpoint.Equals(other.pendingCheckpoint) &&
		l.ownerSwitchesSinceCheckpoint == other.ownerSwitchesSinceCheckpoint &&
		setsEqual(l.parentShardIds, other.parentShardIds)
}

// HashCode is consistent with Equals.
func (l *KinesisClientLease) HashCode() int32 {
	const prime = 31
	result := l.Lease.HashCode()
	result = prime*result + l.checkpoint.HashCode()
	if l.pendingCheckpoint != nil {
		result = prime*result + l.pendingCheckpoint.HashCode()
	}
	result = prime*result + int32(l.ownerSwitchesSinceCheckpoint^(l.ownerSwitchesSinceCheckpoint>>32))
	result = prime*result + setHash(l.parentShardIds)
	return result
}

func (l *KinesisClientLease) String() string {
	return fmt.Sprintf("KinesisClientLease(leaseKey=%s, leaseOwner=%s, leaseCounter=%d, checkpoint=%v, pendingCheckpoint=%v, "+
		"ownerSwitchesSinceCheckpoint=%d, parentShardIds=%v, childShardIds=%v, hashKeyRange=%v)",
		l.leaseKey, l.leaseOwner, l.leaseCounter, l.checkpoint, l.pendingCheckpoint,
		l.ownerSwitchesSinceCheckpoint, l.GetParentShardIds(), l.GetChildShardIds(), l.hashKeyRange)
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func copySet(set map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(set))
	for id := range set {
		out[id] = struct{}{}
	}
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func setsEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for id := range a {
		if _, ok := b[id]; !ok {
			return false
		}
	}
	return true
}

// order independent, like a java.util.Set
func setHash(set map[string]struct{}) int32 {
	var h int32
	for id := range set {
		h += StringHash(id)
	}
	return h
}
