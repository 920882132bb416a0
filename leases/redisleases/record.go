package redisleases

import (
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	cc "github.com/vmware/go-kcl-leases/clientlibrary/common"
	"github.com/vmware/go-kcl-leases/clientlibrary/types"
	"github.com/vmware/go-kcl-leases/leases/impl"
)

const setSeparator = ","

// toHash flattens a lease into hash fields named like the DynamoDB attributes. Empty values are left out.
func toHash(lease *impl.KinesisClientLease) map[string]string {
	fields := map[string]string{
		impl.LEASE_KEY_KEY:      lease.GetLeaseKey(),
		impl.LEASE_COUNTER_KEY:  strconv.FormatInt(lease.GetLeaseCounter(), 10),
		impl.OWNER_SWITCHES_KEY: strconv.FormatInt(lease.GetOwnerSwitchesSinceCheckpoint(), 10),
	}
	if lease.IsOwned() {
		fields[impl.LEASE_OWNER_KEY] = lease.GetLeaseOwner()
	}
	if cp := lease.GetCheckpoint(); cp != nil {
		fields[impl.CHECKPOINT_SEQUENCE_NUMBER_KEY] = cp.GetSequenceNumber()
		fields[impl.CHECKPOINT_SUBSEQUENCE_NUMBER_KEY] = strconv.FormatInt(cp.GetSubSequenceNumber(), 10)
	}
	if pending := lease.GetPendingCheckpoint(); pending != nil {
		fields[impl.PENDING_CHECKPOINT_SEQUENCE_NUMBER_KEY] = pending.GetSequenceNumber()
		fields[impl.PENDING_CHECKPOINT_SUBSEQUENCE_NUMBER_KEY] = strconv.FormatInt(pending.GetSubSequenceNumber(), 10)
	}
	if parents := lease.GetParentShardIds(); len(parents) > 0 {
		fields[impl.PARENT_SHARD_ID_KEY] = strings.Join(parents, setSeparator)
	}
	if children := lease.GetChildShardIds(); len(children) > 0 {
		fields[impl.CHILD_SHARD_IDS_KEY] = strings.Join(children, setSeparator)
	}
	if hkr := lease.GetHashKeyRange(); hkr != nil {
		fields[impl.STARTING_HASH_KEY] = hkr.SerializedStartingHashKey()
		fields[impl.ENDING_HASH_KEY] = hkr.SerializedEndingHashKey()
	}
	return fields
}

// fromHash rebuilds a lease from its hash fields.
func fromHash(fields map[string]string) (*impl.KinesisClientLease, error) {
	key := fields[impl.LEASE_KEY_KEY]
	p := &longParser{fields: fields, leaseKey: key}

	var checkpoint, pending *types.ExtendedSequenceNumber
	if sn, ok := fields[impl.CHECKPOINT_SEQUENCE_NUMBER_KEY]; ok {
		checkpoint = types.NewExtendedSequenceNumber(sn, p.parse(impl.CHECKPOINT_SUBSEQUENCE_NUMBER_KEY))
	}
	if sn, ok := fields[impl.PENDING_CHECKPOINT_SEQUENCE_NUMBER_KEY]; ok {
		pending = types.NewExtendedSequenceNumber(sn, p.parse(impl.PENDING_CHECKPOINT_SUBSEQUENCE_NUMBER_KEY))
	}
	counter := p.parse(impl.LEASE_COUNTER_KEY)
	switches := p.parse(impl.OWNER_SWITCHES_KEY)
	if p.err != nil {
		return nil, p.err
	}

	var hkr *types.HashKeyRange
	if start, ok := fields[impl.STARTING_HASH_KEY]; ok {
		var err error
		if hkr, err = types.NewHashKeyRange(start, fields[impl.ENDING_HASH_KEY]); err != nil {
			return nil, cc.LeasingInvalidStateError.MakeErr().
				WithDetail("lease " + key + " has a corrupt hash key range").WithCause(err)
		}
	}

	return impl.NewKinesisClientLeaseWithFields(key, fields[impl.LEASE_OWNER_KEY],
		counter, uuid.Nil, 0,
		checkpoint, pending, switches,
		splitSet(fields[impl.PARENT_SHARD_ID_KEY]), splitSet(fields[impl.CHILD_SHARD_IDS_KEY]), hkr), nil
}

// longParser reads numeric hash fields and keeps the first failure. Absent fields read as 0.
type longParser struct {
	fields   map[string]string
	leaseKey string
	err      error
}

func (p *longParser) parse(field string) int64 {
	s, ok := p.fields[field]
	if !ok || p.err != nil {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		p.err = cc.LeasingInvalidStateError.MakeErr().
			WithDetail("lease " + p.leaseKey + " has a corrupt " + field).WithCause(err)
	}
	return n
}

func splitSet(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, setSeparator)
}

func sortedFields[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
