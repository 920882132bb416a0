package impl

import (
	"fmt"
	"math/big"
	"sort"

	cc "github.com/vmware/go-kcl-leases/clientlibrary/common"
	"github.com/vmware/go-kcl-leases/clientlibrary/types"
)

// ValidateChildrenRanges checks that the children's hash key ranges tile the union of the parents' ranges: no gap,
// no overlap, nothing outside. Splits have one parent and several children, merges the other way round.
func ValidateChildrenRanges(parents, children []*KinesisClientLease) error {
	if len(parents) == 0 || len(children) == 0 {
		return lineageErr("need at least one parent and one child")
	}

	parentRanges, err := rangesOf(parents)
	if err != nil {
		return err
	}
	childRanges, err := rangesOf(children)
	if err != nil {
		return err
	}

	sortRanges(parentRanges)
	if err := contiguous(parentRanges, "parent"); err != nil {
		return err
	}

	sortRanges(childRanges)
	if err := contiguous(childRanges, "child"); err != nil {
		return err
	}

	start, end := parentRanges[0].StartingHashKey(), parentRanges[len(parentRanges)-1].EndingHashKey()
	if childRanges[0].StartingHashKey().Cmp(start) != 0 || childRanges[len(childRanges)-1].EndingHashKey().Cmp(end) != 0 {
		return lineageErr(fmt.Sprintf("children cover [%s, %s] but parents cover [%s, %s]",
			childRanges[0].StartingHashKey(), childRanges[len(childRanges)-1].EndingHashKey(), start, end))
	}
	return nil
}

// ValidateLineage checks the parent and child links recorded across a lease table. A link must be symmetric once
// the parent has its children recorded, and each closed family must be range complete. Leases whose relatives were
// already cleaned up are skipped.
func ValidateLineage(leases []*KinesisClientLease) error {
	byKey := make(map[string]*KinesisClientLease, len(leases))
	for _, l := range leases {
		byKey[l.GetLeaseKey()] = l
	}

	for _, child := range leases {
		for _, parentID := range child.GetParentShardIds() {
			parent, ok := byKey[parentID]
			if !ok || len(parent.childShardIds) == 0 {
				continue
			}
			if !parent.HasChildShardId(child.GetLeaseKey()) {
				return lineageErr(fmt.Sprintf("%s lists parent %s but %s does not list it as a child",
					child.GetLeaseKey(), parentID, parentID))
			}
		}
	}

	for _, parent := range leases {
		if len(parent.childShardIds) == 0 {
			continue
		}

		var children []*KinesisClientLease
		family := map[string]*KinesisClientLease{parent.GetLeaseKey(): parent}
		for _, childID := range parent.GetChildShardIds() {
			child, ok := byKey[childID]
			if !ok {
				children = nil
				break
			}
			if !child.HasParentShardId(parent.GetLeaseKey()) {
				return lineageErr(fmt.Sprintf("%s lists child %s but %s does not list it as a parent",
					parent.GetLeaseKey(), childID, childID))
			}
			children = append(children, child)
			for _, otherParentID := range child.GetParentShardIds() {
				if other, ok := byKey[otherParentID]; ok {
					family[otherParentID] = other
				}
			}
		}

		if len(children) == 0 || !allHaveRanges(children) || !allHaveRanges(familyLeases(family)) {
			continue
		}
		if len(family) != len(children[0].parentShardIds) {
			// a merged parent is already gone
			continue
		}
		if err := ValidateChildrenRanges(familyLeases(family), children); err != nil {
			return err
		}
	}
	return nil
}

// CheckHashKeySpaceCoverage checks that the open shards' ranges cover the whole hash key space exactly once.
func CheckHashKeySpaceCoverage(openLeases []*KinesisClientLease) error {
	if len(openLeases) == 0 {
		return lineageErr("no open leases")
	}

	ranges, err := rangesOf(openLeases)
	if err != nil {
		return err
	}
	sortRanges(ranges)

	if ranges[0].StartingHashKey().Cmp(types.MinHashKey) != 0 {
		return lineageErr(fmt.Sprintf("hash key space starts at %s", ranges[0].StartingHashKey()))
	}
	if err := contiguous(ranges, "open shard"); err != nil {
		return err
	}
	if last := ranges[len(ranges)-1].EndingHashKey(); last.Cmp(types.MaxHashKey) != 0 {
		return lineageErr(fmt.Sprintf("hash key space ends at %s", last))
	}
	return nil
}

func rangesOf(leases []*KinesisClientLease) ([]*types.HashKeyRange, error) {
	ranges := make([]*types.HashKeyRange, 0, len(leases))
	for _, l := range leases {
		if l.GetHashKeyRange() == nil {
			return nil, lineageErr(fmt.Sprintf("%s has no hash key range", l.GetLeaseKey()))
		}
		ranges = append(ranges, l.GetHashKeyRange())
	}
	return ranges, nil
}

func sortRanges(ranges []*types.HashKeyRange) {
	sort.Slice(ranges, func(i, j int) bool {
		return ranges[i].StartingHashKey().Cmp(ranges[j].StartingHashKey()) < 0
	})
}

// contiguous expects ranges sorted by their start.
func contiguous(ranges []*types.HashKeyRange, what string) error {
	for i := 1; i < len(ranges); i++ {
		prev, next := ranges[i-1], ranges[i]
		if prev.Overlaps(next) {
			return lineageErr(fmt.Sprintf("%s ranges %s and %s overlap", what, prev, next))
		}
		if !prev.IsAdjacentTo(next) {
			gapStart := new(big.Int).Add(prev.EndingHashKey(), big.NewInt(1))
			return lineageErr(fmt.Sprintf("gap in %s ranges starting at %s", what, gapStart))
		}
	}
	return nil
}

func allHaveRanges(leases []*KinesisClientLease) bool {
	for _, l := range leases {
		if l.GetHashKeyRange() == nil {
			return false
		}
	}
	return true
}

func familyLeases(family map[string]*KinesisClientLease) []*KinesisClientLease {
	out := make([]*KinesisClientLease, 0, len(family))
	for _, l := range family {
		out = append(out, l)
	}
	return out
}

func lineageErr(detail string) error {
	return cc.LineageError.MakeErr().WithDetail(detail)
}
