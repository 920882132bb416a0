package impl

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cc "github.com/vmware/go-kcl-leases/clientlibrary/common"
	"github.com/vmware/go-kcl-leases/clientlibrary/types"
)

func rangedLease(key, start, end string, parents, children []string) *KinesisClientLease {
	if parents == nil {
		parents = []string{}
	}
	if children == nil {
		children = []string{}
	}
	return NewKinesisClientLeaseWithFields(key, "", 0, uuid.Nil, 0, types.TRIM_HORIZON, nil, 0,
		parents, children, types.MustNewHashKeyRange(start, end))
}

func TestValidateChildrenRanges(t *testing.T) {
	var (
		p1 = rangedLease("shardId-000000000000", "0", "49", nil, nil)
		p2 = rangedLease("shardId-000000000001", "50", "99", nil, nil)
	)

	tests := []struct {
		name     string
		parents  []*KinesisClientLease
		children []*KinesisClientLease
		valid    bool
	}{
		{"merge", []*KinesisClientLease{p1, p2},
			[]*KinesisClientLease{rangedLease("shardId-000000000002", "0", "99", nil, nil)}, true},
		{"split", []*KinesisClientLease{rangedLease("shardId-000000000000", "0", "99", nil, nil)},
			[]*KinesisClientLease{
				rangedLease("shardId-000000000002", "50", "99", nil, nil),
				rangedLease("shardId-000000000001", "0", "49", nil, nil),
			}, true},
		{"gap between children", []*KinesisClientLease{rangedLease("shardId-000000000000", "0", "99", nil, nil)},
			[]*KinesisClientLease{
				rangedLease("shardId-000000000001", "0", "48", nil, nil),
				rangedLease("shardId-000000000002", "50", "99", nil, nil),
			}, false},
		{"overlapping children", []*KinesisClientLease{rangedLease("shardId-000000000000", "0", "99", nil, nil)},
			[]*KinesisClientLease{
				rangedLease("shardId-000000000001", "0", "50", nil, nil),
				rangedLease("shardId-000000000002", "50", "99", nil, nil),
			}, false},
		{"child outside parents", []*KinesisClientLease{p1, p2},
			[]*KinesisClientLease{rangedLease("shardId-000000000002", "0", "100", nil, nil)}, false},
		{"no children", []*KinesisClientLease{p1}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChildrenRanges(tt.parents, tt.children)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.True(t, cc.IsErrorCode(err, cc.LineageError), "got %v", err)
			}
		})
	}
}

func TestValidateLineage(t *testing.T) {
	t.Run("merged family", func(t *testing.T) {
		leases := []*KinesisClientLease{
			rangedLease("shardId-000000000000", "0", "49", nil, []string{"shardId-000000000002"}),
			rangedLease("shardId-000000000001", "50", "99", nil, []string{"shardId-000000000002"}),
			rangedLease("shardId-000000000002", "0", "99", []string{"shardId-000000000000", "shardId-000000000001"}, nil),
		}
		assert.NoError(t, ValidateLineage(leases))
	})

	t.Run("children not recorded yet", func(t *testing.T) {
		leases := []*KinesisClientLease{
			rangedLease("shardId-000000000000", "0", "99", nil, nil),
			rangedLease("shardId-000000000001", "0", "49", []string{"shardId-000000000000"}, nil),
		}
		assert.NoError(t, ValidateLineage(leases))
	})

	t.Run("parent already cleaned up", func(t *testing.T) {
		leases := []*KinesisClientLease{
			rangedLease("shardId-000000000001", "50", "99", nil, []string{"shardId-000000000002"}),
			rangedLease("shardId-000000000002", "0", "99", []string{"shardId-000000000000", "shardId-000000000001"}, nil),
		}
		assert.NoError(t, ValidateLineage(leases))
	})

	t.Run("one sided link", func(t *testing.T) {
		leases := []*KinesisClientLease{
			rangedLease("shardId-000000000000", "0", "99", nil, []string{"shardId-000000000001"}),
			rangedLease("shardId-000000000001", "0", "49", nil, nil),
		}
		assert.True(t, cc.IsErrorCode(ValidateLineage(leases), cc.LineageError))
	})

	t.Run("split with a gap", func(t *testing.T) {
		leases := []*KinesisClientLease{
			rangedLease("shardId-000000000000", "0", "99", nil, []string{"shardId-000000000001", "shardId-000000000002"}),
			rangedLease("shardId-000000000001", "0", "40", []string{"shardId-000000000000"}, nil),
			rangedLease("shardId-000000000002", "50", "99", []string{"shardId-000000000000"}, nil),
		}
		assert.True(t, cc.IsErrorCode(ValidateLineage(leases), cc.LineageError))
	})
}

func TestCheckHashKeySpaceCoverage(t *testing.T) {
	var (
		maxKey = types.MaxHashKey.String()
		mid    = "170141183460469231731687303715884105727"
		up     = "170141183460469231731687303715884105728"
	)

	require.NoError(t, CheckHashKeySpaceCoverage([]*KinesisClientLease{
		rangedLease("shardId-000000000002", up, maxKey, nil, nil),
		rangedLease("shardId-000000000001", "0", mid, nil, nil),
	}))

	assert.Error(t, CheckHashKeySpaceCoverage([]*KinesisClientLease{
		rangedLease("shardId-000000000001", "0", mid, nil, nil),
	}))
	assert.Error(t, CheckHashKeySpaceCoverage([]*KinesisClientLease{
		rangedLease("shardId-000000000001", "1", maxKey, nil, nil),
	}))
	assert.Error(t, CheckHashKeySpaceCoverage(nil))
}
