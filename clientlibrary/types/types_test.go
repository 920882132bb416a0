package types

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmware/go-kcl-leases/clientlibrary/common"
)

func TestSequenceNumberOrdering(t *testing.T) {
	seq100 := NewExtendedSequenceNumber("100", 0)
	seq150 := NewExtendedSequenceNumber("150", 0)
	seq150sub := NewExtendedSequenceNumber("150", 3)
	huge := NewExtendedSequenceNumber("49590338271490256608559692538361571095921575989136588898", 0)

	assert.Equal(t, -1, seq100.Compare(seq150))
	assert.Equal(t, 1, seq150.Compare(seq100))
	assert.Equal(t, -1, seq150.Compare(seq150sub))
	assert.Equal(t, 0, seq150.Compare(NewExtendedSequenceNumber("150", 0)))
	assert.Equal(t, 1, huge.Compare(seq150))

	assert.Equal(t, -1, AT_TIMESTAMP.Compare(TRIM_HORIZON))
	assert.Equal(t, -1, TRIM_HORIZON.Compare(LATEST))
	assert.Equal(t, -1, LATEST.Compare(seq100))
	assert.Equal(t, 1, SHARD_END.Compare(huge))
}

func TestSequenceNumberValidate(t *testing.T) {
	assert.NoError(t, TRIM_HORIZON.Validate())
	assert.NoError(t, NewExtendedSequenceNumber("12345", 2).Validate())

	err := NewExtendedSequenceNumber("abc", 0).Validate()
	assert.True(t, common.IsErrorCode(err, common.IllegalArgumentError))

	_, err = ParseExtendedSequenceNumber("100", -1)
	assert.Error(t, err)
}

func TestSequenceNumberEquality(t *testing.T) {
	a := NewExtendedSequenceNumber("100", 1)
	b := NewExtendedSequenceNumber("100", 1)

	assert.True(t, a.Equals(b))
	assert.Equal(t, a.HashCode(), b.HashCode())
	assert.False(t, a.Equals(NewExtendedSequenceNumber("100", 0)))
	assert.False(t, a.Equals(nil))

	var none *ExtendedSequenceNumber
	assert.True(t, none.Equals(nil))
	assert.Equal(t, "100.1", a.String())
	assert.Equal(t, "SHARD_END", SHARD_END.String())
	assert.True(t, SHARD_END.IsShardEnd())
	assert.True(t, LATEST.IsSentinelCheckpoint())
	assert.False(t, a.IsSentinelCheckpoint())
}

func TestHashKeyRange(t *testing.T) {
	r, err := NewHashKeyRange("0", "49")
	require.NoError(t, err)
	next := MustNewHashKeyRange("50", "99")

	assert.True(t, r.IsAdjacentTo(next))
	assert.False(t, next.IsAdjacentTo(r))
	assert.False(t, r.Overlaps(next))
	assert.True(t, r.Contains(big.NewInt(49)))
	assert.False(t, r.Contains(big.NewInt(50)))
	assert.Equal(t, "0", r.SerializedStartingHashKey())
	assert.Equal(t, "49", r.SerializedEndingHashKey())
	assert.Equal(t, "[0, 49]", r.String())

	cp := r.Copy()
	assert.True(t, cp.Equals(r))
	assert.NotSame(t, r, cp)

	// bounds handed out are copies
	r.StartingHashKey().SetInt64(7)
	assert.Equal(t, "0", r.SerializedStartingHashKey())
}

func TestHashKeyRangeValidation(t *testing.T) {
	_, err := NewHashKeyRange("10", "9")
	assert.True(t, common.IsErrorCode(err, common.IllegalArgumentError))

	_, err = NewHashKeyRange("-1", "9")
	assert.Error(t, err)

	_, err = NewHashKeyRange("0", "x")
	assert.Error(t, err)

	_, err = NewHashKeyRangeFromBigInts(MinHashKey, new(big.Int).Add(MaxHashKey, big.NewInt(1)))
	assert.Error(t, err)

	full, err := NewHashKeyRangeFromBigInts(MinHashKey, MaxHashKey)
	require.NoError(t, err)
	assert.Equal(t, "340282366920938463463374607431768211455", full.SerializedEndingHashKey())
}
