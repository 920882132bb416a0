/*
 * Copyright (c) 2018 VMware, Inc.
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy of this software and
 * associated documentation files (the "Software"), to deal in the Software without restriction, including
 * without limitation the rights to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is furnished to do
 * so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all copies or substantial
 * portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR IMPLIED, INCLUDING BUT
 * NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.
 * IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY,
 * WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION WITH THE
 * SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
 */
package types

import (
	"fmt"
	"math/big"

	"github.com/vmware/go-kcl-leases/clientlibrary/common"
)

var (
	// MinHashKey is the lowest hash key a shard can own.
	MinHashKey = big.NewInt(0)
	// MaxHashKey is 2^128 - 1, the highest hash key a shard can own.
	MaxHashKey = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
)

// HashKeyRange is the inclusive range of partition-key hashes a shard is responsible for.
// It is immutable; accessors return copies of the bounds.
type HashKeyRange struct {
	startingHashKey *big.Int
	endingHashKey   *big.Int
}

// NewHashKeyRange parses decimal bounds as reported by Kinesis.
func NewHashKeyRange(startingHashKey, endingHashKey string) (*HashKeyRange, error) {
	start, ok := new(big.Int).SetString(startingHashKey, 10)
	if !ok {
		return nil, common.IllegalArgumentError.MakeErr().
			WithDetail(fmt.Sprintf("StartingHashKey %q is not a decimal integer", startingHashKey))
	}
	end, ok := new(big.Int).SetString(endingHashKey, 10)
	if !ok {
		return nil, common.IllegalArgumentError.MakeErr().
			WithDetail(fmt.Sprintf("EndingHashKey %q is not a decimal integer", endingHashKey))
	}
	return NewHashKeyRangeFromBigInts(start, end)
}

// NewHashKeyRangeFromBigInts validates 0 <= start <= end <= 2^128-1.
func NewHashKeyRangeFromBigInts(start, end *big.Int) (*HashKeyRange, error) {
	if start == nil || end == nil {
		return nil, common.IllegalArgumentError.MakeErr().WithDetail("Hash key bounds should not be null")
	}
	if start.Cmp(MinHashKey) < 0 || end.Cmp(MaxHashKey) > 0 {
		return nil, common.IllegalArgumentError.MakeErr().
			WithDetail(fmt.Sprintf("Hash key range [%s, %s] is outside of [0, 2^128-1]", start, end))
	}
	if start.Cmp(end) > 0 {
		return nil, common.IllegalArgumentError.MakeErr().
			WithDetail(fmt.Sprintf("StartingHashKey %s must not be greater than EndingHashKey %s", start, end))
	}
	return &HashKeyRange{
		startingHashKey: new(big.Int).Set(start),
		endingHashKey:   new(big.Int).Set(end),
	}, nil
}

// MustNewHashKeyRange is NewHashKeyRange which panics on invalid input. Used for literals.
func MustNewHashKeyRange(startingHashKey, endingHashKey string) *HashKeyRange {
	r, err := NewHashKeyRange(startingHashKey, endingHashKey)
	if err != nil {
		panic(err)
	}
	return r
}

func (h *HashKeyRange) StartingHashKey() *big.Int {
	return new(big.Int).Set(h.startingHashKey)
}

func (h *HashKeyRange) EndingHashKey() *big.Int {
	return new(big.Int).Set(h.endingHashKey)
}

// SerializedStartingHashKey returns the decimal form stored in the lease table.
func (h *HashKeyRange) SerializedStartingHashKey() string {
	return h.startingHashKey.String()
}

// SerializedEndingHashKey returns the decimal form stored in the lease table.
func (h *HashKeyRange) SerializedEndingHashKey() string {
	return h.endingHashKey.String()
}

// Contains reports whether hashKey falls inside the range.
func (h *HashKeyRange) Contains(hashKey *big.Int) bool {
	return h.startingHashKey.Cmp(hashKey) <= 0 && hashKey.Cmp(h.endingHashKey) <= 0
}

// IsAdjacentTo reports whether next starts right after h ends.
func (h *HashKeyRange) IsAdjacentTo(next *HashKeyRange) bool {
	expected := new(big.Int).Add(h.endingHashKey, big.NewInt(1))
	return expected.Cmp(next.startingHashKey) == 0
}

// Overlaps reports whether the two ranges share at least one hash key.
func (h *HashKeyRange) Overlaps(other *HashKeyRange) bool {
	return h.startingHashKey.Cmp(other.endingHashKey) <= 0 && other.startingHashKey.Cmp(h.endingHashKey) <= 0
}

// Equals compares the bounds. Two nil ranges are equal.
func (h *HashKeyRange) Equals(other *HashKeyRange) bool {
	if h == nil || other == nil {
		return h == other
	}
	return h.startingHashKey.Cmp(other.startingHashKey) == 0 && h.endingHashKey.Cmp(other.endingHashKey) == 0
}

// Copy returns an independent range with the same bounds.
func (h *HashKeyRange) Copy() *HashKeyRange {
	if h == nil {
		return nil
	}
	return &HashKeyRange{
		startingHashKey: new(big.Int).Set(h.startingHashKey),
		endingHashKey:   new(big.Int).Set(h.endingHashKey),
	}
}

func (h *HashKeyRange) String() string {
	if h == nil {
		return "<nil>"
	}
	return fmt.Sprintf("[%s, %s]", h.startingHashKey, h.endingHashKey)
}
