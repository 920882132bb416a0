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

// Sentinel checkpoint values. They are stored in place of a real sequence number.
const (
	// SentinelTrimHorizon starts from the first available record in the shard.
	SentinelTrimHorizon = "TRIM_HORIZON"
	// SentinelLatest starts from the latest record in the shard.
	SentinelLatest = "LATEST"
	// SentinelShardEnd means we have completely processed all records in this shard.
	SentinelShardEnd = "SHARD_END"
	// SentinelAtTimestamp starts from the record at or after the specified server-side timestamp.
	SentinelAtTimestamp = "AT_TIMESTAMP"
)

var (
	TRIM_HORIZON = NewExtendedSequenceNumber(SentinelTrimHorizon, 0)
	LATEST       = NewExtendedSequenceNumber(SentinelLatest, 0)
	SHARD_END    = NewExtendedSequenceNumber(SentinelShardEnd, 0)
	AT_TIMESTAMP = NewExtendedSequenceNumber(SentinelAtTimestamp, 0)

	// sort keys used in place of the numeric value for sentinels
	atTimestampValue = big.NewInt(-3)
	trimHorizonValue = big.NewInt(-2)
	latestValue      = big.NewInt(-1)
	shardEndValue    = new(big.Int).Lsh(big.NewInt(1), 128)
	// unparseable positions sort below everything else
	invalidValue = big.NewInt(-4)
)

// ExtendedSequenceNumber represents a two-part sequence number for records aggregated by the Kinesis Producer Library.
//
// The KPL combines multiple user records into a single Kinesis record. Each user record therefore has an integer
// sub-sequence number, in addition to the regular sequence number of the Kinesis record. The sub-sequence number
// is used to checkpoint within an aggregated record.
type ExtendedSequenceNumber struct {
	sequenceNumber    string
	subSequenceNumber int64
}

// NewExtendedSequenceNumber creates a position. The sequence number is not validated, see Validate.
func NewExtendedSequenceNumber(sequenceNumber string, subSequenceNumber int64) *ExtendedSequenceNumber {
	return &ExtendedSequenceNumber{
		sequenceNumber:    sequenceNumber,
		subSequenceNumber: subSequenceNumber,
	}
}

// ParseExtendedSequenceNumber creates a position and validates it.
func ParseExtendedSequenceNumber(sequenceNumber string, subSequenceNumber int64) (*ExtendedSequenceNumber, error) {
	esn := NewExtendedSequenceNumber(sequenceNumber, subSequenceNumber)
	if err := esn.Validate(); err != nil {
		return nil, err
	}
	return esn, nil
}

func (e *ExtendedSequenceNumber) GetSequenceNumber() string {
	return e.sequenceNumber
}

func (e *ExtendedSequenceNumber) GetSubSequenceNumber() int64 {
	return e.subSequenceNumber
}

// IsSentinelCheckpoint returns true if the sequence number is one of the sentinel values.
func (e *ExtendedSequenceNumber) IsSentinelCheckpoint() bool {
	switch e.sequenceNumber {
	case SentinelTrimHorizon, SentinelLatest, SentinelShardEnd, SentinelAtTimestamp:
		return true
	}
	return false
}

// IsShardEnd reports whether the shard has been completely processed.
func (e *ExtendedSequenceNumber) IsShardEnd() bool {
	return e != nil && e.sequenceNumber == SentinelShardEnd
}

// Validate checks the sequence number is either a sentinel or a non-negative decimal integer.
func (e *ExtendedSequenceNumber) Validate() error {
	if e.subSequenceNumber < 0 {
		return common.IllegalArgumentError.MakeErr().
			WithDetail(fmt.Sprintf("SubSequenceNumber must be non-negative, got %d", e.subSequenceNumber))
	}
	if e.IsSentinelCheckpoint() {
		return nil
	}
	if v, ok := new(big.Int).SetString(e.sequenceNumber, 10); !ok || v.Sign() < 0 {
		return common.IllegalArgumentError.MakeErr().
			WithDetail(fmt.Sprintf("Sequence number must be numeric, but was %q", e.sequenceNumber))
	}
	return nil
}

func (e *ExtendedSequenceNumber) value() *big.Int {
	switch e.sequenceNumber {
	case SentinelAtTimestamp:
		return atTimestampValue
	case SentinelTrimHorizon:
		return trimHorizonValue
	case SentinelLatest:
		return latestValue
	case SentinelShardEnd:
		return shardEndValue
	}
	v, ok := new(big.Int).SetString(e.sequenceNumber, 10)
	if !ok {
		return invalidValue
	}
	return v
}

// Compare orders two positions. AT_TIMESTAMP, TRIM_HORIZON and LATEST sort before any numeric
// sequence number and SHARD_END after all of them. Sub-sequence numbers break ties.
// Returns -1, 0 or +1.
func (e *ExtendedSequenceNumber) Compare(other *ExtendedSequenceNumber) int {
	if c := e.value().Cmp(other.value()); c != 0 {
		return c
	}
	switch {
	case e.subSequenceNumber < other.subSequenceNumber:
		return -1
	case e.subSequenceNumber > other.subSequenceNumber:
		return 1
	}
	return 0
}

// Equals compares both parts. Two nil positions are equal.
func (e *ExtendedSequenceNumber) Equals(other *ExtendedSequenceNumber) bool {
	if e == nil || other == nil {
		return e == other
	}
	return e.sequenceNumber == other.sequenceNumber && e.subSequenceNumber == other.subSequenceNumber
}

// HashCode returns a hash consistent with Equals.
func (e *ExtendedSequenceNumber) HashCode() int32 {
	if e == nil {
		return 0
	}
	result := int32(1)
	result = 31*result + int32(e.subSequenceNumber^(e.subSequenceNumber>>32))
	result = 31*result + StringHash(e.sequenceNumber)
	return result
}

func (e *ExtendedSequenceNumber) String() string {
	if e == nil {
		return "<nil>"
	}
	if e.subSequenceNumber == 0 {
		return e.sequenceNumber
	}
	return fmt.Sprintf("%s.%d", e.sequenceNumber, e.subSequenceNumber)
}

// StringHash is the 31-multiplier polynomial string hash used by the HashCode methods.
func StringHash(s string) int32 {
	var h int32
	for _, r := range s {
		h = 31*h + int32(r)
	}
	return h
}
