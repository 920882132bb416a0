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
package topology

import (
	"context"
	"sort"

	"github.com/vmware/go-kcl-leases/clientlibrary/types"
)

// Shard is one partition of the stream as reported by the stream service.
type Shard struct {
	ShardID string
	// ParentShardIds holds the parent and, for merges, the adjacent parent
	ParentShardIds []string
	HashKeyRange   *types.HashKeyRange
	// Closed shards have an ending sequence number and take no more writes
	Closed bool
}

// ShardDetector lists the shards of a stream.
type ShardDetector interface {
	ListShards(ctx context.Context) ([]*Shard, error)
}

// StaticShardDetector serves a fixed topology. Used by tests and offline tools.
type StaticShardDetector struct {
	Shards []*Shard
}

func NewStaticShardDetector(shards ...*Shard) *StaticShardDetector {
	return &StaticShardDetector{Shards: shards}
}

func (s *StaticShardDetector) ListShards(ctx context.Context) ([]*Shard, error) {
	out := make([]*Shard, 0, len(s.Shards))
	for _, shard := range s.Shards {
		out = append(out, shard.Copy())
	}
	return out, nil
}

// Copy returns a shard sharing nothing with s.
func (s *Shard) Copy() *Shard {
	return &Shard{
		ShardID:        s.ShardID,
		ParentShardIds: append([]string{}, s.ParentShardIds...),
		HashKeyRange:   s.HashKeyRange.Copy(),
		Closed:         s.Closed,
	}
}

// ByID indexes shards by their id.
func ByID(shards []*Shard) map[string]*Shard {
	out := make(map[string]*Shard, len(shards))
	for _, s := range shards {
		out[s.ShardID] = s
	}
	return out
}

// ChildrenOf maps every parent id to the ids of its children, sorted.
func ChildrenOf(shards []*Shard) map[string][]string {
	out := map[string][]string{}
	for _, s := range shards {
		for _, p := range s.ParentShardIds {
			out[p] = append(out[p], s.ShardID)
		}
	}
	for _, ids := range out {
		sort.Strings(ids)
	}
	return out
}
