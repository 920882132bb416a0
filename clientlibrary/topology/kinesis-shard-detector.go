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

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/kinesis"
	"github.com/aws/aws-sdk-go/service/kinesis/kinesisiface"

	"github.com/vmware/go-kcl-leases/clientlibrary/common"
	"github.com/vmware/go-kcl-leases/clientlibrary/config"
	"github.com/vmware/go-kcl-leases/clientlibrary/types"
	"github.com/vmware/go-kcl-leases/logger"
)

// KinesisShardDetector lists shards with the Kinesis ListShards API.
type KinesisShardDetector struct {
	log        logger.Logger
	streamName string
	kc         kinesisiface.KinesisAPI
	kclConfig  *config.LeaseClientConfiguration
}

var _ ShardDetector = (*KinesisShardDetector)(nil)

func NewKinesisShardDetector(kclConfig *config.LeaseClientConfiguration) *KinesisShardDetector {
	return &KinesisShardDetector{
		log:        kclConfig.Logger,
		streamName: kclConfig.StreamName,
		kclConfig:  kclConfig,
	}
}

// WithKinesis is used to provide Kinesis service
func (d *KinesisShardDetector) WithKinesis(kc kinesisiface.KinesisAPI) *KinesisShardDetector {
	d.kc = kc
	return d
}

// Init creates the Kinesis client unless one was provided.
func (d *KinesisShardDetector) Init() error {
	if d.kc != nil {
		d.log.Infof("Use custom Kinesis service.")
		return nil
	}

	d.log.Infof("Creating Kinesis session")
	s, err := session.NewSession(&aws.Config{
		Region:      aws.String(d.kclConfig.RegionName),
		Endpoint:    aws.String(d.kclConfig.KinesisEndpoint),
		Credentials: d.kclConfig.KinesisCredentials,
	})
	if err != nil {
		return common.KinesisClientLibIOError.MakeErr().WithDetail("failed in getting Kinesis session").WithCause(err)
	}
	d.kc = kinesis.New(s)
	return nil
}

// ListShards pages through every shard of the stream, closed ones included.
func (d *KinesisShardDetector) ListShards(ctx context.Context) ([]*Shard, error) {
	var result []*Shard
	nextToken := ""

	for {
		args := &kinesis.ListShardsInput{}

		// When you have a nextToken, you can't set the streamName
		if nextToken != "" {
			args.NextToken = aws.String(nextToken)
		} else {
			args.StreamName = aws.String(d.streamName)
		}

		listShards, err := d.kc.ListShardsWithContext(ctx, args)
		if err != nil {
			d.log.Errorf("Error in ListShards: %s Error: %+v Request: %s", d.streamName, err, args)
			return nil, common.KinesisClientLibIOError.MakeErr().WithDetail("list shards of " + d.streamName).WithCause(err)
		}

		for _, s := range listShards.Shards {
			shard, err := toShard(s)
			if err != nil {
				return nil, err
			}
			result = append(result, shard)
		}

		if listShards.NextToken == nil {
			return result, nil
		}
		nextToken = aws.StringValue(listShards.NextToken)
	}
}

func toShard(s *kinesis.Shard) (*Shard, error) {
	shard := &Shard{
		ShardID:        aws.StringValue(s.ShardId),
		ParentShardIds: []string{},
	}

	if p := aws.StringValue(s.ParentShardId); p != "" {
		shard.ParentShardIds = append(shard.ParentShardIds, p)
	}
	if p := aws.StringValue(s.AdjacentParentShardId); p != "" {
		shard.ParentShardIds = append(shard.ParentShardIds, p)
	}

	if s.HashKeyRange != nil {
		hkr, err := types.NewHashKeyRange(aws.StringValue(s.HashKeyRange.StartingHashKey), aws.StringValue(s.HashKeyRange.EndingHashKey))
		if err != nil {
			return nil, common.KinesisClientLibIOError.MakeErr().WithDetail("bad hash key range for " + shard.ShardID).WithCause(err)
		}
		shard.HashKeyRange = hkr
	}

	// child shard doesn't have end sequence number
	shard.Closed = s.SequenceNumberRange != nil && s.SequenceNumberRange.EndingSequenceNumber != nil
	return shard, nil
}
