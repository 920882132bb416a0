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
// The implementation is derived from https://github.com/awslabs/amazon-kinesis-client
/*
 * Copyright 2014-2015 Amazon.com, Inc. or its affiliates. All Rights Reserved.
 *
 * Licensed under the Amazon Software License (the "License").
 * You may not use this file except in compliance with the License.
 * A copy of the License is located at
 *
 * http://aws.amazon.com/asl/
 *
 * or in the "license" file accompanying this file. This file is distributed
 * on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either
 * express or implied. See the License for the specific language governing
 * permissions and limitations under the License.
 */
package config

import (
	"log"
	"time"

	"github.com/aws/aws-sdk-go/aws/credentials"

	"github.com/vmware/go-kcl-leases/clientlibrary/metrics"
	"github.com/vmware/go-kcl-leases/clientlibrary/utils"
	"github.com/vmware/go-kcl-leases/logger"
)

// NewLeaseClientConfig creates a default LeaseClientConfiguration based on the required fields.
func NewLeaseClientConfig(applicationName, streamName, regionName, workerID string) *LeaseClientConfiguration {
	return NewLeaseClientConfigWithCredentials(applicationName, streamName, regionName, workerID,
		nil, nil)
}

// NewLeaseClientConfigWithCredential creates a default LeaseClientConfiguration based on the required fields and unique credentials.
func NewLeaseClientConfigWithCredential(applicationName, streamName, regionName, workerID string,
	creds *credentials.Credentials) *LeaseClientConfiguration {
	return NewLeaseClientConfigWithCredentials(applicationName, streamName, regionName, workerID, creds, creds)
}

// NewLeaseClientConfigWithCredentials creates a default LeaseClientConfiguration based on the required fields and specific credentials for each service.
func NewLeaseClientConfigWithCredentials(applicationName, streamName, regionName, workerID string,
	kinesisCreds, dynamodbCreds *credentials.Credentials) *LeaseClientConfiguration {
	checkIsValueNotEmpty("ApplicationName", applicationName)
	checkIsValueNotEmpty("StreamName", streamName)
	checkIsValueNotEmpty("RegionName", regionName)

	if empty(workerID) {
		workerID = utils.MustNewUUID()
	}

	// populate the configuration with default values
	return &LeaseClientConfiguration{
		ApplicationName:                     applicationName,
		KinesisCredentials:                  kinesisCreds,
		DynamoDBCredentials:                 dynamodbCreds,
		TableName:                           applicationName,
		StreamName:                          streamName,
		RegionName:                          regionName,
		WorkerID:                            workerID,
		InitialPositionInStream:             DefaultInitialPositionInStream,
		InitialPositionInStreamExtended:     *newInitialPosition(DefaultInitialPositionInStream),
		FailoverTimeMillis:                  DefaultFailoverTimeMillis,
		CleanupTerminatedShardsBeforeExpiry: DefaultCleanupLeasesUponShardsCompletion,
		InitialLeaseTableReadCapacity:       DefaultInitialLeaseTableReadCapacity,
		InitialLeaseTableWriteCapacity:      DefaultInitialLeaseTableWriteCapacity,
		ShardSyncMaxAttempts:                DefaultShardSyncMaxAttempts,
		LeaseTablePollSeconds:               DefaultLeaseTablePollSeconds,
		LeaseTableTimeoutSeconds:            DefaultLeaseTableTimeoutSeconds,
		NumMaxRetries:                       DefaultNumMaxRetries,
		RedisKeyPrefix:                      DefaultRedisKeyPrefix,
		Logger:                              logger.GetDefaultLogger(),
		MonitoringService:                   metrics.NoopMonitoringService{},
	}
}

func newInitialPositionAtTimestamp(timestamp *time.Time) *InitialPositionInStreamExtended {
	return &InitialPositionInStreamExtended{Position: AT_TIMESTAMP, Timestamp: timestamp}
}

func newInitialPosition(position InitialPositionInStream) *InitialPositionInStreamExtended {
	return &InitialPositionInStreamExtended{Position: position, Timestamp: nil}
}

// WithKinesisEndpoint is used to provide an alternative Kinesis endpoint
func (c *LeaseClientConfiguration) WithKinesisEndpoint(kinesisEndpoint string) *LeaseClientConfiguration {
	c.KinesisEndpoint = kinesisEndpoint
	return c
}

// WithDynamoDBEndpoint is used to provide an alternative DynamoDB endpoint
func (c *LeaseClientConfiguration) WithDynamoDBEndpoint(dynamoDBEndpoint string) *LeaseClientConfiguration {
	c.DynamoDBEndpoint = dynamoDBEndpoint
	return c
}

// WithTableName to provide alternative lease table
func (c *LeaseClientConfiguration) WithTableName(tableName string) *LeaseClientConfiguration {
	checkIsValueNotEmpty("TableName", tableName)
	c.TableName = tableName
	return c
}

func (c *LeaseClientConfiguration) WithInitialPositionInStream(initialPositionInStream InitialPositionInStream) *LeaseClientConfiguration {
	c.InitialPositionInStream = initialPositionInStream
	c.InitialPositionInStreamExtended = *newInitialPosition(initialPositionInStream)
	return c
}

func (c *LeaseClientConfiguration) WithTimestampAtInitialPositionInStream(timestamp *time.Time) *LeaseClientConfiguration {
	c.InitialPositionInStream = AT_TIMESTAMP
	c.InitialPositionInStreamExtended = *newInitialPositionAtTimestamp(timestamp)
	return c
}

func (c *LeaseClientConfiguration) WithFailoverTimeMillis(failoverTimeMillis int) *LeaseClientConfiguration {
	checkIsValuePositive("FailoverTimeMillis", failoverTimeMillis)
	c.FailoverTimeMillis = failoverTimeMillis
	return c
}

func (c *LeaseClientConfiguration) WithCleanupTerminatedShardsBeforeExpiry(cleanup bool) *LeaseClientConfiguration {
	c.CleanupTerminatedShardsBeforeExpiry = cleanup
	return c
}

// WithLeaseTableCapacity sets the throughput provisioned when the DynamoDB lease table is created.
func (c *LeaseClientConfiguration) WithLeaseTableCapacity(readCapacity, writeCapacity int) *LeaseClientConfiguration {
	checkIsValuePositive("InitialLeaseTableReadCapacity", readCapacity)
	checkIsValuePositive("InitialLeaseTableWriteCapacity", writeCapacity)
	c.InitialLeaseTableReadCapacity = readCapacity
	c.InitialLeaseTableWriteCapacity = writeCapacity
	return c
}

func (c *LeaseClientConfiguration) WithConsistentReads(consistentReads bool) *LeaseClientConfiguration {
	c.ConsistentReads = consistentReads
	return c
}

func (c *LeaseClientConfiguration) WithShardSyncMaxAttempts(attempts int) *LeaseClientConfiguration {
	checkIsValuePositive("ShardSyncMaxAttempts", attempts)
	c.ShardSyncMaxAttempts = attempts
	return c
}

func (c *LeaseClientConfiguration) WithLeaseTableWait(pollSeconds, timeoutSeconds int) *LeaseClientConfiguration {
	checkIsValuePositive("LeaseTablePollSeconds", pollSeconds)
	checkIsValuePositive("LeaseTableTimeoutSeconds", timeoutSeconds)
	c.LeaseTablePollSeconds = pollSeconds
	c.LeaseTableTimeoutSeconds = timeoutSeconds
	return c
}

func (c *LeaseClientConfiguration) WithRedisKeyPrefix(prefix string) *LeaseClientConfiguration {
	checkIsValueNotEmpty("RedisKeyPrefix", prefix)
	c.RedisKeyPrefix = prefix
	return c
}

func (c *LeaseClientConfiguration) WithLogger(logger logger.Logger) *LeaseClientConfiguration {
	if logger == nil {
		log.Panic("Logger cannot be null")
	}
	c.Logger = logger
	return c
}

// WithMonitoringService sets the monitoring service to use to publish metrics.
// A nil service falls back to NoopMonitoringService.
func (c *LeaseClientConfiguration) WithMonitoringService(mService metrics.MonitoringService) *LeaseClientConfiguration {
	if mService == nil {
		mService = metrics.NoopMonitoringService{}
	}
	c.MonitoringService = mService
	return c
}
