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
package main

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/vmware/go-kcl-leases/clientlibrary/types"
	"github.com/vmware/go-kcl-leases/leases/impl"
)

func newLease(key, start, end string, checkpoint *types.ExtendedSequenceNumber, parents, children []string) *impl.KinesisClientLease {
	return impl.NewKinesisClientLeaseWithFields(key, "worker-1", 3, uuid.Nil, 0, checkpoint, nil, 1,
		parents, children, types.MustNewHashKeyRange(start, end))
}

func TestWriteViewsYAML(t *testing.T) {
	lease := newLease("shardId-000000000002", "0", "99", types.NewExtendedSequenceNumber("100", 0),
		[]string{"shardId-000000000000"}, []string{})

	var buf bytes.Buffer
	require.NoError(t, writeViews(&buf, outputYAML, toViews([]*impl.KinesisClientLease{lease})))

	var decoded []LeaseView
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, toView(lease), decoded[0])
	assert.Contains(t, buf.String(), "leaseKey: shardId-000000000002")
	assert.NotContains(t, buf.String(), "childShardIds")
}

func TestWriteViewsTable(t *testing.T) {
	lease := newLease("shardId-000000000000", "0", "99", types.SHARD_END, []string{}, []string{"shardId-000000000001"})

	var buf bytes.Buffer
	require.NoError(t, writeViews(&buf, outputTable, toViews([]*impl.KinesisClientLease{lease})))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	assert.Contains(t, string(lines[0]), "CHECKPOINT")
	assert.Contains(t, string(lines[1]), "SHARD_END")
	assert.Contains(t, string(lines[1]), "shardId-000000000001")
	assert.Contains(t, string(lines[1]), "true")

	assert.Error(t, writeViews(&buf, "json", nil))
}

func TestCheckLineage(t *testing.T) {
	maxKey := types.MaxHashKey.String()

	report := checkLineage([]*impl.KinesisClientLease{
		newLease("shardId-000000000000", "0", maxKey, types.SHARD_END, []string{}, []string{"shardId-000000000001"}),
		newLease("shardId-000000000001", "0", maxKey, types.TRIM_HORIZON, []string{"shardId-000000000000"}, []string{}),
	})
	assert.Equal(t, LineageReport{Leases: 2, Open: 1, Lineage: statusOK, Coverage: statusOK}, report)

	report = checkLineage([]*impl.KinesisClientLease{
		newLease("shardId-000000000000", "0", maxKey, types.SHARD_END, []string{}, []string{"shardId-000000000001"}),
		newLease("shardId-000000000001", "0", "99", types.TRIM_HORIZON, []string{"shardId-000000000000"}, []string{}),
	})
	assert.NotEqual(t, statusOK, report.Lineage)
	assert.NotEqual(t, statusOK, report.Coverage)
}

func TestMetricNamespace(t *testing.T) {
	assert.Equal(t, "my_app_1", metricNamespace("my-app.1"))
	assert.Equal(t, "leasectl", metricNamespace("leasectl"))
}
