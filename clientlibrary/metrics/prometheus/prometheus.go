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
// The implementation is derived from https://github.com/patrobinson/gokini
//
// Copyright 2018 Patrick robinson
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of this software and associated documentation files (the "Software"), to deal in the Software without restriction, including without limitation the rights to use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of the Software, and to permit persons to whom the Software is furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
package prometheus

import (
	"context"
	"errors"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vmware/go-kcl-leases/logger"
)

// MonitoringService publishes lease metrics to Prometheus.
// It might be trick if the service onboarding with the lease client already uses Prometheus,
// use WithRegistry to keep the collectors apart.
type MonitoringService struct {
	listenAddress string
	namespace     string
	streamName    string
	workerID      string
	region        string
	logger        logger.Logger

	registerer prom.Registerer
	gatherer   prom.Gatherer
	server     *http.Server

	leasesCreated      *prom.CounterVec
	leasesDeleted      *prom.CounterVec
	leasesHeld         *prom.GaugeVec
	leaseRenewals      *prom.CounterVec
	leaseEvictions     *prom.CounterVec
	conditionFailures  *prom.CounterVec
	checkpoints        *prom.CounterVec
	ownerSwitches      *prom.GaugeVec
	leaseOperationTime *prom.HistogramVec
}

// NewMonitoringService returns a Monitoring service publishing metrics to Prometheus.
func NewMonitoringService(listenAddress, region string, logger logger.Logger) *MonitoringService {
	return &MonitoringService{
		listenAddress: listenAddress,
		region:        region,
		logger:        logger,
		registerer:    prom.DefaultRegisterer,
		gatherer:      prom.DefaultGatherer,
	}
}

// WithRegistry registers the collectors with reg instead of the global registry.
func (p *MonitoringService) WithRegistry(reg *prom.Registry) *MonitoringService {
	p.registerer = reg
	p.gatherer = reg
	return p
}

func (p *MonitoringService) Init(appName, streamName, workerID string) error {
	p.namespace = appName
	p.streamName = streamName
	p.workerID = workerID

	p.leasesCreated = prom.NewCounterVec(prom.CounterOpts{
		Name: p.namespace + `_leases_created`,
		Help: "Number of leases created for newly discovered shards",
	}, []string{"kinesisStream", "shard"})
	p.leasesDeleted = prom.NewCounterVec(prom.CounterOpts{
		Name: p.namespace + `_leases_deleted`,
		Help: "Number of leases removed from the lease table",
	}, []string{"kinesisStream", "shard"})
	p.leasesHeld = prom.NewGaugeVec(prom.GaugeOpts{
		Name: p.namespace + `_leases_held`,
		Help: "The number of leases held by the worker",
	}, []string{"kinesisStream", "shard", "workerID"})
	p.leaseRenewals = prom.NewCounterVec(prom.CounterOpts{
		Name: p.namespace + `_lease_renewals`,
		Help: "The number of successful lease renewals",
	}, []string{"kinesisStream", "shard", "workerID"})
	p.leaseEvictions = prom.NewCounterVec(prom.CounterOpts{
		Name: p.namespace + `_lease_evictions`,
		Help: "The number of leases evicted by the worker",
	}, []string{"kinesisStream", "shard", "workerID"})
	p.conditionFailures = prom.NewCounterVec(prom.CounterOpts{
		Name: p.namespace + `_lease_condition_failures`,
		Help: "The number of conditional lease writes that lost to another writer",
	}, []string{"kinesisStream", "shard", "operation"})
	p.checkpoints = prom.NewCounterVec(prom.CounterOpts{
		Name: p.namespace + `_checkpoints`,
		Help: "The number of checkpoints committed",
	}, []string{"kinesisStream", "shard"})
	p.ownerSwitches = prom.NewGaugeVec(prom.GaugeOpts{
		Name: p.namespace + `_owner_switches_since_checkpoint`,
		Help: "Distinct lease holders since the last checkpoint",
	}, []string{"kinesisStream", "shard"})
	p.leaseOperationTime = prom.NewHistogramVec(prom.HistogramOpts{
		Name: p.namespace + `_lease_operation_duration_seconds`,
		Help: "The time taken by lease table operations",
	}, []string{"kinesisStream", "operation"})

	metrics := []prom.Collector{
		p.leasesCreated,
		p.leasesDeleted,
		p.leasesHeld,
		p.leaseRenewals,
		p.leaseEvictions,
		p.conditionFailures,
		p.checkpoints,
		p.ownerSwitches,
		p.leaseOperationTime,
	}
	for _, metric := range metrics {
		err := p.registerer.Register(metric)
		if err != nil {
			return err
		}
	}

	return nil
}

func (p *MonitoringService) Start() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{}))
	p.server = &http.Server{Addr: p.listenAddress, Handler: mux}

	go func() {
		p.logger.Infof("Starting Prometheus listener on %s", p.listenAddress)
		err := p.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.logger.Errorf("Error starting Prometheus metrics endpoint. %+v", err)
		}
		p.logger.Infof("Stopped metrics server")
	}()

	return nil
}

func (p *MonitoringService) Shutdown() {
	if p.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.server.Shutdown(ctx); err != nil {
		p.logger.Warnf("Error stopping Prometheus metrics endpoint. %+v", err)
	}
}

func (p *MonitoringService) LeaseCreated(shard string) {
	p.leasesCreated.With(prom.Labels{"shard": shard, "kinesisStream": p.streamName}).Inc()
}

func (p *MonitoringService) LeaseDeleted(shard string) {
	p.leasesDeleted.With(prom.Labels{"shard": shard, "kinesisStream": p.streamName}).Inc()
	p.leasesHeld.Delete(prom.Labels{"shard": shard, "kinesisStream": p.streamName, "workerID": p.workerID})
}

func (p *MonitoringService) LeaseGained(shard string) {
	p.leasesHeld.With(prom.Labels{"shard": shard, "kinesisStream": p.streamName, "workerID": p.workerID}).Set(1)
}

func (p *MonitoringService) LeaseLost(shard string) {
	p.leasesHeld.With(prom.Labels{"shard": shard, "kinesisStream": p.streamName, "workerID": p.workerID}).Set(0)
}

func (p *MonitoringService) LeaseRenewed(shard string) {
	p.leaseRenewals.With(prom.Labels{"shard": shard, "kinesisStream": p.streamName, "workerID": p.workerID}).Inc()
}

func (p *MonitoringService) LeaseEvicted(shard string) {
	p.leaseEvictions.With(prom.Labels{"shard": shard, "kinesisStream": p.streamName, "workerID": p.workerID}).Inc()
}

func (p *MonitoringService) ConditionalCheckFailed(shard, operation string) {
	p.conditionFailures.With(prom.Labels{"shard": shard, "kinesisStream": p.streamName, "operation": operation}).Inc()
}

func (p *MonitoringService) CheckpointAdvanced(shard string) {
	p.checkpoints.With(prom.Labels{"shard": shard, "kinesisStream": p.streamName}).Inc()
}

func (p *MonitoringService) OwnerSwitches(shard string, switches int64) {
	p.ownerSwitches.With(prom.Labels{"shard": shard, "kinesisStream": p.streamName}).Set(float64(switches))
}

func (p *MonitoringService) RecordLeaseOperationTime(operation string, millis float64) {
	p.leaseOperationTime.With(prom.Labels{"operation": operation, "kinesisStream": p.streamName}).Observe(millis / 1000)
}
