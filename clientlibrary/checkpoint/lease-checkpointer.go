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
package checkpoint

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	cc "github.com/vmware/go-kcl-leases/clientlibrary/common"
	"github.com/vmware/go-kcl-leases/clientlibrary/config"
	"github.com/vmware/go-kcl-leases/clientlibrary/metrics"
	"github.com/vmware/go-kcl-leases/clientlibrary/types"
	"github.com/vmware/go-kcl-leases/leases/impl"
	"github.com/vmware/go-kcl-leases/logger"
)

// LeaseCheckpointer checkpoints into the lease table through an ILeaseManager. It keeps its own copy of every lease
// the worker holds; writes go through a copy and are merged back only once the store accepted them.
type LeaseCheckpointer struct {
	mu       sync.Mutex
	log      logger.Logger
	manager  impl.ILeaseManager
	mService metrics.MonitoringService
	held     map[string]*impl.KinesisClientLease
}

var _ Checkpointer = (*LeaseCheckpointer)(nil)

func NewLeaseCheckpointer(kclConfig *config.LeaseClientConfiguration, manager impl.ILeaseManager) *LeaseCheckpointer {
	mService := kclConfig.MonitoringService
	if mService == nil {
		mService = metrics.NoopMonitoringService{}
	}
	return &LeaseCheckpointer{
		log:      kclConfig.Logger,
		manager:  manager,
		mService: mService,
		held:     map[string]*impl.KinesisClientLease{},
	}
}

// Track starts checkpointing for a lease the worker just took. Later renewals need no notice, a checkpoint re-reads
// the counter when it finds it moved.
func (c *LeaseCheckpointer) Track(lease *impl.KinesisClientLease) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.held[lease.GetLeaseKey()] = lease.Copy()
}

// Untrack forgets a lease, e.g. after it was lost or handed back.
func (c *LeaseCheckpointer) Untrack(shardID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.held, shardID)
}

// Held returns a copy of the tracked lease.
func (c *LeaseCheckpointer) Held(shardID string) (*impl.KinesisClientLease, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	lease, ok := c.held[shardID]
	if !ok {
		return nil, false
	}
	return lease.Copy(), true
}

func (c *LeaseCheckpointer) PrepareCheckpoint(ctx context.Context, shardID string, token uuid.UUID, seq *types.ExtendedSequenceNumber) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	held, err := c.validate(shardID, token, seq)
	if err != nil {
		return err
	}

	update := held.Copy()
	update.SetPendingCheckpoint(seq)
	if err := c.write(ctx, held, update); err != nil {
		return err
	}

	logger.ForLease(c.log, shardID, held.GetLeaseOwner()).Debugf("Prepared checkpoint %s", seq)
	return nil
}

func (c *LeaseCheckpointer) Checkpoint(ctx context.Context, shardID string, token uuid.UUID, seq *types.ExtendedSequenceNumber) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	held, err := c.validate(shardID, token, seq)
	if err != nil {
		return err
	}

	update := held.Copy()
	if err := update.SetCheckpoint(seq); err != nil {
		return err
	}
	update.SetPendingCheckpoint(nil)
	if err := update.SetOwnerSwitchesSinceCheckpoint(0); err != nil {
		return err
	}
	if err := c.write(ctx, held, update); err != nil {
		return err
	}

	c.mService.CheckpointAdvanced(shardID)
	logger.ForLease(c.log, shardID, held.GetLeaseOwner()).Debugf("Checkpointed at %s", seq)
	return nil
}

func (c *LeaseCheckpointer) validate(shardID string, token uuid.UUID, seq *types.ExtendedSequenceNumber) (*impl.KinesisClientLease, error) {
	if seq == nil {
		return nil, cc.IllegalArgumentError.MakeErr().WithDetail("Checkpoint should not be null")
	}
	if err := seq.Validate(); err != nil {
		return nil, err
	}

	held, ok := c.held[shardID]
	if !ok {
		return nil, cc.LeaseLostError.MakeErr().WithDetail("worker does not hold lease " + shardID)
	}
	if held.GetConcurrencyToken() != token {
		return nil, cc.LeaseLostError.MakeErr().WithDetail("concurrency token of " + shardID + " no longer matches")
	}

	if current := held.GetCheckpoint(); current != nil && seq.Compare(current) < 0 {
		return nil, cc.IllegalArgumentError.MakeErr().
			WithDetail(fmt.Sprintf("Could not checkpoint at %s because it is before the current checkpoint %s", seq, current))
	}
	return held, nil
}

// write pushes update through the manager and merges it into held on success. A counter moved on by the owner's own
// renewals is picked up from the store and the write retried once; only a change of owner loses the lease.
func (c *LeaseCheckpointer) write(ctx context.Context, held, update *impl.KinesisClientLease) error {
	ok, err := c.manager.UpdateLease(ctx, update)
	if err != nil {
		return err
	}
	if !ok {
		refreshed, err := c.refreshCounter(ctx, held, update)
		if err != nil {
			return err
		}
		if refreshed {
			if ok, err = c.manager.UpdateLease(ctx, update); err != nil {
				return err
			}
		}
	}
	if !ok {
		delete(c.held, held.GetLeaseKey())
		c.mService.LeaseLost(held.GetLeaseKey())
		return cc.LeaseLostError.MakeErr().WithDetail("lease counter of " + held.GetLeaseKey() + " moved on")
	}
	return held.Update(update)
}

// refreshCounter re-reads the lease and adopts its counter when the store still names our owner. The concurrency
// token is never persisted, it was checked against the held copy already.
func (c *LeaseCheckpointer) refreshCounter(ctx context.Context, held, update *impl.KinesisClientLease) (bool, error) {
	fresh, err := c.manager.GetLease(ctx, held.GetLeaseKey())
	if err != nil {
		return false, err
	}
	if fresh == nil || fresh.GetLeaseOwner() != held.GetLeaseOwner() {
		return false, nil
	}

	logger.ForLease(c.log, held.GetLeaseKey(), held.GetLeaseOwner()).
		Debugf("Lease counter moved from %d to %d, retrying checkpoint", held.GetLeaseCounter(), fresh.GetLeaseCounter())
	held.SetLeaseCounter(fresh.GetLeaseCounter())
	update.SetLeaseCounter(fresh.GetLeaseCounter())
	return true, nil
}
