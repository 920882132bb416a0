package impl

import (
	"context"
	"time"

	. "github.com/vmware/go-kcl-leases/leases/interfaces"
)

// Fencer applies the local side effects of a successful conditional write to the caller's copy of a lease.
// All lease managers share it so that the in-memory copy ends up identical whatever the backend.
type Fencer struct {
	Clock  Clock
	Tokens TokenGenerator
}

// DefaultFencer uses the wall clock and random tokens.
func DefaultFencer() Fencer {
	return Fencer{Clock: SystemClock{}, Tokens: RandomTokenGenerator{}}
}

// Renewed bumps the counter and records when that happened.
func (f Fencer) Renewed(lease *KinesisClientLease) {
	lease.SetLeaseCounter(lease.GetLeaseCounter() + 1)
	lease.SetLastCounterIncrementNanos(f.Clock.NowNanos())
}

// OwnerChanged reports whether taking lease for owner counts as an owner switch.
func OwnerChanged(lease *KinesisClientLease, owner string) bool {
	return lease.GetLeaseOwner() != owner
}

// Taken hands the lease to owner under a fresh concurrency token.
func (f Fencer) Taken(lease *KinesisClientLease, owner string) {
	if OwnerChanged(lease, owner) {
		lease.ownerSwitchesSinceCheckpoint++
	}
	lease.SetLeaseOwner(owner)
	lease.SetConcurrencyToken(f.Tokens.NewToken())
	f.Renewed(lease)
}

func (f Fencer) Evicted(lease *KinesisClientLease) {
	lease.SetLeaseOwner("")
	lease.SetLeaseCounter(lease.GetLeaseCounter() + 1)
}

func (f Fencer) Updated(lease *KinesisClientLease) {
	lease.SetLeaseCounter(lease.GetLeaseCounter() + 1)
}

// WaitUntilLeaseTableExists polls exists until it reports true, the timeout passes or ctx is done.
func WaitUntilLeaseTableExists(ctx context.Context, exists func(context.Context) (bool, error),
	secondsBetweenPolls, timeoutSeconds int64) (bool, error) {
	delay := time.Duration(secondsBetweenPolls) * time.Second
	deadline := time.Now().Add(time.Duration(timeoutSeconds) * time.Second)

	var err error
	for {
		var flag bool
		flag, err = exists(ctx)
		if flag {
			return true, nil
		}

		if !time.Now().Add(delay).Before(deadline) {
			return false, err
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(delay):
		}
	}
}
