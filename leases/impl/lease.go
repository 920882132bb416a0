package impl

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	cc "github.com/vmware/go-kcl-leases/clientlibrary/common"
	"github.com/vmware/go-kcl-leases/clientlibrary/types"
	. "github.com/vmware/go-kcl-leases/leases/interfaces"
)

const (
	// We will consider leases to be expired if they are more than 90 days.
	MAX_ABS_AGE_NANOS = int64(90 * 24 * time.Hour)
)

// Lease structure contains data pertaining to a Lease. Distributed systems may use leases to partition work across a
// fleet of workers. Each unit of work (identified by a leaseKey) has a corresponding Lease. Every worker will contend
// for all leases - only one worker will successfully take each one. The worker should hold the lease until it is ready to stop
// processing the corresponding unit of work, or until it fails. When the worker stops holding the lease, another worker will
// take and hold the lease.
type Lease struct {
	// shard-id
	leaseKey string
	// worker#, "" when nobody holds the lease
	leaseOwner string
	// counter incremented on every successful conditional write
	leaseCounter int64

	// This field is used to prevent updates to leases that we have lost and re-acquired. It is deliberately not
	// persisted and excluded from HashCode and Equals.
	concurrencyToken uuid.UUID

	// This field is used by the renewer and the taker to track the last time a lease counter was incremented. It is
	// deliberately not persisted and excluded from HashCode and Equals.
	lastCounterIncrementNanos int64
}

// NewLease creates a lease with every field set. Used when rehydrating from storage.
func NewLease(leaseKey, leaseOwner string, leaseCounter int64, concurrencyToken uuid.UUID, lastCounterIncrementNanos int64) *Lease {
	return &Lease{
		leaseKey:                  leaseKey,
		leaseOwner:                leaseOwner,
		leaseCounter:              leaseCounter,
		concurrencyToken:          concurrencyToken,
		lastCounterIncrementNanos: lastCounterIncrementNanos,
	}
}

// CopyLease to clone a lease object
func CopyLease(lease *Lease) *Lease {
	return &Lease{
		leaseKey:                  lease.leaseKey,
		leaseOwner:                lease.leaseOwner,
		leaseCounter:              lease.leaseCounter,
		concurrencyToken:          lease.concurrencyToken,
		lastCounterIncrementNanos: lease.lastCounterIncrementNanos,
	}
}

// Copy returns a deep copy of this lease.
func (l *Lease) Copy() *Lease {
	return CopyLease(l)
}

// GetLeaseKey retrieves leaseKey - identifies the unit of work associated with this lease.
func (l *Lease) GetLeaseKey() string {
	return l.leaseKey
}

// GetLeaseOwner gets current owner of the lease, may be "".
func (l *Lease) GetLeaseOwner() string {
	return l.leaseOwner
}

// IsOwned reports whether some worker holds the lease.
func (l *Lease) IsOwned() bool {
	return l.leaseOwner != ""
}

// GetLeaseCounter retrieves leaseCounter which is incremented periodically by the holder of the lease. Used for optimistic locking.
func (l *Lease) GetLeaseCounter() int64 {
	return l.leaseCounter
}

// GetConcurrencyToken returns concurrency token, uuid.Nil if this copy was never held locally.
func (l *Lease) GetConcurrencyToken() uuid.UUID {
	return l.concurrencyToken
}

// GetLastCounterIncrementNanos returns the last time the lease counter was seen to move
func (l *Lease) GetLastCounterIncrementNanos() int64 {
	return l.lastCounterIncrementNanos
}

// SetLeaseKey sets leaseKey - LeaseKey is immutable once set.
func (l *Lease) SetLeaseKey(leaseKey string) error {
	if len(l.leaseKey) > 0 {
		return cc.IllegalArgumentError.MakeErr().WithDetail("LeaseKey is immutable once set")
	}

	l.leaseKey = leaseKey
	return nil
}

// SetLeaseOwner set current owner of the lease, may be "".
func (l *Lease) SetLeaseOwner(leaseOwner string) {
	l.leaseOwner = leaseOwner
}

// SetLeaseCounter sets leaseCounter which is incremented periodically by the holder of the lease. Used for optimistic locking.
func (l *Lease) SetLeaseCounter(leaseCounter int64) {
	l.leaseCounter = leaseCounter
}

func (l *Lease) SetConcurrencyToken(concurrencyToken uuid.UUID) {
	l.concurrencyToken = concurrencyToken
}

func (l *Lease) SetLastCounterIncrementNanos(lastCounterIncrementNanos int64) {
	l.lastCounterIncrementNanos = lastCounterIncrementNanos
}

// IsExpired to check whether lease expired using
// @param leaseDurationNanos duration of lease in nanoseconds
// @param asOfNanos time in nanoseconds to check expiration as-of
// @return true if lease is expired as-of given time, false otherwise
func (l *Lease) IsExpired(leaseDurationNanos, asOfNanos int64) bool {
	if l.lastCounterIncrementNanos == 0 {
		return true
	}

	age := asOfNanos - l.lastCounterIncrementNanos
	if age > MAX_ABS_AGE_NANOS {
		return true
	}
	return age > leaseDurationNanos
}

// Update merges owner, counter, concurrency token and last increment time from other.
// The lease key is never touched.
func (l *Lease) Update(other ILease) error {
	if other == nil {
		return cc.IllegalArgumentError.MakeErr().WithDetail("Lease to update from should not be null")
	}

	l.leaseOwner = other.GetLeaseOwner()
	l.leaseCounter = other.GetLeaseCounter()
	l.concurrencyToken = other.GetConcurrencyToken()
	l.lastCounterIncrementNanos = other.GetLastCounterIncrementNanos()
	return nil
}

// Equals compares leaseKey, leaseOwner and leaseCounter.
func (l *Lease) Equals(other *Lease) bool {
	if l == other {
		return true
	}
	if l == nil || other == nil {
		return false
	}
	return l.leaseKey == other.leaseKey &&
		l.leaseOwner == other.leaseOwner &&
		l.leaseCounter == other.leaseCounter
}

// HashCode is consistent with Equals.
func (l *Lease) HashCode() int32 {
	const prime = 31
	result := int32(1)
	result = prime*result + int32(l.leaseCounter^(l.leaseCounter>>32))
	result = prime*result + types.StringHash(l.leaseOwner)
	result = prime*result + types.StringHash(l.leaseKey)
	return result
}

func (l *Lease) String() string {
	return fmt.Sprintf("Lease(leaseKey=%s, leaseOwner=%s, leaseCounter=%d, concurrencyToken=%s, lastCounterIncrementNanos=%d)",
		l.leaseKey, l.leaseOwner, l.leaseCounter, l.concurrencyToken, l.lastCounterIncrementNanos)
}
