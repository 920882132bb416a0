package interfaces

import (
	"github.com/google/uuid"
)

// ILease is the interface for all Leases
type ILease interface {
	GetLeaseKey() string
	SetLeaseKey(leaseKey string) error

	GetLeaseOwner() string
	SetLeaseOwner(leaseOwner string)
	IsOwned() bool

	GetLeaseCounter() int64
	SetLeaseCounter(leaseCounter int64)

	GetConcurrencyToken() uuid.UUID
	SetConcurrencyToken(concurrencyToken uuid.UUID)

	GetLastCounterIncrementNanos() int64
	SetLastCounterIncrementNanos(lastCounterIncrementNanos int64)

	IsExpired(leaseDurationNanos, asOfNanos int64) bool

	// Update merges the fields another worker may have changed into this lease.
	// Returns IllegalArgumentError if other is nil or of an incompatible type.
	Update(other ILease) error
}
