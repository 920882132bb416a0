package impl

import (
	"context"
)

// ILeaseManager supports basic CRUD operations for Leases.
//
// Every conditional write returns (false, nil) when the condition did not hold, another worker got there
// first. The caller is expected to re-read the lease and decide again.
type ILeaseManager interface {

	/**
	 * Creates the table that will store leases. Succeeds if table already exists.
	 *
	 * @return true if we created a new table (table didn't exist before)
	 *
	 * @error LeasingProvisionedThroughputError if we cannot create the lease table due to per-AWS-account capacity
	 *         restrictions.
	 * @error LeasingDependencyError if the backend fails in an unexpected way
	 */
	CreateLeaseTableIfNotExists(ctx context.Context) (bool, error)

	/**
	 * @return true if the lease table already exists.
	 *
	 * @error LeasingDependencyError if the backend fails in an unexpected way
	 */
	LeaseTableExists(ctx context.Context) (bool, error)

	/**
	 * Blocks until the lease table exists by polling LeaseTableExists.
	 *
	 * @param secondsBetweenPolls time to wait between polls in seconds
	 * @param timeoutSeconds total time to wait in seconds
	 *
	 * @return true if table exists, false if timeout was reached
	 *
	 * @error LeasingDependencyError if the backend fails in an unexpected way
	 */
	WaitUntilLeaseTableExists(ctx context.Context, secondsBetweenPolls, timeoutSeconds int64) (bool, error)

	/**
	 * List all objects in table synchronously.
	 *
	 * @error LeasingDependencyError if the scan fails in an unexpected way
	 * @error LeasingInvalidStateError if lease table does not exist
	 * @error LeasingProvisionedThroughputError if the scan fails due to lack of capacity
	 *
	 * @return list of leases
	 */
	ListLeases(ctx context.Context) ([]*KinesisClientLease, error)

	/**
	 * Create a new lease. Conditional on a lease not already existing with this shardId.
	 *
	 * @param lease the lease to create
	 *
	 * @return true if lease was created, false if lease already exists
	 *
	 * @error LeasingDependencyError if the put fails in an unexpected way
	 * @error LeasingInvalidStateError if lease table does not exist
	 * @error LeasingProvisionedThroughputError if the put fails due to lack of capacity
	 */
	CreateLeaseIfNotExists(ctx context.Context, lease *KinesisClientLease) (bool, error)

	/**
	 * @param shardId Get the lease for this shardId and it is the leaseKey
	 *
	 * @error LeasingInvalidStateError if lease table does not exist
	 * @error LeasingProvisionedThroughputError if the get fails due to lack of capacity
	 * @error LeasingDependencyError if the get fails in an unexpected way
	 *
	 * @return lease for the specified shardId, or nil if one doesn't exist
	 */
	GetLease(ctx context.Context, shardId string) (*KinesisClientLease, error)

	/**
	 * Renew a lease by incrementing the lease counter. Conditional on the leaseCounter in the store matching the
	 * leaseCounter of the input. Mutates the leaseCounter of the passed-in lease object after updating the record.
	 *
	 * @param lease the lease to renew
	 *
	 * @return true if renewal succeeded, false otherwise
	 */
	RenewLease(ctx context.Context, lease *KinesisClientLease) (bool, error)

	/**
	 * Take a lease for the given owner by incrementing its leaseCounter and setting its owner field. Conditional on
	 * the leaseCounter in the store matching the leaseCounter of the input. Mutates the leaseCounter, owner,
	 * concurrency token and owner switch count of the passed-in lease object after updating the record.
	 *
	 * @param lease the lease to take
	 * @param owner the new owner
	 *
	 * @return true if lease was successfully taken, false otherwise
	 */
	TakeLease(ctx context.Context, lease *KinesisClientLease, owner string) (bool, error)

	/**
	 * Evict the current owner of lease by setting owner to "". Conditional on the owner in the store matching the
	 * owner of the input. Mutates the lease counter and owner of the passed-in lease object after updating the record.
	 *
	 * @param lease the lease to void
	 *
	 * @return true if eviction succeeded, false otherwise
	 */
	EvictLease(ctx context.Context, lease *KinesisClientLease) (bool, error)

	/**
	 * Delete the given lease. Does nothing when passed a lease that does not exist.
	 *
	 * @param lease the lease to delete
	 */
	DeleteLease(ctx context.Context, lease *KinesisClientLease) error

	/**
	 * Delete all leases. Useful for tools/utils and testing.
	 */
	DeleteAll(ctx context.Context) error

	/**
	 * Update application-specific fields of the given lease: checkpoint, pending checkpoint, owner switches, child
	 * shard ids and hash key range. Does not update fields managed by the leasing library such as leaseCounter,
	 * leaseOwner, or leaseKey. Conditional on the leaseCounter in the store matching the leaseCounter of the input.
	 * Increments the lease counter so that updates can be contingent on other updates. Mutates the lease counter of
	 * the passed-in lease object.
	 *
	 * @return true if update succeeded, false otherwise
	 */
	UpdateLease(ctx context.Context, lease *KinesisClientLease) (bool, error)

	/**
	 * Check (synchronously) if there are any leases in the lease table.
	 *
	 * @return true if there are no leases in the lease table
	 */
	IsLeaseTableEmpty(ctx context.Context) (bool, error)
}
