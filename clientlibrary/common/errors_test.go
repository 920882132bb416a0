package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMakeErr(t *testing.T) {
	err := IllegalArgumentError.MakeErr().WithDetail("Checkpoint should not be null")

	assert.Equal(t, IllegalArgumentError, err.ErrorCode)
	assert.False(t, err.Retryable)
	assert.Contains(t, err.Error(), "Checkpoint should not be null")

	// MakeErr hands out independent values
	other := IllegalArgumentError.MakeErr()
	assert.Empty(t, other.Detail)
}

func TestErrorChain(t *testing.T) {
	cause := errors.New("connection reset")
	err := LeasingDependencyError.MakeErr().WithDetail("renew shard-0001").WithCause(cause)
	wrapped := fmt.Errorf("sync failed: %w", err)

	assert.True(t, errors.Is(wrapped, cause))
	assert.True(t, errors.Is(wrapped, LeasingDependencyError.MakeErr()))
	assert.False(t, errors.Is(wrapped, LeaseLostError.MakeErr()))
	assert.True(t, IsErrorCode(wrapped, LeasingDependencyError))
	assert.False(t, IsErrorCode(cause, LeasingDependencyError))
}

func TestIsErrorCodeNested(t *testing.T) {
	inner := LeasingProvisionedThroughputError.MakeErr()
	outer := LeaseLostError.MakeErr().WithCause(inner)

	assert.True(t, IsErrorCode(outer, LeaseLostError))
	assert.True(t, IsErrorCode(outer, LeasingProvisionedThroughputError))
	assert.False(t, IsErrorCode(outer, IllegalArgumentError))
}
