package impl

import (
	"time"

	"github.com/google/uuid"

	"github.com/vmware/go-kcl-leases/clientlibrary/utils"
	. "github.com/vmware/go-kcl-leases/leases/interfaces"
)

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) NowNanos() int64 {
	return time.Now().UnixNano()
}

// RandomTokenGenerator hands out random v4 UUIDs.
type RandomTokenGenerator struct{}

func (RandomTokenGenerator) NewToken() uuid.UUID {
	return utils.NewConcurrencyToken()
}

var (
	_ Clock          = SystemClock{}
	_ TokenGenerator = RandomTokenGenerator{}
)
