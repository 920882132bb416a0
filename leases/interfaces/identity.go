package interfaces

import (
	"github.com/google/uuid"
)

// Clock supplies the current time in nanoseconds.
type Clock interface {
	NowNanos() int64
}

// TokenGenerator produces the concurrency token handed out on every ownership change.
type TokenGenerator interface {
	NewToken() uuid.UUID
}
