// Package idgen hands out order identifiers.
package idgen

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// maxSafe keeps ids within the integer range JSON clients decode exactly.
const maxSafe = 1<<53 - 1

type Generator interface {
	NextID() int64
}

// UUID derives ids from random v4 UUIDs. It is safe for concurrent use;
// collisions are improbable but not ruled out.
type UUID struct{}

func (UUID) NextID() int64 {
	for {
		u := uuid.New()
		if id := int64(binary.BigEndian.Uint64(u[:8]) & maxSafe); id != 0 {
			return id
		}
	}
}

// Func adapts a plain function to Generator.
type Func func() int64

func (f Func) NextID() int64 { return f() }
