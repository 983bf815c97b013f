package gateway

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// UUIDGenerator produces unique identifiers.
type UUIDGenerator interface {
	New() string
}

// RandomUUIDGenerator produces random (v4) UUIDs.
type RandomUUIDGenerator struct{}

// NewRandomUUIDGenerator creates a UUIDGenerator backed by google/uuid.
func NewRandomUUIDGenerator() UUIDGenerator {
	return RandomUUIDGenerator{}
}

// New returns a new random UUID.
func (RandomUUIDGenerator) New() string {
	return uuid.NewString()
}

// SequentialUUIDGenerator produces predictable UUIDs, for tests.
type SequentialUUIDGenerator struct {
	mu      sync.Mutex
	counter uint64
}

// NewSequentialUUIDGenerator creates a deterministic UUIDGenerator.
func NewSequentialUUIDGenerator() *SequentialUUIDGenerator {
	return &SequentialUUIDGenerator{}
}

// New returns the next UUID of the sequence.
func (g *SequentialUUIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.counter++

	return fmt.Sprintf("00000000-0000-4000-8000-%012d", g.counter)
}
