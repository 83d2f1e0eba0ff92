package command

import (
	"github.com/google/uuid"
)

// IDGenerator produces identifiers for new aggregates. Injected so tests can
// use deterministic IDs.
type IDGenerator interface {
	// NewID returns a new unique identifier.
	NewID() string
}

// UUIDGenerator generates random UUIDv4 identifiers.
type UUIDGenerator struct{}

// NewUUIDGenerator creates the default ID generator.
func NewUUIDGenerator() UUIDGenerator {
	return UUIDGenerator{}
}

// NewID implements IDGenerator.
func (UUIDGenerator) NewID() string {
	return uuid.New().String()
}
