// Package ids generates identifiers for predictions and training runs.
package ids

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator hands out UUIDs.
type Generator interface {
	NewID() (uuid.UUID, error)
}

// UUIDv7 creates time-ordered UUIDs so IDs sort by creation time.
type UUIDv7 struct{}

// NewUUIDv7 creates a UUIDv7 generator.
func NewUUIDv7() UUIDv7 {
	return UUIDv7{}
}

// NewID returns a fresh UUIDv7.
func (UUIDv7) NewID() (uuid.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generate uuid7: %w", err)
	}
	return id, nil
}

// Sequence returns a fixed list of IDs in order, then fails. Useful in tests.
type Sequence struct {
	ids []uuid.UUID
	pos int
}

// NewSequence creates a Sequence over ids.
func NewSequence(ids ...uuid.UUID) *Sequence {
	return &Sequence{ids: ids}
}

// NewID returns the next ID in the sequence.
func (s *Sequence) NewID() (uuid.UUID, error) {
	if s.pos >= len(s.ids) {
		return uuid.Nil, fmt.Errorf("id sequence exhausted after %d ids", len(s.ids))
	}
	id := s.ids[s.pos]
	s.pos++
	return id, nil
}
