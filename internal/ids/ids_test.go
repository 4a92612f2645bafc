package ids

import (
	"testing"

	"github.com/google/uuid"
)

// TestUUIDv7Unique ensures generated IDs are unique version 7 UUIDs.
func TestUUIDv7Unique(t *testing.T) {
	t.Parallel()

	gen := NewUUIDv7()
	id1, err := gen.NewID()
	if err != nil {
		t.Fatalf("NewID() error = %v", err)
	}
	id2, err := gen.NewID()
	if err != nil {
		t.Fatalf("NewID() error = %v", err)
	}
	if id1 == id2 {
		t.Fatalf("expected unique IDs, got %s and %s", id1, id2)
	}
	if id1.Version() != 7 {
		t.Fatalf("expected version 7, got %d", id1.Version())
	}
}

func TestSequenceExhausts(t *testing.T) {
	t.Parallel()

	want := uuid.MustParse("0190f3c4-0000-7000-8000-000000000001")
	seq := NewSequence(want)
	got, err := seq.NewID()
	if err != nil || got != want {
		t.Fatalf("NewID() = %v, %v; want %v", got, err, want)
	}
	if _, err := seq.NewID(); err == nil {
		t.Fatal("expected exhausted sequence to fail")
	}
}
