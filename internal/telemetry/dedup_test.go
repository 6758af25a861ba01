package telemetry

import (
	"fmt"
	"testing"
)

func TestDeduplicator_AcceptsOncePerID(t *testing.T) {
	d := NewDeduplicator(16)

	if !d.Accept("a1") {
		t.Fatal("first Accept(a1) = false, want true")
	}
	for i := 0; i < 5; i++ {
		if d.Accept("a1") {
			t.Fatalf("redelivery %d of a1 accepted", i+1)
		}
	}
	if !d.Accept("a2") {
		t.Error("Accept(a2) = false, want true")
	}
}

func TestDeduplicator_BoundedMemory(t *testing.T) {
	d := NewDeduplicator(10)

	for i := 0; i < 100; i++ {
		d.Accept(fmt.Sprintf("id-%d", i))
	}

	if got := d.Len(); got != 10 {
		t.Errorf("Len = %d after 100 inserts with capacity 10", got)
	}

	// The oldest IDs were evicted, so a very old ID is accepted again.
	// That is the documented trade-off of a bounded window.
	if !d.Accept("id-0") {
		t.Error("evicted id-0 not accepted again")
	}
	// Recent IDs are still remembered.
	if d.Accept("id-99") {
		t.Error("recent id-99 accepted twice")
	}
}

func TestDeduplicator_Reset(t *testing.T) {
	d := NewDeduplicator(16)

	d.Accept("a1")
	d.Reset()

	if !d.Accept("a1") {
		t.Error("Accept(a1) after Reset = false, want true")
	}
	if got := d.Len(); got != 1 {
		t.Errorf("Len after reset and one accept = %d, want 1", got)
	}
}

func TestDeduplicator_DefaultCapacity(t *testing.T) {
	d := NewDeduplicator(0)
	if d.capacity != 1024 {
		t.Errorf("capacity = %d, want 1024", d.capacity)
	}
}
