package dedup

import (
	"testing"
	"time"
)

func newTestDeduplicator(ttl time.Duration) (*Deduplicator, *time.Time) {
	d := New(ttl)
	d.Close()

	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return current }
	return d, &current
}

func TestFirstObservationIsNotDuplicate(t *testing.T) {
	d, _ := newTestDeduplicator(time.Minute)

	if d.IsDuplicate("msg-1") {
		t.Fatal("first observation reported as duplicate")
	}
	if !d.IsDuplicate("msg-1") {
		t.Fatal("second observation not reported as duplicate")
	}
	if !d.IsDuplicate("msg-1") {
		t.Fatal("third observation not reported as duplicate")
	}
}

func TestEmptyIDNeverDuplicate(t *testing.T) {
	d, _ := newTestDeduplicator(time.Minute)

	for i := 0; i < 3; i++ {
		if d.IsDuplicate("") {
			t.Fatal("empty id reported as duplicate")
		}
	}
}

func TestIDAcceptedAgainAfterWindow(t *testing.T) {
	d, now := newTestDeduplicator(time.Minute)

	if d.IsDuplicate("msg-1") {
		t.Fatal("first observation reported as duplicate")
	}

	*now = now.Add(30 * time.Second)
	if !d.IsDuplicate("msg-1") {
		t.Fatal("observation inside window not reported as duplicate")
	}

	*now = now.Add(2 * time.Minute)
	if d.IsDuplicate("msg-1") {
		t.Fatal("observation after window still reported as duplicate")
	}
}

func TestSweepEvictsExpiredEntries(t *testing.T) {
	d, now := newTestDeduplicator(time.Minute)

	d.IsDuplicate("msg-1")
	d.IsDuplicate("msg-2")
	if got := d.Size(); got != 2 {
		t.Fatalf("Size() = %d, want 2", got)
	}

	*now = now.Add(2 * time.Minute)
	d.evictExpired()

	if got := d.Size(); got != 0 {
		t.Fatalf("Size() after eviction = %d, want 0", got)
	}
}
