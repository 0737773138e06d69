package sequencer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"atende_backend/platform/logger"
)

func newTestSequencer(interval time.Duration, maxDepth int) (*Sequencer, *time.Time) {
	s := New(context.Background(), interval, maxDepth, logger.New("development"))

	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return current }
	return s, &current
}

func TestTasksForOneIdentityRunInSubmissionOrder(t *testing.T) {
	s, now := newTestSequencer(time.Millisecond, 50)

	var mu sync.Mutex
	var order []int

	for i := 0; i < 20; i++ {
		i := i
		accepted := s.Enqueue("user-1", func(context.Context) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		})
		if !accepted {
			t.Fatalf("task %d unexpectedly dropped", i)
		}
		*now = now.Add(time.Second)
	}

	s.Wait()

	if len(order) != 20 {
		t.Fatalf("ran %d tasks, want 20", len(order))
	}
	for i, got := range order {
		if got != i {
			t.Fatalf("position %d ran task %d, want %d", i, got, i)
		}
	}
}

func TestRateLimitDropsMessagesArrivingTooSoon(t *testing.T) {
	s, now := newTestSequencer(1500*time.Millisecond, 50)

	start := *now
	var mu sync.Mutex
	ran := 0
	task := func(context.Context) error {
		mu.Lock()
		ran++
		mu.Unlock()
		return nil
	}

	// Submissions at t=0, 1, 2, 20, 21 seconds.
	offsets := []time.Duration{0, time.Second, 2 * time.Second, 20 * time.Second, 21 * time.Second}
	wantAccepted := []bool{true, false, true, true, false}

	for i, off := range offsets {
		*now = start.Add(off)
		if got := s.Enqueue("user-1", task); got != wantAccepted[i] {
			t.Fatalf("submission at t=%v: accepted=%v, want %v", off, got, wantAccepted[i])
		}
	}

	s.Wait()

	mu.Lock()
	defer mu.Unlock()
	if ran != 3 {
		t.Fatalf("ran %d tasks, want 3", ran)
	}
}

func TestBackpressureShedsAtMaxDepth(t *testing.T) {
	s, now := newTestSequencer(time.Millisecond, 3)

	release := make(chan struct{})
	blocking := func(context.Context) error {
		<-release
		return nil
	}

	for i := 0; i < 3; i++ {
		if !s.Enqueue("user-1", blocking) {
			t.Fatalf("task %d dropped below the depth cap", i)
		}
		*now = now.Add(time.Second)
	}

	if got := s.Depth("user-1"); got != 3 {
		t.Fatalf("Depth = %d, want 3", got)
	}
	if s.Enqueue("user-1", blocking) {
		t.Fatal("task accepted while chain is at max depth")
	}

	close(release)
	s.Wait()

	if got := s.Depth("user-1"); got != 0 {
		t.Fatalf("Depth after drain = %d, want 0", got)
	}
	if got := s.ActiveIdentities(); got != 0 {
		t.Fatalf("ActiveIdentities after drain = %d, want 0", got)
	}
}

func TestFailedTaskDoesNotAbortSubsequentTasks(t *testing.T) {
	s, now := newTestSequencer(time.Millisecond, 10)

	var mu sync.Mutex
	var ran []string

	s.Enqueue("user-1", func(context.Context) error {
		mu.Lock()
		ran = append(ran, "failing")
		mu.Unlock()
		return errors.New("boom")
	})
	*now = now.Add(time.Second)

	s.Enqueue("user-1", func(context.Context) error {
		mu.Lock()
		ran = append(ran, "panicking")
		mu.Unlock()
		panic("boom")
	})
	*now = now.Add(time.Second)

	s.Enqueue("user-1", func(context.Context) error {
		mu.Lock()
		ran = append(ran, "ok")
		mu.Unlock()
		return nil
	})

	s.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(ran) != 3 || ran[2] != "ok" {
		t.Fatalf("ran = %v, want all three tasks with ok last", ran)
	}
}

func TestIdentitiesDoNotBlockEachOther(t *testing.T) {
	s, _ := newTestSequencer(time.Millisecond, 10)

	release := make(chan struct{})
	done := make(chan struct{})

	s.Enqueue("user-1", func(context.Context) error {
		<-release
		return nil
	})
	s.Enqueue("user-2", func(context.Context) error {
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("user-2 task blocked behind user-1")
	}

	close(release)
	s.Wait()
}
