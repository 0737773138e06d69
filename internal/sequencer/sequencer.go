// Package sequencer serializes inbound work per end-user identity.
// Tasks accepted for one identity run strictly one at a time in submission
// order; identities proceed independently of each other. Excess load is shed
// on arrival: messages arriving faster than the configured interval, or while
// the identity's queue is at its depth limit, are dropped and never run.
package sequencer

import (
	"context"
	"sync"
	"time"

	"atende_backend/platform/logger"
)

const (
	// DefaultRateLimitInterval is the minimum spacing between accepted
	// messages of a single identity.
	DefaultRateLimitInterval = 1500 * time.Millisecond
	// DefaultMaxQueueDepth is the per-identity in-flight cap before shedding.
	DefaultMaxQueueDepth = 5
)

// Task is a unit of work executed on the identity's chain.
type Task func(ctx context.Context) error

type chain struct {
	depth int
	tail  chan struct{} // closed when the last queued task finishes
}

// Sequencer owns the per-identity bookkeeping: last-accepted timestamp,
// in-flight depth, and the continuation chain head.
type Sequencer struct {
	mu           sync.Mutex
	chains       map[string]*chain
	lastAccepted map[string]time.Time

	interval time.Duration
	maxDepth int

	baseCtx context.Context
	now     func() time.Time
	wg      sync.WaitGroup
	log     *logger.Logger
}

// New creates a Sequencer. Tasks receive baseCtx; cancelling it is the
// caller's shutdown signal for in-flight work.
func New(baseCtx context.Context, interval time.Duration, maxDepth int, log *logger.Logger) *Sequencer {
	if interval <= 0 {
		interval = DefaultRateLimitInterval
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxQueueDepth
	}

	return &Sequencer{
		chains:       make(map[string]*chain),
		lastAccepted: make(map[string]time.Time),
		interval:     interval,
		maxDepth:     maxDepth,
		baseCtx:      baseCtx,
		now:          time.Now,
		log:          log,
	}
}

// Enqueue submits a task for the identity. It returns true when the task was
// accepted onto the identity's chain and false when it was shed by the rate
// limit or the depth cap. A dropped task is abandoned before entering the
// chain; it is never cancelled mid-execution because it never starts.
func (s *Sequencer) Enqueue(identity string, task Task) bool {
	now := s.now()

	s.mu.Lock()

	if last, ok := s.lastAccepted[identity]; ok && now.Sub(last) < s.interval {
		s.mu.Unlock()
		s.log.RateLimitDrop(identity)
		return false
	}
	s.lastAccepted[identity] = now
	s.pruneLastAcceptedLocked(now)

	c := s.chains[identity]
	if c == nil {
		c = &chain{}
		s.chains[identity] = c
	}

	if c.depth >= s.maxDepth {
		depth := c.depth
		s.mu.Unlock()
		s.log.QueueDrop(identity, depth)
		return false
	}

	c.depth++
	prev := c.tail
	done := make(chan struct{})
	c.tail = done

	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(identity, c, task, prev, done)
	return true
}

// ActiveIdentities returns the number of identities with a non-empty chain.
func (s *Sequencer) ActiveIdentities() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chains)
}

// Depth returns the current in-flight depth for the identity.
func (s *Sequencer) Depth(identity string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.chains[identity]; ok {
		return c.depth
	}
	return 0
}

// Wait blocks until every accepted task has finished.
func (s *Sequencer) Wait() {
	s.wg.Wait()
}

func (s *Sequencer) run(identity string, c *chain, task Task, prev, done chan struct{}) {
	defer s.wg.Done()

	if prev != nil {
		<-prev
	}

	// A task failure must never abort the tasks queued behind it.
	func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("task panicked", "identity", identity, "panic", r)
			}
		}()
		if err := task(s.baseCtx); err != nil {
			s.log.Error("task failed", "identity", identity, "error", err)
		}
	}()

	close(done)

	s.mu.Lock()
	c.depth--
	if c.tail == done {
		// Chain drained; drop the bookkeeping so inactive identities
		// do not accumulate.
		delete(s.chains, identity)
	}
	s.mu.Unlock()
}

// pruneLastAcceptedLocked drops timestamps old enough to no longer influence
// the rate limit. Called with s.mu held.
func (s *Sequencer) pruneLastAcceptedLocked(now time.Time) {
	for identity, last := range s.lastAccepted {
		if now.Sub(last) >= s.interval {
			delete(s.lastAccepted, identity)
		}
	}
}
