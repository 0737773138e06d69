// Package dedup suppresses reprocessing of channel messages that are
// redelivered within a short window, e.g. on transport reconnects or when a
// webhook fires more than once for the same event.
package dedup

import (
	"sync"
	"time"
)

// DefaultTTL is how long a message id is remembered.
const DefaultTTL = 5 * time.Minute

// Deduplicator is a time-windowed membership check over message ids.
// State is in-memory only; a restart resets the window, which is acceptable
// because it only guards against immediate redelivery.
type Deduplicator struct {
	mu   sync.Mutex
	seen map[string]time.Time // message id -> expiry
	ttl  time.Duration
	now  func() time.Time
	stop chan struct{}
	once sync.Once
}

// New creates a Deduplicator and starts its background sweep.
// The sweep goroutine never blocks process shutdown; call Close to stop it
// eagerly.
func New(ttl time.Duration) *Deduplicator {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	d := &Deduplicator{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
		stop: make(chan struct{}),
	}

	go d.sweep()
	return d
}

// IsDuplicate reports whether messageID was already observed within the
// window. The first observation records the id and returns false. An empty id
// is never a duplicate.
func (d *Deduplicator) IsDuplicate(messageID string) bool {
	if messageID == "" {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if expiry, ok := d.seen[messageID]; ok && now.Before(expiry) {
		return true
	}

	d.seen[messageID] = now.Add(d.ttl)
	return false
}

// Size returns the number of remembered ids, expired or not.
func (d *Deduplicator) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// Close stops the background sweep.
func (d *Deduplicator) Close() {
	d.once.Do(func() { close(d.stop) })
}

func (d *Deduplicator) sweep() {
	ticker := time.NewTicker(d.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.evictExpired()
		case <-d.stop:
			return
		}
	}
}

func (d *Deduplicator) evictExpired() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for id, expiry := range d.seen {
		if now.After(expiry) {
			delete(d.seen, id)
		}
	}
}
