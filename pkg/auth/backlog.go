package auth

import (
	"sync"
	"time"
)

// purgeBacklog holds token hashes whose cache revocation failed. While a
// hash is listed its cached copy is neither trusted nor rewritten. An entry
// lapses after the cache TTL, by which time any copy left behind in the
// cache has expired on its own.
type purgeBacklog struct {
	mu    sync.Mutex
	until map[string]time.Time
}

func (b *purgeBacklog) add(hash string, now time.Time, ttl time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.until == nil {
		b.until = make(map[string]time.Time)
	}
	for h, t := range b.until {
		if !now.Before(t) {
			delete(b.until, h)
		}
	}
	b.until[hash] = now.Add(ttl)
}

func (b *purgeBacklog) pending(hash string, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.until[hash]
	if !ok {
		return false
	}
	if !now.Before(t) {
		delete(b.until, hash)
		return false
	}
	return true
}

func (b *purgeBacklog) remove(hash string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.until, hash)
}

func (b *purgeBacklog) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.until)
}
