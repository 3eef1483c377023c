// Package tracker counts external API usage per provider. The counters feed
// the tour report and the daily quota gate.
package tracker

import (
	"sync"
	"sync/atomic"
)

// Stats holds metrics for a single provider. Fields are accessed atomically.
type Stats struct {
	CacheHits   int64
	CacheMisses int64
	Requests    int64
	Failures    int64
	ZeroResults int64
}

// Tracker tracks usage statistics per provider (host).
type Tracker struct {
	mu    sync.RWMutex
	stats map[string]*Stats
}

// New creates a new Tracker.
func New() *Tracker {
	return &Tracker{stats: make(map[string]*Stats)}
}

func (t *Tracker) get(provider string) *Stats {
	t.mu.RLock()
	s, ok := t.stats[provider]
	t.mu.RUnlock()
	if ok {
		return s
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok = t.stats[provider]; ok {
		return s
	}
	s = &Stats{}
	t.stats[provider] = s
	return s
}

// CacheHit increments the cache hit counter for provider.
func (t *Tracker) CacheHit(provider string) {
	atomic.AddInt64(&t.get(provider).CacheHits, 1)
}

// CacheMiss increments the cache miss counter for provider.
func (t *Tracker) CacheMiss(provider string) {
	atomic.AddInt64(&t.get(provider).CacheMisses, 1)
}

// Request increments the outbound request counter for provider.
func (t *Tracker) Request(provider string) {
	atomic.AddInt64(&t.get(provider).Requests, 1)
}

// Failure increments the failure counter for provider.
func (t *Tracker) Failure(provider string) {
	atomic.AddInt64(&t.get(provider).Failures, 1)
}

// ZeroResult increments the empty-response counter for provider.
func (t *Tracker) ZeroResult(provider string) {
	atomic.AddInt64(&t.get(provider).ZeroResults, 1)
}

// Requests returns the outbound request count for provider.
func (t *Tracker) RequestCount(provider string) int64 {
	return atomic.LoadInt64(&t.get(provider).Requests)
}

// Snapshot returns a copy of the current stats.
func (t *Tracker) Snapshot() map[string]Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make(map[string]Stats, len(t.stats))
	for k, v := range t.stats {
		result[k] = Stats{
			CacheHits:   atomic.LoadInt64(&v.CacheHits),
			CacheMisses: atomic.LoadInt64(&v.CacheMisses),
			Requests:    atomic.LoadInt64(&v.Requests),
			Failures:    atomic.LoadInt64(&v.Failures),
			ZeroResults: atomic.LoadInt64(&v.ZeroResults),
		}
	}
	return result
}

// Reset clears all counters. Used at tour start so reports are per-session.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats = make(map[string]*Stats)
}
