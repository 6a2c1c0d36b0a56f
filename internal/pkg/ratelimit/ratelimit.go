// Package ratelimit implements process-local sliding-window counters,
// sharded by key so concurrent callers on different keys never contend.
package ratelimit

import (
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 32

// Window counts events per key over a sliding window.
type Window struct {
	limit  int
	window time.Duration
	shards [shardCount]shard
}

type shard struct {
	mu      sync.Mutex
	entries map[string][]time.Time
}

// NewWindow allows limit events per window duration per key.
func NewWindow(limit int, window time.Duration) *Window {
	w := &Window{limit: limit, window: window}
	for i := range w.shards {
		w.shards[i].entries = make(map[string][]time.Time)
	}
	return w
}

// Allow records one event for key and reports whether it fits the window.
// A rejected event is not recorded, so probing while throttled does not
// extend the penalty.
func (w *Window) Allow(key string) bool {
	return w.AllowAt(key, time.Now())
}

// AllowAt is Allow with an explicit clock, for tests.
func (w *Window) AllowAt(key string, now time.Time) bool {
	s := &w.shards[shardFor(key)]
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-w.window)
	kept := pruneBefore(s.entries[key], cutoff)
	if len(kept) >= w.limit {
		s.entries[key] = kept
		return false
	}
	s.entries[key] = append(kept, now)
	return true
}

// Remaining reports how many events key may still record.
func (w *Window) Remaining(key string, now time.Time) int {
	s := &w.shards[shardFor(key)]
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := pruneBefore(s.entries[key], now.Add(-w.window))
	s.entries[key] = kept
	if left := w.limit - len(kept); left > 0 {
		return left
	}
	return 0
}

// Sweep drops fully expired keys; run periodically from a cron job.
// Returns the number of keys removed.
func (w *Window) Sweep(now time.Time) int {
	cutoff := now.Add(-w.window)
	removed := 0
	for i := range w.shards {
		s := &w.shards[i]
		s.mu.Lock()
		for key, times := range s.entries {
			if kept := pruneBefore(times, cutoff); len(kept) == 0 {
				delete(s.entries, key)
				removed++
			} else {
				s.entries[key] = kept
			}
		}
		s.mu.Unlock()
	}
	return removed
}

func pruneBefore(times []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(times) && !times[idx].After(cutoff) {
		idx++
	}
	return times[idx:]
}

func shardFor(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % shardCount)
}
