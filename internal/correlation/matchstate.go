package correlation

import (
	"sync"
	"time"

	"github.com/stratuswatch/detect-engine/internal/models"
)

const defaultShardCount = 16

// MatchStateStore holds per-entity-key buffers of recent events for
// sequence rules. Buffers are sharded by key so contention is limited to
// events sharing the same entity key; appends for one key happen under a
// single lock, keeping occurred_at ordering stable for interleaved events.
type MatchStateStore struct {
	shards   []*matchShard
	capacity int
}

type matchShard struct {
	mu      sync.Mutex
	buffers map[string]*eventBuffer
}

// eventBuffer is a fixed-capacity, occurred_at-ordered buffer with explicit
// window eviction. When full, the oldest entry is dropped.
type eventBuffer struct {
	events []*models.NormalizedEvent
}

// NewMatchStateStore creates a sharded match-state store. capacity bounds
// each per-key buffer.
func NewMatchStateStore(capacity int) *MatchStateStore {
	if capacity <= 0 {
		capacity = 64
	}
	shards := make([]*matchShard, defaultShardCount)
	for i := range shards {
		shards[i] = &matchShard{buffers: make(map[string]*eventBuffer)}
	}
	return &MatchStateStore{shards: shards, capacity: capacity}
}

func (s *MatchStateStore) shardFor(key string) *matchShard {
	return s.shards[fnv32(key)%uint32(len(s.shards))]
}

// Observe appends the event to the buffer for key, evicts entries that have
// aged out of the window, and checks whether the buffer now contains the
// given event-type sequence in occurred_at order (subsequence match, not
// necessarily contiguous). On a match the consumed events are removed from
// the buffer so overlapping sequences cannot double-fire.
func (s *MatchStateStore) Observe(key string, event *models.NormalizedEvent, sequence []string, window time.Duration) []*models.NormalizedEvent {
	shard := s.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	buf, ok := shard.buffers[key]
	if !ok {
		buf = &eventBuffer{}
		shard.buffers[key] = buf
	}

	buf.insert(event, s.capacity)
	buf.evict(window)

	matched := buf.matchSubsequence(sequence)
	if matched == nil {
		return nil
	}
	buf.remove(matched)
	if len(buf.events) == 0 {
		delete(shard.buffers, key)
	}
	return matched
}

// ActiveBuffers returns the number of live per-key buffers, for diagnostics.
func (s *MatchStateStore) ActiveBuffers() int {
	total := 0
	for _, shard := range s.shards {
		shard.mu.Lock()
		total += len(shard.buffers)
		shard.mu.Unlock()
	}
	return total
}

// Sweep drops buffers whose newest entry is older than maxAge relative to
// now. Called periodically to bound memory for keys that went quiet.
func (s *MatchStateStore) Sweep(now time.Time, maxAge time.Duration) int {
	removed := 0
	cutoff := now.Add(-maxAge)
	for _, shard := range s.shards {
		shard.mu.Lock()
		for key, buf := range shard.buffers {
			if len(buf.events) == 0 || buf.events[len(buf.events)-1].OccurredAt.Before(cutoff) {
				delete(shard.buffers, key)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed
}

// insert places the event in occurred_at order, dropping the oldest entry
// when the buffer is at capacity.
func (b *eventBuffer) insert(event *models.NormalizedEvent, capacity int) {
	idx := len(b.events)
	for idx > 0 && b.events[idx-1].OccurredAt.After(event.OccurredAt) {
		idx--
	}
	b.events = append(b.events, nil)
	copy(b.events[idx+1:], b.events[idx:])
	b.events[idx] = event

	if len(b.events) > capacity {
		b.events = b.events[len(b.events)-capacity:]
	}
}

// evict drops entries older than the window relative to the newest entry.
func (b *eventBuffer) evict(window time.Duration) {
	if len(b.events) == 0 || window <= 0 {
		return
	}
	newest := b.events[len(b.events)-1].OccurredAt
	cutoff := newest.Add(-window)
	start := 0
	for start < len(b.events) && b.events[start].OccurredAt.Before(cutoff) {
		start++
	}
	if start > 0 {
		b.events = append([]*models.NormalizedEvent{}, b.events[start:]...)
	}
}

// matchSubsequence finds the earliest ordered occurrence of the event-type
// sequence in the buffer. Returns nil when the sequence is not present.
func (b *eventBuffer) matchSubsequence(sequence []string) []*models.NormalizedEvent {
	if len(sequence) == 0 {
		return nil
	}
	matched := make([]*models.NormalizedEvent, 0, len(sequence))
	next := 0
	for _, event := range b.events {
		if event.EventType == sequence[next] {
			matched = append(matched, event)
			next++
			if next == len(sequence) {
				return matched
			}
		}
	}
	return nil
}

// remove deletes the given events (by identity) from the buffer.
func (b *eventBuffer) remove(events []*models.NormalizedEvent) {
	drop := make(map[*models.NormalizedEvent]bool, len(events))
	for _, e := range events {
		drop[e] = true
	}
	kept := b.events[:0]
	for _, e := range b.events {
		if !drop[e] {
			kept = append(kept, e)
		}
	}
	b.events = kept
}

// fnv32 is a small inline FNV-1a hash for shard selection.
func fnv32(key string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(key); i++ {
		h ^= uint32(key[i])
		h *= 16777619
	}
	return h
}
