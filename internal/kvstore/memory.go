package kvstore

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"
)

type memEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

type windowMarker struct {
	at     time.Time
	member string
}

// Memory implements Store in process memory. Expired entries are dropped
// lazily on access.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memEntry
	windows map[string][]windowMarker
	now     func() time.Time
}

// NewMemory returns an empty in-process store using the wall clock.
func NewMemory() *Memory {
	return NewMemoryWithClock(time.Now)
}

// NewMemoryWithClock returns an in-process store whose TTLs are measured
// against now. Tests use it to expire entries without sleeping.
func NewMemoryWithClock(now func() time.Time) *Memory {
	return &Memory{
		entries: make(map[string]memEntry),
		windows: make(map[string][]windowMarker),
		now:     now,
	}
}

// lookup returns the live entry for key. Caller holds m.mu.
func (m *Memory) lookup(key string) (memEntry, bool) {
	e, ok := m.entries[key]
	if !ok {
		return memEntry{}, false
	}

	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return memEntry{}, false
	}

	return e, true
}

func (m *Memory) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}

	return m.now().Add(ttl)
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.lookup(key)

	return e.value, ok, nil
}

// Set implements Store.
func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = memEntry{value: value, expiresAt: m.expiry(ttl)}

	return nil
}

// SetNX implements Store.
func (m *Memory) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.lookup(key); ok {
		return false, nil
	}

	m.entries[key] = memEntry{value: value, expiresAt: m.expiry(ttl)}

	return true, nil
}

// Delete implements Store.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)

	return nil
}

// CompareAndDelete implements Store.
func (m *Memory) CompareAndDelete(_ context.Context, key, expected string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.lookup(key)
	if !ok || e.value != expected {
		return false, nil
	}

	delete(m.entries, key)

	return true, nil
}

// Incr implements Store.
func (m *Memory) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64

	e, ok := m.lookup(key)
	if ok {
		parsed, err := ParseCounter(e.value)
		if err != nil {
			return 0, err
		}

		n = parsed
	}

	n++
	e.value = strconv.FormatInt(n, 10)
	m.entries[key] = e

	return n, nil
}

// SlidingWindow implements Store.
func (m *Memory) SlidingWindow(
	_ context.Context, key string, now time.Time, window time.Duration, limit int, member string,
) (WindowResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := now.Add(-window)
	markers := m.windows[key]

	kept := markers[:0]
	for _, mk := range markers {
		if mk.at.After(cutoff) {
			kept = append(kept, mk)
		}
	}

	res := WindowResult{Count: len(kept)}
	if len(kept) < limit {
		kept = append(kept, windowMarker{at: now, member: member})
		sort.SliceStable(kept, func(i, j int) bool { return kept[i].at.Before(kept[j].at) })
		res.Allowed = true
		res.Count = len(kept)
	}

	if len(kept) == 0 {
		delete(m.windows, key)
		res.Oldest = now

		return res, nil
	}

	m.windows[key] = kept
	res.Oldest = kept[0].at

	return res, nil
}

// Close implements Store.
func (m *Memory) Close() error {
	return nil
}
