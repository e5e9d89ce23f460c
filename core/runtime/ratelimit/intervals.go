package ratelimit

import (
	"sort"
	"strings"
	"sync"
	"time"
)

type prefixInterval struct {
	prefix   string
	interval time.Duration
}

// Intervals maps gate keys to their minimum interval by longest prefix match
type Intervals struct {
	mu       sync.RWMutex
	entries  []prefixInterval // longest prefix first
	fallback time.Duration
}

// NewIntervals creates a table whose unmatched keys get fallback
func NewIntervals(fallback time.Duration) *Intervals {
	return &Intervals{fallback: fallback}
}

// Set overrides the interval for keys starting with prefix
func (t *Intervals) Set(prefix string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.entries {
		if t.entries[i].prefix == prefix {
			t.entries[i].interval = d
			return
		}
	}
	t.entries = append(t.entries, prefixInterval{prefix: prefix, interval: d})
	sort.SliceStable(t.entries, func(i, j int) bool {
		return len(t.entries[i].prefix) > len(t.entries[j].prefix)
	})
}

// For returns the interval that applies to key
func (t *Intervals) For(key string) time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, e := range t.entries {
		if strings.HasPrefix(key, e.prefix) {
			return e.interval
		}
	}
	return t.fallback
}
