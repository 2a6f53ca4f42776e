package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters for requests, poll cycles,
// automation runs and SLA warnings. Nil-safe: a nil receiver is a no-op.
type Metrics struct {
	mu       sync.Mutex
	counters map[string]int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{counters: make(map[string]int64)}
}

// RecordRequest increments the per-route request counter.
func (m *Metrics) RecordRequest(path, method string, status int, _ time.Duration) {
	m.Inc("http|" + path + "|" + method + "|" + strconv.Itoa(status))
}

// RecordError increments the per-route error counter.
func (m *Metrics) RecordError(path, method, code string) {
	m.Inc("http_error|" + path + "|" + method + "|" + code)
}

// Inc increments the named counter.
func (m *Metrics) Inc(name string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name]++
}

// Get returns the current value of the named counter.
func (m *Metrics) Get(name string) int64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]int64 {
	if m == nil {
		return map[string]int64{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(m.counters))
	for k, v := range m.counters {
		out[k] = v
	}
	return out
}
