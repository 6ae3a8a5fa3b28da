package metrics

import (
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	CacheHits        = "cache_hits_total"
	CacheMisses      = "cache_misses_total"
	CacheCoalesced   = "cache_coalesced_total"
	CacheErrors      = "cache_errors_total"
	CacheRemember    = "cache_remember"
	CachePurges      = "cache_purges_total"
	UpstreamRequests = "upstream_requests_total"
)

type Metrics interface {
	IncrementCounter(name string)
	IncrementCounterWithLabels(name string, labels map[string]string)
	RecordDuration(name string, duration time.Duration)
	RecordGauge(name string, value float64)
}

// Nop discards everything.
type Nop struct{}

func (Nop) IncrementCounter(string)                              {}
func (Nop) IncrementCounterWithLabels(string, map[string]string) {}
func (Nop) RecordDuration(string, time.Duration)                 {}
func (Nop) RecordGauge(string, float64)                          {}

// Simple in-memory metrics implementation, used by tests and the CLI
type InMemoryMetrics struct {
	mu        sync.RWMutex
	counters  map[string]int64
	gauges    map[string]float64
	durations map[string][]time.Duration
}

func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{
		counters:  make(map[string]int64),
		gauges:    make(map[string]float64),
		durations: make(map[string][]time.Duration),
	}
}

func (m *InMemoryMetrics) IncrementCounter(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name]++
}

// IncrementCounterWithLabels counts under name{k=v,...} with sorted keys.
func (m *InMemoryMetrics) IncrementCounterWithLabels(name string, labels map[string]string) {
	m.IncrementCounter(seriesKey(name, labels))
}

func (m *InMemoryMetrics) RecordDuration(name string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.durations[name] = append(m.durations[name], duration)
}

func (m *InMemoryMetrics) RecordGauge(name string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[name] = value
}

func (m *InMemoryMetrics) Counter(name string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters[name]
}

func (m *InMemoryMetrics) GetCounters() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]int64, len(m.counters))
	for name, v := range m.counters {
		result[name] = v
	}
	return result
}

func (m *InMemoryMetrics) GetGauges() map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]float64, len(m.gauges))
	for name, v := range m.gauges {
		result[name] = v
	}
	return result
}

func (m *InMemoryMetrics) Durations(name string) []time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]time.Duration(nil), m.durations[name]...)
}

func seriesKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := sortedKeys(labels)
	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + labels[k]
	}
	return name + "{" + strings.Join(pairs, ",") + "}"
}

func sortedKeys(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
