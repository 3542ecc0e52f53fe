package redis

import (
	"sync/atomic"
	"time"
)

// operation indexes the per-command counters of Metrics
type operation int

const (
	opGet operation = iota
	opSet
	opDelete
	opCount
)

// latency accumulates calls and their total duration for one command
type latency struct {
	calls atomic.Uint64
	nanos atomic.Uint64
}

func (l *latency) add(d time.Duration) {
	l.calls.Add(1)
	l.nanos.Add(uint64(d.Nanoseconds()))
}

func (l *latency) read() (calls uint64, avg time.Duration) {
	calls = l.calls.Load()
	if calls == 0 {
		return 0, 0
	}
	return calls, time.Duration(l.nanos.Load() / calls)
}

func (l *latency) reset() {
	l.calls.Store(0)
	l.nanos.Store(0)
}

// Metrics counts cache outcomes of one Manager. Every method is safe on a nil
// *Metrics, which is what a Manager holds when metrics are disabled.
type Metrics struct {
	hits, misses, errors atomic.Uint64
	ops                  [opCount]latency
	bytesSaved           atomic.Uint64
	invalidations        atomic.Uint64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) observe(op operation, d time.Duration) {
	if m != nil {
		m.ops[op].add(d)
	}
}

// lookup counts the outcome of a read: found, missing, or failed
func (m *Metrics) lookup(found bool, err error) {
	switch {
	case m == nil:
	case err != nil:
		m.errors.Add(1)
	case found:
		m.hits.Add(1)
	default:
		m.misses.Add(1)
	}
}

func (m *Metrics) failed() {
	if m != nil {
		m.errors.Add(1)
	}
}

func (m *Metrics) compressed(saved int) {
	if m != nil && saved > 0 {
		m.bytesSaved.Add(uint64(saved))
	}
}

// invalidated counts one deleted batch of keys
func (m *Metrics) invalidated() {
	if m != nil {
		m.invalidations.Add(1)
	}
}

// Snapshot reads every counter. Counters are read one by one, so a snapshot
// taken under load is not a consistent cut.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}

	s := MetricsSnapshot{
		CacheHits:             m.hits.Load(),
		CacheMisses:           m.misses.Load(),
		CacheErrors:           m.errors.Load(),
		CompressionBytesSaved: m.bytesSaved.Load(),
		InvalidationCount:     m.invalidations.Load(),
	}
	if lookups := s.CacheHits + s.CacheMisses; lookups > 0 {
		s.CacheHitRate = float64(s.CacheHits) / float64(lookups) * 100
	}
	s.GetOperations, s.AvgGetLatency = m.ops[opGet].read()
	s.SetOperations, s.AvgSetLatency = m.ops[opSet].read()
	s.DeleteOperations, s.AvgDeleteLatency = m.ops[opDelete].read()
	return s
}

func (m *Metrics) Reset() {
	if m == nil {
		return
	}
	m.hits.Store(0)
	m.misses.Store(0)
	m.errors.Store(0)
	m.bytesSaved.Store(0)
	m.invalidations.Store(0)
	for i := range m.ops {
		m.ops[i].reset()
	}
}

// MetricsSnapshot is a point-in-time copy of Metrics
type MetricsSnapshot struct {
	CacheHits    uint64
	CacheMisses  uint64
	CacheErrors  uint64
	CacheHitRate float64 // percent of lookups that hit

	GetOperations    uint64
	SetOperations    uint64
	DeleteOperations uint64

	AvgGetLatency    time.Duration
	AvgSetLatency    time.Duration
	AvgDeleteLatency time.Duration

	CompressionBytesSaved uint64
	InvalidationCount     uint64
}
