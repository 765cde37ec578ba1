package prom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/logcache/cache"
)

// Adapter implements cache.Metrics and exports Prometheus counters/gauges.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type Adapter struct {
	appendedOps   prometheus.Counter
	appendedBytes prometheus.Counter
	rejected      *prometheus.CounterVec
	readHits      prometheus.Counter
	readOps       prometheus.Counter
	readMisses    prometheus.Counter
	evictedOps    prometheus.Counter
	evictedBytes  prometheus.Counter
	sizeOps       prometheus.Gauge
	sizeBytes     prometheus.Gauge
	inflight      prometheus.Gauge
}

// New constructs a Prometheus metrics adapter.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		})
	}
	a := &Adapter{
		appendedOps:   counter("appended_ops_total", "Ops accepted by Append"),
		appendedBytes: counter("appended_bytes_total", "Bytes accepted by Append"),
		rejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "rejected_appends_total",
				Help:        "Appends rejected by a memory hard limit",
				ConstLabels: constLabels,
			},
			[]string{"limit"},
		),
		readHits:     counter("read_hits_total", "Reads served from memory"),
		readOps:      counter("read_ops_total", "Ops returned to readers"),
		readMisses:   counter("read_misses_total", "Reads that required a disk backfill"),
		evictedOps:   counter("evicted_ops_total", "Ops evicted below the pin point"),
		evictedBytes: counter("evicted_bytes_total", "Bytes evicted below the pin point"),
		sizeOps:      gauge("size_ops", "Resident ops"),
		sizeBytes:    gauge("size_bytes", "Resident bytes"),
		inflight:     gauge("inflight_ops", "Ops awaiting durability"),
	}
	reg.MustRegister(
		a.appendedOps, a.appendedBytes, a.rejected,
		a.readHits, a.readOps, a.readMisses,
		a.evictedOps, a.evictedBytes,
		a.sizeOps, a.sizeBytes, a.inflight,
	)
	return a
}

// Appended counts an accepted append.
func (a *Adapter) Appended(ops int, bytes int64) {
	a.appendedOps.Add(float64(ops))
	a.appendedBytes.Add(float64(bytes))
}

// Rejected counts a limit rejection with a stable label value.
func (a *Adapter) Rejected(r cache.RejectReason) {
	a.rejected.WithLabelValues(limit(r)).Inc()
}

// ReadHit counts a read served from memory.
func (a *Adapter) ReadHit(ops int) {
	a.readHits.Inc()
	a.readOps.Add(float64(ops))
}

// ReadMiss counts a read that went to disk.
func (a *Adapter) ReadMiss() { a.readMisses.Inc() }

// Evicted counts an eviction batch.
func (a *Adapter) Evicted(ops int, bytes int64) {
	a.evictedOps.Add(float64(ops))
	a.evictedBytes.Add(float64(bytes))
}

// Size updates the resident footprint gauges.
func (a *Adapter) Size(ops int, bytes int64) {
	a.sizeOps.Set(float64(ops))
	a.sizeBytes.Set(float64(bytes))
}

// Inflight updates the awaiting-durability gauge.
func (a *Adapter) Inflight(n int) { a.inflight.Set(float64(n)) }

// limit maps RejectReason to a stable label value.
func limit(r cache.RejectReason) string {
	switch r {
	case cache.RejectGlobalLimit:
		return "global"
	default:
		return "local"
	}
}

// Compile-time check: ensure Adapter implements cache.Metrics.
var _ cache.Metrics = (*Adapter)(nil)
