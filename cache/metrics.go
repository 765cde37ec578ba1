package cache

// RejectReason distinguishes which limit rejected an append. Callers of
// the cache are not expected to branch on this; it exists for diagnostics
// and metric labels.
type RejectReason int

const (
	// RejectLocalLimit — the per-cache hard limit was hit.
	RejectLocalLimit RejectReason = iota
	// RejectGlobalLimit — the shared process-wide hard limit was hit.
	RejectGlobalLimit
)

// Metrics exposes cache-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	// Appended is called once per accepted append.
	Appended(ops int, bytes int64)
	// Rejected is called when an append is refused by a memory limit.
	Rejected(reason RejectReason)
	// ReadHit is called when a read is served from memory, with the
	// number of ops returned.
	ReadHit(ops int)
	// ReadMiss is called when a read needs a disk backfill.
	ReadMiss()
	// Evicted reports a batch of evictions.
	Evicted(ops int, bytes int64)
	// Size reports the resident footprint after a mutation.
	Size(ops int, bytes int64)
	// Inflight reports the number of ops awaiting durability.
	Inflight(n int)
}

// NoopMetrics is a drop-in Metrics implementation that does nothing.
// It is safe for concurrent use and intended as the default when
// no observability backend is configured.
type NoopMetrics struct{}

func (NoopMetrics) Appended(int, int64)   {}
func (NoopMetrics) Rejected(RejectReason) {}
func (NoopMetrics) ReadHit(int)           {}
func (NoopMetrics) ReadMiss()             {}
func (NoopMetrics) Evicted(int, int64)    {}
func (NoopMetrics) Size(int, int64)       {}
func (NoopMetrics) Inflight(int)          {}

// Ensure NoopMetrics implements the Metrics interface at compile time.
var _ Metrics = NoopMetrics{}
