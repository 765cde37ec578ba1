// Package memtracker provides process-wide, ref-counted memory accounting.
//
// Independent cache instances that should share one memory ceiling register
// under a common name; the first registration creates the aggregate and
// later ones join it. The aggregate lives until the last holder calls
// Unregister, so a tracker for a namespace disappears automatically when
// every cache using it is gone.
package memtracker

import (
	"sync"
	"sync/atomic"
)

var registry = struct {
	mu sync.Mutex
	m  map[string]*Tracker
}{m: make(map[string]*Tracker)}

// Tracker is a shared byte budget. All methods are safe for concurrent use.
type Tracker struct {
	name  string
	limit int64
	used  atomic.Int64
	refs  int32 // guarded by registry.mu
}

// Register returns the tracker for name, creating it with limitBytes if it
// does not exist yet. limitBytes is only consulted on creation; joining an
// existing tracker keeps its original limit. A limit <= 0 means unlimited.
//
// Every Register must be paired with exactly one Unregister.
func Register(name string, limitBytes int64) *Tracker {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	t, ok := registry.m[name]
	if !ok {
		t = &Tracker{name: name, limit: limitBytes}
		registry.m[name] = t
	}
	t.refs++
	return t
}

// Unregister drops this holder's reference. When the last reference is
// gone the tracker is removed from the registry; a subsequent Register
// under the same name starts from zero.
func (t *Tracker) Unregister() {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	t.refs--
	if t.refs <= 0 {
		delete(registry.m, t.name)
	}
}

// TryConsume reserves b bytes if the limit allows it and reports whether
// the reservation was made. The check-and-add is a CAS loop, so the
// tracker never overshoots its limit even under concurrent callers.
func (t *Tracker) TryConsume(b int64) bool {
	if b <= 0 {
		return true
	}
	for {
		cur := t.used.Load()
		if t.limit > 0 && cur+b > t.limit {
			return false
		}
		if t.used.CompareAndSwap(cur, cur+b) {
			return true
		}
	}
}

// Release returns b bytes to the budget. Releasing more than was consumed
// clamps at zero rather than going negative.
func (t *Tracker) Release(b int64) {
	if b <= 0 {
		return
	}
	if after := t.used.Add(-b); after < 0 {
		// Accounting bug in the caller; keep the budget usable.
		t.used.CompareAndSwap(after, 0)
	}
}

// BytesUsed returns the currently reserved bytes.
func (t *Tracker) BytesUsed() int64 { return t.used.Load() }

// LimitBytes returns the configured ceiling (<= 0 means unlimited).
func (t *Tracker) LimitBytes() int64 { return t.limit }

// Name returns the registry key of this tracker.
func (t *Tracker) Name() string { return t.name }
