package cache

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/IvanBrykalov/logcache/internal/util"
	"github.com/IvanBrykalov/logcache/memtracker"
	"github.com/IvanBrykalov/logcache/op"
	"github.com/IvanBrykalov/logcache/wal"
)

type state int

const (
	stateEmpty state = iota // constructed, Init not called yet
	stateOpen
	stateClosed
)

// pendingAppend is an op handed to the wal whose durability callback has
// not fired yet. Members of the in-flight set are never evicted.
type pendingAppend struct {
	o    *op.Op
	done AppendDone
	// notified is set once the caller's done has been (or is being)
	// invoked, by either the wal callback or Close. Guarantees
	// exactly-once delivery.
	notified bool
}

// backfillState tracks the single outstanding disk read. Readers that hit
// the same hole while it is in flight queue up as waiters instead of
// issuing their own reads.
type backfillState struct {
	afterIndex uint64
	waiters    []backfillWaiter
}

type backfillWaiter struct {
	afterIndex uint64
	maxBytes   int64
	done       ReadDone
}

// logCache implements Cache. One mutex guards the store, the in-flight
// set, the pin index, the byte accounting, and the backfill state as a
// single unit: the invariants between them are cross-cutting, so they are
// checked and updated together.
type logCache struct {
	opt     Options
	log     wal.Log
	lg      logrus.FieldLogger
	metrics Metrics

	mu   sync.Mutex
	cond *sync.Cond // signaled when backfill clears; Close waits on it

	state     state
	store     *store
	inflight  map[uint64]*pendingAppend
	pinIndex  uint64
	tail      op.ID // id of the newest op appended since Init
	localUsed int64
	backfill  *backfillState

	global *memtracker.Tracker

	// Hot read counters, updated without the lock.
	_      util.CacheLinePad
	hits   util.PaddedAtomicInt64
	misses util.PaddedAtomicInt64
}

// New constructs a cache around the given durable log. The cache is empty
// and must be Init'ed before use.
func New(opt Options) Cache {
	if opt.Log == nil {
		panic("cache: Options.Log is required")
	}
	opt.applyDefaults()

	c := &logCache{
		opt:      opt,
		log:      opt.Log,
		lg:       opt.Logger.WithField("log_cache", opt.Name),
		metrics:  opt.Metrics,
		store:    newStore(),
		inflight: make(map[uint64]*pendingAppend),
		global:   memtracker.Register(opt.GlobalTracker, opt.GlobalHardLimitBytes),
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Init implements Cache.
func (c *logCache) Init(preceding op.ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case stateClosed:
		return ErrClosed
	case stateOpen:
		return ErrAlreadyInitialized
	}
	c.store.preceding = preceding
	c.tail = preceding
	// Nothing is pinned yet, which protects everything: eviction only
	// removes entries below the pin point, and it is still zero.
	c.state = stateOpen
	return nil
}

// HasOpIndex implements Cache.
func (c *logCache) HasOpIndex(index uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.store.get(index)
	return ok
}

// BytesUsed implements Cache.
func (c *logCache) BytesUsed() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.localUsed
}

// Len implements Cache.
func (c *logCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.len()
}

// SetPinnedOp implements Cache. The pin point never regresses.
func (c *logCache) SetPinnedOp(index uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index > c.pinIndex {
		c.pinIndex = index
	}
	c.evictLocked()
}

// Close implements Cache.
func (c *logCache) Close() error {
	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = stateClosed

	// An outstanding backfill completion observes the closed state,
	// resolves its waiters, and signals us.
	for c.backfill != nil {
		c.cond.Wait()
	}

	// Resolve append callbacks the wal has not answered yet. A late wal
	// completion finds the set empty and is dropped.
	var dones []AppendDone
	for _, p := range c.inflight {
		if !p.notified {
			p.notified = true
			dones = append(dones, p.done)
		}
	}
	c.inflight = make(map[uint64]*pendingAppend)

	freed := c.localUsed
	freedOps := c.store.len()
	c.store.clear()
	c.localUsed = 0
	c.global.Release(freed)
	c.global.Unregister()

	c.metrics.Evicted(freedOps, freed)
	c.metrics.Size(0, 0)
	c.metrics.Inflight(0)
	c.mu.Unlock()

	for _, done := range dones {
		done(ErrClosed)
	}
	return nil
}

// tailIndexLocked is the newest index appended since Init.
func (c *logCache) tailIndexLocked() uint64 {
	return c.tail.Index
}
