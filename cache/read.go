package cache

import (
	"errors"

	"github.com/IvanBrykalov/logcache/op"
)

// ReadOps implements Cache. On a miss it starts (or joins) a backfill and
// returns ErrIncomplete; the caller retries once the data has landed.
func (c *logCache) ReadOps(afterIndex uint64, maxBytes int64) (ReadResult, error) {
	c.mu.Lock()
	res, err := c.readLocked(afterIndex, maxBytes)
	var issue bool
	if errors.Is(err, ErrIncomplete) {
		issue = c.joinBackfillLocked(afterIndex, nil)
	}
	c.mu.Unlock()

	if issue {
		c.issueBackfill(afterIndex)
	}
	return res, err
}

// ReadOpsAsync implements Cache. The continuation fires exactly once:
// immediately for hits and errors, after the backfill lands otherwise.
func (c *logCache) ReadOpsAsync(afterIndex uint64, maxBytes int64, done ReadDone) {
	c.mu.Lock()
	res, err := c.readLocked(afterIndex, maxBytes)
	if !errors.Is(err, ErrIncomplete) {
		c.mu.Unlock()
		done(res, err)
		return
	}
	issue := c.joinBackfillLocked(afterIndex, &backfillWaiter{
		afterIndex: afterIndex,
		maxBytes:   maxBytes,
		done:       done,
	})
	c.mu.Unlock()

	if issue {
		c.issueBackfill(afterIndex)
	}
}

// readLocked resolves a read against the current store. Outcomes:
//
//   - afterIndex resolves to a resident op or to the preceding id →
//     success, ops following it up to maxBytes (at least one if any).
//   - afterIndex at or past the tail → success, no ops: caller caught up.
//   - afterIndex below the pin point and not resident → ErrNotFound:
//     the range may have been evicted; unrecoverable through this path.
//   - otherwise → ErrIncomplete: the range is on disk, backfill needed.
func (c *logCache) readLocked(afterIndex uint64, maxBytes int64) (ReadResult, error) {
	switch c.state {
	case stateClosed:
		return ReadResult{}, ErrClosed
	case stateEmpty:
		return ReadResult{}, ErrNotInitialized
	}

	var preceding op.ID
	switch {
	case afterIndex == c.store.preceding.Index:
		preceding = c.store.preceding
	default:
		if o, ok := c.store.get(afterIndex); ok {
			preceding = o.ID()
			break
		}
		if afterIndex > c.tailIndexLocked() {
			// Caller is caught up; the term of a position we never
			// saw is unknown.
			return ReadResult{Preceding: op.ID{Index: afterIndex}}, nil
		}
		if afterIndex < c.pinIndex {
			c.misses.Add(1)
			return ReadResult{}, ErrNotFound
		}
		c.misses.Add(1)
		c.metrics.ReadMiss()
		return ReadResult{}, ErrIncomplete
	}

	res := ReadResult{Preceding: preceding}
	var total int64
	c.store.ascendAfter(afterIndex, func(o *op.Op) bool {
		size := o.ByteSize()
		// A single op may exceed maxBytes; never return an empty
		// result just because the first candidate is too big.
		if len(res.Ops) > 0 && total+size > maxBytes {
			return false
		}
		res.Ops = append(res.Ops, o)
		total += size
		return total < maxBytes
	})

	c.hits.Add(1)
	c.metrics.ReadHit(len(res.Ops))
	return res, nil
}

// joinBackfillLocked queues w (may be nil for fire-and-forget callers)
// behind the outstanding disk read, starting one if none is in flight.
// Returns whether the caller must issue the read after unlocking.
func (c *logCache) joinBackfillLocked(afterIndex uint64, w *backfillWaiter) bool {
	start := c.backfill == nil
	if start {
		c.backfill = &backfillState{afterIndex: afterIndex}
	}
	if w != nil {
		c.backfill.waiters = append(c.backfill.waiters, *w)
	}
	return start
}

// issueBackfill hands the read to the wal. Called without the lock held:
// the wal is allowed to run its completion inline.
func (c *logCache) issueBackfill(afterIndex uint64) {
	c.log.ReadAsync(afterIndex, func(ops []*op.Op, err error) {
		c.backfillDone(ops, err)
	})
}

type readDelivery struct {
	done ReadDone
	res  ReadResult
	err  error
}

// backfillDone is the disk-read completion. It inserts what it can into
// the store, re-runs every queued waiter's read, and re-issues a read if
// some waiter's range is still missing.
func (c *logCache) backfillDone(ops []*op.Op, err error) {
	c.mu.Lock()
	bf := c.backfill
	c.backfill = nil
	if bf == nil {
		// Duplicate completion from a misbehaving log; drop it.
		c.mu.Unlock()
		return
	}

	if c.state == stateClosed {
		waiters := bf.waiters
		c.cond.Broadcast()
		c.mu.Unlock()
		for _, w := range waiters {
			w.done(ReadResult{}, ErrClosed)
		}
		return
	}

	if err != nil {
		// Forwarded verbatim; the cache adds no retry policy.
		waiters := bf.waiters
		c.cond.Broadcast()
		c.lg.WithError(err).WithField("after_index", bf.afterIndex).
			Warn("backfill read failed")
		c.mu.Unlock()
		for _, w := range waiters {
			w.done(ReadResult{}, err)
		}
		return
	}

	inserted := c.insertFetchedLocked(ops)
	c.evictLocked()

	var (
		deliveries []readDelivery
		pending    []backfillWaiter
	)
	for _, w := range bf.waiters {
		res, rerr := c.readLocked(w.afterIndex, w.maxBytes)
		if !errors.Is(rerr, ErrIncomplete) {
			deliveries = append(deliveries, readDelivery{w.done, res, rerr})
			continue
		}
		// Not resident even after insertion (the fetch was truncated or
		// lost a race). Serve straight from the fetched batch when it
		// covers the request; otherwise go back to disk.
		if res, ok := resultFromFetched(ops, w.afterIndex, w.maxBytes); ok {
			deliveries = append(deliveries, readDelivery{w.done, res, nil})
			continue
		}
		pending = append(pending, w)
	}

	var issueAfter uint64
	issue := false
	if len(pending) > 0 {
		issueAfter = pending[0].afterIndex
		// Retrying only makes sense when this completion changed
		// something: new entries landed in the store, or the next read
		// starts from a different position. An identical read would
		// return an identical answer, forever.
		if inserted > 0 || issueAfter != bf.afterIndex {
			issue = true
			c.backfill = &backfillState{afterIndex: issueAfter, waiters: pending}
		} else {
			// The log has nothing usable for this range; it is not
			// recoverable through the cache.
			for _, w := range pending {
				deliveries = append(deliveries, readDelivery{w.done, ReadResult{}, ErrNotFound})
			}
		}
	}
	if !issue {
		c.cond.Broadcast()
	}
	c.mu.Unlock()

	for _, d := range deliveries {
		d.done(d.res, d.err)
	}
	if issue {
		c.issueBackfill(issueAfter)
	}
}

// insertFetchedLocked folds fetched ops into the store without ever
// breaking contiguity: only the contiguous run that ends exactly at the
// store's lower bound (or at the last known position when the store is
// empty) is inserted, from the top down, each op subject to the same
// memory limits as an append. Ops overlapping resident entries are
// discarded — existing entries win.
func (c *logCache) insertFetchedLocked(ops []*op.Op) int {
	if len(ops) == 0 {
		return 0
	}

	// The index the fetched run has to reach to connect. When the store
	// is empty, preceding is the last known position, i.e. the tail.
	connectTo := c.store.preceding.Index
	if m, ok := c.store.min(); ok {
		connectTo = m.Index - 1
	}

	end := -1
	for i := len(ops) - 1; i >= 0; i-- {
		if ops[i].Index == connectTo {
			end = i
			break
		}
		if ops[i].Index < connectTo {
			break
		}
	}
	if end < 0 {
		return 0
	}
	start := end
	for start > 0 && ops[start-1].Index == ops[start].Index-1 {
		start--
	}

	inserted := 0
	for i := end; i >= start; i-- {
		o := ops[i]
		if !c.reserveLocked(o.ByteSize()) {
			break
		}
		c.store.insert(o)
		if i > start {
			c.store.preceding = ops[i-1].ID()
		} else {
			// The term below the fetched range is unknown.
			c.store.preceding = op.ID{Index: o.Index - 1}
		}
		inserted++
	}
	if inserted > 0 {
		c.metrics.Size(c.store.len(), c.localUsed)
	}
	return inserted
}

// resultFromFetched serves a read directly from a fetched batch that
// could not be cached. Requires the batch to begin exactly after the
// requested position.
func resultFromFetched(ops []*op.Op, afterIndex uint64, maxBytes int64) (ReadResult, bool) {
	if len(ops) == 0 || ops[0].Index != afterIndex+1 {
		return ReadResult{}, false
	}
	res := ReadResult{Preceding: op.ID{Index: afterIndex}}
	var total int64
	for _, o := range ops {
		size := o.ByteSize()
		if len(res.Ops) > 0 && total+size > maxBytes {
			break
		}
		res.Ops = append(res.Ops, o)
		total += size
		if total >= maxBytes {
			break
		}
	}
	return res, true
}
