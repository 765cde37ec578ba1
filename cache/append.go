package cache

import (
	"github.com/sirupsen/logrus"

	"github.com/IvanBrykalov/logcache/op"
)

// Append implements Cache. The op becomes visible to readers before its
// durability is confirmed (write-through); done fires once the wal has
// the result.
func (c *logCache) Append(o *op.Op, done AppendDone) error {
	c.mu.Lock()

	switch c.state {
	case stateClosed:
		c.mu.Unlock()
		return ErrClosed
	case stateEmpty:
		c.mu.Unlock()
		return ErrNotInitialized
	}
	if o.Index != c.tail.Index+1 {
		want := c.tail.Index + 1
		c.mu.Unlock()
		c.lg.WithFields(logrus.Fields{
			"index": o.Index, "want": want,
		}).Error("out-of-order append")
		return ErrOutOfOrder
	}

	size := o.ByteSize()
	if !c.reserveLocked(size) {
		c.mu.Unlock()
		return ErrResourceExhausted
	}

	c.store.insert(o)
	c.tail = o.ID()
	p := &pendingAppend{o: o, done: done}
	c.inflight[o.Index] = p

	c.metrics.Appended(1, size)
	c.metrics.Inflight(len(c.inflight))
	c.metrics.Size(c.store.len(), c.localUsed)
	c.mu.Unlock()

	// Issued outside the lock: the wal may deliver completions inline.
	c.log.AppendAsync(o, func(err error) {
		c.logAppendDone(o.Index, err)
	})
	return nil
}

// reserveLocked charges size bytes against both limits, evicting below
// the pin point first when that would make room. On failure nothing is
// charged.
func (c *logCache) reserveLocked(size int64) bool {
	if c.localUsed+size > c.opt.HardLimitBytes {
		c.evictLocked()
	}
	if c.localUsed+size > c.opt.HardLimitBytes {
		c.metrics.Rejected(RejectLocalLimit)
		c.lg.WithFields(logrus.Fields{
			"need_bytes": size, "used_bytes": c.localUsed, "limit_bytes": c.opt.HardLimitBytes,
		}).Warn("append rejected: local hard limit")
		return false
	}
	if !c.global.TryConsume(size) {
		c.evictLocked()
		if !c.global.TryConsume(size) {
			c.metrics.Rejected(RejectGlobalLimit)
			c.lg.WithFields(logrus.Fields{
				"need_bytes":   size,
				"global_used":  c.global.BytesUsed(),
				"global_limit": c.global.LimitBytes(),
				"tracker":      c.global.Name(),
			}).Warn("append rejected: global hard limit")
			return false
		}
	}
	c.localUsed += size
	return true
}

// logAppendDone is the wal durability callback. On success the op leaves
// the in-flight set and becomes evictable; on failure it stays in-flight
// forever so a failed write can never silently disappear from memory.
func (c *logCache) logAppendDone(index uint64, err error) {
	c.mu.Lock()
	p, ok := c.inflight[index]
	if !ok || p.notified {
		// Close already resolved the caller; drop the late completion.
		c.mu.Unlock()
		return
	}
	p.notified = true
	done := p.done

	if err == nil {
		delete(c.inflight, index)
		c.metrics.Inflight(len(c.inflight))
		// The pin point may already be past this op.
		c.evictLocked()
	} else {
		c.lg.WithError(err).WithField("index", index).Error("durable append failed")
	}
	c.mu.Unlock()

	done(err)
}
