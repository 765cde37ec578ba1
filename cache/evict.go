package cache

// evictLocked removes the maximal contiguous prefix of the store whose
// entries sit below the pin point and are not awaiting durability. It
// stops at the first survivor, which preserves contiguity: nothing above
// a resident entry is ever removed.
//
// Runs after appends that find a limit exceeded, after every pin advance,
// and after backfill insertions.
func (c *logCache) evictLocked() {
	var (
		freedOps   int
		freedBytes int64
	)
	for {
		min, ok := c.store.min()
		if !ok || min.Index >= c.pinIndex {
			break
		}
		if _, awaiting := c.inflight[min.Index]; awaiting {
			break
		}
		c.store.deleteMin() // advances store.preceding over min
		freedOps++
		freedBytes += min.ByteSize()
	}
	if freedOps == 0 {
		return
	}
	c.localUsed -= freedBytes
	c.global.Release(freedBytes)
	c.metrics.Evicted(freedOps, freedBytes)
	c.metrics.Size(c.store.len(), c.localUsed)
}
