// Package cache implements a write-through, memory-bounded buffer in
// front of a durable append-only replication log. Recently appended ops
// stay in memory so readers (e.g. followers catching up) avoid disk, and
// a pair of hard memory limits turns the cache into a backpressure valve
// for the consensus layer above it.
//
// # Design
//
//   - Storage: an ordered index → op map (B-tree) whose key set is always
//     a contiguous range. Appends extend it at the top; eviction trims a
//     prefix at the bottom; backfill extends it downward. Readers are
//     never shown a gap they weren't warned about.
//
//   - Eviction: driven entirely by a monotonically advancing pin point,
//     not by recency. Ops with index >= the pin point are never evicted;
//     neither are ops still awaiting their durability callback. This is
//     deliberately not an LRU.
//
//   - Limits: a per-instance hard limit plus a process-wide limit shared
//     through the memtracker registry. Both are checked before an append
//     mutates anything; failing either rejects the append with
//     ErrResourceExhausted instead of evicting protected data.
//
//   - Write-through: Append makes the op visible to readers immediately
//     and hands it to the wal; the caller's completion fires when
//     durability is known. A failed write stays in the in-flight set so
//     it can never be evicted and silently lost.
//
//   - Backfill: a read below the resident range starts a single
//     outstanding disk read; concurrent misses queue behind it. Fetched
//     ops are folded back into the store under the same limits, never
//     overwriting resident entries, and queued readers are re-run.
//
//   - Concurrency: one mutex guards store, in-flight set, pin point,
//     accounting, and backfill state as a unit; the invariants between
//     them are cross-cutting, so finer locking is rejected by design.
//     Hit/miss counters are padded atomics read without the lock.
//
// # Basic usage
//
//	log, _ := wal.Open(dir, wal.Options{})
//	c := cache.New(cache.Options{Name: "shard-1", Log: log})
//	_ = c.Init(op.ID{Index: 5, Term: 1})
//
//	_ = c.Append(op.New(6, 1, payload), func(err error) {
//	    // op 6 is durable (or failed)
//	})
//
//	res, err := c.ReadOps(5, 1<<20)
//	switch {
//	case err == nil:
//	    // res.Ops holds ops 6.. up to 1 MiB
//	case errors.Is(err, cache.ErrIncomplete):
//	    // backfill started; retry, or use ReadOpsAsync
//	}
//
//	c.SetPinnedOp(7) // ops below 7 may now be evicted
//
// Exporting metrics works like every other adapter-based hook:
//
//	m := prom.New(nil, "logcache", "shard1", nil)
//	c := cache.New(cache.Options{Log: log, Metrics: m})
package cache
