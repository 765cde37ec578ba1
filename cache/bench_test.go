package cache_test

import (
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/IvanBrykalov/logcache/cache"
	"github.com/IvanBrykalov/logcache/op"
	"github.com/IvanBrykalov/logcache/wal"
)

// BenchmarkAppend measures the single-writer append hot path against an
// inline in-memory log, advancing the pin point periodically so eviction
// keeps the footprint steady (the common production pattern).
func BenchmarkAppend(b *testing.B) {
	c := cache.New(cache.Options{
		Name:           "bench-append",
		Log:            wal.NewMemory(wal.MemoryOptions{Inline: true}),
		HardLimitBytes: 64 << 20,
		GlobalTracker:  "bench-append",
	})
	b.Cleanup(func() { _ = c.Close() })
	if err := c.Init(op.ID{Index: 0, Term: 1}); err != nil {
		b.Fatal(err)
	}

	data := make([]byte, 236) // 256-byte ops
	noop := func(error) {}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		idx := uint64(i + 1)
		if err := c.Append(op.New(idx, 1, data), noop); err != nil {
			b.Fatal(err)
		}
		if idx%1024 == 0 {
			c.SetPinnedOp(idx - 512)
		}
	}
}

// BenchmarkReadOpsHit measures concurrent resident reads against a warm
// cache (RunParallel spawns GOMAXPROCS goroutines).
func BenchmarkReadOpsHit(b *testing.B) {
	const resident = 10_000

	c := cache.New(cache.Options{
		Name:           "bench-read",
		Log:            wal.NewMemory(wal.MemoryOptions{Inline: true}),
		HardLimitBytes: 64 << 20,
		GlobalTracker:  "bench-read",
	})
	b.Cleanup(func() { _ = c.Close() })
	if err := c.Init(op.ID{Index: 0, Term: 1}); err != nil {
		b.Fatal(err)
	}
	data := make([]byte, 236)
	for i := uint64(1); i <= resident; i++ {
		if err := c.Append(op.New(i, 1, data), func(error) {}); err != nil {
			b.Fatal(err)
		}
	}

	b.ReportAllocs()
	b.ResetTimer()

	var seed int64 = 1
	b.RunParallel(func(pb *testing.PB) {
		// Independent RNG stream for each worker.
		r := rand.New(rand.NewSource(atomic.AddInt64(&seed, 1)))
		for pb.Next() {
			after := uint64(r.Intn(resident))
			if _, err := c.ReadOps(after, 16<<10); err != nil {
				b.Error(err)
				return
			}
		}
	})
}
