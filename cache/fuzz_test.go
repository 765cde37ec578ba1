//go:build go1.18

package cache_test

import (
	"testing"

	"github.com/IvanBrykalov/logcache/cache"
	"github.com/IvanBrykalov/logcache/op"
	"github.com/IvanBrykalov/logcache/wal"
)

// Fuzz the read contract under arbitrary (pin, afterIndex, maxBytes)
// against a fixed resident range: no panics, no gaps, never past the
// byte budget unless exactly one op came back, and eviction never
// touches anything at or above the pin point.
func FuzzReadOps(f *testing.F) {
	f.Add(uint64(0), uint64(0), int64(0))
	f.Add(uint64(8), uint64(5), int64(250))
	f.Add(uint64(15), uint64(10), int64(1))
	f.Add(uint64(1<<63), uint64(1<<63), int64(1<<62))

	f.Fuzz(func(t *testing.T, pin, afterIndex uint64, maxBytes int64) {
		mem := wal.NewMemory(wal.MemoryOptions{Inline: true})
		c := cache.New(cache.Options{
			Name:          "fuzz",
			Log:           mem,
			GlobalTracker: t.Name(),
		})
		t.Cleanup(func() { _ = c.Close() })
		if err := c.Init(op.ID{Index: 5, Term: 1}); err != nil {
			t.Fatal(err)
		}
		for i := uint64(6); i <= 15; i++ {
			err := c.Append(op.New(i, 1, make([]byte, 80)), func(error) {})
			if err != nil {
				t.Fatal(err)
			}
		}

		c.SetPinnedOp(pin)
		for i := pin; i >= 6 && i <= 15; i++ {
			if !c.HasOpIndex(i) {
				t.Fatalf("op %d at/above the pin point was evicted", i)
			}
		}

		res, err := c.ReadOps(afterIndex, maxBytes)
		if err != nil {
			// Only the two contract signals may surface here.
			if err != cache.ErrIncomplete && err != cache.ErrNotFound {
				t.Fatalf("unexpected error: %v", err)
			}
			return
		}

		var total int64
		want := afterIndex + 1
		for _, o := range res.Ops {
			if o.Index != want {
				t.Fatalf("gap: got index %d, want %d", o.Index, want)
			}
			want++
			total += o.ByteSize()
		}
		if len(res.Ops) > 1 && total > maxBytes {
			t.Fatalf("returned %d bytes over the %d budget", total, maxBytes)
		}
		if res.Preceding.Index != afterIndex {
			t.Fatalf("preceding index %d, want %d", res.Preceding.Index, afterIndex)
		}
	})
}
