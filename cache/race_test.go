package cache_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/logcache/cache"
	"github.com/IvanBrykalov/logcache/op"
	"github.com/IvanBrykalov/logcache/wal"
)

// One appender, several readers, one pin advancer, all hammering a cache
// backed by an asynchronous in-memory log. Run with -race.
func TestConcurrentAppendReadPin(t *testing.T) {
	t.Parallel()
	const (
		total   = 2000
		opBytes = 128
		readers = 4
	)

	mem := wal.NewMemory(wal.MemoryOptions{})
	c := cache.New(cache.Options{
		Name:           "race",
		Log:            mem,
		HardLimitBytes: total * opBytes, // roomy: rejections are not the point here
		GlobalTracker:  t.Name(),
	})
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.Init(op.ID{Index: 0, Term: 1}))

	var (
		appended atomic.Uint64 // highest index accepted by Append
		durable  atomic.Int64  // completed durability callbacks
		stop     atomic.Bool
	)

	var g errgroup.Group
	g.Go(func() error {
		for i := uint64(1); i <= total; i++ {
			o := op.New(i, 1, make([]byte, opBytes-20))
			if err := c.Append(o, func(err error) {
				if err == nil {
					durable.Add(1)
				}
			}); err != nil {
				return err
			}
			appended.Store(i)
		}
		stop.Store(true)
		return nil
	})

	for r := 0; r < readers; r++ {
		g.Go(func() error {
			for !stop.Load() {
				after := appended.Load() / 2
				res, err := c.ReadOps(after, 16<<10)
				if err != nil {
					// The range below the pin may already be gone, and
					// a miss may be filling in from the log.
					if err == cache.ErrNotFound || err == cache.ErrIncomplete {
						continue
					}
					return err
				}
				// Whatever came back is ordered and gap-free.
				want := after + 1
				for _, o := range res.Ops {
					if o.Index != want {
						t.Errorf("gap in read: got index %d, want %d", o.Index, want)
					}
					want++
				}
			}
			return nil
		})
	}

	g.Go(func() error {
		for !stop.Load() {
			c.SetPinnedOp(appended.Load() / 2)
		}
		return nil
	})

	require.NoError(t, g.Wait())

	// Quiesce: every append eventually reports durable.
	require.Eventually(t, func() bool {
		return durable.Load() == total
	}, 5*time.Second, 10*time.Millisecond)

	// Quiescent accounting: resident bytes match resident ops exactly.
	require.Equal(t, int64(c.Len())*opBytes, c.BytesUsed())
}
