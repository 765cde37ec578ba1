package cache_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/logcache/cache"
	"github.com/IvanBrykalov/logcache/op"
	"github.com/IvanBrykalov/logcache/wal"
)

func TestCloseResolvesInflightAppends(t *testing.T) {
	t.Parallel()
	log := newManualLog()
	c := cache.New(cache.Options{Name: "close", Log: log, GlobalTracker: t.Name()})
	require.NoError(t, c.Init(op.ID{Index: 0, Term: 1}))

	errs := make([]error, 0, 3)
	fired := 0
	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, c.Append(testOp(t, i, 1, 100), func(err error) {
			fired++
			errs = append(errs, err)
		}))
	}

	require.NoError(t, c.Close())
	require.Equal(t, 3, fired)
	for _, err := range errs {
		require.ErrorIs(t, err, cache.ErrClosed)
	}
	require.Equal(t, 0, c.Len())
	require.Equal(t, int64(0), c.BytesUsed())

	// A late wal completion must be dropped, not delivered twice.
	log.fireAppend(0, nil)
	require.Equal(t, 3, fired)

	// Close is idempotent.
	require.NoError(t, c.Close())
}

func TestCloseWaitsForBackfill(t *testing.T) {
	t.Parallel()
	log := newManualLog()
	c := cache.New(cache.Options{Name: "closewait", Log: log, GlobalTracker: t.Name()})
	require.NoError(t, c.Init(op.ID{Index: 5, Term: 1}))
	require.NoError(t, c.Append(testOp(t, 6, 1, 100), func(error) {}))
	log.fireAppend(0, nil)

	var got ReadCapture
	c.ReadOpsAsync(2, 1<<20, got.done())
	require.Equal(t, 1, log.readCount())

	closed := make(chan error, 1)
	go func() { closed <- c.Close() }()

	// Close must not return while the disk read is outstanding.
	select {
	case <-closed:
		t.Fatal("Close returned with a backfill in flight")
	case <-time.After(50 * time.Millisecond):
	}

	log.fireRead(0, []*op.Op{testOp(t, 3, 1, 100)}, nil)
	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return after the backfill completed")
	}

	// The queued reader was answered, with the shutdown error.
	got.mu.Lock()
	defer got.mu.Unlock()
	require.True(t, got.fired)
	require.ErrorIs(t, got.err, cache.ErrClosed)
}

func TestCloseReleasesGlobalBudget(t *testing.T) {
	t.Parallel()
	tracker := t.Name()
	a := cache.New(cache.Options{
		Name: "a", Log: wal.NewMemory(wal.MemoryOptions{Inline: true}),
		GlobalTracker: tracker, GlobalHardLimitBytes: 300,
	})
	require.NoError(t, a.Init(op.ID{Index: 0, Term: 1}))
	appendN(t, a, 1, 3, 1, 100)
	require.NoError(t, a.Close())

	// The namespace was torn down with its last holder; a new cache
	// starts from a clean budget.
	b := newTestCache(t, nil, cache.Options{
		Name: "b", GlobalTracker: tracker, GlobalHardLimitBytes: 300,
	})
	require.NoError(t, b.Init(op.ID{Index: 0, Term: 1}))
	appendN(t, b, 1, 3, 1, 100)
	require.Equal(t, int64(300), b.BytesUsed())
}
