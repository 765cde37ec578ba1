package memtracker

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegister_SharedAggregate(t *testing.T) {
	t.Parallel()

	a := Register("test-shared", 1000)
	b := Register("test-shared", 9999) // limit ignored: aggregate exists
	defer a.Unregister()
	defer b.Unregister()

	require.Same(t, a, b)
	require.Equal(t, int64(1000), b.LimitBytes())

	require.True(t, a.TryConsume(600))
	require.Equal(t, int64(600), b.BytesUsed())
}

func TestRegister_LastHolderDropsEntry(t *testing.T) {
	t.Parallel()

	a := Register("test-lifetime", 100)
	require.True(t, a.TryConsume(50))
	a.Unregister()

	// Entry was destroyed with its last holder; a new registration
	// starts from a clean budget.
	b := Register("test-lifetime", 100)
	defer b.Unregister()
	require.Equal(t, int64(0), b.BytesUsed())
}

func TestTryConsume_HardLimit(t *testing.T) {
	t.Parallel()

	tr := Register("test-limit", 100)
	defer tr.Unregister()

	require.True(t, tr.TryConsume(60))
	require.False(t, tr.TryConsume(41)) // would exceed
	require.True(t, tr.TryConsume(40))  // exact fit
	require.False(t, tr.TryConsume(1))

	tr.Release(40)
	require.True(t, tr.TryConsume(1))
}

func TestTryConsume_UnlimitedAndClamp(t *testing.T) {
	t.Parallel()

	tr := Register("test-unlimited", 0)
	defer tr.Unregister()

	require.True(t, tr.TryConsume(1<<40))
	tr.Release(1 << 41) // over-release clamps at zero
	require.Equal(t, int64(0), tr.BytesUsed())
}

// Concurrent consumers must never push the aggregate past the limit.
func TestTryConsume_NeverOvershoots(t *testing.T) {
	t.Parallel()

	const limit = 1000
	tr := Register("test-race", limit)
	defer tr.Unregister()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10_000; j++ {
				if tr.TryConsume(3) {
					if tr.BytesUsed() > limit {
						t.Error("limit overshot")
					}
					tr.Release(3)
				}
			}
		}()
	}
	wg.Wait()
}
