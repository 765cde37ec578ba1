package wal

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/logcache/op"
)

func TestMemory_AppendRead(t *testing.T) {
	t.Parallel()

	m := NewMemory(MemoryOptions{Inline: true})
	defer m.Close()

	for i := uint64(1); i <= 5; i++ {
		var got error = errors.New("unset")
		m.AppendAsync(op.New(i, 1, []byte{byte(i)}), func(err error) { got = err })
		require.NoError(t, got)
	}
	require.Equal(t, uint64(5), m.LastIndex())

	var ops []*op.Op
	m.ReadAsync(2, func(res []*op.Op, err error) {
		require.NoError(t, err)
		ops = res
	})
	require.Len(t, ops, 3)
	require.Equal(t, uint64(3), ops[0].Index)
	require.Equal(t, uint64(5), ops[2].Index)
}

func TestMemory_OutOfOrderRejected(t *testing.T) {
	t.Parallel()

	m := NewMemory(MemoryOptions{Inline: true})
	defer m.Close()

	m.AppendAsync(op.New(1, 1, nil), func(error) {})
	var got error
	m.AppendAsync(op.New(3, 1, nil), func(err error) { got = err })
	require.ErrorIs(t, got, ErrOutOfOrder)
	require.Equal(t, uint64(1), m.LastIndex())
}

func TestMemory_FaultInjection(t *testing.T) {
	t.Parallel()

	boom := errors.New("disk on fire")
	m := NewMemory(MemoryOptions{
		Inline:    true,
		AppendErr: func(o *op.Op) error { return boom },
		ReadErr:   func(after uint64) error { return boom },
	})
	defer m.Close()

	var aerr, rerr error
	m.AppendAsync(op.New(1, 1, nil), func(err error) { aerr = err })
	m.ReadAsync(0, func(_ []*op.Op, err error) { rerr = err })
	require.ErrorIs(t, aerr, boom)
	require.ErrorIs(t, rerr, boom)
}

func TestMemory_CompletionOrder(t *testing.T) {
	t.Parallel()

	m := NewMemory(MemoryOptions{})

	const n = 100
	var (
		mu    sync.Mutex
		order []uint64
		errs  []error
	)
	for i := uint64(1); i <= n; i++ {
		idx := i
		m.AppendAsync(op.New(idx, 1, nil), func(err error) {
			mu.Lock()
			order = append(order, idx)
			errs = append(errs, err)
			mu.Unlock()
		})
	}
	require.NoError(t, m.Close())

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Len(t, order, n)
	for i, idx := range order {
		require.Equal(t, uint64(i+1), idx)
	}
}

func TestMemory_ClosedDeliversErrClosed(t *testing.T) {
	t.Parallel()

	m := NewMemory(MemoryOptions{Inline: true})
	require.NoError(t, m.Close())

	var aerr, rerr error
	m.AppendAsync(op.New(1, 1, nil), func(err error) { aerr = err })
	m.ReadAsync(0, func(_ []*op.Op, err error) { rerr = err })
	require.ErrorIs(t, aerr, ErrClosed)
	require.ErrorIs(t, rerr, ErrClosed)
}
