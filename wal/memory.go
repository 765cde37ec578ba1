package wal

import (
	"sync"

	"github.com/IvanBrykalov/logcache/op"
)

// MemoryOptions configures a Memory log.
type MemoryOptions struct {
	// Inline delivers completions synchronously inside the calling
	// goroutine instead of a spawned one. Useful for deterministic tests.
	Inline bool

	// AppendErr, when non-nil, is consulted per append; a non-nil return
	// is delivered as the append's durability result (fault injection).
	AppendErr func(o *op.Op) error

	// ReadErr, when non-nil, is consulted per read the same way.
	ReadErr func(afterIndex uint64) error
}

// Memory is an in-memory Log. It keeps every appended op and serves reads
// from the full history, which makes it a convenient stand-in for a disk
// log in examples and tests.
type Memory struct {
	opt MemoryOptions

	mu     sync.Mutex
	ops    []*op.Op
	closed bool
	wg     sync.WaitGroup

	// seqMu guards last, the tail of the completion chain. Each dispatched
	// completion waits for its predecessor before running, so completions
	// are delivered in call order even though each runs on its own
	// goroutine.
	seqMu sync.Mutex
	last  chan struct{}
}

var _ Log = (*Memory)(nil)

// NewMemory creates an in-memory log.
func NewMemory(opt MemoryOptions) *Memory {
	return &Memory{opt: opt}
}

// Preload seeds history without going through AppendAsync, e.g. entries
// that predate the cache's Init point.
func (m *Memory) Preload(ops ...*op.Op) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, ops...)
}

// LastIndex returns the index of the newest stored op, or 0 when empty.
func (m *Memory) LastIndex() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.ops) == 0 {
		return 0
	}
	return m.ops[len(m.ops)-1].Index
}

// AppendAsync implements Log.
func (m *Memory) AppendAsync(o *op.Op, done AppendDone) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.deliver(func() { done(ErrClosed) })
		return
	}
	if hook := m.opt.AppendErr; hook != nil {
		if err := hook(o); err != nil {
			m.mu.Unlock()
			m.deliver(func() { done(err) })
			return
		}
	}
	if n := len(m.ops); n > 0 && o.Index != m.ops[n-1].Index+1 {
		m.mu.Unlock()
		m.deliver(func() { done(ErrOutOfOrder) })
		return
	}
	m.ops = append(m.ops, o)
	m.mu.Unlock()
	m.deliver(func() { done(nil) })
}

// ReadAsync implements Log.
func (m *Memory) ReadAsync(afterIndex uint64, done ReadDone) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.deliver(func() { done(nil, ErrClosed) })
		return
	}
	if hook := m.opt.ReadErr; hook != nil {
		if err := hook(afterIndex); err != nil {
			m.mu.Unlock()
			m.deliver(func() { done(nil, err) })
			return
		}
	}
	var out []*op.Op
	for _, o := range m.ops {
		if o.Index > afterIndex {
			out = append(out, o)
		}
	}
	m.mu.Unlock()
	m.deliver(func() { done(out, nil) })
}

// Close implements Log. It waits for dispatched completions to land.
func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.wg.Wait()
	return nil
}

func (m *Memory) deliver(fn func()) {
	if m.opt.Inline {
		fn()
		return
	}
	m.seqMu.Lock()
	prev := m.last
	next := make(chan struct{})
	m.last = next
	m.seqMu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(next)
		if prev != nil {
			<-prev
		}
		fn()
	}()
}
