// Package wal provides the durable append-only log behind the cache: the
// asynchronous contract the cache consumes, an in-memory implementation for
// tests and examples, and a file-backed segmented implementation.
//
// Completion contract
//
// Both AppendAsync and ReadAsync deliver their completion exactly once, on
// the log's own execution context, possibly after the caller has started
// shutting down. Implementations never call a completion twice and never
// drop one: after Close, queued work is resolved with ErrClosed.
package wal

import (
	"errors"

	"github.com/IvanBrykalov/logcache/op"
)

var (
	// ErrClosed is delivered to completions queued at or after Close.
	ErrClosed = errors.New("wal: closed")

	// ErrCorrupt indicates a record that fails framing or checksum validation.
	ErrCorrupt = errors.New("wal: corrupt record")

	// ErrOutOfOrder indicates an append whose index does not follow the tail.
	ErrOutOfOrder = errors.New("wal: out-of-order append")
)

// AppendDone receives the durability result of a single append.
type AppendDone func(err error)

// ReadDone receives the result of an asynchronous read. On success ops
// holds the operations found after the requested index, in index order.
type ReadDone func(ops []*op.Op, err error)

// Log is the durable log as seen by the cache.
type Log interface {
	// AppendAsync queues o for durable append and fires done when the
	// write has been made durable (or failed). Ordering of completions
	// matches ordering of calls.
	AppendAsync(o *op.Op, done AppendDone)

	// ReadAsync fetches operations with index > afterIndex and delivers
	// them via done. The amount returned per call is implementation
	// bounded; callers re-issue to page through a long range.
	ReadAsync(afterIndex uint64, done ReadDone)

	// Close stops the log. Completions still in the queue are resolved
	// (with their real result or ErrClosed) before Close returns.
	Close() error
}
