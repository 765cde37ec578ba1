package cache

import (
	"io"

	"github.com/IvanBrykalov/logcache/op"
)

// AppendDone receives the durability result for an op accepted by Append.
// It fires exactly once, possibly after Close (then with ErrClosed).
type AppendDone func(err error)

// ReadResult is a successful ReadOps outcome: ops in index order starting
// just after the requested position, plus the id of the position itself.
type ReadResult struct {
	Ops []*op.Op
	// Preceding identifies the requested after-index position. Its Term
	// is zero when the cache no longer knows it (e.g. the position sits
	// just below a freshly backfilled range).
	Preceding op.ID
}

// ReadDone receives the outcome of ReadOpsAsync once it resolves.
type ReadDone func(res ReadResult, err error)

// Cache is a write-through, memory-bounded buffer in front of a durable
// replication log. All methods are safe for concurrent use; Append is
// additionally expected to be called by one logical writer at a time.
//
// Returned ops are owned by the cache and shared with the caller: they
// stay valid at least until the pin point advances past them, and callers
// must treat them as immutable.
type Cache interface {
	// Init establishes the op immediately preceding the first future
	// append. It must be called exactly once, on an empty cache.
	Init(preceding op.ID) error

	// Append accepts the op whose index directly follows the current
	// tail, makes it immediately visible to readers, and hands it to the
	// durable log; done fires when durability is known. A nil return
	// means ownership was taken; on error no state changed.
	Append(o *op.Op, done AppendDone) error

	// ReadOps returns ops following afterIndex, bounded by maxBytes
	// (a single op may exceed maxBytes rather than return nothing).
	// afterIndex must be pinned by the caller. ErrIncomplete means a
	// disk backfill was started; retry, or use ReadOpsAsync.
	ReadOps(afterIndex uint64, maxBytes int64) (ReadResult, error)

	// ReadOpsAsync behaves like ReadOps but, instead of ErrIncomplete,
	// delivers the result through done once the backfill lands.
	// done runs on the cache's completion context; keep it light.
	ReadOpsAsync(afterIndex uint64, maxBytes int64, done ReadDone)

	// HasOpIndex reports whether the op at index is resident.
	HasOpIndex(index uint64) bool

	// SetPinnedOp guarantees ops with index >= index stay resident.
	// It never regresses the pin point and triggers eviction below it.
	SetPinnedOp(index uint64)

	// BytesUsed returns the resident footprint of this instance.
	BytesUsed() int64

	// Len returns the number of resident ops.
	Len() int

	// StatsString renders a one-line summary of the cache state.
	StatsString() string

	// DumpToStrings renders a bounded, consistent snapshot of the cache
	// contents for diagnostics.
	DumpToStrings() []string

	// DumpToLog writes the DumpToStrings snapshot to the logger.
	DumpToLog()

	// DumpToHTML writes the snapshot as an HTML table.
	DumpToHTML(w io.Writer) error

	// Close is terminal: it drains any outstanding backfill, resolves
	// yet-unfired append callbacks with ErrClosed, releases all owned
	// ops, and detaches from the global tracker.
	Close() error
}
