package cache

import "errors"

var (
	// ErrOutOfOrder is returned by Append when the op's index does not
	// directly follow the current tail. This is a caller bug: the cache
	// never retries or reorders.
	ErrOutOfOrder = errors.New("logcache: append does not follow the current tail")

	// ErrResourceExhausted is returned by Append when inserting the op
	// would exceed the local or the global memory hard limit. The append
	// took no ownership and changed no state; callers must apply
	// backpressure rather than retry.
	ErrResourceExhausted = errors.New("logcache: memory hard limit reached")

	// ErrIncomplete signals that the requested ops are not in memory and
	// a disk backfill has been started. Like io.EOF it is a flow signal,
	// not a failure: retry later, or use ReadOpsAsync to be called back.
	ErrIncomplete = errors.New("logcache: ops not yet loaded")

	// ErrNotFound is returned by ReadOps when the requested position is
	// below the pin point and therefore not recoverable through the
	// cache; the caller must fall back to an external recovery path.
	ErrNotFound = errors.New("logcache: ops not recoverable through the cache")

	// ErrClosed is returned for any operation issued at or after Close.
	ErrClosed = errors.New("logcache: cache is closed")

	// ErrAlreadyInitialized is returned by a second Init call.
	ErrAlreadyInitialized = errors.New("logcache: cache already initialized")

	// ErrNotInitialized is returned when Append or ReadOps runs before Init.
	ErrNotInitialized = errors.New("logcache: cache not initialized")
)
