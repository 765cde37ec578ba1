// Package singleflight coalesces concurrent calls for the same key so the
// underlying work runs at most once while every caller receives the result.
//
// This variant is tailored to log-scan coalescing: callers are completion
// goroutines that must be answered exactly once, so there is no caller-side
// cancellation. The leader for a key runs fn; followers block until the
// leader publishes. Publishing (val, err) happens-before close(done), so
// reads after <-done observe the final values.
package singleflight

import "sync"

// Group coalesces calls per key K producing V.
// The zero value is ready to use.
type Group[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]*call[V]
}

type call[V any] struct {
	done chan struct{} // closed when val/err are published
	val  V
	err  error
}

// Do runs fn once for the given key. Concurrent calls with the same key
// block and then share the leader's result. Results are not cached: once
// the flight lands, a later Do for the same key runs fn again.
func (g *Group[K, V]) Do(key K, fn func() (V, error)) (V, error) {
	g.mu.Lock()
	if g.m == nil {
		g.m = make(map[K]*call[V])
	}
	if c, ok := g.m[key]; ok {
		g.mu.Unlock()
		<-c.done
		return c.val, c.err
	}

	// We are the leader for this key.
	c := &call[V]{done: make(chan struct{})}
	g.m[key] = c
	g.mu.Unlock()

	// Execute fn outside the lock.
	c.val, c.err = fn()
	close(c.done)

	g.mu.Lock()
	delete(g.m, key)
	g.mu.Unlock()

	return c.val, c.err
}
