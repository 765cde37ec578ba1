package cache

import (
	"github.com/google/btree"

	"github.com/IvanBrykalov/logcache/op"
)

// btreeDegree is a modest branching factor; entry counts are small (the
// store holds a window of recent ops, not the whole log).
const btreeDegree = 16

// store is the ordered index → op mapping plus the id immediately before
// its lowest entry. Its key set is always a contiguous range (or empty):
// appends extend it at the top, eviction trims a prefix at the bottom,
// backfill extends it downward without leaving holes.
//
// Not safe for concurrent use; the cache's mutex guards it.
type store struct {
	tree *btree.BTreeG[*op.Op]

	// preceding is the id just before the lowest entry. When the store
	// is empty it equals the last known position, so reads can still be
	// validated against it.
	preceding op.ID
}

func newStore() *store {
	return &store{
		tree: btree.NewG(btreeDegree, func(a, b *op.Op) bool { return a.Index < b.Index }),
	}
}

func (s *store) len() int { return s.tree.Len() }

func (s *store) get(index uint64) (*op.Op, bool) {
	return s.tree.Get(&op.Op{Index: index})
}

func (s *store) min() (*op.Op, bool) { return s.tree.Min() }

// insert adds o; the caller maintains the contiguity invariant.
func (s *store) insert(o *op.Op) {
	s.tree.ReplaceOrInsert(o)
}

// deleteMin removes and returns the lowest entry, advancing preceding
// over it.
func (s *store) deleteMin() (*op.Op, bool) {
	o, ok := s.tree.DeleteMin()
	if ok {
		s.preceding = o.ID()
	}
	return o, ok
}

// ascendAfter visits entries with index > afterIndex in order until fn
// returns false.
func (s *store) ascendAfter(afterIndex uint64, fn func(*op.Op) bool) {
	s.tree.AscendGreaterOrEqual(&op.Op{Index: afterIndex + 1}, fn)
}

// clear drops every entry without touching preceding.
func (s *store) clear() {
	s.tree.Clear(false)
}
