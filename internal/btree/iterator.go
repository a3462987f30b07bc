package btree

import (
	"ferndb/internal/base"
	"ferndb/internal/pool"
)

// Iterator walks the leaf chain in ascending key order. It holds a
// read guard on its current leaf only; advancing past a leaf drops
// that guard before the next leaf's is taken, so iterators never
// stall writers higher up the tree. Key and Value slices alias the
// latched page and are valid until the next Next or Close.
type Iterator struct {
	tree  *BPlusTree
	guard *pool.ReadGuard
	slot  int
}

// End returns the exhausted sentinel iterator.
func (t *BPlusTree) End() *Iterator {
	return &Iterator{tree: t}
}

// Begin positions an iterator at the smallest key in the tree. An
// empty tree yields End.
func (t *BPlusTree) Begin() (*Iterator, error) {
	guard, err := t.descendFirst(nil)
	if err != nil {
		return nil, err
	}
	it := &Iterator{tree: t, guard: guard}
	return it, it.settle()
}

// BeginAt positions an iterator at the smallest key >= key.
func (t *BPlusTree) BeginAt(key []byte) (*Iterator, error) {
	guard, err := t.descendFirst(key)
	if err != nil {
		return nil, err
	}
	it := &Iterator{tree: t, guard: guard}
	if guard != nil {
		it.slot = t.searchInsert(t.node(guard.Page()), key)
	}
	return it, it.settle()
}

// descendFirst read-crabs to the leaf covering key, or the leftmost
// leaf when key is nil. Returns a nil guard for an empty tree.
func (t *BPlusTree) descendFirst(key []byte) (*pool.ReadGuard, error) {
	head, err := t.pool.ReadPage(t.headerPageID)
	if err != nil {
		return nil, err
	}
	rootID := head.Page().TreeRoot()
	head.Drop()

	if rootID == base.InvalidPageID {
		return nil, nil
	}

	guard, err := t.pool.ReadPage(rootID)
	if err != nil {
		return nil, err
	}
	n := t.node(guard.Page())
	for !n.IsLeaf() {
		slot := 0
		if key != nil {
			slot = t.searchChild(n, key)
		}
		child, err := t.pool.ReadPage(n.ChildAt(slot))
		if err != nil {
			guard.Drop()
			return nil, err
		}
		guard.Drop()
		guard = child
		n = t.node(guard.Page())
	}
	return guard, nil
}

// Valid reports whether the iterator is positioned on an entry.
func (it *Iterator) Valid() bool { return it.guard != nil }

// Key returns the current key. Valid only while the iterator stays on
// this entry.
func (it *Iterator) Key() []byte {
	return it.tree.node(it.guard.Page()).LeafKeyAt(it.slot)
}

// Value returns the current value, same lifetime as Key.
func (it *Iterator) Value() []byte {
	return it.tree.node(it.guard.Page()).LeafValueAt(it.slot)
}

// Next advances to the following entry, crossing to the next leaf via
// the sibling link when the current one is exhausted.
func (it *Iterator) Next() error {
	if it.guard == nil {
		return nil
	}
	it.slot++
	return it.settle()
}

// settle ensures the iterator sits on a live slot, hopping leaves
// until one has entries or the chain ends.
func (it *Iterator) settle() error {
	for it.guard != nil {
		n := it.tree.node(it.guard.Page())
		if it.slot < n.Size() {
			return nil
		}
		next := n.NextLeaf()
		it.guard.Drop()
		it.guard = nil
		if next == base.InvalidPageID {
			return nil
		}
		guard, err := it.tree.pool.ReadPage(next)
		if err != nil {
			return err
		}
		it.guard = guard
		it.slot = 0
	}
	return nil
}

// Close releases the iterator's leaf guard. Idempotent.
func (it *Iterator) Close() {
	if it.guard != nil {
		it.guard.Drop()
		it.guard = nil
	}
}
