// Package btree implements a disk-resident concurrent B+Tree index on
// top of a buffer pool. Keys are fixed-width byte strings ordered by a
// caller-supplied comparator; values are opaque fixed-width payloads,
// stored and returned untouched.
//
// All persistent state lives in pool-brokered pages. Readers descend
// with latch coupling, taking each child's latch before releasing its
// parent's, so at most two page latches are held at once.
// Writers descend pessimistically, stacking write latches in the
// operation context and releasing ancestors as soon as the current
// node is proven safe. Every writer latches the tree header page
// first, which both serializes root changes and makes the latch order
// deterministic root-to-leaf, so the protocol cannot deadlock.
package btree

import (
	"bytes"

	"ferndb/internal/base"
	"ferndb/internal/pool"
)

// Compare is a total order over keys: negative if a < b, zero if
// equal, positive if a > b.
type Compare func(a, b []byte) int

// BPlusTree is the index handle. It carries only configuration; all
// state is in pages. Safe for concurrent use.
type BPlusTree struct {
	name         string
	headerPageID base.PageID
	pool         *pool.Pool
	cmp          Compare
	lay          base.Layout
	log          base.Logger
}

// Config collects the construction parameters of a tree.
type Config struct {
	Name         string
	HeaderPageID base.PageID
	Pool         *pool.Pool
	Compare      Compare
	Layout       base.Layout
	Logger       base.Logger
}

func newTree(cfg Config) *BPlusTree {
	cmp := cfg.Compare
	if cmp == nil {
		cmp = bytes.Compare
	}
	log := cfg.Logger
	if log == nil {
		log = base.DiscardLogger{}
	}
	return &BPlusTree{
		name:         cfg.Name,
		headerPageID: cfg.HeaderPageID,
		pool:         cfg.Pool,
		cmp:          cmp,
		lay:          cfg.Layout,
		log:          log,
	}
}

// New constructs a tree over a fresh header page, resetting its root
// pointer to invalid.
func New(cfg Config) (*BPlusTree, error) {
	if err := cfg.Layout.Validate(); err != nil {
		return nil, err
	}
	t := newTree(cfg)

	guard, err := t.pool.WritePage(t.headerPageID)
	if err != nil {
		return nil, err
	}
	guard.Page().SetTreeRoot(base.InvalidPageID)
	guard.Drop()
	return t, nil
}

// Attach constructs a tree over an existing header page, leaving the
// persisted root pointer alone.
func Attach(cfg Config) (*BPlusTree, error) {
	if err := cfg.Layout.Validate(); err != nil {
		return nil, err
	}
	return newTree(cfg), nil
}

// Layout returns the tree's slot geometry.
func (t *BPlusTree) Layout() base.Layout { return t.lay }

func (t *BPlusTree) node(page *base.Page) base.Node {
	return base.Node{Page: page, Lay: t.lay}
}

// minLeafSize is the fill floor of a non-root leaf.
func (t *BPlusTree) minLeafSize() int { return (t.lay.LeafMax + 1) / 2 }

// minInternalSize is the fill floor of a non-root internal node,
// counted in child pointers.
func (t *BPlusTree) minInternalSize() int { return (t.lay.InternalMax + 1) / 2 }

func (t *BPlusTree) minSize(n base.Node) int {
	if n.IsLeaf() {
		return t.minLeafSize()
	}
	return t.minInternalSize()
}

// IsEmpty reports whether the tree holds no keys.
func (t *BPlusTree) IsEmpty() (bool, error) {
	guard, err := t.pool.ReadPage(t.headerPageID)
	if err != nil {
		return false, err
	}
	defer guard.Drop()
	return guard.Page().TreeRoot() == base.InvalidPageID, nil
}

// GetRootPageID returns the current root page id, or InvalidPageID for
// an empty tree.
func (t *BPlusTree) GetRootPageID() (base.PageID, error) {
	guard, err := t.pool.ReadPage(t.headerPageID)
	if err != nil {
		return base.InvalidPageID, err
	}
	defer guard.Drop()
	return guard.Page().TreeRoot(), nil
}

// searchChild returns the slot of the child whose subtree covers key:
// the unique i with K[i] <= key < K[i+1], taking K[0] as minus
// infinity.
func (t *BPlusTree) searchChild(n base.Node, key []byte) int {
	// First separator greater than key; the child sits one slot left.
	lo, hi := 1, n.Size()
	for lo < hi {
		mid := (lo + hi) / 2
		if t.cmp(n.KeyAt(mid), key) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo - 1
}

// searchInsert returns the first leaf slot whose key is >= key, or
// Size if none.
func (t *BPlusTree) searchInsert(n base.Node, key []byte) int {
	lo, hi := 0, n.Size()
	for lo < hi {
		mid := (lo + hi) / 2
		if t.cmp(n.LeafKeyAt(mid), key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// searchLeaf returns the leaf slot holding key, or -1.
func (t *BPlusTree) searchLeaf(n base.Node, key []byte) int {
	i := t.searchInsert(n, key)
	if i < n.Size() && t.cmp(n.LeafKeyAt(i), key) == 0 {
		return i
	}
	return -1
}

// GetValue looks up key and returns a copy of its value. Readers crab:
// the child latch is taken before the parent latch is released, so at
// most two latches are held, and only across that hand-off.
func (t *BPlusTree) GetValue(key []byte) ([]byte, bool, error) {
	head, err := t.pool.ReadPage(t.headerPageID)
	if err != nil {
		return nil, false, err
	}
	rootID := head.Page().TreeRoot()
	head.Drop()

	if rootID == base.InvalidPageID {
		return nil, false, nil
	}

	guard, err := t.pool.ReadPage(rootID)
	if err != nil {
		return nil, false, err
	}
	n := t.node(guard.Page())
	for !n.IsLeaf() {
		childID := n.ChildAt(t.searchChild(n, key))
		child, err := t.pool.ReadPage(childID)
		if err != nil {
			guard.Drop()
			return nil, false, err
		}
		guard.Drop()
		guard = child
		n = t.node(guard.Page())
	}
	defer guard.Drop()

	i := t.searchLeaf(n, key)
	if i < 0 {
		return nil, false, nil
	}
	return bytes.Clone(n.LeafValueAt(i)), true, nil
}
