package btree

import (
	"bytes"

	"ferndb/internal/base"
)

// Insert adds a unique key. It returns false without touching the tree
// when the key is already present.
//
// The write path is pessimistic: the header is latched first, then
// every node on the descent, none released until the leaf is reached.
// A leaf with a free slot proves the ancestors safe and they are
// dropped before the leaf is edited; a full leaf splits and the
// separator cascades up the still-latched path, creating a new root if
// the cascade consumes the whole stack.
func (t *BPlusTree) Insert(key, value []byte) (bool, error) {
	var ctx context
	defer ctx.releaseAll()

	head, err := t.pool.WritePage(t.headerPageID)
	if err != nil {
		return false, err
	}
	ctx.header = head
	ctx.rootID = head.Page().TreeRoot()

	if ctx.rootID == base.InvalidPageID {
		if err := t.startNewTree(&ctx, key, value); err != nil {
			return false, err
		}
		return true, nil
	}

	guard, err := t.pool.WritePage(ctx.rootID)
	if err != nil {
		return false, err
	}
	ctx.push(guard)
	n := t.node(guard.Page())
	for !n.IsLeaf() {
		i := t.searchChild(n, key)
		child, err := t.pool.WritePage(n.ChildAt(i))
		if err != nil {
			return false, err
		}
		ctx.pushIndexed(child, i)
		n = t.node(child.Page())
	}

	leaf := n
	pos := t.searchInsert(leaf, key)
	if pos < leaf.Size() && t.cmp(leaf.LeafKeyAt(pos), key) == 0 {
		return false, nil
	}

	if leaf.Size() < leaf.MaxSize() {
		// Safe leaf: nothing propagates, so the header and all
		// ancestors go first, freeing the upper tree for other writers.
		ctx.releaseAncestors()
		leaf.LeafShiftRight(pos)
		leaf.SetLeafAt(pos, key, value)
		leaf.SetSize(leaf.Size() + 1)
		return true, nil
	}

	promoted, rightID, err := t.splitLeaf(leaf, pos, key, value)
	if err != nil {
		return false, err
	}
	ctx.popRelease()

	// Walk the guard stack upward, inserting the separator. Each full
	// ancestor splits in turn and forwards a new separator.
	for len(ctx.writeSet) > 0 {
		pos := ctx.popIndex() + 1
		node := t.node(ctx.top().Page())

		if node.Size() < node.MaxSize() {
			node.InternalShiftRight(pos)
			node.SetKeyAt(pos, promoted)
			node.SetChildAt(pos, rightID)
			node.SetSize(node.Size() + 1)
			return true, nil
		}

		promoted, rightID, err = t.splitInternal(node, pos, promoted, rightID)
		if err != nil {
			return false, err
		}
		ctx.popRelease()
	}

	// The old root split: grow the tree by one level. The header write
	// latch is still held, so the root swap is atomic for everyone.
	newRootID, err := t.pool.NewPage()
	if err != nil {
		return false, err
	}
	guard, err = t.pool.WritePage(newRootID)
	if err != nil {
		return false, err
	}
	root := t.node(guard.Page())
	root.Init(base.InternalPageFlag, t.lay.InternalMax)
	root.SetSize(2)
	root.SetChildAt(0, ctx.rootID)
	root.SetKeyAt(1, promoted)
	root.SetChildAt(1, rightID)
	guard.Drop()

	ctx.header.Page().SetTreeRoot(newRootID)
	t.log.Info("root split", "index", t.name, "root", newRootID)
	return true, nil
}

// startNewTree seeds an empty tree with a single-entry leaf root. The
// caller holds the header write guard.
func (t *BPlusTree) startNewTree(ctx *context, key, value []byte) error {
	rootID, err := t.pool.NewPage()
	if err != nil {
		return err
	}
	guard, err := t.pool.WritePage(rootID)
	if err != nil {
		return err
	}
	root := t.node(guard.Page())
	root.Init(base.LeafPageFlag, t.lay.LeafMax)
	root.SetLeafAt(0, key, value)
	root.SetSize(1)
	guard.Drop()

	ctx.header.Page().SetTreeRoot(rootID)
	return nil
}

// splitLeaf splits a full leaf around an insertion at pos. The left
// (existing) page keeps the ceiling half of the max+1 entries; the
// rest move to a freshly allocated right sibling that is spliced into
// the leaf chain. Returns the separator to promote (a copy of the
// right page's first key) and the right page id.
func (t *BPlusTree) splitLeaf(leaf base.Node, pos int, key, value []byte) ([]byte, base.PageID, error) {
	maxSize := leaf.MaxSize()
	first := (maxSize + 2) / 2 // ceil((max+1)/2)

	// Allocate before mutating anything: a failed allocation must
	// leave the tree untouched.
	newID, err := t.pool.NewPage()
	if err != nil {
		return nil, base.InvalidPageID, err
	}
	guard, err := t.pool.WritePage(newID)
	if err != nil {
		return nil, base.InvalidPageID, err
	}
	defer guard.Drop()

	type kv struct{ k, v []byte }
	merged := make([]kv, 0, maxSize+1)
	for i := 0; i < maxSize; i++ {
		if i == pos {
			merged = append(merged, kv{key, value})
		}
		merged = append(merged, kv{
			bytes.Clone(leaf.LeafKeyAt(i)),
			bytes.Clone(leaf.LeafValueAt(i)),
		})
	}
	if pos == maxSize {
		merged = append(merged, kv{key, value})
	}

	right := t.node(guard.Page())
	right.Init(base.LeafPageFlag, t.lay.LeafMax)
	for i, e := range merged[first:] {
		right.SetLeafAt(i, e.k, e.v)
	}
	right.SetSize(len(merged) - first)
	right.SetNextLeaf(leaf.NextLeaf())

	for i, e := range merged[:first] {
		leaf.SetLeafAt(i, e.k, e.v)
	}
	leaf.SetSize(first)
	leaf.SetNextLeaf(newID)

	return bytes.Clone(right.LeafKeyAt(0)), newID, nil
}

// splitInternal splits a full internal node around inserting child
// rightID with separator promoted at slot pos. The middle separator of
// the merged sequence lands in neither node; it is returned as the new
// promoted key, alongside the new right node's id. When pos equals the
// left half's size the promoted key is the inserted key itself and the
// inserted child becomes slot 0 of the right node.
func (t *BPlusTree) splitInternal(node base.Node, pos int, promoted []byte, rightID base.PageID) ([]byte, base.PageID, error) {
	maxSize := node.MaxSize()
	first := (maxSize + 2) / 2 // ceil((max+1)/2), counted in children

	newID, err := t.pool.NewPage()
	if err != nil {
		return nil, base.InvalidPageID, err
	}
	guard, err := t.pool.WritePage(newID)
	if err != nil {
		return nil, base.InvalidPageID, err
	}
	defer guard.Drop()

	// merged[i].k separates merged[i-1] and merged[i]; slot 0 carries
	// no key.
	type entry struct {
		k []byte
		c base.PageID
	}
	merged := make([]entry, 0, maxSize+1)
	for i := 0; i < maxSize; i++ {
		if i == pos {
			merged = append(merged, entry{promoted, rightID})
		}
		var k []byte
		if i > 0 {
			k = bytes.Clone(node.KeyAt(i))
		}
		merged = append(merged, entry{k, node.ChildAt(i)})
	}
	if pos == maxSize {
		merged = append(merged, entry{promoted, rightID})
	}

	right := t.node(guard.Page())
	right.Init(base.InternalPageFlag, t.lay.InternalMax)
	for i, e := range merged[first:] {
		if i > 0 {
			right.SetKeyAt(i, e.k)
		}
		right.SetChildAt(i, e.c)
	}
	right.SetSize(len(merged) - first)

	for i, e := range merged[:first] {
		if i > 0 {
			node.SetKeyAt(i, e.k)
		}
		node.SetChildAt(i, e.c)
	}
	node.SetSize(first)

	return merged[first].k, newID, nil
}
