package base

import "encoding/binary"

// Node is a typed view over a node page. It carries no state of its
// own; every accessor reads or writes the underlying page in place.
// The caller must hold the appropriate page latch for the lifetime of
// the view.
type Node struct {
	Page *Page
	Lay  Layout
}

// Init writes a fresh node header, zeroing size and the sibling link.
func (n Node) Init(flags uint16, maxSize int) {
	h := n.Page.Header()
	h.Flags = flags
	h.Size = 0
	h.MaxSize = uint16(maxSize)
	h.Padding = 0
	h.NextLeaf = InvalidPageID
}

func (n Node) IsLeaf() bool { return n.Page.Header().Flags&LeafPageFlag != 0 }

func (n Node) Size() int { return int(n.Page.Header().Size) }

func (n Node) SetSize(size int) { n.Page.Header().Size = uint16(size) }

func (n Node) MaxSize() int { return int(n.Page.Header().MaxSize) }

func (n Node) NextLeaf() PageID { return n.Page.Header().NextLeaf }

func (n Node) SetNextLeaf(id PageID) { n.Page.Header().NextLeaf = id }

func (n Node) leafSlot(i int) int { return NodeHeaderSize + i*n.Lay.leafStride() }

func (n Node) internalSlot(i int) int { return NodeHeaderSize + i*n.Lay.internalStride() }

// LeafKeyAt returns the key in leaf slot i. The slice aliases the page.
func (n Node) LeafKeyAt(i int) []byte {
	off := n.leafSlot(i)
	return n.Page.Data[off : off+n.Lay.KeySize]
}

// LeafValueAt returns the value in leaf slot i. The slice aliases the page.
func (n Node) LeafValueAt(i int) []byte {
	off := n.leafSlot(i) + n.Lay.KeySize
	return n.Page.Data[off : off+n.Lay.ValueSize]
}

// SetLeafAt writes a key-value pair into leaf slot i.
func (n Node) SetLeafAt(i int, key, value []byte) {
	off := n.leafSlot(i)
	copy(n.Page.Data[off:off+n.Lay.KeySize], key)
	copy(n.Page.Data[off+n.Lay.KeySize:off+n.Lay.leafStride()], value)
}

// LeafShiftRight moves slots [from, Size) one slot to the right,
// opening a hole at from. Size is left untouched.
func (n Node) LeafShiftRight(from int) {
	stride := n.Lay.leafStride()
	src := n.leafSlot(from)
	end := n.leafSlot(n.Size())
	copy(n.Page.Data[src+stride:end+stride], n.Page.Data[src:end])
}

// LeafShiftLeft removes slot from by moving slots (from, Size) one slot
// to the left. Size is left untouched.
func (n Node) LeafShiftLeft(from int) {
	stride := n.Lay.leafStride()
	src := n.leafSlot(from + 1)
	end := n.leafSlot(n.Size())
	copy(n.Page.Data[src-stride:end-stride], n.Page.Data[src:end])
}

// KeyAt returns the separator key in internal slot i, 1 <= i < Size.
// Slot 0 holds no key. The slice aliases the page.
func (n Node) KeyAt(i int) []byte {
	off := n.internalSlot(i)
	return n.Page.Data[off : off+n.Lay.KeySize]
}

// SetKeyAt writes the separator key in internal slot i.
func (n Node) SetKeyAt(i int, key []byte) {
	off := n.internalSlot(i)
	copy(n.Page.Data[off:off+n.Lay.KeySize], key)
}

// ChildAt returns the child pointer in internal slot i.
func (n Node) ChildAt(i int) PageID {
	off := n.internalSlot(i) + n.Lay.KeySize
	return PageID(binary.LittleEndian.Uint64(n.Page.Data[off:]))
}

// SetChildAt writes the child pointer in internal slot i.
func (n Node) SetChildAt(i int, id PageID) {
	off := n.internalSlot(i) + n.Lay.KeySize
	binary.LittleEndian.PutUint64(n.Page.Data[off:], uint64(id))
}

// InternalShiftRight moves slots [from, Size) one slot to the right.
// Keys travel with their child pointers. Size is left untouched.
func (n Node) InternalShiftRight(from int) {
	stride := n.Lay.internalStride()
	src := n.internalSlot(from)
	end := n.internalSlot(n.Size())
	copy(n.Page.Data[src+stride:end+stride], n.Page.Data[src:end])
}

// InternalShiftLeft removes slot from (its key and its child pointer)
// by moving slots (from, Size) one slot to the left. Size is left
// untouched.
func (n Node) InternalShiftLeft(from int) {
	stride := n.Lay.internalStride()
	src := n.internalSlot(from + 1)
	end := n.internalSlot(n.Size())
	copy(n.Page.Data[src-stride:end-stride], n.Page.Data[src:end])
}
