package base

import (
	"unsafe"

	"github.com/cespare/xxhash/v2"
)

const (
	PageSize = 4096

	LeafPageFlag     uint16 = 0x01
	InternalPageFlag uint16 = 0x02

	NodeHeaderSize = 16 // Flags(2) + Size(2) + MaxSize(2) + Padding(2) + NextLeaf(8)

	// ChildSize is the on-page width of a child pointer in internal nodes.
	ChildSize = 8

	// MagicNumber for file format identification ("fern" in hex)
	MagicNumber uint32 = 0x6665726e

	FormatVersion uint16 = 1
)

// PageID is the on-disk handle of a page. 0 is never a node page (the
// file's meta pages live there), so it doubles as the invalid marker.
type PageID uint64

const InvalidPageID PageID = 0

// Page is a raw disk page (4096 bytes).
//
// NODE PAGE LAYOUT (leaf):
// ┌─────────────────────────────────────────────────────────────────────┐
// │ NodeHeader (16 bytes)                                               │
// │ Flags, Size, MaxSize, Padding, NextLeaf                             │
// ├─────────────────────────────────────────────────────────────────────┤
// │ slot[0]: key (KeySize) | value (ValueSize)                          │
// ├─────────────────────────────────────────────────────────────────────┤
// │ slot[1] ...                                                         │
// ├─────────────────────────────────────────────────────────────────────┤
// │ slot[Size-1]                                                        │
// └─────────────────────────────────────────────────────────────────────┘
//
// NODE PAGE LAYOUT (internal):
// ┌─────────────────────────────────────────────────────────────────────┐
// │ NodeHeader (16 bytes)                                               │
// ├─────────────────────────────────────────────────────────────────────┤
// │ slot[0]: key (unused) | child PageID (8)                            │
// ├─────────────────────────────────────────────────────────────────────┤
// │ slot[1]: key (KeySize) | child PageID (8)                           │
// ├─────────────────────────────────────────────────────────────────────┤
// │ slot[Size-1]                                                        │
// └─────────────────────────────────────────────────────────────────────┘
//
// Size counts key-value pairs on leaves and child pointers on internal
// nodes (key count is Size-1; the key in slot 0 is never read).
//
// TREE HEADER PAGE LAYOUT:
// ┌─────────────────────────────────────────────────────────────────────┐
// │ root PageID (8 bytes)                                               │
// └─────────────────────────────────────────────────────────────────────┘
type Page struct {
	Data [PageSize]byte
}

// NodeHeader is the fixed-size header at the start of each node page.
// Layout: [Flags: 2][Size: 2][MaxSize: 2][Padding: 2][NextLeaf: 8]
type NodeHeader struct {
	Flags    uint16 // leaf or internal
	Size     uint16 // pairs (leaf) or child pointers (internal)
	MaxSize  uint16
	Padding  uint16 // alignment
	NextLeaf PageID // next leaf in key order, leaves only (0 = none)
}

// Header returns the node header decoded from the page data.
func (p *Page) Header() *NodeHeader {
	return (*NodeHeader)(unsafe.Pointer(&p.Data[0]))
}

// TreeRoot reads the root pointer from a tree header page.
func (p *Page) TreeRoot() PageID {
	return *(*PageID)(unsafe.Pointer(&p.Data[0]))
}

// SetTreeRoot writes the root pointer to a tree header page.
func (p *Page) SetTreeRoot(id PageID) {
	*(*PageID)(unsafe.Pointer(&p.Data[0])) = id
}

// Layout fixes the slot geometry of a tree: key and value widths plus
// the fanout of each node kind. A leaf is full at LeafMax pairs; an
// internal node is full at InternalMax child pointers.
type Layout struct {
	KeySize     int
	ValueSize   int
	LeafMax     int
	InternalMax int
}

func (l Layout) leafStride() int { return l.KeySize + l.ValueSize }

func (l Layout) internalStride() int { return l.KeySize + ChildSize }

// WithDerivedFanouts fills in zero fanouts with the largest values the
// page size allows.
func (l Layout) WithDerivedFanouts() Layout {
	if l.LeafMax == 0 {
		l.LeafMax = (PageSize - NodeHeaderSize) / l.leafStride()
	}
	if l.InternalMax == 0 {
		l.InternalMax = (PageSize - NodeHeaderSize) / l.internalStride()
	}
	return l
}

// Validate rejects layouts whose slots don't fit a page or whose
// fanouts are below the smallest splittable sizes.
func (l Layout) Validate() error {
	if l.KeySize <= 0 || l.ValueSize <= 0 {
		return ErrInvalidLayout
	}
	if l.LeafMax < 2 || l.InternalMax < 3 {
		return ErrInvalidLayout
	}
	if NodeHeaderSize+l.LeafMax*l.leafStride() > PageSize {
		return ErrInvalidLayout
	}
	if NodeHeaderSize+l.InternalMax*l.internalStride() > PageSize {
		return ErrInvalidLayout
	}
	return nil
}

// Meta is the database metadata stored in file pages 0 and 1.
// Layout: [Magic: 4][Version: 2][PageSize: 2][HeaderPageID: 8]
//
//	[KeySize: 2][ValueSize: 2][LeafMax: 2][InternalMax: 2]
//	[NumPages: 8][FreelistID: 8][FreelistPages: 8][Seq: 8][Checksum: 8]
//
// Total: 64 bytes.
type Meta struct {
	Magic         uint32
	Version       uint16
	PageSize      uint16
	HeaderPageID  PageID // tree header page holding the root pointer
	KeySize       uint16
	ValueSize     uint16
	LeafMax       uint16
	InternalMax   uint16
	NumPages      uint64
	FreelistID    PageID
	FreelistPages uint64
	Seq           uint64 // meta version counter, picks the newer twin
	Checksum      uint64
}

const metaChecksumLen = 56 // everything before the Checksum field

// WriteMeta writes metadata to the start of the page.
func (p *Page) WriteMeta(m *Meta) {
	*(*Meta)(unsafe.Pointer(&p.Data[0])) = *m
}

// ReadMeta reads metadata from the start of the page.
func (p *Page) ReadMeta() *Meta {
	return (*Meta)(unsafe.Pointer(&p.Data[0]))
}

// CalculateChecksum computes the xxhash of all fields except Checksum.
func (m *Meta) CalculateChecksum() uint64 {
	data := unsafe.Slice((*byte)(unsafe.Pointer(m)), metaChecksumLen)
	return xxhash.Sum64(data)
}

// Validate checks if the metadata is intact.
func (m *Meta) Validate() error {
	if m.Magic != MagicNumber {
		return ErrInvalidMagicNumber
	}
	if m.Version != FormatVersion {
		return ErrInvalidVersion
	}
	if m.PageSize != PageSize {
		return ErrInvalidPageSize
	}
	if m.Checksum != m.CalculateChecksum() {
		return ErrInvalidChecksum
	}
	return nil
}

// Layout reconstructs the slot geometry recorded in the metadata.
func (m *Meta) Layout() Layout {
	return Layout{
		KeySize:     int(m.KeySize),
		ValueSize:   int(m.ValueSize),
		LeafMax:     int(m.LeafMax),
		InternalMax: int(m.InternalMax),
	}
}
