package storage

import (
	"encoding/binary"

	"ferndb/internal/base"
)

// FreeList tracks freed page ids for reuse. It is not safe for
// concurrent use; the DiskManager serializes access.
type FreeList struct {
	ids []base.PageID // sorted array of free page ids
}

// NewFreeList creates an empty freelist.
func NewFreeList() *FreeList {
	return &FreeList{ids: make([]base.PageID, 0)}
}

// Allocate pops a free page id, or returns InvalidPageID if none.
func (f *FreeList) Allocate() base.PageID {
	if len(f.ids) == 0 {
		return base.InvalidPageID
	}
	id := f.ids[len(f.ids)-1]
	f.ids = f.ids[:len(f.ids)-1]
	return id
}

// Free adds a page id to the free list.
func (f *FreeList) Free(id base.PageID) {
	for _, existing := range f.ids {
		if existing == id {
			return // already free, don't add duplicate
		}
	}
	f.ids = append(f.ids, id)
	// Keep sorted for deterministic behavior
	for i := len(f.ids) - 1; i > 0; i-- {
		if f.ids[i] < f.ids[i-1] {
			f.ids[i], f.ids[i-1] = f.ids[i-1], f.ids[i]
		} else {
			break
		}
	}
}

// Size returns the number of free pages.
func (f *FreeList) Size() int {
	return len(f.ids)
}

// PagesNeeded returns the number of pages needed to serialize this
// freelist: an 8-byte count followed by 8 bytes per id.
func (f *FreeList) PagesNeeded() int {
	totalBytes := 8 + len(f.ids)*8
	pages := (totalBytes + base.PageSize - 1) / base.PageSize
	if pages == 0 {
		pages = 1
	}
	return pages
}

// Serialize writes the freelist into the given pages as one linear
// buffer split on page boundaries.
func (f *FreeList) Serialize(pages []*base.Page) {
	buf := make([]byte, 8+len(f.ids)*8)
	binary.LittleEndian.PutUint64(buf[0:], uint64(len(f.ids)))
	for i, id := range f.ids {
		binary.LittleEndian.PutUint64(buf[8+i*8:], uint64(id))
	}

	offset := 0
	for i := 0; i < len(pages) && offset < len(buf); i++ {
		offset += copy(pages[i].Data[:], buf[offset:])
	}
}

// Deserialize reads the freelist back from pages.
func (f *FreeList) Deserialize(pages []*base.Page) {
	buf := make([]byte, 0, base.PageSize*len(pages))
	for _, page := range pages {
		buf = append(buf, page.Data[:]...)
	}

	f.ids = f.ids[:0]
	if len(buf) < 8 {
		return
	}
	count := binary.LittleEndian.Uint64(buf[0:])
	for i := uint64(0); i < count; i++ {
		off := 8 + int(i)*8
		if off+8 > len(buf) {
			break
		}
		f.ids = append(f.ids, base.PageID(binary.LittleEndian.Uint64(buf[off:])))
	}
}
