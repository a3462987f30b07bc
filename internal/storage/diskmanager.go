package storage

import (
	"fmt"
	"os"
	"sync"

	"ferndb/internal/base"
)

// Reserved low pages: two meta twins plus the initial freelist page.
const (
	metaPage0    base.PageID = 0
	metaPage1    base.PageID = 1
	freelistPage base.PageID = 2

	reservedPages = 3
)

// DiskManager owns the single page file backing a database. It hands
// out page-granular reads and writes, allocates and recycles page ids,
// and persists the metadata twins and the freelist.
type DiskManager struct {
	mu       sync.Mutex
	file     *os.File
	meta     base.Meta
	freelist *FreeList
}

// Open opens or creates a database file. The layout argument seeds the
// metadata of a new file; for an existing file the recorded layout wins
// and the argument is ignored. The second return reports whether the
// file was created by this call.
func Open(path string, lay base.Layout) (*DiskManager, bool, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, false, err
	}

	dm := &DiskManager{
		file:     file,
		freelist: NewFreeList(),
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, false, err
	}

	if info.Size() == 0 {
		if err := dm.initializeNewDB(lay); err != nil {
			file.Close()
			os.Remove(path)
			return nil, false, err
		}
		return dm, true, nil
	}

	if err := dm.loadExistingDB(); err != nil {
		file.Close()
		return nil, false, err
	}
	return dm, false, nil
}

// initializeNewDB writes the meta twins and an empty freelist.
func (dm *DiskManager) initializeNewDB(lay base.Layout) error {
	dm.meta = base.Meta{
		Magic:         base.MagicNumber,
		Version:       base.FormatVersion,
		PageSize:      base.PageSize,
		HeaderPageID:  base.InvalidPageID, // set once the tree header is allocated
		KeySize:       uint16(lay.KeySize),
		ValueSize:     uint16(lay.ValueSize),
		LeafMax:       uint16(lay.LeafMax),
		InternalMax:   uint16(lay.InternalMax),
		NumPages:      reservedPages,
		FreelistID:    freelistPage,
		FreelistPages: 1,
		Seq:           0,
	}
	dm.meta.Checksum = dm.meta.CalculateChecksum()

	metaPage := &base.Page{}
	metaPage.WriteMeta(&dm.meta)
	if err := dm.writePageLocked(metaPage0, metaPage); err != nil {
		return err
	}
	if err := dm.writePageLocked(metaPage1, metaPage); err != nil {
		return err
	}

	flPage := &base.Page{}
	dm.freelist.Serialize([]*base.Page{flPage})
	if err := dm.writePageLocked(freelistPage, flPage); err != nil {
		return err
	}

	return dm.file.Sync()
}

// loadExistingDB validates the meta twins, picks the newer one, and
// loads the freelist.
func (dm *DiskManager) loadExistingDB() error {
	page0, err := dm.readPageLocked(metaPage0)
	if err != nil {
		return err
	}
	page1, err := dm.readPageLocked(metaPage1)
	if err != nil {
		return err
	}

	meta0 := page0.ReadMeta()
	meta1 := page1.ReadMeta()
	err0 := meta0.Validate()
	err1 := meta1.Validate()

	switch {
	case err0 != nil && err1 != nil:
		return fmt.Errorf("both meta pages corrupted: %v, %v", err0, err1)
	case err0 != nil:
		dm.meta = *meta1
	case err1 != nil:
		dm.meta = *meta0
	case meta0.Seq > meta1.Seq:
		dm.meta = *meta0
	default:
		dm.meta = *meta1
	}

	flPages := make([]*base.Page, dm.meta.FreelistPages)
	for i := uint64(0); i < dm.meta.FreelistPages; i++ {
		page, err := dm.readPageLocked(dm.meta.FreelistID + base.PageID(i))
		if err != nil {
			return err
		}
		flPages[i] = page
	}
	dm.freelist.Deserialize(flPages)

	return nil
}

// Layout returns the slot geometry recorded in the file.
func (dm *DiskManager) Layout() base.Layout {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.meta.Layout()
}

// HeaderPageID returns the tree header page id, or InvalidPageID for a
// file that has never held a tree.
func (dm *DiskManager) HeaderPageID() base.PageID {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.meta.HeaderPageID
}

// SetHeaderPageID records the tree header page id and persists the
// metadata immediately so the tree stays reachable after a crash.
func (dm *DiskManager) SetHeaderPageID(id base.PageID) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.meta.HeaderPageID = id
	return dm.putMetaLocked()
}

// putMetaLocked bumps the meta version and writes it to the twin page
// the version selects.
func (dm *DiskManager) putMetaLocked() error {
	dm.meta.Seq++
	dm.meta.Checksum = dm.meta.CalculateChecksum()

	metaPage := &base.Page{}
	metaPage.WriteMeta(&dm.meta)
	target := base.PageID(dm.meta.Seq % 2)
	if err := dm.writePageLocked(target, metaPage); err != nil {
		return err
	}
	return datasync(dm.file)
}

// ReadPage reads a page from disk.
func (dm *DiskManager) ReadPage(id base.PageID) (*base.Page, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.readPageLocked(id)
}

func (dm *DiskManager) readPageLocked(id base.PageID) (*base.Page, error) {
	page := &base.Page{}
	offset := int64(id) * base.PageSize
	n, err := dm.file.ReadAt(page.Data[:], offset)
	if err != nil {
		return nil, fmt.Errorf("read page %d: %w", id, err)
	}
	if n != base.PageSize {
		return nil, fmt.Errorf("short read: got %d bytes, expected %d", n, base.PageSize)
	}
	return page, nil
}

// WritePage writes a page to disk.
func (dm *DiskManager) WritePage(id base.PageID, page *base.Page) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.writePageLocked(id, page)
}

func (dm *DiskManager) writePageLocked(id base.PageID, page *base.Page) error {
	offset := int64(id) * base.PageSize
	n, err := dm.file.WriteAt(page.Data[:], offset)
	if err != nil {
		return fmt.Errorf("write page %d: %w", id, err)
	}
	if n != base.PageSize {
		return fmt.Errorf("short write: wrote %d bytes, expected %d", n, base.PageSize)
	}
	return nil
}

// Allocate returns a page id, reusing a freed page when one is
// available and growing the file otherwise. A page added by growing is
// zeroed on disk; a reused page keeps its previous contents on disk.
func (dm *DiskManager) Allocate() (base.PageID, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if id := dm.freelist.Allocate(); id != base.InvalidPageID {
		return id, nil
	}

	id := base.PageID(dm.meta.NumPages)
	dm.meta.NumPages++
	if err := dm.writePageLocked(id, &base.Page{}); err != nil {
		dm.meta.NumPages--
		return base.InvalidPageID, err
	}
	return id, nil
}

// Free returns a page to the freelist for reuse.
func (dm *DiskManager) Free(id base.PageID) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.freelist.Free(id)
}

// Sync flushes file contents to stable storage.
func (dm *DiskManager) Sync() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return datasync(dm.file)
}

// Close persists the freelist and metadata, then closes the file.
func (dm *DiskManager) Close() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	pagesNeeded := dm.freelist.PagesNeeded()

	// Relocate the freelist to the end of the file if it outgrew its
	// reserved pages; the old pages are recycled through the freelist
	// itself before sizing the final write.
	if uint64(pagesNeeded) > dm.meta.FreelistPages {
		for i := uint64(0); i < dm.meta.FreelistPages; i++ {
			dm.freelist.Free(dm.meta.FreelistID + base.PageID(i))
		}
		pagesNeeded = dm.freelist.PagesNeeded()

		dm.meta.FreelistID = base.PageID(dm.meta.NumPages)
		dm.meta.FreelistPages = uint64(pagesNeeded)
		dm.meta.NumPages += uint64(pagesNeeded)
	}

	flPages := make([]*base.Page, pagesNeeded)
	for i := range flPages {
		flPages[i] = &base.Page{}
	}
	dm.freelist.Serialize(flPages)
	for i := 0; i < pagesNeeded; i++ {
		if err := dm.writePageLocked(dm.meta.FreelistID+base.PageID(i), flPages[i]); err != nil {
			return err
		}
	}

	if err := dm.putMetaLocked(); err != nil {
		return err
	}
	return dm.file.Close()
}
