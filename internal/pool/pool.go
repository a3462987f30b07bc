package pool

import (
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/elastic/go-freelru"

	"ferndb/internal/base"
	"ferndb/internal/storage"
)

var (
	ErrPoolExhausted = errors.New("buffer pool is full and all pages are pinned")
	ErrPagePinned    = errors.New("page is pinned")
)

// MinPoolSize keeps enough frames for one full root-to-leaf write path
// plus concurrent readers.
const MinPoolSize = 16

// frame is one page-sized buffer slot. The latch is the page latch of
// whatever page currently occupies the frame; guards hold it for their
// lifetime. pins and dirty are protected by the pool mutex.
type frame struct {
	latch sync.RWMutex
	page  base.Page
	id    base.PageID
	idx   int // position in Pool.frames, fixed at construction
	pins  int
	dirty bool
}

// Pool is the buffer pool manager. It pins pages into a fixed set of
// frames, hands out latch-holding guards, and evicts unpinned pages
// through an LRU replacer. Page latches are independent of the pool
// mutex: pinning happens under the mutex, latch acquisition outside it,
// so a blocked guard never stalls unrelated traffic.
type Pool struct {
	mu       sync.Mutex
	dm       *storage.DiskManager
	frames   []frame
	table    map[base.PageID]int
	free     []int // frame indexes never used or vacated by DeletePage
	replacer *freelru.LRU[base.PageID, int]

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// Stats is a point-in-time snapshot of pool counters.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

func pageIDHash(id base.PageID) uint32 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(id))
	return uint32(xxhash.Sum64(b[:]))
}

// New creates a pool with the given number of frames on top of dm.
func New(dm *storage.DiskManager, poolSize int) (*Pool, error) {
	poolSize = max(poolSize, MinPoolSize)

	// Capacity equals the frame count, so the replacer only ever holds
	// unpinned frames and never drops an entry on its own.
	replacer, err := freelru.New[base.PageID, int](uint32(poolSize), pageIDHash)
	if err != nil {
		return nil, err
	}

	p := &Pool{
		dm:       dm,
		frames:   make([]frame, poolSize),
		table:    make(map[base.PageID]int, poolSize),
		free:     make([]int, 0, poolSize),
		replacer: replacer,
	}
	for i := poolSize - 1; i >= 0; i-- {
		p.frames[i].idx = i
		p.free = append(p.free, i)
	}
	return p, nil
}

// NewPage allocates a fresh zeroed page and returns its id. The page is
// resident but unpinned; the caller pins it by taking a guard. The disk
// allocation happens before any frame state changes, so a failure here
// leaves the pool untouched.
func (p *Pool) NewPage() (base.PageID, error) {
	id, err := p.dm.Allocate()
	if err != nil {
		return base.InvalidPageID, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	idx, err := p.victimLocked()
	if err != nil {
		p.dm.Free(id)
		return base.InvalidPageID, err
	}

	f := &p.frames[idx]
	f.page = base.Page{}
	f.id = id
	f.pins = 0
	f.dirty = true // zero image must reach disk even if never written again

	p.table[id] = idx
	p.replacer.Add(id, idx)
	return id, nil
}

// ReadPage pins the page and acquires its latch in shared mode.
func (p *Pool) ReadPage(id base.PageID) (*ReadGuard, error) {
	f, err := p.pin(id, false)
	if err != nil {
		return nil, err
	}
	f.latch.RLock()
	return &ReadGuard{pool: p, frame: f, id: id}, nil
}

// WritePage pins the page and acquires its latch in exclusive mode.
// The frame is marked dirty up front; write guards exist to mutate.
func (p *Pool) WritePage(id base.PageID) (*WriteGuard, error) {
	f, err := p.pin(id, true)
	if err != nil {
		return nil, err
	}
	f.latch.Lock()
	return &WriteGuard{pool: p, frame: f, id: id}, nil
}

// DeletePage drops a page from the pool and returns it to the disk
// freelist. The page must be unpinned; a pinned page is a caller bug.
func (p *Pool) DeletePage(id base.PageID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if idx, ok := p.table[id]; ok {
		f := &p.frames[idx]
		if f.pins > 0 {
			return ErrPagePinned
		}
		p.replacer.Remove(id)
		delete(p.table, id)
		f.id = base.InvalidPageID
		f.dirty = false
		p.free = append(p.free, idx)
	}

	p.dm.Free(id)
	return nil
}

// FlushAll writes every dirty resident page to disk and syncs. Callers
// must ensure no write guards are live.
func (p *Pool) FlushAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, idx := range p.table {
		f := &p.frames[idx]
		if !f.dirty {
			continue
		}
		if err := p.dm.WritePage(id, &f.page); err != nil {
			return err
		}
		f.dirty = false
	}
	return p.dm.Sync()
}

// Stats returns a snapshot of the hit/miss/eviction counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Hits:      p.hits.Load(),
		Misses:    p.misses.Load(),
		Evictions: p.evictions.Load(),
	}
}

// pin makes the page resident and pinned, loading it from disk on a
// miss. The returned frame stays valid until the matching unpin: pinned
// frames are never victims.
func (p *Pool) pin(id base.PageID, write bool) (*frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if idx, ok := p.table[id]; ok {
		f := &p.frames[idx]
		f.pins++
		if f.pins == 1 {
			p.replacer.Remove(id)
		}
		f.dirty = f.dirty || write
		p.hits.Add(1)
		return f, nil
	}

	idx, err := p.victimLocked()
	if err != nil {
		return nil, err
	}
	f := &p.frames[idx]

	page, err := p.dm.ReadPage(id)
	if err != nil {
		p.free = append(p.free, idx)
		return nil, err
	}
	p.misses.Add(1)

	f.page = *page
	f.id = id
	f.pins = 1
	f.dirty = write
	p.table[id] = idx
	return f, nil
}

func (p *Pool) unpin(f *frame) {
	p.mu.Lock()
	defer p.mu.Unlock()

	f.pins--
	if f.pins == 0 {
		p.replacer.Add(f.id, f.idx)
	}
}

// victimLocked produces an empty frame: one from the free list if available,
// otherwise the least recently used unpinned page, flushed first when
// dirty.
func (p *Pool) victimLocked() (int, error) {
	if n := len(p.free); n > 0 {
		idx := p.free[n-1]
		p.free = p.free[:n-1]
		return idx, nil
	}

	id, idx, ok := p.replacer.RemoveOldest()
	if !ok {
		return 0, ErrPoolExhausted
	}
	f := &p.frames[idx]
	if f.dirty {
		if err := p.dm.WritePage(id, &f.page); err != nil {
			// Put the victim back; the pool stays consistent and the
			// caller sees the I/O error.
			p.replacer.Add(id, idx)
			return 0, err
		}
		f.dirty = false
	}
	delete(p.table, id)
	f.id = base.InvalidPageID
	p.evictions.Add(1)
	return idx, nil
}
