// Package ferndb is an embedded, disk-resident B+Tree index. It maps
// fixed-width keys to fixed-width record ids with unique-key
// semantics, supports concurrent readers and writers through per-page
// latch crabbing, and persists everything in a single page file
// brokered by a buffer pool.
package ferndb

import (
	"path/filepath"
	"sync"

	"ferndb/internal/base"
	"ferndb/internal/btree"
	"ferndb/internal/pool"
	"ferndb/internal/storage"
)

// DB is an open database. All methods are safe for concurrent use.
type DB struct {
	mu     sync.RWMutex // guards closed; tree ops synchronize via page latches
	dm     *storage.DiskManager
	pool   *pool.Pool
	tree   *btree.BPlusTree
	lay    base.Layout
	closed bool
}

// Open opens or creates a database file. Size and fanout options only
// shape a new file; an existing file keeps the layout it was created
// with.
func Open(path string, options ...Option) (*DB, error) {
	opts := DefaultOptions()
	for _, opt := range options {
		opt(&opts)
	}

	lay := base.Layout{
		KeySize:     opts.keySize,
		ValueSize:   opts.valueSize,
		LeafMax:     opts.leafFanout,
		InternalMax: opts.internalFanout,
	}.WithDerivedFanouts()
	if err := lay.Validate(); err != nil {
		return nil, err
	}

	dm, created, err := storage.Open(path, lay)
	if err != nil {
		return nil, err
	}
	if !created {
		lay = dm.Layout()
		if err := lay.Validate(); err != nil {
			dm.Close()
			return nil, err
		}
	}

	pl, err := pool.New(dm, opts.poolSize)
	if err != nil {
		dm.Close()
		return nil, err
	}

	cfg := btree.Config{
		Name:    filepath.Base(path),
		Pool:    pl,
		Compare: opts.compare,
		Layout:  lay,
		Logger:  opts.logger,
	}

	// A file without a recorded header page has never held a tree;
	// give it one and start fresh.
	var tree *btree.BPlusTree
	headerID := dm.HeaderPageID()
	if headerID == base.InvalidPageID {
		headerID, err = pl.NewPage()
		if err != nil {
			dm.Close()
			return nil, err
		}
		if err := dm.SetHeaderPageID(headerID); err != nil {
			dm.Close()
			return nil, err
		}
		cfg.HeaderPageID = headerID
		tree, err = btree.New(cfg)
	} else {
		cfg.HeaderPageID = headerID
		tree, err = btree.Attach(cfg)
	}
	if err != nil {
		dm.Close()
		return nil, err
	}

	return &DB{
		dm:   dm,
		pool: pl,
		tree: tree,
		lay:  lay,
	}, nil
}

// Tree exposes the underlying index for direct iterator access.
func (db *DB) Tree() *btree.BPlusTree { return db.tree }

func (db *DB) checkKV(key, value []byte) error {
	if len(key) != db.lay.KeySize {
		return ErrBadKeySize
	}
	if value != nil && len(value) != db.lay.ValueSize {
		return ErrBadValueSize
	}
	return nil
}

// Put inserts a new key. Duplicate keys return ErrKeyExists and leave
// the database unchanged.
func (db *DB) Put(key, value []byte) error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return ErrDatabaseClosed
	}
	if err := db.checkKV(key, value); err != nil {
		return err
	}

	inserted, err := db.tree.Insert(key, value)
	if err != nil {
		return err
	}
	if !inserted {
		return ErrKeyExists
	}
	return nil
}

// Get returns the value stored under key, or ErrKeyNotFound.
func (db *DB) Get(key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return nil, ErrDatabaseClosed
	}
	if err := db.checkKV(key, nil); err != nil {
		return nil, err
	}

	value, found, err := db.tree.GetValue(key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrKeyNotFound
	}
	return value, nil
}

// Delete removes key if present. Deleting an absent key is a no-op.
func (db *DB) Delete(key []byte) error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return ErrDatabaseClosed
	}
	if err := db.checkKV(key, nil); err != nil {
		return err
	}
	return db.tree.Remove(key)
}

// IsEmpty reports whether the database holds no keys.
func (db *DB) IsEmpty() (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return false, ErrDatabaseClosed
	}
	return db.tree.IsEmpty()
}

// Ascend calls fn for every key in ascending order until fn returns
// false or the keys run out. The slices passed to fn alias a latched
// page; copy them to retain them past the callback.
func (db *DB) Ascend(fn func(key, value []byte) bool) error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return ErrDatabaseClosed
	}

	it, err := db.tree.Begin()
	if err != nil {
		return err
	}
	return drain(it, fn)
}

// AscendFrom is Ascend starting at the smallest key >= start.
func (db *DB) AscendFrom(start []byte, fn func(key, value []byte) bool) error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return ErrDatabaseClosed
	}
	if err := db.checkKV(start, nil); err != nil {
		return err
	}

	it, err := db.tree.BeginAt(start)
	if err != nil {
		return err
	}
	return drain(it, fn)
}

func drain(it *btree.Iterator, fn func(key, value []byte) bool) error {
	defer it.Close()
	for it.Valid() {
		if !fn(it.Key(), it.Value()) {
			return nil
		}
		if err := it.Next(); err != nil {
			return err
		}
	}
	return nil
}

// Stats reports buffer pool counters.
type Stats struct {
	PoolHits      uint64
	PoolMisses    uint64
	PoolEvictions uint64
}

// Stats returns a snapshot of runtime counters.
func (db *DB) Stats() Stats {
	s := db.pool.Stats()
	return Stats{
		PoolHits:      s.Hits,
		PoolMisses:    s.Misses,
		PoolEvictions: s.Evictions,
	}
}

// Sync flushes all dirty pages to stable storage.
func (db *DB) Sync() error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return ErrDatabaseClosed
	}
	return db.pool.FlushAll()
}

// Close flushes dirty pages and closes the file. Further use of the
// handle returns ErrDatabaseClosed.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true

	if err := db.pool.FlushAll(); err != nil {
		db.dm.Close()
		return err
	}
	return db.dm.Close()
}
