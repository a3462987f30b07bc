package pool

import "ferndb/internal/base"

// ReadGuard is a scoped shared acquisition of one page: the page is
// pinned and its latch held in read mode until Drop. Guards are not
// safe for concurrent use.
type ReadGuard struct {
	pool  *Pool
	frame *frame
	id    base.PageID
	done  bool
}

// PageID returns the guarded page's id.
func (g *ReadGuard) PageID() base.PageID { return g.id }

// Page returns the guarded page. Valid only until Drop.
func (g *ReadGuard) Page() *base.Page { return &g.frame.page }

// Drop releases the latch and unpins the page. Idempotent.
func (g *ReadGuard) Drop() {
	if g.done {
		return
	}
	g.done = true
	// Unlatch before unpin: the pin keeps the frame out of the replacer
	// until the latch is free.
	g.frame.latch.RUnlock()
	g.pool.unpin(g.frame)
}

// WriteGuard is a scoped exclusive acquisition of one page. Taking one
// marks the page dirty.
type WriteGuard struct {
	pool  *Pool
	frame *frame
	id    base.PageID
	done  bool
}

// PageID returns the guarded page's id.
func (g *WriteGuard) PageID() base.PageID { return g.id }

// Page returns the guarded page for mutation. Valid only until Drop.
func (g *WriteGuard) Page() *base.Page { return &g.frame.page }

// Drop releases the latch and unpins the page. Idempotent.
func (g *WriteGuard) Drop() {
	if g.done {
		return
	}
	g.done = true
	g.frame.latch.Unlock()
	g.pool.unpin(g.frame)
}
