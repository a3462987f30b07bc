package pool

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ferndb/internal/base"
	"ferndb/internal/storage"
)

func testLayout() base.Layout {
	return base.Layout{KeySize: 8, ValueSize: 8}.WithDerivedFanouts()
}

func setup(t *testing.T, poolSize int) *Pool {
	t.Helper()

	dm, created, err := storage.Open(filepath.Join(t.TempDir(), "pool.db"), testLayout())
	require.NoError(t, err)
	require.True(t, created)
	t.Cleanup(func() { dm.Close() })

	p, err := New(dm, poolSize)
	require.NoError(t, err)
	return p
}

func TestNewPageZeroed(t *testing.T) {
	t.Parallel()

	p := setup(t, 16)

	id, err := p.NewPage()
	require.NoError(t, err)
	require.NotEqual(t, base.InvalidPageID, id)

	guard, err := p.ReadPage(id)
	require.NoError(t, err)
	defer guard.Drop()
	for _, b := range guard.Page().Data {
		require.Zero(t, b)
	}
}

func TestWriteSurvivesEviction(t *testing.T) {
	t.Parallel()

	p := setup(t, 16)

	id, err := p.NewPage()
	require.NoError(t, err)

	guard, err := p.WritePage(id)
	require.NoError(t, err)
	guard.Page().Data[0] = 0xAB
	guard.Page().Data[base.PageSize-1] = 0xCD
	guard.Drop()

	// Touch enough other pages to evict the written one.
	for i := 0; i < 64; i++ {
		other, err := p.NewPage()
		require.NoError(t, err)
		g, err := p.WritePage(other)
		require.NoError(t, err)
		g.Drop()
	}

	rg, err := p.ReadPage(id)
	require.NoError(t, err)
	defer rg.Drop()
	assert.Equal(t, byte(0xAB), rg.Page().Data[0])
	assert.Equal(t, byte(0xCD), rg.Page().Data[base.PageSize-1])

	assert.Greater(t, p.Stats().Evictions, uint64(0))
}

func TestReadGuardsShare(t *testing.T) {
	t.Parallel()

	p := setup(t, 16)
	id, err := p.NewPage()
	require.NoError(t, err)

	g1, err := p.ReadPage(id)
	require.NoError(t, err)
	g2, err := p.ReadPage(id)
	require.NoError(t, err)
	g1.Drop()
	g2.Drop()
}

func TestWriteGuardExcludes(t *testing.T) {
	t.Parallel()

	p := setup(t, 16)
	id, err := p.NewPage()
	require.NoError(t, err)

	wg, err := p.WritePage(id)
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		rg, err := p.ReadPage(id)
		assert.NoError(t, err)
		rg.Drop()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("read guard acquired while write guard held")
	case <-time.After(50 * time.Millisecond):
	}

	wg.Drop()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("read guard never acquired after write guard dropped")
	}
}

func TestPoolExhausted(t *testing.T) {
	t.Parallel()

	p := setup(t, 16)

	// Pin every frame; the next acquisition has no victim.
	guards := make([]*ReadGuard, 0, 16)
	ids := make([]base.PageID, 0, 17)
	for i := 0; i < 17; i++ {
		id, err := p.NewPage()
		require.NoError(t, err)
		ids = append(ids, id)
	}
	for i := 0; i < 16; i++ {
		g, err := p.ReadPage(ids[i])
		require.NoError(t, err)
		guards = append(guards, g)
	}

	_, err := p.ReadPage(ids[16])
	assert.ErrorIs(t, err, ErrPoolExhausted)

	for _, g := range guards {
		g.Drop()
	}
	g, err := p.ReadPage(ids[16])
	require.NoError(t, err)
	g.Drop()
}

func TestDeletePage(t *testing.T) {
	t.Parallel()

	p := setup(t, 16)

	id, err := p.NewPage()
	require.NoError(t, err)

	guard, err := p.ReadPage(id)
	require.NoError(t, err)
	assert.ErrorIs(t, p.DeletePage(id), ErrPagePinned)
	guard.Drop()

	require.NoError(t, p.DeletePage(id))

	// The freed id is recycled by the next allocation.
	again, err := p.NewPage()
	require.NoError(t, err)
	assert.Equal(t, id, again)
}

func TestGuardDropIdempotent(t *testing.T) {
	t.Parallel()

	p := setup(t, 16)
	id, err := p.NewPage()
	require.NoError(t, err)

	g, err := p.WritePage(id)
	require.NoError(t, err)
	g.Drop()
	g.Drop()

	rg, err := p.ReadPage(id)
	require.NoError(t, err)
	rg.Drop()
	rg.Drop()
}

func TestConcurrentPinning(t *testing.T) {
	t.Parallel()

	p := setup(t, 32)

	ids := make([]base.PageID, 8)
	for i := range ids {
		id, err := p.NewPage()
		require.NoError(t, err)
		ids[i] = id

		g, err := p.WritePage(id)
		require.NoError(t, err)
		g.Page().Data[0] = byte(i)
		g.Drop()
	}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(seed int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				id := ids[(seed+i)%len(ids)]
				g, err := p.ReadPage(id)
				if err != nil {
					t.Errorf("read %d: %v", id, err)
					return
				}
				if g.Page().Data[0] != byte((seed+i)%len(ids)) {
					t.Errorf("page %d: wrong content", id)
				}
				g.Drop()
			}
		}(w)
	}
	wg.Wait()

	// Every pin is either a hit or a miss: 8 initial writes plus all
	// reader acquisitions.
	stats := p.Stats()
	assert.Equal(t, uint64(8*500+8), stats.Hits+stats.Misses)
}
