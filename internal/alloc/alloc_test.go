package alloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xwings/elinOS/internal/buddy"
)

func newBackingAllocator(t *testing.T, orderCap, pages int) *buddy.Allocator {
	t.Helper()
	a := buddy.New(orderCap)
	require.NoError(t, a.AddRegion(0, uint64(pages*buddy.PageSize)))
	return a
}

func TestSimpleModeAlwaysUsesBuddy(t *testing.T) {
	backing := newBackingAllocator(t, 4, 4)
	a := New(Simple, backing)

	ptr, err := a.Alloc(32)
	require.NoError(t, err)
	require.NoError(t, a.Free(ptr, 32))
}

func TestTwoTierRoutesSmallRequestsToSlab(t *testing.T) {
	backing := newBackingAllocator(t, 4, 4)
	a := New(TwoTier, backing)

	p1, err := a.Alloc(20) // rounds to the 32-byte class
	require.NoError(t, err)
	p2, err := a.Alloc(20)
	require.NoError(t, err)

	// Both from the slab cache means they share a page and are 32 bytes
	// apart, not a full page apart like two direct buddy allocations would
	// be.
	assert.Equal(t, p1-p1%buddy.PageSize, p2-p2%buddy.PageSize)
	assert.Equal(t, uint64(32), p2-p1)

	require.NoError(t, a.Free(p1, 20))
	require.NoError(t, a.Free(p2, 20))
}

func TestTwoTierRoutesLargeRequestsToBuddy(t *testing.T) {
	backing := newBackingAllocator(t, 4, 4)
	a := New(TwoTier, backing)

	ptr, err := a.Alloc(8192) // exceeds largest slab class
	require.NoError(t, err)
	require.NoError(t, a.Free(ptr, 8192))
}

func TestHybridFallsBackToBuddyWhenSlabExhausted(t *testing.T) {
	// One page total: the 4096-byte slab cache's first allocation consumes
	// it. A second request for the same class must try the slab cache
	// (which needs a fresh page from the exhausted backing pool), fail,
	// and fall back to asking the buddy allocator directly per spec.md
	// §4.4's "hybrid" mode — which, with no pages left either way, surfaces
	// the buddy allocator's own ErrOutOfMemory rather than the slab
	// cache's.
	backing := newBackingAllocator(t, 0, 1)
	a := New(Hybrid, backing)

	ptr, err := a.Alloc(4096)
	require.NoError(t, err)

	_, err = a.Alloc(4096)
	assert.ErrorIs(t, err, buddy.ErrOutOfMemory)

	require.NoError(t, a.Free(ptr, 4096))
}

func TestBeginCommitKeepsAllocations(t *testing.T) {
	backing := newBackingAllocator(t, 4, 4)
	a := New(TwoTier, backing)

	require.NoError(t, a.Begin())
	ptr, err := a.Alloc(64)
	require.NoError(t, err)
	require.NoError(t, a.Commit())

	// Allocation survives the commit; freeing it should succeed exactly
	// once.
	require.NoError(t, a.Free(ptr, 64))
}

func TestRollbackUndoesAllAllocationsInTransaction(t *testing.T) {
	backing := newBackingAllocator(t, 4, 4)
	a := New(TwoTier, backing)

	require.NoError(t, a.Begin())
	_, err := a.Alloc(64)
	require.NoError(t, err)
	_, err = a.Alloc(8192)
	require.NoError(t, err)
	require.NoError(t, a.Rollback())

	// The 8 KiB buddy block comes back; the 64-byte class's drained page
	// stays with its slab cache as the one cached empty slab.
	assert.Equal(t, uint64(3*buddy.PageSize), backing.FreeBytes(), "rollback should return every page taken during the transaction except the slab cache's one cached empty slab")
}

func TestTransactionsDoNotNest(t *testing.T) {
	backing := newBackingAllocator(t, 4, 4)
	a := New(TwoTier, backing)

	require.NoError(t, a.Begin())
	err := a.Begin()
	assert.ErrorIs(t, err, ErrTransactionInProgress)
	require.NoError(t, a.Rollback())
}

func TestRollbackIsIdempotentWhenNoTransactionOpen(t *testing.T) {
	backing := newBackingAllocator(t, 4, 4)
	a := New(TwoTier, backing)

	err := a.Rollback()
	assert.ErrorIs(t, err, ErrNoActiveTransaction)

	require.NoError(t, a.Begin())
	require.NoError(t, a.Rollback())

	err = a.Rollback()
	assert.ErrorIs(t, err, ErrNoActiveTransaction)
}
