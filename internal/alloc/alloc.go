// Package alloc implements the fallible allocation facade described in
// spec.md §3/§4.4 (C6): a single entry point in front of the slab (C5) and
// buddy (C4) allocators, operating in one of three modes, with a
// transaction log that can roll a batch of allocations back as a unit.
// The mode-dispatch shape mirrors the teacher's heap.go Allocate/Free pair
// that chooses between its bump and buddy paths by size.
package alloc

import (
	"github.com/pkg/errors"

	"github.com/xwings/elinOS/internal/buddy"
	"github.com/xwings/elinOS/internal/slab"
)

// Mode selects how Allocator routes a request between the slab and buddy
// backends (spec.md §4.4).
type Mode int

const (
	// Simple always goes straight to the buddy allocator, rounding small
	// requests up to a whole page. Used for the simplest boot path.
	Simple Mode = iota
	// TwoTier routes requests <= 4096 bytes to the matching slab cache and
	// everything else to the buddy allocator directly.
	TwoTier
	// Hybrid behaves like TwoTier but additionally falls back to the buddy
	// allocator when a slab cache reports ErrOutOfMemory, per spec.md
	// §4.4's "hybrid" mode description.
	Hybrid
)

// ErrNoActiveTransaction is returned by Commit/Rollback when no Begin is
// outstanding.
var ErrNoActiveTransaction = errors.New("alloc: no active transaction")

// ErrTransactionInProgress is returned by Begin when one is already open;
// spec.md §4.4 states transactions do not nest.
var ErrTransactionInProgress = errors.New("alloc: transaction already in progress (no nesting)")

// record is one allocation made during an open transaction, kept so
// Rollback can undo it in LIFO order.
type record struct {
	ptr   uint64
	class int  // 0 means it was a direct buddy allocation
	order int  // meaningful only when class == 0
}

// Allocator is the C6 fallible allocation facade.
type Allocator struct {
	mode   Mode
	pages  *buddy.Allocator
	caches map[int]*slab.Cache

	inTxn bool
	log   []record
}

// New creates an Allocator in the given mode, backed by pages.
func New(mode Mode, pages *buddy.Allocator) *Allocator {
	a := &Allocator{mode: mode, pages: pages, caches: make(map[int]*slab.Cache)}
	if mode != Simple {
		for _, c := range slab.Classes {
			cache, err := slab.NewCache(c, pages)
			if err != nil {
				// Classes is a fixed, known-good table; NewCache only
				// fails for classes outside it.
				panic(errors.Wrap(err, "alloc: building fixed slab cache table"))
			}
			a.caches[c] = cache
		}
	}
	return a
}

// Mode returns the allocator's configured mode.
func (a *Allocator) Mode() Mode { return a.mode }

func bytesToOrder(n uint64) int {
	order := 0
	size := uint64(buddy.PageSize)
	for size < n {
		size <<= 1
		order++
	}
	return order
}

// Alloc returns n bytes of memory, routed per the allocator's mode
// (spec.md §4.4). If a transaction is open, the allocation is recorded so
// Rollback can undo it.
func (a *Allocator) Alloc(n int) (uint64, error) {
	if n <= 0 {
		return 0, errors.New("alloc: size must be positive")
	}

	switch a.mode {
	case Simple:
		return a.allocFromBuddy(uint64(n))

	case TwoTier:
		class, err := slab.ClassFor(n)
		if err != nil {
			return a.allocFromBuddy(uint64(n))
		}
		return a.allocFromSlab(class)

	case Hybrid:
		class, err := slab.ClassFor(n)
		if err != nil {
			return a.allocFromBuddy(uint64(n))
		}
		ptr, err := a.allocFromSlab(class)
		if err == nil {
			return ptr, nil
		}
		if errors.Cause(err) == slab.ErrOutOfMemory {
			return a.allocFromBuddy(uint64(n))
		}
		return 0, err

	default:
		return 0, errors.Errorf("alloc: unknown mode %d", a.mode)
	}
}

func (a *Allocator) allocFromBuddy(n uint64) (uint64, error) {
	order := bytesToOrder(n)
	ptr, err := a.pages.Alloc(order)
	if err != nil {
		return 0, errors.Wrap(err, "alloc: buddy backend")
	}
	if a.inTxn {
		a.log = append(a.log, record{ptr: ptr, class: 0, order: order})
	}
	return ptr, nil
}

func (a *Allocator) allocFromSlab(class int) (uint64, error) {
	cache := a.caches[class]
	ptr, err := cache.Alloc()
	if err != nil {
		return 0, err
	}
	if a.inTxn {
		a.log = append(a.log, record{ptr: ptr, class: class})
	}
	return ptr, nil
}

// Free releases a pointer previously returned by Alloc. The caller must
// supply the same size originally requested, since the facade does not
// keep a separate size table (spec.md §4.4 leaves bookkeeping size to the
// caller, matching the slab cache and buddy allocator's own contracts).
func (a *Allocator) Free(ptr uint64, n int) error {
	class, err := slab.ClassFor(n)
	if err == nil && a.mode != Simple {
		if ferr := a.caches[class].Free(ptr); ferr == nil {
			a.forgetInTxn(ptr)
			return nil
		}
		// Not actually slab-owned (e.g. Hybrid fell back to buddy for this
		// one) — fall through to the buddy path below.
	}
	order := bytesToOrder(uint64(n))
	if ferr := a.pages.Free(ptr, order); ferr != nil {
		return errors.Wrap(ferr, "alloc: buddy backend")
	}
	a.forgetInTxn(ptr)
	return nil
}

func (a *Allocator) forgetInTxn(ptr uint64) {
	if !a.inTxn {
		return
	}
	for i, r := range a.log {
		if r.ptr == ptr {
			a.log = append(a.log[:i], a.log[i+1:]...)
			return
		}
	}
}

// Begin opens a transaction. Transactions do not nest (spec.md §4.4).
func (a *Allocator) Begin() error {
	if a.inTxn {
		return ErrTransactionInProgress
	}
	a.inTxn = true
	a.log = nil
	return nil
}

// Commit closes the transaction, keeping every allocation made since
// Begin.
func (a *Allocator) Commit() error {
	if !a.inTxn {
		return ErrNoActiveTransaction
	}
	a.inTxn = false
	a.log = nil
	return nil
}

// Rollback undoes every allocation made since Begin, in reverse order, and
// closes the transaction. Rollback is idempotent: calling it again with no
// transaction open (e.g. after a prior Rollback or Commit) is a no-op
// error rather than a panic, per spec.md §4.4.
func (a *Allocator) Rollback() error {
	if !a.inTxn {
		return ErrNoActiveTransaction
	}
	for i := len(a.log) - 1; i >= 0; i-- {
		r := a.log[i]
		if r.class != 0 {
			_ = a.caches[r.class].Free(r.ptr)
		} else {
			_ = a.pages.Free(r.ptr, r.order)
		}
	}
	a.inTxn = false
	a.log = nil
	return nil
}
