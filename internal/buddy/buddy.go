// Package buddy implements the power-of-two block allocator for >=4 KiB
// regions described in spec.md §3/§4.2 (C4): split on allocate, coalesce on
// free, one free list per order. This is the same binary buddy scheme as
// the Fuchsia thinfs buddy allocator in the retrieval pack
// (go-src-thinfs-lib-buddy-buddy.go), adapted from a block-device address
// space to physical pages and generalized past its fixed min/max order pair
// to the dynamic region list the memory probe (C3) hands the kernel at
// boot.
package buddy

import "github.com/pkg/errors"

// PageSize is the smallest block size the allocator hands out: order 0 is
// one 4 KiB page (spec.md §3).
const PageSize = 4096

// PageShift is log2(PageSize).
const PageShift = 12

// ErrOutOfMemory is returned when no free block of sufficient order exists.
var ErrOutOfMemory = errors.New("buddy: out of memory")

// ErrInvalidOrder is returned for corruption-class misuse: an order outside
// [0, MaxOrder] or an unaligned pointer to Free. spec.md §4.2 calls this
// fatal ("corruption"); callers decide how fatal to make it (panic at the
// syscall boundary, or a kernel halt at the top level).
var ErrInvalidOrder = errors.New("buddy: invalid order or misaligned address")

type node struct {
	addr uint64
	next *node
}

// Allocator is a binary buddy allocator over a set of physical address
// ranges. It is not safe for concurrent use without an external lock; the
// kernel's single spinlock around all allocator state (spec.md §5) is
// modeled by the caller (C6), not duplicated here.
type Allocator struct {
	maxOrder int
	free     []*node // free[k] is the LIFO free list for order k (spec.md §4.2: "LIFO for cache locality")
	inUse    map[uint64]int
}

// New creates an allocator capable of managing blocks up to order maxOrder
// (block size 2^(12+maxOrder) bytes).
func New(maxOrder int) *Allocator {
	return &Allocator{
		maxOrder: maxOrder,
		free:     make([]*node, maxOrder+1),
		inUse:    make(map[uint64]int),
	}
}

// MaxOrder returns the allocator's configured maximum order.
func (a *Allocator) MaxOrder() int { return a.maxOrder }

// OrderSize returns the block size in bytes for the given order.
func OrderSize(order int) uint64 { return uint64(PageSize) << uint(order) }

// AddRegion seeds the allocator with a usable, page-aligned physical region
// (as produced by memprobe.CarveKernelImage), by splitting it into the
// largest aligned blocks that fit and freeing each. base must already be
// page-aligned; length is rounded down to a whole number of pages.
func (a *Allocator) AddRegion(base, length uint64) error {
	if base%PageSize != 0 {
		return ErrInvalidOrder
	}
	length -= length % PageSize
	for length > 0 {
		order := a.maxOrder
		for order > 0 {
			size := OrderSize(order)
			if size <= length && base%size == 0 {
				break
			}
			order--
		}
		size := OrderSize(order)
		a.pushFree(order, base)
		base += size
		length -= size
	}
	return nil
}

func (a *Allocator) pushFree(order int, addr uint64) {
	a.free[order] = &node{addr: addr, next: a.free[order]}
}

func (a *Allocator) popFree(order int) (uint64, bool) {
	n := a.free[order]
	if n == nil {
		return 0, false
	}
	a.free[order] = n.next
	return n.addr, true
}

// removeFree removes a specific address from order's free list, used when
// coalescing pulls a buddy out of the middle of the list rather than the
// head.
func (a *Allocator) removeFree(order int, addr uint64) bool {
	prev := (*node)(nil)
	cur := a.free[order]
	for cur != nil {
		if cur.addr == addr {
			if prev == nil {
				a.free[order] = cur.next
			} else {
				prev.next = cur.next
			}
			return true
		}
		prev, cur = cur, cur.next
	}
	return false
}

// Alloc returns the physical address of a free block of the requested
// order, splitting down from the smallest larger free block when no exact
// match exists (spec.md §4.2).
func (a *Allocator) Alloc(order int) (uint64, error) {
	if order < 0 || order > a.maxOrder {
		return 0, ErrInvalidOrder
	}

	k := order
	for k <= a.maxOrder && a.free[k] == nil {
		k++
	}
	if k > a.maxOrder {
		return 0, ErrOutOfMemory
	}

	addr, _ := a.popFree(k)
	for k > order {
		k--
		buddyAddr := addr + OrderSize(k)
		a.pushFree(k, buddyAddr)
	}

	a.inUse[addr] = order
	return addr, nil
}

// Free returns a previously allocated block to the allocator, coalescing
// with its buddy (address XOR block size) repeatedly while the buddy is
// free and of the same order (spec.md §4.2).
func (a *Allocator) Free(addr uint64, order int) error {
	if order < 0 || order > a.maxOrder {
		return ErrInvalidOrder
	}
	if addr%OrderSize(order) != 0 {
		return ErrInvalidOrder
	}
	delete(a.inUse, addr)

	for order < a.maxOrder {
		buddyAddr := addr ^ OrderSize(order)
		if !a.removeFree(order, buddyAddr) {
			break
		}
		if buddyAddr < addr {
			addr = buddyAddr
		}
		order++
	}
	a.pushFree(order, addr)
	return nil
}

// FreeBytes returns the total bytes currently on free lists, for
// diagnostics (the shell's "memory"/"heap" commands, out of scope here but
// fed by this).
func (a *Allocator) FreeBytes() uint64 {
	var total uint64
	for order, n := range a.free {
		for cur := n; cur != nil; cur = cur.next {
			total += OrderSize(order)
		}
	}
	return total
}

// LargestFreeOrder returns the highest order with a non-empty free list, or
// -1 if the allocator holds no free memory at all.
func (a *Allocator) LargestFreeOrder() int {
	for order := a.maxOrder; order >= 0; order-- {
		if a.free[order] != nil {
			return order
		}
	}
	return -1
}
