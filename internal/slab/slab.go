// Package slab implements the fixed-size object allocator described in
// spec.md §3/§4.3 (C5): one cache per size class, each slab a single
// buddy-allocated page holding a bitmap of free slots plus the slots
// themselves. The free/used bitmap is github.com/boljen/go-bitmap (also
// used by dargueta-disko's block-device allocators in the retrieval pack)
// instead of hand-rolled bit shifting.
package slab

import (
	"github.com/boljen/go-bitmap"
	"github.com/pkg/errors"

	"github.com/xwings/elinOS/internal/buddy"
)

// Classes is the fixed set of object sizes a slab cache may serve
// (spec.md §3).
var Classes = [...]int{8, 16, 32, 64, 128, 256, 512, 1024, 2048, 4096}

// ErrNoClass is returned when a requested size doesn't match any class
// exactly (callers round up via ClassFor before calling Alloc directly).
var ErrNoClass = errors.New("slab: no such size class")

// ErrOutOfMemory is returned when the backing buddy allocator cannot supply
// a fresh page for a new slab.
var ErrOutOfMemory = errors.New("slab: backing page allocator is out of memory")

// ErrNotOwned is returned by Free when ptr was not handed out by this
// cache, or has already been freed.
var ErrNotOwned = errors.New("slab: pointer not owned by this slab cache")

// PageAllocator is the subset of buddy.Allocator a slab Cache needs: a
// single order-0 (one page) alloc/free pair. Kept as an interface so tests
// can run slab logic over a trivial fake instead of a full buddy.Allocator.
type PageAllocator interface {
	Alloc(order int) (uint64, error)
	Free(addr uint64, order int) error
}

var _ PageAllocator = (*buddy.Allocator)(nil)

// ClassFor returns the smallest class size >= n, or ErrNoClass if n exceeds
// the largest class (4096 bytes; bigger requests go to the buddy allocator
// directly per spec.md §4.4).
func ClassFor(n int) (int, error) {
	for _, c := range Classes {
		if n <= c {
			return c, nil
		}
	}
	return 0, ErrNoClass
}

type slabPage struct {
	base     uint64
	bm       bitmap.Bitmap
	capacity int
	used     int
}

// Cache is one size class's collection of partial/full/empty slabs.
// spec.md §4.3: "kept only one [empty slab] per cache to avoid thrash."
type Cache struct {
	class    int
	pages    PageAllocator
	capacity int // slots per slab, floor((page - metadata) / class)

	partial []*slabPage
	full    []*slabPage
	empty   *slabPage

	byAddr map[uint64]*slabPage // page base -> slabPage, for O(1) Free lookup
}

// metadataOverhead is a conservative fixed allowance for the slab header
// kept out-of-band here (unlike the teacher's in-page heapSegment header,
// our bitmap and bookkeeping live in the Go heap, not the slab page itself,
// since the slab page is bytes the allocator hands to callers wholesale).
const metadataOverhead = 0

// NewCache creates a cache for the given class, backed by pages from pa.
func NewCache(class int, pages PageAllocator) (*Cache, error) {
	valid := false
	for _, c := range Classes {
		if c == class {
			valid = true
			break
		}
	}
	if !valid {
		return nil, ErrNoClass
	}
	capacity := (buddy.PageSize - metadataOverhead) / class
	return &Cache{
		class:    class,
		pages:    pages,
		capacity: capacity,
		byAddr:   make(map[uint64]*slabPage),
	}, nil
}

// Capacity returns the number of objects one slab page can hold for this
// cache's class.
func (c *Cache) Capacity() int { return c.capacity }

func (c *Cache) newPage() (*slabPage, error) {
	addr, err := c.pages.Alloc(0)
	if err != nil {
		return nil, ErrOutOfMemory
	}
	sp := &slabPage{base: addr, bm: bitmap.New(c.capacity), capacity: c.capacity}
	c.byAddr[addr] = sp
	return sp, nil
}

// Alloc returns a pointer (as a physical address) to a free slot, pulling
// from a partial slab, then the cached empty slab, then a fresh page from
// the backing allocator, per spec.md §4.3.
func (c *Cache) Alloc() (uint64, error) {
	var sp *slabPage
	if len(c.partial) > 0 {
		sp = c.partial[len(c.partial)-1]
	} else if c.empty != nil {
		sp = c.empty
		c.empty = nil
		c.partial = append(c.partial, sp)
	} else {
		var err error
		sp, err = c.newPage()
		if err != nil {
			return 0, err
		}
		c.partial = append(c.partial, sp)
	}

	slot := firstFree(sp.bm, sp.capacity)
	if slot < 0 {
		return 0, errors.New("slab: internal inconsistency: partial slab reports no free slot")
	}
	sp.bm.Set(slot, true)
	sp.used++

	if sp.used == sp.capacity {
		c.movePartialToFull(sp)
	}

	return sp.base + uint64(slot*c.class), nil
}

func firstFree(bm bitmap.Bitmap, capacity int) int {
	for i := 0; i < capacity; i++ {
		if !bm.Get(i) {
			return i
		}
	}
	return -1
}

func (c *Cache) movePartialToFull(sp *slabPage) {
	for i, p := range c.partial {
		if p == sp {
			c.partial = append(c.partial[:i], c.partial[i+1:]...)
			break
		}
	}
	c.full = append(c.full, sp)
}

// Free clears ptr's slot bit. If its slab becomes fully free, it is either
// kept as the one cached empty slab or, if one is already cached, returned
// to the backing page allocator (spec.md §4.3).
func (c *Cache) Free(ptr uint64) error {
	pageBase := ptr - ptr%buddy.PageSize
	sp, ok := c.byAddr[pageBase]
	if !ok {
		return ErrNotOwned
	}
	slot := int((ptr - sp.base) / uint64(c.class))
	if slot < 0 || slot >= sp.capacity || !sp.bm.Get(slot) {
		return ErrNotOwned
	}

	wasFull := sp.used == sp.capacity
	sp.bm.Set(slot, false)
	sp.used--

	if wasFull {
		c.removeFull(sp)
		c.partial = append(c.partial, sp)
	}

	if sp.used == 0 {
		c.removePartial(sp)
		if c.empty == nil {
			c.empty = sp
		} else {
			delete(c.byAddr, sp.base)
			if err := c.pages.Free(sp.base, 0); err != nil {
				return errors.Wrap(err, "slab: returning drained page to backing allocator")
			}
		}
	}
	return nil
}

func (c *Cache) removeFull(sp *slabPage) {
	for i, p := range c.full {
		if p == sp {
			c.full = append(c.full[:i], c.full[i+1:]...)
			return
		}
	}
}

func (c *Cache) removePartial(sp *slabPage) {
	for i, p := range c.partial {
		if p == sp {
			c.partial = append(c.partial[:i], c.partial[i+1:]...)
			return
		}
	}
}
