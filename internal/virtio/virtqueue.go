package virtio

import (
	"github.com/pkg/errors"

	"github.com/xwings/elinOS/internal/mmio"
)

// Descriptor flags (spec.md §3 "Virtqueue (split layout)").
const (
	descFNext  = uint16(1) << 0
	descFWrite = uint16(1) << 1
)

const descriptorSize = 16 // addr(8) + len(4) + flags(2) + next(2)

// Virtqueue is the split-layout ring described in spec.md §3: a descriptor
// table, an available ring the driver publishes to, and a used ring the
// device publishes to. Each of the three lives on its own 4 KiB-aligned
// page, addressed through the same Bus used for MMIO registers, since on
// riscv64 both are ordinary loads/stores through the same physical address
// space (the teacher's virtqueue.go makes the identical choice of driving
// ring memory through its mmio helpers rather than Go slices).
type Virtqueue struct {
	bus  mmio.Bus
	size int

	DescAddr  uint64
	AvailAddr uint64
	UsedAddr  uint64

	freeHead  int // head of the driver's free-descriptor chain, threaded via next
	lastUsed  uint16
}

// PageSource supplies page-aligned, zeroed physical memory to the
// virtqueue setup path. buddy.Allocator satisfies this directly.
type PageSource interface {
	Alloc(order int) (uint64, error)
}

// NewVirtqueueFromPages allocates the three ring structures from pages,
// each rounded up to and aligned on a whole 4 KiB page (spec.md §4.7).
func NewVirtqueueFromPages(bus mmio.Bus, pages PageSource, size int) (*Virtqueue, error) {
	descBytes := size * descriptorSize
	availBytes := 4 + 2*size
	usedBytes := 4 + 8*size

	descAddr, err := allocPages(pages, descBytes)
	if err != nil {
		return nil, errors.Wrap(err, "virtio: allocating descriptor table")
	}
	availAddr, err := allocPages(pages, availBytes)
	if err != nil {
		return nil, errors.Wrap(err, "virtio: allocating available ring")
	}
	usedAddr, err := allocPages(pages, usedBytes)
	if err != nil {
		return nil, errors.Wrap(err, "virtio: allocating used ring")
	}

	q := newVirtqueueAt(bus, size, descAddr, availAddr, usedAddr)
	return q, nil
}

// NewVirtqueue is a convenience for callers that already hold a flat
// memory window (a FakeBus in tests, or a RAM-backed region on real
// hardware) and just want contiguous, page-aligned offsets within it
// starting at ringBase, rather than going through a real page allocator.
func NewVirtqueue(bus mmio.Bus, size int, ringBase uintptr) (*Virtqueue, error) {
	if size <= 0 {
		return nil, errors.New("virtio: queue size must be positive")
	}
	const pageSize = 4096
	descAddr := uint64(ringBase)
	availAddr := descAddr + pageSize
	usedAddr := availAddr + pageSize
	return newVirtqueueAt(bus, size, descAddr, availAddr, usedAddr), nil
}

func newVirtqueueAt(bus mmio.Bus, size int, descAddr, availAddr, usedAddr uint64) *Virtqueue {
	q := &Virtqueue{
		bus: bus, size: size,
		DescAddr: descAddr, AvailAddr: availAddr, UsedAddr: usedAddr,
	}
	// Thread every descriptor onto the free list via `next`, ascending, so
	// the first chain allocated gets descriptors 0..2 in order.
	for i := 0; i < size; i++ {
		next := uint16(i + 1)
		if i == size-1 {
			next = 0xffff // sentinel: end of free list
		}
		q.writeDesc(i, 0, 0, 0, next)
	}
	q.freeHead = 0
	bus.Write16(uintptr(availAddr)+ringIdxOff, 0)
	bus.Write16(uintptr(usedAddr)+ringIdxOff, 0)
	return q
}

func allocPages(pages PageSource, need int) (uint64, error) {
	const pageSize = 4096
	order := 0
	size := pageSize
	for size < need {
		size <<= 1
		order++
	}
	return pages.Alloc(order)
}

func (q *Virtqueue) descOffset(i int) uintptr { return uintptr(q.DescAddr) + uintptr(i*descriptorSize) }

func (q *Virtqueue) writeDesc(i int, addr uint64, length uint32, flags uint16, next uint16) {
	off := q.descOffset(i)
	q.bus.Write64(off+0, addr)
	q.bus.Write32(off+8, length)
	q.bus.Write16(off+12, flags)
	q.bus.Write16(off+14, next)
}

func (q *Virtqueue) readDescNext(i int) uint16 {
	return q.bus.Read16(q.descOffset(i) + 14)
}

// availIdx, usedIdx offsets within their rings.
const (
	ringFlagsOff = 0
	ringIdxOff   = 2
	ringEntries  = 4
)

func (q *Virtqueue) availEntryOffset(slot int) uintptr {
	return uintptr(q.AvailAddr) + ringEntries + uintptr(slot*2)
}

func (q *Virtqueue) usedEntryOffset(slot int) uintptr {
	return uintptr(q.UsedAddr) + ringEntries + uintptr(slot*8)
}

func (q *Virtqueue) availIdx() uint16 { return q.bus.Read16(uintptr(q.AvailAddr) + ringIdxOff) }
func (q *Virtqueue) setAvailIdx(v uint16) {
	q.bus.Write16(uintptr(q.AvailAddr)+ringIdxOff, v)
}

func (q *Virtqueue) usedIdx() uint16 { return q.bus.Read16(uintptr(q.UsedAddr) + ringIdxOff) }

// allocDescs claims n descriptors from the free list and returns their ids
// in allocation order; publish chains them with descFNext. Used by request
// submission to grab exactly 3 (header/data/status) per spec.md §4.7.
func (q *Virtqueue) allocDescs(n int) ([]int, error) {
	ids := make([]int, 0, n)
	cur := q.freeHead
	for i := 0; i < n; i++ {
		if cur == 0xffff {
			return nil, errors.New("virtio: descriptor table exhausted")
		}
		ids = append(ids, cur)
		cur = int(q.readDescNext(cur))
	}
	q.freeHead = cur
	return ids, nil
}

// freeDescs returns descriptor ids to the head of the free list, in
// reverse order, after a request completes.
func (q *Virtqueue) freeDescs(ids []int) {
	for i := len(ids) - 1; i >= 0; i-- {
		id := ids[i]
		q.writeDesc(id, 0, 0, 0, uint16(q.freeHead))
		q.freeHead = id
	}
}

// publish writes the three descriptors for one request, chains them, and
// pushes the head id into the available ring, with the memory fence
// spec.md §5 requires before `available.idx` publication.
func (q *Virtqueue) publish(headerAddr uint64, headerLen uint32, dataAddr uint64, dataLen uint32, dataWrite bool, statusAddr uint64) ([]int, error) {
	ids, err := q.allocDescs(3)
	if err != nil {
		return nil, err
	}
	headerID, dataID, statusID := ids[0], ids[1], ids[2]

	q.writeDesc(headerID, headerAddr, headerLen, descFNext, uint16(dataID))
	dataFlags := descFNext
	if dataWrite {
		dataFlags |= descFWrite
	}
	q.writeDesc(dataID, dataAddr, dataLen, dataFlags, uint16(statusID))
	q.writeDesc(statusID, statusAddr, 1, descFWrite, 0)

	idx := q.availIdx()
	slot := int(idx) % q.size
	q.bus.Write16(q.availEntryOffset(slot), uint16(headerID))

	q.bus.Fence()
	q.setAvailIdx(idx + 1)

	return ids, nil
}

// pollForCompletion busy-polls the used ring until it advances past
// lastUsed (spec.md §4.7: "poll used ring until used.idx advances"),
// returning the completed descriptor chain's head id. It does not free the
// descriptors; SubmitBlockRequest does that via freeDescs.
func (q *Virtqueue) pollForCompletion(poll func() bool) (headID int, ok bool) {
	for q.usedIdx() == q.lastUsed {
		if poll != nil && !poll() {
			return 0, false
		}
	}
	q.bus.Fence()
	slot := int(q.lastUsed) % q.size
	id := uint32(q.bus.Read32(q.usedEntryOffset(slot)))
	q.lastUsed++
	return int(id), true
}
