package virtio

import "github.com/xwings/elinOS/internal/mmio"

// FakeBlockDevice is a host-testable stand-in for a real VirtIO block
// device: an in-memory disk plus the used-ring/status-byte bookkeeping a
// real device performs. It exists so higher layers (blockio, fsdetect,
// fat32, ext2) can be exercised against a full Init/SubmitBlockRequest
// round trip without real hardware, the same role mmio.FakeBus and
// sbi.FakeCaller play one layer down.
type FakeBlockDevice struct {
	bus    mmio.Bus
	sector map[uint64][SectorBytes]byte
}

// SectorBytes is the sector size the fake disk stores, matching blockio's
// 512-byte sectors (spec.md §6).
const SectorBytes = 512

// NewFakeBlockDevice creates an empty fake disk (every sector reads as all
// zeros until written).
func NewFakeBlockDevice(bus mmio.Bus) *FakeBlockDevice {
	return &FakeBlockDevice{bus: bus, sector: make(map[uint64][SectorBytes]byte)}
}

// Preload seeds a sector's contents directly, for tests that need a disk
// image to already contain data (a filesystem superblock, a boot sector)
// before the driver under test ever issues a request.
func (f *FakeBlockDevice) Preload(sector uint64, data []byte) {
	var buf [SectorBytes]byte
	copy(buf[:], data)
	f.sector[sector] = buf
}

// ServiceNext plays the device side of the most recently published
// request on q: for a read, it copies its stored sector into the data
// descriptor; for a write, it copies the data descriptor into its stored
// sector. It always reports StatusOK — error injection is done by callers
// wrapping this with their own servicer when a test needs StatusIOErr.
func (f *FakeBlockDevice) ServiceNext(q *Virtqueue) {
	avail := q.availIdx() - 1
	slot := int(avail) % q.size
	headID := int(q.bus.Read16(q.availEntryOffset(slot)))

	dataID := int(q.readDescNext(headID))
	statusID := int(q.readDescNext(dataID))

	reqType := q.bus.Read32(q.descOffset(headID) + 0)
	sector := q.bus.Read64(q.descOffset(headID) + 8)

	dataAddr := q.bus.Read64(q.descOffset(dataID) + 0)
	dataLen := q.bus.Read32(q.descOffset(dataID) + 8)

	buf := f.sector[sector]
	switch reqType {
	case ReqTypeRead:
		for i := uint32(0); i < dataLen && i < SectorBytes; i++ {
			f.bus.Write8(uintptr(dataAddr)+uintptr(i), buf[i])
		}
	case ReqTypeWrite:
		for i := uint32(0); i < dataLen && i < SectorBytes; i++ {
			buf[i] = f.bus.Read8(uintptr(dataAddr) + uintptr(i))
		}
		f.sector[sector] = buf
	}

	statusAddr := q.bus.Read64(q.descOffset(statusID) + 0)
	f.bus.Write8(uintptr(statusAddr), StatusOK)

	usedSlot := int(q.usedIdx()) % q.size
	f.bus.Write32(q.usedEntryOffset(usedSlot)+0, uint32(headID))
	f.bus.Write32(q.usedEntryOffset(usedSlot)+4, 0)
	q.bus.Write16(uintptr(q.UsedAddr)+ringIdxOff, q.usedIdx()+1)
}
