// Package virtio implements the C9 VirtIO-MMIO block driver: device
// init state machine, split-layout virtqueue, and block request
// submission/completion, per spec.md §4.7. The state-machine-first
// structure and the Bus abstraction for register access follow the
// teacher's virtqueue.go/page.go pairing (real hardware access behind an
// interface, business logic unit-testable on its own).
package virtio

import (
	"github.com/pkg/errors"

	"github.com/xwings/elinOS/internal/mmio"
)

// MMIO register offsets from the VirtIO-MMIO specification (legacy/v1 and
// v2 share this layout for the fields this driver touches).
const (
	regMagic           = 0x000
	regVersion         = 0x004
	regDeviceID        = 0x008
	regDeviceFeatures  = 0x010
	regDeviceFeatSel   = 0x014
	regDriverFeatures  = 0x020
	regDriverFeatSel   = 0x024
	regQueueSel        = 0x030
	regQueueNumMax     = 0x034
	regQueueNum        = 0x038
	regQueueReady      = 0x044
	regQueueNotify     = 0x050
	regInterruptStatus = 0x060
	regInterruptACK    = 0x064
	regStatus          = 0x070
	regQueueDescLow    = 0x080
	regQueueDescHigh   = 0x084
	regQueueAvailLow   = 0x090
	regQueueAvailHigh  = 0x094
	regQueueUsedLow    = 0x0a0
	regQueueUsedHigh   = 0x0a4
	regConfig          = 0x100
)

// Status register bits, written in strict order per spec.md §4.7.
const (
	statusAcknowledge = 1 << 0
	statusDriver      = 1 << 1
	statusFailed      = 1 << 7
	statusFeaturesOK  = 1 << 3
	statusDriverOK    = 1 << 4
)

const (
	magicValue    = 0x74726976 // "virt" little-endian
	deviceIDBlock = 2

	// featureVersion1 is VIRTIO_F_VERSION_1, bit 32 — negotiated per
	// spec.md §4.7 ("negotiate VIRTIO_F_VERSION_1").
	featureVersion1 = uint64(1) << 32

	maxQueueSize = 128
)

var (
	ErrNoDevice         = errors.New("virtio: no device present at this MMIO slot")
	ErrNotBlockDevice   = errors.New("virtio: device is not a block device")
	ErrFeaturesRejected = errors.New("virtio: device rejected accepted feature set")
	ErrQueueTooSmall    = errors.New("virtio: device reports a zero-size queue")
)

// Device is one probed, initialized VirtIO-MMIO block device.
type Device struct {
	bus   mmio.Bus
	base  uintptr
	Queue *Virtqueue
}

// Probe checks whether a VirtIO-MMIO device of the expected magic and
// block device ID is present at base, without touching its status
// register (spec.md §6: "scans a fixed window of 8 MMIO slots").
func Probe(bus mmio.Bus, base uintptr) (bool, error) {
	if bus.Read32(base+regMagic) != magicValue {
		return false, nil
	}
	if bus.Read32(base+regDeviceID) != deviceIDBlock {
		return true, ErrNotBlockDevice
	}
	return true, nil
}

// Init drives the device initialization state machine of spec.md §4.7,
// strictly in order; any deviation aborts with an error rather than
// proceeding in a partially-initialized state. ringBase is where the three
// virtqueue structures are placed in RAM; spec.md §4.7 requires they sit on
// contiguous 4 KiB-aligned pages.
func Init(bus mmio.Bus, base uintptr, ringBase uintptr) (*Device, error) {
	if bus.Read32(base+regMagic) != magicValue {
		return nil, ErrNoDevice
	}
	if bus.Read32(base+regDeviceID) != deviceIDBlock {
		return nil, ErrNotBlockDevice
	}

	bus.Write32(base+regStatus, 0) // reset

	// 1. ACKNOWLEDGE
	writeStatus(bus, base, statusAcknowledge)
	// 2. DRIVER
	writeStatus(bus, base, statusAcknowledge|statusDriver)

	// 3. read device features (VIRTIO_F_VERSION_1 is bit 32, in the high
	// word; we read both selector pages since legacy devices may only
	// populate the low one).
	bus.Write32(base+regDeviceFeatSel, 0)
	featLow := bus.Read32(base + regDeviceFeatures)
	bus.Write32(base+regDeviceFeatSel, 1)
	featHigh := bus.Read32(base + regDeviceFeatures)
	deviceFeatures := uint64(featLow) | uint64(featHigh)<<32

	// 4. write accepted features: only VIRTIO_F_VERSION_1, the single
	// feature spec.md §4.7 requires negotiating.
	accepted := deviceFeatures & featureVersion1
	bus.Write32(base+regDriverFeatSel, 0)
	bus.Write32(base+regDriverFeatures, uint32(accepted))
	bus.Write32(base+regDriverFeatSel, 1)
	bus.Write32(base+regDriverFeatures, uint32(accepted>>32))

	// 5. FEATURES_OK
	writeStatus(bus, base, statusAcknowledge|statusDriver|statusFeaturesOK)
	if bus.Read32(base+regStatus)&statusFeaturesOK == 0 {
		writeStatus(bus, base, statusFailed)
		return nil, ErrFeaturesRejected
	}

	// 6. set up virtqueue 0
	bus.Write32(base+regQueueSel, 0)
	maxSize := bus.Read32(base + regQueueNumMax)
	if maxSize == 0 {
		writeStatus(bus, base, statusFailed)
		return nil, ErrQueueTooSmall
	}
	size := maxSize
	if size > maxQueueSize {
		size = maxQueueSize
	}

	q, err := NewVirtqueue(bus, int(size), ringBase)
	if err != nil {
		writeStatus(bus, base, statusFailed)
		return nil, err
	}

	bus.Write32(base+regQueueNum, size)
	bus.Write32(base+regQueueDescLow, uint32(q.DescAddr))
	bus.Write32(base+regQueueDescHigh, uint32(q.DescAddr>>32))
	bus.Write32(base+regQueueAvailLow, uint32(q.AvailAddr))
	bus.Write32(base+regQueueAvailHigh, uint32(q.AvailAddr>>32))
	bus.Write32(base+regQueueUsedLow, uint32(q.UsedAddr))
	bus.Write32(base+regQueueUsedHigh, uint32(q.UsedAddr>>32))
	bus.Write32(base+regQueueReady, 1)

	// 7. DRIVER_OK
	writeStatus(bus, base, statusAcknowledge|statusDriver|statusFeaturesOK|statusDriverOK)

	return &Device{bus: bus, base: base, Queue: q}, nil
}

func writeStatus(bus mmio.Bus, base uintptr, v uint32) {
	bus.Write32(base+regStatus, v)
}

// Notify rings the queue-notify doorbell for queue 0.
func (d *Device) Notify() {
	d.bus.Write32(d.base+regQueueNotify, 0)
}
