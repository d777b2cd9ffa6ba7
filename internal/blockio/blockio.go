// Package blockio implements C10, the thin pass-through block layer:
// sector-aligned read/write with bounce buffers and no caching, per
// spec.md §4.8. Buffers are allocated through the fallible allocation API
// (C6) as the spec requires ("Buffers are aligned to sector size and
// allocated via C6"); the single in-flight-request discipline is enforced
// here with a mutex, the layer spec.md §4.7 says the driver itself assumes
// is already in place ("callers are serialized by a lock at C10").
package blockio

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/xwings/elinOS/internal/alloc"
	"github.com/xwings/elinOS/internal/mmio"
	"github.com/xwings/elinOS/internal/virtio"
)

// SectorSize is the fixed sector size this version supports (spec.md §6:
// "Sector size 512").
const SectorSize = 512

// Cache is the block I/O layer sitting directly on a VirtIO block device.
// Despite the package name it performs no caching, matching spec.md
// §4.8's "Minimal: no caching; bounce-buffered sector-sized I/O."
type Cache struct {
	dev   *virtio.Device
	bus   mmio.Bus
	pages *alloc.Allocator

	mu sync.Mutex

	// pollHook, when set, is handed to the VirtIO submission path instead
	// of nil. Real hardware always uses an unbounded busy-poll (nil); this
	// exists so tests can drive a FakeBus-backed device synchronously
	// instead of spinning forever waiting for a real device that isn't
	// there.
	pollHook func() bool
}

// SetPollHook installs the poll callback passed to every VirtIO
// submission. Exercised by tests only; production wiring leaves this
// unset.
func (c *Cache) SetPollHook(hook func() bool) { c.pollHook = hook }

// New wires a Cache to an already-initialized VirtIO block device. pages
// provides bounce buffers via the fallible allocation API.
func New(dev *virtio.Device, bus mmio.Bus, pages *alloc.Allocator) *Cache {
	return &Cache{dev: dev, bus: bus, pages: pages}
}

// ReadBlock reads exactly SectorSize bytes from the given sector into out,
// which must be at least SectorSize bytes long.
func (c *Cache) ReadBlock(sector uint64, out []byte) error {
	if len(out) < SectorSize {
		return errors.New("blockio: destination buffer smaller than one sector")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	header, status, data, err := c.boundBuffers()
	if err != nil {
		return err
	}
	defer c.releaseBuffers(header, status, data)

	if err := c.dev.SubmitBlockRequest(virtio.ReqTypeRead, sector, header, data, SectorSize, status, c.pollHook); err != nil {
		return errors.Wrap(err, "blockio: read")
	}

	for i := 0; i < SectorSize; i++ {
		out[i] = c.bus.Read8(uintptr(data) + uintptr(i))
	}
	return nil
}

// WriteBlock writes exactly SectorSize bytes from in to the given sector.
// Per spec.md §4.8, "writes are durable when the call returns" — there is
// no write-behind to lose data on a later crash.
func (c *Cache) WriteBlock(sector uint64, in []byte) error {
	if len(in) < SectorSize {
		return errors.New("blockio: source buffer smaller than one sector")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	header, status, data, err := c.boundBuffers()
	if err != nil {
		return err
	}
	defer c.releaseBuffers(header, status, data)

	for i := 0; i < SectorSize; i++ {
		c.bus.Write8(uintptr(data)+uintptr(i), in[i])
	}

	if err := c.dev.SubmitBlockRequest(virtio.ReqTypeWrite, sector, header, data, SectorSize, status, c.pollHook); err != nil {
		return errors.Wrap(err, "blockio: write")
	}
	return nil
}

// boundBuffers allocates the header/status/data scratch the VirtIO layer
// needs for one request: 16 bytes for the request header, 8 bytes (alloc's
// smallest class) for the one-byte status slot, and one sector for the data
// bounce buffer. The request layer only needs distinct non-overlapping
// addresses for the three.
func (c *Cache) boundBuffers() (header, status, data uint64, err error) {
	h, err := c.pages.Alloc(16)
	if err != nil {
		return 0, 0, 0, errors.Wrap(err, "blockio: allocating request header")
	}
	s, err := c.pages.Alloc(8)
	if err != nil {
		_ = c.pages.Free(h, 16)
		return 0, 0, 0, errors.Wrap(err, "blockio: allocating status byte")
	}
	d, err := c.pages.Alloc(SectorSize)
	if err != nil {
		_ = c.pages.Free(h, 16)
		_ = c.pages.Free(s, 8)
		return 0, 0, 0, errors.Wrap(err, "blockio: allocating bounce buffer")
	}
	return h, s, d, nil
}

func (c *Cache) releaseBuffers(header, status, data uint64) {
	_ = c.pages.Free(header, 16)
	_ = c.pages.Free(status, 8)
	_ = c.pages.Free(data, SectorSize)
}
