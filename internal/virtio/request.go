package virtio

import "github.com/pkg/errors"

// Block request types, matching the VirtIO block spec's virtio_blk_req
// header (spec.md §3 "Block request").
const (
	ReqTypeRead  = 0
	ReqTypeWrite = 1
	ReqTypeFlush = 4
)

// Status byte values the device writes exactly once per request (spec.md
// §4.7: "inspect the status byte (0 = OK, 1 = IOERR, 2 = UNSUPP)").
const (
	StatusOK     = 0
	StatusIOErr  = 1
	StatusUnsupp = 2
)

// ErrIOError and ErrUnsupported classify a non-zero device status byte.
var (
	ErrIOError     = errors.New("virtio: device reported IOERR")
	ErrUnsupported = errors.New("virtio: device reported UNSUPP")
)

const reqHeaderSize = 16 // type(4) + reserved(4) + sector(8)

// SubmitBlockRequest builds and submits one block request: a 16-byte
// header, a data buffer, and a 1-byte status slot, chained as 3
// descriptors per spec.md §4.7. The caller supplies already-allocated
// physical addresses for all three (C10's bounce buffer and a scratch
// header/status pair); this function only encodes the header, publishes
// the chain, and polls to completion.
//
// poll is invoked on every spin iteration while waiting for the used ring
// to advance; tests supply a bounded poll that eventually returns false so
// a broken fake can't hang the test suite (real hardware passes nil: an
// unbounded busy-poll, matching spec.md §5's "no cooperative yield").
func (d *Device) SubmitBlockRequest(reqType uint32, sector uint64, headerAddr, dataAddr uint64, dataLen uint32, statusAddr uint64, poll func() bool) error {
	dataWrite := reqType == ReqTypeRead // device writes into our buffer on a read

	d.bus.Write32(uintptr(headerAddr)+0, reqType)
	d.bus.Write32(uintptr(headerAddr)+4, 0)
	d.bus.Write64(uintptr(headerAddr)+8, sector)
	d.bus.Write8(uintptr(statusAddr), 0xff) // sentinel so a device that never writes is detectable

	ids, err := d.Queue.publish(headerAddr, reqHeaderSize, dataAddr, dataLen, dataWrite, statusAddr)
	if err != nil {
		return errors.Wrap(err, "virtio: submitting block request")
	}
	head := ids[0]
	d.Notify()

	completedID, ok := d.Queue.pollForCompletion(poll)
	if !ok {
		return errors.New("virtio: request never completed")
	}
	if completedID != head {
		return errors.Errorf("virtio: used ring returned id %d, expected %d", completedID, head)
	}

	d.Queue.freeDescs(ids)

	status := d.bus.Read8(uintptr(statusAddr))
	switch status {
	case StatusOK:
		return nil
	case StatusIOErr:
		return ErrIOError
	case StatusUnsupp:
		return ErrUnsupported
	default:
		return errors.Errorf("virtio: device never wrote a status byte (read %#x)", status)
	}
}
