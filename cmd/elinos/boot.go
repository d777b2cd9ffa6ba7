// Command elinos is the elinOS kernel entry point. Boot, defined here,
// implements the data-flow spec.md §2 documents: "Boot path walks C3 → C4
// → C5 → C9 → C11 → C14." It is kept separate from main() so the sequence
// can run against fakes in tests, the same split the teacher's kernel.go
// keeps from its assembly _start trampoline.
package main

import (
	"github.com/pkg/errors"

	"github.com/xwings/elinOS/internal/alloc"
	"github.com/xwings/elinOS/internal/blockio"
	"github.com/xwings/elinOS/internal/buddy"
	"github.com/xwings/elinOS/internal/ext2"
	"github.com/xwings/elinOS/internal/fat32"
	"github.com/xwings/elinOS/internal/fsdetect"
	"github.com/xwings/elinOS/internal/kcontext"
	ksyscall "github.com/xwings/elinOS/internal/syscall"
	"github.com/xwings/elinOS/internal/vfs"
	"github.com/xwings/elinOS/internal/virtio"
	"github.com/xwings/elinOS/internal/mmio"
)

var (
	ErrNoMemoryRegions   = errors.New("elinos: memprobe reported no usable memory regions")
	ErrNoBlockDevice     = errors.New("elinos: no VirtIO block device found at the expected MMIO base")
	ErrUnknownFilesystem = errors.New("elinos: filesystem detector found neither FAT32 nor ext2")
)

// BootParams are the handful of platform facts the boot sequence needs
// from outside — the firmware handoff, and the fixed MMIO bases QEMU virt
// documents (spec.md §6).
type BootParams struct {
	Bus           mmio.Bus
	MemoryRegions []Region
	VirtioBase    uintptr
	VirtioRing    uintptr

	// PollHook, when set, is installed on the block cache in place of the
	// unbounded busy-poll real hardware uses. Production boots never set
	// this; it exists so tests can drive a FakeBus-backed device
	// synchronously, the same seam blockio.Cache.SetPollHook documents.
	PollHook func() bool
}

// Region mirrors memprobe.Region's fields the buddy allocator needs,
// avoiding a direct dependency cycle concern between main and memprobe in
// this file (memprobe.ParseMemoryRegions feeds this from main.go).
type Region struct {
	Base, Length uint64
	Usable       bool
}

// Boot assembles every subsystem into k, following spec.md §2's boot order:
// C3 (memory already probed into params.MemoryRegions) → C4 (buddy) → C5
// (slab, via the two-tier allocator) → C9 (VirtIO) → C11 (detect) → C14
// (VFS).
func Boot(k *kcontext.Kernel, params BootParams) error {
	maxOrder := k.Config.BuddyMaxOrder
	pages := buddy.New(maxOrder)
	usable := 0
	for _, r := range params.MemoryRegions {
		if !r.Usable {
			continue
		}
		if err := pages.AddRegion(r.Base, r.Length); err == nil {
			usable++
		}
	}
	if usable == 0 {
		return ErrNoMemoryRegions
	}
	k.Allocator = alloc.New(alloc.Hybrid, pages)

	present, err := virtio.Probe(params.Bus, params.VirtioBase)
	if err != nil {
		return errors.Wrap(err, "elinos: probing VirtIO device")
	}
	if !present {
		return ErrNoBlockDevice
	}
	dev, err := virtio.Init(params.Bus, params.VirtioBase, params.VirtioRing)
	if err != nil {
		return errors.Wrap(err, "elinos: initializing VirtIO block device")
	}
	k.Block = dev
	k.Disk = blockio.New(dev, params.Bus, k.Allocator)
	if params.PollHook != nil {
		k.Disk.SetPollHook(params.PollHook)
	}

	var prefix [2048]byte
	for i := 0; i < 4; i++ {
		if err := k.Disk.ReadBlock(uint64(i), prefix[i*512:(i+1)*512]); err != nil {
			return errors.Wrap(err, "elinos: reading filesystem probe sectors")
		}
	}

	switch fsdetect.Detect(prefix[:]) {
	case fsdetect.FAT32:
		fs, err := fat32.Mount(k.Disk)
		if err != nil {
			return errors.Wrap(err, "elinos: mounting FAT32")
		}
		k.Root = vfs.MountFAT32(fs)
	case fsdetect.Ext2:
		fs, err := ext2.Mount(k.Disk)
		if err != nil {
			return errors.Wrap(err, "elinos: mounting ext2")
		}
		k.Root = vfs.MountExt2(fs)
	default:
		return ErrUnknownFilesystem
	}

	k.Log.Info("boot complete")
	return nil
}

// Handlers builds the syscall dispatcher's category handlers bound to k.
// Kept out of Boot itself so tests can wire handlers against a kernel that
// skipped the VirtIO/FS steps (e.g. to exercise Memory/Process routing
// alone).
func Handlers(k *kcontext.Kernel) ksyscall.Handlers {
	return ksyscall.Handlers{
		FileIO:  &fileIOHandler{k: k},
		Process: &processHandler{k: k},
		Memory:  &memoryHandler{k: k},
		ElinOS:  &elinosHandler{k: k},
	}
}
