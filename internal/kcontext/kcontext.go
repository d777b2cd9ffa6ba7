// Package kcontext wires every subsystem instance together into one
// struct the boot sequence threads through, the way the teacher's kernel
// struct in kernel.go holds the console, allocator, and device handles a
// running system needs rather than passing a dozen globals around.
package kcontext

import (
	"github.com/xwings/elinOS/internal/alloc"
	"github.com/xwings/elinOS/internal/blockio"
	"github.com/xwings/elinOS/internal/console"
	"github.com/xwings/elinOS/internal/kconfig"
	"github.com/xwings/elinOS/internal/klog"
	"github.com/xwings/elinOS/internal/vfs"
	"github.com/xwings/elinOS/internal/virtio"
)

// Kernel holds every live subsystem handle, assembled incrementally by the
// boot sequence (spec.md §2: "Boot path walks C3 → C4 → C5 → C9 → C11 →
// C14").
type Kernel struct {
	Config  kconfig.Config
	Log     *klog.Logger
	Console *console.UART

	Allocator *alloc.Allocator
	Block     *virtio.Device
	Disk      *blockio.Cache
	Root      *vfs.FS

	HartID uint64
}

// New returns an empty Kernel seeded with cfg and a logger writing to the
// kernel's console. Subsequent boot steps fill in Allocator, Block, Disk,
// and Root as each subsystem comes up.
func New(cfg kconfig.Config, con *console.UART, hartID uint64) *Kernel {
	return &Kernel{
		Config:  cfg,
		Console: con,
		Log:     klog.New(con, klog.LevelInfo),
		HartID:  hartID,
	}
}

// Ready reports whether every subsystem the syscall dispatcher depends on
// has been wired in. Boot fails loudly (via Log.Error, then a halt loop in
// cmd/elinos) rather than serving syscalls against a half-built kernel.
func (k *Kernel) Ready() bool {
	return k.Allocator != nil && k.Disk != nil && k.Root != nil
}
