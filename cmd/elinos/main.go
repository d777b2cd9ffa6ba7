//go:build riscv64

package main

import (
	"github.com/xwings/elinOS/internal/console"
	"github.com/xwings/elinOS/internal/kconfig"
	"github.com/xwings/elinOS/internal/kcontext"
	"github.com/xwings/elinOS/internal/memprobe"
	"github.com/xwings/elinOS/internal/mmio"
	"github.com/xwings/elinOS/internal/sbi"
)

// Fixed platform addresses QEMU's virt machine documents (spec.md §6).
const (
	uartBase       = uintptr(0x1000_0000)
	virtioMMIOBase = uintptr(0x1000_1000)
	virtioRingBase = uintptr(0x8800_0000) // carved out of RAM, above the kernel image
)

// kernelImage brackets the span memprobe.CarveKernelImage must remove from
// the probed regions before the buddy allocator ever sees them (spec.md
// §4.1: "the allocator is seeded only with the leftover intervals").
// kernelImage.End is a conservative fixed estimate (8 MiB past the load
// address) rather than a linker-provided _kernel_end symbol: this repo
// ships no linker script, so there is nothing else to read it from.
var kernelImage = memprobe.KernelImage{
	Base: 0x8040_0000,
	End:  0x8040_0000 + 8*1024*1024,
}

// dtbPointer and hartID are provided by the assembly trampoline that
// transfers control here: a0 holds the hart id, a1 the device tree blob
// pointer, per the SBI boot ABI spec.md §6 documents.
//
//go:linkname dtbPointer elinos_dtb_pointer
var dtbPointer uintptr

//go:linkname bootHartID elinos_hart_id
var bootHartID uint64

func main() {
	bus := mmio.RealBus{}
	con := console.New(bus, uartBase)
	con.Init()

	cfg := kconfig.Default()
	dtb := dtbBytes()
	if dtb != nil {
		if bootargs := chosenBootArgs(dtb); bootargs != "" {
			cfg = cfg.ApplyBootArgs(bootargs)
		}
	}

	k := kcontext.New(cfg, con, bootHartID)
	k.Log.Info("elinOS starting")

	var probed []memprobe.Region
	if dtb != nil {
		if parsed, err := memprobe.ParseMemoryRegions(dtb); err == nil {
			probed = parsed
		}
	}
	if len(probed) == 0 {
		probed = []memprobe.Region{memprobe.DefaultRegion()}
	}

	carved, err := memprobe.CarveKernelImage(probed, kernelImage)
	if err != nil {
		k.Log.Error("carving kernel image out of usable memory: " + err.Error())
		sbi.Shutdown(sbi.HartCaller{})
		halt()
	}
	var regions []Region
	for _, r := range carved {
		regions = append(regions, Region{Base: r.Base, Length: r.Length, Usable: r.Usable()})
	}

	params := BootParams{
		Bus:           bus,
		MemoryRegions: regions,
		VirtioBase:    virtioMMIOBase,
		VirtioRing:    virtioRingBase,
	}
	if err := Boot(k, params); err != nil {
		k.Log.Error("boot failed: " + err.Error())
		sbi.Shutdown(sbi.HartCaller{})
		halt()
	}

	handlers := Handlers(k)
	runShell(k, handlers)

	sbi.Shutdown(sbi.HartCaller{})
	halt()
}

func halt() {
	for {
	}
}
