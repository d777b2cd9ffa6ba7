//go:build riscv64

package mmio

import "unsafe"

// RealBus reads and writes physical addresses directly. It is only ever
// instantiated when compiled for riscv64 bare metal (identity-mapped
// memory, per spec.md §1), where a uintptr register address and a physical
// address are the same number.
type RealBus struct{}

// Link to assembly primitives in asm_riscv64.s. Each does exactly one
// load or store instruction plus, for Fence, the RISC-V "fence rw,rw"
// instruction -- mirroring the teacher's mmio_read/mmio_write/dsb trio,
// renamed for the target ISA's own fence instruction rather than ARM's dsb.
//
//go:linkname mmioLoad8 mmioLoad8
//go:nosplit
func mmioLoad8(addr uintptr) uint8

//go:linkname mmioLoad16 mmioLoad16
//go:nosplit
func mmioLoad16(addr uintptr) uint16

//go:linkname mmioLoad32 mmioLoad32
//go:nosplit
func mmioLoad32(addr uintptr) uint32

//go:linkname mmioLoad64 mmioLoad64
//go:nosplit
func mmioLoad64(addr uintptr) uint64

//go:linkname mmioStore8 mmioStore8
//go:nosplit
func mmioStore8(addr uintptr, v uint8)

//go:linkname mmioStore16 mmioStore16
//go:nosplit
func mmioStore16(addr uintptr, v uint16)

//go:linkname mmioStore32 mmioStore32
//go:nosplit
func mmioStore32(addr uintptr, v uint32)

//go:linkname mmioStore64 mmioStore64
//go:nosplit
func mmioStore64(addr uintptr, v uint64)

//go:linkname riscvFence riscvFence
//go:nosplit
func riscvFence()

func (RealBus) Read8(addr uintptr) uint8   { return mmioLoad8(addr) }
func (RealBus) Read16(addr uintptr) uint16 { return mmioLoad16(addr) }
func (RealBus) Read32(addr uintptr) uint32 { return mmioLoad32(addr) }
func (RealBus) Read64(addr uintptr) uint64 { return mmioLoad64(addr) }

func (RealBus) Write8(addr uintptr, v uint8)   { mmioStore8(addr, v) }
func (RealBus) Write16(addr uintptr, v uint16) { mmioStore16(addr, v) }
func (RealBus) Write32(addr uintptr, v uint32) { mmioStore32(addr, v) }
func (RealBus) Write64(addr uintptr, v uint64) { mmioStore64(addr, v) }

func (RealBus) Fence() { riscvFence() }

// PhysPointer recovers the raw pointer behind a physical address, for the
// rare caller (bounce-buffer setup, virtqueue ring base) that needs to hand
// a physical address to a device register rather than go through Bus.
//
//go:nosplit
func PhysPointer(addr uintptr) unsafe.Pointer { return unsafe.Pointer(addr) }
