//go:build riscv64

package main

import (
	"unsafe"

	"github.com/xwings/elinOS/internal/kcontext"
)

// Raw physical memory access for syscall argument pointers and ELF segment
// copies. This kernel is identity-mapped and single-address-space (spec.md
// §1: "single-hart... identity-mapped"), so a user pointer, a physical
// address, and a uintptr are all the same number — there is no MMU
// translation step.

func writeMemory(addr uint64, data []byte) error {
	dst := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), len(data))
	copy(dst, data)
	return nil
}

func readUserBytes(k *kcontext.Kernel, addr uint64, n int) []byte {
	src := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), n)
	out := make([]byte, n)
	copy(out, src)
	return out
}

func writeUserBytes(k *kcontext.Kernel, addr uint64, data []byte) {
	dst := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), len(data))
	copy(dst, data)
}

func readCString(k *kcontext.Kernel, addr uint64) string {
	p := unsafe.Pointer(uintptr(addr))
	var n int
	for {
		b := *(*byte)(unsafe.Pointer(uintptr(unsafe.Pointer(p)) + uintptr(n)))
		if b == 0 {
			break
		}
		n++
	}
	src := unsafe.Slice((*byte)(p), n)
	return string(src)
}

// dtbBytes reads the flattened device tree SBI's boot handoff left at
// dtbPointer into a Go byte slice, sized from the FDT header's own
// big-endian totalsize field at offset 4 (the same field
// memprobe.ParseMemoryRegions and chosenBootArgs trust once they have the
// slice). Returns nil if firmware passed no DTB (a0/a1 boot convention
// dtbPointer==0) or the header doesn't start with the FDT magic.
func dtbBytes() []byte {
	if dtbPointer == 0 {
		return nil
	}
	head := unsafe.Slice((*byte)(unsafe.Pointer(dtbPointer)), 8)
	magic := uint32(head[0])<<24 | uint32(head[1])<<16 | uint32(head[2])<<8 | uint32(head[3])
	if magic != 0xd00dfeed {
		return nil
	}
	size := uint32(head[4])<<24 | uint32(head[5])<<16 | uint32(head[6])<<8 | uint32(head[7])
	return unsafe.Slice((*byte)(unsafe.Pointer(dtbPointer)), size)
}
