//go:build !riscv64

package main

import "github.com/xwings/elinOS/internal/kcontext"

// Host-side stand-in for memory.go's real unsafe.Pointer-based physical
// memory access, the same Real/Fake split internal/mmio and internal/sbi
// use for everything else that touches hardware. Addresses here index
// into a single in-process arena rather than physical RAM, so syscall
// handler logic is unit-testable on a development machine.

var hostMemory = make([]byte, 16*1024*1024)

func writeMemory(addr uint64, data []byte) error {
	copy(hostMemory[addr:], data)
	return nil
}

func readUserBytes(k *kcontext.Kernel, addr uint64, n int) []byte {
	out := make([]byte, n)
	copy(out, hostMemory[addr:addr+uint64(n)])
	return out
}

func writeUserBytes(k *kcontext.Kernel, addr uint64, data []byte) {
	copy(hostMemory[addr:], data)
}

func readCString(k *kcontext.Kernel, addr uint64) string {
	end := addr
	for end < uint64(len(hostMemory)) && hostMemory[end] != 0 {
		end++
	}
	return string(hostMemory[addr:end])
}
