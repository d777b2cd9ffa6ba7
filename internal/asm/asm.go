// Package asm holds the assembly entry trampoline that transfers control
// from firmware into the Go runtime, the RISC-V counterpart to the
// teacher's boot.S: save the SBI-provided hart id and device tree pointer
// into globals main can read, set up a stack, then jump into rt0_go.
//
// This package is deliberately empty of Go source beyond this doc comment
// -- entry_riscv64.s is linked into the final binary purely for its
// assembly symbols (elinos_dtb_pointer, elinos_hart_id, _start), which
// cmd/elinos reaches via go:linkname rather than a normal import, the same
// indirection internal/mmio and internal/sbi use for their own primitives.
package asm
