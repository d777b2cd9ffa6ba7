// Package trapframe describes the supervisor trap frame and scause
// classification for the C7 trap entry described in spec.md §4.5/§4.14:
// "the trap frame is a fixed-size plain record; no heap allocation in the
// trap path." The save/restore discipline mirrors the teacher's
// exceptions.go exceptionVector, generalized from AArch64's exception
// levels/ESR_EL1 to RISC-V's scause/sepc/sstatus triple.
package trapframe

import "github.com/pkg/errors"

// Frame is the fixed-size saved integer register file for one trap, one per
// hart (spec.md §4.5: "single-hart... a per-hart trap frame").
type Frame struct {
	// General-purpose registers x1 (ra) through x31. x0 is hardwired zero
	// and not saved.
	X [31]uint64

	Sepc    uint64 // supervisor exception program counter
	Sstatus uint64 // supervisor status (SPP bit restored on return)
	Scause  uint64 // cause register, read once at entry
	Stval   uint64 // trap value (faulting address/instruction, informational)
}

// Syscall register indices into Frame.X, RISC-V calling convention: a0-a5
// carry syscall arguments, a7 the syscall number, a0 the return value
// (spec.md §6's "Syscall ABI (RISC-V)").
const (
	regA0 = 9  // x10
	regA1 = 10 // x11
	regA2 = 11 // x12
	regA3 = 12 // x13
	regA4 = 13 // x14
	regA5 = 14 // x15
	regA7 = 16 // x17
)

// SyscallNumber reads a7.
func (f *Frame) SyscallNumber() uint64 { return f.X[regA7] }

// SyscallArgs reads a0..a5 in order.
func (f *Frame) SyscallArgs() [6]uint64 {
	return [6]uint64{f.X[regA0], f.X[regA1], f.X[regA2], f.X[regA3], f.X[regA4], f.X[regA5]}
}

// SetReturnValue writes ret into a0, the only register the restore path
// overwrites from the handler's result (spec.md §4.5: "restore discipline:
// all general-purpose registers except a0... are restored").
func (f *Frame) SetReturnValue(ret int64) { f.X[regA0] = uint64(ret) }

// scauseInterruptBit is bit 63 of scause on RV64: set for interrupts,
// clear for synchronous exceptions.
const scauseInterruptBit = uint64(1) << 63

// Cause classifications (RISC-V privileged spec exception codes, the
// subset spec.md §4.5 names).
const (
	ExceptionEnvCallFromU = 8 // ECALL from U-mode
	ExceptionIllegalInstr = 2
	ExceptionLoadPageFault  = 13
	ExceptionStorePageFault = 15
)

// Kind is the result of classifying scause.
type Kind int

const (
	KindInterrupt Kind = iota
	KindSyscall
	KindSynchronousException
)

// ErrNestedTrap is returned when the trap handler detects a trap during
// trap handling, which spec.md §4.5 calls fatal ("nested traps are fatal").
var ErrNestedTrap = errors.New("trapframe: nested trap while interrupts disabled")

// Classify inspects scause and reports the dispatch category a trap vector
// uses to route to C8 (syscalls) or a kernel-fatal exception path
// (spec.md §4.5).
func Classify(scause uint64) Kind {
	if scause&scauseInterruptBit != 0 {
		return KindInterrupt
	}
	code := scause &^ scauseInterruptBit
	if code == ExceptionEnvCallFromU {
		return KindSyscall
	}
	return KindSynchronousException
}

// AdvancePastEcall advances sepc by 4 (one instruction) past the ecall that
// trapped, so the restored U-mode program counter resumes after it
// (spec.md §4.5: "advance sepc by 4").
func (f *Frame) AdvancePastEcall() { f.Sepc += 4 }

// ExceptionName renders a synchronous exception code for diagnostics; it
// does not attempt to be exhaustive (spec.md scopes human-readable
// diagnostic strings to the shell, an external collaborator).
func ExceptionName(code uint64) string {
	switch code {
	case ExceptionIllegalInstr:
		return "illegal instruction"
	case ExceptionLoadPageFault:
		return "load page fault"
	case ExceptionStorePageFault:
		return "store page fault"
	case ExceptionEnvCallFromU:
		return "environment call from U-mode"
	default:
		return "unknown synchronous exception"
	}
}
