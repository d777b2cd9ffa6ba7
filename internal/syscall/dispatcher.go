// Package syscall implements the C8 range-routed syscall dispatcher:
// numeric ranges map to category handlers, not a table lookup, per
// spec.md §4.6. The handler-interface style (each category a small
// interface the kernel context implements) mirrors the teacher's
// syscall.go dispatch-by-number switch, generalized to Linux's numbering.
package syscall

import "github.com/pkg/errors"

// Args are the six argument registers a0..a5 as the trap frame hands them
// over (spec.md §4.6).
type Args [6]uint64

// Result is a syscall's return value. Negative values are Linux errno
// codes; non-negative values are successful results (spec.md §4.6: "A
// successful call returns a non-negative value").
type Result int64

// Category identifies which range a syscall number fell into, mostly for
// diagnostics and tests.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryFileIO
	CategoryProcess
	CategoryMemory
	CategoryElinOS
)

// Handlers is the set of category implementations the dispatcher routes
// to. Each is an interface so tests can supply a fake without standing up
// the full VFS/allocator/kernel-context stack.
type Handlers struct {
	FileIO  FileIOHandler
	Process ProcessHandler
	Memory  MemoryHandler
	ElinOS  ElinOSHandler
}

// FileIOHandler serves syscalls 35-83 (spec.md §4.6).
type FileIOHandler interface {
	OpenAt(args Args) Result
	Close(args Args) Result
	Read(args Args) Result
	Write(args Args) Result
	Getdents64(args Args) Result
}

// ProcessHandler serves syscalls 93-178 and 220-221.
type ProcessHandler interface {
	Exit(args Args) Result
	GetPID(args Args) Result
	GetPPID(args Args) Result
	GetUID(args Args) Result
	GetGID(args Args) Result
	GetTID(args Args) Result
	// Clone and Execve are stubs per spec.md §9's authoritative note
	// ("process create/exec are stubs"); both must return ENOSYS.
	Clone(args Args) Result
	Execve(args Args) Result
}

// MemoryHandler serves syscalls 214-239.
type MemoryHandler interface {
	Brk(args Args) Result
	Mmap(args Args) Result
	Munmap(args Args) Result
}

// ElinOSHandler serves the kernel-specific 900-999 range.
type ElinOSHandler interface {
	Version(args Args) Result
	Shutdown(args Args) Result
	Reboot(args Args) Result
	LoadELF(args Args) Result
	ELFInfo(args Args) Result
	ExecELF(args Args) Result
	DebugPrint(args Args) Result
	// FSInfo writes a packed {kind, total_sectors, bytes_per_sector,
	// free_bytes} record to the buffer args[0] points at (SPEC_FULL.md
	// §5: vfs.Info() surfaced as SYS_FS_INFO).
	FSInfo(args Args) Result
}

// Linux syscall numbers this dispatcher recognizes within each range
// (spec.md §4.6's "Implemented operations" column).
const (
	sysOpenAt     = 56
	sysClose      = 57
	sysRead       = 63
	sysWrite      = 64
	sysGetdents64 = 61

	sysExit   = 93
	sysGetPID = 172
	sysGetPPID = 173
	sysGetUID  = 174
	sysGetGID  = 176
	sysGetTID  = 178
	sysClone   = 220
	sysExecve  = 221

	sysBrk    = 214
	sysMmap   = 222
	sysMunmap = 215

	sysVersion    = 900
	sysShutdown   = 901
	sysReboot     = 902
	sysLoadELF    = 903
	sysELFInfo    = 904
	sysExecELF    = 905
	sysDebugPrint = 906
	sysFSInfo     = 907
)

// ErrNoHandlers names the case where the category a syscall number falls
// into has no registered handler. Dispatch does not return it: it reports
// that case to the caller as ENOSYS.
var ErrNoHandlers = errors.New("syscall: no handler registered for category")

// CategoryOf classifies a syscall number by numeric range, per spec.md
// §4.6's routing table. It does not check whether the number is one of the
// "Implemented operations" within that range; Dispatch does that.
func CategoryOf(num uint64) Category {
	switch {
	case num >= 35 && num <= 83:
		return CategoryFileIO
	case (num >= 93 && num <= 178) || num == 220 || num == 221:
		return CategoryProcess
	case num >= 214 && num <= 239:
		return CategoryMemory
	case num >= 900 && num <= 999:
		return CategoryElinOS
	default:
		return CategoryUnknown
	}
}

// Dispatch routes a syscall number and its arguments to the matching
// category handler's specific operation, returning ENOSYS for any number
// that falls within a known category's numeric range but isn't one of the
// operations that category actually implements, and for every number
// outside all ranges (spec.md §8: "for every number outside the supported
// ranges, the return value is -ENOSYS style").
func Dispatch(h Handlers, num uint64, args Args) Result {
	switch CategoryOf(num) {
	case CategoryFileIO:
		if h.FileIO == nil {
			return ENOSYS
		}
		switch num {
		case sysOpenAt:
			return h.FileIO.OpenAt(args)
		case sysClose:
			return h.FileIO.Close(args)
		case sysRead:
			return h.FileIO.Read(args)
		case sysWrite:
			return h.FileIO.Write(args)
		case sysGetdents64:
			return h.FileIO.Getdents64(args)
		default:
			return ENOSYS
		}

	case CategoryProcess:
		if h.Process == nil {
			return ENOSYS
		}
		switch num {
		case sysExit:
			return h.Process.Exit(args)
		case sysGetPID:
			return h.Process.GetPID(args)
		case sysGetPPID:
			return h.Process.GetPPID(args)
		case sysGetUID:
			return h.Process.GetUID(args)
		case sysGetGID:
			return h.Process.GetGID(args)
		case sysGetTID:
			return h.Process.GetTID(args)
		case sysClone:
			return h.Process.Clone(args)
		case sysExecve:
			return h.Process.Execve(args)
		default:
			return ENOSYS
		}

	case CategoryMemory:
		if h.Memory == nil {
			return ENOSYS
		}
		switch num {
		case sysBrk:
			return h.Memory.Brk(args)
		case sysMmap:
			return h.Memory.Mmap(args)
		case sysMunmap:
			return h.Memory.Munmap(args)
		default:
			return ENOSYS
		}

	case CategoryElinOS:
		if h.ElinOS == nil {
			return ENOSYS
		}
		switch num {
		case sysVersion:
			return h.ElinOS.Version(args)
		case sysShutdown:
			return h.ElinOS.Shutdown(args)
		case sysReboot:
			return h.ElinOS.Reboot(args)
		case sysLoadELF:
			return h.ElinOS.LoadELF(args)
		case sysELFInfo:
			return h.ElinOS.ELFInfo(args)
		case sysExecELF:
			return h.ElinOS.ExecELF(args)
		case sysDebugPrint:
			return h.ElinOS.DebugPrint(args)
		case sysFSInfo:
			return h.ElinOS.FSInfo(args)
		default:
			return ENOSYS
		}

	default:
		return ENOSYS
	}
}
