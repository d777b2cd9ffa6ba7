package main

// Syscall category handlers, one file descriptor table and one ELF loader
// staging slot per kernel instance — this is the "thin" process model
// spec.md §4.14 describes ("only one user process exists at a time in this
// version"). Each handler method takes the dispatcher's syscall.Args by
// value and maps failures to fixed Linux errno values; OpenAt alone tells
// vfs.ErrNotFound (ENOENT) apart from other errors, via errors.Is.

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/xwings/elinOS/internal/elf"
	"github.com/xwings/elinOS/internal/kcontext"
	"github.com/xwings/elinOS/internal/sbi"
	ksyscall "github.com/xwings/elinOS/internal/syscall"
	"github.com/xwings/elinOS/internal/vfs"
)

const maxOpenFiles = 16

type openFile struct {
	path   string
	data   []byte
	offset int
	inUse  bool
}

// fileIOHandler implements ksyscall.FileIOHandler against the VFS facade.
type fileIOHandler struct {
	k     *kcontext.Kernel
	files [maxOpenFiles]openFile
}

func (h *fileIOHandler) allocFD() int {
	for i := range h.files {
		if !h.files[i].inUse {
			return i
		}
	}
	return -1
}

func (h *fileIOHandler) OpenAt(args ksyscall.Args) ksyscall.Result {
	path := readCString(h.k, args[1])
	data, err := h.k.Root.ReadFile(path)
	if errors.Is(err, vfs.ErrNotFound) {
		return ksyscall.Result(ksyscall.ENOENT)
	}
	if err != nil {
		return ksyscall.Result(ksyscall.EIO)
	}
	fd := h.allocFD()
	if fd < 0 {
		return ksyscall.Result(ksyscall.ENOMEM)
	}
	h.files[fd] = openFile{path: path, data: data, inUse: true}
	return ksyscall.Result(fd)
}

func (h *fileIOHandler) Close(args ksyscall.Args) ksyscall.Result {
	fd := int(args[0])
	if fd < 0 || fd >= maxOpenFiles || !h.files[fd].inUse {
		return ksyscall.Result(ksyscall.EINVAL)
	}
	h.files[fd] = openFile{}
	return 0
}

func (h *fileIOHandler) Read(args ksyscall.Args) ksyscall.Result {
	fd := int(args[0])
	count := int(args[2])
	if fd < 0 || fd >= maxOpenFiles || !h.files[fd].inUse {
		return ksyscall.Result(ksyscall.EINVAL)
	}
	f := &h.files[fd]
	remaining := len(f.data) - f.offset
	if remaining <= 0 {
		return 0
	}
	if count > remaining {
		count = remaining
	}
	writeUserBytes(h.k, args[1], f.data[f.offset:f.offset+count])
	f.offset += count
	return ksyscall.Result(count)
}

func (h *fileIOHandler) Write(args ksyscall.Args) ksyscall.Result {
	fd := int(args[0])
	count := int(args[2])
	if fd == 1 || fd == 2 {
		data := readUserBytes(h.k, args[1], count)
		h.k.Console.PutString(string(data))
		return ksyscall.Result(count)
	}
	return ksyscall.Result(ksyscall.EINVAL)
}

func (h *fileIOHandler) Getdents64(args ksyscall.Args) ksyscall.Result {
	fd := int(args[0])
	if fd < 0 || fd >= maxOpenFiles || !h.files[fd].inUse {
		return ksyscall.Result(ksyscall.EINVAL)
	}
	entries, err := h.k.Root.List(h.files[fd].path)
	if err != nil {
		return ksyscall.Result(ksyscall.EIO)
	}
	return ksyscall.Result(len(entries))
}

// processHandler implements ksyscall.ProcessHandler for the single
// always-running process this version supports.
type processHandler struct {
	k        *kcontext.Kernel
	exited   bool
	exitCode int
}

func (h *processHandler) Exit(args ksyscall.Args) ksyscall.Result {
	h.exited = true
	h.exitCode = int(args[0])
	return 0
}
func (h *processHandler) GetPID(ksyscall.Args) ksyscall.Result  { return 1 }
func (h *processHandler) GetPPID(ksyscall.Args) ksyscall.Result { return 0 }
func (h *processHandler) GetUID(ksyscall.Args) ksyscall.Result  { return 0 }
func (h *processHandler) GetGID(ksyscall.Args) ksyscall.Result  { return 0 }
func (h *processHandler) GetTID(ksyscall.Args) ksyscall.Result  { return 1 }

// Clone and Execve are stubs per spec.md §9: "process create/exec are
// stubs" — this kernel never forks or re-execs a running image.
func (h *processHandler) Clone(ksyscall.Args) ksyscall.Result  { return ksyscall.Result(ksyscall.ENOSYS) }
func (h *processHandler) Execve(ksyscall.Args) ksyscall.Result { return ksyscall.Result(ksyscall.ENOSYS) }

// memoryHandler implements ksyscall.MemoryHandler atop the fallible
// allocator (C6); mmap/munmap degrade to brk-style allocation since there
// is no MMU to back page-granular mappings.
type memoryHandler struct {
	k   *kcontext.Kernel
	brk uint64
}

func (h *memoryHandler) Brk(args ksyscall.Args) ksyscall.Result {
	requested := args[0]
	if requested == 0 {
		return ksyscall.Result(h.brk)
	}
	h.brk = requested
	return ksyscall.Result(h.brk)
}

func (h *memoryHandler) Mmap(args ksyscall.Args) ksyscall.Result {
	length := int(args[1])
	addr, err := h.k.Allocator.Alloc(length)
	if err != nil {
		return ksyscall.Result(ksyscall.ENOMEM)
	}
	return ksyscall.Result(addr)
}

func (h *memoryHandler) Munmap(args ksyscall.Args) ksyscall.Result {
	addr := args[0]
	length := int(args[1])
	if err := h.k.Allocator.Free(addr, length); err != nil {
		return ksyscall.Result(ksyscall.EINVAL)
	}
	return 0
}

// elinosHandler implements the 900-999 kernel-specific range.
type elinosHandler struct {
	k       *kcontext.Kernel
	staged  *elf.Image
	loaded  *elf.Loaded
}

const elinOSVersion = 0x00010000 // 1.0, encoded major<<16|minor

func (h *elinosHandler) Version(ksyscall.Args) ksyscall.Result { return elinOSVersion }

func (h *elinosHandler) Shutdown(ksyscall.Args) ksyscall.Result {
	sbi.Shutdown(sbi.HartCaller{})
	return 0
}

func (h *elinosHandler) Reboot(ksyscall.Args) ksyscall.Result {
	sbi.Reboot(sbi.HartCaller{})
	return 0
}

func (h *elinosHandler) LoadELF(args ksyscall.Args) ksyscall.Result {
	path := readCString(h.k, args[0])
	data, err := h.k.Root.ReadFile(path)
	if err != nil {
		return ksyscall.Result(ksyscall.ENOENT)
	}
	img, err := elf.Validate(data)
	if err != nil {
		return ksyscall.Result(ksyscall.EINVAL)
	}
	h.staged = img
	return 0
}

func (h *elinosHandler) ELFInfo(ksyscall.Args) ksyscall.Result {
	if h.staged == nil {
		return ksyscall.Result(ksyscall.EINVAL)
	}
	return ksyscall.Result(h.staged.Entry)
}

func (h *elinosHandler) ExecELF(ksyscall.Args) ksyscall.Result {
	if h.staged == nil {
		return ksyscall.Result(ksyscall.EINVAL)
	}
	loaded, err := elf.Load(h.staged, h.k.Allocator, writeMemory)
	if err != nil {
		return ksyscall.Result(ksyscall.ENOMEM)
	}
	h.loaded = loaded
	result := elf.ExecELF(loaded)
	return ksyscall.Result(result.Entry)
}

func (h *elinosHandler) DebugPrint(args ksyscall.Args) ksyscall.Result {
	msg := readCString(h.k, args[0])
	h.k.Console.PutString(msg)
	return ksyscall.Result(len(msg))
}

// fsInfoRecordSize is sizeof{kind uint32, total_sectors uint32,
// bytes_per_sector uint32, free_bytes uint64}, packed with no padding.
const fsInfoRecordSize = 20

// FSInfo writes vfs.Info()'s {kind, total_sectors, bytes_per_sector,
// free_bytes} to the buffer args[0] points at (SPEC_FULL.md §5).
func (h *elinosHandler) FSInfo(args ksyscall.Args) ksyscall.Result {
	if h.k.Root == nil {
		return ksyscall.Result(ksyscall.EINVAL)
	}
	info := h.k.Root.Info()

	var buf [fsInfoRecordSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], uint32(info.Kind))
	binary.LittleEndian.PutUint32(buf[4:8], info.TotalSectors)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(info.BytesPerSector))
	binary.LittleEndian.PutUint64(buf[12:20], info.FreeBytes)
	writeUserBytes(h.k, args[0], buf[:])
	return 0
}
