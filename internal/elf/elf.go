// Package elf implements the C15 ELF64 loader: header/program-header
// validation and PT_LOAD segment mapping, per spec.md §3/§4.13. Real
// execution requires an MMU this kernel doesn't have, so ExecELF simulates
// the jump by reporting the resolved entry point and segment layout
// instead, matching spec.md's documented non-goal.
package elf

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

var (
	ErrBadMagic      = errors.New("elf: bad magic")
	ErrNot64Bit      = errors.New("elf: not a 64-bit ELF")
	ErrNotLittle     = errors.New("elf: not little-endian")
	ErrWrongMachine  = errors.New("elf: not a RISC-V image")
	ErrWrongType     = errors.New("elf: type is not EXEC or DYN")
	ErrSegmentSizing = errors.New("elf: PT_LOAD p_filesz exceeds p_memsz")
	ErrTruncated     = errors.New("elf: image truncated before declared header boundary")
)

const (
	classELF64   = 2
	dataLittle   = 1
	machineRISCV = 0xF3

	etExec = 2
	etDyn  = 3

	ptLoad = 1
)

// Segment protection bits from p_flags.
const (
	ProtExec  = 1
	ProtWrite = 2
	ProtRead  = 4
)

// Segment is one validated PT_LOAD program header, ready to be mapped.
type Segment struct {
	VAddr    uint64
	FileSize uint64
	MemSize  uint64
	Flags    uint32
	fileOff  uint64
}

// Image is a validated, not-yet-loaded ELF64 executable.
type Image struct {
	Entry    uint64
	Segments []Segment
	raw      []byte
}

// Validate parses and checks an ELF64 RISC-V executable's header and
// program headers (spec.md §4.13: "Validates magic, class, endianness,
// machine, type; every PT_LOAD has p_filesz <= p_memsz").
func Validate(raw []byte) (*Image, error) {
	if len(raw) < 64 {
		return nil, ErrTruncated
	}
	if raw[0] != 0x7F || raw[1] != 'E' || raw[2] != 'L' || raw[3] != 'F' {
		return nil, ErrBadMagic
	}
	if raw[4] != classELF64 {
		return nil, ErrNot64Bit
	}
	if raw[5] != dataLittle {
		return nil, ErrNotLittle
	}

	etype := binary.LittleEndian.Uint16(raw[16:18])
	if etype != etExec && etype != etDyn {
		return nil, ErrWrongType
	}
	machine := binary.LittleEndian.Uint16(raw[18:20])
	if machine != machineRISCV {
		return nil, ErrWrongMachine
	}

	entry := binary.LittleEndian.Uint64(raw[24:32])
	phoff := binary.LittleEndian.Uint64(raw[32:40])
	phentsize := binary.LittleEndian.Uint16(raw[54:56])
	phnum := binary.LittleEndian.Uint16(raw[56:58])

	img := &Image{Entry: entry, raw: raw}
	for i := uint16(0); i < phnum; i++ {
		off := phoff + uint64(i)*uint64(phentsize)
		if off+56 > uint64(len(raw)) {
			return nil, ErrTruncated
		}
		ph := raw[off : off+56]

		ptype := binary.LittleEndian.Uint32(ph[0:4])
		if ptype != ptLoad {
			continue
		}
		flags := binary.LittleEndian.Uint32(ph[4:8])
		fileOff := binary.LittleEndian.Uint64(ph[8:16])
		vaddr := binary.LittleEndian.Uint64(ph[16:24])
		filesz := binary.LittleEndian.Uint64(ph[32:40])
		memsz := binary.LittleEndian.Uint64(ph[40:48])

		if filesz > memsz {
			return nil, ErrSegmentSizing
		}
		if fileOff+filesz > uint64(len(raw)) {
			return nil, ErrTruncated
		}

		img.Segments = append(img.Segments, Segment{
			VAddr:    vaddr,
			FileSize: filesz,
			MemSize:  memsz,
			Flags:    flags,
			fileOff:  fileOff,
		})
	}
	return img, nil
}

// PageAllocator is the memory source segment mapping draws from; alloc.Allocator
// satisfies it.
type PageAllocator interface {
	Alloc(n int) (uint64, error)
}

// MappedSegment records where a validated segment landed in physical
// memory after Load.
type MappedSegment struct {
	Segment
	PhysAddr uint64
}

// Loaded is a fully mapped image, ready for (simulated) execution.
type Loaded struct {
	Entry    uint64
	Segments []MappedSegment
}

const pageSize = 4096

func pageAlign(n uint64) uint64 {
	return (n + pageSize - 1) &^ (pageSize - 1)
}

// Load allocates memory for and copies every PT_LOAD segment of img
// (spec.md §4.13: "allocate memory covering [p_vaddr, p_vaddr+p_memsz),
// page-aligned; copy p_filesz bytes; zero the remainder").
func Load(img *Image, pages PageAllocator, write func(addr uint64, data []byte) error) (*Loaded, error) {
	out := &Loaded{Entry: img.Entry}
	for _, seg := range img.Segments {
		size := int(pageAlign(seg.MemSize))
		phys, err := pages.Alloc(size)
		if err != nil {
			return nil, errors.Wrapf(err, "elf: allocating %d bytes for segment at vaddr 0x%x", size, seg.VAddr)
		}

		zeros := make([]byte, size)
		if err := write(phys, zeros); err != nil {
			return nil, errors.Wrap(err, "elf: zeroing segment memory")
		}
		if seg.FileSize > 0 {
			data := img.raw[seg.fileOff : seg.fileOff+seg.FileSize]
			if err := write(phys, data); err != nil {
				return nil, errors.Wrap(err, "elf: copying segment data")
			}
		}

		out.Segments = append(out.Segments, MappedSegment{Segment: seg, PhysAddr: phys})
	}
	return out, nil
}

// ExecResult is what ExecELF reports instead of actually transferring
// control, since that needs an MMU this kernel doesn't implement.
type ExecResult struct {
	Entry        uint64
	SegmentCount int
}

// ExecELF simulates execution by reporting the entry point and segment
// layout (spec.md §4.13: "exec_elf... simulates execution by reporting
// entry and segment layout; actual jump to user mode requires an MMU").
func ExecELF(loaded *Loaded) ExecResult {
	return ExecResult{Entry: loaded.Entry, SegmentCount: len(loaded.Segments)}
}
