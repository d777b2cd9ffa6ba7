package memprobe

import "github.com/pkg/errors"

// ErrInsufficientMemory is returned when the kernel image plus its minimum
// heap/stack requirement (spec.md §6: 64 KiB heap, 16 KiB stack minimum)
// doesn't leave enough leftover RAM to seed the allocator. spec.md §4.1
// marks this a fatal boot condition; we return an error instead of halting
// so the caller (cmd/elinos) controls how "fatal" is surfaced.
var ErrInsufficientMemory = errors.New("memprobe: kernel image leaves insufficient usable memory")

const pageSize = 4096

func alignUp(v uint64, align uint64) uint64 {
	if v%align == 0 {
		return v
	}
	return v + (align - v%align)
}

func alignDown(v uint64, align uint64) uint64 {
	return v - v%align
}

// KernelImage describes the span of physical memory the bootloader handoff
// (spec.md §6) says is already occupied: the kernel's .text/.rodata/.data/
// .bss plus whatever stack the linker script reserves immediately after it.
type KernelImage struct {
	Base uint64 // spec.md §6: 0x8040_0000
	End  uint64 // linker's _kernel_end
}

// CarveKernelImage removes the kernel image's span from the usable regions
// and returns only the leftover, page-aligned intervals that the buddy
// allocator (C4) may manage — spec.md §4.1: "the allocator is seeded only
// with the leftover intervals."
func CarveKernelImage(regions []Region, img KernelImage) ([]Region, error) {
	var out []Region
	for _, r := range regions {
		if !r.Usable() {
			out = append(out, r)
			continue
		}
		end := r.Base + r.Length
		if img.End <= r.Base || img.Base >= end {
			// No overlap with this region.
			out = append(out, pageAlign(r))
			continue
		}

		// Overlap: keep whatever falls strictly after the kernel image
		// within this region (the kernel is always carved from the start
		// of the region it lives in, per the link layout in spec.md §6).
		leftoverBase := img.End
		if leftoverBase < r.Base {
			leftoverBase = r.Base
		}
		if leftoverBase >= end {
			continue // region fully consumed
		}
		leftover := newRegion(leftoverBase, end-leftoverBase, true, r.Zone())
		out = append(out, pageAlign(leftover))
	}

	total := uint64(0)
	for _, r := range out {
		if r.Usable() {
			total += r.Length
		}
	}
	if total < minHeapAndStack {
		return nil, ErrInsufficientMemory
	}
	return out, nil
}

// minHeapAndStack is spec.md §6's stated minimum: 64 KiB heap + 16 KiB
// stack.
const minHeapAndStack = 64*1024 + 16*1024

func pageAlign(r Region) Region {
	base := alignUp(r.Base, pageSize)
	end := alignDown(r.Base+r.Length, pageSize)
	if end <= base {
		return newRegion(r.Base, 0, r.Usable(), r.Zone())
	}
	return newRegion(base, end-base, r.Usable(), r.Zone())
}
