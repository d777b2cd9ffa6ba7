package bitfield

// Zone classifies a physical memory region by its base physical address,
// per spec.md §3: DMA < 16 MiB, Normal < 896 MiB, High >= 896 MiB.
type Zone uint8

const (
	ZoneDMA Zone = iota
	ZoneNormal
	ZoneHigh
)

// RegionFlags is the packed metadata carried per physical memory region
// (spec.md §3 "Physical memory region"). Packed into a single uint32 the
// same way the teacher packs PageFlags, so region bookkeeping costs one
// word instead of three fields plus padding.
type RegionFlags struct {
	Usable bool `bitfield:"1"`
	Zone   Zone `bitfield:"2"`
}

// Pack packs RegionFlags into a uint32.
func (f RegionFlags) Pack() uint32 {
	packed, err := Pack(f, &Config{NumBits: 32})
	if err != nil {
		// Only reachable if Zone ever grows a 3rd bit's worth of values;
		// a coding error, not a runtime condition.
		panic(err)
	}
	return uint32(packed)
}

// UnpackRegionFlags is the inverse of RegionFlags.Pack.
func UnpackRegionFlags(packed uint32) RegionFlags {
	var f RegionFlags
	if err := Unpack(uint64(packed), &f); err != nil {
		panic(err)
	}
	return f
}
