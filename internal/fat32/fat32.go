// Package fat32 implements the C12 FAT32 driver: boot sector parsing, FAT
// chain walking, and 8.3 directory I/O, per spec.md §3/§4.10. The
// block-device-as-interface shape (letting the driver run against a fake
// disk in tests) is grounded the same way the teacher's virtqueue.go keeps
// hardware behind an interface, and mirrors soypat/fat's BlockDevice split
// in the retrieval pack.
package fat32

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var upper = cases.Upper(language.Und)

// BlockDevice is the minimal sector I/O surface the driver needs; blockio.Cache
// satisfies it directly.
type BlockDevice interface {
	ReadBlock(sector uint64, out []byte) error
	WriteBlock(sector uint64, in []byte) error
}

// Chain terminators and the bad-cluster sentinel (spec.md §3).
const (
	ChainEndMin = 0x0FFFFFF8
	BadCluster  = 0x0FFFFFF7
)

var (
	ErrInvalidBootSector = errors.New("fat32: invalid boot sector")
	ErrFileNotFound      = errors.New("fat32: file not found")
	ErrFilenameTooLong   = errors.New("fat32: filename too long for 8.3")
	ErrCorrupted         = errors.New("fat32: corrupted filesystem metadata")
	ErrReadOnly          = errors.New("fat32: write operations require a mounted writable volume")
	ErrNoFreeCluster     = errors.New("fat32: no free cluster available")
)

// FS is one mounted FAT32 volume's state (spec.md §3 "FAT32 state").
type FS struct {
	dev BlockDevice

	BytesPerSector    uint16
	SectorsPerCluster uint8
	FATStartSector    uint32
	DataStartSector   uint32
	RootCluster       uint32

	fatSectors   uint32
	totalSectors uint32
}

// FileEntry is one 8.3 directory entry surfaced to callers of ListRoot.
type FileEntry struct {
	Name         string
	IsDir        bool
	Size         uint32
	FirstCluster uint32
}

// Mount reads and validates the boot sector at sector 0 and derives the
// layout fields spec.md §3 names.
func Mount(dev BlockDevice) (*FS, error) {
	var boot [512]byte
	if err := dev.ReadBlock(0, boot[:]); err != nil {
		return nil, errors.Wrap(err, "fat32: reading boot sector")
	}
	if boot[510] != 0x55 || boot[511] != 0xAA {
		return nil, ErrInvalidBootSector
	}

	bps := binary.LittleEndian.Uint16(boot[11:13])
	spc := boot[13]
	reserved := binary.LittleEndian.Uint16(boot[14:16])
	numFATs := boot[16]
	totSec32 := binary.LittleEndian.Uint32(boot[32:36])
	fatSize32 := binary.LittleEndian.Uint32(boot[36:40])
	rootCluster := binary.LittleEndian.Uint32(boot[44:48])

	if bps == 0 || spc == 0 || numFATs == 0 || fatSize32 == 0 {
		return nil, ErrInvalidBootSector
	}

	fatStart := uint32(reserved)
	dataStart := fatStart + uint32(numFATs)*fatSize32

	return &FS{
		dev:               dev,
		BytesPerSector:    bps,
		SectorsPerCluster: spc,
		FATStartSector:    fatStart,
		DataStartSector:   dataStart,
		RootCluster:       rootCluster,
		fatSectors:        fatSize32,
		totalSectors:      totSec32,
	}, nil
}

// GetInfo reports the boot signature and headline geometry (spec.md
// §4.10: "get_info() -> (signature, total_sectors, bytes_per_sector)").
func (fs *FS) GetInfo() (signature string, totalSectors uint32, bytesPerSector uint16) {
	return "FAT32   ", fs.totalSectors, fs.BytesPerSector
}

// Check walks every root entry's cluster chain, verifying each link stays
// within the FAT's addressable range and that no chain loops back on
// itself, without repairing anything it finds (SPEC_FULL.md §5: a
// non-repairing, read-only consistency pass).
func (fs *FS) Check() []string {
	maxCluster := fs.fatSectors * uint32(fs.BytesPerSector) / 4
	entries, err := fs.readDirectory(fs.RootCluster)
	if err != nil {
		return []string{fmt.Sprintf("fat32: reading root directory: %v", err)}
	}

	var issues []string
	for _, e := range entries {
		cluster := e.firstCluster
		if cluster == 0 {
			continue // empty file, nothing to walk
		}
		seen := make(map[uint32]bool)
		for cluster != 0 && cluster < ChainEndMin && cluster != BadCluster {
			if cluster < 2 || cluster >= maxCluster {
				issues = append(issues, fmt.Sprintf("fat32: %s: cluster %d outside addressable range [2,%d)", e.name, cluster, maxCluster))
				break
			}
			if seen[cluster] {
				issues = append(issues, fmt.Sprintf("fat32: %s: cluster chain loops back to %d", e.name, cluster))
				break
			}
			seen[cluster] = true
			next, err := fs.nextCluster(cluster)
			if err != nil {
				issues = append(issues, fmt.Sprintf("fat32: %s: reading FAT entry for cluster %d: %v", e.name, cluster, err))
				break
			}
			cluster = next
		}
	}
	return issues
}

// clusterToSector converts a cluster number to its first absolute sector
// (spec.md §4.10: "data_start + (cluster - 2) * sectors_per_cluster").
func (fs *FS) clusterToSector(cluster uint32) uint64 {
	return uint64(fs.DataStartSector) + uint64(cluster-2)*uint64(fs.SectorsPerCluster)
}

// nextCluster reads one FAT entry (spec.md §4.10: "read FAT entry at
// fat_start*bps + cluster*4").
func (fs *FS) nextCluster(cluster uint32) (uint32, error) {
	byteOff := uint64(fs.FATStartSector)*uint64(fs.BytesPerSector) + uint64(cluster)*4
	sector := byteOff / uint64(fs.BytesPerSector)
	offInSector := byteOff % uint64(fs.BytesPerSector)

	var buf [512]byte
	if err := fs.dev.ReadBlock(sector, buf[:]); err != nil {
		return 0, errors.Wrap(err, "fat32: reading FAT")
	}
	return binary.LittleEndian.Uint32(buf[offInSector:]) & 0x0FFFFFFF, nil
}

func (fs *FS) setFATEntry(cluster uint32, value uint32) error {
	byteOff := uint64(fs.FATStartSector)*uint64(fs.BytesPerSector) + uint64(cluster)*4
	sector := byteOff / uint64(fs.BytesPerSector)
	offInSector := byteOff % uint64(fs.BytesPerSector)

	var buf [512]byte
	if err := fs.dev.ReadBlock(sector, buf[:]); err != nil {
		return errors.Wrap(err, "fat32: reading FAT for update")
	}
	binary.LittleEndian.PutUint32(buf[offInSector:], value&0x0FFFFFFF)
	return fs.dev.WriteBlock(sector, buf[:])
}

// readChain reads every cluster in cluster's chain and concatenates their
// bytes, stopping at the terminator (spec.md §4.10).
func (fs *FS) readChain(cluster uint32, limit int) ([]byte, error) {
	if cluster == 0 {
		// spec.md §4.10 edge case: "empty file (first_cluster == 0) yields
		// zero-length content without chain traversal."
		return nil, nil
	}

	clusterBytes := int(fs.SectorsPerCluster) * int(fs.BytesPerSector)
	var out []byte
	for cluster < ChainEndMin {
		if cluster == BadCluster {
			return nil, ErrCorrupted
		}
		buf := make([]byte, clusterBytes)
		startSector := fs.clusterToSector(cluster)
		for s := 0; s < int(fs.SectorsPerCluster); s++ {
			if err := fs.dev.ReadBlock(startSector+uint64(s), buf[s*512:(s+1)*512]); err != nil {
				return nil, errors.Wrap(err, "fat32: reading data cluster")
			}
		}
		out = append(out, buf...)
		if limit > 0 && len(out) >= limit {
			return out[:limit], nil
		}

		next, err := fs.nextCluster(cluster)
		if err != nil {
			return nil, err
		}
		cluster = next
	}
	return out, nil
}

// allocCluster scans the FAT for the first free (zero) entry (spec.md
// §4.10: "Writes allocate new clusters by scanning the FAT for the first
// entry == 0").
func (fs *FS) allocCluster() (uint32, error) {
	const searchLimit = 1 << 20 // generous bound for an experimental kernel
	for c := uint32(2); c < searchLimit; c++ {
		v, err := fs.nextCluster(c)
		if err != nil {
			return 0, err
		}
		if v == 0 {
			if err := fs.setFATEntry(c, ChainEndMin); err != nil {
				return 0, err
			}
			return c, nil
		}
	}
	return 0, ErrNoFreeCluster
}

// normalize8Dot3 uppercases and validates a name fits the 8.3 shape
// (spec.md §4.10: "normalize to uppercase 8.3").
func normalize8Dot3(name string) (string, error) {
	folded := upper.String(name)
	base, ext, _ := strings.Cut(folded, ".")
	if len(base) > 8 || len(ext) > 3 {
		return "", ErrFilenameTooLong
	}
	return folded, nil
}
