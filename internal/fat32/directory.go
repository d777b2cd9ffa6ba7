package fat32

import (
	"encoding/binary"
	"strings"

	"github.com/pkg/errors"
)

const dirEntrySize = 32

const (
	attrDirectory = 0x10
	attrVolumeID  = 0x08
	attrLongName  = 0x0F
)

type rawDirEntry struct {
	name         string // raw 11-byte 8.3 slot, undotted
	attr         byte
	firstCluster uint32
	size         uint32
	offset       int // byte offset of this entry within its cluster's chain, for in-place updates
}

func packName(name string) [11]byte {
	var out [11]byte
	for i := range out {
		out[i] = ' '
	}
	base, ext, _ := strings.Cut(name, ".")
	copy(out[0:8], base)
	copy(out[8:11], ext)
	return out
}

func unpackName(raw []byte) string {
	base := strings.TrimRight(string(raw[0:8]), " ")
	ext := strings.TrimRight(string(raw[8:11]), " ")
	if ext == "" {
		return base
	}
	return base + "." + ext
}

// readDirectory walks every entry in a directory's cluster chain, skipping
// free (0x00/0xE5) and long-filename (0x0F attribute) entries, which this
// version ignores per spec.md §4.10's documented limitation.
func (fs *FS) readDirectory(cluster uint32) ([]rawDirEntry, error) {
	data, err := fs.readChain(cluster, 0)
	if err != nil {
		return nil, err
	}

	var entries []rawDirEntry
	for off := 0; off+dirEntrySize <= len(data); off += dirEntrySize {
		e := data[off : off+dirEntrySize]
		first := e[0]
		if first == 0x00 {
			break // no more entries ever follow a 0x00 marker
		}
		if first == 0xE5 {
			continue // deleted
		}
		attr := e[11]
		if attr&attrLongName == attrLongName || attr&attrVolumeID != 0 {
			continue
		}

		// first_cluster_hi (bytes 20-21) and first_cluster_lo (bytes
		// 26-27) are each independent little-endian uint16 halves per the
		// Microsoft EFI FAT32 on-disk format (spec.md §6), not one
		// contiguous big-endian field.
		hi := uint32(binary.LittleEndian.Uint16(e[20:22]))
		lo := uint32(binary.LittleEndian.Uint16(e[26:28]))
		cluster := hi<<16 | lo
		size := binary.LittleEndian.Uint32(e[28:32])

		entries = append(entries, rawDirEntry{
			name:         unpackName(e[0:11]),
			attr:         attr,
			firstCluster: cluster,
			size:         size,
			offset:       off,
		})
	}
	return entries, nil
}

// ListRoot returns every file/directory entry in the root directory
// (spec.md §4.10: "list_root() -> sequence<FileEntry>").
func (fs *FS) ListRoot() ([]FileEntry, error) {
	raw, err := fs.readDirectory(fs.RootCluster)
	if err != nil {
		return nil, err
	}
	out := make([]FileEntry, 0, len(raw))
	for _, e := range raw {
		out = append(out, FileEntry{
			Name:         e.name,
			IsDir:        e.attr&attrDirectory != 0,
			Size:         e.size,
			FirstCluster: e.firstCluster,
		})
	}
	return out, nil
}

func (fs *FS) findInRoot(name string) (rawDirEntry, bool, error) {
	normalized, err := normalize8Dot3(name)
	if err != nil {
		return rawDirEntry{}, false, err
	}
	entries, err := fs.readDirectory(fs.RootCluster)
	if err != nil {
		return rawDirEntry{}, false, err
	}
	for _, e := range entries {
		if e.name == normalized {
			return e, true, nil
		}
	}
	return rawDirEntry{}, false, nil
}

// FileExists reports whether name is present in the root directory
// (spec.md §4.10).
func (fs *FS) FileExists(name string) (bool, error) {
	_, found, err := fs.findInRoot(name)
	return found, err
}

// ReadFile returns name's full contents. Unmatched names return
// ErrFileNotFound (spec.md §4.10: "unmatched names -> FileNotFound").
func (fs *FS) ReadFile(name string) ([]byte, error) {
	e, found, err := fs.findInRoot(name)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrFileNotFound
	}
	data, err := fs.readChain(e.firstCluster, int(e.size))
	if err != nil {
		return nil, err
	}
	if len(data) > int(e.size) {
		data = data[:e.size]
	}
	return data, nil
}

// Create adds a new, empty, zero-length root directory entry for name.
func (fs *FS) Create(name string) error {
	normalized, err := normalize8Dot3(name)
	if err != nil {
		return err
	}
	if _, found, err := fs.findInRoot(name); err != nil {
		return err
	} else if found {
		return nil // spec.md leaves re-creation behavior to the caller; treat as a no-op
	}
	return fs.appendRootEntry(normalized, 0, 0, false)
}

// Unlink removes name's directory entry by marking it deleted (0xE5); its
// cluster chain is freed back to the FAT.
func (fs *FS) Unlink(name string) error {
	normalized, err := normalize8Dot3(name)
	if err != nil {
		return err
	}
	e, found, err := fs.findInRoot(name)
	if err != nil {
		return err
	}
	if !found {
		return ErrFileNotFound
	}
	_ = normalized

	if err := fs.markEntryDeleted(fs.RootCluster, e.offset); err != nil {
		return err
	}
	return fs.freeChain(e.firstCluster)
}

// Write replaces name's contents with data, allocating new clusters as
// needed and updating the directory entry's size and first cluster.
func (fs *FS) Write(name string, data []byte) error {
	e, found, err := fs.findInRoot(name)
	if err != nil {
		return err
	}
	if !found {
		if err := fs.Create(name); err != nil {
			return err
		}
		e, _, err = fs.findInRoot(name)
		if err != nil {
			return err
		}
	} else {
		if err := fs.freeChain(e.firstCluster); err != nil {
			return err
		}
	}

	firstCluster, err := fs.writeChain(data)
	if err != nil {
		return err
	}
	return fs.updateEntry(fs.RootCluster, e.offset, firstCluster, uint32(len(data)))
}

func (fs *FS) freeChain(cluster uint32) error {
	for cluster != 0 && cluster < ChainEndMin && cluster != BadCluster {
		next, err := fs.nextCluster(cluster)
		if err != nil {
			return err
		}
		if err := fs.setFATEntry(cluster, 0); err != nil {
			return err
		}
		cluster = next
	}
	return nil
}

func (fs *FS) writeChain(data []byte) (uint32, error) {
	if len(data) == 0 {
		return 0, nil
	}
	clusterBytes := int(fs.SectorsPerCluster) * int(fs.BytesPerSector)

	first, err := fs.allocCluster()
	if err != nil {
		return 0, err
	}
	cluster := first
	for off := 0; off < len(data); off += clusterBytes {
		end := off + clusterBytes
		var buf []byte
		if end > len(data) {
			buf = make([]byte, clusterBytes)
			copy(buf, data[off:])
		} else {
			buf = data[off:end]
		}
		startSector := fs.clusterToSector(cluster)
		for s := 0; s < int(fs.SectorsPerCluster); s++ {
			if err := fs.dev.WriteBlock(startSector+uint64(s), buf[s*512:(s+1)*512]); err != nil {
				return 0, errors.Wrap(err, "fat32: writing data cluster")
			}
		}

		if off+clusterBytes < len(data) {
			next, err := fs.allocCluster()
			if err != nil {
				return 0, err
			}
			if err := fs.setFATEntry(cluster, next); err != nil {
				return 0, err
			}
			cluster = next
		}
	}
	return first, nil
}

// appendRootEntry writes a new directory entry at the first free slot of
// the root directory's cluster chain, growing the chain if no slot is
// available.
func (fs *FS) appendRootEntry(name string, firstCluster, size uint32, isDir bool) error {
	clusterBytes := int(fs.SectorsPerCluster) * int(fs.BytesPerSector)
	cluster := fs.RootCluster
	for {
		startSector := fs.clusterToSector(cluster)
		buf := make([]byte, clusterBytes)
		for s := 0; s < int(fs.SectorsPerCluster); s++ {
			if err := fs.dev.ReadBlock(startSector+uint64(s), buf[s*512:(s+1)*512]); err != nil {
				return errors.Wrap(err, "fat32: scanning root directory for a free slot")
			}
		}

		for off := 0; off+dirEntrySize <= clusterBytes; off += dirEntrySize {
			marker := buf[off]
			if marker == 0x00 || marker == 0xE5 {
				writeRawEntry(buf[off:off+dirEntrySize], name, firstCluster, size, isDir)
				for s := 0; s < int(fs.SectorsPerCluster); s++ {
					if err := fs.dev.WriteBlock(startSector+uint64(s), buf[s*512:(s+1)*512]); err != nil {
						return errors.Wrap(err, "fat32: writing new directory entry")
					}
				}
				return nil
			}
		}

		next, err := fs.nextCluster(cluster)
		if err != nil {
			return err
		}
		if next >= ChainEndMin {
			grown, err := fs.allocCluster()
			if err != nil {
				return err
			}
			if err := fs.setFATEntry(cluster, grown); err != nil {
				return err
			}
			cluster = grown
			continue
		}
		cluster = next
	}
}

func writeRawEntry(e []byte, name string, firstCluster, size uint32, isDir bool) {
	packed := packName(name)
	copy(e[0:11], packed[:])
	if isDir {
		e[11] = attrDirectory
	} else {
		e[11] = 0
	}
	// Mirror readDirectory's decode: two independent little-endian halves,
	// not one big-endian field.
	binary.LittleEndian.PutUint16(e[20:22], uint16(firstCluster>>16))
	binary.LittleEndian.PutUint16(e[26:28], uint16(firstCluster))
	binary.LittleEndian.PutUint32(e[28:32], size)
}

func (fs *FS) updateEntry(dirCluster uint32, offset int, firstCluster, size uint32) error {
	clusterBytes := int(fs.SectorsPerCluster) * int(fs.BytesPerSector)
	clusterIndex := offset / clusterBytes
	offInCluster := offset % clusterBytes

	cluster := dirCluster
	for i := 0; i < clusterIndex; i++ {
		next, err := fs.nextCluster(cluster)
		if err != nil {
			return err
		}
		cluster = next
	}

	sectorInCluster := offInCluster / 512
	offInSector := offInCluster % 512
	sector := fs.clusterToSector(cluster) + uint64(sectorInCluster)

	var buf [512]byte
	if err := fs.dev.ReadBlock(sector, buf[:]); err != nil {
		return err
	}
	writeRawEntry(buf[offInSector:offInSector+dirEntrySize], unpackName(buf[offInSector:offInSector+11]), firstCluster, size, buf[offInSector+11]&attrDirectory != 0)
	return fs.dev.WriteBlock(sector, buf[:])
}

func (fs *FS) markEntryDeleted(dirCluster uint32, offset int) error {
	clusterBytes := int(fs.SectorsPerCluster) * int(fs.BytesPerSector)
	clusterIndex := offset / clusterBytes
	offInCluster := offset % clusterBytes

	cluster := dirCluster
	for i := 0; i < clusterIndex; i++ {
		next, err := fs.nextCluster(cluster)
		if err != nil {
			return err
		}
		cluster = next
	}

	sectorInCluster := offInCluster / 512
	offInSector := offInCluster % 512
	sector := fs.clusterToSector(cluster) + uint64(sectorInCluster)

	var buf [512]byte
	if err := fs.dev.ReadBlock(sector, buf[:]); err != nil {
		return err
	}
	buf[offInSector] = 0xE5
	return fs.dev.WriteBlock(sector, buf[:])
}
