package ext2

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Inode is the subset of an on-disk ext2 inode this driver exposes.
type Inode struct {
	Mode      uint16
	SizeLo    uint32
	Flags     uint32
	Block     [15]uint32 // i_block[0..11] direct, [12] single-indirect (unsupported), [13]/[14] unused here
	LinksCount uint16
}

// IsDir reports whether the inode's mode marks it a directory.
func (in *Inode) IsDir() bool { return in.Mode&0xF000 == modeDir }

// inodeLocation resolves an inode number to (group, index-within-group) per
// spec.md §4.11: "group = (ino-1) / inodes_per_group, index = (ino-1) %
// inodes_per_group".
func (fs *FS) inodeLocation(ino uint32) (group uint32, index uint32) {
	zero := ino - 1
	group = zero / fs.InodesPerGroup
	index = zero % fs.InodesPerGroup
	return group, index
}

// ReadInode loads inode ino from its group's inode table.
func (fs *FS) ReadInode(ino uint32) (*Inode, error) {
	if ino == 0 {
		return nil, errors.Wrap(ErrCorrupted, "ext2: inode 0 is never valid")
	}
	group, index := fs.inodeLocation(ino)
	if int(group) >= len(fs.groups) {
		return nil, errors.Wrap(ErrCorrupted, "ext2: inode group out of range")
	}
	gd := fs.groups[group]

	byteOff := uint64(index) * uint64(fs.InodeSize)
	blockOff := byteOff / uint64(fs.BlockSize)
	offInBlock := byteOff % uint64(fs.BlockSize)

	buf := make([]byte, fs.BlockSize)
	if err := fs.readBlock(gd.inodeTable+uint32(blockOff), buf); err != nil {
		return nil, errors.Wrap(err, "ext2: reading inode table block")
	}

	raw := buf[offInBlock : offInBlock+128]
	in := &Inode{
		Mode:       binary.LittleEndian.Uint16(raw[0:2]),
		SizeLo:     binary.LittleEndian.Uint32(raw[4:8]),
		LinksCount: binary.LittleEndian.Uint16(raw[26:28]),
		Flags:      binary.LittleEndian.Uint32(raw[32:36]),
	}
	for i := 0; i < 15; i++ {
		in.Block[i] = binary.LittleEndian.Uint32(raw[40+i*4 : 44+i*4])
	}
	return in, nil
}

// writeInode stores in back to ino's slot.
func (fs *FS) writeInode(ino uint32, in *Inode) error {
	group, index := fs.inodeLocation(ino)
	gd := fs.groups[group]

	byteOff := uint64(index) * uint64(fs.InodeSize)
	blockOff := byteOff / uint64(fs.BlockSize)
	offInBlock := byteOff % uint64(fs.BlockSize)

	buf := make([]byte, fs.BlockSize)
	if err := fs.readBlock(gd.inodeTable+uint32(blockOff), buf); err != nil {
		return errors.Wrap(err, "ext2: reading inode table block for update")
	}

	raw := buf[offInBlock : offInBlock+128]
	binary.LittleEndian.PutUint16(raw[0:2], in.Mode)
	binary.LittleEndian.PutUint32(raw[4:8], in.SizeLo)
	binary.LittleEndian.PutUint16(raw[26:28], in.LinksCount)
	binary.LittleEndian.PutUint32(raw[32:36], in.Flags)
	for i := 0; i < 15; i++ {
		binary.LittleEndian.PutUint32(raw[40+i*4:44+i*4], in.Block[i])
	}

	return fs.writeBlock(gd.inodeTable+uint32(blockOff), buf)
}

// dataBlocks resolves an inode's logical block list to physical block
// numbers, supporting direct pointers (i_block[0..11]) and depth-0 extent
// trees (spec.md §4.11: "extent header magic 0xF30A, depth-0 only").
// Anything requiring single/double indirect blocks or extent depth > 0
// returns ErrUnsupportedFS.
func (fs *FS) dataBlocks(in *Inode, count int) ([]uint32, error) {
	if in.Flags&inodeFlagExtents != 0 {
		return fs.extentBlocks(in, count)
	}

	blocks := make([]uint32, 0, count)
	for i := 0; i < 12 && len(blocks) < count; i++ {
		if in.Block[i] == 0 {
			break
		}
		blocks = append(blocks, in.Block[i])
	}
	if len(blocks) < count && in.Block[12] != 0 {
		// Single-indirect block: this driver does not walk it.
		return nil, ErrUnsupportedFS
	}
	return blocks, nil
}

const extentHeaderSize = 12
const extentEntrySize = 12

// extentBlocks decodes the inode's inline extent tree, stored across
// i_block[0..14] (60 bytes), per spec.md §4.11.
func (fs *FS) extentBlocks(in *Inode, count int) ([]uint32, error) {
	raw := make([]byte, 60)
	for i := 0; i < 15; i++ {
		binary.LittleEndian.PutUint32(raw[i*4:i*4+4], in.Block[i])
	}

	magic := binary.LittleEndian.Uint16(raw[0:2])
	if magic != extentHeaderMagic {
		return nil, errors.Wrap(ErrCorrupted, "ext2: bad extent header magic")
	}
	entries := binary.LittleEndian.Uint16(raw[2:4])
	depth := binary.LittleEndian.Uint16(raw[6:8])
	if depth != 0 {
		return nil, ErrUnsupportedFS
	}

	var blocks []uint32
	for i := 0; i < int(entries); i++ {
		off := extentHeaderSize + i*extentEntrySize
		e := raw[off : off+extentEntrySize]
		logicalStart := binary.LittleEndian.Uint32(e[0:4])
		length := binary.LittleEndian.Uint16(e[4:6])
		startHi := binary.LittleEndian.Uint16(e[6:8])
		startLo := binary.LittleEndian.Uint32(e[8:12])
		physicalStart := uint64(startHi)<<32 | uint64(startLo)
		_ = logicalStart

		for b := uint32(0); b < uint32(length) && len(blocks) < count; b++ {
			blocks = append(blocks, uint32(physicalStart)+b)
		}
		if len(blocks) >= count {
			break
		}
	}
	return blocks, nil
}
