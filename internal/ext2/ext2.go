// Package ext2 implements the C13 ext2 driver: superblock/group-descriptor
// /inode parsing, direct and depth-0 extent block resolution, and linear
// directory I/O, per spec.md §3/§4.11. Structured the same
// interface-over-block-device way as fat32 so both FS drivers share one
// shape under the VFS facade (C14).
package ext2

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

// BlockDevice is the minimal sector I/O surface the driver needs.
type BlockDevice interface {
	ReadBlock(sector uint64, out []byte) error
	WriteBlock(sector uint64, in []byte) error
}

const (
	superblockMagic = 0xEF53
	superblockBytes = 1024
	superblockLBA   = 1024 / 512 // sector 2, 512-byte sectors
)

// Inode mode bits this driver cares about (the S_IF* family).
const (
	modeDir  = 0x4000
	modeFile = 0x8000
)

// Inode flag bit for extent-mapped files (EXT4_EXTENTS_FL, also used by
// ext2 images produced with extent support enabled).
const inodeFlagExtents = 0x00080000

const (
	extentHeaderMagic = 0xF30A
	rootInode         = 2
	lostAndFoundInode = 11
)

var (
	ErrInvalidSuperblock    = errors.New("ext2: invalid or missing superblock")
	ErrUnsupportedFS        = errors.New("ext2: unsupported filesystem feature (extent depth > 0)")
	ErrCorrupted            = errors.New("ext2: corrupted filesystem metadata")
	ErrFileNotFound         = errors.New("ext2: file not found")
	ErrNotDirectory         = errors.New("ext2: not a directory")
	ErrDirectoryNotEmpty    = errors.New("ext2: directory not empty")
	ErrNoFreeBlock          = errors.New("ext2: no free block in any group")
	ErrNoFreeInode          = errors.New("ext2: no free inode in any group")
)

// FS is one mounted ext2 volume's state (spec.md §3 "ext2 state").
type FS struct {
	dev BlockDevice

	BlockSize      uint32
	InodesPerGroup uint32
	InodeSize      uint16
	BlocksPerGroup uint32
	TotalBlocks    uint32
	TotalInodes    uint32

	// firstDataBlock is s_first_data_block (superblock offset 20): 1 for
	// a 1024-byte block size, 0 for larger block sizes. Bit 0 of group 0's
	// block bitmap represents this block, not block 0 -- every absolute
	// block number is firstDataBlock + group*BlocksPerGroup + bitIndex.
	firstDataBlock uint32

	groups []groupDescriptor
}

type groupDescriptor struct {
	blockBitmap uint32
	inodeBitmap uint32
	inodeTable  uint32
	freeBlocks  uint16
	freeInodes  uint16
}

// Mount reads the superblock at byte offset 1024 and the block group
// descriptor table immediately following it.
func Mount(dev BlockDevice) (*FS, error) {
	sb := make([]byte, superblockBytes)
	if err := dev.ReadBlock(superblockLBA, sb[0:512]); err != nil {
		return nil, errors.Wrap(err, "ext2: reading superblock sector 0")
	}
	if err := dev.ReadBlock(superblockLBA+1, sb[512:1024]); err != nil {
		return nil, errors.Wrap(err, "ext2: reading superblock sector 1")
	}

	magic := binary.LittleEndian.Uint16(sb[56:58])
	if magic != superblockMagic {
		return nil, ErrInvalidSuperblock
	}

	totalInodes := binary.LittleEndian.Uint32(sb[0:4])
	totalBlocks := binary.LittleEndian.Uint32(sb[4:8])
	firstDataBlock := binary.LittleEndian.Uint32(sb[20:24])
	logBlockSize := binary.LittleEndian.Uint32(sb[24:28])
	blocksPerGroup := binary.LittleEndian.Uint32(sb[32:36])
	inodesPerGroup := binary.LittleEndian.Uint32(sb[40:44])
	inodeSize := uint16(128)
	if len(sb) >= 90 {
		if v := binary.LittleEndian.Uint16(sb[88:90]); v != 0 {
			inodeSize = v
		}
	}

	blockSize := uint32(1024) << logBlockSize

	fs := &FS{
		dev:            dev,
		BlockSize:      blockSize,
		InodesPerGroup: inodesPerGroup,
		InodeSize:      inodeSize,
		BlocksPerGroup: blocksPerGroup,
		TotalBlocks:    totalBlocks,
		TotalInodes:    totalInodes,
		firstDataBlock: firstDataBlock,
	}

	numGroups := (totalBlocks + blocksPerGroup - 1) / blocksPerGroup
	if numGroups == 0 {
		numGroups = 1
	}
	if err := fs.readGroupDescriptors(numGroups); err != nil {
		return nil, err
	}
	return fs, nil
}

const groupDescSize = 32

func (fs *FS) readGroupDescriptors(numGroups uint32) error {
	// The group descriptor table starts in the block immediately after the
	// superblock's block: for a 1 KiB block size the superblock occupies
	// block 1 in full, so the GDT starts at block 2; for larger block
	// sizes the superblock only occupies the tail of block 0, so the GDT
	// starts at block 1.
	gdtBlock := uint32(1)
	if fs.BlockSize == 1024 {
		gdtBlock = 2
	}

	tableBytes := int(numGroups) * groupDescSize
	buf := make([]byte, tableBytes+int(fs.BlockSize)) // pad to a whole block read
	if err := fs.readBlock(gdtBlock, buf[:fs.BlockSize]); err != nil {
		return errors.Wrap(err, "ext2: reading group descriptor table")
	}

	fs.groups = make([]groupDescriptor, numGroups)
	for i := uint32(0); i < numGroups; i++ {
		off := i * groupDescSize
		fs.groups[i] = groupDescriptor{
			blockBitmap: binary.LittleEndian.Uint32(buf[off+0:]),
			inodeBitmap: binary.LittleEndian.Uint32(buf[off+4:]),
			inodeTable:  binary.LittleEndian.Uint32(buf[off+8:]),
			freeBlocks:  binary.LittleEndian.Uint16(buf[off+12:]),
			freeInodes:  binary.LittleEndian.Uint16(buf[off+14:]),
		}
	}
	return nil
}

// GetInfo reports headline volume geometry and free space, generalizing
// spec.md §4.11's "get_info" into the filesystem-agnostic shape
// SPEC_FULL.md §5's vfs.Info() surfaces.
func (fs *FS) GetInfo() (totalBlocks, blockSize, freeBlocks uint32) {
	for _, g := range fs.groups {
		freeBlocks += uint32(g.freeBlocks)
	}
	return fs.TotalBlocks, fs.BlockSize, freeBlocks
}

// Check walks the group descriptor table, verifying each group's block
// bitmap, inode bitmap, and inode table locations fall within the volume's
// addressable block range, without repairing anything it finds
// (SPEC_FULL.md §5: a non-repairing, read-only consistency pass).
func (fs *FS) Check() []string {
	var issues []string
	for g, gd := range fs.groups {
		for name, block := range map[string]uint32{
			"block bitmap": gd.blockBitmap,
			"inode bitmap": gd.inodeBitmap,
			"inode table":  gd.inodeTable,
		} {
			if block < fs.firstDataBlock || block >= fs.TotalBlocks {
				issues = append(issues, fmt.Sprintf("ext2: group %d: %s block %d outside volume range [%d,%d)", g, name, block, fs.firstDataBlock, fs.TotalBlocks))
			}
		}
	}
	return issues
}

// readBlock/writeBlock translate an ext2 block number to the underlying
// 512-byte sectors.
func (fs *FS) readBlock(block uint32, out []byte) error {
	sectorsPerBlock := fs.BlockSize / 512
	base := uint64(block) * uint64(sectorsPerBlock)
	for s := uint32(0); s < sectorsPerBlock; s++ {
		if err := fs.dev.ReadBlock(base+uint64(s), out[s*512:(s+1)*512]); err != nil {
			return err
		}
	}
	return nil
}

func (fs *FS) writeBlock(block uint32, in []byte) error {
	sectorsPerBlock := fs.BlockSize / 512
	base := uint64(block) * uint64(sectorsPerBlock)
	for s := uint32(0); s < sectorsPerBlock; s++ {
		if err := fs.dev.WriteBlock(base+uint64(s), in[s*512:(s+1)*512]); err != nil {
			return err
		}
	}
	return nil
}
