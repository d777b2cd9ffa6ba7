package ext2

import (
	"github.com/boljen/go-bitmap"
	"github.com/pkg/errors"
)

// leastLoadedGroup returns the index of the group with the most free
// blocks, per spec.md §4.11: "allocate a free block from the block bitmap
// of the least-loaded group (linear scan)".
func (fs *FS) leastLoadedGroup() int {
	best := -1
	for g := range fs.groups {
		if fs.groups[g].freeBlocks == 0 {
			continue
		}
		if best == -1 || fs.groups[g].freeBlocks > fs.groups[best].freeBlocks {
			best = g
		}
	}
	return best
}

// allocBlock finds a free data block in the least-loaded group, marking it
// used in both the on-disk bitmap and the in-memory free count.
func (fs *FS) allocBlock() (uint32, error) {
	g := fs.leastLoadedGroup()
	if g >= 0 {
		gd := &fs.groups[g]
		buf := make([]byte, fs.BlockSize)
		if err := fs.readBlock(gd.blockBitmap, buf); err != nil {
			return 0, errors.Wrap(err, "ext2: reading block bitmap")
		}
		bm := bitmap.Bitmap(buf)
		for i := 0; i < int(fs.BlocksPerGroup); i++ {
			if !bm.Get(i) {
				bm.Set(i, true)
				if err := fs.writeBlock(gd.blockBitmap, buf); err != nil {
					return 0, errors.Wrap(err, "ext2: writing block bitmap")
				}
				gd.freeBlocks--
				block := fs.firstDataBlock + uint32(g)*fs.BlocksPerGroup + uint32(i)
				return block, nil
			}
		}
	}
	return 0, ErrNoFreeBlock
}

func (fs *FS) freeBlock(block uint32) error {
	rel := block - fs.firstDataBlock
	group := rel / fs.BlocksPerGroup
	index := rel % fs.BlocksPerGroup
	if int(group) >= len(fs.groups) {
		return errors.Wrap(ErrCorrupted, "ext2: freeing block outside any group")
	}
	gd := &fs.groups[group]

	buf := make([]byte, fs.BlockSize)
	if err := fs.readBlock(gd.blockBitmap, buf); err != nil {
		return errors.Wrap(err, "ext2: reading block bitmap")
	}
	bm := bitmap.Bitmap(buf)
	bm.Set(int(index), false)
	gd.freeBlocks++
	return fs.writeBlock(gd.blockBitmap, buf)
}

// allocInode finds the first free inode across all groups.
func (fs *FS) allocInode() (uint32, error) {
	for g := range fs.groups {
		gd := &fs.groups[g]
		if gd.freeInodes == 0 {
			continue
		}
		buf := make([]byte, fs.BlockSize)
		if err := fs.readBlock(gd.inodeBitmap, buf); err != nil {
			return 0, errors.Wrap(err, "ext2: reading inode bitmap")
		}
		bm := bitmap.Bitmap(buf)
		for i := 0; i < int(fs.InodesPerGroup); i++ {
			if !bm.Get(i) {
				bm.Set(i, true)
				if err := fs.writeBlock(gd.inodeBitmap, buf); err != nil {
					return 0, errors.Wrap(err, "ext2: writing inode bitmap")
				}
				gd.freeInodes--
				ino := uint32(g)*fs.InodesPerGroup + uint32(i) + 1
				return ino, nil
			}
		}
	}
	return 0, ErrNoFreeInode
}
