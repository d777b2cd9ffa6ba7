package ext2

// Package-level file/directory operations built atop the inode and linear
// directory primitives (spec.md §4.11). Paths are not resolved here; the
// VFS facade walks path components via repeated Lookup calls and passes
// inode numbers directly, the way the teacher's higher layers take
// already-resolved handles rather than reaching into storage internals.

// RootInode is the well-known ext2 root directory inode number.
const RootInode = rootInode

// ListDir returns every live (non-deleted) entry in directory dirIno.
func (fs *FS) ListDir(dirIno uint32) ([]DirEntry, error) {
	return fs.ReadDir(dirIno)
}

// ReadFile returns ino's full contents, resolved through its direct or
// depth-0 extent block list.
func (fs *FS) ReadFile(ino uint32) ([]byte, error) {
	in, err := fs.ReadInode(ino)
	if err != nil {
		return nil, err
	}
	if in.SizeLo == 0 {
		return nil, nil
	}
	numBlocks := (int(in.SizeLo) + int(fs.BlockSize) - 1) / int(fs.BlockSize)
	blocks, err := fs.dataBlocks(in, numBlocks)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, numBlocks*int(fs.BlockSize))
	for _, block := range blocks {
		buf := make([]byte, fs.BlockSize)
		if err := fs.readBlock(block, buf); err != nil {
			return nil, err
		}
		out = append(out, buf...)
	}
	if uint32(len(out)) > in.SizeLo {
		out = out[:in.SizeLo]
	}
	return out, nil
}

// CreateFile allocates a new zero-length regular-file inode and links it
// into dirIno under name.
func (fs *FS) CreateFile(dirIno uint32, name string) (uint32, error) {
	if _, found, err := fs.Lookup(dirIno, name); err != nil {
		return 0, err
	} else if found {
		return 0, nil
	}

	ino, err := fs.allocInode()
	if err != nil {
		return 0, err
	}
	in := &Inode{Mode: modeFile, LinksCount: 1}
	if err := fs.writeInode(ino, in); err != nil {
		return 0, err
	}
	if err := fs.addEntry(dirIno, name, ino, fileTypeRegular); err != nil {
		return 0, err
	}
	return ino, nil
}

// WriteFile replaces ino's contents with data, using direct block pointers
// only (i_block[0..11]); files needing indirect blocks return
// ErrUnsupportedFS.
func (fs *FS) WriteFile(ino uint32, data []byte) error {
	in, err := fs.ReadInode(ino)
	if err != nil {
		return err
	}

	oldBlocks, err := fs.dataBlocks(in, 12)
	if err != nil {
		return err
	}
	for _, b := range oldBlocks {
		if err := fs.freeBlock(b); err != nil {
			return err
		}
	}
	in.Block = [15]uint32{}
	in.Flags &^= inodeFlagExtents

	needed := (len(data) + int(fs.BlockSize) - 1) / int(fs.BlockSize)
	if needed > 12 {
		return ErrUnsupportedFS
	}
	for i := 0; i < needed; i++ {
		block, err := fs.allocBlock()
		if err != nil {
			return err
		}
		buf := make([]byte, fs.BlockSize)
		start := i * int(fs.BlockSize)
		end := start + int(fs.BlockSize)
		if end > len(data) {
			end = len(data)
		}
		copy(buf, data[start:end])
		if err := fs.writeBlock(block, buf); err != nil {
			return err
		}
		in.Block[i] = block
	}
	in.SizeLo = uint32(len(data))
	return fs.writeInode(ino, in)
}

// Unlink removes name from dirIno and frees its inode's data blocks.
// Directories must go through Rmdir instead.
func (fs *FS) Unlink(dirIno uint32, name string) error {
	e, found, err := fs.Lookup(dirIno, name)
	if err != nil {
		return err
	}
	if !found {
		return ErrFileNotFound
	}
	if e.IsDir {
		return ErrNotDirectory
	}

	in, err := fs.ReadInode(e.Inode)
	if err != nil {
		return err
	}
	blocks, err := fs.dataBlocks(in, 12)
	if err != nil {
		return err
	}
	for _, b := range blocks {
		if err := fs.freeBlock(b); err != nil {
			return err
		}
	}
	return fs.removeEntry(dirIno, name)
}

// Mkdir creates a new subdirectory under dirIno, seeded with "." and ".."
// entries the way mke2fs lays out every directory.
func (fs *FS) Mkdir(dirIno uint32, name string) (uint32, error) {
	if _, found, err := fs.Lookup(dirIno, name); err != nil {
		return 0, err
	} else if found {
		return 0, nil
	}

	ino, err := fs.allocInode()
	if err != nil {
		return 0, err
	}
	block, err := fs.allocBlock()
	if err != nil {
		return 0, err
	}

	in := &Inode{Mode: modeDir, LinksCount: 2, SizeLo: fs.BlockSize}
	in.Block[0] = block
	if err := fs.writeInode(ino, in); err != nil {
		return 0, err
	}

	buf := make([]byte, fs.BlockSize)
	writeDirRecord(buf, ino, 12, ".", fileTypeDir)
	writeDirRecord(buf[12:], dirIno, uint16(fs.BlockSize)-12, "..", fileTypeDir)
	if err := fs.writeBlock(block, buf); err != nil {
		return 0, err
	}

	if err := fs.addEntry(dirIno, name, ino, fileTypeDir); err != nil {
		return 0, err
	}
	return ino, nil
}

// Rmdir removes an empty subdirectory (spec.md §4.11: "rmdir only succeeds
// if the directory contains exactly '.' and '..'").
func (fs *FS) Rmdir(dirIno uint32, name string) error {
	e, found, err := fs.Lookup(dirIno, name)
	if err != nil {
		return err
	}
	if !found {
		return ErrFileNotFound
	}
	if !e.IsDir {
		return ErrNotDirectory
	}

	entries, err := fs.ReadDir(e.Inode)
	if err != nil {
		return err
	}
	if len(entries) != 2 {
		return ErrDirectoryNotEmpty
	}

	in, err := fs.ReadInode(e.Inode)
	if err != nil {
		return err
	}
	blocks, err := fs.dataBlocks(in, 12)
	if err != nil {
		return err
	}
	for _, b := range blocks {
		if err := fs.freeBlock(b); err != nil {
			return err
		}
	}
	return fs.removeEntry(dirIno, name)
}
