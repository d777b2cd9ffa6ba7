package ext2

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

const dirEntryHeaderSize = 8

const (
	fileTypeUnknown = 0
	fileTypeRegular = 1
	fileTypeDir     = 2
)

// DirEntry is one parsed linear directory record (spec.md §4.11).
type DirEntry struct {
	Inode    uint32
	Name     string
	IsDir    bool
	blockIdx int // which of the directory's data blocks this record lives in
	recOff   int // byte offset within that block
	recLen   uint16
}

// validRecord checks spec.md §4.11's two directory-record invariants:
// "rec_len >= 8 + name_len" and "rec_len % 4 == 0".
func validRecord(recLen uint16, nameLen byte) bool {
	return recLen >= uint16(dirEntryHeaderSize)+uint16(nameLen) && recLen%4 == 0
}

func (fs *FS) directoryBlocks(dirIno uint32) (*Inode, []uint32, error) {
	in, err := fs.ReadInode(dirIno)
	if err != nil {
		return nil, nil, err
	}
	if !in.IsDir() {
		return nil, nil, ErrNotDirectory
	}
	numBlocks := (int(in.SizeLo) + int(fs.BlockSize) - 1) / int(fs.BlockSize)
	blocks, err := fs.dataBlocks(in, numBlocks)
	if err != nil {
		return nil, nil, err
	}
	return in, blocks, nil
}

// ReadDir parses every valid record across a directory inode's data blocks,
// skipping ino==0 "deleted" slots.
func (fs *FS) ReadDir(dirIno uint32) ([]DirEntry, error) {
	_, blocks, err := fs.directoryBlocks(dirIno)
	if err != nil {
		return nil, err
	}

	var out []DirEntry
	for bi, block := range blocks {
		buf := make([]byte, fs.BlockSize)
		if err := fs.readBlock(block, buf); err != nil {
			return nil, errors.Wrap(err, "ext2: reading directory block")
		}

		off := 0
		for off+dirEntryHeaderSize <= len(buf) {
			ino := binary.LittleEndian.Uint32(buf[off : off+4])
			recLen := binary.LittleEndian.Uint16(buf[off+4 : off+6])
			nameLen := buf[off+6]
			fileType := buf[off+7]

			if !validRecord(recLen, nameLen) {
				return nil, errors.Wrap(ErrCorrupted, "ext2: invalid directory record")
			}
			if ino != 0 {
				name := string(buf[off+dirEntryHeaderSize : off+dirEntryHeaderSize+int(nameLen)])
				out = append(out, DirEntry{
					Inode:    ino,
					Name:     name,
					IsDir:    fileType == fileTypeDir,
					blockIdx: bi,
					recOff:   off,
					recLen:   recLen,
				})
			}
			off += int(recLen)
		}
	}
	return out, nil
}

// Lookup finds name within directory dirIno, preserving case (spec.md
// §4.11: ext2 filename normalization preserves case, unlike FAT32's
// uppercasing).
func (fs *FS) Lookup(dirIno uint32, name string) (DirEntry, bool, error) {
	entries, err := fs.ReadDir(dirIno)
	if err != nil {
		return DirEntry{}, false, err
	}
	for _, e := range entries {
		if e.Name == name {
			return e, true, nil
		}
	}
	return DirEntry{}, false, nil
}

// addEntry inserts a new record into dirIno's linear directory, either by
// splitting trailing slack off the last record in a block or by growing the
// directory with a fresh block.
func (fs *FS) addEntry(dirIno uint32, name string, childIno uint32, fileType byte) error {
	needed := uint16(dirEntryHeaderSize + len(name))
	if needed%4 != 0 {
		needed += 4 - needed%4
	}

	in, blocks, err := fs.directoryBlocks(dirIno)
	if err != nil {
		return err
	}

	for bi, block := range blocks {
		buf := make([]byte, fs.BlockSize)
		if err := fs.readBlock(block, buf); err != nil {
			return errors.Wrap(err, "ext2: reading directory block")
		}

		off := 0
		for off+dirEntryHeaderSize <= len(buf) {
			ino := binary.LittleEndian.Uint32(buf[off : off+4])
			recLen := binary.LittleEndian.Uint16(buf[off+4 : off+6])
			nameLen := buf[off+6]
			if !validRecord(recLen, nameLen) {
				return errors.Wrap(ErrCorrupted, "ext2: invalid directory record")
			}

			used := uint16(dirEntryHeaderSize + int(nameLen))
			if used%4 != 0 {
				used += 4 - used%4
			}
			slack := recLen - used
			if ino == 0 && recLen >= needed {
				writeDirRecord(buf[off:off+int(recLen)], childIno, recLen, name, fileType)
				return fs.writeBlock(block, buf)
			}
			if ino != 0 && slack >= needed {
				binary.LittleEndian.PutUint16(buf[off+4:off+6], used)
				newOff := off + int(used)
				writeDirRecord(buf[newOff:newOff+int(slack)], childIno, slack, name, fileType)
				return fs.writeBlock(block, buf)
			}
			off += int(recLen)
		}
		_ = bi
	}

	// No slack anywhere: grow the directory by one block.
	newBlock, err := fs.allocBlock()
	if err != nil {
		return err
	}
	buf := make([]byte, fs.BlockSize)
	writeDirRecord(buf, childIno, uint16(fs.BlockSize), name, fileType)
	if err := fs.writeBlock(newBlock, buf); err != nil {
		return err
	}

	slot := len(blocks)
	if slot >= 12 {
		return ErrUnsupportedFS
	}
	in.Block[slot] = newBlock
	in.SizeLo += fs.BlockSize
	return fs.writeInode(dirIno, in)
}

func writeDirRecord(rec []byte, ino uint32, recLen uint16, name string, fileType byte) {
	binary.LittleEndian.PutUint32(rec[0:4], ino)
	binary.LittleEndian.PutUint16(rec[4:6], recLen)
	rec[6] = byte(len(name))
	rec[7] = fileType
	copy(rec[8:8+len(name)], name)
}

// removeEntry marks name's record deleted (ino = 0) without compacting.
func (fs *FS) removeEntry(dirIno uint32, name string) error {
	_, blocks, err := fs.directoryBlocks(dirIno)
	if err != nil {
		return err
	}
	for _, block := range blocks {
		buf := make([]byte, fs.BlockSize)
		if err := fs.readBlock(block, buf); err != nil {
			return err
		}
		off := 0
		for off+dirEntryHeaderSize <= len(buf) {
			ino := binary.LittleEndian.Uint32(buf[off : off+4])
			recLen := binary.LittleEndian.Uint16(buf[off+4 : off+6])
			nameLen := buf[off+6]
			if ino != 0 && int(nameLen) == len(name) && string(buf[off+8:off+8+int(nameLen)]) == name {
				binary.LittleEndian.PutUint32(buf[off:off+4], 0)
				return fs.writeBlock(block, buf)
			}
			off += int(recLen)
		}
	}
	return ErrFileNotFound
}
