package vfs

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xwings/elinOS/internal/ext2"
	"github.com/xwings/elinOS/internal/fat32"
)

type memDisk struct {
	sectors map[uint64][512]byte
}

func newMemDisk() *memDisk { return &memDisk{sectors: make(map[uint64][512]byte)} }

func (d *memDisk) ReadBlock(sector uint64, out []byte) error {
	s := d.sectors[sector]
	copy(out, s[:])
	return nil
}

func (d *memDisk) WriteBlock(sector uint64, in []byte) error {
	var s [512]byte
	copy(s[:], in)
	d.sectors[sector] = s
	return nil
}

func newFATVolume(t *testing.T) *fat32.FS {
	t.Helper()
	disk := newMemDisk()

	var boot [512]byte
	binary.LittleEndian.PutUint16(boot[11:13], 512)
	boot[13] = 1
	binary.LittleEndian.PutUint16(boot[14:16], 1)
	boot[16] = 1
	binary.LittleEndian.PutUint32(boot[32:36], 64)
	binary.LittleEndian.PutUint32(boot[36:40], 4)
	binary.LittleEndian.PutUint32(boot[44:48], 2)
	boot[510] = 0x55
	boot[511] = 0xAA
	require.NoError(t, disk.WriteBlock(0, boot[:]))

	fs, err := fat32.Mount(disk)
	require.NoError(t, err)
	return fs
}

const (
	testBlockSize      = 1024
	testBlocksPerGroup = 64
	testInodesPerGroup = 8
	testInodeSize      = 128
	testTotalBlocks    = 64
	testTotalInodes    = 8

	blockBitmapBlock = 3
	inodeBitmapBlock = 4
	inodeTableBlock  = 5
	rootDataBlock    = 6
)

func writeBlockRaw(t *testing.T, disk *memDisk, block uint32, data []byte) {
	t.Helper()
	sectorsPerBlock := testBlockSize / 512
	base := uint64(block) * uint64(sectorsPerBlock)
	for s := 0; s < sectorsPerBlock; s++ {
		require.NoError(t, disk.WriteBlock(base+uint64(s), data[s*512:(s+1)*512]))
	}
}

func newExt2Volume(t *testing.T) *ext2.FS {
	t.Helper()
	disk := newMemDisk()

	var sb [1024]byte
	binary.LittleEndian.PutUint32(sb[0:4], testTotalInodes)
	binary.LittleEndian.PutUint32(sb[4:8], testTotalBlocks)
	binary.LittleEndian.PutUint32(sb[32:36], testBlocksPerGroup)
	binary.LittleEndian.PutUint32(sb[40:44], testInodesPerGroup)
	binary.LittleEndian.PutUint16(sb[56:58], 0xEF53)
	binary.LittleEndian.PutUint16(sb[88:90], testInodeSize)
	writeBlockRaw(t, disk, 1, sb[:])

	var gdt [1024]byte
	binary.LittleEndian.PutUint32(gdt[0:4], blockBitmapBlock)
	binary.LittleEndian.PutUint32(gdt[4:8], inodeBitmapBlock)
	binary.LittleEndian.PutUint32(gdt[8:12], inodeTableBlock)
	binary.LittleEndian.PutUint16(gdt[12:14], testTotalBlocks-7)
	binary.LittleEndian.PutUint16(gdt[14:16], testInodesPerGroup-2)
	writeBlockRaw(t, disk, 2, gdt[:])

	var blockBitmap [1024]byte
	for i := 0; i < 7; i++ {
		blockBitmap[i/8] |= 1 << uint(i%8)
	}
	writeBlockRaw(t, disk, blockBitmapBlock, blockBitmap[:])

	var inodeBitmap [1024]byte
	inodeBitmap[0] = 0x03
	writeBlockRaw(t, disk, inodeBitmapBlock, inodeBitmap[:])

	const modeDir = 0x4000
	var inodeTable [1024]byte
	rootInodeOff := 1 * testInodeSize
	binary.LittleEndian.PutUint16(inodeTable[rootInodeOff:], modeDir)
	binary.LittleEndian.PutUint32(inodeTable[rootInodeOff+4:], testBlockSize)
	binary.LittleEndian.PutUint16(inodeTable[rootInodeOff+26:], 2)
	binary.LittleEndian.PutUint32(inodeTable[rootInodeOff+40:], rootDataBlock)
	writeBlockRaw(t, disk, inodeTableBlock, inodeTable[:])

	writeDirEntry := func(buf []byte, ino uint32, recLen uint16, name string) {
		binary.LittleEndian.PutUint32(buf[0:4], ino)
		binary.LittleEndian.PutUint16(buf[4:6], recLen)
		buf[6] = byte(len(name))
		buf[7] = 2 // directory
		copy(buf[8:8+len(name)], name)
	}
	var rootData [1024]byte
	writeDirEntry(rootData[:], 2, 12, ".")
	writeDirEntry(rootData[12:], 2, testBlockSize-12, "..")
	writeBlockRaw(t, disk, rootDataBlock, rootData[:])

	fs, err := ext2.Mount(disk)
	require.NoError(t, err)
	return fs
}

func TestFAT32FacadeReadWriteRoundTrip(t *testing.T) {
	v := MountFAT32(newFATVolume(t))
	require.NoError(t, v.WriteFile("/greeting.txt", []byte("hi")))

	got, err := v.ReadFile("/greeting.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), got)

	entries, err := v.List("/")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "GREETING.TXT", entries[0].Name)
}

func TestFAT32FacadeNormalizesCase(t *testing.T) {
	v := MountFAT32(newFATVolume(t))
	require.NoError(t, v.WriteFile("/MixEd.txt", []byte("x")))

	_, err := v.ReadFile("/mixed.txt")
	assert.NoError(t, err)
}

func TestExt2FacadeMkdirChdirReadWrite(t *testing.T) {
	v := MountExt2(newExt2Volume(t))

	require.NoError(t, v.Mkdir("/sub"))
	require.NoError(t, v.Chdir("/sub"))
	assert.Equal(t, "/sub", v.Getwd())

	require.NoError(t, v.WriteFile("inner.txt", []byte("data")))
	got, err := v.ReadFile("inner.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), got)

	require.NoError(t, v.Chdir(".."))
	assert.Equal(t, "/", v.Getwd())

	got, err = v.ReadFile("/sub/inner.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), got)
}

func TestExt2FacadePreservesCase(t *testing.T) {
	v := MountExt2(newExt2Volume(t))
	require.NoError(t, v.WriteFile("/MixedCase.txt", []byte("x")))

	_, err := v.ReadFile("/mixedcase.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = v.ReadFile("/MixedCase.txt")
	assert.NoError(t, err)
}

func TestReadFileOnUnknownPathReturnsNotFound(t *testing.T) {
	v := MountFAT32(newFATVolume(t))
	_, err := v.ReadFile("/nope.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRmdirOnNonEmptyDirectoryFails(t *testing.T) {
	v := MountExt2(newExt2Volume(t))
	require.NoError(t, v.Mkdir("/sub"))
	require.NoError(t, v.WriteFile("/sub/file.txt", []byte("x")))

	err := v.Rmdir("/sub")
	assert.ErrorIs(t, err, ext2.ErrDirectoryNotEmpty)
}

func TestDotDotAtRootStaysAtRoot(t *testing.T) {
	v := MountExt2(newExt2Volume(t))
	require.NoError(t, v.Chdir(".."))
	assert.Equal(t, "/", v.Getwd())
}

func TestInfoReportsKindAndGeometryForBothDrivers(t *testing.T) {
	fat := MountFAT32(newFATVolume(t))
	fatInfo := fat.Info()
	assert.Equal(t, KindFAT32, fatInfo.Kind)
	assert.Equal(t, uint16(512), fatInfo.BytesPerSector)
	assert.NotZero(t, fatInfo.TotalSectors)

	ext := MountExt2(newExt2Volume(t))
	extInfo := ext.Info()
	assert.Equal(t, KindExt2, extInfo.Kind)
	assert.Equal(t, uint16(512), extInfo.BytesPerSector)
	assert.Equal(t, uint32(testTotalBlocks*testBlockSize/512), extInfo.TotalSectors)
	assert.NotZero(t, extInfo.FreeBytes)
}

func TestCheckReturnsNoIssuesOnAFreshlyFormattedVolume(t *testing.T) {
	fat := MountFAT32(newFATVolume(t))
	assert.Empty(t, fat.Check())

	ext := MountExt2(newExt2Volume(t))
	assert.Empty(t, ext.Check())
}
