package fat32

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memDisk is a minimal in-memory BlockDevice for exercising the driver
// without going through blockio/virtio at all.
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

const (
	testBPS             = 512
	testSPC             = 1
	testReservedSectors = 1
	testNumFATs         = 1
	testFATSectors      = 4 // covers clusters 0..511
	testRootCluster     = 2
)

// formatTestVolume writes a minimal FAT32 boot sector and an empty root
// directory cluster, mirroring what mkfs.fat would lay down for the
// parameters above.
func formatTestVolume(t *testing.T) *FS {
	t.Helper()
	disk := newMemDisk()

	var boot [512]byte
	binary.LittleEndian.PutUint16(boot[11:13], testBPS)
	boot[13] = testSPC
	binary.LittleEndian.PutUint16(boot[14:16], testReservedSectors)
	boot[16] = testNumFATs
	binary.LittleEndian.PutUint32(boot[36:40], testFATSectors)
	binary.LittleEndian.PutUint32(boot[44:48], testRootCluster)
	boot[510] = 0x55
	boot[511] = 0xAA
	require.NoError(t, disk.WriteBlock(0, boot[:]))

	fs, err := Mount(disk)
	require.NoError(t, err)
	require.NoError(t, fs.setFATEntry(testRootCluster, ChainEndMin))
	return fs
}

func TestMountParsesBootSectorLayout(t *testing.T) {
	fs := formatTestVolume(t)
	assert.Equal(t, uint16(testBPS), fs.BytesPerSector)
	assert.Equal(t, uint8(testSPC), fs.SectorsPerCluster)
	assert.Equal(t, uint32(testReservedSectors), fs.FATStartSector)
	assert.Equal(t, uint32(testReservedSectors+testNumFATs*testFATSectors), fs.DataStartSector)
	assert.Equal(t, uint32(testRootCluster), fs.RootCluster)
}

func TestMountRejectsMissingBootSignature(t *testing.T) {
	disk := newMemDisk()
	var boot [512]byte // all zero, no 0x55 0xAA
	require.NoError(t, disk.WriteBlock(0, boot[:]))

	_, err := Mount(disk)
	assert.ErrorIs(t, err, ErrInvalidBootSector)
}

func TestCreateThenListRootThenReadWriteRoundTrips(t *testing.T) {
	fs := formatTestVolume(t)

	require.NoError(t, fs.Create("hello.txt"))

	entries, err := fs.ListRoot()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "HELLO.TXT", entries[0].Name)
	assert.Equal(t, uint32(0), entries[0].Size)

	content := []byte("Hello, World!")
	require.NoError(t, fs.Write("hello.txt", content))

	got, err := fs.ReadFile("hello.txt")
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

// TestReadDirectoryDecodesRealOnDiskClusterLayout builds one 32-byte
// directory entry by hand, using the actual Microsoft EFI FAT32 on-disk
// layout (first_cluster_hi at bytes 20-21, first_cluster_lo at bytes
// 26-27, each an independent little-endian uint16), the way mkfs.fat would
// lay it down -- not via this package's own writeRawEntry, so a
// self-consistent but wrong encode/decode pair can't hide from this test
// the way it hid from the create-then-read round trip above.
func TestReadDirectoryDecodesRealOnDiskClusterLayout(t *testing.T) {
	fs := formatTestVolume(t)

	var entry [32]byte
	copy(entry[0:8], "REAL    ")
	copy(entry[8:11], "BIN")
	entry[11] = 0 // attr: regular file
	binary.LittleEndian.PutUint16(entry[20:22], 0x0001)   // first_cluster_hi
	binary.LittleEndian.PutUint16(entry[26:28], 0x0205)   // first_cluster_lo
	binary.LittleEndian.PutUint32(entry[28:32], 0x00001000) // size

	var sector [512]byte
	copy(sector[:], entry[:])
	require.NoError(t, fs.dev.WriteBlock(fs.clusterToSector(fs.RootCluster), sector[:]))

	entries, err := fs.readDirectory(fs.RootCluster)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "REAL.BIN", entries[0].name)
	assert.Equal(t, uint32(0x00010205), entries[0].firstCluster)
	assert.Equal(t, uint32(0x00001000), entries[0].size)
}

func TestReadFileUnmatchedNameReturnsFileNotFound(t *testing.T) {
	fs := formatTestVolume(t)
	_, err := fs.ReadFile("nope.txt")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestEmptyFileYieldsZeroLengthWithoutChainTraversal(t *testing.T) {
	// spec.md §4.10: "empty file (first_cluster == 0) yields zero-length
	// content without chain traversal."
	fs := formatTestVolume(t)
	require.NoError(t, fs.Create("empty.txt"))

	got, err := fs.ReadFile("empty.txt")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUnlinkRemovesEntry(t *testing.T) {
	fs := formatTestVolume(t)
	require.NoError(t, fs.Create("gone.txt"))

	exists, err := fs.FileExists("gone.txt")
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, fs.Unlink("gone.txt"))

	exists, err = fs.FileExists("gone.txt")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestWriteSpanningMultipleClustersChainsCorrectly(t *testing.T) {
	fs := formatTestVolume(t)
	require.NoError(t, fs.Create("big.bin"))

	data := make([]byte, testBPS*testSPC*3+17) // spans 4 clusters
	for i := range data {
		data[i] = byte(i)
	}
	require.NoError(t, fs.Write("big.bin", data))

	got, err := fs.ReadFile("big.bin")
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestNameNormalizationIsCaseInsensitive(t *testing.T) {
	fs := formatTestVolume(t)
	require.NoError(t, fs.Create("MixEd.TXT"))

	exists, err := fs.FileExists("mixed.txt")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestCheckFindsOutOfRangeClusterWithoutRepairingIt(t *testing.T) {
	fs := formatTestVolume(t)
	require.NoError(t, fs.Create("bad.bin"))

	entries, err := fs.readDirectory(fs.RootCluster)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	// Point the entry at a cluster well beyond the FAT's addressable range
	// instead of going through Write, simulating on-disk corruption.
	require.NoError(t, fs.updateEntry(fs.RootCluster, entries[0].offset, 0x0FFFFFF0, 0))

	issues := fs.Check()
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0], "BAD.BIN")
}

func TestCheckFindsNoIssuesOnAFreshlyFormattedVolume(t *testing.T) {
	fs := formatTestVolume(t)
	require.NoError(t, fs.Create("ok.txt"))
	assert.Empty(t, fs.Check())
}

func TestFilenameTooLongForEightDotThreeIsRejected(t *testing.T) {
	fs := formatTestVolume(t)
	err := fs.Create("waytoolongfilename.txt")
	assert.ErrorIs(t, err, ErrFilenameTooLong)
}
