package elf

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testVAddr   = 0x10000
	testPhOff   = 64
	testDataOff = 64 + 56
)

// buildImage constructs a minimal one-segment ELF64 RISC-V EXEC image with
// the given payload, memsz (>= len(payload) to exercise zero-fill), and
// program-header byte overrides applied after the defaults are written.
func buildImage(t *testing.T, payload []byte, memsz uint64, corrupt func(raw []byte)) []byte {
	t.Helper()
	raw := make([]byte, testDataOff+len(payload))

	raw[0], raw[1], raw[2], raw[3] = 0x7F, 'E', 'L', 'F'
	raw[4] = classELF64
	raw[5] = dataLittle
	binary.LittleEndian.PutUint16(raw[16:18], etExec)
	binary.LittleEndian.PutUint16(raw[18:20], machineRISCV)
	binary.LittleEndian.PutUint64(raw[24:32], testVAddr)
	binary.LittleEndian.PutUint64(raw[32:40], testPhOff)
	binary.LittleEndian.PutUint16(raw[54:56], 56)
	binary.LittleEndian.PutUint16(raw[56:58], 1)

	ph := raw[testPhOff : testPhOff+56]
	binary.LittleEndian.PutUint32(ph[0:4], ptLoad)
	binary.LittleEndian.PutUint32(ph[4:8], ProtRead|ProtExec)
	binary.LittleEndian.PutUint64(ph[8:16], testDataOff)
	binary.LittleEndian.PutUint64(ph[16:24], testVAddr)
	binary.LittleEndian.PutUint64(ph[32:40], uint64(len(payload)))
	binary.LittleEndian.PutUint64(ph[40:48], memsz)

	copy(raw[testDataOff:], payload)

	if corrupt != nil {
		corrupt(raw)
	}
	return raw
}

func TestValidateAcceptsWellFormedImage(t *testing.T) {
	raw := buildImage(t, []byte{0x13, 0x00, 0x00, 0x00}, 4, nil)
	img, err := Validate(raw)
	require.NoError(t, err)
	assert.Equal(t, uint64(testVAddr), img.Entry)
	require.Len(t, img.Segments, 1)
	assert.Equal(t, uint64(4), img.Segments[0].FileSize)
}

func TestValidateRejectsBadMagic(t *testing.T) {
	raw := buildImage(t, []byte{1, 2, 3, 4}, 4, func(raw []byte) { raw[0] = 0x00 })
	_, err := Validate(raw)
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestValidateRejectsWrongMachine(t *testing.T) {
	raw := buildImage(t, []byte{1, 2, 3, 4}, 4, func(raw []byte) {
		binary.LittleEndian.PutUint16(raw[18:20], 0x3E) // x86-64
	})
	_, err := Validate(raw)
	assert.ErrorIs(t, err, ErrWrongMachine)
}

func TestValidateRejectsFilesizeExceedingMemsize(t *testing.T) {
	raw := buildImage(t, []byte{1, 2, 3, 4}, 2, nil) // memsz < filesz
	_, err := Validate(raw)
	assert.ErrorIs(t, err, ErrSegmentSizing)
}

func TestValidateRejectsTruncatedImage(t *testing.T) {
	raw := buildImage(t, []byte{1, 2, 3, 4}, 4, nil)
	raw = raw[:len(raw)-2] // cut off the last two bytes of payload
	_, err := Validate(raw)
	assert.ErrorIs(t, err, ErrTruncated)
}

type fakePages struct {
	next uint64
}

func (f *fakePages) Alloc(n int) (uint64, error) {
	addr := f.next
	f.next += uint64(n)
	return addr, nil
}

func TestLoadZeroFillsBeyondFileSizeAndCopiesPayload(t *testing.T) {
	payload := []byte{0xAA, 0xBB, 0xCC, 0xDD}
	raw := buildImage(t, payload, 4096, nil) // memsz spans a whole page, filesz is only 4 bytes
	img, err := Validate(raw)
	require.NoError(t, err)

	mem := make([]byte, 64*1024)
	write := func(addr uint64, data []byte) error {
		copy(mem[addr:], data)
		return nil
	}

	loaded, err := Load(img, &fakePages{}, write)
	require.NoError(t, err)
	require.Len(t, loaded.Segments, 1)

	seg := loaded.Segments[0]
	region := mem[seg.PhysAddr : seg.PhysAddr+4096]
	assert.Equal(t, payload, region[0:4])
	assert.True(t, allZero(region[4:]))
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

func TestExecELFReportsEntryAndSegmentCountWithoutJumping(t *testing.T) {
	raw := buildImage(t, []byte{1, 2, 3, 4}, 4, nil)
	img, err := Validate(raw)
	require.NoError(t, err)

	mem := make(map[uint64][]byte)
	write := func(addr uint64, data []byte) error {
		mem[addr] = append([]byte{}, data...)
		return nil
	}
	loaded, err := Load(img, &fakePages{}, write)
	require.NoError(t, err)

	result := ExecELF(loaded)
	assert.Equal(t, uint64(testVAddr), result.Entry)
	assert.Equal(t, 1, result.SegmentCount)
}
