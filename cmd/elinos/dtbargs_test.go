package main

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

// buildFDTWithChosen assembles a minimal flattened device tree with a
// root node containing a /chosen child carrying a "bootargs" string
// property, mirroring memprobe_test.go's buildFDT for the "memory" node.
func buildFDTWithChosen(t *testing.T, bootargs string) []byte {
	t.Helper()

	const (
		fdtMagic       = 0xd00dfeed
		tokenBeginNode = 0x00000001
		tokenEndNode   = 0x00000002
		tokenProp      = 0x00000003
		tokenEnd       = 0x00000009
	)

	var strs []byte
	bootargsOff := len(strs)
	strs = append(strs, []byte("bootargs\x00")...)

	be32 := func(v uint32) []byte {
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, v)
		return b
	}
	padName := func(name string) []byte {
		b := append([]byte(name), 0)
		for len(b)%4 != 0 {
			b = append(b, 0)
		}
		return b
	}
	padVal := func(v []byte) []byte {
		for len(v)%4 != 0 {
			v = append(v, 0)
		}
		return v
	}

	var structBlk []byte
	structBlk = append(structBlk, be32(tokenBeginNode)...)
	structBlk = append(structBlk, padName("")...)

	structBlk = append(structBlk, be32(tokenBeginNode)...)
	structBlk = append(structBlk, padName("chosen")...)

	val := append([]byte(bootargs), 0)
	structBlk = append(structBlk, be32(tokenProp)...)
	structBlk = append(structBlk, be32(uint32(len(val)))...)
	structBlk = append(structBlk, be32(uint32(bootargsOff))...)
	structBlk = append(structBlk, padVal(val)...)

	structBlk = append(structBlk, be32(tokenEndNode)...) // end chosen
	structBlk = append(structBlk, be32(tokenEndNode)...) // end root
	structBlk = append(structBlk, be32(tokenEnd)...)

	header := make([]byte, 40)
	binary.BigEndian.PutUint32(header[0:4], fdtMagic)
	offStruct := uint32(40)
	offStrings := offStruct + uint32(len(structBlk))
	binary.BigEndian.PutUint32(header[8:12], offStruct)
	binary.BigEndian.PutUint32(header[12:16], offStrings)

	out := append(header, structBlk...)
	out = append(out, strs...)
	return out
}

func TestChosenBootArgsFindsBootargsProperty(t *testing.T) {
	dtb := buildFDTWithChosen(t, "elinos.heap_bytes=1048576")
	assert.Equal(t, "elinos.heap_bytes=1048576", chosenBootArgs(dtb))
}

func TestChosenBootArgsReturnsEmptyOnBadMagic(t *testing.T) {
	assert.Equal(t, "", chosenBootArgs([]byte("not a dtb, too short")))
}

func TestChosenBootArgsReturnsEmptyWhenChosenNodeAbsent(t *testing.T) {
	dtb := buildFDTWithChosen(t, "anything")
	// Rename the node in the struct block so it's no longer "chosen":
	// the "chosen" bytes start right after the root node's BEGIN_NODE
	// token + empty name (4 + 4 bytes) + this node's BEGIN_NODE token (4
	// bytes), i.e. at offset 40+12.
	const chosenNameOffset = 40 + 12
	copy(dtb[chosenNameOffset:chosenNameOffset+6], "other\x00")
	assert.Equal(t, "", chosenBootArgs(dtb))
}

func TestAlignUp4(t *testing.T) {
	assert.Equal(t, 0, alignUp4(0))
	assert.Equal(t, 4, alignUp4(1))
	assert.Equal(t, 4, alignUp4(4))
	assert.Equal(t, 8, alignUp4(5))
}
