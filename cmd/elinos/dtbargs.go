package main

import "encoding/binary"

// chosenBootArgs walks a flattened device tree blob looking for
// /chosen's "bootargs" string property, the same token-walking shape
// memprobe.ParseMemoryRegions uses for the "memory" node (spec.md §3.3:
// "DTB-driven configuration... following the DTB-driven configuration
// approach in dtb_qemu.go"). Pure byte parsing, so it's testable without
// real hardware.
func chosenBootArgs(dtb []byte) string {
	const (
		fdtMagic       = 0xd00dfeed
		tokenBeginNode = 0x00000001
		tokenEndNode   = 0x00000002
		tokenProp      = 0x00000003
		tokenNop       = 0x00000004
		tokenEnd       = 0x00000009
	)

	if len(dtb) < 40 || binary.BigEndian.Uint32(dtb[0:4]) != fdtMagic {
		return ""
	}
	offStruct := binary.BigEndian.Uint32(dtb[8:12])
	offStrings := binary.BigEndian.Uint32(dtb[12:16])

	readCStr := func(off int) string {
		end := off
		for end < len(dtb) && dtb[end] != 0 {
			end++
		}
		return string(dtb[off:end])
	}

	p := int(offStruct)
	depth := 0
	inChosen := false
	for p+4 <= len(dtb) {
		tok := binary.BigEndian.Uint32(dtb[p : p+4])
		p += 4
		switch tok {
		case tokenBeginNode:
			depth++
			nameStart := p
			for p < len(dtb) && dtb[p] != 0 {
				p++
			}
			name := string(dtb[nameStart:p])
			p++
			p = alignUp4(p)
			inChosen = depth == 1 && name == "chosen"
		case tokenEndNode:
			depth--
			if depth == 0 {
				inChosen = false
			}
		case tokenProp:
			if p+8 > len(dtb) {
				return ""
			}
			plen := binary.BigEndian.Uint32(dtb[p : p+4])
			nameOff := binary.BigEndian.Uint32(dtb[p+4 : p+8])
			p += 8
			valStart := p
			if inChosen && int(nameOff) < len(dtb)-int(offStrings) {
				name := readCStr(int(offStrings) + int(nameOff))
				if name == "bootargs" {
					end := valStart
					for end < valStart+int(plen) && end < len(dtb) && dtb[end] != 0 {
						end++
					}
					return string(dtb[valStart:end])
				}
			}
			p += int(plen)
			p = alignUp4(p)
		case tokenNop:
		case tokenEnd:
			return ""
		default:
			return ""
		}
	}
	return ""
}

func alignUp4(p int) int {
	if p%4 != 0 {
		p += 4 - p%4
	}
	return p
}
