// Package console drives the memory-mapped NS16550-style UART at the
// platform's fixed address (spec.md §2 C2, §6). QEMU's virt machine places
// it at 0x1000_0000; the UART registers here follow the standard 16550
// layout used by OpenSBI/QEMU.
package console

import "github.com/xwings/elinOS/internal/mmio"

// Register offsets, standard 16550 layout.
const (
	regRBR = 0x00 // receiver buffer register (read)
	regTHR = 0x00 // transmitter holding register (write)
	regIER = 0x01
	regFCR = 0x02
	regLCR = 0x03
	regLSR = 0x05
)

const (
	lsrDataReady  = 1 << 0
	lsrTHREmpty   = 1 << 5
)

// UART is a 16550-style console at a fixed base address.
type UART struct {
	Bus  mmio.Bus
	Base uintptr
}

// New returns a UART driver for the given bus/base. Init() must be called
// once before use.
func New(bus mmio.Bus, base uintptr) *UART {
	return &UART{Bus: bus, Base: base}
}

// Init configures 8N1, no interrupts (the kernel polls), and enables the
// FIFOs — mirroring the teacher's uartInit sequencing for its PL011, but
// with 16550 register semantics.
func (u *UART) Init() {
	u.Bus.Write8(u.Base+regIER, 0x00) // disable all interrupts; we poll
	u.Bus.Write8(u.Base+regFCR, 0x07) // enable + clear FIFOs
	u.Bus.Write8(u.Base+regLCR, 0x03) // 8 bits, no parity, one stop bit
}

// PutByte blocks until the transmit holding register is empty, then writes
// one byte. §6: byte-oriented UTF-8 output.
func (u *UART) PutByte(c byte) {
	for u.Bus.Read8(u.Base+regLSR)&lsrTHREmpty == 0 {
	}
	u.Bus.Write8(u.Base+regTHR, c)
}

// GetByte blocks until a byte is available and returns it. §6: input is
// line-buffered one character at a time.
func (u *UART) GetByte() byte {
	for u.Bus.Read8(u.Base+regLSR)&lsrDataReady == 0 {
	}
	return u.Bus.Read8(u.Base + regRBR)
}

// TryGetByte returns (byte, true) if one is ready without blocking, else
// (0, false).
func (u *UART) TryGetByte() (byte, bool) {
	if u.Bus.Read8(u.Base+regLSR)&lsrDataReady == 0 {
		return 0, false
	}
	return u.Bus.Read8(u.Base + regRBR), true
}

// PutString writes a string byte by byte. No fmt, no allocation: this is
// the console's one job and it runs before the heap exists.
func (u *UART) PutString(s string) {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			u.PutByte('\r')
		}
		u.PutByte(s[i])
	}
}

// PutUint writes n in decimal, matching the teacher's uitoa/uartPutUint32
// helpers (hand-rolled: fmt is not available this early in boot).
func (u *UART) PutUint(n uint64) {
	if n == 0 {
		u.PutByte('0')
		return
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	u.PutString(string(buf[i:]))
}

// PutHex writes n as lowercase hex, zero-padded to width nibbles.
func (u *UART) PutHex(n uint64, width int) {
	const digits = "0123456789abcdef"
	var buf [16]byte
	for i := 0; i < width && i < 16; i++ {
		shift := uint((width - 1 - i) * 4)
		buf[i] = digits[(n>>shift)&0xf]
	}
	u.PutString(string(buf[:width]))
}
