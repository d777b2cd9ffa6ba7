package klog

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeSink struct {
	out string
}

func (f *fakeSink) PutString(s string) { f.out += s }
func (f *fakeSink) PutUint(n uint64)   { f.out += strconv.FormatUint(n, 10) }
func (f *fakeSink) PutHex(n uint64, width int) {
	s := strconv.FormatUint(n, 16)
	for len(s) < width {
		s = "0" + s
	}
	f.out += s
}

func TestInfoWarnErrorPrefixes(t *testing.T) {
	sink := &fakeSink{}
	l := New(sink, LevelInfo)

	l.Info("booted")
	l.Warn("low memory")
	l.Error("disk failure")

	assert.Contains(t, sink.out, "[INFO] booted\n")
	assert.Contains(t, sink.out, "[WARN] low memory\n")
	assert.Contains(t, sink.out, "[ERROR] disk failure\n")
}

func TestMessagesBelowMinLevelAreDropped(t *testing.T) {
	sink := &fakeSink{}
	l := New(sink, LevelWarn)

	l.Info("should not appear")
	l.Warn("should appear")

	assert.NotContains(t, sink.out, "should not appear")
	assert.Contains(t, sink.out, "should appear")
}

func TestHexFormatsZeroPaddedAddress(t *testing.T) {
	sink := &fakeSink{}
	l := New(sink, LevelInfo)

	l.Hex(LevelInfo, "heap base ", 0xABC, 8)
	assert.Contains(t, sink.out, "heap base 0x00000abc")
}
