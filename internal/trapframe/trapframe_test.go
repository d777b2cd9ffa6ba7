package trapframe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyInterrupt(t *testing.T) {
	assert.Equal(t, KindInterrupt, Classify(scauseInterruptBit|5))
}

func TestClassifySyscall(t *testing.T) {
	assert.Equal(t, KindSyscall, Classify(ExceptionEnvCallFromU))
}

func TestClassifySynchronousException(t *testing.T) {
	assert.Equal(t, KindSynchronousException, Classify(ExceptionIllegalInstr))
	assert.Equal(t, KindSynchronousException, Classify(ExceptionLoadPageFault))
}

func TestSyscallArgsAndNumber(t *testing.T) {
	var f Frame
	f.X[regA7] = 64 // write
	f.X[regA0] = 3
	f.X[regA1] = 0x1000
	f.X[regA2] = 128

	assert.Equal(t, uint64(64), f.SyscallNumber())
	args := f.SyscallArgs()
	assert.Equal(t, uint64(3), args[0])
	assert.Equal(t, uint64(0x1000), args[1])
	assert.Equal(t, uint64(128), args[2])
}

func TestSetReturnValueWritesA0Only(t *testing.T) {
	var f Frame
	f.X[regA0] = 0xdead
	f.X[regA1] = 0xbeef

	f.SetReturnValue(-22)

	assert.Equal(t, uint64(0xffffffffffffffea), f.X[regA0]) // -22 as uint64
	assert.Equal(t, uint64(0xbeef), f.X[regA1], "restore discipline leaves every register but a0 untouched")
}

func TestAdvancePastEcall(t *testing.T) {
	f := Frame{Sepc: 0x80401000}
	f.AdvancePastEcall()
	assert.Equal(t, uint64(0x80401004), f.Sepc)
}
