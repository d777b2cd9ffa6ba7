package syscall

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubFileIO struct{ lastOp string }

func (s *stubFileIO) OpenAt(a Args) Result     { s.lastOp = "openat"; return 3 }
func (s *stubFileIO) Close(a Args) Result      { s.lastOp = "close"; return 0 }
func (s *stubFileIO) Read(a Args) Result       { s.lastOp = "read"; return 13 }
func (s *stubFileIO) Write(a Args) Result      { s.lastOp = "write"; return 13 }
func (s *stubFileIO) Getdents64(a Args) Result { s.lastOp = "getdents64"; return 0 }

type stubProcess struct{}

func (stubProcess) Exit(a Args) Result   { return 0 }
func (stubProcess) GetPID(a Args) Result { return 1 }
func (stubProcess) GetPPID(a Args) Result { return 0 }
func (stubProcess) GetUID(a Args) Result  { return 0 }
func (stubProcess) GetGID(a Args) Result  { return 0 }
func (stubProcess) GetTID(a Args) Result  { return 1 }
func (stubProcess) Clone(a Args) Result   { return ENOSYS }
func (stubProcess) Execve(a Args) Result  { return ENOSYS }

func TestCategoryOfRanges(t *testing.T) {
	assert.Equal(t, CategoryFileIO, CategoryOf(64))
	assert.Equal(t, CategoryProcess, CategoryOf(93))
	assert.Equal(t, CategoryProcess, CategoryOf(220))
	assert.Equal(t, CategoryMemory, CategoryOf(214))
	assert.Equal(t, CategoryElinOS, CategoryOf(901))
	assert.Equal(t, CategoryUnknown, CategoryOf(999999))
}

func TestDispatchRoutesWriteToFileIO(t *testing.T) {
	f := &stubFileIO{}
	h := Handlers{FileIO: f}

	r := Dispatch(h, sysWrite, Args{3, 0, 13})
	assert.Equal(t, Result(13), r)
	assert.Equal(t, "write", f.lastOp)
}

func TestDispatchUnknownSyscallNumberReturnsNegative(t *testing.T) {
	// spec.md §8 scenario 6: syscall 999999 -> negative, ENOSYS-equivalent.
	r := Dispatch(Handlers{}, 999999, Args{})
	assert.Less(t, int64(r), int64(0))
	assert.Equal(t, Result(ENOSYS), r)
}

func TestDispatchNumberInRangeButNotImplementedReturnsENOSYS(t *testing.T) {
	h := Handlers{FileIO: &stubFileIO{}}
	// 40 is inside 35-83 but not one of the five implemented FileIO ops.
	r := Dispatch(h, 40, Args{})
	assert.Equal(t, Result(ENOSYS), r)
}

func TestDispatchCloneAndExecveAreStubbed(t *testing.T) {
	h := Handlers{Process: stubProcess{}}
	assert.Equal(t, Result(ENOSYS), Dispatch(h, sysClone, Args{}))
	assert.Equal(t, Result(ENOSYS), Dispatch(h, sysExecve, Args{}))
}

func TestDispatchMissingHandlerReturnsENOSYS(t *testing.T) {
	r := Dispatch(Handlers{}, sysWrite, Args{})
	assert.Equal(t, Result(ENOSYS), r)
}

type stubElinOS struct{ lastOp string }

func (s *stubElinOS) Version(a Args) Result    { s.lastOp = "version"; return 0x00010000 }
func (s *stubElinOS) Shutdown(a Args) Result   { s.lastOp = "shutdown"; return 0 }
func (s *stubElinOS) Reboot(a Args) Result     { s.lastOp = "reboot"; return 0 }
func (s *stubElinOS) LoadELF(a Args) Result    { s.lastOp = "loadelf"; return 0 }
func (s *stubElinOS) ELFInfo(a Args) Result    { s.lastOp = "elfinfo"; return 0 }
func (s *stubElinOS) ExecELF(a Args) Result    { s.lastOp = "execelf"; return 0 }
func (s *stubElinOS) DebugPrint(a Args) Result { s.lastOp = "debugprint"; return 0 }
func (s *stubElinOS) FSInfo(a Args) Result     { s.lastOp = "fsinfo"; return 0 }

func TestDispatchRoutesFSInfoToElinOS(t *testing.T) {
	e := &stubElinOS{}
	h := Handlers{ElinOS: e}

	r := Dispatch(h, sysFSInfo, Args{})
	assert.Equal(t, Result(0), r)
	assert.Equal(t, "fsinfo", e.lastOp)
}
