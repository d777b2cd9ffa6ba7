//go:build riscv64

package sbi

// HartCaller issues the real `ecall` instruction. There is exactly one of
// these per hart; elinOS is single-hart (spec.md §5), so one package-level
// instance suffices.
type HartCaller struct{}

//go:linkname sbiEcall sbiEcall
//go:nosplit
func sbiEcall(eid, fid, arg0, arg1 uintptr) (uintptr, uintptr)

// ECall implements Caller by trapping to firmware.
func (HartCaller) ECall(eid, fid uintptr, arg0, arg1 uintptr) (uintptr, uintptr) {
	return sbiEcall(eid, fid, arg0, arg1)
}
