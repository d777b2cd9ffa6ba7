package main

import (
	"github.com/xwings/elinOS/internal/kcontext"
	ksyscall "github.com/xwings/elinOS/internal/syscall"
)

// runShell demonstrates the full data flow spec.md §2 describes ("shell
// text → syscall dispatcher (C8) → VFS (C14) → FS driver (C12/C13) →
// block cache (C10) → VirtIO (C9) → device") by listing the mounted
// filesystem's root directory through the syscall dispatcher rather than
// calling k.Root directly. A line-editing interactive shell is out of
// scope for this experimental kernel; this is the boot-time demonstration
// the real upstream project's README describes running under QEMU.
func runShell(k *kcontext.Kernel, handlers ksyscall.Handlers) {
	version := ksyscall.Dispatch(handlers, 900, ksyscall.Args{})
	k.Log.Hex(0, "elinOS version ", uint64(version), 8)

	entries, err := k.Root.List("/")
	if err != nil {
		k.Log.Error("listing root directory: " + err.Error())
		return
	}
	for _, e := range entries {
		k.Log.Info(e.Name)
	}
}
