package sbi

import "testing"

func TestConsolePutcharForwardsByte(t *testing.T) {
	f := &FakeCaller{}
	ConsolePutchar(f, 'A')
	if len(f.Calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(f.Calls))
	}
	if f.Calls[0].EID != eidConsolePutchar || f.Calls[0].Arg0 != 'A' {
		t.Fatalf("unexpected call %+v", f.Calls[0])
	}
}

func TestConsoleGetcharDrainsQueue(t *testing.T) {
	f := &FakeCaller{RXQueue: []byte("hi")}
	if got := ConsoleGetchar(f); got != 'h' {
		t.Fatalf("got %d, want 'h'", got)
	}
	if got := ConsoleGetchar(f); got != 'i' {
		t.Fatalf("got %d, want 'i'", got)
	}
	if got := ConsoleGetchar(f); got != -1 {
		t.Fatalf("got %d, want -1 on empty queue", got)
	}
}

func TestShutdownAndReboot(t *testing.T) {
	f := &FakeCaller{}
	Shutdown(f)
	Reboot(f)
	if f.Shutdowns != 1 || f.Reboots != 1 {
		t.Fatalf("expected one shutdown and one reboot, got %+v", f)
	}
}
