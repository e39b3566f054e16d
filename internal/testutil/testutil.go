// Package testutil builds and launches the C fixture binary the rest of
// the test suite exercises ptrace against. The fixture is compiled on
// demand rather than checked in as a prebuilt binary, since a prebuilt
// ELF wouldn't survive a toolchain or architecture change in CI.
package testutil

import (
	"os/exec"
	"path/filepath"
	"runtime"
	"syscall"
	"testing"

	"github.com/Montura/TinyDebugger/internal/debugger"
)

// BuildFixture compiles _fixtures/mini.c with debug info and no PIE (so
// tests don't also have to exercise load-address relocation) and returns
// the path to the resulting binary. Skips the test if no C compiler is on
// PATH.
func BuildFixture(t *testing.T) string {
	t.Helper()

	cc, err := exec.LookPath("cc")
	if err != nil {
		cc, err = exec.LookPath("gcc")
	}
	if err != nil {
		t.Skip("no C compiler available, skipping ptrace integration test")
	}

	_, thisFile, _, _ := runtime.Caller(0)
	src := filepath.Join(filepath.Dir(thisFile), "..", "..", "_fixtures", "mini.c")
	out := filepath.Join(t.TempDir(), "mini")

	cmd := exec.Command(cc, "-g", "-O0", "-no-pie", "-o", out, src)
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("building fixture: %v\n%s", err, output)
	}
	return out
}

// WithTestProcess launches path under ptrace, constructs a debugger.Engine
// over it, and runs fn before tearing the engine down.
func WithTestProcess(t *testing.T, path string, fn func(*testing.T, *debugger.Engine)) {
	t.Helper()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	cmd := exec.Command(path)
	cmd.SysProcAttr = &syscall.SysProcAttr{Ptrace: true}
	if err := cmd.Start(); err != nil {
		t.Fatalf("starting fixture: %v", err)
	}

	eng, err := debugger.New(cmd.Process.Pid, path)
	if err != nil {
		_ = cmd.Process.Kill()
		t.Fatalf("debugger.New: %v", err)
	}
	defer eng.Close()
	defer cmd.Process.Kill()

	if err := eng.Run(); err != nil {
		t.Fatalf("eng.Run: %v", err)
	}

	fn(t, eng)
}
