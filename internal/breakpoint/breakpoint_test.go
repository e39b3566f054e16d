package breakpoint_test

import (
	"testing"

	"github.com/Montura/TinyDebugger/internal/breakpoint"
	"github.com/Montura/TinyDebugger/internal/debugger"
	"github.com/Montura/TinyDebugger/internal/testutil"
)

func TestEnableDisableRoundTrip(t *testing.T) {
	path := testutil.BuildFixture(t)
	testutil.WithTestProcess(t, path, func(t *testing.T, eng *debugger.Engine) {
		fns, err := eng.Image.FunctionsByName("add")
		if err != nil || len(fns) == 0 {
			t.Fatalf("resolving add(): %v", err)
		}
		addr := eng.Image.OffsetDwarf(fns[0].LowPC)

		original, err := eng.ReadMemory(addr)
		if err != nil {
			t.Fatalf("ReadMemory: %v", err)
		}

		bp := breakpoint.New(eng.Pid, addr)
		if bp.Enabled() {
			t.Fatal("freshly constructed breakpoint should start disabled")
		}

		if err := bp.Enable(); err != nil {
			t.Fatalf("Enable: %v", err)
		}
		if !bp.Enabled() {
			t.Fatal("Enable did not mark the breakpoint enabled")
		}

		trapped, err := eng.ReadMemory(addr)
		if err != nil {
			t.Fatalf("ReadMemory after Enable: %v", err)
		}
		if byte(trapped) != 0xCC {
			t.Fatalf("expected trap opcode 0xCC in low byte, got 0x%x", byte(trapped))
		}
		if trapped&^0xff != original&^0xff {
			t.Fatalf("Enable corrupted surrounding bytes: original=0x%x trapped=0x%x", original, trapped)
		}

		// Enabling an already-enabled breakpoint must not re-save the
		// trap opcode as the "original" byte.
		if err := bp.Enable(); err != nil {
			t.Fatalf("second Enable: %v", err)
		}

		if err := bp.Disable(); err != nil {
			t.Fatalf("Disable: %v", err)
		}
		if bp.Enabled() {
			t.Fatal("Disable did not mark the breakpoint disabled")
		}

		restored, err := eng.ReadMemory(addr)
		if err != nil {
			t.Fatalf("ReadMemory after Disable: %v", err)
		}
		if restored != original {
			t.Fatalf("Disable did not restore original word: want 0x%x got 0x%x", original, restored)
		}

		// Disabling an already-disabled breakpoint is a no-op.
		if err := bp.Disable(); err != nil {
			t.Fatalf("second Disable: %v", err)
		}
	})
}

func TestAddressAccessor(t *testing.T) {
	bp := breakpoint.New(1234, 0xdeadbeef)
	if bp.Address() != 0xdeadbeef {
		t.Fatalf("Address() = 0x%x, want 0xdeadbeef", bp.Address())
	}
	if bp.Enabled() {
		t.Fatal("new breakpoint must start disabled")
	}
}
