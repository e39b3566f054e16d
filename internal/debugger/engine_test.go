package debugger_test

import (
	"testing"

	"github.com/Montura/TinyDebugger/internal/debugger"
	"github.com/Montura/TinyDebugger/internal/testutil"
)

func TestSetBreakpointAtFunctionAndContinue(t *testing.T) {
	path := testutil.BuildFixture(t)
	testutil.WithTestProcess(t, path, func(t *testing.T, eng *debugger.Engine) {
		if err := eng.SetBreakpointAtFunction("add"); err != nil {
			t.Fatalf("SetBreakpointAtFunction: %v", err)
		}
		if len(eng.Breakpoints) != 1 {
			t.Fatalf("expected exactly one breakpoint, got %d", len(eng.Breakpoints))
		}

		if err := eng.ContinueExecution(); err != nil {
			t.Fatalf("ContinueExecution: %v", err)
		}
		if eng.State() != debugger.StateStopped {
			t.Fatalf("expected to stop at the breakpoint, state = %v", eng.State())
		}

		fn, err := eng.Image.FunctionAt(eng.PC())
		if err != nil {
			t.Fatalf("FunctionAt(PC): %v", err)
		}
		if fn.Name != "add" {
			t.Fatalf("stopped in %q, want add", fn.Name)
		}
	})
}

func TestRemoveBreakpointThenRunToCompletion(t *testing.T) {
	path := testutil.BuildFixture(t)
	testutil.WithTestProcess(t, path, func(t *testing.T, eng *debugger.Engine) {
		if err := eng.SetBreakpointAtFunction("add"); err != nil {
			t.Fatalf("SetBreakpointAtFunction: %v", err)
		}
		var addr uint64
		for a := range eng.Breakpoints {
			addr = a
		}
		if err := eng.RemoveBreakpoint(addr); err != nil {
			t.Fatalf("RemoveBreakpoint: %v", err)
		}
		if len(eng.Breakpoints) != 0 {
			t.Fatalf("expected no breakpoints left, got %d", len(eng.Breakpoints))
		}

		if err := eng.ContinueExecution(); err != nil {
			t.Fatalf("ContinueExecution: %v", err)
		}
		if eng.State() != debugger.StateTerminal {
			t.Fatalf("expected the tracee to run to completion, state = %v", eng.State())
		}
	})
}

func TestDuplicateBreakpointReplacementDoesNotCorruptByte(t *testing.T) {
	path := testutil.BuildFixture(t)
	testutil.WithTestProcess(t, path, func(t *testing.T, eng *debugger.Engine) {
		fns, err := eng.Image.FunctionsByName("add")
		if err != nil || len(fns) == 0 {
			t.Fatalf("FunctionsByName: %v", err)
		}
		addr := eng.Image.OffsetDwarf(fns[0].LowPC)

		original, err := eng.ReadMemory(addr)
		if err != nil {
			t.Fatalf("ReadMemory: %v", err)
		}

		if _, err := eng.SetBreakpointAtAddress(addr); err != nil {
			t.Fatalf("first SetBreakpointAtAddress: %v", err)
		}
		if _, err := eng.SetBreakpointAtAddress(addr); err != nil {
			t.Fatalf("second SetBreakpointAtAddress: %v", err)
		}

		if err := eng.RemoveBreakpoint(addr); err != nil {
			t.Fatalf("RemoveBreakpoint: %v", err)
		}
		restored, err := eng.ReadMemory(addr)
		if err != nil {
			t.Fatalf("ReadMemory after RemoveBreakpoint: %v", err)
		}
		if restored != original {
			t.Fatalf("replacing a breakpoint corrupted the saved byte: want 0x%x got 0x%x", original, restored)
		}
	})
}

func TestStepInAdvancesPC(t *testing.T) {
	path := testutil.BuildFixture(t)
	testutil.WithTestProcess(t, path, func(t *testing.T, eng *debugger.Engine) {
		if err := eng.SetBreakpointAtFunction("compute"); err != nil {
			t.Fatalf("SetBreakpointAtFunction: %v", err)
		}
		if err := eng.ContinueExecution(); err != nil {
			t.Fatalf("ContinueExecution: %v", err)
		}
		if eng.State() != debugger.StateStopped {
			t.Fatalf("expected stopped state, got %v", eng.State())
		}

		startPC := eng.PC()
		if err := eng.StepIn(); err != nil {
			t.Fatalf("StepIn: %v", err)
		}
		if eng.State() == debugger.StateTerminal {
			t.Fatal("tracee exited during StepIn")
		}
		if eng.PC() == startPC {
			t.Fatal("StepIn did not move the program counter")
		}
	})
}

func TestListBreakpointsReportsEnabledState(t *testing.T) {
	path := testutil.BuildFixture(t)
	testutil.WithTestProcess(t, path, func(t *testing.T, eng *debugger.Engine) {
		if err := eng.SetBreakpointAtFunction("add"); err != nil {
			t.Fatalf("SetBreakpointAtFunction: %v", err)
		}
		list := eng.ListBreakpoints()
		if len(list) != 1 {
			t.Fatalf("expected one breakpoint, got %d", len(list))
		}
		if !list[0].Enabled {
			t.Fatal("newly set breakpoint should be enabled")
		}
	})
}

func TestEvalVariableReadsLocal(t *testing.T) {
	path := testutil.BuildFixture(t)
	testutil.WithTestProcess(t, path, func(t *testing.T, eng *debugger.Engine) {
		if err := eng.SetBreakpointAtSourceLine("mini.c", 9); err != nil {
			t.Fatalf("SetBreakpointAtSourceLine: %v", err)
		}
		if err := eng.ContinueExecution(); err != nil {
			t.Fatalf("ContinueExecution: %v", err)
		}
		if eng.State() != debugger.StateStopped {
			t.Fatalf("expected stopped state, got %v", eng.State())
		}

		v, err := eng.EvalVariable("sum")
		if err != nil {
			t.Fatalf("EvalVariable(sum): %v", err)
		}
		if v != 42 {
			t.Fatalf("sum = %d, want 42", v)
		}
	})
}

func TestStepOverSkipsCallIntoAdd(t *testing.T) {
	path := testutil.BuildFixture(t)
	testutil.WithTestProcess(t, path, func(t *testing.T, eng *debugger.Engine) {
		// mini.c:14 is "value = add(value, value);" inside compute.
		if err := eng.SetBreakpointAtSourceLine("mini.c", 14); err != nil {
			t.Fatalf("SetBreakpointAtSourceLine: %v", err)
		}
		if err := eng.ContinueExecution(); err != nil {
			t.Fatalf("ContinueExecution: %v", err)
		}
		if eng.State() != debugger.StateStopped {
			t.Fatalf("expected stopped state, got %v", eng.State())
		}
		fn, err := eng.Image.FunctionAt(eng.PC())
		if err != nil || fn.Name != "compute" {
			t.Fatalf("expected to stop in compute, got %v (%v)", fn, err)
		}

		if err := eng.StepOver(); err != nil {
			t.Fatalf("StepOver: %v", err)
		}
		if eng.State() == debugger.StateTerminal {
			t.Fatal("tracee exited during StepOver")
		}

		fn, err = eng.Image.FunctionAt(eng.PC())
		if err != nil {
			t.Fatalf("FunctionAt(PC) after StepOver: %v", err)
		}
		if fn.Name != "compute" {
			t.Fatalf("StepOver landed in %q, want compute (should not stop inside add)", fn.Name)
		}
		line, err := eng.Image.LineAt(eng.PC(), true)
		if err != nil {
			t.Fatalf("LineAt(PC) after StepOver: %v", err)
		}
		if line.Line != 15 {
			t.Fatalf("StepOver landed on line %d, want 15 (return value;)", line.Line)
		}
	})
}

func TestStepOutReturnsToRecordedReturnAddress(t *testing.T) {
	path := testutil.BuildFixture(t)
	testutil.WithTestProcess(t, path, func(t *testing.T, eng *debugger.Engine) {
		if err := eng.SetBreakpointAtFunction("add"); err != nil {
			t.Fatalf("SetBreakpointAtFunction: %v", err)
		}
		if err := eng.ContinueExecution(); err != nil {
			t.Fatalf("ContinueExecution: %v", err)
		}
		if eng.State() != debugger.StateStopped {
			t.Fatalf("expected stopped state, got %v", eng.State())
		}
		fn, err := eng.Image.FunctionAt(eng.PC())
		if err != nil || fn.Name != "add" {
			t.Fatalf("expected to stop in add, got %v (%v)", fn, err)
		}

		rbp, ok := eng.ReadRegister("rbp")
		if !ok {
			t.Fatal("could not read rbp")
		}
		wantRetAddr, err := eng.ReturnAddress(rbp)
		if err != nil {
			t.Fatalf("ReturnAddress: %v", err)
		}

		if err := eng.StepOut(); err != nil {
			t.Fatalf("StepOut: %v", err)
		}
		if eng.State() == debugger.StateTerminal {
			t.Fatal("tracee exited during StepOut")
		}
		if eng.PC() != wantRetAddr {
			t.Fatalf("StepOut landed at 0x%x, want the recorded return address 0x%x", eng.PC(), wantRetAddr)
		}
		fn, err = eng.Image.FunctionAt(eng.PC())
		if err != nil || fn.Name != "compute" {
			t.Fatalf("expected to return into compute, got %v (%v)", fn, err)
		}
	})
}

func TestPrintBacktraceReturnsNonEmptyChain(t *testing.T) {
	path := testutil.BuildFixture(t)
	testutil.WithTestProcess(t, path, func(t *testing.T, eng *debugger.Engine) {
		if err := eng.SetBreakpointAtFunction("add"); err != nil {
			t.Fatalf("SetBreakpointAtFunction: %v", err)
		}
		if err := eng.ContinueExecution(); err != nil {
			t.Fatalf("ContinueExecution: %v", err)
		}
		frames := eng.PrintBacktrace()
		if len(frames) == 0 {
			t.Fatal("expected at least one frame")
		}
		if frames[0].Function != "add" {
			t.Fatalf("innermost frame = %q, want add", frames[0].Function)
		}
	})
}
