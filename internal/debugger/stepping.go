package debugger

import "github.com/Montura/TinyDebugger/internal/regs"

// Line-level stepping built on top of the instruction-level primitives in
// engine.go, using internal/binutil's line table to recognize line
// boundaries.

// StepIn single-steps instructions until the PC lands on a new source line
// that carries line information, stepping through any prologue
// instructions without one.
func (e *Engine) StepIn() error {
	startLine, startErr := e.Image.LineAt(e.PC(), true)

	for {
		if err := e.SingleStepInstructionWithBreakpointCheck(); err != nil {
			return err
		}
		if e.state == StateTerminal {
			return nil
		}
		line, err := e.Image.LineAt(e.PC(), true)
		if err != nil || line.File == "" {
			continue
		}
		if startErr == nil && line.Line == startLine.Line && line.File == startLine.File {
			continue
		}
		break
	}
	e.printSourceAtPC()
	return nil
}

// StepOut sets a temporary breakpoint at the current frame's return
// address (read from the stack via the RBP chain), resumes execution, then
// removes the temporary breakpoint, restoring whatever was there before if
// the address already carried a user breakpoint.
func (e *Engine) StepOut() error {
	frame := regs.Value(e.Pid, regs.Rbp)
	retAddrWord, err := e.ReadMemory(frame + 8)
	if err != nil {
		return err
	}
	return e.runToAddressOnce(retAddrWord)
}

// StepOver resolves the current function's DIE and walks its line table
// from low_pc to high_pc, setting a temporary breakpoint at every
// statement boundary whose DWARF address differs from the current line's
// and isn't already a breakpoint, plus one at the current return address.
// It then continues once and removes every temporary breakpoint. This is
// a simpler substitute for branch-target analysis: it is correct as long
// as control doesn't leave the function through a non-returning path
// (tail call, longjmp) — a known limitation, not something this
// implementation tries to fix.
func (e *Engine) StepOver() error {
	fn, err := e.Image.FunctionAt(e.PC())
	if err != nil {
		return e.StepIn()
	}
	currentLine, err := e.Image.LineAt(e.PC(), true)
	if err != nil {
		return e.StepIn()
	}
	lines, err := e.Image.LineTableRange(fn.LowPC, fn.HighPC)
	if err != nil {
		return err
	}

	installed := map[uint64]bool{}
	for _, line := range lines {
		if line.Address == currentLine.Address {
			continue
		}
		addr := e.Image.OffsetDwarf(line.Address)
		if _, ok := e.Breakpoints[addr]; ok {
			continue
		}
		if _, err := e.SetBreakpointAtAddress(addr); err != nil {
			return err
		}
		installed[addr] = true
	}

	retAddr, err := e.ReturnAddress(regs.Value(e.Pid, regs.Rbp))
	if err != nil {
		return err
	}
	if _, ok := e.Breakpoints[retAddr]; !ok {
		if _, err := e.SetBreakpointAtAddress(retAddr); err != nil {
			return err
		}
		installed[retAddr] = true
	}

	if err := e.ContinueExecution(); err != nil {
		return err
	}

	for addr := range installed {
		if err := e.RemoveBreakpoint(addr); err != nil {
			return err
		}
	}

	if e.state != StateTerminal {
		e.printSourceAtPC()
	}
	return nil
}

// runToAddressOnce installs a breakpoint at addr if one isn't already
// present, continues until it is hit, then removes it again if this call
// installed it.
func (e *Engine) runToAddressOnce(addr uint64) error {
	_, alreadySet := e.Breakpoints[addr]
	if !alreadySet {
		if _, err := e.SetBreakpointAtAddress(addr); err != nil {
			return err
		}
	}
	if err := e.ContinueExecution(); err != nil {
		return err
	}
	if !alreadySet {
		if err := e.RemoveBreakpoint(addr); err != nil {
			return err
		}
	}
	return nil
}
