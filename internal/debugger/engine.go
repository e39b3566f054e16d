// Package debugger implements the control engine: the component that owns
// the tracee pid, the breakpoint map, and the image model, and drives the
// wait/signal loop, continue, step in/over/out, breakpoint setters, and
// backtrace. A failed ptrace call is treated as fatal and handled down in
// internal/ptrace itself, rather than printed and shrugged off here.
package debugger

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/Montura/TinyDebugger/internal/binutil"
	"github.com/Montura/TinyDebugger/internal/breakpoint"
	"github.com/Montura/TinyDebugger/internal/ptrace"
	"github.com/Montura/TinyDebugger/internal/regs"
)

// State is one of the four control-engine states.
type State int

const (
	StateLaunching State = iota
	StateStopped
	StateRunning
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StateTerminal:
		return "terminal"
	default:
		return "launching"
	}
}

// Notifier receives user-facing notices the control engine raises while
// running, so the front end can render them through its own terminal
// (coloring, history-aware output) instead of the engine printing
// directly to stdout.
type Notifier interface {
	PrintBreakpointHit(addr uint64)
}

// Engine is the debug-control engine: it owns the tracee pid, the
// breakpoint map, and the image model.
type Engine struct {
	Pid         int
	ProgramPath string
	Image       *binutil.Image
	Breakpoints map[uint64]*breakpoint.Breakpoint
	Notifier    Notifier

	state State
}

// New constructs a control engine for a just-forked, not-yet-stopped
// tracee. Opens and parses the tracee's on-disk image immediately; the
// load address is resolved later, once the tracee has actually stopped
// (InitializeLoadAddress needs /proc/<pid>/maps to exist).
func New(pid int, programPath string) (*Engine, error) {
	img, err := binutil.Open(programPath)
	if err != nil {
		return nil, err
	}
	return &Engine{
		Pid:         pid,
		ProgramPath: programPath,
		Image:       img,
		Breakpoints: make(map[uint64]*breakpoint.Breakpoint),
		state:       StateLaunching,
	}, nil
}

// State reports the engine's current control-engine state.
func (e *Engine) State() State { return e.state }

// Close disables every breakpoint, restoring the tracee's original code
// bytes, and releases the image's file descriptor. Teardown must leave the
// tracee's code bytes intact in case it is later inspected.
func (e *Engine) Close() error {
	for _, bp := range e.Breakpoints {
		if bp.Enabled() {
			_ = bp.Disable()
		}
	}
	e.Breakpoints = map[uint64]*breakpoint.Breakpoint{}
	return e.Image.Close()
}

// Run performs the post-exec handshake: wait for the initial stop, then
// resolve the PIE load address, transitioning from launching to stopped.
func (e *Engine) Run() error {
	if err := e.WaitForSignal(); err != nil {
		return err
	}
	if e.state == StateTerminal {
		return nil
	}
	return e.Image.InitializeLoadAddress(e.Pid)
}

// PC returns the tracee's current instruction pointer.
func (e *Engine) PC() uint64 {
	return regs.Value(e.Pid, regs.Rip)
}

// SetPC overwrites the tracee's instruction pointer.
func (e *Engine) SetPC(pc uint64) {
	regs.Set(e.Pid, regs.Rip, pc)
}

// DumpRegisters prints every descriptor's name together with its current
// value in 16-digit zero-padded hex.
func (e *Engine) DumpRegisters() {
	for _, d := range regs.Descriptors() {
		fmt.Printf("%s 0x%016x\n", d.Name, regs.Value(e.Pid, d.Reg))
	}
}

// ReadRegister reads a single register by name. The bool result is false
// if name is unknown (a user-command error, not fatal).
func (e *Engine) ReadRegister(name string) (uint64, bool) {
	r, ok := regs.ByName(name)
	if !ok {
		return 0, false
	}
	return regs.Value(e.Pid, r), true
}

// WriteRegister writes value into the named register. The bool result is
// false if name is unknown.
func (e *Engine) WriteRegister(name string, value uint64) bool {
	r, ok := regs.ByName(name)
	if !ok {
		return false
	}
	regs.Set(e.Pid, r, value)
	return true
}

// ReadMemory reads one word at addr in the tracee's address space.
func (e *Engine) ReadMemory(addr uint64) (uint64, error) {
	return ptrace.ReadWord(e.Pid, uintptr(addr))
}

// WriteMemory writes one word at addr in the tracee's address space.
func (e *Engine) WriteMemory(addr uint64, value uint64) error {
	return ptrace.WriteWord(e.Pid, uintptr(addr), value)
}

// SetBreakpointAtAddress installs a breakpoint at an absolute address. If
// an entry already exists at addr, it is disabled first so a fresh saved
// byte is captured rather than capturing the trap opcode as the "original"
// byte.
func (e *Engine) SetBreakpointAtAddress(addr uint64) (*breakpoint.Breakpoint, error) {
	if existing, ok := e.Breakpoints[addr]; ok && existing.Enabled() {
		if err := existing.Disable(); err != nil {
			return nil, err
		}
	}
	bp := breakpoint.New(e.Pid, addr)
	if err := bp.Enable(); err != nil {
		return nil, err
	}
	e.Breakpoints[addr] = bp
	return bp, nil
}

// SetBreakpointAtFunction sets a breakpoint just past the prologue of
// every DIE matching name.
func (e *Engine) SetBreakpointAtFunction(name string) error {
	fns, err := e.Image.FunctionsByName(name)
	if err != nil {
		return err
	}
	if len(fns) == 0 {
		return fmt.Errorf("no function named %q", name)
	}
	for _, fn := range fns {
		entry, err := e.Image.LineAt(fn.LowPC, false)
		if err != nil {
			return err
		}
		after, err := e.Image.LineAfter(entry.Address)
		if err != nil {
			after = entry
		}
		if _, err := e.SetBreakpointAtAddress(e.Image.OffsetDwarf(after.Address)); err != nil {
			return err
		}
	}
	return nil
}

// SetBreakpointAtSourceLine resolves fileSuffix:line to an address via the
// image model's line table and sets a breakpoint there.
func (e *Engine) SetBreakpointAtSourceLine(fileSuffix string, line int) error {
	dwarfAddr, err := e.Image.LineInFile(fileSuffix, line)
	if err != nil {
		return err
	}
	_, err = e.SetBreakpointAtAddress(e.Image.OffsetDwarf(dwarfAddr))
	return err
}

// RemoveBreakpoint disables (if enabled) and erases the breakpoint at addr.
func (e *Engine) RemoveBreakpoint(addr uint64) error {
	bp, ok := e.Breakpoints[addr]
	if !ok {
		return fmt.Errorf("no breakpoint set at %#x", addr)
	}
	if bp.Enabled() {
		if err := bp.Disable(); err != nil {
			return err
		}
	}
	delete(e.Breakpoints, addr)
	return nil
}

// BreakpointInfo is one entry in a user-facing breakpoint listing.
type BreakpointInfo struct {
	Address uint64
	Enabled bool
}

// ListBreakpoints enumerates the current breakpoint map for display.
func (e *Engine) ListBreakpoints() []BreakpointInfo {
	out := make([]BreakpointInfo, 0, len(e.Breakpoints))
	for addr, bp := range e.Breakpoints {
		out = append(out, BreakpointInfo{Address: addr, Enabled: bp.Enabled()})
	}
	return out
}

// ContinueExecution steps past a breakpoint at the current PC (if any),
// resumes the tracee, and waits for the next signal.
func (e *Engine) ContinueExecution() error {
	if err := e.StepOverBreakpoint(); err != nil {
		return err
	}
	e.state = StateRunning
	if err := ptrace.ContinueExec(e.Pid); err != nil {
		return err
	}
	return e.WaitForSignal()
}

// StepOverBreakpoint is a no-op unless the current PC is an enabled
// breakpoint, in which case it disables the breakpoint, single-steps past
// the original instruction, and re-enables it. By the time this runs, the
// trap has already been hit and handleSigtrap has rewound PC back to the
// breakpoint address; this executes the original byte once to make forward
// progress.
func (e *Engine) StepOverBreakpoint() error {
	pc := e.PC()
	bp, ok := e.Breakpoints[pc]
	if !ok || !bp.Enabled() {
		return nil
	}
	if err := bp.Disable(); err != nil {
		return err
	}
	if err := ptrace.SingleStep(e.Pid); err != nil {
		return err
	}
	if err := e.WaitForSignal(); err != nil {
		return err
	}
	return bp.Enable()
}

// SingleStepInstruction single-steps the tracee by exactly one instruction
// with no breakpoint bookkeeping.
func (e *Engine) SingleStepInstruction() error {
	if err := ptrace.SingleStep(e.Pid); err != nil {
		return err
	}
	return e.WaitForSignal()
}

// SingleStepInstructionWithBreakpointCheck steps over a breakpoint at the
// current PC if there is one, otherwise single-steps normally.
func (e *Engine) SingleStepInstructionWithBreakpointCheck() error {
	pc := e.PC()
	if bp, ok := e.Breakpoints[pc]; ok && bp.Enabled() {
		return e.StepOverBreakpoint()
	}
	return e.SingleStepInstruction()
}

// WaitForSignal blocks on waitpid, then classifies the resulting signal.
func (e *Engine) WaitForSignal() error {
	var status unix.WaitStatus
	if _, err := unix.Wait4(e.Pid, &status, 0, nil); err != nil {
		if err == unix.ECHILD {
			e.state = StateTerminal
			return nil
		}
		return err
	}
	if status.Exited() || status.Signaled() {
		e.state = StateTerminal
		return nil
	}

	info := ptrace.GetSigInfo(e.Pid)
	switch info.Signo {
	case int32(unix.SIGTRAP):
		return e.handleSigtrap(info)
	case int32(unix.SIGSEGV):
		fmt.Printf("Segmentation fault. Reason: %d\n", info.Code)
		e.state = StateStopped
		return nil
	default:
		fmt.Printf("Got signal %s\n", unix.SignalName(unix.Signal(info.Signo)))
		e.state = StateStopped
		return nil
	}
}

func (e *Engine) handleSigtrap(info *ptrace.SigInfo) error {
	switch info.Code {
	case ptrace.SI_KERNEL, ptrace.TRAP_BRKPT:
		e.SetPC(e.PC() - 1)
		if e.Notifier != nil {
			e.Notifier.PrintBreakpointHit(e.PC())
		} else {
			fmt.Printf("Hit breakpoint at address 0x%x\n", e.PC())
		}
		e.state = StateStopped
		e.printSourceAtPC()
		return nil
	case ptrace.TRAP_TRACE:
		e.state = StateStopped
		return nil
	default:
		fmt.Printf("Unknown SIGTRAP code %d\n", info.Code)
		e.state = StateStopped
		return nil
	}
}
