// Package command implements the prefix-matched dispatch table that turns
// a tokenized REPL line into a call against the control engine. Matching
// is by first-registered prefix rather than exact name, so "c", "co",
// "cont" and "continue" are all accepted as "continue".
package command

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Montura/TinyDebugger/internal/debugger"
)

// Func is the signature every dispatchable command implements.
type Func func(eng *debugger.Engine, args []string) error

// entry is one vocabulary slot: a canonical name, its handler, and a short
// help string shown by "help".
type entry struct {
	name string
	help string
	fn   Func
}

// Table is the ordered command vocabulary. Order determines both "help"'s
// output and which command a shared prefix resolves to.
type Table []entry

// DebugCommands builds the full command vocabulary.
func DebugCommands() Table {
	return Table{
		{"continue", "continue              resume execution until the next breakpoint or exit", cmdContinue},
		{"break", "break <addr|func|file:line>  set a breakpoint", cmdBreak},
		{"delete", "delete <addr>         remove a breakpoint", cmdDelete},
		{"breakpoints", "breakpoints           list current breakpoints", cmdBreakpoints},
		{"register", "register <read|write|dump> [name] [value]  inspect or set a register", cmdRegister},
		{"memory", "memory <read|write> <addr> [value]     inspect or set memory", cmdMemory},
		{"step", "step                  step into the next line", cmdStep},
		{"stepi", "stepi                 single-step one instruction", cmdStepi},
		{"next", "next                  step over the next line", cmdNext},
		{"finish", "finish                step out of the current function", cmdFinish},
		{"symbol", "symbol <name>         look up a symbol by name", cmdSymbol},
		{"backtrace", "backtrace             print a call stack", cmdBacktrace},
		{"print", "print <name>          print a local variable's value", cmdPrint},
		{"help", "help                  list available commands", cmdHelp},
	}
}

// Find returns the handler whose name the input is a case-sensitive
// prefix of, scanning the vocabulary in registration order and returning
// the first match — so "b" resolves to "break" rather than being
// rejected as ambiguous against "breakpoints"/"backtrace". An empty input
// returns a handler that does nothing; a prefix matching no command
// returns a handler that reports the error.
func (t Table) Find(name string) Func {
	if name == "" {
		return func(*debugger.Engine, []string) error {
			return nil
		}
	}
	for i := range t {
		e := &t[i]
		if strings.HasPrefix(e.name, name) {
			return e.fn
		}
	}
	return func(*debugger.Engine, []string) error {
		return fmt.Errorf("unknown command %q", name)
	}
}

// Help renders the vocabulary's help text, one line per command, in
// registration order.
func (t Table) Help() string {
	var b strings.Builder
	for _, e := range t {
		b.WriteString(e.help)
		b.WriteByte('\n')
	}
	return b.String()
}

func cmdHelp(_ *debugger.Engine, _ []string) error {
	fmt.Print(DebugCommands().Help())
	return nil
}

func cmdContinue(eng *debugger.Engine, _ []string) error {
	return eng.ContinueExecution()
}

func cmdStepi(eng *debugger.Engine, _ []string) error {
	return eng.SingleStepInstructionWithBreakpointCheck()
}

func cmdStep(eng *debugger.Engine, _ []string) error {
	return eng.StepIn()
}

func cmdNext(eng *debugger.Engine, _ []string) error {
	return eng.StepOver()
}

func cmdFinish(eng *debugger.Engine, _ []string) error {
	return eng.StepOut()
}

func cmdBacktrace(eng *debugger.Engine, _ []string) error {
	eng.PrintBacktrace()
	return nil
}

func cmdPrint(eng *debugger.Engine, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: print <name>")
	}
	v, err := eng.EvalVariable(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("%s = %d (0x%x)\n", args[0], v, v)
	return nil
}

func cmdBreakpoints(eng *debugger.Engine, _ []string) error {
	for _, bp := range eng.ListBreakpoints() {
		state := "enabled"
		if !bp.Enabled {
			state = "disabled"
		}
		fmt.Printf("0x%016x  %s\n", bp.Address, state)
	}
	return nil
}

func cmdDelete(eng *debugger.Engine, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: delete <addr>")
	}
	addr, err := parseAddress(args[0])
	if err != nil {
		return err
	}
	return eng.RemoveBreakpoint(addr)
}

func cmdBreak(eng *debugger.Engine, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: break <addr|func|file:line>")
	}
	target := args[0]

	if strings.HasPrefix(target, "0x") {
		addr, err := parseAddress(target)
		if err != nil {
			return err
		}
		_, err = eng.SetBreakpointAtAddress(addr)
		return err
	}

	if file, lineStr, ok := strings.Cut(target, ":"); ok {
		line, err := strconv.Atoi(lineStr)
		if err != nil {
			return fmt.Errorf("invalid line number %q", lineStr)
		}
		return eng.SetBreakpointAtSourceLine(file, line)
	}

	return eng.SetBreakpointAtFunction(target)
}

func cmdSymbol(eng *debugger.Engine, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: symbol <name>")
	}
	syms := eng.Image.Symbols(args[0])
	if len(syms) == 0 {
		return fmt.Errorf("no symbols named %q", args[0])
	}
	for _, s := range syms {
		fmt.Printf("%s %s 0x%x\n", s.Name, s.Type, s.Value)
	}
	return nil
}

func cmdRegister(eng *debugger.Engine, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: register <read|write|dump> [name] [value]")
	}
	switch args[0] {
	case "dump":
		eng.DumpRegisters()
		return nil
	case "read":
		if len(args) != 2 {
			return fmt.Errorf("usage: register read <name>")
		}
		v, ok := eng.ReadRegister(args[1])
		if !ok {
			return fmt.Errorf("no such register %q", args[1])
		}
		fmt.Printf("%s 0x%016x\n", args[1], v)
		return nil
	case "write":
		if len(args) != 3 {
			return fmt.Errorf("usage: register write <name> <value>")
		}
		value, err := parseAddress(args[2])
		if err != nil {
			return err
		}
		if !eng.WriteRegister(args[1], value) {
			return fmt.Errorf("no such register %q", args[1])
		}
		return nil
	default:
		return fmt.Errorf("usage: register <read|write|dump> [name] [value]")
	}
}

func cmdMemory(eng *debugger.Engine, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: memory <read|write> <addr> [value]")
	}
	addr, err := parseAddress(args[1])
	if err != nil {
		return err
	}
	switch args[0] {
	case "read":
		v, err := eng.ReadMemory(addr)
		if err != nil {
			return err
		}
		fmt.Printf("0x%016x\n", v)
		return nil
	case "write":
		if len(args) != 3 {
			return fmt.Errorf("usage: memory write <addr> <value>")
		}
		value, err := parseAddress(args[2])
		if err != nil {
			return err
		}
		return eng.WriteMemory(addr, value)
	default:
		return fmt.Errorf("usage: memory <read|write> <addr> [value]")
	}
}

func parseAddress(s string) (uint64, error) {
	s = strings.TrimPrefix(s, "0x")
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return v, nil
}
