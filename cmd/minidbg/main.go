// Command minidbg is the REPL front end: it forks and execs the target
// program under ptrace, then drives the prompt/dispatch loop against the
// control engine. Argument parsing goes through `github.com/spf13/cobra`;
// the tracee is launched directly via `os/exec.Command` with
// `syscall.SysProcAttr{Ptrace: true}`, so the debugger owns the fork/exec
// handshake rather than attaching to an already-running process.
package main

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Montura/TinyDebugger/internal/command"
	"github.com/Montura/TinyDebugger/internal/debugger"
	"github.com/Montura/TinyDebugger/internal/logging"
	"github.com/Montura/TinyDebugger/internal/term"
)

func main() {
	// ptrace(2) expects every request after PTRACE_TRACEME to come from
	// the same OS thread that saw the tracee stop.
	runtime.LockOSThread()

	root := &cobra.Command{
		Use:   "minidbg <program-path> [args...]",
		Short: "a source-level x86-64 ptrace debugger",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], args[1:])
		},
	}
	root.SilenceUsage = true

	if len(os.Args) == 1 {
		fmt.Fprintln(os.Stderr, "Program name not specified")
		os.Exit(1)
	}

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(programPath string, args []string) error {
	log := logging.Logger()

	pid, err := launch(programPath, args)
	if err != nil {
		log.WithError(err).Fatal("could not launch tracee")
	}

	eng, err := debugger.New(pid, programPath)
	if err != nil {
		log.WithError(err).Fatal("could not open tracee image")
	}
	defer eng.Close()

	prompt := term.New(term.DefaultHistoryFile)
	defer prompt.Close()
	eng.Notifier = prompt

	if err := eng.Run(); err != nil {
		log.WithError(err).Fatal("could not complete initial handshake")
	}

	cmds := command.DebugCommands()

	for eng.State() != debugger.StateTerminal {
		line, err := prompt.ReadLine()
		if err != nil {
			break
		}
		name, cmdArgs := parseLine(line)
		if name == "" {
			continue
		}
		if name == "exit" || name == "quit" {
			break
		}
		if err := cmds.Find(name)(eng, cmdArgs); err != nil {
			fmt.Fprintf(os.Stderr, "command failed: %s\n", err)
		}
	}
	return nil
}

// launch forks and execs programPath with PTRACE_TRACEME requested in the
// child via syscall.SysProcAttr.Ptrace. The kernel stops the child with
// SIGTRAP immediately after the exec; the first WaitForSignal call picks
// that up.
func launch(programPath string, args []string) (int, error) {
	cmd := exec.Command(programPath, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Ptrace: true,
	}

	if err := cmd.Start(); err != nil {
		return 0, err
	}
	return cmd.Process.Pid, nil
}

func parseLine(line string) (string, []string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], fields[1:]
}
