// Package term wraps the interactive line editor: history-backed prompt
// input and TTY-aware coloring of the prompt and source markers. Built on
// the pure-Go `github.com/peterh/liner` reader plus
// `github.com/mattn/go-colorable` / `github.com/mattn/go-isatty` for
// prompt coloring that degrades cleanly when output isn't a terminal.
package term

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/peterh/liner"
)

// DefaultHistoryFile is where command history is persisted between
// sessions, written to the current working directory.
const DefaultHistoryFile = ".minidbg_history"

// Prompt is the liner-backed REPL front end.
type Prompt struct {
	line        *liner.State
	historyPath string
	out         io.Writer
	colored     bool
}

// New constructs a Prompt, loading history from historyPath if it exists.
func New(historyPath string) *Prompt {
	l := liner.NewLiner()
	l.SetCtrlCAborts(true)

	p := &Prompt{
		line:        l,
		historyPath: historyPath,
		out:         colorable.NewColorableStdout(),
		colored:     isatty.IsTerminal(os.Stdout.Fd()),
	}
	if f, err := os.Open(historyPath); err == nil {
		_, _ = p.line.ReadHistory(f)
		f.Close()
	}
	return p
}

// Close persists history to disk and releases the terminal.
func (p *Prompt) Close() error {
	if f, err := os.Create(p.historyPath); err == nil {
		_, _ = p.line.WriteHistory(f)
		f.Close()
	}
	return p.line.Close()
}

// ReadLine prompts with "minidbg> " (colored cyan on a real TTY) and
// returns the line the user entered as typed, adding non-empty lines to
// history.
func (p *Prompt) ReadLine() (string, error) {
	prompt := "minidbg> "
	if p.colored {
		prompt = "\x1b[36mminidbg>\x1b[0m "
	}
	line, err := p.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if line != "" {
		p.line.AppendHistory(line)
	}
	return line, nil
}

// PrintBreakpointHit prints a short notice that a breakpoint was hit,
// colored red on a real TTY to stand out in a busy session.
func (p *Prompt) PrintBreakpointHit(addr uint64) {
	if p.colored {
		fmt.Fprintf(p.out, "\x1b[31mbreakpoint\x1b[0m at 0x%016x\n", addr)
		return
	}
	fmt.Fprintf(p.out, "breakpoint at 0x%016x\n", addr)
}
