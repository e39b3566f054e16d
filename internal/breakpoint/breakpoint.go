// Package breakpoint implements the software breakpoint object: a
// (pid, address, saved-byte, enabled) tuple and its enable/disable
// protocol, built on a word-at-a-time ptrace read-modify-write round trip.
package breakpoint

import (
	"github.com/Montura/TinyDebugger/internal/ptrace"
)

// trapOpcode is the x86-64 single-byte software breakpoint instruction
// (INT3).
const trapOpcode = 0xCC

// Breakpoint is a software breakpoint at a fixed absolute address in the
// tracee's address space.
type Breakpoint struct {
	pid     int
	address uint64
	saved   byte
	enabled bool
}

// New constructs a disabled breakpoint at addr. Callers must Enable it
// before it takes effect.
func New(pid int, addr uint64) *Breakpoint {
	return &Breakpoint{pid: pid, address: addr}
}

// Address returns the breakpoint's target address.
func (b *Breakpoint) Address() uint64 { return b.address }

// Enabled reports whether the trap opcode is currently installed.
func (b *Breakpoint) Enabled() bool { return b.enabled }

// Enable installs the trap opcode, saving the original byte it displaces.
// Idempotent: enabling an already-enabled breakpoint is a no-op. If the
// address reads back as an entirely zero word the address is unmapped; the
// breakpoint is left disabled rather than corrupting an unmapped page.
func (b *Breakpoint) Enable() error {
	if b.enabled {
		return nil
	}
	word, err := ptrace.ReadWord(b.pid, uintptr(b.address))
	if err != nil {
		return err
	}
	if word == 0 {
		return nil
	}
	b.saved = byte(word)
	trapWord := (word &^ 0xff) | trapOpcode
	if err := ptrace.WriteWord(b.pid, uintptr(b.address), trapWord); err != nil {
		return err
	}
	b.enabled = true
	return nil
}

// Disable restores the original byte. Idempotent: disabling an
// already-disabled breakpoint is a no-op.
func (b *Breakpoint) Disable() error {
	if !b.enabled {
		return nil
	}
	word, err := ptrace.ReadWord(b.pid, uintptr(b.address))
	if err != nil {
		return err
	}
	restored := (word &^ 0xff) | uint64(b.saved)
	if err := ptrace.WriteWord(b.pid, uintptr(b.address), restored); err != nil {
		return err
	}
	b.enabled = false
	return nil
}
