// Package ptrace wraps the x86-64 Linux ptrace(2) calls the debug-control
// engine needs: attach-me, continue, single-step, word-granularity memory
// access, general-purpose register get/set, and signal info. Built against
// golang.org/x/sys/unix rather than the standard library syscall package.
//
// Every call here that fails is fatal: a ptrace failure means the
// stopped-tracee invariant the rest of the debugger relies on has already
// been broken.
package ptrace

import (
	"encoding/binary"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/Montura/TinyDebugger/internal/logging"
)

// Linux SIGTRAP si_code values (include/asm-generic/siginfo.h). Not
// exported by golang.org/x/sys/unix, so kept local as the authority on this
// slice of kernel struct layout.
const (
	SI_KERNEL  int32 = 0x80
	TRAP_BRKPT int32 = 1
	TRAP_TRACE int32 = 2
)

const sysPtrace = unix.SYS_PTRACE
const ptraceGetSigInfo = 0x4202

// SigInfo carries the two siginfo_t fields the engine's signal dispatch
// needs; the kernel struct is 128 bytes on x86-64 but only si_signo and
// si_code are read.
type SigInfo struct {
	Signo int32
	Code  int32
}

type rawSigInfo struct {
	Signo int32
	Errno int32
	Code  int32
	_     [116]byte // pad to the kernel's 128-byte siginfo_t
}

// TraceMe requests that the calling process (the about-to-exec child) be
// traced by its parent. Must run in the child before exec.
func TraceMe() error {
	if err := unix.PtraceTraceme(); err != nil {
		logging.FatalPtrace("PTRACE_TRACEME", 0, 0, err)
	}
	return nil
}

// ContinueExec resumes a stopped tracee until the next signal.
func ContinueExec(pid int) error {
	if err := unix.PtraceCont(pid, 0); err != nil {
		logging.FatalPtrace("PTRACE_CONT", pid, 0, err)
	}
	return nil
}

// SingleStep resumes a stopped tracee for exactly one instruction.
func SingleStep(pid int) error {
	if err := unix.PtraceSingleStep(pid); err != nil {
		logging.FatalPtrace("PTRACE_SINGLESTEP", pid, 0, err)
	}
	return nil
}

// ReadWord reads one 64-bit word from the tracee's address space.
func ReadWord(pid int, addr uintptr) (uint64, error) {
	var buf [8]byte
	n, err := unix.PtracePeekData(pid, addr, buf[:])
	if err != nil || n != len(buf) {
		logging.FatalPtrace("PTRACE_PEEKDATA", pid, addr, err)
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// WriteWord writes one 64-bit word to the tracee's address space. Callers
// that only want to change the low byte (breakpoint enable/disable) must
// read-modify-write the whole word so the surrounding seven bytes round-trip
// unchanged.
func WriteWord(pid int, addr uintptr, word uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], word)
	n, err := unix.PtracePokeData(pid, addr, buf[:])
	if err != nil || n != len(buf) {
		logging.FatalPtrace("PTRACE_POKEDATA", pid, addr, err)
	}
	return nil
}

// GetRegs fetches the kernel general-purpose register dump.
func GetRegs(pid int) *unix.PtraceRegs {
	var regs unix.PtraceRegs
	if err := unix.PtraceGetRegs(pid, &regs); err != nil {
		logging.FatalPtrace("PTRACE_GETREGS", pid, 0, err)
	}
	return &regs
}

// SetRegs writes back the kernel general-purpose register dump.
func SetRegs(pid int, regs *unix.PtraceRegs) {
	if err := unix.PtraceSetRegs(pid, regs); err != nil {
		logging.FatalPtrace("PTRACE_SETREGS", pid, 0, err)
	}
}

// GetSigInfo fetches the siginfo_t describing the signal that last stopped
// the tracee. x/sys/unix does not wrap PTRACE_GETSIGINFO, so this issues
// the raw ptrace(2) syscall directly.
func GetSigInfo(pid int) *SigInfo {
	var raw rawSigInfo
	_, _, errno := unix.Syscall6(sysPtrace, uintptr(ptraceGetSigInfo), uintptr(pid), 0, uintptr(unsafe.Pointer(&raw)), 0, 0)
	if errno != 0 {
		logging.FatalPtrace("PTRACE_GETSIGINFO", pid, 0, errno)
	}
	return &SigInfo{Signo: raw.Signo, Code: raw.Code}
}
