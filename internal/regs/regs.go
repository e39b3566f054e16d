// Package regs implements the x86-64 register descriptor table: the
// bidirectional mapping between architectural register names, DWARF
// register numbers, and the kernel register-dump structure's word layout.
// Registers are addressed by reinterpreting the kernel register dump as a
// fixed array of 64-bit words and indexing it by position in a parallel
// descriptor table; package init checks that the dump's size equals the
// table length times eight.
package regs

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/Montura/TinyDebugger/internal/ptrace"
)

// Reg identifies one architectural register or pseudo-register.
type Reg int

const (
	R15 Reg = iota
	R14
	R13
	R12
	Rbp
	Rbx
	R11
	R10
	R9
	R8
	Rax
	Rcx
	Rdx
	Rsi
	Rdi
	OrigRax
	Rip
	Cs
	Rflags
	Rsp
	Ss
	FsBase
	GsBase
	Ds
	Es
	Fs
	Gs
)

// numRegisters must equal len(table) and the number of 64-bit words in
// unix.PtraceRegs; validated once below.
const numRegisters = 27

// Descriptor ties together a register's identity, its DWARF register
// number (-1 if it has none), and its short display name.
type Descriptor struct {
	Reg   Reg
	Dwarf int32
	Name  string
}

// table's order matches the layout of unix.PtraceRegs field-for-field, so
// that treating a fetched PtraceRegs as an array of 27 uint64 words and
// indexing by a descriptor's position in this table yields that
// descriptor's register. DWARF register numbers follow the System V AMD64
// ABI psABI, figure 3.36.
var table = [numRegisters]Descriptor{
	{R15, 15, "r15"},
	{R14, 14, "r14"},
	{R13, 13, "r13"},
	{R12, 12, "r12"},
	{Rbp, 6, "rbp"},
	{Rbx, 3, "rbx"},
	{R11, 11, "r11"},
	{R10, 10, "r10"},
	{R9, 9, "r9"},
	{R8, 8, "r8"},
	{Rax, 0, "rax"},
	{Rcx, 2, "rcx"},
	{Rdx, 1, "rdx"},
	{Rsi, 4, "rsi"},
	{Rdi, 5, "rdi"},
	{OrigRax, -1, "orig_rax"},
	{Rip, -1, "rip"},
	{Cs, 51, "cs"},
	{Rflags, 49, "eflags"},
	{Rsp, 7, "rsp"},
	{Ss, 52, "ss"},
	{FsBase, 58, "fs_base"},
	{GsBase, 59, "gs_base"},
	{Ds, 53, "ds"},
	{Es, 50, "es"},
	{Fs, 54, "fs"},
	{Gs, 55, "gs"},
}

func init() {
	if unsafe.Sizeof(unix.PtraceRegs{}) != 8*numRegisters {
		panic(fmt.Sprintf("regs: descriptor table has %d entries but PtraceRegs is %d bytes",
			numRegisters, unsafe.Sizeof(unix.PtraceRegs{})))
	}
}

// Descriptors returns the full register descriptor table in kernel layout
// order, for commands like "register dump" that print every register.
func Descriptors() [numRegisters]Descriptor {
	return table
}

func positionOf(r Reg) int {
	for i, d := range table {
		if d.Reg == r {
			return i
		}
	}
	panic(fmt.Sprintf("regs: no descriptor for register %d", r))
}

func words(regs *unix.PtraceRegs) *[numRegisters]uint64 {
	return (*[numRegisters]uint64)(unsafe.Pointer(regs))
}

// Value fetches the kernel register dump for pid and returns r's value.
func Value(pid int, r Reg) uint64 {
	regs := ptrace.GetRegs(pid)
	return words(regs)[positionOf(r)]
}

// Set fetches the kernel register dump for pid, overwrites r, and writes it
// back.
func Set(pid int, r Reg, value uint64) {
	regs := ptrace.GetRegs(pid)
	words(regs)[positionOf(r)] = value
	ptrace.SetRegs(pid, regs)
}

// FromDwarf returns the value of the register whose DWARF register number
// is n. Fatal if n has no mapping in the table.
func FromDwarf(pid int, n int32) uint64 {
	for _, d := range table {
		if d.Dwarf == n {
			return Value(pid, d.Reg)
		}
	}
	panic(fmt.Sprintf("regs: no register for DWARF number %d", n))
}

// NameOf returns r's short display name.
func NameOf(r Reg) string {
	return table[positionOf(r)].Name
}

// ByName looks up a register by its short display name. The bool result is
// false if the name is unknown; callers treat that as a user-command
// error, not a fatal condition.
func ByName(name string) (Reg, bool) {
	for _, d := range table {
		if d.Name == name {
			return d.Reg, true
		}
	}
	return 0, false
}
