package debugger

import (
	"fmt"

	"github.com/Montura/TinyDebugger/internal/regs"
)

// DWARF location-expression opcodes this minimal evaluator understands.
// Real DWARF expressions form a small stack machine; the subset handled
// here covers what gcc/clang -O0 actually emit for locals and parameters.
const (
	dwOpAddr         = 0x03
	dwOpFbreg        = 0x91
	dwOpBreg0        = 0x70 // DW_OP_breg0 .. DW_OP_breg31 are 0x70..0x8f
	dwOpBreg31       = 0x8f
	dwOpCallFrameCfa = 0x9c
)

// EvalVariable resolves the runtime address of a local variable or formal
// parameter named name, visible at the current PC, and returns the 8-byte
// word stored there. This only supports single-operation location
// expressions: a frame-base-relative offset (DW_OP_fbreg), a
// register-relative offset (DW_OP_breg0..DW_OP_breg31) and, for
// static/global storage, an absolute address (DW_OP_addr).
func (e *Engine) EvalVariable(name string) (uint64, error) {
	loc, frameBase, err := e.Image.VariableLocation(e.PC(), name)
	if err != nil {
		return 0, err
	}
	addr, err := e.evalAddress(loc, frameBase)
	if err != nil {
		return 0, err
	}
	return e.ReadMemory(addr)
}

// evalAddress evaluates a DW_AT_location expression to an absolute address
// in the tracee's address space, resolving DW_OP_fbreg against the
// enclosing function's DW_AT_frame_base expression when present.
func (e *Engine) evalAddress(expr, frameBase []byte) (uint64, error) {
	if len(expr) == 0 {
		return 0, fmt.Errorf("debugger: empty location expression")
	}
	switch expr[0] {
	case dwOpAddr:
		if len(expr) < 9 {
			return 0, fmt.Errorf("debugger: truncated DW_OP_addr")
		}
		return e.Image.OffsetDwarf(leUint64(expr[1:9])), nil
	case dwOpFbreg:
		offset, _ := sleb128(expr[1:])
		base, err := e.evalFrameBase(frameBase)
		if err != nil {
			return 0, err
		}
		return uint64(int64(base) + offset), nil
	default:
		if expr[0] >= dwOpBreg0 && expr[0] <= dwOpBreg31 {
			dwarfReg := int32(expr[0] - dwOpBreg0)
			offset, _ := sleb128(expr[1:])
			return uint64(int64(regs.FromDwarf(e.Pid, dwarfReg)) + offset), nil
		}
		return 0, fmt.Errorf("debugger: unsupported location opcode 0x%02x", expr[0])
	}
}

// evalFrameBase resolves a function's DW_AT_frame_base expression. gcc/
// clang at -O0 almost always emit DW_OP_call_frame_cfa or DW_OP_breg6(rbp,
// offset); this handles the breg form directly, computes the CFA form as
// rbp+16, which is exact once the standard push-rbp/mov-rbp,rsp prologue
// has run, and falls back to the tracee's current rbp for anything else.
func (e *Engine) evalFrameBase(frameBase []byte) (uint64, error) {
	if len(frameBase) == 0 {
		return regs.Value(e.Pid, regs.Rbp), nil
	}
	if frameBase[0] == dwOpCallFrameCfa {
		return regs.Value(e.Pid, regs.Rbp) + 16, nil
	}
	if frameBase[0] >= dwOpBreg0 && frameBase[0] <= dwOpBreg31 {
		dwarfReg := int32(frameBase[0] - dwOpBreg0)
		offset, _ := sleb128(frameBase[1:])
		return uint64(int64(regs.FromDwarf(e.Pid, dwarfReg)) + offset), nil
	}
	return regs.Value(e.Pid, regs.Rbp), nil
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// sleb128 decodes a DWARF signed LEB128 integer, returning the value and
// the number of bytes consumed.
func sleb128(b []byte) (int64, int) {
	var result int64
	var shift uint
	var i int
	for i = 0; i < len(b); i++ {
		by := b[i]
		result |= int64(by&0x7f) << shift
		shift += 7
		if by&0x80 == 0 {
			if shift < 64 && by&0x40 != 0 {
				result |= -1 << shift
			}
			i++
			break
		}
	}
	return result, i
}
