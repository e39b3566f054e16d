// Package binutil is the image model: it loads the tracee's ELF image,
// parses its DWARF debug info, discovers the runtime load address for
// position-independent executables, and answers the three queries the
// control engine needs — pc to function, pc to line, name to symbol(s).
// Built on Go's standard library debug/elf and debug/dwarf packages.
package binutil

import (
	"debug/dwarf"
	"debug/elf"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ErrFunctionNotFound is returned by FunctionAt when pc falls outside every
// compilation unit's subprogram DIEs.
var ErrFunctionNotFound = errors.New("function not found")

// ErrLineNotFound is returned by LineAt/LineInFile when no line-table entry
// matches.
var ErrLineNotFound = errors.New("line not found")

// Function is a resolved subprogram DIE: its name and pc range (DWARF
// addresses, not yet offset by the tracee's load address).
type Function struct {
	Name   string
	LowPC  uint64
	HighPC uint64
}

// Line is a resolved DWARF line-table entry.
type Line struct {
	File string
	Line int
	// Address is the DWARF address (add the image's load address to get
	// the tracee's absolute address).
	Address uint64
	IsStmt  bool
}

// SymbolType mirrors the ELF symbol type classification the original
// lists: notype, object, func, section, file.
type SymbolType int

const (
	SymNoType SymbolType = iota
	SymObject
	SymFunc
	SymSection
	SymFile
)

func (t SymbolType) String() string {
	switch t {
	case SymObject:
		return "object"
	case SymFunc:
		return "func"
	case SymSection:
		return "section"
	case SymFile:
		return "file"
	default:
		return "notype"
	}
}

// Symbol is one ELF symbol table entry.
type Symbol struct {
	Type  SymbolType
	Name  string
	Value uint64
}

// Image is the immutable-after-construction borrowed view over a tracee's
// on-disk binary: its ELF structure and parsed DWARF data.
type Image struct {
	file      *os.File
	elfFile   *elf.File
	dwarfData *dwarf.Data
	isDyn     bool
	loadAddr  uint64
}

// Open opens path read-only and parses its ELF and DWARF structure. The
// file descriptor is held for the Image's lifetime; callers must Close it
// on teardown.
func Open(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	ef, err := elf.NewFile(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	dd, err := ef.DWARF()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("binutil: %s carries no usable DWARF debug info: %w", path, err)
	}
	return &Image{
		file:      f,
		elfFile:   ef,
		dwarfData: dd,
		isDyn:     ef.Type == elf.ET_DYN,
	}, nil
}

// Close releases the underlying file descriptor.
func (img *Image) Close() error {
	return img.file.Close()
}

// InitializeLoadAddress discovers the runtime load address for a
// position-independent executable by reading the first hex field of the
// first line of /proc/<pid>/maps. Non-PIE executables keep a zero load
// address. Must be called once, after the first stop following exec.
func (img *Image) InitializeLoadAddress(pid int) error {
	if !img.isDyn {
		return nil
	}
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/maps", pid))
	if err != nil {
		return err
	}
	firstLine := string(data)
	if idx := strings.IndexByte(firstLine, '\n'); idx >= 0 {
		firstLine = firstLine[:idx]
	}
	dash := strings.IndexByte(firstLine, '-')
	if dash < 0 {
		return fmt.Errorf("binutil: malformed /proc/%d/maps", pid)
	}
	addr, err := strconv.ParseUint(firstLine[:dash], 16, 64)
	if err != nil {
		return fmt.Errorf("binutil: parsing load address: %w", err)
	}
	img.loadAddr = addr
	return nil
}

// OffsetLoad converts an absolute tracee address to a DWARF address
// (abs - load_address).
func (img *Image) OffsetLoad(addr uint64) uint64 {
	return addr - img.loadAddr
}

// OffsetDwarf converts a DWARF address to an absolute tracee address
// (dwarf + load_address). The inverse of OffsetLoad.
func (img *Image) OffsetDwarf(addr uint64) uint64 {
	return addr + img.loadAddr
}

func entryPCRange(e *dwarf.Entry) (low, high uint64, ok bool) {
	lowVal := e.Val(dwarf.AttrLowpc)
	low, ok = lowVal.(uint64)
	if !ok {
		return 0, 0, false
	}
	highVal := e.Val(dwarf.AttrHighpc)
	switch v := highVal.(type) {
	case uint64:
		return low, v, true
	case int64:
		return low, low + uint64(v), true
	default:
		return 0, 0, false
	}
}

// FunctionAt resolves the subprogram DIE containing pc (an absolute
// tracee address). Subtracts the image's load address before the DWARF
// lookup.
func (img *Image) FunctionAt(pc uint64) (*Function, error) {
	dwarfPC := img.OffsetLoad(pc)
	r := img.dwarfData.Reader()
	for {
		cu, err := r.Next()
		if err != nil {
			return nil, err
		}
		if cu == nil {
			break
		}
		if cu.Tag != dwarf.TagCompileUnit {
			r.SkipChildren()
			continue
		}
		low, high, ok := entryPCRange(cu)
		if ok && !(dwarfPC >= low && dwarfPC < high) {
			r.SkipChildren()
			continue
		}
		for {
			e, err := r.Next()
			if err != nil {
				return nil, err
			}
			if e == nil || e.Tag == dwarf.TagCompileUnit {
				break
			}
			if e.Tag != dwarf.TagSubprogram {
				continue
			}
			flow, fhigh, fok := entryPCRange(e)
			if !fok || dwarfPC < flow || dwarfPC >= fhigh {
				continue
			}
			name, _ := e.Val(dwarf.AttrName).(string)
			return &Function{Name: name, LowPC: flow, HighPC: fhigh}, nil
		}
	}
	return nil, ErrFunctionNotFound
}

// LineAt resolves the line-table entry at pc. If needOffset is true, pc is
// an absolute tracee address and is converted to a DWARF address first;
// otherwise pc is already a DWARF address.
func (img *Image) LineAt(pc uint64, needOffset bool) (*Line, error) {
	dwarfPC := pc
	if needOffset {
		dwarfPC = img.OffsetLoad(pc)
	}
	cu, err := img.dwarfData.Reader().SeekPC(dwarfPC)
	if err != nil {
		return nil, ErrLineNotFound
	}
	lr, err := img.dwarfData.LineReader(cu)
	if err != nil || lr == nil {
		return nil, ErrLineNotFound
	}
	var entry dwarf.LineEntry
	if err := lr.SeekPC(dwarfPC, &entry); err != nil {
		return nil, ErrLineNotFound
	}
	fileName := ""
	if entry.File != nil {
		fileName = entry.File.Name
	}
	return &Line{File: fileName, Line: entry.Line, Address: entry.Address, IsStmt: entry.IsStmt}, nil
}

// LineTableRange returns every line-table entry whose address falls in
// [low, high) (DWARF addresses), in address order, used by step-over to
// enumerate every statement boundary in the current function.
func (img *Image) LineTableRange(low, high uint64) ([]Line, error) {
	cu, err := img.dwarfData.Reader().SeekPC(low)
	if err != nil {
		return nil, ErrLineNotFound
	}
	lr, err := img.dwarfData.LineReader(cu)
	if err != nil || lr == nil {
		return nil, ErrLineNotFound
	}
	var out []Line
	var entry dwarf.LineEntry
	for {
		if err := lr.Next(&entry); err != nil {
			break
		}
		if entry.Address >= high {
			continue
		}
		if entry.Address < low {
			continue
		}
		fileName := ""
		if entry.File != nil {
			fileName = entry.File.Name
		}
		out = append(out, Line{File: fileName, Line: entry.Line, Address: entry.Address, IsStmt: entry.IsStmt})
	}
	return out, nil
}

// FunctionsByName scans every DIE of every compilation unit for a matching
// DW_AT_name, returning the pc range of each match whose tag is
// DW_TAG_subprogram (the only kind a breakpoint-by-name command can
// usefully target).
func (img *Image) FunctionsByName(name string) ([]*Function, error) {
	var out []*Function
	r := img.dwarfData.Reader()
	for {
		e, err := r.Next()
		if err != nil {
			return nil, err
		}
		if e == nil {
			break
		}
		if e.Tag != dwarf.TagSubprogram {
			continue
		}
		n, ok := e.Val(dwarf.AttrName).(string)
		if !ok || n != name {
			continue
		}
		low, high, ok := entryPCRange(e)
		if !ok {
			continue
		}
		out = append(out, &Function{Name: n, LowPC: low, HighPC: high})
	}
	return out, nil
}

// LineInFile finds the compilation unit whose source-file name ends with
// suffix, and returns the DWARF address of the first line-table entry
// marked as a statement with matching line number.
func (img *Image) LineInFile(suffix string, lineno int) (uint64, error) {
	r := img.dwarfData.Reader()
	for {
		cu, err := r.Next()
		if err != nil {
			return 0, err
		}
		if cu == nil {
			break
		}
		r.SkipChildren()
		if cu.Tag != dwarf.TagCompileUnit {
			continue
		}
		cuName, _ := cu.Val(dwarf.AttrName).(string)
		if !strings.HasSuffix(cuName, suffix) {
			continue
		}
		lr, err := img.dwarfData.LineReader(cu)
		if err != nil || lr == nil {
			continue
		}
		var entry dwarf.LineEntry
		for {
			if err := lr.Next(&entry); err != nil {
				break
			}
			if entry.IsStmt && entry.Line == lineno {
				return entry.Address, nil
			}
		}
	}
	return 0, ErrLineNotFound
}

// VariableLocation finds the DW_AT_location expression for the local
// variable or formal parameter named varName visible at pc, together with
// the enclosing subprogram's DW_AT_frame_base expression, by walking
// debug/dwarf's raw Entry.Val byte slices.
func (img *Image) VariableLocation(pc uint64, varName string) (loc, frameBase []byte, err error) {
	dwarfPC := img.OffsetLoad(pc)
	r := img.dwarfData.Reader()
	for {
		e, err := r.Next()
		if err != nil {
			return nil, nil, err
		}
		if e == nil {
			break
		}
		if e.Tag != dwarf.TagSubprogram {
			continue
		}
		low, high, ok := entryPCRange(e)
		if !ok || dwarfPC < low || dwarfPC >= high {
			r.SkipChildren()
			continue
		}
		fb, _ := e.Val(dwarf.AttrFrameBase).([]byte)
		for {
			child, err := r.Next()
			if err != nil {
				return nil, nil, err
			}
			if child == nil {
				break
			}
			if child.Tag != dwarf.TagVariable && child.Tag != dwarf.TagFormalParameter {
				if child.Tag == dwarf.TagSubprogram || child.Tag == dwarf.TagCompileUnit {
					break
				}
				continue
			}
			name, _ := child.Val(dwarf.AttrName).(string)
			if name != varName {
				continue
			}
			locExpr, ok := child.Val(dwarf.AttrLocation).([]byte)
			if !ok {
				continue
			}
			return locExpr, fb, nil
		}
		return nil, nil, fmt.Errorf("binutil: no variable %q in enclosing function", varName)
	}
	return nil, nil, ErrFunctionNotFound
}

// LineAfter returns the line-table entry immediately following the one at
// dwarfAddr within the same compilation unit, used to skip a function's
// prologue when breakpointing by name.
func (img *Image) LineAfter(dwarfAddr uint64) (*Line, error) {
	cu, err := img.dwarfData.Reader().SeekPC(dwarfAddr)
	if err != nil {
		return nil, ErrLineNotFound
	}
	lr, err := img.dwarfData.LineReader(cu)
	if err != nil || lr == nil {
		return nil, ErrLineNotFound
	}
	var entry dwarf.LineEntry
	if err := lr.SeekPC(dwarfAddr, &entry); err != nil {
		return nil, ErrLineNotFound
	}
	if err := lr.Next(&entry); err != nil {
		return nil, ErrLineNotFound
	}
	fileName := ""
	if entry.File != nil {
		fileName = entry.File.Name
	}
	return &Line{File: fileName, Line: entry.Line, Address: entry.Address, IsStmt: entry.IsStmt}, nil
}

// Symbols enumerates symtab and dynsym entries whose name equals name.
func (img *Image) Symbols(name string) []Symbol {
	var out []Symbol
	collect := func(syms []elf.Symbol) {
		for _, s := range syms {
			if s.Name != name {
				continue
			}
			out = append(out, Symbol{Type: symbolType(elf.ST_TYPE(s.Info)), Name: s.Name, Value: s.Value})
		}
	}
	if syms, err := img.elfFile.Symbols(); err == nil {
		collect(syms)
	}
	if syms, err := img.elfFile.DynamicSymbols(); err == nil {
		collect(syms)
	}
	return out
}

func symbolType(t elf.SymType) SymbolType {
	switch t {
	case elf.STT_OBJECT:
		return SymObject
	case elf.STT_FUNC:
		return SymFunc
	case elf.STT_SECTION:
		return SymSection
	case elf.STT_FILE:
		return SymFile
	default:
		return SymNoType
	}
}
