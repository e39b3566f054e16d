package binutil_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Montura/TinyDebugger/internal/binutil"
	"github.com/Montura/TinyDebugger/internal/testutil"
)

func TestFunctionsByName(t *testing.T) {
	path := testutil.BuildFixture(t)
	img, err := binutil.Open(path)
	require.NoError(t, err)
	defer img.Close()

	fns, err := img.FunctionsByName("compute")
	require.NoError(t, err)
	require.Len(t, fns, 1, "expected exactly one compute()")
	require.Less(t, fns[0].LowPC, fns[0].HighPC, "invalid pc range")
}

func TestFunctionsByNameUnknown(t *testing.T) {
	path := testutil.BuildFixture(t)
	img, err := binutil.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer img.Close()

	fns, err := img.FunctionsByName("does_not_exist_anywhere")
	if err != nil {
		t.Fatalf("FunctionsByName on a miss should not error: %v", err)
	}
	if len(fns) != 0 {
		t.Fatalf("expected no matches, got %d", len(fns))
	}
}

func TestFunctionAtAndLineAt(t *testing.T) {
	path := testutil.BuildFixture(t)
	img, err := binutil.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer img.Close()

	fns, err := img.FunctionsByName("add")
	if err != nil || len(fns) != 1 {
		t.Fatalf("FunctionsByName(add): %v, %d results", err, len(fns))
	}

	fn, err := img.FunctionAt(fns[0].LowPC)
	if err != nil {
		t.Fatalf("FunctionAt: %v", err)
	}
	if fn.Name != "add" {
		t.Fatalf("FunctionAt resolved %q, want add", fn.Name)
	}

	line, err := img.LineAt(fns[0].LowPC, false)
	if err != nil {
		t.Fatalf("LineAt: %v", err)
	}
	if !strings.HasSuffix(line.File, "mini.c") {
		t.Fatalf("LineAt resolved file %q, want suffix mini.c", line.File)
	}
}

func TestLineInFile(t *testing.T) {
	path := testutil.BuildFixture(t)
	img, err := binutil.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer img.Close()

	// "int sum = a + b;" in _fixtures/mini.c.
	addr, err := img.LineInFile("mini.c", 8)
	if err != nil {
		t.Fatalf("LineInFile: %v", err)
	}
	if addr == 0 {
		t.Fatal("LineInFile returned a zero address")
	}
}

func TestLineInFileUnknownLine(t *testing.T) {
	path := testutil.BuildFixture(t)
	img, err := binutil.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer img.Close()

	if _, err := img.LineInFile("mini.c", 999999); err != binutil.ErrLineNotFound {
		t.Fatalf("expected ErrLineNotFound, got %v", err)
	}
}

func TestSymbols(t *testing.T) {
	path := testutil.BuildFixture(t)
	img, err := binutil.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer img.Close()

	syms := img.Symbols("main")
	if len(syms) == 0 {
		t.Fatal("expected at least one symbol named main")
	}
	found := false
	for _, s := range syms {
		if s.Type == binutil.SymFunc {
			found = true
		}
	}
	if !found {
		t.Fatal("expected main's symbol type to be func")
	}
}

func TestNonPIELoadAddressIsZero(t *testing.T) {
	path := testutil.BuildFixture(t)
	img, err := binutil.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer img.Close()

	if img.OffsetDwarf(0x1000) != 0x1000 {
		t.Fatal("non-PIE image should have a zero load address before InitializeLoadAddress")
	}
}
