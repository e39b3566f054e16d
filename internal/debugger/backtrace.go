package debugger

import (
	"fmt"

	"github.com/Montura/TinyDebugger/internal/regs"
)

// Frame is one entry in a printed backtrace: a return address together
// with the function name it falls inside, if known.
type Frame struct {
	PC       uint64
	Function string
}

// ReturnAddress reads the saved return address at frame+8 for the frame
// whose base pointer is rbp. Assumes the tracee was compiled with frame
// pointers preserved.
func (e *Engine) ReturnAddress(rbp uint64) (uint64, error) {
	return e.ReadMemory(rbp + 8)
}

// PrintBacktrace walks the RBP chain from the current frame outward,
// printing one line per frame, and returns the walked frames. Walking
// stops when the saved RBP is zero (reached the bottom of the stack) OR
// the frame's function is named "main" (reached the entry frame),
// whichever comes first, so a stripped binary that never zeroes RBP still
// terminates.
func (e *Engine) PrintBacktrace() []Frame {
	var frames []Frame

	pc := e.PC()
	rbp := regs.Value(e.Pid, regs.Rbp)

	frameIndex := 0
	for {
		fn, err := e.Image.FunctionAt(pc)
		name := "??"
		if err == nil {
			name = fn.Name
		}
		fmt.Printf("frame #%d: 0x%016x %s\n", frameIndex, pc, name)
		frames = append(frames, Frame{PC: pc, Function: name})

		if rbp == 0 || name == "main" {
			break
		}
		retAddr, err := e.ReturnAddress(rbp)
		if err != nil || retAddr == 0 {
			break
		}
		savedRbp, err := e.ReadMemory(rbp)
		if err != nil {
			break
		}
		pc = retAddr
		rbp = savedRbp
		frameIndex++
	}
	return frames
}
