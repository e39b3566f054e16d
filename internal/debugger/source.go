package debugger

import (
	"bufio"
	"fmt"
	"os"
)

// sourceContextLines is how many lines of context are printed above and
// below the current line.
const sourceContextLines = 2

// printSourceAtPC resolves the current PC to a source line and prints a
// small window around it, marking the current line with "> ". Failures
// are swallowed: source listing is a convenience, not a control-flow
// dependency, and a tracee built without matching source on disk must not
// abort the session.
func (e *Engine) printSourceAtPC() {
	line, err := e.Image.LineAt(e.PC(), true)
	if err != nil {
		return
	}
	printSourceWindow(line.File, line.Line, sourceContextLines)
}

// printSourceWindow prints lines [lineno-context, lineno+context] of path,
// marking lineno with "> " and every other printed line with "  ".
func printSourceWindow(path string, lineno, context int) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	start := lineno - context
	if start < 1 {
		start = 1
	}
	end := lineno + context

	scanner := bufio.NewScanner(f)
	current := 1
	for scanner.Scan() {
		if current > end {
			break
		}
		if current >= start {
			marker := "  "
			if current == lineno {
				marker = "> "
			}
			fmt.Printf("%s%d\t%s\n", marker, current, scanner.Text())
		}
		current++
	}
}
