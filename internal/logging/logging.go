// Package logging sets up structured logging for the debugger's fatal
// tracing-syscall paths: ptrace failures and other invariant violations
// that leave the tracee's state unrecoverable.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

var log = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return l
}

// Logger returns the process-wide logger used for fatal ptrace failures.
func Logger() *logrus.Logger {
	return log
}

// FatalPtrace reports a ptrace syscall failure and terminates the debugger.
// The stopped-tracee invariant is assumed broken beyond this point: the
// tracee's address space may hold an un-restored trap byte, so continuing
// risks silently corrupting the debugee.
func FatalPtrace(request string, pid int, addr uintptr, err error) {
	log.WithFields(logrus.Fields{
		"syscall": "ptrace",
		"request": request,
		"pid":     pid,
		"addr":    addr,
	}).Fatal(err)
}
