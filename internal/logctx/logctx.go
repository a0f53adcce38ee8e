// Package logctx wires a single structured logger through the stack,
// following the convention that every component takes a *log.Logger (or
// derives one via WithPrefix) rather than reaching for a package-level
// global.
package logctx

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// New builds the root logger. Callers pick a level (Debug during
// development, Info in normal operation) and a destination; stderr is the
// default so stdout stays free for any piped protocol data.
func New(level log.Level, out io.Writer) *log.Logger {
	if out == nil {
		out = os.Stderr
	}

	l := log.NewWithOptions(out, log.Options{
		ReportTimestamp: true,
		Level:           level,
	})

	return l
}

// Component returns a child logger tagged with a subsystem name, e.g.
// Component(root, "kiss") so every line it emits is prefixed "kiss".
func Component(root *log.Logger, name string) *log.Logger {
	return root.WithPrefix(name)
}
