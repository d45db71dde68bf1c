// Package cli implements the vectrald command-line interface: one-shot
// subcommands over a *vectordb.DB plus an interactive console.
package cli

import (
	"fmt"
	"io"
)

// IO handles command output, mirroring the calling convention the
// subcommands share: stdout for results, stderr for errors.
type IO struct {
	out    io.Writer
	errOut io.Writer
}

// NewIO creates a new IO instance.
func NewIO(out, errOut io.Writer) *IO {
	return &IO{out: out, errOut: errOut}
}

func (o *IO) Println(a ...any) {
	_, _ = fmt.Fprintln(o.out, a...)
}

func (o *IO) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(o.out, format, a...)
}

func (o *IO) ErrPrintln(a ...any) {
	_, _ = fmt.Fprintln(o.errOut, a...)
}
