package main

import (
	"os"

	"github.com/mattn/go-isatty"
)

// ANSI SGR codes used for status text. Kept minimal — this is a status
// indicator, not a themeable palette.
const (
	ansiReset  = "\x1b[0m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiRed    = "\x1b[31m"
)

// colorEnabled reports whether f is a terminal that should receive ANSI
// color codes. Piping output to a file or another process (e.g. `locomote
// status | tee log`) must not leak escape sequences into it.
func colorEnabled(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// colorize wraps s in code when f is a terminal, and returns s unchanged
// otherwise.
func colorize(f *os.File, code, s string) string {
	if !colorEnabled(f) {
		return s
	}

	return code + s + ansiReset
}
