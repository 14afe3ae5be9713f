package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"
)

const (
	ansiReset  = "\x1b[0m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiDim    = "\x1b[2m"
	ansiRed    = "\x1b[31m"
)

// formatter prints stream lines, colored and width-limited on a terminal.
type formatter struct {
	w     io.Writer
	color bool
	width int
}

func newFormatter(w io.Writer) *formatter {
	f := &formatter{w: w}
	if file, ok := w.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		f.color = true
		if cols, _, err := term.GetSize(int(file.Fd())); err == nil {
			f.width = cols
		}
	}
	return f
}

func (f *formatter) Line(at time.Time, line string) {
	text := at.Format("15:04:05.000") + " " + line
	if f.width > 0 && len(text) > f.width {
		text = text[:f.width]
	}
	if !f.color {
		fmt.Fprintln(f.w, text)
		return
	}
	fmt.Fprintln(f.w, colorFor(line)+text+ansiReset)
}

func colorFor(line string) string {
	switch {
	case strings.HasSuffix(line, " TAP"):
		return ansiGreen
	case strings.HasSuffix(line, " HOLD"):
		return ansiYellow
	case line == "evt disconnected":
		return ansiRed
	}
	return ansiDim
}
