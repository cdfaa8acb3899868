// Package ui prints the human-facing command output. Status lines carry a
// colored marker; everything else is plain text so output stays greppable.
package ui

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
)

var (
	okMark   = color.New(color.FgGreen).Sprint("✓")
	warnMark = color.New(color.FgYellow).Sprint("⚠")
	infoMark = color.New(color.FgCyan).Sprint("ℹ")
)

// Out is where status lines go. Tests may swap it.
var Out io.Writer = os.Stdout

// Successf prints a green check line.
func Successf(format string, args ...any) {
	fmt.Fprintf(Out, "%s %s\n", okMark, fmt.Sprintf(format, args...))
}

// Warnf prints a yellow warning line.
func Warnf(format string, args ...any) {
	fmt.Fprintf(Out, "%s %s\n", warnMark, fmt.Sprintf(format, args...))
}

// Infof prints a cyan info line.
func Infof(format string, args ...any) {
	fmt.Fprintf(Out, "%s %s\n", infoMark, fmt.Sprintf(format, args...))
}

// Plainf prints without a marker.
func Plainf(format string, args ...any) {
	fmt.Fprintf(Out, format+"\n", args...)
}

// Ago renders a timestamp as a relative phrase ("3 days ago"). The zero time
// renders as "never".
func Ago(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}

// Bytes renders a byte count in human units.
func Bytes(n int) string {
	return humanize.Bytes(uint64(n))
}
