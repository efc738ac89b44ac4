package main

import (
	"fmt"
	"os"
)

// Decorative output goes to stderr so command results on stdout stay
// script-friendly.
const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
	ansiBold   = "\033[1m"
)

func paint(color, text string) string {
	if noColor {
		return text
	}
	return color + text + ansiReset
}

func notef(color, glyph, format string, args ...any) {
	fmt.Fprintln(os.Stderr, paint(color, glyph+" "+fmt.Sprintf(format, args...)))
}

func printSuccess(format string, args ...any) { notef(ansiGreen, "✓", format, args...) }
func printError(format string, args ...any)   { notef(ansiRed, "✗", format, args...) }
func printWarning(format string, args ...any) { notef(ansiYellow, "⚠", format, args...) }
func printStep(format string, args ...any)    { notef(ansiCyan, "→", format, args...) }

// printStatus renders one "label: value" line of daemon state.
func printStatus(label, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "  %s %s\n", paint(ansiBold, label+":"), fmt.Sprintf(format, args...))
}
