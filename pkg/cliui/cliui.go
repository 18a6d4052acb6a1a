// Package cliui holds the terminal styles shared by escrowd commands: step
// progress, aligned key/value fields, and order status colors.
package cliui

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	SuccessMark = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Render("✓")
	FailMark    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("✗")
	KeyStyle    = lipgloss.NewStyle().Bold(true)
	ValueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("117"))
	DimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	WarnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
)

// statusColors keys on escrow status names.
var statusColors = map[string]lipgloss.Style{
	"InProgress": DimStyle,
	"Proposed":   WarnStyle,
	"Confirmed":  ValueStyle,
	"Completed":  lipgloss.NewStyle().Foreground(lipgloss.Color("82")),
	"Cancelled":  lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
}

var spinnerFrames = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

// Step runs fn and reports it on one line as ✓ or ✗ with the elapsed time.
// On a terminal a spinner animates while fn runs.
func Step(w io.Writer, msg string, fn func() error) error {
	stop := func() {}
	if isTerminal(w) {
		stop = spin(w, msg)
	}

	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	stop()

	fmt.Fprintf(w, "\r  %s %s %s\n", Mark(err), msg, DimStyle.Render("("+FormatDuration(elapsed)+")"))
	return err
}

// spin animates until the returned func is called. The func blocks until the
// last frame is written so the result line never interleaves with it.
func spin(w io.Writer, msg string) func() {
	done := make(chan struct{})
	exited := make(chan struct{})

	go func() {
		defer close(exited)
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()

		for frame := 0; ; frame++ {
			fmt.Fprintf(w, "\r  %s %s", spinnerStyle.Render(spinnerFrames[frame%len(spinnerFrames)]), msg)
			select {
			case <-done:
				return
			case <-ticker.C:
			}
		}
	}()

	return func() {
		close(done)
		<-exited
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Mark returns ✓ for a nil error and ✗ otherwise.
func Mark(err error) string {
	if err != nil {
		return FailMark
	}
	return SuccessMark
}

// FormatDuration formats a duration for display (e.g. "12ms" or "3.2s").
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// Field prints one aligned key/value line. Empty values print as <not set>.
func Field(w io.Writer, width int, key, value string) {
	printField(w, width, key, value, ValueStyle)
}

// StatusField prints an order status colored by its stage.
func StatusField(w io.Writer, width int, key, status string) {
	style, ok := statusColors[status]
	if !ok {
		style = ValueStyle
	}
	printField(w, width, key, status, style)
}

func printField(w io.Writer, width int, key, value string, style lipgloss.Style) {
	k := KeyStyle.Render(fmt.Sprintf("%-*s", width, key))
	if value == "" {
		fmt.Fprintf(w, "  %s  %s\n", k, DimStyle.Render("<not set>"))
		return
	}
	fmt.Fprintf(w, "  %s  %s\n", k, style.Render(value))
}
