// Package cliui holds the terminal styling shared by medrag commands:
// the spinner used while indexing, the key/value styles the status and
// config commands print with, and the glamour renderer for answers.
package cliui

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

var (
	SuccessMark  = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Render("✓")
	FailMark     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("✗")
	StepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	KeyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	ValueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	DimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
)

var spinnerFrames = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

// answerWrap is the word-wrap width for rendered answers. Clinical
// notes read badly at full terminal width.
const answerWrap = 80

// Step animates a spinner on w while fn runs, then rewrites the line
// with a ✓ or ✗ and the elapsed time. fn's error is returned as-is.
func Step(w io.Writer, msg string, fn func() error) error {
	stop := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()

		for frame := 0; ; frame++ {
			fmt.Fprintf(w, "\r  %s %s",
				spinnerStyle.Render(spinnerFrames[frame%len(spinnerFrames)]),
				msg,
			)
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
		}
	}()

	start := time.Now()
	err := fn()

	// Wait for the spinner goroutine to exit before rewriting the
	// line, otherwise a late frame can clobber the result.
	close(stop)
	<-stopped

	mark := SuccessMark
	if err != nil {
		mark = FailMark
	}
	fmt.Fprintf(w, "\r  %s %s %s\n",
		mark,
		msg,
		StepStyle.Render("("+FormatDuration(time.Since(start))+")"),
	)

	return err
}

// FormatDuration formats a duration for display (e.g. "12ms" or "3.2s").
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// RenderMarkdown renders an answer's markdown for the terminal. On
// renderer errors the raw content comes back so output is never lost.
func RenderMarkdown(content string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(answerWrap),
	)
	if err != nil {
		return content, err
	}

	rendered, err := r.Render(content)
	if err != nil {
		return content, err
	}

	return rendered, nil
}
