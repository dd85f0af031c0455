package report

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-isatty"
)

// Print writes markdown to w, styled for the terminal when w is one.
func Print(w io.Writer, markdown string, width int) error {
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		styled, err := Style(markdown, width)
		if err == nil {
			_, err = io.WriteString(w, styled)
			return err
		}
	}
	_, err := io.WriteString(w, markdown)
	return err
}

// Style renders markdown with ANSI styling wrapped at width columns.
func Style(markdown string, width int) (string, error) {
	if width <= 0 {
		width = 100
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("create renderer: %w", err)
	}
	out, err := r.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return out, nil
}
