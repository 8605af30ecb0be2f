package tui

import (
	"github.com/charmbracelet/glamour"
)

// NewRenderer returns a function that renders markdown using glamour.
// width wraps the output; zero keeps glamour's default.
func NewRenderer(width int) func(string) (string, error) {
	opts := []glamour.TermRendererOption{
		glamour.WithAutoStyle(), // Automatically detect light/dark background
	}
	if width > 0 {
		opts = append(opts, glamour.WithWordWrap(width))
	}
	r, err := glamour.NewTermRenderer(opts...)

	return func(markdown string) (string, error) {
		if err != nil {
			return markdown, nil
		}
		return r.Render(markdown)
	}
}

// PlainRenderer returns markdown unchanged, for pipes and files.
func PlainRenderer() func(string) (string, error) {
	return func(markdown string) (string, error) {
		return markdown, nil
	}
}
