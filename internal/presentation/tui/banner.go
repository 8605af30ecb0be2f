package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the silvan banner to w using the given color profile.
func PrintBanner(w io.Writer, p termenv.Profile) {
	lines := []struct {
		text  string
		color string
	}{
		{"       _ _                 ", "#34d399"},
		{"  ___ (_) |_   ____ _ _ __ ", "#2dd4bf"},
		{" / __|| | \\ \\ / / _` | '_ \\", "#22d3ee"},
		{" \\__ \\| | |\\ V / (_| | | | |", "#38bdf8"},
		{" |___/|_|_| \\_/ \\__,_|_| |_|", "#60a5fa"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, p.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w)
}
