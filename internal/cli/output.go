package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/muesli/termenv"
	"github.com/stevekinney/silvan-sub003/internal/presentation/tui"
	"golang.org/x/term"
)

// Output writes command results to stdout, styled only for terminals.
type Output struct {
	w       io.Writer
	json    bool
	tty     bool
	profile termenv.Profile
	render  func(string) (string, error)
}

// NewOutput inspects w and picks colors and markdown rendering accordingly.
// plain disables both even on a terminal; asJSON makes every result JSON.
func NewOutput(w io.Writer, plain, asJSON bool) *Output {
	o := &Output{w: w, json: asJSON, profile: termenv.Ascii, render: tui.PlainRenderer()}
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) || plain {
		return o
	}
	o.tty = true
	o.profile = termenv.EnvColorProfile()
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		width = 0
	}
	o.render = tui.NewRenderer(width)
	return o
}

// JSONMode reports whether results should be printed as JSON.
func (o *Output) JSONMode() bool { return o.json }

// TTY reports whether output goes to an interactive terminal.
func (o *Output) TTY() bool { return o.tty }

// Profile returns the color profile for styled lines.
func (o *Output) Profile() termenv.Profile { return o.profile }

// JSON writes v as indented JSON.
func (o *Output) JSON(v any) error {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Markdown renders md for the terminal, or writes it as-is.
func (o *Output) Markdown(md string) error {
	out, err := o.render(md)
	if err != nil {
		return err
	}
	_, err = io.WriteString(o.w, out)
	return err
}

// Println writes a line.
func (o *Output) Println(a ...any) {
	fmt.Fprintln(o.w, a...)
}

// Printf writes formatted text.
func (o *Output) Printf(format string, a ...any) {
	fmt.Fprintf(o.w, format, a...)
}

// Writer returns the underlying writer.
func (o *Output) Writer() io.Writer { return o.w }
