// Package output creates terminal outputs with a consistent colour profile.
package output

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Mode selects how the colour profile is chosen.
type Mode uint8

const (
	// Detect asks the terminal behind the writer for its capabilities.
	Detect Mode = iota
	// ANSI assumes basic colour support, which CI log viewers render.
	ANSI
)

// Profile returns the colour profile of mode for output written to w. NO_COLOR
// always selects Ascii. In Detect mode a writer that is not a terminal, such as a
// daemon log file, selects Ascii too.
func Profile(w io.Writer, mode Mode) termenv.Profile {
	if os.Getenv("NO_COLOR") != "" {
		return termenv.Ascii
	}
	if mode == ANSI {
		return termenv.ANSI
	}
	if !IsTerminal(w) {
		return termenv.Ascii
	}
	return termenv.EnvColorProfile()
}

// IsTerminal reports whether w is a file attached to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(f.Fd())) //nolint:gosec // file descriptors fit in int
}

// New creates a termenv.Output on w, which defaults to stderr.
func New(w io.Writer, mode Mode, opts ...termenv.OutputOption) *termenv.Output {
	if w == nil {
		w = os.Stderr
	}
	opts = append(opts, termenv.WithProfile(Profile(w, mode)), termenv.WithTTY(true))
	return termenv.NewOutput(w, opts...)
}

// Lipgloss creates a lipgloss renderer on w with the profile of mode.
func Lipgloss(w io.Writer, mode Mode) *lipgloss.Renderer {
	if w == nil {
		w = os.Stderr
	}
	r := lipgloss.NewRenderer(w)
	r.SetColorProfile(Profile(w, mode))
	return r
}
