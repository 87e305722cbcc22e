// Package style holds the colours, icons and text styles shared by the CLI output.
package style

import "github.com/charmbracelet/lipgloss"

// Colours.
var (
	Iris   = lipgloss.Color("#8B5CF6")
	Slate  = lipgloss.Color("#667085")
	Green  = lipgloss.Color("#22A06B")
	Red    = lipgloss.Color("#D93025")
	Yellow = lipgloss.Color("#F59E0B")
)

// Icons.
const (
	Check   = "✓"
	Cross   = "✗"
	Warning = "!"
	Tilde   = "~"
	Circle  = "○"
)

// Palette is the set of text styles of one renderer.
type Palette struct {
	Success lipgloss.Style
	Failure lipgloss.Style
	Cached  lipgloss.Style
	Skipped lipgloss.Style
	Faint   lipgloss.Style
	Title   lipgloss.Style
}

// NewPalette creates the styles on r.
func NewPalette(r *lipgloss.Renderer) Palette {
	return Palette{
		Success: r.NewStyle().Foreground(Green),
		Failure: r.NewStyle().Foreground(Red),
		Cached:  r.NewStyle().Foreground(Iris),
		Skipped: r.NewStyle().Foreground(Yellow),
		Faint:   r.NewStyle().Foreground(Slate),
		Title:   r.NewStyle().Bold(true),
	}
}
