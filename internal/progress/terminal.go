package progress

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A"))
	countStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F0F0F0"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#52C41A"))
	fadedStyle   = lipgloss.NewStyle().Faint(true)
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Terminal draws the indicator as a single rewritten line, for the CLI.
type Terminal struct {
	Out   io.Writer
	frame int
	last  string
}

// NewTerminal returns a Terminal writing to out.
func NewTerminal(out io.Writer) *Terminal { return &Terminal{Out: out} }

func (t *Terminal) Show(s State) { t.draw(t.line(s)) }

func (t *Terminal) Update(s State) {
	t.frame = (t.frame + 1) % len(spinnerFrames)
	t.draw(t.line(s))
}

func (t *Terminal) Complete(s State) { t.draw(t.line(s)) }

// Fade dims the completion line; terminals have no opacity.
func (t *Terminal) Fade(time.Duration) {
	t.draw(fadedStyle.Render(t.last))
}

// Remove clears the line.
func (t *Terminal) Remove() {
	fmt.Fprint(t.Out, "\r\x1b[2K")
}

func (t *Terminal) line(s State) string {
	icon := spinnerStyle.Render(spinnerFrames[t.frame])
	if s.Phase == Complete {
		icon = doneStyle.Render("✓")
	}
	count := countStyle.Render(fmt.Sprintf("%d / %d", s.Processed, s.Total))
	t.last = fmt.Sprintf("%s %s %s", icon, count, labelStyle.Render(s.Label()))
	return t.last
}

func (t *Terminal) draw(line string) {
	fmt.Fprint(t.Out, "\r\x1b[2K"+line)
}
