package host

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"
)

// Notifier shows a short message to the user.
type Notifier interface {
	Notify(title, message string)
}

// LogNotifier writes notifications to the process log.
type LogNotifier struct{}

func (LogNotifier) Notify(title, message string) {
	log.Warn().Str("title", title).Msg(message)
}

var (
	noteTitle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	noteBody  = lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
)

// TerminalNotifier prints one styled line per notification.
type TerminalNotifier struct{ Out io.Writer }

func (n TerminalNotifier) Notify(title, message string) {
	fmt.Fprintf(n.Out, "%s %s\n", noteTitle.Render(title), noteBody.Render(message))
}
