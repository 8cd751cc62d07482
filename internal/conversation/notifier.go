package conversation

import (
	"context"
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/hammamikhairi/storyplated/internal/domain"
	"github.com/hammamikhairi/storyplated/internal/logger"
)

// Compile-time interface check.
var _ domain.Notifier = (*CLINotifier)(nil)

var (
	noticeStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	urgentStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
)

// PrintFunc is a function used to print formatted output.
// Matches the signature of both fmt.Printf and display.UI.Printf.
type PrintFunc func(format string, a ...interface{})

// CLINotifier prints notifications to the terminal, prefixed with the
// speaking character's name when one is set.
type CLINotifier struct {
	log     *logger.Logger
	printFn PrintFunc
	speaker string
}

// NewCLINotifier creates a terminal notifier.
// If printFn is nil, fmt.Printf is used.
func NewCLINotifier(log *logger.Logger, printFn PrintFunc) *CLINotifier {
	if printFn == nil {
		printFn = func(format string, a ...interface{}) {
			fmt.Printf(format+"\n", a...)
		}
	}
	return &CLINotifier{log: log, printFn: printFn}
}

// As returns a notifier that speaks as the named character.
func (n *CLINotifier) As(speaker string) *CLINotifier {
	return &CLINotifier{log: n.log, printFn: n.printFn, speaker: speaker}
}

// Notify prints a normal notification.
func (n *CLINotifier) Notify(ctx context.Context, message string) error {
	n.log.Debug("notify: %s", message)
	n.printFn("%s", noticeStyle.Render(n.prefixed(message)))
	return nil
}

// NotifyUrgent prints an urgent notification in bold red.
func (n *CLINotifier) NotifyUrgent(ctx context.Context, message string) error {
	n.log.Debug("notify-urgent: %s", message)
	n.printFn("%s", urgentStyle.Render(n.prefixed(message)))
	return nil
}

func (n *CLINotifier) prefixed(message string) string {
	if n.speaker == "" {
		return message
	}
	return n.speaker + ": " + message
}
