// Package style centralizes the lipgloss styles used by CLI output.
package style

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Shared styles. Plain when stdout is not a terminal so piped output stays
// machine-readable.
var (
	Bold  = lipgloss.NewStyle().Bold(true)
	Dim   = lipgloss.NewStyle().Faint(true)
	Good  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	Bad   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	Warn  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	Title = lipgloss.NewStyle().Bold(true).Underline(true)
)

func init() {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		plain := lipgloss.NewStyle()
		Bold, Dim, Good, Bad, Warn, Title = plain, plain, plain, plain, plain, plain
	}
}
