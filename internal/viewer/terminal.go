package viewer

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/t77yq/script-supervisor/internal/logging"
	"github.com/t77yq/script-supervisor/internal/model"
)

const clearScreen = "\033[H\033[2J"

// TerminalRenderer redraws the whole log in a terminal with levels coloured
type TerminalRenderer struct {
	out        io.Writer
	clear      bool
	errorStyle lipgloss.Style
	debugStyle lipgloss.Style
	infoStyle  lipgloss.Style
}

// NewTerminalRenderer creates a renderer writing to out. clear redraws from
// the top of the screen on every render.
func NewTerminalRenderer(out io.Writer, clear bool) *TerminalRenderer {
	return &TerminalRenderer{
		out:        out,
		clear:      clear,
		errorStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		debugStyle: lipgloss.NewStyle().Faint(true),
		infoStyle:  lipgloss.NewStyle(),
	}
}

// Render implements Renderer
func (r *TerminalRenderer) Render(snapshot string) error {
	var b strings.Builder
	if r.clear {
		b.WriteString(clearScreen)
	}

	for _, line := range strings.SplitAfter(snapshot, "\n") {
		if line == "" {
			continue
		}
		b.WriteString(r.styleFor(line).Render(strings.TrimSuffix(line, "\n")))
		b.WriteString("\n")
	}

	_, err := fmt.Fprint(r.out, b.String())
	return err
}

func (r *TerminalRenderer) styleFor(line string) lipgloss.Style {
	record, err := logging.ParseRecord(line)
	if err != nil {
		return r.infoStyle
	}
	switch record.Level {
	case model.LevelError:
		return r.errorStyle
	case model.LevelDebug:
		return r.debugStyle
	}
	return r.infoStyle
}
