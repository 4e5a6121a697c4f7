// Package progress renders per-phase migration progress to the terminal.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Reporter receives phase progress from the orchestrator. Implementations
// must tolerate concurrent Step calls during the story fan-out.
type Reporter interface {
	// Phase starts a named phase expecting total steps. total may be zero.
	Phase(name string, total int)
	// Step advances the current phase by n.
	Step(n int)
	// Done closes the current phase.
	Done()
}

// Nop discards all progress. Used in tests and when output is not a TTY.
type Nop struct{}

func (Nop) Phase(string, int) {}
func (Nop) Step(int)          {}
func (Nop) Done()             {}

var (
	phaseStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	barStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	countStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Terminal draws a single-line progress bar per phase, redrawn in place.
type Terminal struct {
	mu    sync.Mutex
	w     io.Writer
	name  string
	total int
	done  int
}

// New returns a terminal reporter when stdout is a TTY, Nop otherwise.
func New() Reporter {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return Nop{}
	}
	return &Terminal{w: os.Stdout}
}

func (t *Terminal) Phase(name string, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.name = name
	t.total = total
	t.done = 0
	t.draw()
}

func (t *Terminal) Step(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done += n
	t.draw()
}

func (t *Terminal) Done() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.total > 0 {
		t.done = t.total
		t.draw()
	}
	fmt.Fprintln(t.w)
	t.name = ""
}

const barWidth = 30

func (t *Terminal) draw() {
	if t.name == "" {
		return
	}
	var bar string
	if t.total > 0 {
		filled := t.done * barWidth / t.total
		if filled > barWidth {
			filled = barWidth
		}
		bar = barStyle.Render(strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled))
		bar += " " + countStyle.Render(fmt.Sprintf("%d/%d", t.done, t.total))
	} else {
		bar = countStyle.Render(fmt.Sprintf("%d", t.done))
	}
	fmt.Fprintf(t.w, "\r\033[K%s %s", phaseStyle.Render(t.name), bar)
}
