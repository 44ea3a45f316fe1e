package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"github.com/aceteam-ai/dream-cli/internal/horde"
)

var labelStyle = lipgloss.NewStyle().Bold(true)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// TerminalWidth returns the width of f, or 80 if it cannot be determined.
func TerminalWidth(f *os.File) int {
	if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
		return w
	}
	return 80
}

// JobProgress redraws a two-line job status display in place:
//
//	Queue Position: 3 | ETA: 12s
//	Wait:1 Proc:1 Res:0 Fin:0 ██████░░░░ 0/2
type JobProgress struct {
	mu     sync.Mutex
	writer io.Writer
	total  int
	width  int
	bar    progress.Model
	last   []string
	drawn  int
	closed bool
}

// NewJobProgress creates a display for a job of total images.
func NewJobProgress(w io.Writer, total, width int) *JobProgress {
	if total < 1 {
		total = 1
	}
	if width <= 0 {
		width = 80
	}
	return &JobProgress{
		writer: w,
		total:  total,
		width:  width,
		bar:    progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
	}
}

// Update redraws the display for status.
func (p *JobProgress) Update(status horde.JobStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}

	p.last = p.render(status)
	var b strings.Builder
	if p.drawn > 0 {
		fmt.Fprintf(&b, "\033[%dA", p.drawn)
	}
	p.frame(&b)
	fmt.Fprint(p.writer, b.String())
}

// Write prints b above the display and redraws the last frame below it, so
// log output sharing the terminal is not overwritten by the next Update.
func (p *JobProgress) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.drawn == 0 {
		return p.writer.Write(b)
	}

	var out strings.Builder
	fmt.Fprintf(&out, "\033[%dA\r\033[J", p.drawn)
	out.Write(b)
	if len(b) > 0 && b[len(b)-1] != '\n' {
		out.WriteString("\n")
	}
	p.frame(&out)
	if _, err := io.WriteString(p.writer, out.String()); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (p *JobProgress) frame(b *strings.Builder) {
	for _, line := range p.last {
		b.WriteString("\r\033[K")
		b.WriteString(line)
		b.WriteString("\n")
	}
	p.drawn = len(p.last)
}

// Close stops further redraws. The last frame stays on screen.
func (p *JobProgress) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

func (p *JobProgress) render(s horde.JobStatus) []string {
	queue := runewidth.Truncate(
		fmt.Sprintf("Queue Position: %d | ETA: %ds", s.QueuePosition, s.WaitTime), p.width, "…")

	desc := fmt.Sprintf("Wait:%d Proc:%d Res:%d Fin:%d", s.Waiting, s.Processing, s.Restarted, s.Finished)
	count := fmt.Sprintf(" %d/%d", s.Finished, p.total)

	// Leave room for the description, the count and the separating space.
	barWidth := p.width - runewidth.StringWidth(desc) - runewidth.StringWidth(count) - 1
	if barWidth > 40 {
		barWidth = 40
	}
	if barWidth < 5 {
		desc = runewidth.Truncate(desc, p.width-runewidth.StringWidth(count), "…")
		return []string{labelStyle.Render(queue), desc + count}
	}

	pct := float64(s.Finished) / float64(p.total)
	if pct > 1 {
		pct = 1
	}
	p.bar.Width = barWidth
	return []string{labelStyle.Render(queue), desc + " " + p.bar.ViewAs(pct) + count}
}
