// Package debugui renders the client's user-visible failure screen:
// a simple Report{error} state with an exit prompt, the style §7
// assigns protocol desyncs and disconnects alike (reimplementing only
// the content of the source's egui overlay, not its widget layout,
// per spec.md's Non-goals on GUI layout).
package debugui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")).Padding(0, 1)
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(1, 2)
	hintStyle  = lipgloss.NewStyle().Faint(true)
	statStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
)

// Report is the terminal failure screen shown after a disconnect or a
// protocol desync (§7 "the client renders a simple Report{error}
// state with an exit button").
type Report struct {
	Err error
}

// Render returns the styled report text; the caller is responsible
// for wiring an actual exit keybinding to whatever input loop displays
// this.
func (r Report) Render() string {
	body := fmt.Sprintf("%s\n\n%s", titleStyle.Render("Disconnected"), r.Err.Error())
	return boxStyle.Render(body) + "\n" + hintStyle.Render("press q to exit")
}

// Stats is the in-play debug readout: current tick, the tick period,
// and frame time, the non-error counterpart to
// Report shown while the client is connected.
type Stats struct {
	Tick       uint64
	TickDelta  time.Duration
	FrameTime  time.Duration
	QueueDepth int
}

// Render returns a one-line styled stats readout suitable for a
// corner overlay.
func (s Stats) Render() string {
	fps := 0.0
	if s.FrameTime > 0 {
		fps = float64(time.Second) / float64(s.FrameTime)
	}
	return statStyle.Render(fmt.Sprintf(
		"tick %d  Δ %s  %.0f fps  queue %d",
		s.Tick, s.TickDelta, fps, s.QueueDepth,
	))
}
