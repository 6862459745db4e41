package render

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// debugLogHistory bounds the ring of entries DebugLog keeps for the
// debug overlay to read back; logrus itself is not ring-buffered, so
// a hook captures formatted entries into this fixed window.
const debugLogHistory = 200

// DebugLog is the render thread's own log, kept separate from the
// server's zerolog logger (internal/obs) so the render thread never
// contends with the server's structured-log writer, and so its
// recent-entries ring can feed the debug overlay directly.
type DebugLog struct {
	logger *logrus.Logger

	mu      sync.Mutex
	entries []string
}

// NewDebugLog returns a render-thread logger at the given level
// ("debug", "info", "warn", ...).
func NewDebugLog(level string) *DebugLog {
	l := logrus.New()
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	d := &DebugLog{logger: l}
	l.AddHook(ringHook{d})
	return d
}

type ringHook struct{ d *DebugLog }

func (ringHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h ringHook) Fire(e *logrus.Entry) error {
	line, err := e.String()
	if err != nil {
		return err
	}
	h.d.mu.Lock()
	h.d.entries = append(h.d.entries, line)
	if len(h.d.entries) > debugLogHistory {
		h.d.entries = h.d.entries[len(h.d.entries)-debugLogHistory:]
	}
	h.d.mu.Unlock()
	return nil
}

// Entry returns a logrus entry scoped to component, the same
// child-logger idiom internal/obs.Logger.WithComponent uses for the
// server side.
func (d *DebugLog) Entry(component string) *logrus.Entry {
	return d.logger.WithField("component", component)
}

// Recent returns up to debugLogHistory of the most recently logged
// lines, newest last, for the debug overlay to render.
func (d *DebugLog) Recent() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.entries))
	copy(out, d.entries)
	return out
}
