package render

import "testing"

func TestDebugLogKeepsRecentEntries(t *testing.T) {
	d := NewDebugLog("debug")
	d.Entry("cull").Info("dispatching frame")
	d.Entry("atlas").Warn("slot exhausted")

	recent := d.Recent()
	if len(recent) != 2 {
		t.Fatalf("got %d entries, want 2", len(recent))
	}
}

func TestDebugLogBoundsHistory(t *testing.T) {
	d := NewDebugLog("debug")
	for i := 0; i < debugLogHistory+10; i++ {
		d.Entry("cull").Info("tick")
	}
	if got := len(d.Recent()); got != debugLogHistory {
		t.Fatalf("got %d entries, want %d", got, debugLogHistory)
	}
}
