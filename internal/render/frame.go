package render

import "fmt"

// FrameSlot is one of the two in-flight frame resources §4.15
// describes: a command pool, a fence, the acquire/render-complete
// semaphores, and a timestamp query pool. The actual GPU handles are
// left as opaque fields a real backend fills in; this package only
// enforces the ordering contract around them.
type FrameSlot struct {
	Index int

	// CommandPool, Fence, ImageAcquired, RenderComplete, and Queries
	// stand in for the backend's native handles; nil until a real
	// backend is wired in.
	CommandPool    any
	Fence          any
	ImageAcquired  any
	RenderComplete any
	Queries        any

	// TimelineValue is the timeline-semaphore value this slot's
	// render signals on completion.
	TimelineValue uint64
}

// FrameCount is the number of in-flight frames §4.15 specifies.
const FrameCount = 2

// FrameRing cycles the two frame slots and tracks the last timeline
// value a completed frame signaled. CullReady gates a slot only on the
// completion of that slot's own previous frame (two frames back); the
// ring does not check whether the immediately preceding frame has
// completed.
type FrameRing struct {
	slots    [FrameCount]FrameSlot
	current  int
	timeline uint64 // last value signaled by a completed frame
}

// NewFrameRing returns a ring with both slots idle.
func NewFrameRing() *FrameRing {
	r := &FrameRing{}
	for i := range r.slots {
		r.slots[i].Index = i
	}
	return r
}

// Acquire returns the next frame slot to render into, advancing the
// ring. The caller must have already waited on that slot's fence
// (its previous use, two frames back) before reusing its command
// pool.
func (r *FrameRing) Acquire() *FrameSlot {
	s := &r.slots[r.current]
	r.current = (r.current + 1) % FrameCount
	return s
}

// CullReady reports whether it is safe to dispatch culling for slot,
// i.e. whether the frame that last used this slot (two frames back)
// has signaled completion; a slot never completed before is ready.
// CullReady returns false only if a caller tries to race ahead of the
// timeline, which should not happen if Acquire/Complete are called in
// lock-step once per frame.
func (r *FrameRing) CullReady(slot *FrameSlot) bool {
	if slot.TimelineValue == 0 {
		return true // first use of this slot: no prior frame to wait on
	}
	return r.timeline >= slot.TimelineValue
}

// Complete marks slot's frame as finished, advancing the ring's
// timeline so the next frame two slots ahead may begin its cull
// dispatch.
func (r *FrameRing) Complete(slot *FrameSlot, timelineValue uint64) error {
	if timelineValue <= r.timeline {
		return fmt.Errorf("render: timeline value %d does not advance past %d", timelineValue, r.timeline)
	}
	slot.TimelineValue = timelineValue
	r.timeline = timelineValue
	return nil
}

// Timeline reports the last signaled timeline value.
func (r *FrameRing) Timeline() uint64 { return r.timeline }
