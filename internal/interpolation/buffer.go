// Package interpolation implements the fixed-size ring buffer used to
// smooth NPC/PC transforms between simulation ticks (C10).
package interpolation

import (
	"math"

	"github.com/wosim-go/wosim/internal/protocol"
)

// ServerWindow is the number of retained samples on the authoritative
// simulation side.
const ServerWindow = 4

// ClientWindow is the number of retained samples on the rendering
// side, wider than the server's to absorb network jitter.
const ClientWindow = 8

// ClientDeltaMillis is the presentation delay the client evaluates
// behind the newest tick it has received, trading latency for smooth
// playback across jitter (§4.10).
const ClientDeltaMillis = 150

// Buffer is a circular window of N transform samples indexed modulo N
// by tick. It has no notion of wall-clock time; callers convert
// elapsed time to a fractional tick before calling Get.
type Buffer struct {
	n      int
	ring   []protocol.Transform
	last   int64
	filled bool
}

// New returns an empty buffer with room for n samples.
func New(n int) *Buffer {
	return &Buffer{n: n, ring: make([]protocol.Transform, n)}
}

func (b *Buffer) slot(tick int64) int {
	return int(((tick % int64(b.n)) + int64(b.n)) % int64(b.n))
}

// Insert records v as the sample for tick. If tick is more than one
// past the previously inserted tick, every intermediate tick is
// linearly filled from the buffer's previous end-value so a dropped
// update never leaves a stale or zero sample in the window (bounded to
// at most n writes, matching the window size).
func (b *Buffer) Insert(tick int64, v protocol.Transform) {
	if !b.filled {
		for i := range b.ring {
			b.ring[i] = v
		}
		b.last = tick
		b.filled = true
		return
	}

	if tick <= b.last {
		b.ring[b.slot(tick)] = v
		if tick > b.last {
			b.last = tick
		}
		return
	}

	prevTick := b.last
	prevVal := b.ring[b.slot(prevTick)]
	span := tick - prevTick

	fillFrom := tick - int64(b.n) + 1
	if fillFrom < prevTick+1 {
		fillFrom = prevTick + 1
	}
	for t := fillFrom; t < tick; t++ {
		frac := float32(t-prevTick) / float32(span)
		b.ring[b.slot(t)] = lerp(prevVal, v, frac)
	}
	b.ring[b.slot(tick)] = v
	b.last = tick
}

// Get returns the interpolated transform at fractional tick t, clamped
// to the newest sample when t is at or past the last insert and to the
// oldest retained sample when t falls outside the window.
func (b *Buffer) Get(t float64) protocol.Transform {
	if !b.filled {
		var zero protocol.Transform
		return zero
	}
	if t >= float64(b.last) {
		return b.ring[b.slot(b.last)]
	}
	oldest := b.last - int64(b.n) + 1
	if t < float64(oldest) {
		return b.ring[b.slot(oldest)]
	}

	lo := int64(t)
	hi := lo + 1
	frac := float32(t - float64(lo))
	return lerp(b.ring[b.slot(lo)], b.ring[b.slot(hi)], frac)
}

// Last returns the most recently inserted tick.
func (b *Buffer) Last() int64 { return b.last }

func lerp(a, c protocol.Transform, t float32) protocol.Transform {
	return protocol.Transform{
		Pos: protocol.Vec3{
			X: a.Pos.X + (c.Pos.X-a.Pos.X)*t,
			Y: a.Pos.Y + (c.Pos.Y-a.Pos.Y)*t,
			Z: a.Pos.Z + (c.Pos.Z-a.Pos.Z)*t,
		},
		Rot: slerpApprox(a.Rot, c.Rot, t),
	}
}

// slerpApprox linearly interpolates and renormalizes the quaternion;
// a full spherical interpolation is not needed at per-tick angular
// deltas this small, matching how the storage/vector layer favors the
// simplest representation that satisfies the invariants it must hold.
func slerpApprox(a, c protocol.Quat, t float32) protocol.Quat {
	dot := a.X*c.X + a.Y*c.Y + a.Z*c.Z + a.W*c.W
	if dot < 0 {
		c = protocol.Quat{X: -c.X, Y: -c.Y, Z: -c.Z, W: -c.W}
	}
	q := protocol.Quat{
		X: a.X + (c.X-a.X)*t,
		Y: a.Y + (c.Y-a.Y)*t,
		Z: a.Z + (c.Z-a.Z)*t,
		W: a.W + (c.W-a.W)*t,
	}
	return normalize(q)
}

func normalize(q protocol.Quat) protocol.Quat {
	lenSq := q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W
	if lenSq == 0 {
		return protocol.Quat{W: 1}
	}
	inv := float32(1 / math.Sqrt(float64(lenSq)))
	return protocol.Quat{X: q.X * inv, Y: q.Y * inv, Z: q.Z * inv, W: q.W * inv}
}

// EvalTick converts the client's local clock into the fractional tick
// Get expects: elapsedMillis since world-enter minus the presentation
// delay, divided by the tick period, offset by the tick the server
// reported at world-enter (§4.10).
func EvalTick(elapsedMillis, tickDeltaMillis float64, currentTick int64) float64 {
	return (elapsedMillis-ClientDeltaMillis)/tickDeltaMillis + float64(currentTick)
}
