package interpolation

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wosim-go/wosim/internal/protocol"
)

func at(x float32) protocol.Transform {
	return protocol.Transform{Pos: protocol.Vec3{X: x}, Rot: protocol.Quat{W: 1}}
}

func TestBufferLerpsBetweenBracketingSamples(t *testing.T) {
	b := New(ServerWindow)
	b.Insert(0, at(0))
	b.Insert(1, at(10))

	got := b.Get(0.5)
	require.InDelta(t, 5, got.Pos.X, 1e-5)
}

func TestBufferClampsToNewestPastLast(t *testing.T) {
	b := New(ServerWindow)
	b.Insert(0, at(0))
	b.Insert(1, at(10))

	got := b.Get(5)
	require.InDelta(t, 10, got.Pos.X, 1e-5)
}

func TestBufferClampsToOldestRetained(t *testing.T) {
	b := New(ServerWindow)
	for i := int64(0); i < 10; i++ {
		b.Insert(i, at(float32(i)))
	}
	// window holds ticks 6..9 only (N=4); anything older clamps to 6.
	got := b.Get(0)
	require.InDelta(t, 6, got.Pos.X, 1e-5)
}

func TestInsertFillsGapFromPreviousValue(t *testing.T) {
	b := New(ServerWindow)
	b.Insert(0, at(0))
	b.Insert(3, at(3))

	require.InDelta(t, 1, b.Get(1).Pos.X, 1e-5)
	require.InDelta(t, 2, b.Get(2).Pos.X, 1e-5)
	require.InDelta(t, 3, b.Get(3).Pos.X, 1e-5)
}

func TestEvalTickMatchesFormula(t *testing.T) {
	got := EvalTick(1150, 50, 100)
	require.InDelta(t, (1150.0-150.0)/50.0+100.0, got, 1e-9)
}
