package render

import (
	"testing"

	"github.com/wosim-go/wosim/internal/protocol"
)

func TestMaxActiveRegionsMatchesFormula(t *testing.T) {
	if got := MaxActiveRegions(4); got != 100 {
		t.Errorf("MaxActiveRegions(4) = %d, want 100", got)
	}
}

func TestAtlasAddReservesSlotAndRemoveFreesIt(t *testing.T) {
	a := NewAtlas(2, 4)
	pos := protocol.RegionPos{X: 1, Z: 2}
	idx, err := a.Add(pos, 32, make([]float32, 64*64))
	if err != nil {
		t.Fatal(err)
	}
	if a.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", a.Len())
	}

	corners, ok := a.Corners(pos)
	if !ok {
		t.Fatal("expected corners for added region")
	}
	if corners[0].Pos.X != 32 || corners[0].Pos.Z != 64 {
		t.Errorf("corner[0] = %+v, want origin (32,64)", corners[0])
	}

	if !a.Remove(pos) {
		t.Fatal("Remove reported no slot for an occupied region")
	}
	if a.Len() != 0 {
		t.Fatalf("Len() after remove = %d, want 0", a.Len())
	}
	if idx < 0 || idx >= a.Cap() {
		t.Fatalf("slot index %d out of range", idx)
	}
}

func TestAtlasAddFailsWhenExhausted(t *testing.T) {
	a := NewAtlas(1, 1)
	if _, err := a.Add(protocol.RegionPos{X: 0, Z: 0}, 32, []float32{1}); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Add(protocol.RegionPos{X: 1, Z: 0}, 32, []float32{1}); err == nil {
		t.Fatal("expected an error once the atlas is exhausted")
	}
}

func TestAtlasAddRejectsDuplicateRegion(t *testing.T) {
	a := NewAtlas(4, 1)
	pos := protocol.RegionPos{X: 0, Z: 0}
	if _, err := a.Add(pos, 32, []float32{1}); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Add(pos, 32, []float32{1}); err == nil {
		t.Fatal("expected an error adding the same region twice")
	}
}
