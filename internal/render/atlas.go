package render

import (
	"fmt"

	"github.com/wosim-go/wosim/internal/protocol"
)

// MaxActiveRegions is (static_distance+1)^2 * 4, the array texture's
// slice count (§4.13).
func MaxActiveRegions(staticDistance uint32) uint32 {
	d := staticDistance + 1
	return d * d * 4
}

// Corner is one of a slot's four patch-quad corners, the unit the
// CPU-side vertex buffer lists per slot for tessellation (§4.13).
type Corner struct {
	Pos protocol.Vec3
}

// slot is one array-texture slice's bookkeeping.
type slot struct {
	region  protocol.RegionPos
	corners [4]Corner
	mips    int
}

// Atlas is the terrain array texture's slot allocator: a fixed pool of
// slices, one per active region, with mipmap generation modeled as a
// per-slot mip count rather than actual GPU blits (§4.13).
type Atlas struct {
	slots    []slot
	occupied []bool
	free     []int // LIFO free list
	byRegion map[protocol.RegionPos]int
	mipCount int
}

// NewAtlas allocates an atlas with capacity slots, each generating
// mipCount levels when added.
func NewAtlas(capacity int, mipCount int) *Atlas {
	a := &Atlas{
		slots:    make([]slot, capacity),
		occupied: make([]bool, capacity),
		free:     make([]int, capacity),
		byRegion: make(map[protocol.RegionPos]int, capacity),
		mipCount: mipCount,
	}
	for i := range a.free {
		a.free[i] = capacity - 1 - i
	}
	return a
}

// Add reserves a slot for pos and stages heights for mipmap
// generation, returning the slot index. It returns an error if the
// atlas has no free slot, the caller's signal to evict or grow.
func (a *Atlas) Add(pos protocol.RegionPos, regionSize float32, heights []float32) (int, error) {
	if _, ok := a.byRegion[pos]; ok {
		return 0, fmt.Errorf("render: region %v already has an atlas slot", pos)
	}
	if len(a.free) == 0 {
		return 0, fmt.Errorf("render: terrain atlas exhausted")
	}
	idx := a.free[len(a.free)-1]
	a.free = a.free[:len(a.free)-1]

	ox, oz := float32(pos.X)*regionSize, float32(pos.Z)*regionSize
	a.slots[idx] = slot{
		region: pos,
		corners: [4]Corner{
			{protocol.Vec3{X: ox, Y: 0, Z: oz}},
			{protocol.Vec3{X: ox + regionSize, Y: 0, Z: oz}},
			{protocol.Vec3{X: ox + regionSize, Y: 0, Z: oz + regionSize}},
			{protocol.Vec3{X: ox, Y: 0, Z: oz + regionSize}},
		},
		mips: a.generateMips(heights),
	}
	a.occupied[idx] = true
	a.byRegion[pos] = idx
	return idx, nil
}

// generateMips models the chained-blit mip generation §4.13 describes
// by returning how many levels a heightmap of this size supports; the
// actual texel data a real backend would blit is out of scope here.
func (a *Atlas) generateMips(heights []float32) int {
	n := len(heights)
	levels := 1
	for n > 1 && levels < a.mipCount {
		n /= 4 // each mip level is a quarter of the texel count of the one below
		levels++
	}
	return levels
}

// Remove returns pos's slot to the free list (§4.13 "remove(pos)").
func (a *Atlas) Remove(pos protocol.RegionPos) bool {
	idx, ok := a.byRegion[pos]
	if !ok {
		return false
	}
	delete(a.byRegion, pos)
	a.occupied[idx] = false
	a.slots[idx] = slot{}
	a.free = append(a.free, idx)
	return true
}

// Corners returns the four patch-quad corners staged for pos, for the
// tessellation vertex buffer (§4.13, §4.14).
func (a *Atlas) Corners(pos protocol.RegionPos) ([4]Corner, bool) {
	idx, ok := a.byRegion[pos]
	if !ok {
		return [4]Corner{}, false
	}
	return a.slots[idx].corners, true
}

// Len reports how many slots are currently occupied.
func (a *Atlas) Len() int { return len(a.byRegion) }

// Cap reports the atlas's total slot count.
func (a *Atlas) Cap() int { return len(a.slots) }
