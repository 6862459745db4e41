// Package render models the client's frame pipeline: the depth
// pyramid, the per-object cull test, the terrain atlas slot
// allocator, and the double-buffered frame ring (§4.11-§4.15). No
// repository in the retrieval pack ships a usable Vulkan/GPU binding
// (see DESIGN.md), so this package implements the CPU-side algorithms
// those stages run and leaves GPU command submission as the boundary a
// real backend plugs into, the same way a shader compilation
// toolchain is named out of scope.
package render

import "math"

// MipCount returns the number of mip levels a w×h depth pyramid needs:
// ⌊log2(max(w,h))⌋+1 (§4.11).
func MipCount(w, h int) int {
	m := w
	if h > m {
		m = h
	}
	if m <= 0 {
		return 0
	}
	return int(math.Log2(float64(m))) + 1
}

// MipDims returns the dimensions of mip level, each half the previous
// level's, rounded down but never below 1.
func MipDims(w, h, level int) (int, int) {
	for i := 0; i < level; i++ {
		w = max(1, w/2)
		h = max(1, h/2)
	}
	return w, h
}

// Pyramid is a single-channel MIN-reduced mip chain built once per
// frame from the main depth target and sampled by the next frame's
// cull dispatch (the one-frame temporal lag §4.11 and §9 accept).
type Pyramid struct {
	Width, Height int
	Mips          [][]float32 // Mips[0] is full resolution, copied from the depth target
}

// NewPyramid allocates an empty pyramid sized for a w×h depth target.
func NewPyramid(w, h int) *Pyramid {
	p := &Pyramid{Width: w, Height: h, Mips: make([][]float32, MipCount(w, h))}
	for lvl := range p.Mips {
		mw, mh := MipDims(w, h, lvl)
		p.Mips[lvl] = make([]float32, mw*mh)
	}
	return p
}

// Build copies depth into mip 0 and reduces every subsequent level
// from the one below it, modeling the sequence of compute dispatches
// §4.11 describes: "each dispatch reads mip k at half resolution and
// writes mip k+1".
func (p *Pyramid) Build(depth []float32) {
	copy(p.Mips[0], depth)
	for lvl := 1; lvl < len(p.Mips); lvl++ {
		srcW, srcH := MipDims(p.Width, p.Height, lvl-1)
		dstW, dstH := MipDims(p.Width, p.Height, lvl)
		ReduceMip(p.Mips[lvl-1], srcW, srcH, p.Mips[lvl], dstW, dstH)
	}
}

// ReduceMip downsamples src (srcW×srcH) into dst (dstW×dstH) by taking
// the minimum of each 2×2 (or smaller, at odd edges) source block,
// the MIN-reduction sampler semantics §4.11 specifies.
func ReduceMip(src []float32, srcW, srcH int, dst []float32, dstW, dstH int) {
	for y := 0; y < dstH; y++ {
		sy0 := y * 2
		sy1 := min(sy0+1, srcH-1)
		for x := 0; x < dstW; x++ {
			sx0 := x * 2
			sx1 := min(sx0+1, srcW-1)
			v := src[sy0*srcW+sx0]
			v = min(v, src[sy0*srcW+sx1])
			v = min(v, src[sy1*srcW+sx0])
			v = min(v, src[sy1*srcW+sx1])
			dst[y*dstW+x] = v
		}
	}
}

// Sample reads the pyramid at mip level, clamping out-of-range
// coordinates to the mip's border.
func (p *Pyramid) Sample(level, x, y int) float32 {
	if level < 0 {
		level = 0
	}
	if level >= len(p.Mips) {
		level = len(p.Mips) - 1
	}
	w, h := MipDims(p.Width, p.Height, level)
	if x < 0 {
		x = 0
	}
	if x >= w {
		x = w - 1
	}
	if y < 0 {
		y = 0
	}
	if y >= h {
		y = h - 1
	}
	return p.Mips[level][y*w+x]
}
