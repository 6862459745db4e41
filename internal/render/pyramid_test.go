package render

import "testing"

func TestMipCountMatchesFloorLog2PlusOne(t *testing.T) {
	cases := []struct{ w, h, want int }{
		{1, 1, 1},
		{2, 1, 2},
		{1024, 1024, 11},
		{1920, 1080, 11},
	}
	for _, c := range cases {
		if got := MipCount(c.w, c.h); got != c.want {
			t.Errorf("MipCount(%d,%d) = %d, want %d", c.w, c.h, got, c.want)
		}
	}
}

func TestReduceMipTakesMinimumOfEachBlock(t *testing.T) {
	src := []float32{
		1, 2, 3, 4,
		5, 6, 7, 8,
	}
	dst := make([]float32, 2)
	ReduceMip(src, 4, 2, dst, 2, 1)
	if dst[0] != 1 || dst[1] != 3 {
		t.Fatalf("dst = %v, want [1 3]", dst)
	}
}

func TestPyramidBuildReducesEveryLevel(t *testing.T) {
	p := NewPyramid(4, 4)
	depth := make([]float32, 16)
	for i := range depth {
		depth[i] = float32(i)
	}
	p.Build(depth)

	if len(p.Mips) != MipCount(4, 4) {
		t.Fatalf("got %d mip levels, want %d", len(p.Mips), MipCount(4, 4))
	}
	// The last mip is 1x1 and must hold the global minimum, 0.
	last := p.Mips[len(p.Mips)-1]
	if len(last) != 1 || last[0] != 0 {
		t.Fatalf("top mip = %v, want [0]", last)
	}
}

func TestPyramidSampleClampsOutOfRangeCoordinates(t *testing.T) {
	p := NewPyramid(2, 2)
	p.Build([]float32{1, 2, 3, 4})
	if got := p.Sample(0, -1, -1); got != 1 {
		t.Errorf("Sample(-1,-1) = %v, want 1", got)
	}
	if got := p.Sample(0, 5, 5); got != 4 {
		t.Errorf("Sample(5,5) = %v, want 4", got)
	}
}
