package render

import "testing"

func TestDepthPrepassWritesDepthWithoutColor(t *testing.T) {
	if !DepthPrepass.DepthWrite || DepthPrepass.ColorWrite {
		t.Errorf("DepthPrepass = %+v, want depth write only", DepthPrepass)
	}
	if DepthPrepass.DepthTest != DepthCompareGreater {
		t.Errorf("DepthPrepass.DepthTest = %v, want GREATER", DepthPrepass.DepthTest)
	}
}

func TestMainPassReadsDepthAndWritesColor(t *testing.T) {
	if MainPass.DepthWrite || !MainPass.ColorWrite {
		t.Errorf("MainPass = %+v, want color write only", MainPass)
	}
	if MainPass.DepthTest != DepthCompareGreaterOrEqual {
		t.Errorf("MainPass.DepthTest = %v, want GREATER_OR_EQUAL", MainPass.DepthTest)
	}
}

func TestTerrainPatchIsFourControlPointsMaxTessellation(t *testing.T) {
	if TerrainPatch.ControlPoints != 4 {
		t.Errorf("ControlPoints = %d, want 4", TerrainPatch.ControlPoints)
	}
	if TerrainPatch.InnerLevel != 255 || TerrainPatch.OuterLevel != 255 {
		t.Errorf("tessellation levels = %v/%v, want 255/255", TerrainPatch.InnerLevel, TerrainPatch.OuterLevel)
	}
}

func TestChooseIndirectDrawModePrefersCountWhenSupported(t *testing.T) {
	if got := ChooseIndirectDrawMode(true); got != IndirectDrawCount {
		t.Errorf("ChooseIndirectDrawMode(true) = %v, want IndirectDrawCount", got)
	}
	if got := ChooseIndirectDrawMode(false); got != IndirectDrawFixed {
		t.Errorf("ChooseIndirectDrawMode(false) = %v, want IndirectDrawFixed", got)
	}
}

func TestIndirectDrawModeDrawsDelegatesToMatchingPath(t *testing.T) {
	ids := []uint32{1, 2, 3}
	visible := []bool{true, false, true}

	fixed := IndirectDrawFixed.Draws(ids, visible)
	if len(fixed) != 3 {
		t.Fatalf("fixed mode produced %d commands, want 3", len(fixed))
	}

	counted := IndirectDrawCount.Draws(ids, visible)
	if len(counted) != 2 {
		t.Fatalf("count mode produced %d commands, want 2", len(counted))
	}
}
