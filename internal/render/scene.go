package render

// DepthCompare is the depth test a pipeline uses, both ends of the
// GREATER convention the depth pyramid and occlusion test assume
// (§4.11, §4.12 step 4, §4.14).
type DepthCompare int

const (
	DepthCompareGreater DepthCompare = iota
	DepthCompareGreaterOrEqual
)

// Pipeline is one of the scene renderer's two graphics pipelines:
// DepthPrepass writes depth and no color, MainPass reads depth without
// writing it and writes color (§4.14).
type Pipeline struct {
	Name       string
	DepthWrite bool
	DepthTest  DepthCompare
	ColorWrite bool
}

// DepthPrepass writes depth for every object so the main pass and next
// frame's cull dispatch have a populated depth pyramid to test
// against; GREATER keeps nearer geometry at the larger depth value
// (§4.14).
var DepthPrepass = Pipeline{
	Name:       "depth-prepass",
	DepthWrite: true,
	DepthTest:  DepthCompareGreater,
	ColorWrite: false,
}

// MainPass shades visible geometry, rejecting anything the prepass
// didn't leave at least as near: GREATER_OR_EQUAL rather than GREATER
// so a fragment at exactly the prepass's depth still shades (§4.14).
var MainPass = Pipeline{
	Name:       "main",
	DepthWrite: false,
	DepthTest:  DepthCompareGreaterOrEqual,
	ColorWrite: true,
}

// TessellationPatch describes the fixed patch-list topology the
// terrain pipeline tessellates: one quad per atlas slot (§4.13's
// Corners), always four control points, with both inner and outer
// tessellation factors pinned to the format's maximum so every patch
// subdivides uniformly regardless of camera distance (§4.14).
type TessellationPatch struct {
	ControlPoints int
	InnerLevel    float32
	OuterLevel    float32
}

// TerrainPatch is the tessellation constant the scene renderer binds
// for every terrain draw.
var TerrainPatch = TessellationPatch{
	ControlPoints: 4,
	InnerLevel:    255,
	OuterLevel:    255,
}

// IndirectDrawMode selects which indirect draw entry point the scene
// pass issues for the buffer C12's cull dispatch produced (§4.12 step
// 5, §4.14).
type IndirectDrawMode int

const (
	// IndirectDrawFixed issues drawIndexedIndirect against a buffer
	// sized for every object slot, relying on ExpandDraws's
	// zero-instance-count commands to skip culled objects (§4.12
	// use_draw_count=false path).
	IndirectDrawFixed IndirectDrawMode = iota
	// IndirectDrawCount issues drawIndexedIndirectCount against
	// CompactDraws's shorter, visible-only command list plus a
	// separate count buffer (§4.12 use_draw_count=true path).
	IndirectDrawCount
)

// ChooseIndirectDrawMode picks drawIndexedIndirectCount when the device
// reports support for it, since it only submits commands for visible
// objects; otherwise it falls back to the fixed-size buffer every
// device must support (§4.14).
func ChooseIndirectDrawMode(deviceSupportsDrawCount bool) IndirectDrawMode {
	if deviceSupportsDrawCount {
		return IndirectDrawCount
	}
	return IndirectDrawFixed
}

// Draws returns the draw command list the scene pass should issue for
// mode, delegating to whichever of C12's two command-emission paths
// matches (§4.12 step 5).
func (mode IndirectDrawMode) Draws(ids []uint32, visible []bool) []DrawCommand {
	if mode == IndirectDrawCount {
		return CompactDraws(ids, visible)
	}
	return ExpandDraws(ids, visible)
}
