package render

import "math"

// Vec3 and Mat4 are the renderer's own minimal linear-algebra types;
// the simulation's protocol.Vec3 is not reused here since this package
// must stay independent of the wire format (a camera and an object's
// world matrix are renderer-local concepts, not anything sent over the
// wire).
type Vec3 struct{ X, Y, Z float32 }

// Mat4 is a column-major 4x4 matrix.
type Mat4 [16]float32

// Mul4 applies m to the homogeneous point v (w=1) and returns the
// resulting x, y, z, w.
func (m Mat4) Mul4(v Vec3) (x, y, z, w float32) {
	x = m[0]*v.X + m[4]*v.Y + m[8]*v.Z + m[12]
	y = m[1]*v.X + m[5]*v.Y + m[9]*v.Z + m[13]
	z = m[2]*v.X + m[6]*v.Y + m[10]*v.Z + m[14]
	w = m[3]*v.X + m[7]*v.Y + m[11]*v.Z + m[15]
	return
}

// BoundingSphere is an object's view-space culling volume, built from
// (view·world·model_center, radius·max|scale|·1.1) per §4.12 step 2.
type BoundingSphere struct {
	Center Vec3
	Radius float32
}

// ObjectBounds computes the view-space bounding sphere for an object
// given its world matrix, its model-space center and radius, and the
// view matrix.
func ObjectBounds(view, world Mat4, modelCenter Vec3, modelRadius float32, scale Vec3) BoundingSphere {
	wx, wy, wz, ww := world.Mul4(modelCenter)
	if ww == 0 {
		ww = 1
	}
	vx, vy, vz, _ := view.Mul4(Vec3{wx / ww, wy / ww, wz / ww})

	maxScale := scale.X
	if scale.Y > maxScale {
		maxScale = scale.Y
	}
	if scale.Z > maxScale {
		maxScale = scale.Z
	}
	return BoundingSphere{Center: Vec3{vx, vy, vz}, Radius: modelRadius * maxScale * 1.1}
}

// Plane is ax+by+cz+d, normalized so (a,b,c) is unit length; a point
// is in front of the plane when the expression is >= 0.
type Plane struct{ A, B, C, D float32 }

func (p Plane) Dist(v Vec3) float32 {
	return p.A*v.X + p.B*v.Y + p.C*v.Z + p.D
}

// Frustum is the six view-space planes (left, right, bottom, top,
// near, far) a bounding sphere is tested against (§4.12 step 3).
type Frustum struct {
	Left, Right, Bottom, Top, Near, Far Plane
}

// BuildFrustum derives the six planes from the projection constants
// w, h (the view-space extents at unit depth), znear and zfar.
func BuildFrustum(w, h, znear, zfar float32) Frustum {
	nx := 1 / float32(math.Sqrt(float64(1+w*w)))
	ny := 1 / float32(math.Sqrt(float64(1+h*h)))
	return Frustum{
		Left:   Plane{A: nx, C: nx * w},
		Right:  Plane{A: -nx, C: nx * w},
		Bottom: Plane{B: ny, C: ny * h},
		Top:    Plane{B: -ny, C: ny * h},
		Near:   Plane{C: 1, D: -znear},
		Far:    Plane{C: -1, D: zfar},
	}
}

// TestFrustum reports whether sphere is at least partially inside f,
// rejecting only when the sphere lies entirely behind a single plane.
func TestFrustum(f Frustum, sphere BoundingSphere) bool {
	for _, p := range [...]Plane{f.Left, f.Right, f.Bottom, f.Top, f.Near, f.Far} {
		if p.Dist(sphere.Center) < -sphere.Radius {
			return false
		}
	}
	return true
}

// ScreenRadius converts a view-space bounding sphere into a pixel
// radius at the given viewport height and vertical focal length,
// §4.12 step 4's "screen-space bounding circle".
func ScreenRadius(sphere BoundingSphere, viewportHeight, focalLenY float32) float32 {
	if sphere.Center.Z <= 0 {
		return 0
	}
	return sphere.Radius * focalLenY * viewportHeight / (2 * sphere.Center.Z)
}

// ChooseMip picks ⌊log2(pixel_radius)⌋, clamped to [0, maxLevel].
func ChooseMip(pixelRadius float32, maxLevel int) int {
	if pixelRadius < 1 {
		return 0
	}
	lvl := int(math.Log2(float64(pixelRadius)))
	if lvl < 0 {
		lvl = 0
	}
	if lvl > maxLevel {
		lvl = maxLevel
	}
	return lvl
}

// TestOcclusion samples the depth pyramid at the sphere's projected
// screen position and mip, rejecting the object when the sampled
// depth is nearer than the sphere's closest point (§4.12 step 4).
// depth uses the GREATER convention the scene renderer's depth
// pre-pass writes (§4.14): larger values are nearer the camera.
func TestOcclusion(pyramid *Pyramid, sphere BoundingSphere, screenX, screenY int, mip int) bool {
	sampled := pyramid.Sample(mip, screenX, screenY)
	nearestDepth := sphere.Center.Z - sphere.Radius
	return nearestDepth <= sampled
}

// DrawCommand is one entry of the indirect draw buffer the cull
// dispatch produces and the scene pass consumes (§4.12 step 5,
// §4.14).
type DrawCommand struct {
	ObjectID      uint32
	InstanceCount uint32
}

// ExpandDraws is the use_draw_count=false path: one command per
// object slot, instance_count 1 when visible and 0 otherwise, so the
// slot count never changes between frames (§4.12 step 5, §8 property
// 6).
func ExpandDraws(objectIDs []uint32, visible []bool) []DrawCommand {
	cmds := make([]DrawCommand, len(objectIDs))
	for i, id := range objectIDs {
		n := uint32(0)
		if visible[i] {
			n = 1
		}
		cmds[i] = DrawCommand{ObjectID: id, InstanceCount: n}
	}
	return cmds
}

// CompactDraws is the use_draw_count=true path: only visible objects
// get a command, written in object order at the position an atomic
// draw counter would have assigned them (§4.12 step 5, §8 property 6).
func CompactDraws(objectIDs []uint32, visible []bool) []DrawCommand {
	cmds := make([]DrawCommand, 0, len(objectIDs))
	for i, id := range objectIDs {
		if visible[i] {
			cmds = append(cmds, DrawCommand{ObjectID: id, InstanceCount: 1})
		}
	}
	return cmds
}
