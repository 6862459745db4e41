package render

import "testing"

func identity() Mat4 {
	return Mat4{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}
}

func translate(x, y, z float32) Mat4 {
	m := identity()
	m[12], m[13], m[14] = x, y, z
	return m
}

func TestObjectBoundsAppliesWorldAndScale(t *testing.T) {
	world := translate(0, 0, 10)
	sphere := ObjectBounds(identity(), world, Vec3{}, 2, Vec3{X: 1, Y: 1, Z: 2})
	if sphere.Center.Z != 10 {
		t.Errorf("center.z = %v, want 10", sphere.Center.Z)
	}
	want := float32(2 * 2 * 1.1)
	if sphere.Radius != want {
		t.Errorf("radius = %v, want %v", sphere.Radius, want)
	}
}

func TestTestFrustumRejectsSphereBehindNearPlane(t *testing.T) {
	f := BuildFrustum(1, 1, 1, 100)
	behind := BoundingSphere{Center: Vec3{Z: 0.1}, Radius: 0.01}
	if TestFrustum(f, behind) {
		t.Error("expected sphere behind the near plane to be rejected")
	}
	inFront := BoundingSphere{Center: Vec3{Z: 10}, Radius: 1}
	if !TestFrustum(f, inFront) {
		t.Error("expected sphere in front of the camera to pass")
	}
}

func TestChooseMipIsFloorLog2Clamped(t *testing.T) {
	if got := ChooseMip(0.5, 10); got != 0 {
		t.Errorf("ChooseMip(0.5) = %d, want 0", got)
	}
	if got := ChooseMip(8, 10); got != 3 {
		t.Errorf("ChooseMip(8) = %d, want 3", got)
	}
	if got := ChooseMip(1<<20, 5); got != 5 {
		t.Errorf("ChooseMip clamp = %d, want 5", got)
	}
}

func TestExpandDrawsKeepsOneCommandPerSlot(t *testing.T) {
	ids := []uint32{1, 2, 3}
	visible := []bool{true, false, true}
	cmds := ExpandDraws(ids, visible)
	if len(cmds) != 3 {
		t.Fatalf("got %d commands, want 3", len(cmds))
	}
	for i, c := range cmds {
		want := uint32(0)
		if visible[i] {
			want = 1
		}
		if c.InstanceCount != want || c.ObjectID != ids[i] {
			t.Errorf("cmds[%d] = %+v", i, c)
		}
	}
}

func TestCompactDrawsOnlyEmitsVisibleObjects(t *testing.T) {
	ids := []uint32{1, 2, 3}
	visible := []bool{true, false, true}
	cmds := CompactDraws(ids, visible)
	if len(cmds) != 2 {
		t.Fatalf("got %d commands, want 2", len(cmds))
	}
	for _, c := range cmds {
		if c.InstanceCount != 1 {
			t.Errorf("instance_count = %d, want 1", c.InstanceCount)
		}
	}
}
