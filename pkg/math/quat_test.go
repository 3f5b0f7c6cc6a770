package math

import (
	"math"
	"testing"
)

func TestQuatIdentity(t *testing.T) {
	q := QuatIdentity()
	if q.X != 0 || q.Y != 0 || q.Z != 0 || q.W != 1 {
		t.Errorf("Identity quaternion should be (0,0,0,1), got (%v,%v,%v,%v)", q.X, q.Y, q.Z, q.W)
	}
}

func TestQuatNormalize(t *testing.T) {
	n := Quat{X: 1, Y: 2, Z: 3, W: 4}.Normalize()
	length := float32(math.Sqrt(float64(n.Dot(n))))
	if math.Abs(float64(length-1.0)) > 0.0001 {
		t.Errorf("Normalized quaternion length should be 1, got %v", length)
	}
	if z := (Quat{}).Normalize(); z != QuatIdentity() {
		t.Errorf("zero quaternion should normalize to identity, got %v", z)
	}
}

func TestQuatSlerp(t *testing.T) {
	q1 := QuatIdentity()
	q2 := QuatFromAxisAngle(Vec3{X: 0, Y: 1, Z: 0}, float32(math.Pi/2))

	if r := q1.Slerp(q2, 0); math.Abs(float64(r.W-q1.W)) > 0.001 {
		t.Errorf("Slerp at t=0 should equal q1, got %v", r)
	}
	if r := q1.Slerp(q2, 1); math.Abs(float64(r.W-q2.W)) > 0.001 {
		t.Errorf("Slerp at t=1 should equal q2, got %v", r)
	}

	// Halfway through 90 degrees is 45 degrees.
	r := q1.Slerp(q2, 0.5)
	expectedW := float32(math.Cos(math.Pi / 8))
	if math.Abs(float64(r.W-expectedW)) > 0.001 {
		t.Errorf("Slerp at t=0.5: expected W ~%v, got %v", expectedW, r.W)
	}
}

func TestQuatSlerpShortestArc(t *testing.T) {
	q1 := QuatIdentity()
	// Same rotation as 90 degrees about Y but in the opposite hemisphere.
	q2 := QuatFromAxisAngle(Vec3{Y: 1}, float32(math.Pi/2)).Neg()

	r := q1.Slerp(q2, 0.5)
	// Shortest arc keeps W positive and lands on 45 degrees.
	expectedW := float32(math.Cos(math.Pi / 8))
	if math.Abs(float64(r.W-expectedW)) > 0.001 {
		t.Errorf("shortest-arc slerp: expected W ~%v, got %v", expectedW, r.W)
	}
}

func TestQuatRotate(t *testing.T) {
	q := QuatFromAxisAngle(Vec3{Y: 1}, float32(math.Pi/2))
	got := q.Rotate(Vec3{X: 1})
	// +X rotated 90 degrees about +Y points to -Z.
	if abs(got.X) > 1e-5 || abs(got.Y) > 1e-5 || abs(got.Z+1) > 1e-5 {
		t.Errorf("Rotate: got %v, want {0 0 -1}", got)
	}

	m := q.ToMat4()
	mp := m.TransformPoint(Vec3{X: 1})
	if mp.Distance(got) > 1e-5 {
		t.Errorf("ToMat4 disagrees with Rotate: %v vs %v", mp, got)
	}
}

func TestQuatFromAxisAngle(t *testing.T) {
	q := QuatFromAxisAngle(Vec3{X: 0, Y: 1, Z: 0}, float32(math.Pi/2))

	expectedW := float32(math.Cos(math.Pi / 4))
	expectedY := float32(math.Sin(math.Pi / 4))
	if math.Abs(float64(q.W-expectedW)) > 0.001 {
		t.Errorf("QuatFromAxisAngle W: expected %v, got %v", expectedW, q.W)
	}
	if math.Abs(float64(q.Y-expectedY)) > 0.001 {
		t.Errorf("QuatFromAxisAngle Y: expected %v, got %v", expectedY, q.Y)
	}
}
