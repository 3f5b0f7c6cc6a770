package math

import (
	"math"
	"testing"
)

func TestTransformToMat4(t *testing.T) {
	tr := Transform{
		Translation: Vec3{1, 2, 3},
		Rotation:    QuatFromAxisAngle(Vec3{Y: 1}, float32(math.Pi/2)),
		Scale:       Vec3{2, 2, 2},
	}
	m := tr.ToMat4()
	want := Translate(tr.Translation).Mul(tr.Rotation.ToMat4())
	want = want.Mul(Mat4{2, 0, 0, 0, 0, 2, 0, 0, 0, 0, 2, 0, 0, 0, 0, 1})
	for i := range m {
		if abs(m[i]-want[i]) > 1e-5 {
			t.Errorf("element %d: got %f, want %f", i, m[i], want[i])
		}
	}

	p := Vec3{1, 0, 0}
	if d := m.TransformPoint(p).Distance(tr.TransformPoint(p)); d > 1e-5 {
		t.Errorf("matrix and TRS paths disagree by %v", d)
	}
}

func TestTransformInterpolate(t *testing.T) {
	a := TransformIdentity()
	b := Transform{
		Translation: Vec3{10, 0, 0},
		Rotation:    QuatFromAxisAngle(Vec3{Z: 1}, float32(math.Pi/2)),
		Scale:       Vec3{3, 3, 3},
	}
	mid := a.Interpolate(b, 0.5)
	if mid.Translation != (Vec3{5, 0, 0}) {
		t.Errorf("translation = %v, want {5 0 0}", mid.Translation)
	}
	if mid.Scale != (Vec3{2, 2, 2}) {
		t.Errorf("scale = %v, want {2 2 2}", mid.Scale)
	}
	if w := float32(math.Cos(math.Pi / 8)); abs(mid.Rotation.W-w) > 1e-4 {
		t.Errorf("rotation W = %v, want %v", mid.Rotation.W, w)
	}
}

func TestTransformFromMat4(t *testing.T) {
	tests := []struct {
		name string
		tr   Transform
	}{
		{"identity", TransformIdentity()},
		{"translate", TransformAt(Vec3{4, -1, 2})},
		{"rotate y", Transform{Rotation: QuatFromAxisAngle(Vec3{Y: 1}, 2.5), Scale: Vec3{1, 1, 1}}},
		{"full", Transform{
			Translation: Vec3{1, 2, 3},
			Rotation:    QuatFromAxisAngle(Vec3{1, 1, 0}.Normalize(), 0.7),
			Scale:       Vec3{2, 0.5, 3},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := tt.tr.ToMat4()
			got := TransformFromMat4(m).ToMat4()
			for i := range m {
				if abs(got[i]-m[i]) > 1e-4 {
					t.Errorf("element %d: got %f, want %f", i, got[i], m[i])
				}
			}
		})
	}
}
