package math

import "github.com/go-gl/mathgl/mgl32"

// Transform is a decomposed translation / rotation / scale.
// It is the keyframe value type for bone tracks and the world placement
// of an instance.
type Transform struct {
	Translation Vec3
	Rotation    Quat
	Scale       Vec3
}

// TransformIdentity returns the identity transform.
func TransformIdentity() Transform {
	return Transform{Rotation: QuatIdentity(), Scale: Vec3{1, 1, 1}}
}

// TransformAt returns an unrotated, unscaled transform at p.
func TransformAt(p Vec3) Transform {
	t := TransformIdentity()
	t.Translation = p
	return t
}

// ToMat4 builds T * R * S.
func (t Transform) ToMat4() Mat4 {
	q := t.Rotation.Normalize()

	xx, yy, zz := q.X*q.X, q.Y*q.Y, q.Z*q.Z
	xy, xz, yz := q.X*q.Y, q.X*q.Z, q.Y*q.Z
	xw, yw, zw := q.X*q.W, q.Y*q.W, q.Z*q.W
	sx, sy, sz := t.Scale.X, t.Scale.Y, t.Scale.Z

	return Mat4{
		(1 - 2*(yy+zz)) * sx, 2 * (xy + zw) * sx, 2 * (xz - yw) * sx, 0,
		2 * (xy - zw) * sy, (1 - 2*(xx+zz)) * sy, 2 * (yz + xw) * sy, 0,
		2 * (xz + yw) * sz, 2 * (yz - xw) * sz, (1 - 2*(xx+yy)) * sz, 0,
		t.Translation.X, t.Translation.Y, t.Translation.Z, 1,
	}
}

// Interpolate blends towards other: linear for translation and scale,
// shortest-arc slerp for rotation.
func (t Transform) Interpolate(other Transform, alpha float32) Transform {
	return Transform{
		Translation: t.Translation.Lerp(other.Translation, alpha),
		Rotation:    t.Rotation.Slerp(other.Rotation, alpha),
		Scale:       t.Scale.Lerp(other.Scale, alpha),
	}
}

// TransformPoint applies the transform to a point.
func (t Transform) TransformPoint(p Vec3) Vec3 {
	return t.Rotation.Normalize().Rotate(p.Mul(t.Scale)).Add(t.Translation)
}

// MaxScale returns the largest absolute scale component.
func (t Transform) MaxScale() float32 {
	return t.Scale.MaxAbs()
}

// TransformFromMat4 decomposes an affine matrix without shear into TRS.
func TransformFromMat4(m Mat4) Transform {
	x := Vec3{m[0], m[1], m[2]}
	y := Vec3{m[4], m[5], m[6]}
	z := Vec3{m[8], m[9], m[10]}
	scale := Vec3{x.Length(), y.Length(), z.Length()}
	if x.Cross(y).Dot(z) < 0 {
		scale.X = -scale.X
	}

	var r mgl32.Mat4
	sc := [3]float32{scale.X, scale.Y, scale.Z}
	for c, axis := range [3]Vec3{x, y, z} {
		s := sc[c]
		if s == 0 {
			r[c*5] = 1
			continue
		}
		r[c*4], r[c*4+1], r[c*4+2] = axis.X/s, axis.Y/s, axis.Z/s
	}
	r[15] = 1
	q := mgl32.Mat4ToQuat(r).Normalize()

	return Transform{
		Translation: m.Translation(),
		Rotation:    Quat{X: q.V[0], Y: q.V[1], Z: q.V[2], W: q.W},
		Scale:       scale,
	}
}
