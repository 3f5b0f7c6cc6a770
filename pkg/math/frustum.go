package math

// Plane is a plane in Hessian normal form: Normal·p + Distance = 0.
// Points with a positive signed distance are on the inner side.
type Plane struct {
	Normal   Vec3
	Distance float32
}

// SignedDistance returns the signed distance of p to the plane.
func (p Plane) SignedDistance(pt Vec3) float32 {
	return p.Normal.Dot(pt) + p.Distance
}

// Frustum is six inward-facing planes: left, right, bottom, top, near, far.
type Frustum struct {
	Planes [6]Plane
}

// FrustumFromMatrix extracts the planes of a column-major view-projection
// matrix (Gribb/Hartmann), normalized so distances are in world units.
func FrustumFromMatrix(m Mat4) Frustum {
	row := func(i int) Vec4 { return Vec4{m[i], m[4+i], m[8+i], m[12+i]} }
	r0, r1, r2, r3 := row(0), row(1), row(2), row(3)

	planeOf := func(a, b Vec4, sign float32) Plane {
		p := Plane{
			Normal:   Vec3{a[0] + sign*b[0], a[1] + sign*b[1], a[2] + sign*b[2]},
			Distance: a[3] + sign*b[3],
		}
		if l := p.Normal.Length(); l > 0 {
			p.Normal = p.Normal.Scale(1 / l)
			p.Distance /= l
		}
		return p
	}

	return Frustum{Planes: [6]Plane{
		planeOf(r3, r0, 1),
		planeOf(r3, r0, -1),
		planeOf(r3, r1, 1),
		planeOf(r3, r1, -1),
		planeOf(r3, r2, 1),
		planeOf(r3, r2, -1),
	}}
}

// IntersectsSphere reports whether any part of s is inside the frustum.
func (f *Frustum) IntersectsSphere(s Sphere) bool {
	for i := range f.Planes {
		if f.Planes[i].SignedDistance(s.Center) < -s.Radius {
			return false
		}
	}
	return true
}

// ContainsPoint reports whether p is inside the frustum.
func (f *Frustum) ContainsPoint(p Vec3) bool {
	return f.IntersectsSphere(Sphere{Center: p})
}
