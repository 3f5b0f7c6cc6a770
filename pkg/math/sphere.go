package math

// Sphere is a bounding sphere.
type Sphere struct {
	Center Vec3
	Radius float32
}

// SphereFromPoints returns the sphere around the axis-aligned box of pts.
// It is not minimal, only conservative.
func SphereFromPoints(pts []Vec3) Sphere {
	if len(pts) == 0 {
		return Sphere{}
	}
	lo, hi := pts[0], pts[0]
	for _, p := range pts[1:] {
		lo = lo.Min(p)
		hi = hi.Max(p)
	}
	c := lo.Add(hi).Scale(0.5)
	var r float32
	for _, p := range pts {
		if d := p.Distance(c); d > r {
			r = d
		}
	}
	return Sphere{Center: c, Radius: r}
}

// Pad grows the radius.
func (s Sphere) Pad(padding float32) Sphere {
	s.Radius += padding
	return s
}

// Transformed places the sphere in the space of t.
func (s Sphere) Transformed(t Transform) Sphere {
	return Sphere{
		Center: t.TransformPoint(s.Center),
		Radius: s.Radius * t.MaxScale(),
	}
}
