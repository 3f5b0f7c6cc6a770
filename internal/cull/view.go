package cull

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/throng/pkg/math"
)

// View is one camera the crowd is drawn from.
type View struct {
	Frustum math.Frustum
	Origin  math.Vec3
	// ProjScale is cot(fovY/2): a sphere of radius r at distance d covers
	// r*ProjScale/d of the half screen height.
	ProjScale float32
}

// NewView wraps a host-supplied column-major view-projection matrix.
func NewView(viewProj math.Mat4, origin math.Vec3, projScale float32) View {
	return View{
		Frustum:   math.FrustumFromMatrix(viewProj),
		Origin:    origin,
		ProjScale: projScale,
	}
}

// NewPerspectiveView builds a view from camera parameters. fovY is in radians.
func NewPerspectiveView(eye, target, up math.Vec3, fovY, aspect, near, far float32) View {
	proj := mgl32.Perspective(fovY, aspect, near, far)
	look := mgl32.LookAtV(toMGL(eye), toMGL(target), toMGL(up))
	return NewView(math.Mat4(proj.Mul4(look)), eye, proj[5])
}

// ViewProjection returns the matrix NewPerspectiveView would use, for
// callers that also need it as a shader uniform.
func ViewProjection(eye, target, up math.Vec3, fovY, aspect, near, far float32) math.Mat4 {
	proj := mgl32.Perspective(fovY, aspect, near, far)
	look := mgl32.LookAtV(toMGL(eye), toMGL(target), toMGL(up))
	return math.Mat4(proj.Mul4(look))
}

func toMGL(v math.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{v.X, v.Y, v.Z}
}
