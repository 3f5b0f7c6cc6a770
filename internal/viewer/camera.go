package viewer

import (
	gomath "math"

	"github.com/Faultbox/throng/internal/cull"
	"github.com/Faultbox/throng/pkg/math"
)

// OrbitCamera orbits a center point on the ground.
type OrbitCamera struct {
	Center math.Vec3

	Distance float32
	Pitch    float32 // radians above the horizon
	Yaw      float32 // radians around +Y

	MinDistance, MaxDistance float32
	MinPitch, MaxPitch       float32

	DragSensitivity float32
	ZoomSensitivity float32

	FovY, Near, Far float32
}

// NewOrbitCamera returns a camera looking down at the origin from distance.
func NewOrbitCamera(distance float32) *OrbitCamera {
	return &OrbitCamera{
		Distance:        distance,
		Pitch:           0.35,
		MinDistance:     2,
		MaxDistance:     2000,
		MinPitch:        0.05,
		MaxPitch:        1.5,
		DragSensitivity: 0.005,
		ZoomSensitivity: 0.1,
		FovY:            float32(gomath.Pi / 3),
		Near:            0.1,
		Far:             2000,
	}
}

// Eye returns the camera position.
func (c *OrbitCamera) Eye() math.Vec3 {
	cp, sp := gomath.Cos(float64(c.Pitch)), gomath.Sin(float64(c.Pitch))
	return c.Center.Add(math.Vec3{
		X: c.Distance * float32(cp*gomath.Sin(float64(c.Yaw))),
		Y: c.Distance * float32(sp),
		Z: c.Distance * float32(cp*gomath.Cos(float64(c.Yaw))),
	})
}

// View returns the culling view and the matrix the shader needs.
func (c *OrbitCamera) View(aspect float32) (cull.View, math.Mat4) {
	eye, up := c.Eye(), math.Vec3{Y: 1}
	vp := cull.ViewProjection(eye, c.Center, up, c.FovY, aspect, c.Near, c.Far)
	return cull.NewPerspectiveView(eye, c.Center, up, c.FovY, aspect, c.Near, c.Far), vp
}

// HandleDrag rotates by a mouse drag in pixels.
func (c *OrbitCamera) HandleDrag(dx, dy float32) {
	c.Yaw -= dx * c.DragSensitivity
	c.Pitch = min(max(c.Pitch+dy*c.DragSensitivity, c.MinPitch), c.MaxPitch)
}

// HandleZoom scales the distance by wheel steps.
func (c *OrbitCamera) HandleZoom(steps float32) {
	c.Distance -= steps * c.Distance * c.ZoomSensitivity
	c.Distance = min(max(c.Distance, c.MinDistance), c.MaxDistance)
}

// HandleMovement pans the center relative to the view direction. Speed
// scales with distance.
func (c *OrbitCamera) HandleMovement(forward, right float32) {
	speed := c.Distance * 0.01
	sy, cy := gomath.Sincos(float64(c.Yaw))
	c.Center.X += (-float32(sy)*forward + float32(cy)*right) * speed
	c.Center.Z += (-float32(cy)*forward - float32(sy)*right) * speed
}
