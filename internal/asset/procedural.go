package asset

import (
	gomath "math"
	"strconv"

	"github.com/Faultbox/throng/pkg/math"
)

// ChainSkeleton builds a single chain of bones stacked along +Y, boneLength
// apart. It stands in for imported rigs in benchmarks and the viewer.
func ChainSkeleton(id string, bones int, boneLength float32) (*Skeleton, error) {
	list := make([]Bone, bones)
	for i := range list {
		list[i] = Bone{
			Name:   "bone" + strconv.Itoa(i),
			Parent: int32(i - 1),
			Local:  math.TransformAt(math.Vec3{Y: boneLength}),
		}
	}
	if bones > 0 {
		list[0].Local = math.TransformIdentity()
	}
	return NewSkeleton(id, list)
}

// SwayClip bakes a periodic sway for sk: every bone rotates about Z by
// amplitude radians, phase-shifted along the chain. The first and last frame
// match, so the clip loops seamlessly.
func SwayClip(id string, sk *Skeleton, frames int, sampleRate, amplitude float32, opts ...ClipOption) (*Clip, error) {
	n := sk.BoneCount()
	keys := make([]math.Transform, 0, frames*n)
	for f := 0; f < frames; f++ {
		phase := 0.0
		if frames > 1 {
			phase = 2 * gomath.Pi * float64(f) / float64(frames-1)
		}
		for b := 0; b < n; b++ {
			k := sk.ReferenceLocal(b)
			angle := float32(float64(amplitude) * gomath.Sin(phase+0.35*float64(b)))
			k.Rotation = math.QuatFromAxisAngle(math.Vec3{Z: 1}, angle)
			keys = append(keys, k)
		}
	}
	if frames > 1 {
		// Pin the wrap frame to the first so looping is exact.
		copy(keys[(frames-1)*n:], keys[:n])
	}
	return NewClip(id, sk.ID, sampleRate, n, keys, opts...)
}
