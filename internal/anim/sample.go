package anim

import (
	gomath "math"

	"github.com/Faultbox/throng/internal/asset"
	"github.com/Faultbox/throng/internal/pool"
	"github.com/Faultbox/throng/pkg/math"
)

// WrapTime maps a play time onto the clip timeline: modulo duration for
// looping clips, clamped to [0, duration] otherwise.
func WrapTime(t, duration float32, loop bool) float32 {
	if duration <= 0 {
		return 0
	}
	if loop {
		w := float32(gomath.Mod(float64(t), float64(duration)))
		if w < 0 {
			w += duration
		}
		if w >= duration {
			w = 0
		}
		return w
	}
	return min(max(t, 0), duration)
}

// SampleLocals writes each bone's local transform at time t into out.
// Times on a key, and times at or past the last key, return the stored key
// unchanged, so clamped and wrapped poses are exact.
func SampleLocals(c *asset.Clip, t float32, loop bool, out []math.Transform) {
	t = WrapTime(t, c.Duration, loop)
	last := c.Frames() - 1
	if last == 0 || t >= c.Duration {
		copy(out, c.Frame(last))
		return
	}

	// Find the bracketing keys.
	f := t * c.SampleRate
	i0 := int(f)
	if i0 >= last {
		copy(out, c.Frame(last))
		return
	}
	alpha := f - float32(i0)
	if alpha <= 0 {
		copy(out, c.Frame(i0))
		return
	}

	k0, k1 := c.Frame(i0), c.Frame(i0+1)
	for b := range k0 {
		out[b] = k0[b].Interpolate(k1[b], alpha)
	}
}

// ComposePose turns local transforms into skinning matrices in one forward
// pass; parents precede children so comp[parent] is always ready.
func ComposePose(sk *asset.Skeleton, locals []math.Transform, comp, out []math.Mat4) {
	n := sk.BoneCount()
	for i := 0; i < n; i++ {
		m := locals[i].ToMat4()
		if p := sk.Parent(i); p != asset.NoParent {
			m = comp[p].MulAffine(m)
		}
		comp[i] = m
		out[i] = m.MulAffine(sk.InverseBind(i))
	}
}

// workspace is per-worker scratch sized for the largest skeleton.
type workspace struct {
	locals [asset.MaxBones]math.Transform
	from   [asset.MaxBones]math.Transform
	comp   [asset.MaxBones]math.Mat4
}

// SamplePose evaluates clip at t for sk into out (len == bone count).
// A nil clip yields the rest pose.
func SamplePose(sk *asset.Skeleton, c *asset.Clip, t float32, loop bool, out []math.Mat4) {
	var ws workspace
	samplePose(&ws, sk, c, t, loop, out)
}

func samplePose(ws *workspace, sk *asset.Skeleton, c *asset.Clip, t float32, loop bool, out []math.Mat4) {
	if c == nil {
		copy(out, sk.RestPose())
		return
	}
	n := sk.BoneCount()
	SampleLocals(c, t, loop, ws.locals[:n])
	ComposePose(sk, ws.locals[:n], ws.comp[:n], out)
}

// BlendPose cross-fades two clips in local space: alpha 0 is from at fromT,
// alpha 1 is to at toT. Both ends are exact.
func BlendPose(sk *asset.Skeleton, from *asset.Clip, fromT float32, fromLoop bool,
	to *asset.Clip, toT float32, toLoop bool, alpha float32, out []math.Mat4) {
	var ws workspace
	blendPose(&ws, sk, from, fromT, fromLoop, to, toT, toLoop, alpha, out)
}

func blendPose(ws *workspace, sk *asset.Skeleton, from *asset.Clip, fromT float32, fromLoop bool,
	to *asset.Clip, toT float32, toLoop bool, alpha float32, out []math.Mat4) {
	n := sk.BoneCount()
	dst := ws.locals[:n]
	switch {
	case alpha <= 0:
		SampleLocals(from, fromT, fromLoop, dst)
	case alpha >= 1:
		SampleLocals(to, toT, toLoop, dst)
	default:
		src := ws.from[:n]
		SampleLocals(from, fromT, fromLoop, src)
		SampleLocals(to, toT, toLoop, dst)
		for b := range dst {
			dst[b] = src[b].Interpolate(dst[b], alpha)
		}
	}
	ComposePose(sk, dst, ws.comp[:n], out)
}

// sampleInstance refreshes s.Pose from its clip, or from its cross-fade.
func sampleInstance(ws *workspace, s *pool.InstanceState) {
	if s.BlendFrom != nil && s.Clip != nil {
		blendPose(ws, s.Skeleton, s.BlendFrom, s.BlendFromTime, s.BlendFromLoop,
			s.Clip, s.PlayTime, s.Loop, s.BlendAlpha(), s.Pose)
		return
	}
	samplePose(ws, s.Skeleton, s.Clip, s.PlayTime, s.Loop, s.Pose)
}
