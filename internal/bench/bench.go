// Package bench builds the synthetic crowd both binaries run: a procedural
// rig with a few clips, scattered on a ring around an orbiting camera.
package bench

import (
	"context"
	"fmt"
	gomath "math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/throng/internal/asset"
	"github.com/Faultbox/throng/internal/config"
	"github.com/Faultbox/throng/internal/crowd"
	"github.com/Faultbox/throng/internal/cull"
	"github.com/Faultbox/throng/internal/logger"
	"github.com/Faultbox/throng/internal/pool"
	"github.com/Faultbox/throng/pkg/math"
)

// Asset ids registered by RegisterAssets.
const (
	SkeletonID = "chain24"
	ClipIdle   = "idle"
	ClipWalk   = "walk"
	ClipWave   = "wave"
)

// Bones in the benchmark rig.
const Bones = 24

// RegisterAssets adds the benchmark rig and its clips to store.
func RegisterAssets(store *asset.Store) error {
	sk, err := asset.ChainSkeleton(SkeletonID, Bones, 0.08)
	if err != nil {
		return err
	}
	if err := store.AddSkeleton(sk); err != nil {
		return err
	}
	clips := []struct {
		id     string
		frames int
		rate   float32
		amp    float32
		opts   []asset.ClipOption
	}{
		{ClipIdle, 61, 30, 0.05, []asset.ClipOption{asset.WithLoop(true)}},
		{ClipWalk, 31, 30, 0.25, []asset.ClipOption{asset.WithLoop(true)}},
		{ClipWave, 46, 30, 0.6, []asset.ClipOption{
			asset.WithLoop(false),
			asset.WithNotifies(asset.Notify{Time: 0.75, Name: "wave_peak"}),
		}},
	}
	for _, c := range clips {
		clip, err := asset.SwayClip(c.id, sk, c.frames, c.rate, c.amp, c.opts...)
		if err != nil {
			return err
		}
		if err := store.AddClip(clip); err != nil {
			return err
		}
	}
	return nil
}

// Populate spawns bc.Instances on a ring between MinDistance and
// MaxDistance around the origin. The same seed yields the same crowd.
func Populate(w *crowd.World, bc config.BenchConfig) ([]pool.Handle, error) {
	rng := rand.New(rand.NewPCG(uint64(bc.Seed), 0x7468726f6e67))
	clips := []string{ClipIdle, ClipWalk, ClipWalk, ClipWave}

	handles := make([]pool.Handle, 0, bc.Instances)
	for i := 0; i < bc.Instances; i++ {
		angle := rng.Float64() * 2 * gomath.Pi
		r := float64(bc.MinDistance) + rng.Float64()*float64(bc.MaxDistance-bc.MinDistance)
		t := math.TransformAt(math.Vec3{
			X: float32(r * gomath.Cos(angle)),
			Z: float32(r * gomath.Sin(angle)),
		})
		t.Rotation = math.QuatFromAxisAngle(math.Vec3{Y: 1}, float32(rng.Float64()*2*gomath.Pi))

		clip := clips[rng.IntN(len(clips))]
		h, err := w.Spawn(SkeletonID, clip, t)
		if err != nil {
			return handles, fmt.Errorf("spawn %d: %w", i, err)
		}
		pp := pool.PlayParams{Loop: clip != ClipWave, Rate: 0.8 + 0.4*float32(rng.Float64()), StartAt: float32(rng.Float64())}
		if err := w.Play(h, clip, pp); err != nil {
			return handles, err
		}
		_ = w.SetCustomData(h, 0, float32(rng.Float64()), float32(rng.Float64()), float32(rng.Float64()), 1)
		handles = append(handles, h)
	}
	return handles, nil
}

// Orbit returns the camera position and target at simulated time t: eye
// height 2, one revolution per minute, looking across the origin.
func Orbit(t float64, radius float32) (eye, target math.Vec3) {
	a := t * 2 * gomath.Pi / 60
	eye = math.Vec3{X: radius * float32(gomath.Cos(a)), Y: 2, Z: radius * float32(gomath.Sin(a))}
	return eye, math.Vec3{X: -eye.X, Z: -eye.Z}
}

// Camera field of view and clip planes.
const (
	FovY = float32(gomath.Pi / 3)
	Near = float32(0.1)
	Far  = float32(2000)
)

// Camera returns the orbiting view at simulated time t.
func Camera(t float64, aspect float32, radius float32) cull.View {
	eye, target := Orbit(t, radius)
	return cull.NewPerspectiveView(eye, target, math.Vec3{Y: 1}, FovY, aspect, Near, Far)
}

// Summary aggregates a run.
type Summary struct {
	Frames      int
	Live        int
	AvgVisible  float64
	AvgSampled  float64
	TierVisible []int // summed over frames
	Events      int
	MaxBias     int
	Errors      int
	Avg, Max    time.Duration
}

// Run ticks w for bc.Frames frames of bc.FrameDelta seconds. Finished
// waves fade into idle and wave again after a rest, so the crowd keeps
// producing events.
func Run(ctx context.Context, w *crowd.World, bc config.BenchConfig, log *zap.Logger) (Summary, error) {
	log = logger.OrNop(log)
	w.OnEvent(restartOneShots(w, log))

	var sum Summary
	var total time.Duration
	for f := 0; f < bc.Frames; f++ {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		view := Camera(float64(f)*float64(bc.FrameDelta), 16.0/9.0, bc.MinDistance/2)
		st, err := w.Tick(ctx, bc.FrameDelta, []cull.View{view})
		if err != nil {
			sum.Errors++
			log.Warn("frame error", zap.Int("frame", f), zap.Error(err))
		}

		sum.Frames++
		sum.Live = st.Live
		sum.AvgVisible += float64(st.Visible)
		sum.AvgSampled += float64(st.Sampled)
		sum.Events += st.Events
		sum.MaxBias = max(sum.MaxBias, st.LODBias)
		if len(sum.TierVisible) < len(st.Tiers) {
			sum.TierVisible = append(sum.TierVisible, make([]int, len(st.Tiers)-len(sum.TierVisible))...)
		}
		for i, n := range st.Tiers {
			sum.TierVisible[i] += n
		}
		total += st.Duration
		sum.Max = max(sum.Max, st.Duration)

		if f%60 == 0 {
			log.Debug("frame", zap.Stringer("stats", st))
		}
	}
	if sum.Frames > 0 {
		sum.AvgVisible /= float64(sum.Frames)
		sum.AvgSampled /= float64(sum.Frames)
		sum.Avg = total / time.Duration(sum.Frames)
	}
	return sum, nil
}

// Wave restart timing, in seconds.
const (
	waveRest  = 1
	waveBlend = 0.25
)

func restartOneShots(w *crowd.World, log *zap.Logger) crowd.EventHandler {
	wave := func(h pool.Handle) {
		if err := w.Play(h, ClipWave, pool.PlayParams{Rate: 1, BlendTime: waveBlend}); err != nil {
			log.Debug("wave restart skipped", zap.Stringer("instance", h), zap.Error(err))
		}
	}
	return func(ev crowd.Event) {
		if ev.Kind != crowd.EventFinished {
			return
		}
		h := ev.Handle
		if err := w.Play(h, ClipIdle, pool.PlayParams{Loop: true, Rate: 1, BlendTime: waveBlend}); err != nil {
			return // released meanwhile
		}
		_ = w.SetTimer(h, waveRest, false, wave)
	}
}
