package anim

import (
	"context"
	gomath "math"
	"testing"

	"github.com/Faultbox/throng/internal/asset"
	"github.com/Faultbox/throng/internal/pool"
	"github.com/Faultbox/throng/pkg/math"
)

func abs(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}

// turnClip rotates the root about Z by 90 degrees per second over 4 frames at 4 fps.
func turnClip(t *testing.T, sk *asset.Skeleton, opts ...asset.ClipOption) *asset.Clip {
	t.Helper()
	n := sk.BoneCount()
	var keys []math.Transform
	for f := 0; f < 5; f++ {
		for b := 0; b < n; b++ {
			k := sk.ReferenceLocal(b)
			if b == 0 {
				k.Rotation = math.QuatFromAxisAngle(math.Vec3{Z: 1}, float32(f)*float32(gomath.Pi)/8)
			}
			keys = append(keys, k)
		}
	}
	c, err := asset.NewClip("turn", sk.ID, 4, n, keys, opts...)
	if err != nil {
		t.Fatalf("NewClip: %v", err)
	}
	return c
}

func chain(t *testing.T, bones int) *asset.Skeleton {
	t.Helper()
	sk, err := asset.ChainSkeleton("chain", bones, 1)
	if err != nil {
		t.Fatalf("ChainSkeleton: %v", err)
	}
	return sk
}

func TestWrapTime(t *testing.T) {
	tests := []struct {
		t, d float32
		loop bool
		want float32
	}{
		{0.5, 1, true, 0.5},
		{1, 1, true, 0},
		{2.25, 1, true, 0.25},
		{-0.25, 1, true, 0.75},
		{1.5, 1, false, 1},
		{-1, 1, false, 0},
		{3, 0, true, 0},
	}
	for _, tt := range tests {
		if got := WrapTime(tt.t, tt.d, tt.loop); got != tt.want {
			t.Errorf("WrapTime(%v, %v, %v) = %v, want %v", tt.t, tt.d, tt.loop, got, tt.want)
		}
	}
}

func TestLoopingClipEndEqualsStart(t *testing.T) {
	sk := chain(t, 3)
	c, err := asset.SwayClip("sway", sk, 21, 30, 0.5, asset.WithLoop(true))
	if err != nil {
		t.Fatalf("SwayClip: %v", err)
	}

	start := make([]math.Mat4, sk.BoneCount())
	end := make([]math.Mat4, sk.BoneCount())
	SamplePose(sk, c, 0, true, start)
	SamplePose(sk, c, c.Duration, true, end)

	for b := range start {
		if start[b] != end[b] {
			t.Errorf("bone %d: pose at 0 %v != pose at D %v", b, start[b], end[b])
		}
	}
}

func TestNonLoopingClampsToLastKey(t *testing.T) {
	sk := chain(t, 3)
	c := turnClip(t, sk)
	p := pool.New()
	h, _ := p.Allocate(sk, c)
	s, _ := p.Get(h)
	_ = p.SetPlayRate(h, 1)

	e := New(Config{Workers: 1}, nil)
	ctx := context.Background()

	events, err := e.Advance(ctx, p, 0.6)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if s.Finished || len(events) != 0 {
		t.Fatalf("finished too early: %v, events %v", s.Finished, events)
	}

	events, _ = e.Advance(ctx, p, 0.6)
	if s.PlayTime != c.Duration {
		t.Errorf("play time = %v, want clamp at %v", s.PlayTime, c.Duration)
	}
	if !s.Finished {
		t.Error("expected finished after passing the end")
	}
	if len(events) != 1 || events[0].Kind != EventFinished || events[0].Handle != h {
		t.Errorf("expected one finish event for %v, got %v", h, events)
	}

	if _, err := e.Sample(ctx, p); err != nil {
		t.Fatalf("Sample: %v", err)
	}
	want := make([]math.Mat4, sk.BoneCount())
	comp := make([]math.Mat4, sk.BoneCount())
	ComposePose(sk, c.Frame(c.Frames()-1), comp, want)
	for b := range want {
		if s.Pose[b] != want[b] {
			t.Errorf("bone %d: clamped pose differs from last key", b)
		}
	}

	// Finished is sticky and does not re-fire.
	events, _ = e.Advance(ctx, p, 1)
	if !s.Finished || len(events) != 0 {
		t.Errorf("finished=%v events=%v after further advance", s.Finished, events)
	}
	if done, _ := p.Finished(h); !done {
		t.Error("Finished query should report true")
	}

	// Until the clip is reassigned.
	_ = p.SetClip(h, c)
	if done, _ := p.Finished(h); done {
		t.Error("SetClip should clear finished")
	}
}

func TestSampleInterpolatesShortestArc(t *testing.T) {
	sk := chain(t, 1)
	c := turnClip(t, sk)

	// Halfway between frame 1 (22.5 deg) and frame 2 (45 deg).
	locals := make([]math.Transform, 1)
	SampleLocals(c, 0.375, false, locals)

	want := math.QuatFromAxisAngle(math.Vec3{Z: 1}, float32(gomath.Pi)*3/16)
	if abs(locals[0].Rotation.W-want.W) > 1e-5 || abs(locals[0].Rotation.Z-want.Z) > 1e-5 {
		t.Errorf("rotation = %v, want %v", locals[0].Rotation, want)
	}

	// On a key the stored value comes back untouched.
	SampleLocals(c, 0.25, false, locals)
	if locals[0] != c.Key(1, 0) {
		t.Errorf("sample on key 1 = %v, want %v", locals[0], c.Key(1, 0))
	}
}

func TestComposeRespectsHierarchy(t *testing.T) {
	sk := chain(t, 2)
	c := turnClip(t, sk)

	// At t=1 the root has turned 90 degrees about Z, so the child joint
	// (one unit up in the reference pose) swings to -X.
	locals := make([]math.Transform, 2)
	SampleLocals(c, 1, false, locals)
	comp := make([]math.Mat4, 2)
	out := make([]math.Mat4, 2)
	ComposePose(sk, locals, comp, out)

	child := comp[1].Translation()
	if abs(child.X+1) > 1e-5 || abs(child.Y) > 1e-5 {
		t.Errorf("child joint at %v, want (-1, 0, 0)", child)
	}

	// Skinning matrix moves the bind-pose joint to the animated joint.
	bindJoint := math.Vec3{Y: 1}
	if got := out[1].TransformPoint(bindJoint); got.Distance(child) > 1e-5 {
		t.Errorf("skinned joint at %v, want %v", got, child)
	}
}

func TestNotifies(t *testing.T) {
	sk := chain(t, 1)
	c := turnClip(t, sk,
		asset.WithLoop(true),
		asset.WithNotifies(
			asset.Notify{Time: 0, Name: "start"},
			asset.Notify{Time: 0.5, Name: "mid"},
			asset.Notify{Time: 0.9, Name: "late"},
		),
	)
	p := pool.New()
	h, _ := p.Allocate(sk, c)
	e := New(Config{Workers: 1}, nil)
	ctx := context.Background()

	names := func(ev []Event) []string {
		var out []string
		for _, x := range ev {
			if x.Kind == EventNotify && x.Handle == h {
				out = append(out, x.Name)
			}
		}
		return out
	}

	ev, _ := e.Advance(ctx, p, 0.6)
	if got := names(ev); len(got) != 1 || got[0] != "mid" {
		t.Errorf("first step notifies = %v, want [mid]", got)
	}

	// 0.6 -> 1.2 wraps to 0.2: crosses late, then start.
	ev, _ = e.Advance(ctx, p, 0.6)
	if got := names(ev); len(got) != 2 || got[0] != "start" || got[1] != "late" {
		t.Errorf("wrapping step notifies = %v, want [start late]", got)
	}

	// A step longer than the clip fires everything once.
	ev, _ = e.Advance(ctx, p, 3)
	if got := names(ev); len(got) != 3 {
		t.Errorf("long step notifies = %v, want all three", got)
	}
}

func TestPauseAndTimeScale(t *testing.T) {
	sk := chain(t, 1)
	c := turnClip(t, sk, asset.WithLoop(true))
	p := pool.New()
	a, _ := p.Allocate(sk, c)
	b, _ := p.Allocate(sk, c)
	_ = p.SetPaused(b, true)

	e := New(Config{Workers: 1, TimeScale: 0.5}, nil)
	_, _ = e.Advance(context.Background(), p, 0.4)

	sa, _ := p.Get(a)
	sb, _ := p.Get(b)
	if abs(sa.PlayTime-0.2) > 1e-6 {
		t.Errorf("scaled play time = %v, want 0.2", sa.PlayTime)
	}
	if sb.PlayTime != 0 {
		t.Errorf("paused instance advanced to %v", sb.PlayTime)
	}
}

func TestSampleRateReduction(t *testing.T) {
	sk := chain(t, 2)
	c := turnClip(t, sk, asset.WithLoop(true))
	p := pool.New()
	near, _ := p.Allocate(sk, c)
	far, _ := p.Allocate(sk, c)
	hidden, _ := p.Allocate(sk, c)

	set := func(h pool.Handle, tier uint8, inView bool) {
		s, _ := p.Get(h)
		s.LOD = pool.LODState{Tier: tier, Drawn: tier, Valid: true, InView: inView, Culled: !inView}
	}
	set(near, 0, true)
	set(far, 2, true)
	set(hidden, 0, false)

	e := New(Config{Workers: 1, SampleIntervals: []int{1, 2, 4}}, nil)
	ctx := context.Background()

	counts := map[pool.Handle]int{}
	for f := 0; f < 16; f++ {
		_, _ = e.Advance(ctx, p, 1.0/60)
		before := map[pool.Handle]uint64{}
		for _, h := range []pool.Handle{near, far, hidden} {
			s, _ := p.Get(h)
			before[h] = s.LastSampled
		}
		if _, err := e.Sample(ctx, p); err != nil {
			t.Fatalf("Sample: %v", err)
		}
		for _, h := range []pool.Handle{near, far, hidden} {
			s, _ := p.Get(h)
			if s.LastSampled != before[h] {
				counts[h]++
			}
		}
	}

	if counts[near] != 16 {
		t.Errorf("tier 0 sampled %d of 16 frames, want 16", counts[near])
	}
	// First frame is forced by the dirty pose, then every 4th frame.
	if counts[far] < 4 || counts[far] > 5 {
		t.Errorf("tier 2 sampled %d of 16 frames, want 4-5", counts[far])
	}
	if counts[hidden] != 0 {
		t.Errorf("culled instance sampled %d times, want 0", counts[hidden])
	}

	s, _ := p.Get(hidden)
	if len(s.Pose) != sk.BoneCount() {
		t.Errorf("culled instance pose length %d, want %d", len(s.Pose), sk.BoneCount())
	}
}

func TestParallelMatchesSerial(t *testing.T) {
	sk := chain(t, 4)
	c, _ := asset.SwayClip("sway", sk, 31, 30, 0.4, asset.WithLoop(true))

	build := func() *pool.Pool {
		p := pool.New()
		for i := 0; i < 2000; i++ {
			h, _ := p.Allocate(sk, c)
			_ = p.SetPlayRate(h, 0.5+float32(i%7)*0.25)
		}
		return p
	}
	serial, par := build(), build()

	es := New(Config{Workers: 1}, nil)
	ep := New(Config{Workers: 8}, nil)
	ctx := context.Background()
	for f := 0; f < 5; f++ {
		_, _ = es.Advance(ctx, serial, 1.0/30)
		_, _ = ep.Advance(ctx, par, 1.0/30)
		_, _ = es.Sample(ctx, serial)
		_, _ = ep.Sample(ctx, par)
	}

	a, b := serial.Slots(), par.Slots()
	for i := range a {
		if a[i].PlayTime != b[i].PlayTime {
			t.Fatalf("slot %d play time %v vs %v", i, a[i].PlayTime, b[i].PlayTime)
		}
		for j := range a[i].Pose {
			if a[i].Pose[j] != b[i].Pose[j] {
				t.Fatalf("slot %d bone %d differs between serial and parallel runs", i, j)
			}
		}
	}
}
