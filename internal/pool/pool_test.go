package pool

import (
	"errors"
	"testing"

	"github.com/Faultbox/throng/internal/asset"
	"github.com/Faultbox/throng/pkg/math"
)

func fixtures(t *testing.T) (*asset.Skeleton, *asset.Clip) {
	t.Helper()
	sk, err := asset.ChainSkeleton("chain", 4, 1)
	if err != nil {
		t.Fatalf("ChainSkeleton: %v", err)
	}
	clip, err := asset.SwayClip("sway", sk, 31, 30, 0.3, asset.WithLoop(true))
	if err != nil {
		t.Fatalf("SwayClip: %v", err)
	}
	return sk, clip
}

func TestAllocateGet(t *testing.T) {
	sk, clip := fixtures(t)
	p := New()

	h, err := p.Allocate(sk, clip)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if h.IsZero() {
		t.Fatal("allocated handle must not be zero")
	}

	s, err := p.Get(h)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if s.Handle() != h {
		t.Errorf("state handle %v, want %v", s.Handle(), h)
	}
	if s.PlayRate != 1 || !s.Loop || !s.Visible {
		t.Errorf("unexpected defaults: rate=%v loop=%v visible=%v", s.PlayRate, s.Loop, s.Visible)
	}
	if s.LODOverride != NoLODOverride {
		t.Errorf("expected no LOD override, got %d", s.LODOverride)
	}
	if p.Live() != 1 {
		t.Errorf("Live() = %d, want 1", p.Live())
	}
	if sk.Refs() != 1 || clip.Refs() != 1 {
		t.Errorf("refs = %d/%d, want 1/1", sk.Refs(), clip.Refs())
	}
}

func TestSnapshotLengthMatchesBoneCount(t *testing.T) {
	sk, clip := fixtures(t)
	big, _ := asset.ChainSkeleton("big", 9, 1)
	p := New()

	h1, _ := p.Allocate(big, nil)
	_ = p.Release(h1)
	// Reused slot shrinks its pose to the new skeleton.
	h2, _ := p.Allocate(sk, clip)

	s, _ := p.Get(h2)
	if len(s.Pose) != sk.BoneCount() {
		t.Errorf("pose length %d, want %d", len(s.Pose), sk.BoneCount())
	}
	if h1.Index != h2.Index {
		t.Errorf("expected slot reuse, got %d and %d", h1.Index, h2.Index)
	}
}

func TestGetAfterReleaseIsStale(t *testing.T) {
	sk, clip := fixtures(t)
	p := New()

	h, _ := p.Allocate(sk, clip)
	if err := p.Release(h); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := p.Get(h); !errors.Is(err, ErrStaleHandle) {
		t.Errorf("expected ErrStaleHandle, got %v", err)
	}
	if err := p.Release(h); !errors.Is(err, ErrStaleHandle) {
		t.Errorf("double release: expected ErrStaleHandle, got %v", err)
	}

	h2, _ := p.Allocate(sk, clip)
	if h2.Index != h.Index {
		t.Fatalf("expected slot %d reused, got %d", h.Index, h2.Index)
	}
	if h2.Generation == h.Generation {
		t.Errorf("reused slot kept generation %d", h.Generation)
	}
	if sk.Refs() != 1 {
		t.Errorf("skeleton refs = %d, want 1", sk.Refs())
	}
}

func TestReuseScenarioNeverAliases(t *testing.T) {
	sk, clip := fixtures(t)
	p := New()

	a, _ := p.Allocate(sk, clip)
	_ = p.SetPlayRate(a, 2)
	_ = p.Release(a)

	b, _ := p.Allocate(sk, clip)
	_ = p.SetPlayRate(b, 0.5)

	calls := []struct {
		name string
		fn   func() error
	}{
		{"Get", func() error { _, err := p.Get(a); return err }},
		{"SetClip", func() error { return p.SetClip(a, clip) }},
		{"SetPlayRate", func() error { return p.SetPlayRate(a, 3) }},
		{"SetTransform", func() error { return p.SetTransform(a, math.TransformIdentity()) }},
		{"SetVisible", func() error { return p.SetVisible(a, false) }},
		{"Finished", func() error { _, err := p.Finished(a); return err }},
		{"Release", func() error { return p.Release(a) }},
	}
	for _, c := range calls {
		if err := c.fn(); !errors.Is(err, ErrStaleHandle) {
			t.Errorf("%s with old handle: expected ErrStaleHandle, got %v", c.name, err)
		}
	}

	s, err := p.Get(b)
	if err != nil {
		t.Fatalf("Get(b): %v", err)
	}
	if s.PlayRate != 0.5 || !s.Visible {
		t.Errorf("B was modified through A's handle: rate=%v visible=%v", s.PlayRate, s.Visible)
	}
}

func TestGetOutOfRange(t *testing.T) {
	p := New()
	if _, err := p.Get(Handle{Index: 7, Generation: 1}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGenerationWrapSkipsZero(t *testing.T) {
	if g := nextGeneration(^uint32(0)); g != 1 {
		t.Errorf("nextGeneration(max) = %d, want 1", g)
	}
	if g := nextGeneration(41); g != 42 {
		t.Errorf("nextGeneration(41) = %d, want 42", g)
	}
}

func TestTopologyMismatch(t *testing.T) {
	sk, _ := fixtures(t)
	other, _ := asset.ChainSkeleton("other", 6, 1)
	wrong, _ := asset.SwayClip("wrong", other, 5, 30, 0.2)
	p := New()

	if _, err := p.Allocate(sk, wrong); !errors.Is(err, ErrTopologyMismatch) {
		t.Errorf("Allocate: expected ErrTopologyMismatch, got %v", err)
	}

	h, _ := p.Allocate(sk, nil)
	if err := p.SetClip(h, wrong); !errors.Is(err, ErrTopologyMismatch) {
		t.Errorf("SetClip: expected ErrTopologyMismatch, got %v", err)
	}
	if wrong.Refs() != 0 {
		t.Errorf("rejected clip retained: refs=%d", wrong.Refs())
	}
}

func TestCapacityExceeded(t *testing.T) {
	sk, clip := fixtures(t)
	p := New(WithCapacity(2))

	a, _ := p.Allocate(sk, clip)
	_, _ = p.Allocate(sk, clip)
	if _, err := p.Allocate(sk, clip); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("expected ErrCapacityExceeded, got %v", err)
	}

	_ = p.Release(a)
	if _, err := p.Allocate(sk, clip); err != nil {
		t.Errorf("freed slot should be reusable at capacity: %v", err)
	}
}

func TestSetClipResetsFinished(t *testing.T) {
	sk, clip := fixtures(t)
	p := New()
	h, _ := p.Allocate(sk, clip)

	s, _ := p.Get(h)
	s.Finished = true
	s.PlayTime = clip.Duration
	_ = p.SetPlayRate(h, 1.5)

	if err := p.SetClip(h, clip); err != nil {
		t.Fatalf("SetClip: %v", err)
	}
	if s.Finished || s.PlayTime != 0 {
		t.Errorf("SetClip should restart: finished=%v time=%v", s.Finished, s.PlayTime)
	}
	if s.PlayRate != 1.5 {
		t.Errorf("SetClip should keep rate, got %v", s.PlayRate)
	}
}

func TestPlayParams(t *testing.T) {
	sk, clip := fixtures(t)
	p := New()
	h, _ := p.Allocate(sk, nil)

	err := p.Play(h, clip, PlayParams{Loop: false, Rate: 2, StartAt: 100})
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	s, _ := p.Get(h)
	if s.Loop || s.PlayRate != 2 {
		t.Errorf("loop=%v rate=%v, want false 2", s.Loop, s.PlayRate)
	}
	if s.PlayTime != clip.Duration {
		t.Errorf("StartAt should clamp to duration, got %v", s.PlayTime)
	}

	s.PlayTime = 0.25
	if err := p.Play(h, clip, PlayParams{Rate: 1, Unique: true}); err != nil {
		t.Fatalf("Play unique: %v", err)
	}
	if s.PlayTime != 0.25 || s.PlayRate != 2 {
		t.Errorf("unique play restarted a running clip: time=%v rate=%v", s.PlayTime, s.PlayRate)
	}
}

func TestCustomData(t *testing.T) {
	sk, clip := fixtures(t)
	p := New(WithCustomData(3))
	h, _ := p.Allocate(sk, clip)

	if err := p.SetCustomData(h, 1, 0.5, 0.25); err != nil {
		t.Fatalf("SetCustomData: %v", err)
	}
	s, _ := p.Get(h)
	if s.CustomData[0] != 0 || s.CustomData[1] != 0.5 || s.CustomData[2] != 0.25 {
		t.Errorf("custom data = %v", s.CustomData)
	}
	if err := p.SetCustomData(h, 2, 1, 1); err == nil {
		t.Error("expected out of range error")
	}

	// Released slots come back zeroed.
	_ = p.Release(h)
	h2, _ := p.Allocate(sk, clip)
	s2, _ := p.Get(h2)
	for i, v := range s2.CustomData {
		if v != 0 {
			t.Errorf("custom data %d = %v after reuse, want 0", i, v)
		}
	}
}

func TestExpireLifespans(t *testing.T) {
	sk, clip := fixtures(t)
	p := New()
	short, _ := p.Allocate(sk, clip)
	long, _ := p.Allocate(sk, clip)
	forever, _ := p.Allocate(sk, clip)

	_ = p.SetLifespan(short, 0.1)
	_ = p.SetLifespan(long, 1)

	expired := p.ExpireLifespans(0.2)
	if len(expired) != 1 || expired[0] != short {
		t.Fatalf("expired = %v, want [%v]", expired, short)
	}
	if p.Valid(short) {
		t.Error("expired instance still valid")
	}
	if !p.Valid(long) || !p.Valid(forever) {
		t.Error("live instances were released")
	}
	if p.Live() != 2 {
		t.Errorf("Live() = %d, want 2", p.Live())
	}
}

func TestCommandBuffer(t *testing.T) {
	sk, clip := fixtures(t)
	p := New()
	var buf CommandBuffer

	var spawned Handle
	buf.Push(func(p *Pool) error {
		h, err := p.Allocate(sk, clip)
		spawned = h
		return err
	})
	buf.Push(func(p *Pool) error { return p.Release(Handle{Index: 99, Generation: 1}) })
	buf.Push(nil)

	if buf.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", buf.Len())
	}
	errs := buf.Apply(p)
	if len(errs) != 1 || !errors.Is(errs[0], ErrNotFound) {
		t.Errorf("Apply errors = %v, want one ErrNotFound", errs)
	}
	if !p.Valid(spawned) {
		t.Error("deferred spawn did not run")
	}
	if buf.Len() != 0 {
		t.Errorf("buffer not drained: %d", buf.Len())
	}
}

func TestBeginFrameLatchesTransform(t *testing.T) {
	sk, clip := fixtures(t)
	p := New()
	h, _ := p.Allocate(sk, clip)

	_ = p.SetTransform(h, math.TransformAt(math.Vec3{X: 1}))
	p.BeginFrame()
	_ = p.SetTransform(h, math.TransformAt(math.Vec3{X: 2}))

	s, _ := p.Get(h)
	if s.PrevTransform.Translation.X != 1 || s.Transform.Translation.X != 2 {
		t.Errorf("prev=%v cur=%v", s.PrevTransform.Translation, s.Transform.Translation)
	}
}

func TestAllocateMaxBones(t *testing.T) {
	sk, err := asset.ChainSkeleton("long", 20, 0.1)
	if err != nil {
		t.Fatalf("ChainSkeleton: %v", err)
	}
	p := New(WithMaxBones(8))
	if _, err := p.Allocate(sk, nil); !errors.Is(err, ErrSkeletonTooLarge) {
		t.Fatalf("expected ErrSkeletonTooLarge, got %v", err)
	}
	if p.Live() != 0 || p.Len() != 0 {
		t.Errorf("rejected allocation left live=%d len=%d", p.Live(), p.Len())
	}
	if sk.Refs() != 0 {
		t.Errorf("rejected allocation retained the skeleton (%d refs)", sk.Refs())
	}

	short, _ := asset.ChainSkeleton("short", 8, 0.1)
	if _, err := p.Allocate(short, nil); err != nil {
		t.Errorf("8 bones at the limit: %v", err)
	}
}
