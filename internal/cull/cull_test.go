package cull

import (
	"context"
	gomath "math"
	"testing"

	"github.com/Faultbox/throng/internal/asset"
	"github.com/Faultbox/throng/internal/pool"
	"github.com/Faultbox/throng/pkg/math"
)

// forwardView looks down -Z from the origin.
func forwardView() View {
	return NewPerspectiveView(
		math.Vec3{}, math.Vec3{Z: -1}, math.Vec3{Y: 1},
		float32(gomath.Pi/3), 1, 0.1, 1000,
	)
}

func crowdPool(t *testing.T) (*pool.Pool, *asset.Skeleton) {
	t.Helper()
	sk, err := asset.ChainSkeleton("chain", 3, 0.5)
	if err != nil {
		t.Fatalf("ChainSkeleton: %v", err)
	}
	return pool.New(), sk
}

func place(t *testing.T, p *pool.Pool, h pool.Handle, pos math.Vec3) {
	t.Helper()
	if err := p.SetTransform(h, math.TransformAt(pos)); err != nil {
		t.Fatalf("SetTransform: %v", err)
	}
}

func TestTableTiesFavourDetail(t *testing.T) {
	tab, err := newTable(MetricDistance, []float32{10, 20}, 0)
	if err != nil {
		t.Fatalf("newTable: %v", err)
	}
	tests := []struct {
		m    float32
		want int
	}{
		{0, 0},
		{10, 0},
		{10.001, 1},
		{20, 1},
		{25, 2},
	}
	for _, tt := range tests {
		if got := tab.raw(tt.m); got != tt.want {
			t.Errorf("raw(%v) = %d, want %d", tt.m, got, tt.want)
		}
	}
}

func TestTableRejectsNonMonotonic(t *testing.T) {
	if _, err := newTable(MetricDistance, []float32{20, 10}, 0); err == nil {
		t.Error("expected error for decreasing distance thresholds")
	}
	if _, err := newTable(MetricScreenSize, []float32{0.1, 0.5}, 0); err == nil {
		t.Error("expected error for increasing screen size thresholds")
	}
	if _, err := newTable(MetricDistance, []float32{1, 2, 3, 4, 5, 6, 7, 8}, 0); err == nil {
		t.Error("expected error for too many tiers")
	}
}

func TestHysteresisNoFlicker(t *testing.T) {
	p, sk := crowdPool(t)
	h, _ := p.Allocate(sk, nil)
	sel, err := New(Config{Metric: MetricDistance, Thresholds: []float32{50}, Hysteresis: 5}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	views := []View{forwardView()}
	ctx := context.Background()

	tierAt := func(d float32) uint8 {
		place(t, p, h, math.Vec3{Z: -d})
		vis, err := sel.Select(ctx, p, views)
		if err != nil || len(vis) != 1 {
			t.Fatalf("Select at %v: %v, %d visible", d, err, len(vis))
		}
		return vis[0].Tier
	}

	if got := tierAt(60); got != 1 {
		t.Fatalf("tier at 60 = %d, want 1", got)
	}
	// Crossing inward upgrades immediately.
	if got := tierAt(45); got != 0 {
		t.Fatalf("tier at 45 = %d, want 0", got)
	}

	// Oscillating within the margin never downgrades.
	for _, d := range []float32{53, 47, 54.9, 46, 52, 48, 55} {
		if got := tierAt(d); got != 0 {
			t.Errorf("tier at %v = %d, want 0 (inside margin)", d, got)
		}
	}

	// Past the margin it downgrades once.
	if got := tierAt(55.5); got != 1 {
		t.Fatalf("tier at 55.5 = %d, want 1", got)
	}

	changes := 0
	prev := uint8(1)
	for _, d := range []float32{53, 47, 53, 47, 53, 47} {
		if got := tierAt(d); got != prev {
			changes++
			prev = got
		}
	}
	if changes > 1 {
		t.Errorf("tier changed %d times while oscillating inside the margin", changes)
	}
}

func TestVisibility(t *testing.T) {
	p, sk := crowdPool(t)
	front, _ := p.Allocate(sk, nil)
	behind, _ := p.Allocate(sk, nil)
	hidden, _ := p.Allocate(sk, nil)
	farAway, _ := p.Allocate(sk, nil)

	place(t, p, front, math.Vec3{Z: -10})
	place(t, p, behind, math.Vec3{Z: 10})
	place(t, p, hidden, math.Vec3{Z: -12})
	place(t, p, farAway, math.Vec3{Z: -900})
	_ = p.SetVisible(hidden, false)

	sel, err := New(Config{Thresholds: []float32{100}, MaxDrawDistance: 500}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	vis, err := sel.Select(context.Background(), p, []View{forwardView()})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(vis) != 1 || vis[0].Handle != front {
		t.Fatalf("visible = %+v, want only %v", vis, front)
	}

	for _, h := range []pool.Handle{behind, hidden, farAway} {
		s, _ := p.Get(h)
		if !s.LOD.Culled {
			t.Errorf("%v should be culled", h)
		}
	}
	s, _ := p.Get(hidden)
	if !s.LOD.InView {
		t.Error("hidden instance is inside the frustum, only its flag hides it")
	}
}

func TestBoundsPaddingAtFrustumEdge(t *testing.T) {
	p, sk := crowdPool(t)
	h, _ := p.Allocate(sk, nil)

	// Just outside the left plane of a 60 degree frustum at depth 10.
	half := float32(10 * gomath.Tan(gomath.Pi/6))
	place(t, p, h, math.Vec3{X: -half - 0.9, Z: -10})

	tight, _ := New(Config{}, nil)
	if vis, _ := tight.Select(context.Background(), p, []View{forwardView()}); len(vis) != 0 {
		t.Errorf("unpadded bounds should be culled, got %d visible", len(vis))
	}

	padded, _ := New(Config{BoundsPadding: 1}, nil)
	if vis, _ := padded.Select(context.Background(), p, []View{forwardView()}); len(vis) != 1 {
		t.Errorf("padded bounds should be visible, got %d visible", len(vis))
	}
}

func TestMultipleViews(t *testing.T) {
	p, sk := crowdPool(t)
	h, _ := p.Allocate(sk, nil)
	place(t, p, h, math.Vec3{Z: 30})

	back := NewPerspectiveView(math.Vec3{}, math.Vec3{Z: 1}, math.Vec3{Y: 1}, float32(gomath.Pi/3), 1, 0.1, 1000)
	sel, _ := New(Config{Thresholds: []float32{20}}, nil)

	vis, _ := sel.Select(context.Background(), p, []View{forwardView(), back})
	if len(vis) != 1 {
		t.Fatalf("expected visible through the second view, got %d", len(vis))
	}
	if vis[0].Tier != 1 || vis[0].Distance != 30 {
		t.Errorf("tier %d distance %v, want 1 and 30", vis[0].Tier, vis[0].Distance)
	}
}

func TestOrderByTierThenSlot(t *testing.T) {
	p, sk := crowdPool(t)
	dists := []float32{80, 10, 150, 20, 90, 5}
	handles := make([]pool.Handle, len(dists))
	for i, d := range dists {
		handles[i], _ = p.Allocate(sk, nil)
		place(t, p, handles[i], math.Vec3{Z: -d})
	}

	sel, _ := New(Config{Thresholds: []float32{50, 100}}, nil)
	vis, _ := sel.Select(context.Background(), p, []View{forwardView()})

	wantSlots := []uint32{1, 3, 5, 0, 4, 2}
	wantTiers := []uint8{0, 0, 0, 1, 1, 2}
	if len(vis) != len(wantSlots) {
		t.Fatalf("got %d visible, want %d", len(vis), len(wantSlots))
	}
	for i := range vis {
		if vis[i].Slot != wantSlots[i] || vis[i].Tier != wantTiers[i] {
			t.Errorf("entry %d = slot %d tier %d, want slot %d tier %d",
				i, vis[i].Slot, vis[i].Tier, wantSlots[i], wantTiers[i])
		}
	}
	counts := sel.TierCounts()
	if counts[0] != 3 || counts[1] != 2 || counts[2] != 1 {
		t.Errorf("tier counts = %v, want [3 2 1]", counts)
	}
}

func TestOverrideAndBias(t *testing.T) {
	p, sk := crowdPool(t)
	pinned, _ := p.Allocate(sk, nil)
	free, _ := p.Allocate(sk, nil)
	place(t, p, pinned, math.Vec3{Z: -5})
	place(t, p, free, math.Vec3{Z: -5})
	_ = p.SetLODOverride(pinned, 9)

	sel, _ := New(Config{Thresholds: []float32{50, 100}}, nil)
	vis, _ := sel.Select(context.Background(), p, []View{forwardView()})
	tiers := map[pool.Handle]uint8{}
	for _, v := range vis {
		tiers[v.Handle] = v.Tier
	}
	if tiers[pinned] != 2 {
		t.Errorf("override clamps to last tier: got %d, want 2", tiers[pinned])
	}
	if tiers[free] != 0 {
		t.Errorf("free tier = %d, want 0", tiers[free])
	}

	sel.SetBias(1)
	vis, _ = sel.Select(context.Background(), p, []View{forwardView()})
	for _, v := range vis {
		if v.Handle == free && v.Tier != 1 {
			t.Errorf("biased tier = %d, want 1", v.Tier)
		}
	}
	s, _ := p.Get(free)
	if s.LOD.Tier != 0 {
		t.Errorf("bias leaked into hysteresis tier: %d", s.LOD.Tier)
	}

	sel.SetBias(10)
	if sel.Bias() != 2 {
		t.Errorf("bias should clamp to 2, got %d", sel.Bias())
	}
}

func TestScreenSizeMetric(t *testing.T) {
	p, sk := crowdPool(t)
	near, _ := p.Allocate(sk, nil)
	far, _ := p.Allocate(sk, nil)
	place(t, p, near, math.Vec3{Z: -2})
	place(t, p, far, math.Vec3{Z: -200})

	sel, err := New(Config{Metric: MetricScreenSize, Thresholds: []float32{0.1}}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	vis, _ := sel.Select(context.Background(), p, []View{forwardView()})
	tiers := map[pool.Handle]uint8{}
	for _, v := range vis {
		tiers[v.Handle] = v.Tier
	}
	if tiers[near] != 0 || tiers[far] != 1 {
		t.Errorf("tiers near=%d far=%d, want 0 and 1", tiers[near], tiers[far])
	}
}

func TestParseMetric(t *testing.T) {
	if m, err := ParseMetric("screen_size"); err != nil || m != MetricScreenSize {
		t.Errorf("ParseMetric(screen_size) = %v, %v", m, err)
	}
	if _, err := ParseMetric("pixels"); err == nil {
		t.Error("expected error for unknown metric")
	}
}
