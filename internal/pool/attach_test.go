package pool

import (
	"errors"
	"testing"

	"github.com/Faultbox/throng/pkg/math"
)

func near(a, b math.Vec3) bool {
	return a.Sub(b).MaxAbs() < 1e-4
}

func TestAttachFollowsBone(t *testing.T) {
	sk, clip := fixtures(t)
	p := New()
	// Allocated first so it sits before its own parent in the arena.
	grand, _ := p.Allocate(sk, nil)
	root, _ := p.Allocate(sk, clip)
	child, _ := p.Allocate(sk, nil)

	rs, _ := p.Get(root)
	rs.Transform = math.TransformAt(math.Vec3{X: 10})

	if err := p.Attach(child, root, 3, math.TransformIdentity()); err != nil {
		t.Fatalf("Attach child: %v", err)
	}
	if err := p.Attach(grand, child, NoBone, math.TransformAt(math.Vec3{Z: 1})); err != nil {
		t.Fatalf("Attach grand: %v", err)
	}
	if p.Attached() != 2 {
		t.Fatalf("Attached() = %d, want 2", p.Attached())
	}

	cs, _ := p.Get(child)
	if want := (math.Vec3{X: 10, Y: 3}); !near(cs.Transform.Translation, want) {
		t.Errorf("child placed at %v, want %v", cs.Transform.Translation, want)
	}

	rs.Transform = math.TransformAt(math.Vec3{X: 20})
	p.UpdateAttachments()

	tests := []struct {
		name string
		h    Handle
		want math.Vec3
	}{
		{"child", child, math.Vec3{X: 20, Y: 3}},
		{"grandchild", grand, math.Vec3{X: 20, Y: 3, Z: 1}},
	}
	for _, tt := range tests {
		s, _ := p.Get(tt.h)
		if !near(s.Transform.Translation, tt.want) {
			t.Errorf("%s at %v, want %v", tt.name, s.Transform.Translation, tt.want)
		}
	}
}

func TestAttachRejects(t *testing.T) {
	sk, _ := fixtures(t)
	p := New()
	a, _ := p.Allocate(sk, nil)
	b, _ := p.Allocate(sk, nil)
	if err := p.Attach(b, a, NoBone, math.TransformIdentity()); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	tests := []struct {
		name          string
		child, parent Handle
		bone          int
		cycle         bool
	}{
		{"self", a, a, NoBone, true},
		{"cycle", a, b, NoBone, true},
		{"bone out of range", a, b, 4, false},
		{"negative bone", a, b, -2, false},
		{"stale parent", a, Handle{Index: 9, Generation: 1}, NoBone, false},
	}
	for _, tt := range tests {
		err := p.Attach(tt.child, tt.parent, tt.bone, math.TransformIdentity())
		if err == nil {
			t.Errorf("%s: expected an error", tt.name)
			continue
		}
		if got := errors.Is(err, ErrAttachCycle); got != tt.cycle {
			t.Errorf("%s: errors.Is(ErrAttachCycle) = %v (%v)", tt.name, got, err)
		}
	}
	if p.Attached() != 1 {
		t.Errorf("Attached() = %d after rejected attaches, want 1", p.Attached())
	}
}

func TestDetachAndStaleParent(t *testing.T) {
	sk, _ := fixtures(t)
	p := New()
	parent, _ := p.Allocate(sk, nil)
	a, _ := p.Allocate(sk, nil)
	b, _ := p.Allocate(sk, nil)

	ps, _ := p.Get(parent)
	ps.Transform = math.TransformAt(math.Vec3{X: 5})
	_ = p.Attach(a, parent, NoBone, math.TransformIdentity())
	_ = p.Attach(b, parent, NoBone, math.TransformIdentity())

	if err := p.Detach(a); err != nil {
		t.Fatalf("Detach: %v", err)
	}
	if err := p.Detach(a); err != nil {
		t.Fatalf("second Detach: %v", err)
	}
	if p.Attached() != 1 {
		t.Fatalf("Attached() = %d, want 1", p.Attached())
	}

	if err := p.Release(parent); err != nil {
		t.Fatalf("Release: %v", err)
	}
	p.UpdateAttachments()

	bs, _ := p.Get(b)
	if !bs.Parent.IsZero() {
		t.Error("child of a released parent must be detached")
	}
	if !near(bs.Transform.Translation, math.Vec3{X: 5}) {
		t.Errorf("detached child moved to %v", bs.Transform.Translation)
	}
	if p.Attached() != 0 {
		t.Errorf("Attached() = %d, want 0", p.Attached())
	}

	// Releasing an attached child keeps the counter honest.
	c, _ := p.Allocate(sk, nil)
	_ = p.Attach(c, b, NoBone, math.TransformIdentity())
	_ = p.Release(c)
	if p.Attached() != 0 {
		t.Errorf("Attached() = %d after releasing the child, want 0", p.Attached())
	}
}
