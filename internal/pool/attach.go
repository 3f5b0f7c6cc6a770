package pool

import (
	"errors"
	"fmt"

	"github.com/Faultbox/throng/pkg/math"
)

// ErrAttachCycle is returned when an attachment would make an instance its
// own ancestor.
var ErrAttachCycle = errors.New("attachment cycle")

// NoBone attaches a child to its parent's origin instead of a bone.
const NoBone = -1

// Attach makes child follow parent: every frame the child is placed at
// parent world * parent bone * rel. A child already attached elsewhere is
// moved. The child's transform is updated immediately.
func (p *Pool) Attach(child, parent Handle, bone int, rel math.Transform) error {
	c, err := p.Get(child)
	if err != nil {
		return err
	}
	par, err := p.Get(parent)
	if err != nil {
		return err
	}
	if bone < NoBone || bone >= par.Skeleton.BoneCount() {
		return fmt.Errorf("attach %s to %s: bone %d out of range (%d bones)",
			child, parent, bone, par.Skeleton.BoneCount())
	}
	for h := parent; !h.IsZero(); {
		if h == child {
			return fmt.Errorf("%w: %s is an ancestor of %s", ErrAttachCycle, child, parent)
		}
		a, err := p.Get(h)
		if err != nil {
			break
		}
		h = a.Parent
	}

	if c.Parent.IsZero() {
		p.attached++
	}
	c.Parent = parent
	c.ParentBone = bone
	c.Relative = rel
	c.Transform = attachedTransform(par, bone, rel)
	c.PrevTransform = c.Transform
	return nil
}

// Detach stops child following its parent; it stays where it is.
func (p *Pool) Detach(child Handle) error {
	c, err := p.Get(child)
	if err != nil {
		return err
	}
	if !c.Parent.IsZero() {
		c.Parent = Handle{}
		p.attached--
	}
	return nil
}

// Attached returns the number of instances following a parent.
func (p *Pool) Attached() int { return p.attached }

// UpdateAttachments places every attached instance on its parent's current
// pose, parents before children. Children whose parent was released are
// detached where they stand.
func (p *Pool) UpdateAttachments() {
	if p.attached == 0 {
		return
	}
	p.stamp++
	for i := range p.slots {
		if s := &p.slots[i]; s.alive && !s.Parent.IsZero() {
			p.resolve(s)
		}
	}
}

func (p *Pool) resolve(s *InstanceState) {
	if s.resolved == p.stamp {
		return
	}
	s.resolved = p.stamp
	par, err := p.Get(s.Parent)
	if err != nil {
		s.Parent = Handle{}
		p.attached--
		return
	}
	if !par.Parent.IsZero() {
		p.resolve(par)
	}
	s.Transform = attachedTransform(par, s.ParentBone, s.Relative)
}

func attachedTransform(par *InstanceState, bone int, rel math.Transform) math.Transform {
	m := par.Transform.ToMat4()
	if bone != NoBone && bone < len(par.Pose) {
		// Pose holds skinning matrices; the bind matrix brings them back to
		// the bone's component-space placement.
		m = m.MulAffine(par.Pose[bone].MulAffine(par.Skeleton.Bind(bone)))
	}
	return math.TransformFromMat4(m.MulAffine(rel.ToMat4()))
}
