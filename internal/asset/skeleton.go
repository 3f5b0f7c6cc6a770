// Package asset holds the immutable animation data shared by every instance:
// skeletons and baked clips, plus the store that resolves them by id.
//
// Nothing in here is mutated after construction, so workers read it without
// locks. Reference counts only guard removal from the Store.
package asset

import (
	"fmt"
	"sync/atomic"

	"github.com/Faultbox/throng/pkg/math"
)

// MaxBones is the hard bone limit per skeleton.
const MaxBones = 256

// NoParent marks a root bone.
const NoParent = -1

// Bone is one node of the hierarchy.
type Bone struct {
	Name   string
	Parent int32          // index into Skeleton bones, NoParent for roots
	Local  math.Transform // reference pose, relative to parent

	// InverseBind maps mesh space into bone space. Leave zero to derive it
	// from the reference pose.
	InverseBind math.Mat4
}

// Skeleton is a bone forest stored as a flat arena with parent indices.
// Parents always precede their children.
type Skeleton struct {
	ID    string
	bones []Bone

	refComponent []math.Mat4 // reference pose in component space
	restPose     []math.Mat4 // reference pose in skinning space
	bind         []math.Mat4 // inverse of each InverseBind
	byName       map[string]int
	bounds       math.Sphere

	refs atomic.Int32
}

// NewSkeleton validates the hierarchy and precomputes the reference pose.
func NewSkeleton(id string, bones []Bone) (*Skeleton, error) {
	if len(bones) == 0 {
		return nil, fmt.Errorf("skeleton %q: %w: no bones", id, ErrInvalidHierarchy)
	}
	if len(bones) > MaxBones {
		return nil, fmt.Errorf("skeleton %q: %w: %d bones exceeds %d", id, ErrInvalidHierarchy, len(bones), MaxBones)
	}

	s := &Skeleton{
		ID:           id,
		bones:        make([]Bone, len(bones)),
		refComponent: make([]math.Mat4, len(bones)),
		restPose:     make([]math.Mat4, len(bones)),
		bind:         make([]math.Mat4, len(bones)),
		byName:       make(map[string]int, len(bones)),
	}
	copy(s.bones, bones)

	joints := make([]math.Vec3, len(bones))
	for i := range s.bones {
		b := &s.bones[i]
		if b.Parent < NoParent || int(b.Parent) >= i {
			return nil, fmt.Errorf("skeleton %q: %w: bone %d (%s) has parent %d",
				id, ErrInvalidHierarchy, i, b.Name, b.Parent)
		}
		b.Local.Rotation = b.Local.Rotation.Normalize()

		local := b.Local.ToMat4()
		if b.Parent == NoParent {
			s.refComponent[i] = local
		} else {
			s.refComponent[i] = s.refComponent[b.Parent].MulAffine(local)
		}
		if b.InverseBind == (math.Mat4{}) {
			b.InverseBind = s.refComponent[i].Inverse()
		}
		s.restPose[i] = s.refComponent[i].MulAffine(b.InverseBind)
		s.bind[i] = b.InverseBind.Inverse()
		if b.Name != "" {
			if _, dup := s.byName[b.Name]; !dup {
				s.byName[b.Name] = i
			}
		}
		joints[i] = s.refComponent[i].Translation()
	}
	s.bounds = math.SphereFromPoints(joints)

	return s, nil
}

// BoneCount returns the number of bones.
func (s *Skeleton) BoneCount() int { return len(s.bones) }

// Bone returns bone i.
func (s *Skeleton) Bone(i int) *Bone { return &s.bones[i] }

// Parent returns the parent index of bone i.
func (s *Skeleton) Parent(i int) int32 { return s.bones[i].Parent }

// InverseBind returns the inverse bind matrix of bone i.
func (s *Skeleton) InverseBind(i int) math.Mat4 { return s.bones[i].InverseBind }

// Bind returns the bind matrix of bone i, mapping bone space into mesh space.
func (s *Skeleton) Bind(i int) math.Mat4 { return s.bind[i] }

// BoneIndex returns the index of the first bone called name.
func (s *Skeleton) BoneIndex(name string) (int, bool) {
	i, ok := s.byName[name]
	return i, ok
}

// ReferenceLocal returns the reference-pose local transform of bone i.
func (s *Skeleton) ReferenceLocal(i int) math.Transform { return s.bones[i].Local }

// RestPose returns the skinning-space reference pose. Callers must not modify it.
func (s *Skeleton) RestPose() []math.Mat4 { return s.restPose }

// Bounds returns the sphere around the reference-pose joints.
func (s *Skeleton) Bounds() math.Sphere { return s.bounds }

// Retain adds a reference.
func (s *Skeleton) Retain() { s.refs.Add(1) }

// Release drops a reference.
func (s *Skeleton) Release() { s.refs.Add(-1) }

// Refs returns the current reference count.
func (s *Skeleton) Refs() int32 { return s.refs.Load() }
