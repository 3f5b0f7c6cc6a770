package pool

import (
	"github.com/Faultbox/throng/internal/asset"
	"github.com/Faultbox/throng/pkg/math"
)

// NoLODOverride leaves tier selection to the culling pass.
const NoLODOverride = -1

// LODState is the only memory the culling pass keeps across frames.
type LODState struct {
	Tier     uint8   // tier after hysteresis, before degradation bias
	Drawn    uint8   // tier actually drawn this frame
	Valid    bool    // Tier holds a selection result
	InView   bool    // inside at least one view this frame
	Culled   bool    // not drawn this frame (out of view or hidden)
	Distance float32 // to the closest view origin
}

// InstanceState is one live instance. Only the pool's control calls and the
// evaluator (play time, pose) write to it.
type InstanceState struct {
	handle Handle
	alive  bool

	Skeleton *asset.Skeleton
	Clip     *asset.Clip

	PlayTime float32
	PlayRate float32
	Loop     bool
	Paused   bool
	Finished bool

	// Blend target: while BlendFrom is set the pose cross-fades from
	// BlendFrom (still advancing at BlendFromTime) into Clip.
	BlendFrom     *asset.Clip
	BlendFromTime float32
	BlendFromLoop bool
	BlendElapsed  float32
	BlendDuration float32

	// Attachment: a child follows Parent's bone each frame.
	Parent     Handle // zero when unattached
	ParentBone int    // -1 follows the parent's origin
	Relative   math.Transform
	resolved   uint64

	Transform     math.Transform
	PrevTransform math.Transform
	Visible       bool
	LODOverride   int8
	LOD           LODState

	// Pose is the bone snapshot in skinning space; len == Skeleton.BoneCount().
	Pose        []math.Mat4
	LastSampled uint64
	PoseDirty   bool

	CustomData []float32
	UserFlags  uint32
	Lifespan   float32 // seconds left, 0 = unlimited
}

// Handle returns the handle that currently addresses this slot.
func (s *InstanceState) Handle() Handle { return s.handle }

// Alive reports whether the slot holds a live instance.
func (s *InstanceState) Alive() bool { return s.alive }

// Duration returns the current clip duration, 0 without a clip.
func (s *InstanceState) Duration() float32 {
	if s.Clip == nil {
		return 0
	}
	return s.Clip.Duration
}

// Blending reports whether the instance is cross-fading between clips.
func (s *InstanceState) Blending() bool { return s.BlendFrom != nil }

// BlendAlpha returns the weight of Clip in the current pose: 0 at the start
// of a cross-fade, 1 once it is complete or when not blending.
func (s *InstanceState) BlendAlpha() float32 {
	if s.BlendFrom == nil || s.BlendDuration <= 0 {
		return 1
	}
	return min(max(s.BlendElapsed/s.BlendDuration, 0), 1)
}

// endBlend drops the cross-fade source.
func (s *InstanceState) endBlend() {
	if s.BlendFrom != nil {
		s.BlendFrom.Release()
	}
	s.BlendFrom = nil
	s.BlendFromTime = 0
	s.BlendFromLoop = false
	s.BlendElapsed = 0
	s.BlendDuration = 0
}
