package pool

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/throng/internal/asset"
	"github.com/Faultbox/throng/internal/logger"
	"github.com/Faultbox/throng/pkg/math"
)

// Pool owns instance lifecycle. It is not safe for concurrent mutation: the
// frame pass and control calls must be serialised by the caller, and the
// evaluator only touches slots inside the slice it was handed.
type Pool struct {
	slots []InstanceState
	gens  []uint32
	free  []uint32
	live  int

	capacity     int
	customFloats int
	maxBones     int
	log          *zap.Logger

	attached int    // instances with a parent
	stamp    uint64 // attachment resolve pass
}

// Option configures a Pool.
type Option func(*Pool)

// WithCapacity sets a hard slot ceiling. Zero means unbounded.
func WithCapacity(n int) Option {
	return func(p *Pool) { p.capacity = n }
}

// WithCustomData reserves n custom floats per instance.
func WithCustomData(n int) Option {
	return func(p *Pool) { p.customFloats = n }
}

// WithMaxBones rejects skeletons with more than n bones, the most an
// instance record can carry. Zero means no limit.
func WithMaxBones(n int) Option {
	return func(p *Pool) { p.maxBones = n }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pool) { p.log = l }
}

// New creates an empty pool.
func New(opts ...Option) *Pool {
	p := &Pool{}
	for _, opt := range opts {
		opt(p)
	}
	p.log = logger.OrNop(p.log)
	if p.capacity > 0 {
		p.slots = make([]InstanceState, 0, p.capacity)
		p.gens = make([]uint32, 0, p.capacity)
	}
	return p
}

// Allocate creates an instance of skel playing clip (nil clip holds the
// reference pose). Freed slots are reused most-recent first.
func (p *Pool) Allocate(skel *asset.Skeleton, clip *asset.Clip) (Handle, error) {
	if skel == nil {
		return Handle{}, ErrNoSkeleton
	}
	if p.maxBones > 0 && skel.BoneCount() > p.maxBones {
		return Handle{}, fmt.Errorf("%w: %q has %d bones, records hold %d",
			ErrSkeletonTooLarge, skel.ID, skel.BoneCount(), p.maxBones)
	}
	if clip != nil {
		if err := asset.CheckTopology(skel, clip); err != nil {
			return Handle{}, err
		}
	}

	var idx uint32
	if n := len(p.free); n > 0 {
		idx = p.free[n-1]
		p.free = p.free[:n-1]
	} else {
		if p.capacity > 0 && len(p.slots) >= p.capacity {
			return Handle{}, fmt.Errorf("%w: %d slots", ErrCapacityExceeded, p.capacity)
		}
		idx = uint32(len(p.slots))
		p.slots = append(p.slots, InstanceState{})
		p.gens = append(p.gens, 1)
	}

	h := Handle{Index: idx, Generation: p.gens[idx]}
	s := &p.slots[idx]
	s.reset(h, skel, clip, p.customFloats)
	p.live++
	return h, nil
}

func (s *InstanceState) reset(h Handle, skel *asset.Skeleton, clip *asset.Clip, customFloats int) {
	pose := append(s.Pose[:0], skel.RestPose()...)
	custom := s.CustomData[:0]
	for i := 0; i < customFloats; i++ {
		custom = append(custom, 0)
	}

	*s = InstanceState{
		handle:        h,
		alive:         true,
		Skeleton:      skel,
		Clip:          clip,
		PlayRate:      1,
		Transform:     math.TransformIdentity(),
		PrevTransform: math.TransformIdentity(),
		Visible:       true,
		LODOverride:   NoLODOverride,
		Pose:          pose,
		PoseDirty:     true,
		CustomData:    custom,
	}
	skel.Retain()
	if clip != nil {
		clip.Retain()
		s.Loop = clip.Loop
	}
}

// Release frees the instance. The handle is invalid as soon as this returns.
func (p *Pool) Release(h Handle) error {
	s, err := p.Get(h)
	if err != nil {
		return err
	}
	s.endBlend()
	if s.Clip != nil {
		s.Clip.Release()
	}
	if !s.Parent.IsZero() {
		p.attached--
	}
	s.Skeleton.Release()
	s.alive = false
	s.Skeleton = nil
	s.Clip = nil

	p.gens[h.Index] = nextGeneration(p.gens[h.Index])
	p.free = append(p.free, h.Index)
	p.live--
	return nil
}

// Get resolves a handle.
func (p *Pool) Get(h Handle) (*InstanceState, error) {
	if int(h.Index) >= len(p.slots) {
		return nil, fmt.Errorf("%w: handle %s", ErrNotFound, h)
	}
	s := &p.slots[h.Index]
	if !s.alive || s.handle.Generation != h.Generation {
		return nil, fmt.Errorf("%w: handle %s", ErrStaleHandle, h)
	}
	return s, nil
}

// Valid reports whether h addresses a live instance.
func (p *Pool) Valid(h Handle) bool {
	_, err := p.Get(h)
	return err == nil
}

// Slots returns the dense arena, dead slots included. Workers partition it
// into contiguous ranges; check Alive before use.
func (p *Pool) Slots() []InstanceState { return p.slots }

// Live returns the number of live instances.
func (p *Pool) Live() int { return p.live }

// Len returns the arena length.
func (p *Pool) Len() int { return len(p.slots) }

// Each calls fn for every live instance in slot order.
func (p *Pool) Each(fn func(*InstanceState)) {
	for i := range p.slots {
		if p.slots[i].alive {
			fn(&p.slots[i])
		}
	}
}

// BeginFrame latches last frame's transforms for motion vectors and retires
// cross-fades that completed last frame.
func (p *Pool) BeginFrame() {
	for i := range p.slots {
		if s := &p.slots[i]; s.alive {
			s.PrevTransform = s.Transform
			if s.BlendFrom != nil && s.BlendElapsed >= s.BlendDuration {
				s.endBlend()
			}
		}
	}
}

// ExpireLifespans counts lifespans down by dt and releases the instances that
// ran out, returning their (now stale) handles.
func (p *Pool) ExpireLifespans(dt float32) []Handle {
	var expired []Handle
	for i := range p.slots {
		s := &p.slots[i]
		if !s.alive || s.Lifespan <= 0 {
			continue
		}
		s.Lifespan -= dt
		if s.Lifespan <= 0 {
			expired = append(expired, s.handle)
		}
	}
	for _, h := range expired {
		_ = p.Release(h)
	}
	if len(expired) > 0 {
		p.log.Debug("lifespans expired", zap.Int("count", len(expired)))
	}
	return expired
}
