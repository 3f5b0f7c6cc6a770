package asset

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/Faultbox/throng/pkg/math"
)

// Notify is a named event placed on a clip timeline.
type Notify struct {
	Time float32
	Name string
}

// Clip is a baked animation: uniformly sampled per-bone transforms.
// Keys are frame-major, so one frame's bones are contiguous.
type Clip struct {
	ID         string
	SkeletonID string
	SampleRate float32 // frames per second
	Duration   float32 // time of the last frame
	Loop       bool    // default loop mode for plays that do not override it
	Notifies   []Notify

	boneCount int
	frames    int
	keys      []math.Transform

	refs atomic.Int32
}

// ClipOption configures a clip at construction.
type ClipOption func(*Clip)

// WithLoop sets the default loop mode.
func WithLoop(loop bool) ClipOption {
	return func(c *Clip) { c.Loop = loop }
}

// WithNotifies attaches timeline events.
func WithNotifies(n ...Notify) ClipOption {
	return func(c *Clip) { c.Notifies = append(c.Notifies, n...) }
}

// NewClip builds a clip from frame-major keys (len(keys) = frames * boneCount).
// Duration is (frames-1) / sampleRate.
func NewClip(id, skeletonID string, sampleRate float32, boneCount int, keys []math.Transform, opts ...ClipOption) (*Clip, error) {
	if boneCount <= 0 || boneCount > MaxBones {
		return nil, fmt.Errorf("clip %q: %w: bone count %d", id, ErrInvalidClip, boneCount)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("clip %q: %w: sample rate %v", id, ErrInvalidClip, sampleRate)
	}
	if len(keys) == 0 || len(keys)%boneCount != 0 {
		return nil, fmt.Errorf("clip %q: %w: %d keys is not a multiple of %d bones", id, ErrInvalidClip, len(keys), boneCount)
	}

	c := &Clip{
		ID:         id,
		SkeletonID: skeletonID,
		SampleRate: sampleRate,
		boneCount:  boneCount,
		frames:     len(keys) / boneCount,
		keys:       make([]math.Transform, len(keys)),
	}
	for i, k := range keys {
		k.Rotation = k.Rotation.Normalize()
		c.keys[i] = k
	}
	c.Duration = float32(c.frames-1) / sampleRate

	for _, opt := range opts {
		opt(c)
	}
	for _, n := range c.Notifies {
		if n.Time < 0 || n.Time > c.Duration {
			return nil, fmt.Errorf("clip %q: %w: notify %q at %v outside [0, %v]", id, ErrInvalidClip, n.Name, n.Time, c.Duration)
		}
	}
	sort.SliceStable(c.Notifies, func(i, j int) bool { return c.Notifies[i].Time < c.Notifies[j].Time })

	return c, nil
}

// BoneCount returns the number of bones per frame.
func (c *Clip) BoneCount() int { return c.boneCount }

// Frames returns the number of baked frames.
func (c *Clip) Frames() int { return c.frames }

// Frame returns the bone keys of frame f.
func (c *Clip) Frame(f int) []math.Transform {
	return c.keys[f*c.boneCount : (f+1)*c.boneCount]
}

// Key returns one bone key.
func (c *Clip) Key(frame, bone int) math.Transform {
	return c.keys[frame*c.boneCount+bone]
}

// Retain adds a reference.
func (c *Clip) Retain() { c.refs.Add(1) }

// Release drops a reference.
func (c *Clip) Release() { c.refs.Add(-1) }

// Refs returns the current reference count.
func (c *Clip) Refs() int32 { return c.refs.Load() }
