package pool

import (
	"fmt"

	"github.com/Faultbox/throng/internal/asset"
	"github.com/Faultbox/throng/pkg/math"
)

// PlayParams controls how a clip starts playing.
type PlayParams struct {
	Loop    bool
	Rate    float32
	StartAt float32 // seconds into the clip, clamped to its duration
	Unique  bool    // keep playing if this clip is already running

	// BlendTime cross-fades from the current clip over this many seconds.
	// Zero, or no current clip, switches at once.
	BlendTime float32
}

// DefaultPlayParams plays clip from the start at normal speed with its own loop mode.
func DefaultPlayParams(clip *asset.Clip) PlayParams {
	pp := PlayParams{Rate: 1}
	if clip != nil {
		pp.Loop = clip.Loop
	}
	return pp
}

// SetClip switches to clip from time zero, keeping the play rate.
func (p *Pool) SetClip(h Handle, clip *asset.Clip) error {
	s, err := p.Get(h)
	if err != nil {
		return err
	}
	pp := DefaultPlayParams(clip)
	pp.Rate = s.PlayRate
	return s.play(clip, pp)
}

// Play starts clip with explicit parameters.
func (p *Pool) Play(h Handle, clip *asset.Clip, pp PlayParams) error {
	s, err := p.Get(h)
	if err != nil {
		return err
	}
	if pp.Unique && clip != nil && s.Clip == clip && !s.Finished {
		return nil
	}
	return s.play(clip, pp)
}

func (s *InstanceState) play(clip *asset.Clip, pp PlayParams) error {
	if clip != nil {
		if err := asset.CheckTopology(s.Skeleton, clip); err != nil {
			return err
		}
		clip.Retain()
	}

	// A new play during a cross-fade fades from the clip being faded in.
	s.endBlend()
	if pp.BlendTime > 0 && s.Clip != nil && clip != nil {
		s.BlendFrom = s.Clip
		s.BlendFromTime = s.PlayTime
		s.BlendFromLoop = s.Loop
		s.BlendDuration = pp.BlendTime
	} else if s.Clip != nil {
		s.Clip.Release()
	}

	s.Clip = clip
	s.Loop = pp.Loop
	s.PlayRate = pp.Rate
	s.PlayTime = min(max(pp.StartAt, 0), s.Duration())
	s.Finished = false
	s.PoseDirty = true
	return nil
}

// SetPlayRate sets the playback rate.
func (p *Pool) SetPlayRate(h Handle, rate float32) error {
	s, err := p.Get(h)
	if err != nil {
		return err
	}
	s.PlayRate = rate
	return nil
}

// SetTransform places the instance in the world. Physics and VFX drivers
// push their results through here.
func (p *Pool) SetTransform(h Handle, t math.Transform) error {
	s, err := p.Get(h)
	if err != nil {
		return err
	}
	s.Transform = t
	return nil
}

// SetVisible toggles drawing without releasing the instance.
func (p *Pool) SetVisible(h Handle, visible bool) error {
	s, err := p.Get(h)
	if err != nil {
		return err
	}
	s.Visible = visible
	return nil
}

// SetPaused freezes or resumes play time.
func (p *Pool) SetPaused(h Handle, paused bool) error {
	s, err := p.Get(h)
	if err != nil {
		return err
	}
	s.Paused = paused
	return nil
}

// SetLODOverride pins the instance to tier, or clears the pin with NoLODOverride.
func (p *Pool) SetLODOverride(h Handle, tier int) error {
	s, err := p.Get(h)
	if err != nil {
		return err
	}
	if tier < NoLODOverride || tier > 127 {
		return fmt.Errorf("lod override %d out of range", tier)
	}
	s.LODOverride = int8(tier)
	return nil
}

// SetCustomData writes values starting at custom float index first.
func (p *Pool) SetCustomData(h Handle, first int, values ...float32) error {
	s, err := p.Get(h)
	if err != nil {
		return err
	}
	if first < 0 || first+len(values) > len(s.CustomData) {
		return fmt.Errorf("custom data [%d:%d] out of range (have %d)", first, first+len(values), len(s.CustomData))
	}
	copy(s.CustomData[first:], values)
	return nil
}

// SetUserFlags replaces the user flag bits carried into the instance record.
func (p *Pool) SetUserFlags(h Handle, flags uint32) error {
	s, err := p.Get(h)
	if err != nil {
		return err
	}
	s.UserFlags = flags
	return nil
}

// SetLifespan releases the instance automatically after seconds. Zero clears it.
func (p *Pool) SetLifespan(h Handle, seconds float32) error {
	s, err := p.Get(h)
	if err != nil {
		return err
	}
	s.Lifespan = max(seconds, 0)
	return nil
}

// Finished reports whether a non-looping clip has reached its end.
func (p *Pool) Finished(h Handle) (bool, error) {
	s, err := p.Get(h)
	if err != nil {
		return false, err
	}
	return s.Finished, nil
}
