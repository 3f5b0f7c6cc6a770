package anim

import (
	"github.com/Faultbox/throng/internal/asset"
	"github.com/Faultbox/throng/internal/pool"
)

// EventKind distinguishes evaluator events.
type EventKind uint8

const (
	// EventFinished fires once when a non-looping clip reaches its end.
	EventFinished EventKind = iota
	// EventNotify fires when play time crosses a clip notify.
	EventNotify
)

func (k EventKind) String() string {
	switch k {
	case EventFinished:
		return "finished"
	case EventNotify:
		return "notify"
	default:
		return "unknown"
	}
}

// Event is emitted by Advance.
type Event struct {
	Kind   EventKind
	Handle pool.Handle
	Clip   *asset.Clip
	Name   string  // notify name
	Time   float32 // notify time on the clip timeline
}

// advance moves one instance forward by dt scaled seconds.
func advance(s *pool.InstanceState, dt float32, events []Event) []Event {
	if s.Paused || dt == 0 {
		return events
	}
	if s.BlendFrom != nil {
		advanceBlend(s, dt)
	}
	c := s.Clip
	if c == nil || s.PlayRate == 0 {
		return events
	}
	d := c.Duration
	delta := s.PlayRate * dt
	from := s.PlayTime

	if s.Loop {
		s.PlayTime = WrapTime(from+delta, d, true)
		if delta > 0 && len(c.Notifies) > 0 {
			events = crossNotifies(s, from, delta, d, true, events)
		}
		return events
	}

	if s.Finished {
		return events
	}
	to := from + delta
	switch {
	case to >= d:
		to = d
		s.Finished = true
		s.PoseDirty = true
	case to < 0:
		to = 0
	}
	s.PlayTime = to
	if delta > 0 && len(c.Notifies) > 0 {
		events = crossNotifies(s, from, to-from, d, false, events)
	}
	if s.Finished {
		events = append(events, Event{Kind: EventFinished, Handle: s.Handle(), Clip: c})
	}
	return events
}

// crossNotifies emits notifies in (from, from+delta], unrolling one wrap for
// looping clips. A step of a whole duration or more fires each notify once.
func crossNotifies(s *pool.InstanceState, from, delta, d float32, loop bool, events []Event) []Event {
	to := from + delta
	wrapped := loop && to >= d
	rem := float32(0)
	if wrapped {
		rem = to - d
	}
	for _, n := range s.Clip.Notifies {
		hit := false
		switch {
		case loop && delta >= d:
			hit = true
		case wrapped:
			hit = (n.Time > from && n.Time <= d) || n.Time <= rem
		default:
			hit = n.Time > from && n.Time <= to
		}
		if hit {
			events = append(events, Event{
				Kind:   EventNotify,
				Handle: s.Handle(),
				Clip:   s.Clip,
				Name:   n.Name,
				Time:   n.Time,
			})
		}
	}
	return events
}

// advanceBlend runs the cross-fade clock and the source clip. The pose is
// resampled every frame until the fade is complete; the pool retires the
// source at the start of the following frame.
func advanceBlend(s *pool.InstanceState, dt float32) {
	if s.BlendElapsed >= s.BlendDuration {
		return
	}
	s.BlendElapsed = min(s.BlendElapsed+dt, s.BlendDuration)
	s.BlendFromTime = WrapTime(s.BlendFromTime+s.PlayRate*dt, s.BlendFrom.Duration, s.BlendFromLoop)
	s.PoseDirty = true
}
