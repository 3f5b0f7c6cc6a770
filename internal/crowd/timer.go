package crowd

import (
	"cmp"
	"errors"
	"slices"

	"github.com/Faultbox/throng/internal/pool"
)

// TimerFunc is called after the pass in which an instance's timer expired.
type TimerFunc func(pool.Handle)

type timer struct {
	h         pool.Handle
	interval  float32
	remaining float32
	loop      bool
	fn        TimerFunc
}

// SetTimer calls fn once interval seconds of world time have passed, and
// again every interval if loop is set. An instance has at most one timer; a
// new one replaces it and an interval <= 0 clears it. Timers die with their
// instance.
func (w *World) SetTimer(h pool.Handle, interval float32, loop bool, fn TimerFunc) error {
	if fn == nil && interval > 0 {
		return errors.New("set timer: nil func")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.pool.Get(h); err != nil {
		return err
	}
	if interval <= 0 {
		delete(w.timers, h)
		return nil
	}
	if w.timers == nil {
		w.timers = make(map[pool.Handle]*timer)
	}
	w.timers[h] = &timer{h: h, interval: interval, remaining: interval, loop: loop, fn: fn}
	return nil
}

// ClearTimer stops the instance's timer, if any.
func (w *World) ClearTimer(h pool.Handle) {
	w.mu.Lock()
	delete(w.timers, h)
	w.mu.Unlock()
}

// tickTimers counts every timer down by dt and returns the ones that fired,
// ordered by slot. A looping timer fires at most once per pass and carries
// the overshoot into its next interval.
func (w *World) tickTimers(dt float32) []*timer {
	var fired []*timer
	for h, t := range w.timers {
		if !w.pool.Valid(h) {
			delete(w.timers, h)
			continue
		}
		t.remaining -= dt
		if t.remaining > 0 {
			continue
		}
		fired = append(fired, t)
		if !t.loop {
			delete(w.timers, h)
			continue
		}
		t.remaining = max(t.remaining+t.interval, 0)
	}
	slices.SortFunc(fired, func(a, b *timer) int { return cmp.Compare(a.h.Index, b.h.Index) })
	return fired
}
