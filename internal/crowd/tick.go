package crowd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/throng/internal/anim"
	"github.com/Faultbox/throng/internal/cull"
	"github.com/Faultbox/throng/internal/gpubuf"
	"github.com/Faultbox/throng/internal/metrics"
)

// FrameStats summarizes one Tick.
type FrameStats struct {
	Frame     uint64
	Live      int
	Visible   int
	Tiers     []int
	Sampled   int
	Skipped   int
	Culled    int
	Events    int
	Expired   int
	Timers    int
	Bytes     int
	Dropped   int
	LODBias   int
	Submitted bool
	Duration  time.Duration
}

// Tick runs one frame: mutation phase, advance, select, sample, build,
// submit. dt is wall time in seconds.
//
// A failure in the core passes returns early without submitting, so the host
// keeps showing the previous frame, and the animation clocks are put back so
// the frame can be retried; lifespans and deferred commands stay applied. A
// buffer overflow or host rejection still completes the pass and is reported
// in the returned error.
//
// Event handlers run first, then expired timers.
func (w *World) Tick(ctx context.Context, dt float32, views []cull.View) (FrameStats, error) {
	w.mu.Lock()
	start := w.now()
	stats, events, fired, err := w.pass(ctx, dt, views)
	stats.Duration = w.now().Sub(start)
	w.adjustBias(stats.Duration)
	stats.LODBias = w.bias
	w.observe(&stats, events, err)
	w.mu.Unlock()

	w.dispatch(events)
	for _, t := range fired {
		t.fn(t.h)
	}
	return stats, err
}

func (w *World) pass(ctx context.Context, dt float32, views []cull.View) (FrameStats, []anim.Event, []*timer, error) {
	var st FrameStats

	expired := w.pool.ExpireLifespans(dt)
	st.Expired = len(expired)
	for _, err := range w.cmds.Apply(w.pool) {
		w.log.Warn("deferred command failed", zap.Error(err))
	}
	w.pool.BeginFrame()

	events, err := w.eval.Advance(ctx, w.pool, dt)
	if err != nil {
		w.eval.Rollback(w.pool)
		return st, nil, nil, err
	}
	st.Frame = w.eval.Frame()
	st.Events = len(events)
	st.Live = w.pool.Live()

	visible, err := w.sel.Select(ctx, w.pool, views)
	if err != nil {
		w.eval.Rollback(w.pool)
		return st, nil, nil, err
	}
	st.Visible = len(visible)
	st.Tiers = append([]int(nil), w.sel.TierCounts()...)

	ss, err := w.eval.Sample(ctx, w.pool)
	if err != nil {
		w.eval.Rollback(w.pool)
		return st, nil, nil, err
	}
	st.Sampled, st.Skipped, st.Culled = ss.Sampled, ss.Skipped, ss.Culled
	w.pool.UpdateAttachments()

	frame, buildErr := w.builder.Build(ctx, w.pool, visible)
	if frame == nil {
		w.eval.Rollback(w.pool)
		return st, nil, nil, buildErr
	}
	st.Bytes = len(frame.Data)
	st.Dropped = frame.Dropped

	var errs []error
	if buildErr != nil {
		errs = append(errs, buildErr)
	}
	if err := w.bridge.Submit(ctx, frame); err != nil {
		errs = append(errs, err)
	} else {
		st.Submitted = true
	}

	if w.grid != nil {
		w.grid.Rebuild(w.pool)
	}
	fired := w.tickTimers(dt)
	st.Timers = len(fired)
	return st, events, fired, errors.Join(errs...)
}

// adjustBias degrades detail one tier per over-budget pass and recovers one
// tier after BiasRecoveryFrames passes under budget.
func (w *World) adjustBias(took time.Duration) {
	budget := w.cfg.Crowd.FrameBudget
	if budget <= 0 {
		return
	}
	prev := w.bias
	if took > budget {
		w.underCount = 0
		w.bias = min(w.bias+1, w.cfg.Crowd.MaxLODBias)
	} else if w.bias > 0 {
		w.underCount++
		if w.underCount >= max(w.cfg.Crowd.BiasRecoveryFrames, 1) {
			w.underCount = 0
			w.bias--
		}
	}
	if w.bias != prev {
		w.sel.SetBias(w.bias)
		w.log.Debug("lod bias changed",
			zap.Int("bias", w.bias),
			zap.Duration("frame", took),
			zap.Duration("budget", budget))
	}
}

func (w *World) observe(st *FrameStats, events []anim.Event, err error) {
	if err != nil && !errors.Is(err, gpubuf.ErrCapacityExceeded) {
		w.log.Warn("frame pass failed", zap.Uint64("frame", st.Frame), zap.Error(err))
	}
	if w.metrics == nil {
		return
	}
	f := metrics.Frame{
		Live:         st.Live,
		Visible:      st.Visible - st.Dropped,
		TierVisible:  st.Tiers,
		LODBias:      st.LODBias,
		BufferBytes:  st.Bytes,
		Sampled:      st.Sampled,
		Skipped:      st.Skipped,
		Dropped:      st.Dropped,
		SubmitFailed: !st.Submitted,
		Duration:     st.Duration,
	}
	for _, ev := range events {
		switch ev.Kind {
		case anim.EventFinished:
			f.FinishedEvents++
		case anim.EventNotify:
			f.NotifyEvents++
		}
	}
	w.metrics.Observe(f)
}

func (w *World) dispatch(events []anim.Event) {
	if len(events) == 0 {
		return
	}
	w.hmu.RLock()
	handlers := w.handlers
	w.hmu.RUnlock()
	for _, ev := range events {
		for _, h := range handlers {
			h(ev)
		}
	}
}

// String describes the stats on one line for logs.
func (s FrameStats) String() string {
	return fmt.Sprintf("frame %d: live %d visible %d tiers %v sampled %d skipped %d bytes %d bias %d in %v",
		s.Frame, s.Live, s.Visible, s.Tiers, s.Sampled, s.Skipped, s.Bytes, s.LODBias, s.Duration)
}
