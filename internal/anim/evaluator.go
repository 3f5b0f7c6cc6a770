// Package anim advances instance play time and bakes bone snapshots.
//
// Each frame runs in two passes over the pool's dense arena. Advance moves
// every live instance's clock and collects finish and notify events. Sample
// materialises skinning matrices, at a rate reduced by the LOD tier the
// culling pass picked for the instance. Both passes split the arena into
// contiguous ranges, one goroutine per range.
package anim

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/throng/internal/logger"
	"github.com/Faultbox/throng/internal/parallel"
	"github.com/Faultbox/throng/internal/pool"
)

// Config holds the evaluator tunables.
type Config struct {
	Workers int
	// SampleIntervals[tier] is the number of frames between samples for
	// instances drawn at that tier. Missing tiers use the last entry.
	SampleIntervals []int
	// CulledInterval applies to instances outside every view. Zero stops
	// sampling them until they are visible again.
	CulledInterval int
	TimeScale      float32
}

// Stats describes one Sample pass.
type Stats struct {
	Sampled  int
	Skipped  int
	Culled   int
	Duration time.Duration
}

// Evaluator owns the per-worker scratch and the frame counter.
type Evaluator struct {
	cfg   Config
	log   *zap.Logger
	frame uint64

	scratch []*workspace
	events  [][]Event
	stats   []Stats
	saved   []clock
}

// clock is the part of an instance Advance writes.
type clock struct {
	play, blendFrom, blendElapsed float32
	finished                      bool
}

// New creates an evaluator.
func New(cfg Config, log *zap.Logger) *Evaluator {
	log = logger.OrNop(log)
	if cfg.TimeScale == 0 {
		cfg.TimeScale = 1
	}
	if len(cfg.SampleIntervals) == 0 {
		cfg.SampleIntervals = []int{1}
	}
	return &Evaluator{cfg: cfg, log: log}
}

// Frame returns the number of Advance passes run so far.
func (e *Evaluator) Frame() uint64 { return e.frame }

// TimeScale returns the global play rate multiplier.
func (e *Evaluator) TimeScale() float32 { return e.cfg.TimeScale }

// SetTimeScale sets the global play rate multiplier.
func (e *Evaluator) SetTimeScale(s float32) { e.cfg.TimeScale = s }

func (e *Evaluator) prepare(chunks int) {
	for len(e.scratch) < chunks {
		e.scratch = append(e.scratch, new(workspace))
	}
	if cap(e.events) < chunks {
		e.events = make([][]Event, chunks)
		e.stats = make([]Stats, chunks)
	}
	e.events = e.events[:chunks]
	e.stats = e.stats[:chunks]
	for i := range e.events {
		e.events[i] = e.events[i][:0]
		e.stats[i] = Stats{}
	}
}

// Advance moves every live instance forward by dt seconds and returns the
// events raised, ordered by slot.
func (e *Evaluator) Advance(ctx context.Context, p *pool.Pool, dt float32) ([]Event, error) {
	e.frame++
	slots := p.Slots()
	e.save(slots)
	chunks, _ := parallel.Split(len(slots), e.cfg.Workers)
	e.prepare(chunks)

	scaled := dt * e.cfg.TimeScale
	err := parallel.For(ctx, len(slots), e.cfg.Workers, func(chunk, lo, hi int) error {
		ev := e.events[chunk]
		for i := lo; i < hi; i++ {
			if s := &slots[i]; s.Alive() {
				ev = advance(s, scaled, ev)
			}
		}
		e.events[chunk] = ev
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("advance: %w", err)
	}

	var out []Event
	for _, ev := range e.events {
		out = append(out, ev...)
	}
	return out, nil
}

func (e *Evaluator) save(slots []pool.InstanceState) {
	e.saved = slices.Grow(e.saved[:0], len(slots))[:len(slots)]
	for i := range slots {
		s := &slots[i]
		e.saved[i] = clock{
			play:         s.PlayTime,
			blendFrom:    s.BlendFromTime,
			blendElapsed: s.BlendElapsed,
			finished:     s.Finished,
		}
	}
}

// Rollback undoes the last Advance after a failed frame: every clock returns
// to where it was, and poses sampled since are marked for resampling. The
// pool must not have been mutated in between.
func (e *Evaluator) Rollback(p *pool.Pool) {
	slots := p.Slots()
	for i := range min(len(slots), len(e.saved)) {
		s := &slots[i]
		if !s.Alive() {
			continue
		}
		c := e.saved[i]
		s.PlayTime = c.play
		s.BlendFromTime = c.blendFrom
		s.BlendElapsed = c.blendElapsed
		s.Finished = c.finished
		s.PoseDirty = true
	}
	e.saved = e.saved[:0]
	if e.frame > 0 {
		e.frame--
	}
	e.log.Debug("frame rolled back", zap.Uint64("frame", e.frame+1))
}

// Sample refreshes the bone snapshots that are due this frame.
func (e *Evaluator) Sample(ctx context.Context, p *pool.Pool) (Stats, error) {
	start := time.Now()
	slots := p.Slots()
	chunks, _ := parallel.Split(len(slots), e.cfg.Workers)
	e.prepare(chunks)

	err := parallel.For(ctx, len(slots), e.cfg.Workers, func(chunk, lo, hi int) error {
		ws := e.scratch[chunk]
		st := &e.stats[chunk]
		for i := lo; i < hi; i++ {
			s := &slots[i]
			if !s.Alive() {
				continue
			}
			culled := s.LOD.Culled
			if culled {
				st.Culled++
			}
			if !e.due(s, uint64(i), culled) {
				st.Skipped++
				continue
			}
			sampleInstance(ws, s)
			s.LastSampled = e.frame
			s.PoseDirty = false
			st.Sampled++
		}
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("sample: %w", err)
	}

	var total Stats
	for _, st := range e.stats {
		total.Sampled += st.Sampled
		total.Skipped += st.Skipped
		total.Culled += st.Culled
	}
	total.Duration = time.Since(start)
	return total, nil
}

// due decides whether slot i samples this frame. Intervals are staggered by
// slot so a tier's work spreads evenly across frames.
func (e *Evaluator) due(s *pool.InstanceState, slot uint64, culled bool) bool {
	if culled {
		iv := e.cfg.CulledInterval
		if iv <= 0 {
			return false
		}
		return s.PoseDirty || (e.frame+slot)%uint64(iv) == 0
	}
	if s.PoseDirty || !s.LOD.Valid {
		return true
	}
	iv := e.interval(int(s.LOD.Drawn))
	if iv <= 1 {
		return true
	}
	return (e.frame+slot)%uint64(iv) == 0 || e.frame-s.LastSampled >= uint64(iv)
}

func (e *Evaluator) interval(tier int) int {
	if tier >= len(e.cfg.SampleIntervals) {
		tier = len(e.cfg.SampleIntervals) - 1
	}
	return e.cfg.SampleIntervals[tier]
}
