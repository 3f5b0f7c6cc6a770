// Package cull decides, every frame, which instances are drawn and at what
// detail tier.
//
// Visibility is a bounding sphere (skeleton reference bounds plus padding,
// placed by the instance transform) tested against each view's frustum
// planes. The tier comes from a monotonic threshold table with hysteresis;
// the tier from the previous frame lives in the instance's LODState.
package cull

import (
	"context"
	"fmt"
	gomath "math"

	"go.uber.org/zap"

	"github.com/Faultbox/throng/internal/logger"
	"github.com/Faultbox/throng/internal/parallel"
	"github.com/Faultbox/throng/internal/pool"
	"github.com/Faultbox/throng/pkg/math"
)

// Config holds selector tunables.
type Config struct {
	Metric     Metric
	Thresholds []float32
	Hysteresis float32
	// Scale multiplies distances (and divides screen sizes) before lookup;
	// above 1 everything drops detail sooner.
	Scale float32

	BoundsPadding   float32
	MinDrawDistance float32
	MaxDrawDistance float32 // 0 = unlimited

	Workers int
}

// Visible is one drawn instance for this frame.
type Visible struct {
	Handle   pool.Handle
	Slot     uint32
	Tier     uint8
	Distance float32
	Offset   int // byte offset of the instance record, set by the buffer builder
}

// Selector produces the per-frame visible list.
type Selector struct {
	cfg   Config
	table table
	bias  int
	log   *zap.Logger

	buckets [][][]Visible // [chunk][tier]
	out     []Visible
	counts  []int
}

// New validates cfg and creates a selector.
func New(cfg Config, log *zap.Logger) (*Selector, error) {
	log = logger.OrNop(log)
	t, err := newTable(cfg.Metric, cfg.Thresholds, cfg.Hysteresis)
	if err != nil {
		return nil, err
	}
	if cfg.Scale <= 0 {
		cfg.Scale = 1
	}
	if cfg.MaxDrawDistance > 0 && cfg.MaxDrawDistance <= cfg.MinDrawDistance {
		return nil, fmt.Errorf("max draw distance %v must exceed min %v", cfg.MaxDrawDistance, cfg.MinDrawDistance)
	}
	return &Selector{
		cfg:    cfg,
		table:  t,
		log:    log,
		counts: make([]int, t.tiers()),
	}, nil
}

// Tiers returns the number of LOD tiers.
func (s *Selector) Tiers() int { return s.table.tiers() }

// Bias returns the degradation bias.
func (s *Selector) Bias() int { return s.bias }

// SetBias shifts every drawn tier coarser by b, clamped to the last tier.
// Hysteresis state is kept unbiased so removing the bias restores it.
func (s *Selector) SetBias(b int) {
	s.bias = min(max(b, 0), s.table.tiers()-1)
}

// TierCounts returns how many instances the last Select drew per tier.
func (s *Selector) TierCounts() []int { return s.counts }

func (s *Selector) prepare(chunks int) {
	tiers := s.table.tiers()
	for len(s.buckets) < chunks {
		s.buckets = append(s.buckets, make([][]Visible, tiers))
	}
	for c := 0; c < chunks; c++ {
		for t := range s.buckets[c] {
			s.buckets[c][t] = s.buckets[c][t][:0]
		}
	}
}

// Select tests every live instance against views and returns the visible
// ones ordered by tier, then slot. The returned slice is reused by the next
// call.
func (s *Selector) Select(ctx context.Context, p *pool.Pool, views []View) ([]Visible, error) {
	slots := p.Slots()
	chunks, _ := parallel.Split(len(slots), s.cfg.Workers)
	s.prepare(chunks)

	err := parallel.For(ctx, len(slots), s.cfg.Workers, func(chunk, lo, hi int) error {
		buckets := s.buckets[chunk]
		for i := lo; i < hi; i++ {
			st := &slots[i]
			if !st.Alive() {
				continue
			}
			if v, ok := s.classify(st, views); ok {
				v.Slot = uint32(i)
				buckets[v.Tier] = append(buckets[v.Tier], v)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("select: %w", err)
	}

	s.out = s.out[:0]
	for t := range s.counts {
		start := len(s.out)
		for c := 0; c < chunks; c++ {
			s.out = append(s.out, s.buckets[c][t]...)
		}
		s.counts[t] = len(s.out) - start
	}
	return s.out, nil
}

// classify updates st.LOD and reports whether st is drawn.
func (s *Selector) classify(st *pool.InstanceState, views []View) (Visible, bool) {
	origin := st.Transform.Translation
	sphere := st.Skeleton.Bounds().Pad(s.cfg.BoundsPadding).Transformed(st.Transform)

	inView := false
	dist := float32(gomath.Inf(1))
	size := float32(0)
	for i := range views {
		v := &views[i]
		d := origin.Distance(v.Origin)
		if !v.Frustum.IntersectsSphere(sphere) {
			continue
		}
		inView = true
		dist = min(dist, d)
		if d > 0 {
			size = max(size, sphere.Radius*v.ProjScale/d)
		} else {
			size = float32(gomath.Inf(1))
		}
	}
	if inView {
		if dist < s.cfg.MinDrawDistance || (s.cfg.MaxDrawDistance > 0 && dist > s.cfg.MaxDrawDistance) {
			inView = false
		}
	}

	lod := &st.LOD
	lod.InView = inView
	lod.Distance = dist
	lod.Culled = !inView || !st.Visible
	if lod.Culled {
		return Visible{}, false
	}

	last := s.table.tiers() - 1
	switch {
	case st.LODOverride >= 0:
		lod.Tier = uint8(min(int(st.LODOverride), last))
	case !lod.Valid:
		lod.Tier = uint8(s.table.raw(s.metric(dist, size)))
	default:
		lod.Tier = uint8(s.table.next(int(lod.Tier), s.metric(dist, size)))
	}
	lod.Valid = true
	lod.Drawn = uint8(min(int(lod.Tier)+s.bias, last))

	return Visible{
		Handle:   st.Handle(),
		Tier:     lod.Drawn,
		Distance: dist,
	}, true
}

func (s *Selector) metric(dist, size float32) float32 {
	if s.cfg.Metric == MetricScreenSize {
		return -size / s.cfg.Scale
	}
	return dist * s.cfg.Scale
}

// Bounds returns the world-space culling sphere of st.
func (s *Selector) Bounds(st *pool.InstanceState) math.Sphere {
	return st.Skeleton.Bounds().Pad(s.cfg.BoundsPadding).Transformed(st.Transform)
}
