// Package crowd ties the pool, evaluator, culling, buffer builder and render
// bridge into one world driven by a single Tick per frame.
//
// Control calls and Tick are serialized by the world mutex. Event handlers run
// after the pass with the mutex released, so they may call back into the
// world; mutations that must land before the next pass can also be queued
// with Defer from any goroutine.
package crowd

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Faultbox/throng/internal/anim"
	"github.com/Faultbox/throng/internal/asset"
	"github.com/Faultbox/throng/internal/bridge"
	"github.com/Faultbox/throng/internal/config"
	"github.com/Faultbox/throng/internal/cull"
	"github.com/Faultbox/throng/internal/gpubuf"
	"github.com/Faultbox/throng/internal/logger"
	"github.com/Faultbox/throng/internal/metrics"
	"github.com/Faultbox/throng/internal/pool"
	"github.com/Faultbox/throng/internal/spatial"
)

// ErrSkeletonTooLarge is returned when a skeleton has more bones than an
// instance record can carry.
var ErrSkeletonTooLarge = pool.ErrSkeletonTooLarge

// Event is an animation event raised during a pass.
type Event = anim.Event

// Event kinds.
const (
	EventFinished = anim.EventFinished
	EventNotify   = anim.EventNotify
)

// EventHandler receives animation events after each pass.
type EventHandler func(Event)

// World owns every crowd subsystem.
type World struct {
	mu  sync.Mutex
	cfg *config.Config
	log *zap.Logger
	now func() time.Time

	store   *asset.Store
	pool    *pool.Pool
	eval    *anim.Evaluator
	sel     *cull.Selector
	builder *gpubuf.Builder
	bridge  *bridge.Bridge
	grid    *spatial.Grid
	metrics *metrics.Collector

	cmds   pool.CommandBuffer
	timers map[pool.Handle]*timer

	hmu      sync.RWMutex
	handlers []EventHandler

	bias       int
	underCount int
}

type options struct {
	host  bridge.Host
	log   *zap.Logger
	reg   prometheus.Registerer
	store *asset.Store
	now   func() time.Time
}

// Option customizes a World.
type Option func(*options)

// WithHost sets the render host frames are submitted to.
func WithHost(h bridge.Host) Option { return func(o *options) { o.host = h } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(o *options) { o.log = l } }

// WithRegisterer exports metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option { return func(o *options) { o.reg = reg } }

// WithStore shares an existing asset store.
func WithStore(s *asset.Store) Option { return func(o *options) { o.store = s } }

// WithClock replaces time.Now for frame timing.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// New builds a world from cfg, which must already be valid.
func New(cfg *config.Config, opts ...Option) (*World, error) {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	o.log = logger.OrNop(o.log)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if o.store == nil {
		o.store = asset.NewStore(o.log.Named("asset"))
	}

	metric, err := cull.ParseMetric(cfg.LOD.Metric)
	if err != nil {
		return nil, err
	}
	sel, err := cull.New(cull.Config{
		Metric:          metric,
		Thresholds:      cfg.LOD.Thresholds,
		Hysteresis:      cfg.LOD.Hysteresis,
		Scale:           cfg.LOD.Scale,
		BoundsPadding:   cfg.Culling.BoundsPadding,
		MinDrawDistance: cfg.Culling.MinDrawDistance,
		MaxDrawDistance: cfg.Culling.MaxDrawDistance,
		Workers:         cfg.Crowd.Workers,
	}, o.log.Named("cull"))
	if err != nil {
		return nil, fmt.Errorf("lod selector: %w", err)
	}

	features := gpubuf.Features{
		ExtraBoneInfluence: cfg.Features.ExtraBoneInfluence,
		ManualVertexFetch:  cfg.Features.ManualVertexFetch,
		GPUScene:           cfg.Features.GPUScene,
	}
	builder, err := gpubuf.NewBuilder(gpubuf.Config{
		Features:         features,
		MaxBones:         cfg.Buffer.MaxBones,
		CustomDataFloats: cfg.Buffer.CustomDataFloats,
		InitialCapacity:  cfg.Buffer.InitialCapacity,
		MaxBytes:         cfg.Buffer.MaxBytes,
		Workers:          cfg.Crowd.Workers,
	}, o.log.Named("gpubuf"))
	if err != nil {
		return nil, fmt.Errorf("instance buffer: %w", err)
	}

	w := &World{
		cfg:   cfg,
		log:   o.log,
		now:   o.now,
		store: o.store,
		pool: pool.New(
			pool.WithCapacity(cfg.Crowd.MaxInstances),
			pool.WithCustomData(cfg.Buffer.CustomDataFloats),
			pool.WithMaxBones(cfg.Buffer.MaxBones),
			pool.WithLogger(o.log.Named("pool")),
		),
		eval: anim.New(anim.Config{
			Workers:         cfg.Crowd.Workers,
			SampleIntervals: cfg.LOD.SampleIntervals,
			CulledInterval:  cfg.LOD.CulledInterval,
			TimeScale:       cfg.Crowd.TimeScale,
		}, o.log.Named("anim")),
		sel:     sel,
		builder: builder,
		bridge:  bridge.New(features, o.host, o.log.Named("bridge")),
	}
	if cfg.Spatial.Enabled {
		w.grid = spatial.NewGrid(cfg.Spatial.CellSize)
	}
	if o.reg != nil {
		w.metrics = metrics.New(o.reg)
	}

	w.log.Info("crowd world ready",
		zap.Int("lod_tiers", sel.Tiers()),
		zap.Int("record_stride", builder.Layout().Stride),
		zap.Bool("spatial", w.grid != nil))
	return w, nil
}

// Store returns the asset store instances resolve ids against.
func (w *World) Store() *asset.Store { return w.store }

// Bridge returns the render bridge.
func (w *World) Bridge() *bridge.Bridge { return w.bridge }

// Layout returns the instance record layout.
func (w *World) Layout() gpubuf.Layout { return w.builder.Layout() }

// OnEvent registers h for animation events.
func (w *World) OnEvent(h EventHandler) {
	w.hmu.Lock()
	w.handlers = append(w.handlers, h)
	w.hmu.Unlock()
}

// Defer queues cmd for the mutation phase of the next Tick. Safe from any
// goroutine, including event handlers.
func (w *World) Defer(cmd pool.Command) { w.cmds.Push(cmd) }

// Live returns the number of live instances.
func (w *World) Live() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pool.Live()
}

// LODBias returns the current frame-budget degradation.
func (w *World) LODBias() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.bias
}
