// Package metrics exports per-frame crowd statistics to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "throng"

// Frame is what one pass reports.
type Frame struct {
	Live           int
	Visible        int
	TierVisible    []int
	LODBias        int
	BufferBytes    int
	Sampled        int
	Skipped        int
	Dropped        int
	SubmitFailed   bool
	FinishedEvents int
	NotifyEvents   int
	Duration       time.Duration
}

// Collector owns the crowd metrics on one registry.
type Collector struct {
	live        prometheus.Gauge
	visible     prometheus.Gauge
	tierVisible *prometheus.GaugeVec
	lodBias     prometheus.Gauge
	bufferBytes prometheus.Gauge

	sampled        prometheus.Counter
	skipped        prometheus.Counter
	dropped        prometheus.Counter
	submitFailures prometheus.Counter
	events         *prometheus.CounterVec

	frameSeconds prometheus.Histogram
}

// New registers the crowd metrics on reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		live: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "instances_live",
			Help: "Live instances in the pool.",
		}),
		visible: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "instances_visible",
			Help: "Instances packed into the last frame.",
		}),
		tierVisible: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "instances_visible_by_tier",
			Help: "Instances drawn per LOD tier in the last frame.",
		}, []string{"tier"}),
		lodBias: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "lod_bias",
			Help: "Tiers added to every selection by frame-budget degradation.",
		}),
		bufferBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "instance_buffer_bytes",
			Help: "Bytes written to the instance buffer in the last frame.",
		}),
		sampled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "poses_sampled_total",
			Help: "Bone snapshots recomputed.",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "poses_skipped_total",
			Help: "Bone snapshots reused by sample-rate reduction.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "capacity_dropped_total",
			Help: "Visible instances dropped at the buffer ceiling.",
		}),
		submitFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "submit_failures_total",
			Help: "Frames the render host rejected.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "anim_events_total",
			Help: "Animation events dispatched.",
		}, []string{"kind"}),
		frameSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "frame_seconds",
			Help:    "Duration of one crowd pass.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 10),
		}),
	}
	reg.MustRegister(
		c.live, c.visible, c.tierVisible, c.lodBias, c.bufferBytes,
		c.sampled, c.skipped, c.dropped, c.submitFailures, c.events,
		c.frameSeconds,
	)
	return c
}

// Observe records one pass.
func (c *Collector) Observe(f Frame) {
	c.live.Set(float64(f.Live))
	c.visible.Set(float64(f.Visible))
	for tier, n := range f.TierVisible {
		c.tierVisible.WithLabelValues(strconv.Itoa(tier)).Set(float64(n))
	}
	c.lodBias.Set(float64(f.LODBias))
	c.bufferBytes.Set(float64(f.BufferBytes))
	c.sampled.Add(float64(f.Sampled))
	c.skipped.Add(float64(f.Skipped))
	c.dropped.Add(float64(f.Dropped))
	if f.SubmitFailed {
		c.submitFailures.Inc()
	}
	c.events.WithLabelValues("finished").Add(float64(f.FinishedEvents))
	c.events.WithLabelValues("notify").Add(float64(f.NotifyEvents))
	c.frameSeconds.Observe(f.Duration.Seconds())
}

// Handler serves g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
