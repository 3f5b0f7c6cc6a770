package cull

import (
	"fmt"
)

// Metric selects what the threshold table is measured in.
type Metric uint8

const (
	// MetricDistance compares world distance; thresholds increase.
	MetricDistance Metric = iota
	// MetricScreenSize compares projected radius as a fraction of half the
	// screen height; thresholds decrease.
	MetricScreenSize
)

// ParseMetric maps the config spelling to a Metric.
func ParseMetric(s string) (Metric, error) {
	switch s {
	case "", "distance":
		return MetricDistance, nil
	case "screen_size":
		return MetricScreenSize, nil
	default:
		return 0, fmt.Errorf("unknown lod metric %q", s)
	}
}

// MaxTiers bounds the threshold table.
const MaxTiers = 8

// table holds thresholds in "coarseness" form: ascending, and a larger value
// means less detail. Screen sizes are negated to fit.
type table struct {
	th     []float32
	margin float32
}

func newTable(metric Metric, thresholds []float32, margin float32) (table, error) {
	if len(thresholds)+1 > MaxTiers {
		return table{}, fmt.Errorf("%d lod tiers exceeds %d", len(thresholds)+1, MaxTiers)
	}
	if margin < 0 {
		return table{}, fmt.Errorf("negative lod hysteresis %v", margin)
	}
	t := table{th: make([]float32, len(thresholds)), margin: margin}
	for i, v := range thresholds {
		if metric == MetricScreenSize {
			v = -v
		}
		t.th[i] = v
		if i > 0 && t.th[i] <= t.th[i-1] {
			return table{}, fmt.Errorf("lod thresholds %v are not monotonic", thresholds)
		}
	}
	return t, nil
}

func (t table) tiers() int { return len(t.th) + 1 }

// raw returns the tier for m without history. A value equal to a threshold
// stays on the more detailed side.
func (t table) raw(m float32) int {
	n := 0
	for _, th := range t.th {
		if m <= th {
			break
		}
		n++
	}
	return n
}

// next applies hysteresis to the previous tier: upgrades take effect at once,
// downgrades only while m is past the threshold by more than the margin.
func (t table) next(prev int, m float32) int {
	r := t.raw(m)
	if r <= prev {
		return r
	}
	tier := prev
	for tier < r && m > t.th[tier]+t.margin {
		tier++
	}
	return tier
}
