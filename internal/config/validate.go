package config

import (
	"errors"
	"fmt"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid config")

// Validate checks the values the engine cannot run with.
func (c *Config) Validate() error {
	switch c.LOD.Metric {
	case "distance", "screen_size":
	default:
		return fmt.Errorf("%w: lod.metric %q (want distance or screen_size)", ErrInvalid, c.LOD.Metric)
	}

	for i := 1; i < len(c.LOD.Thresholds); i++ {
		prev, cur := c.LOD.Thresholds[i-1], c.LOD.Thresholds[i]
		if c.LOD.Metric == "distance" && cur <= prev {
			return fmt.Errorf("%w: lod.thresholds must increase for distance (%v)", ErrInvalid, c.LOD.Thresholds)
		}
		if c.LOD.Metric == "screen_size" && cur >= prev {
			return fmt.Errorf("%w: lod.thresholds must decrease for screen_size (%v)", ErrInvalid, c.LOD.Thresholds)
		}
	}

	tiers := len(c.LOD.Thresholds) + 1
	if tiers > 8 {
		return fmt.Errorf("%w: at most 8 lod tiers, got %d", ErrInvalid, tiers)
	}
	if n := len(c.LOD.SampleIntervals); n != 0 && n != tiers {
		return fmt.Errorf("%w: lod.sample_intervals has %d entries for %d tiers", ErrInvalid, n, tiers)
	}
	for _, iv := range c.LOD.SampleIntervals {
		if iv < 1 {
			return fmt.Errorf("%w: lod.sample_intervals entries must be >= 1", ErrInvalid)
		}
	}
	if c.LOD.Hysteresis < 0 {
		return fmt.Errorf("%w: lod.hysteresis must be >= 0", ErrInvalid)
	}
	if c.LOD.Scale <= 0 {
		return fmt.Errorf("%w: lod.scale must be > 0", ErrInvalid)
	}

	if c.Culling.MaxDrawDistance > 0 && c.Culling.MaxDrawDistance <= c.Culling.MinDrawDistance {
		return fmt.Errorf("%w: culling.max_draw_distance must exceed min_draw_distance", ErrInvalid)
	}

	if c.Buffer.MaxBones < 1 || c.Buffer.MaxBones > 256 {
		return fmt.Errorf("%w: buffer.max_bones must be in [1, 256], got %d", ErrInvalid, c.Buffer.MaxBones)
	}
	if c.Buffer.InitialCapacity < 1 {
		return fmt.Errorf("%w: buffer.initial_capacity must be >= 1", ErrInvalid)
	}
	if c.Buffer.MaxBytes < 0 || c.Buffer.CustomDataFloats < 0 {
		return fmt.Errorf("%w: buffer sizes must be non-negative", ErrInvalid)
	}

	if c.Spatial.Enabled && c.Spatial.CellSize <= 0 {
		return fmt.Errorf("%w: spatial.cell_size must be > 0", ErrInvalid)
	}
	switch c.Bench.Host {
	case "", "discard", "wgpu":
	default:
		return fmt.Errorf("%w: bench.host %q (want discard or wgpu)", ErrInvalid, c.Bench.Host)
	}
	if c.Crowd.Workers < 0 || c.Crowd.MaxInstances < 0 || c.Crowd.MaxLODBias < 0 {
		return fmt.Errorf("%w: crowd counts must be non-negative", ErrInvalid)
	}
	return nil
}
