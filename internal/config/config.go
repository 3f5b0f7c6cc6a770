// Package config handles crowd engine configuration loading and management.
package config

import "time"

// Config holds all engine settings.
type Config struct {
	Crowd    CrowdConfig   `yaml:"crowd"`
	LOD      LODConfig     `yaml:"lod"`
	Culling  CullingConfig `yaml:"culling"`
	Buffer   BufferConfig  `yaml:"buffer"`
	Features FeatureConfig `yaml:"features"`
	Spatial  SpatialConfig `yaml:"spatial"`
	Metrics  MetricsConfig `yaml:"metrics"`
	Logging  LoggingConfig `yaml:"logging"`
	Bench    BenchConfig   `yaml:"bench"`
	Viewer   ViewerConfig  `yaml:"viewer"`
}

// CrowdConfig holds instance pool and frame pass settings.
type CrowdConfig struct {
	MaxInstances       int           `yaml:"max_instances"` // 0 = unbounded
	Workers            int           `yaml:"workers"`       // 0 = GOMAXPROCS
	FrameBudget        time.Duration `yaml:"frame_budget"`  // 0 disables degradation
	MaxLODBias         int           `yaml:"max_lod_bias"`
	BiasRecoveryFrames int           `yaml:"bias_recovery_frames"`
	TimeScale          float32       `yaml:"time_scale"`
}

// LODConfig holds the detail tier table.
type LODConfig struct {
	Metric          string    `yaml:"metric"`     // "distance" or "screen_size"
	Thresholds      []float32 `yaml:"thresholds"` // N-1 entries for N tiers
	Hysteresis      float32   `yaml:"hysteresis"`
	Scale           float32   `yaml:"scale"`
	SampleIntervals []int     `yaml:"sample_intervals"` // frames between samples, per tier
	CulledInterval  int       `yaml:"culled_interval"`  // 0 = never sample while culled
}

// CullingConfig holds visibility settings.
type CullingConfig struct {
	BoundsPadding   float32 `yaml:"bounds_padding"`
	MinDrawDistance float32 `yaml:"min_draw_distance"`
	MaxDrawDistance float32 `yaml:"max_draw_distance"` // 0 = unlimited
}

// BufferConfig holds instance buffer sizing.
type BufferConfig struct {
	InitialCapacity  int `yaml:"initial_capacity"` // instances
	MaxBytes         int `yaml:"max_bytes"`
	MaxBones         int `yaml:"max_bones"`
	CustomDataFloats int `yaml:"custom_data_floats"`
}

// FeatureConfig holds renderer feature flags. They shape the buffer layout
// and are read once at startup.
type FeatureConfig struct {
	ExtraBoneInfluence bool `yaml:"extra_bone_influence"`
	ManualVertexFetch  bool `yaml:"manual_vertex_fetch"`
	GPUScene           bool `yaml:"gpu_scene"`
}

// SpatialConfig holds spatial grid settings.
type SpatialConfig struct {
	Enabled  bool    `yaml:"enabled"`
	CellSize float32 `yaml:"cell_size"`
}

// MetricsConfig holds prometheus exposition settings.
type MetricsConfig struct {
	Listen string `yaml:"listen"` // empty disables the HTTP endpoint
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// BenchConfig holds the headless scenario used by crowdbench.
type BenchConfig struct {
	Instances   int     `yaml:"instances"`
	Frames      int     `yaml:"frames"`
	FrameDelta  float32 `yaml:"frame_delta"`
	MinDistance float32 `yaml:"min_distance"`
	MaxDistance float32 `yaml:"max_distance"`
	Seed        int64   `yaml:"seed"`
	Host        string  `yaml:"host"` // "discard" or "wgpu"
}

// ViewerConfig holds window settings for crowdview.
type ViewerConfig struct {
	Width  int  `yaml:"width"`
	Height int  `yaml:"height"`
	VSync  bool `yaml:"vsync"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Crowd: CrowdConfig{
			MaxInstances:       0,
			Workers:            0,
			FrameBudget:        4 * time.Millisecond,
			MaxLODBias:         2,
			BiasRecoveryFrames: 30,
			TimeScale:          1,
		},
		LOD: LODConfig{
			Metric:          "distance",
			Thresholds:      []float32{25, 75, 200},
			Hysteresis:      2.5,
			Scale:           1,
			SampleIntervals: []int{1, 2, 4, 8},
			CulledInterval:  0,
		},
		Culling: CullingConfig{
			BoundsPadding:   0.25,
			MinDrawDistance: 0,
			MaxDrawDistance: 0,
		},
		Buffer: BufferConfig{
			InitialCapacity:  1024,
			MaxBytes:         256 << 20,
			MaxBones:         64,
			CustomDataFloats: 4,
		},
		Features: FeatureConfig{
			ExtraBoneInfluence: false,
			ManualVertexFetch:  true,
			GPUScene:           false,
		},
		Spatial: SpatialConfig{
			Enabled:  true,
			CellSize: 4,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
		Bench: BenchConfig{
			Instances:   10000,
			Frames:      600,
			FrameDelta:  1.0 / 60,
			MinDistance: 5,
			MaxDistance: 500,
			Seed:        1,
			Host:        "discard",
		},
		Viewer: ViewerConfig{
			Width:  1280,
			Height: 720,
			VSync:  true,
		},
	}
}
