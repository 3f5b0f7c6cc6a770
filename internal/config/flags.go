package config

import "flag"

var (
	flagConfig    = flag.String("config", "", "Path to config file")
	flagDebug     = flag.Bool("debug", false, "Enable debug logging")
	flagInstances = flag.Int("instances", 0, "Number of instances to spawn")
	flagWorkers   = flag.Int("workers", 0, "Evaluation worker count (0 = GOMAXPROCS)")
	flagFrames    = flag.Int("frames", 0, "Frames to simulate (crowdbench)")
	flagMetrics   = flag.String("metrics", "", "Prometheus listen address, e.g. :9100")
	flagLogFile   = flag.String("log-file", "", "Write logs to this file as well")
	flagHost      = flag.String("host", "", "Frame upload target for crowdbench: discard or wgpu")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagInstances > 0 {
		cfg.Bench.Instances = *flagInstances
	}
	if *flagWorkers > 0 {
		cfg.Crowd.Workers = *flagWorkers
	}
	if *flagFrames > 0 {
		cfg.Bench.Frames = *flagFrames
	}
	if *flagMetrics != "" {
		cfg.Metrics.Listen = *flagMetrics
	}
	if *flagLogFile != "" {
		cfg.Logging.LogFile = *flagLogFile
	}
	if *flagHost != "" {
		cfg.Bench.Host = *flagHost
	}
}
