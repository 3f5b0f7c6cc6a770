// Package main runs the crowd headless and reports frame statistics.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/throng/internal/bench"
	"github.com/Faultbox/throng/internal/bridge"
	"github.com/Faultbox/throng/internal/config"
	"github.com/Faultbox/throng/internal/crowd"
	"github.com/Faultbox/throng/internal/gpubuf"
	"github.com/Faultbox/throng/internal/logger"
	"github.com/Faultbox/throng/internal/metrics"
)

func main() {
	config.ParseFlags()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("=== throng crowdbench ===")
	logger.Sugar.Debugf("Config: %+v", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("benchmark failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	var uploaded int64
	var host bridge.Host = bridge.HostFunc(func(_ context.Context, f *gpubuf.Frame) error {
		uploaded += int64(len(f.Data))
		return nil
	})
	if cfg.Bench.Host == "wgpu" {
		gh, err := newGPUHost(logger.Component("wgpu"))
		if err != nil {
			return err
		}
		defer func() {
			logger.Info("webgpu host closed", zap.Int("buffer_recreations", gh.recreated))
			gh.Close()
		}()
		host = bridge.HostFunc(func(ctx context.Context, f *gpubuf.Frame) error {
			uploaded += int64(len(f.Data))
			return gh.Submit(ctx, f)
		})
	}

	w, err := crowd.New(cfg,
		crowd.WithHost(host),
		crowd.WithLogger(logger.Component("crowd")),
		crowd.WithRegisterer(reg))
	if err != nil {
		return err
	}
	if err := bench.RegisterAssets(w.Store()); err != nil {
		return err
	}
	if _, err := bench.Populate(w, cfg.Bench); err != nil {
		return err
	}
	logger.Info("crowd populated",
		zap.Int("instances", w.Live()),
		zap.Int("record_stride", w.Layout().Stride))

	g, ctx := errgroup.WithContext(ctx)
	var srv *http.Server
	if cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(reg))
		srv = &http.Server{Addr: cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			logger.Info("serving metrics", zap.String("addr", cfg.Metrics.Listen))
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		if srv != nil {
			defer srv.Shutdown(context.Background())
		}
		start := time.Now()
		sum, err := bench.Run(ctx, w, cfg.Bench, logger.Component("bench"))
		if err != nil {
			return err
		}
		logger.Info("benchmark complete",
			zap.Int("frames", sum.Frames),
			zap.Int("live", sum.Live),
			zap.Float64("avg_visible", sum.AvgVisible),
			zap.Float64("avg_sampled", sum.AvgSampled),
			zap.Ints("tier_visible_total", sum.TierVisible),
			zap.Int("events", sum.Events),
			zap.Int("max_lod_bias", sum.MaxBias),
			zap.Int("frame_errors", sum.Errors),
			zap.Duration("avg_frame", sum.Avg),
			zap.Duration("max_frame", sum.Max),
			zap.Int64("bytes_uploaded", uploaded),
			zap.Duration("wall", time.Since(start)))
		return nil
	})
	return g.Wait()
}
