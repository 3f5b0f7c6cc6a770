// Package main shows the benchmark crowd in a window.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/throng/internal/bench"
	"github.com/Faultbox/throng/internal/config"
	"github.com/Faultbox/throng/internal/crowd"
	"github.com/Faultbox/throng/internal/cull"
	"github.com/Faultbox/throng/internal/gpubuf"
	"github.com/Faultbox/throng/internal/logger"
	"github.com/Faultbox/throng/internal/viewer"
)

func main() {
	config.ParseFlags()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	// The shader fetches whole texels.
	cfg.Features.ManualVertexFetch = true

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("=== throng crowdview ===")

	if err := run(cfg); err != nil {
		logger.Error("viewer error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("viewer closed normally")
}

func run(cfg *config.Config) error {
	win, err := viewer.NewWindow(viewer.WindowConfig{
		Title:  "throng",
		Width:  cfg.Viewer.Width,
		Height: cfg.Viewer.Height,
		VSync:  cfg.Viewer.VSync,
	}, logger.Component("window"))
	if err != nil {
		return err
	}
	defer win.Close()

	layout, err := gpubuf.NewLayout(gpubuf.Features{
		ExtraBoneInfluence: cfg.Features.ExtraBoneInfluence,
		ManualVertexFetch:  cfg.Features.ManualVertexFetch,
		GPUScene:           cfg.Features.GPUScene,
	}, cfg.Buffer.MaxBones, cfg.Buffer.CustomDataFloats)
	if err != nil {
		return err
	}
	rend, err := viewer.NewRenderer(layout, logger.Component("renderer"))
	if err != nil {
		return err
	}
	defer rend.Close()

	w, err := crowd.New(cfg,
		crowd.WithHost(rend.Host()),
		crowd.WithLogger(logger.Component("crowd")))
	if err != nil {
		return err
	}
	if err := bench.RegisterAssets(w.Store()); err != nil {
		return err
	}
	if _, err := bench.Populate(w, cfg.Bench); err != nil {
		return err
	}

	cam := viewer.NewOrbitCamera(cfg.Bench.MinDistance * 4)
	ctx := context.Background()
	last := time.Now()
	var frames int
	var worst time.Duration
	for {
		in := viewer.Poll()
		if in.Quit {
			break
		}
		cam.HandleDrag(in.DragX, in.DragY)
		cam.HandleZoom(in.Zoom)
		cam.HandleMovement(in.Forward, in.Right)
		switch {
		case in.TogglePause:
			if w.TimeScale() == 0 {
				w.SetTimeScale(1)
			} else {
				w.SetTimeScale(0)
			}
		case in.Faster:
			w.SetTimeScale(w.TimeScale() * 2)
		case in.Slower:
			w.SetTimeScale(w.TimeScale() / 2)
		}

		now := time.Now()
		dt := float32(now.Sub(last).Seconds())
		last = now

		width, height := win.Size()
		view, viewProj := cam.View(float32(width) / float32(max(height, 1)))

		rend.Begin(width, height, viewProj)
		st, err := w.Tick(ctx, dt, []cull.View{view})
		if err != nil {
			logger.Warn("frame error", zap.Error(err))
		}
		win.SwapBuffers()

		frames++
		worst = max(worst, st.Duration)
		if frames%60 == 0 {
			win.SetTitle(fmt.Sprintf("throng - %d live, %d visible, tiers %v, bias %d, worst pass %v",
				st.Live, st.Visible, st.Tiers, st.LODBias, worst.Round(time.Microsecond)))
			worst = 0
		}
	}
	return nil
}
