package main

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"go.uber.org/zap"

	"github.com/Faultbox/throng/internal/bridge/wgpusubmit"
)

// gpuHost owns a headless WebGPU device whose queue receives every frame.
type gpuHost struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	*wgpusubmit.Host

	recreated int
}

// newGPUHost requests an adapter without a surface; frames are uploaded
// but nothing is drawn.
func newGPUHost(log *zap.Logger) (*gpuHost, error) {
	g := &gpuHost{instance: wgpu.CreateInstance(nil)}

	a, err := g.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: false,
	})
	if err != nil {
		g.instance.Release()
		return nil, fmt.Errorf("request adapter: %w", err)
	}
	g.adapter = a

	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{Label: "Crowdbench Device"})
	if err != nil {
		a.Release()
		g.instance.Release()
		return nil, fmt.Errorf("request device: %w", err)
	}
	g.device = d

	g.Host = wgpusubmit.New(d, d.GetQueue(), log)
	g.Host.OnRecreate = func(*wgpu.Buffer) { g.recreated++ }
	log.Info("webgpu device ready")
	return g, nil
}

// Close releases the buffer, then the device chain.
func (g *gpuHost) Close() {
	g.Host.Release()
	g.device.Release()
	g.adapter.Release()
	g.instance.Release()
}
