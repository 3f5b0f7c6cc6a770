// Package wgpusubmit uploads packed frames into a WebGPU storage buffer.
package wgpusubmit

import (
	"context"
	"fmt"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
	"go.uber.org/zap"

	"github.com/Faultbox/throng/internal/gpubuf"
	"github.com/Faultbox/throng/internal/logger"
)

// DrawFunc records the draw for one batch. first is the index of the batch's
// first record in the storage buffer.
type DrawFunc func(b gpubuf.Batch, first int)

// Device is the part of *wgpu.Device the host uses.
type Device interface {
	CreateBuffer(*wgpu.BufferDescriptor) (*wgpu.Buffer, error)
}

// Queue is the part of *wgpu.Queue the host uses.
type Queue interface {
	WriteBuffer(buffer *wgpu.Buffer, offset uint64, data []byte) error
}

// Host is a bridge host backed by a storage buffer.
type Host struct {
	mu     sync.Mutex
	device Device
	queue  Queue
	log    *zap.Logger

	buf     *wgpu.Buffer
	size    int
	release func(*wgpu.Buffer)

	// OnRecreate runs after the storage buffer is replaced, so bind groups
	// referencing it can be rebuilt.
	OnRecreate func(*wgpu.Buffer)
	Draw       DrawFunc
}

// New creates a host on device. The buffer is created on the first submit.
func New(device Device, queue Queue, log *zap.Logger) *Host {
	log = logger.OrNop(log)
	return &Host{device: device, queue: queue, log: log, release: (*wgpu.Buffer).Release}
}

// Buffer returns the current storage buffer, nil before the first submit.
func (h *Host) Buffer() *wgpu.Buffer {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.buf
}

// Submit writes f into the storage buffer and records its batches.
func (h *Host) Submit(ctx context.Context, f *gpubuf.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(f.Data) == 0 {
		return nil
	}

	h.mu.Lock()
	if err := h.ensure(len(f.Data), f.Layout.Stride); err != nil {
		h.mu.Unlock()
		return err
	}
	err := h.queue.WriteBuffer(h.buf, 0, f.Data)
	h.mu.Unlock()
	if err != nil {
		return fmt.Errorf("write instance buffer: %w", err)
	}

	if h.Draw != nil {
		for _, b := range f.Batches {
			h.Draw(b, b.Offset/b.Stride)
		}
	}
	return nil
}

// ensure grows the buffer geometrically; storage buffers cannot be resized,
// so growth recreates it.
func (h *Host) ensure(n, stride int) error {
	if n <= h.size {
		return nil
	}
	size := max(h.size, stride)
	for size < n {
		size *= 2
	}
	buf, err := h.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label:            "Crowd Instance Buffer",
		Size:             uint64(size),
		Usage:            wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
		MappedAtCreation: false,
	})
	if err != nil {
		return fmt.Errorf("create instance buffer (%d bytes): %w", size, err)
	}
	h.log.Debug("recreated storage buffer", zap.Int("from", h.size), zap.Int("to", size))
	if h.buf != nil {
		h.release(h.buf)
	}
	h.buf = buf
	h.size = size
	if h.OnRecreate != nil {
		h.OnRecreate(buf)
	}
	return nil
}

// Release frees the storage buffer.
func (h *Host) Release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.buf != nil {
		h.release(h.buf)
		h.buf = nil
		h.size = 0
	}
}
