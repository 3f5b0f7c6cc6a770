// Package glsubmit uploads packed frames into an OpenGL texture buffer that
// the crowd vertex shader reads with texelFetch.
//
// All calls must be made on the thread that owns the GL context.
package glsubmit

import (
	"context"
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/zap"

	"github.com/Faultbox/throng/internal/gpubuf"
	"github.com/Faultbox/throng/internal/logger"
)

// DrawFunc issues the draw call for one batch. first is the index of the
// batch's first record in the buffer.
type DrawFunc func(b gpubuf.Batch, first int)

// Host is a bridge host backed by a texture buffer object.
type Host struct {
	unit uint32
	draw DrawFunc
	log  *zap.Logger

	buf  uint32
	tex  uint32
	size int
}

// New creates the buffer and texture. gl.Init must already have run.
// The texture is bound to texture unit unit on every submit.
func New(unit uint32, draw DrawFunc, log *zap.Logger) (*Host, error) {
	log = logger.OrNop(log)
	h := &Host{unit: unit, draw: draw, log: log}
	gl.GenBuffers(1, &h.buf)
	gl.GenTextures(1, &h.tex)
	if h.buf == 0 || h.tex == 0 {
		h.Close()
		return nil, fmt.Errorf("allocate texture buffer: gl error 0x%x", gl.GetError())
	}
	return h, nil
}

// Texture returns the texture name the shader samples.
func (h *Host) Texture() uint32 { return h.tex }

// Size returns the GPU-side buffer size in bytes.
func (h *Host) Size() int { return h.size }

// Submit uploads f and draws its batches.
func (h *Host) Submit(ctx context.Context, f *gpubuf.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(f.Data) == 0 {
		return nil
	}

	// RGBA32F needs 16-byte records; packed layouts are fetched per float.
	format := uint32(gl.R32F)
	if f.Layout.Stride%16 == 0 {
		format = gl.RGBA32F
	}

	gl.BindBuffer(gl.TEXTURE_BUFFER, h.buf)
	if len(f.Data) > h.size {
		size := max(h.size, f.Layout.Stride)
		for size < len(f.Data) {
			size *= 2
		}
		h.log.Debug("growing texture buffer", zap.Int("from", h.size), zap.Int("to", size))
		h.size = size
	}
	// Orphan the old storage so the driver does not stall on in-flight draws.
	gl.BufferData(gl.TEXTURE_BUFFER, h.size, nil, gl.STREAM_DRAW)
	gl.BufferSubData(gl.TEXTURE_BUFFER, 0, len(f.Data), gl.Ptr(f.Data))

	gl.ActiveTexture(gl.TEXTURE0 + h.unit)
	gl.BindTexture(gl.TEXTURE_BUFFER, h.tex)
	gl.TexBuffer(gl.TEXTURE_BUFFER, format, h.buf)
	gl.BindBuffer(gl.TEXTURE_BUFFER, 0)

	if e := gl.GetError(); e != gl.NO_ERROR {
		return fmt.Errorf("upload frame %d: gl error 0x%x", f.Seq, e)
	}

	if h.draw != nil {
		for _, b := range f.Batches {
			h.draw(b, b.Offset/b.Stride)
		}
	}
	return nil
}

// Close releases the GL objects.
func (h *Host) Close() {
	if h.tex != 0 {
		gl.DeleteTextures(1, &h.tex)
		h.tex = 0
	}
	if h.buf != 0 {
		gl.DeleteBuffers(1, &h.buf)
		h.buf = 0
	}
}
