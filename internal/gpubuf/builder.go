package gpubuf

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	gomath "math"

	"go.uber.org/zap"

	"github.com/Faultbox/throng/internal/cull"
	"github.com/Faultbox/throng/internal/logger"
	"github.com/Faultbox/throng/internal/parallel"
	"github.com/Faultbox/throng/internal/pool"
	"github.com/Faultbox/throng/pkg/math"
)

// ErrCapacityExceeded is returned when the visible set does not fit under
// the byte ceiling. The frame is still produced with the tail dropped.
var ErrCapacityExceeded = errors.New("instance buffer capacity exceeded")

// Batch is a contiguous run of records sharing one LOD tier.
type Batch struct {
	Tier   uint8
	Offset int // bytes
	Count  int
	Stride int
}

// Frame is one packed buffer. Data stays valid until the builder has
// produced two more frames.
type Frame struct {
	Seq       uint64
	Layout    Layout
	Data      []byte
	Batches   []Batch
	Instances int
	Dropped   int
	Features  Features
}

// Config sizes the builder.
type Config struct {
	Features         Features
	MaxBones         int
	CustomDataFloats int
	InitialCapacity  int // instances
	MaxBytes         int // 0 = unlimited
	Workers          int
}

// Builder writes frames into two alternating backing stores.
type Builder struct {
	cfg    Config
	layout Layout
	log    *zap.Logger

	bufs    [2][]byte
	cur     int
	seq     uint64
	batches [2][]Batch
	frames  [2]Frame
}

// NewBuilder validates cfg and computes the layout.
func NewBuilder(cfg Config, log *zap.Logger) (*Builder, error) {
	log = logger.OrNop(log)
	l, err := NewLayout(cfg.Features, cfg.MaxBones, cfg.CustomDataFloats)
	if err != nil {
		return nil, err
	}
	if cfg.InitialCapacity < 1 {
		cfg.InitialCapacity = 1
	}
	if cfg.MaxBytes > 0 && cfg.MaxBytes < l.Stride {
		return nil, fmt.Errorf("max bytes %d is below one record (%d)", cfg.MaxBytes, l.Stride)
	}
	return &Builder{cfg: cfg, layout: l, log: log}, nil
}

// Layout returns the record layout.
func (b *Builder) Layout() Layout { return b.layout }

// Features returns the feature set fixed at construction.
func (b *Builder) Features() Features { return b.cfg.Features }

// Capacity returns the byte size of the store the next frame will use.
func (b *Builder) Capacity() int { return len(b.bufs[b.cur]) }

// maxRecords is how many records fit under MaxBytes.
func (b *Builder) maxRecords() int {
	if b.cfg.MaxBytes <= 0 {
		return gomath.MaxInt
	}
	return b.cfg.MaxBytes / b.layout.Stride
}

// grow sizes store i for n records: doubling from InitialCapacity, clamped
// to MaxBytes. Stores never shrink.
func (b *Builder) grow(i, n int) {
	need := n * b.layout.Stride
	if len(b.bufs[i]) >= need {
		return
	}
	size := len(b.bufs[i])
	if size == 0 {
		size = b.cfg.InitialCapacity * b.layout.Stride
	}
	for size < need {
		size *= 2
	}
	if b.cfg.MaxBytes > 0 {
		size = min(size, b.maxRecords()*b.layout.Stride)
	}
	b.log.Debug("growing instance buffer",
		zap.Int("store", i),
		zap.Int("from", len(b.bufs[i])),
		zap.Int("to", size))
	b.bufs[i] = make([]byte, size)
}

// Build packs visible (ordered by tier, then slot) and sets each entry's
// Offset. Entries dropped for capacity get Offset -1.
func (b *Builder) Build(ctx context.Context, p *pool.Pool, visible []cull.Visible) (*Frame, error) {
	n := len(visible)
	var capErr error
	if limit := b.maxRecords(); n > limit {
		capErr = fmt.Errorf("%w: %d instances need %d bytes, ceiling %d",
			ErrCapacityExceeded, n, n*b.layout.Stride, b.cfg.MaxBytes)
		b.log.Warn("dropping instances over buffer ceiling",
			zap.Int("visible", n),
			zap.Int("kept", limit),
			zap.Int("max_bytes", b.cfg.MaxBytes))
		for i := limit; i < n; i++ {
			visible[i].Offset = -1
		}
		n = limit
	}

	i := b.cur
	b.grow(i, n)
	data := b.bufs[i][:n*b.layout.Stride]
	slots := p.Slots()
	stride := b.layout.Stride

	err := parallel.For(ctx, n, b.cfg.Workers, func(_, lo, hi int) error {
		for k := lo; k < hi; k++ {
			v := &visible[k]
			v.Offset = k * stride
			st := &slots[v.Slot]
			if !st.Alive() || st.Handle() != v.Handle {
				return fmt.Errorf("visible entry %d: %w: %v", k, pool.ErrStaleHandle, v.Handle)
			}
			if len(st.Pose) > b.layout.MaxBones {
				return fmt.Errorf("visible entry %d: %w: %d bones, records hold %d",
					k, pool.ErrSkeletonTooLarge, len(st.Pose), b.layout.MaxBones)
			}
			b.writeRecord(data[v.Offset:v.Offset+stride], st, v)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}

	batches := b.batches[i][:0]
	for k := 0; k < n; {
		start := k
		tier := visible[k].Tier
		for k < n && visible[k].Tier == tier {
			k++
		}
		batches = append(batches, Batch{Tier: tier, Offset: start * stride, Count: k - start, Stride: stride})
	}
	b.batches[i] = batches

	b.seq++
	f := &b.frames[i]
	*f = Frame{
		Seq:       b.seq,
		Layout:    b.layout,
		Data:      data,
		Batches:   batches,
		Instances: n,
		Dropped:   len(visible) - n,
		Features:  b.cfg.Features,
	}
	b.cur ^= 1
	return f, capErr
}

func (b *Builder) writeRecord(rec []byte, st *pool.InstanceState, v *cull.Visible) {
	l := &b.layout
	putMat(rec[l.World:], st.Transform.ToMat4())

	bones := len(st.Pose)
	le := binary.LittleEndian
	le.PutUint32(rec[l.Meta:], v.Slot)
	le.PutUint32(rec[l.Meta+4:], v.Handle.Generation)
	le.PutUint32(rec[l.Meta+8:], PackInfo(bones, v.Tier, l.Features))
	le.PutUint32(rec[l.Meta+12:], st.UserFlags)

	if l.PrevWorld >= 0 {
		putMat(rec[l.PrevWorld:], st.PrevTransform.ToMat4())
	}
	for c := 0; c < l.CustomFloats; c++ {
		var f float32
		if c < len(st.CustomData) {
			f = st.CustomData[c]
		}
		le.PutUint32(rec[l.Custom+4*c:], gomath.Float32bits(f))
	}

	off := l.Bones
	for j := 0; j < bones; j++ {
		putMat(rec[off:], st.Pose[j])
		off += matBytes
	}
	clear(rec[off:])
}

func putMat(dst []byte, m math.Mat4) {
	rows := m.Rows3x4()
	for i, f := range rows {
		binary.LittleEndian.PutUint32(dst[4*i:], gomath.Float32bits(f))
	}
}
