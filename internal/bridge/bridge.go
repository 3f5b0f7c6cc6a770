// Package bridge hands packed frames to whatever renders them.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Faultbox/throng/internal/gpubuf"
	"github.com/Faultbox/throng/internal/logger"
)

// ErrFeatureMismatch means a frame was packed for a different feature set
// than the bridge was created with.
var ErrFeatureMismatch = errors.New("frame feature set does not match renderer")

// Host consumes one frame per pass. Frame data is only valid during the call;
// hosts that need it later must copy or upload it.
type Host interface {
	Submit(ctx context.Context, f *gpubuf.Frame) error
}

// HostFunc adapts a function to Host.
type HostFunc func(ctx context.Context, f *gpubuf.Frame) error

// Submit calls fn.
func (fn HostFunc) Submit(ctx context.Context, f *gpubuf.Frame) error { return fn(ctx, f) }

// Snapshot describes the frame a host currently displays.
type Snapshot struct {
	Seq       uint64
	Instances int
	Bytes     int
	Batches   []gpubuf.Batch
}

// Bridge checks frames against the feature set and tracks the current one.
// When the host rejects a frame the previous one stays current.
type Bridge struct {
	features gpubuf.Features
	host     Host
	log      *zap.Logger

	mu        sync.Mutex
	current   Snapshot
	submitted uint64
	failed    uint64
}

// New creates a bridge for host. A nil host discards frames.
func New(features gpubuf.Features, host Host, log *zap.Logger) *Bridge {
	log = logger.OrNop(log)
	if host == nil {
		host = HostFunc(func(context.Context, *gpubuf.Frame) error { return nil })
	}
	return &Bridge{features: features, host: host, log: log}
}

// Features returns the feature set fixed at creation.
func (b *Bridge) Features() gpubuf.Features { return b.features }

// Submit passes f to the host.
func (b *Bridge) Submit(ctx context.Context, f *gpubuf.Frame) error {
	if f.Features != b.features {
		b.mu.Lock()
		b.failed++
		b.mu.Unlock()
		return fmt.Errorf("%w: frame %+v, renderer %+v", ErrFeatureMismatch, f.Features, b.features)
	}
	if err := b.host.Submit(ctx, f); err != nil {
		b.mu.Lock()
		b.failed++
		seq := b.current.Seq
		b.mu.Unlock()
		b.log.Warn("host rejected frame, keeping previous",
			zap.Uint64("frame", f.Seq),
			zap.Uint64("current", seq),
			zap.Error(err))
		return fmt.Errorf("submit frame %d: %w", f.Seq, err)
	}

	b.mu.Lock()
	b.current.Seq = f.Seq
	b.current.Instances = f.Instances
	b.current.Bytes = len(f.Data)
	b.current.Batches = append(b.current.Batches[:0], f.Batches...)
	b.submitted++
	b.mu.Unlock()
	return nil
}

// Current returns the last frame the host accepted.
func (b *Bridge) Current() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.current
	s.Batches = append([]gpubuf.Batch(nil), s.Batches...)
	return s
}

// Counts returns accepted and failed submissions.
func (b *Bridge) Counts() (submitted, failed uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.submitted, b.failed
}

// Recorder is a host that keeps copies of what it receives.
type Recorder struct {
	mu     sync.Mutex
	frames []Recorded
	keep   int
}

// Recorded is one frame captured by a Recorder.
type Recorded struct {
	Snapshot
	Data []byte
}

// NewRecorder keeps the most recent keep frames (0 = all).
func NewRecorder(keep int) *Recorder { return &Recorder{keep: keep} }

// Submit copies f.
func (r *Recorder) Submit(_ context.Context, f *gpubuf.Frame) error {
	rec := Recorded{
		Snapshot: Snapshot{
			Seq:       f.Seq,
			Instances: f.Instances,
			Bytes:     len(f.Data),
			Batches:   append([]gpubuf.Batch(nil), f.Batches...),
		},
		Data: append([]byte(nil), f.Data...),
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, rec)
	if r.keep > 0 && len(r.frames) > r.keep {
		r.frames = append(r.frames[:0], r.frames[len(r.frames)-r.keep:]...)
	}
	return nil
}

// Frames returns the captured frames, oldest first.
func (r *Recorder) Frames() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Recorded(nil), r.frames...)
}

// Last returns the newest captured frame.
func (r *Recorder) Last() (Recorded, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) == 0 {
		return Recorded{}, false
	}
	return r.frames[len(r.frames)-1], true
}
