package crowd

import (
	"fmt"

	"github.com/Faultbox/throng/internal/asset"
	"github.com/Faultbox/throng/internal/pool"
	"github.com/Faultbox/throng/pkg/math"
)

// Spawn creates an instance of skeletonID playing clipID (empty for the
// reference pose) at t.
func (w *World) Spawn(skeletonID, clipID string, t math.Transform) (pool.Handle, error) {
	sk, err := w.store.Skeleton(skeletonID)
	if err != nil {
		return pool.Handle{}, err
	}
	clip, err := w.clip(clipID)
	if err != nil {
		return pool.Handle{}, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	h, err := w.pool.Allocate(sk, clip)
	if err != nil {
		return pool.Handle{}, fmt.Errorf("spawn %q: %w", skeletonID, err)
	}
	s, _ := w.pool.Get(h)
	s.Transform = t
	s.PrevTransform = t
	return h, nil
}

func (w *World) clip(id string) (*asset.Clip, error) {
	if id == "" {
		return nil, nil
	}
	return w.store.Clip(id)
}

// Release frees the instance; h is stale afterwards.
func (w *World) Release(h pool.Handle) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pool.Release(h)
}

// Valid reports whether h still addresses a live instance.
func (w *World) Valid(h pool.Handle) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pool.Valid(h)
}

// SetClip switches the instance to clipID from time zero.
func (w *World) SetClip(h pool.Handle, clipID string) error {
	clip, err := w.clip(clipID)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pool.SetClip(h, clip)
}

// Play starts clipID with explicit parameters.
func (w *World) Play(h pool.Handle, clipID string, pp pool.PlayParams) error {
	clip, err := w.clip(clipID)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pool.Play(h, clip, pp)
}

// Attach makes child follow parent's bone boneName, offset by rel. An empty
// boneName follows the parent's origin.
func (w *World) Attach(child, parent pool.Handle, boneName string, rel math.Transform) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	bone := pool.NoBone
	if boneName != "" {
		ps, err := w.pool.Get(parent)
		if err != nil {
			return err
		}
		i, ok := ps.Skeleton.BoneIndex(boneName)
		if !ok {
			return fmt.Errorf("attach to %s: %w %q in skeleton %q", parent, asset.ErrUnknownBone, boneName, ps.Skeleton.ID)
		}
		bone = i
	}
	return w.pool.Attach(child, parent, bone, rel)
}

// Detach stops child following its parent.
func (w *World) Detach(child pool.Handle) error {
	return w.with(func(p *pool.Pool) error { return p.Detach(child) })
}

// with runs fn on the pool under the world lock.
func (w *World) with(fn func(*pool.Pool) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return fn(w.pool)
}

// SetPlayRate sets the instance's playback rate.
func (w *World) SetPlayRate(h pool.Handle, rate float32) error {
	return w.with(func(p *pool.Pool) error { return p.SetPlayRate(h, rate) })
}

// SetTransform places the instance in the world.
func (w *World) SetTransform(h pool.Handle, t math.Transform) error {
	return w.with(func(p *pool.Pool) error { return p.SetTransform(h, t) })
}

// SetVisible shows or hides the instance.
func (w *World) SetVisible(h pool.Handle, visible bool) error {
	return w.with(func(p *pool.Pool) error { return p.SetVisible(h, visible) })
}

// SetPaused freezes or resumes the instance's clock.
func (w *World) SetPaused(h pool.Handle, paused bool) error {
	return w.with(func(p *pool.Pool) error { return p.SetPaused(h, paused) })
}

// SetLODOverride pins the instance's tier; pool.NoLODOverride clears it.
func (w *World) SetLODOverride(h pool.Handle, tier int) error {
	return w.with(func(p *pool.Pool) error { return p.SetLODOverride(h, tier) })
}

// SetCustomData writes per-instance shader floats starting at first.
func (w *World) SetCustomData(h pool.Handle, first int, values ...float32) error {
	return w.with(func(p *pool.Pool) error { return p.SetCustomData(h, first, values...) })
}

// SetUserFlags sets the flag word carried into the instance record.
func (w *World) SetUserFlags(h pool.Handle, flags uint32) error {
	return w.with(func(p *pool.Pool) error { return p.SetUserFlags(h, flags) })
}

// SetLifespan releases the instance after seconds of world time.
func (w *World) SetLifespan(h pool.Handle, seconds float32) error {
	return w.with(func(p *pool.Pool) error { return p.SetLifespan(h, seconds) })
}

// Finished reports whether a non-looping clip has played to its end.
func (w *World) Finished(h pool.Handle) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pool.Finished(h)
}

// Pose copies the instance's current bone snapshot into dst.
func (w *World) Pose(h pool.Handle, dst []math.Mat4) ([]math.Mat4, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, err := w.pool.Get(h)
	if err != nil {
		return dst, err
	}
	return append(dst[:0], s.Pose...), nil
}

// Instance returns a copy of the instance's playback and LOD state. Pose and
// CustomData alias the pool and must not be kept across Ticks.
func (w *World) Instance(h pool.Handle) (pool.InstanceState, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, err := w.pool.Get(h)
	if err != nil {
		return pool.InstanceState{}, err
	}
	return *s, nil
}

// TimeScale returns the global play rate multiplier.
func (w *World) TimeScale() float32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.eval.TimeScale()
}

// SetTimeScale sets the global play rate multiplier; 0 freezes every clock.
func (w *World) SetTimeScale(s float32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.eval.SetTimeScale(s)
}

// QuerySphere returns the instances within radius of center as of the last
// Tick. It returns nil when the spatial grid is disabled.
func (w *World) QuerySphere(center math.Vec3, radius float32) []pool.Handle {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.grid == nil {
		return nil
	}
	return w.grid.QuerySphere(center, radius, nil)
}
