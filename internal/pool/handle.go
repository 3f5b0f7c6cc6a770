// Package pool is the dense arena of per-instance animation state.
//
// Instances are addressed by Handle: a slot index plus the slot's generation
// at allocation time. Releasing a slot bumps its generation, so handles held
// by callers after a release fail with ErrStaleHandle instead of reaching
// whatever instance reuses the slot.
package pool

import (
	"errors"
	"fmt"

	"github.com/Faultbox/throng/internal/asset"
)

var (
	// ErrNotFound is returned for handles whose index is out of range.
	ErrNotFound = errors.New("instance not found")
	// ErrStaleHandle is returned when the slot was released (and maybe reused).
	ErrStaleHandle = errors.New("stale instance handle")
	// ErrCapacityExceeded is returned when the pool is at its slot ceiling.
	ErrCapacityExceeded = errors.New("instance capacity exceeded")
	// ErrTopologyMismatch is returned when a clip does not fit the skeleton.
	ErrTopologyMismatch = asset.ErrTopologyMismatch
	// ErrNoSkeleton is returned when allocating without a skeleton.
	ErrNoSkeleton = errors.New("instance needs a skeleton")
	// ErrSkeletonTooLarge is returned when a skeleton has more bones than an
	// instance record can carry.
	ErrSkeletonTooLarge = errors.New("skeleton exceeds max bones")
)

// Handle is a stable reference to an instance. The zero Handle is never valid.
type Handle struct {
	Index      uint32
	Generation uint32
}

// IsZero reports whether h is the zero handle.
func (h Handle) IsZero() bool { return h.Generation == 0 }

func (h Handle) String() string {
	return fmt.Sprintf("%d:%d", h.Index, h.Generation)
}

// nextGeneration increments g, skipping zero on wrap.
func nextGeneration(g uint32) uint32 {
	g++
	if g == 0 {
		g = 1
	}
	return g
}
