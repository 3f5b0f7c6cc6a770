package asset

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Faultbox/throng/internal/logger"
)

var (
	// ErrUnknownSkeleton is returned when a skeleton id does not resolve.
	ErrUnknownSkeleton = errors.New("unknown skeleton")
	// ErrUnknownClip is returned when a clip id does not resolve.
	ErrUnknownClip = errors.New("unknown clip")
	// ErrUnknownBone is returned when a bone name is not in the skeleton.
	ErrUnknownBone = errors.New("unknown bone")
	// ErrDuplicate is returned when an id is registered twice.
	ErrDuplicate = errors.New("duplicate asset id")
	// ErrInUse is returned when removing an asset that instances still reference.
	ErrInUse = errors.New("asset in use")
	// ErrTopologyMismatch is returned when a clip does not fit a skeleton.
	ErrTopologyMismatch = errors.New("topology mismatch")
	// ErrInvalidHierarchy is returned for malformed bone hierarchies.
	ErrInvalidHierarchy = errors.New("invalid bone hierarchy")
	// ErrInvalidClip is returned for malformed clip data.
	ErrInvalidClip = errors.New("invalid clip")
)

// Store resolves skeleton and clip ids. Registration is expected to happen
// while loading; lookups afterwards only take the read lock.
type Store struct {
	mu        sync.RWMutex
	skeletons map[string]*Skeleton
	clips     map[string]*Clip
	log       *zap.Logger
}

// NewStore creates an empty store.
func NewStore(log *zap.Logger) *Store {
	log = logger.OrNop(log)
	return &Store{
		skeletons: make(map[string]*Skeleton),
		clips:     make(map[string]*Clip),
		log:       log,
	}
}

// AddSkeleton registers a skeleton.
func (s *Store) AddSkeleton(sk *Skeleton) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.skeletons[sk.ID]; ok {
		return fmt.Errorf("skeleton %q: %w", sk.ID, ErrDuplicate)
	}
	s.skeletons[sk.ID] = sk
	s.log.Debug("skeleton registered", zap.String("id", sk.ID), zap.Int("bones", sk.BoneCount()))
	return nil
}

// AddClip registers a clip. Its skeleton must already be registered and
// have the same bone count.
func (s *Store) AddClip(c *Clip) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clips[c.ID]; ok {
		return fmt.Errorf("clip %q: %w", c.ID, ErrDuplicate)
	}
	sk, ok := s.skeletons[c.SkeletonID]
	if !ok {
		return fmt.Errorf("clip %q: skeleton %q: %w", c.ID, c.SkeletonID, ErrUnknownSkeleton)
	}
	if err := CheckTopology(sk, c); err != nil {
		return err
	}
	s.clips[c.ID] = c
	s.log.Debug("clip registered",
		zap.String("id", c.ID),
		zap.String("skeleton", c.SkeletonID),
		zap.Int("frames", c.Frames()),
		zap.Float32("duration", c.Duration),
	)
	return nil
}

// Skeleton resolves a skeleton id.
func (s *Store) Skeleton(id string) (*Skeleton, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sk, ok := s.skeletons[id]
	if !ok {
		return nil, fmt.Errorf("skeleton %q: %w", id, ErrUnknownSkeleton)
	}
	return sk, nil
}

// Clip resolves a clip id.
func (s *Store) Clip(id string) (*Clip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.clips[id]
	if !ok {
		return nil, fmt.Errorf("clip %q: %w", id, ErrUnknownClip)
	}
	return c, nil
}

// RemoveClip unregisters a clip no instance references.
func (s *Store) RemoveClip(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.clips[id]
	if !ok {
		return fmt.Errorf("clip %q: %w", id, ErrUnknownClip)
	}
	if n := c.Refs(); n > 0 {
		return fmt.Errorf("clip %q: %w by %d instances", id, ErrInUse, n)
	}
	delete(s.clips, id)
	return nil
}

// RemoveSkeleton unregisters a skeleton with no instances and no clips.
func (s *Store) RemoveSkeleton(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sk, ok := s.skeletons[id]
	if !ok {
		return fmt.Errorf("skeleton %q: %w", id, ErrUnknownSkeleton)
	}
	if n := sk.Refs(); n > 0 {
		return fmt.Errorf("skeleton %q: %w by %d instances", id, ErrInUse, n)
	}
	for _, c := range s.clips {
		if c.SkeletonID == id {
			return fmt.Errorf("skeleton %q: %w by clip %q", id, ErrInUse, c.ID)
		}
	}
	delete(s.skeletons, id)
	return nil
}

// Counts returns the number of registered skeletons and clips.
func (s *Store) Counts() (skeletons, clips int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.skeletons), len(s.clips)
}

// CheckTopology reports whether clip c can drive skeleton sk.
func CheckTopology(sk *Skeleton, c *Clip) error {
	if c.BoneCount() != sk.BoneCount() {
		return fmt.Errorf("clip %q has %d bones, skeleton %q has %d: %w",
			c.ID, c.BoneCount(), sk.ID, sk.BoneCount(), ErrTopologyMismatch)
	}
	if c.SkeletonID != "" && c.SkeletonID != sk.ID {
		return fmt.Errorf("clip %q targets skeleton %q, not %q: %w",
			c.ID, c.SkeletonID, sk.ID, ErrTopologyMismatch)
	}
	return nil
}
