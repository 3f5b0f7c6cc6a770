// Package gpubuf packs the visible instances of a frame into one contiguous,
// fixed-stride byte buffer the renderer uploads as-is.
//
// Every record is little-endian float32/uint32 words:
//
//	world      3x4 row-major     48 B
//	meta       slot, generation, packed info, user flags   16 B
//	prevWorld  3x4 (GPUScene only)  48 B
//	custom     CustomFloats x 4 B
//	bones      MaxBones x 3x4    48 B each, zero past the skeleton's count
//
// padded up to the stride alignment.
package gpubuf

import "fmt"

// Features are fixed when the builder is created and travel with every frame
// so the render side can check it was built for the same shaders.
type Features struct {
	ExtraBoneInfluence bool
	ManualVertexFetch  bool
	GPUScene           bool
}

// Flag bits stored in the top byte of the packed meta word.
const (
	FlagExtraBoneInfluence uint32 = 1 << iota
	FlagManualVertexFetch
	FlagGPUScene
)

// Bits returns the feature flag bits.
func (f Features) Bits() uint32 {
	var b uint32
	if f.ExtraBoneInfluence {
		b |= FlagExtraBoneInfluence
	}
	if f.ManualVertexFetch {
		b |= FlagManualVertexFetch
	}
	if f.GPUScene {
		b |= FlagGPUScene
	}
	return b
}

// Influences returns the bone influences per vertex the shaders read.
func (f Features) Influences() int {
	if f.ExtraBoneInfluence {
		return 8
	}
	return 4
}

const (
	matBytes  = 12 * 4
	metaBytes = 4 * 4
)

// Layout describes byte offsets inside one instance record.
type Layout struct {
	Features     Features
	MaxBones     int
	CustomFloats int

	World     int
	Meta      int
	PrevWorld int // -1 without GPUScene
	Custom    int
	Bones     int
	Stride    int
}

// NewLayout computes the record layout.
func NewLayout(f Features, maxBones, customFloats int) (Layout, error) {
	if maxBones < 1 || maxBones > 256 {
		return Layout{}, fmt.Errorf("max bones %d out of range [1, 256]", maxBones)
	}
	if customFloats < 0 {
		return Layout{}, fmt.Errorf("negative custom float count %d", customFloats)
	}
	l := Layout{
		Features:     f,
		MaxBones:     maxBones,
		CustomFloats: customFloats,
		World:        0,
		Meta:         matBytes,
		PrevWorld:    -1,
	}
	off := l.Meta + metaBytes
	if f.GPUScene {
		l.PrevWorld = off
		off += matBytes
	}
	l.Custom = off
	off += customFloats * 4
	l.Bones = off
	off += maxBones * matBytes

	l.Stride = alignUp(off, l.Alignment())
	return l, nil
}

// Alignment is the stride granularity: 16 bytes when shaders fetch records
// from a storage buffer themselves, 4 otherwise.
func (l Layout) Alignment() int {
	if l.Features.ManualVertexFetch {
		return 16
	}
	return 4
}

// PackInfo packs bone count, drawn tier and feature bits into one word.
func PackInfo(bones int, tier uint8, f Features) uint32 {
	return uint32(bones)&0xffff | uint32(tier)<<16 | f.Bits()<<24
}

// UnpackInfo reverses PackInfo.
func UnpackInfo(w uint32) (bones int, tier uint8, bits uint32) {
	return int(w & 0xffff), uint8(w >> 16), w >> 24
}

func alignUp(n, a int) int {
	return (n + a - 1) / a * a
}
