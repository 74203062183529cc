// Package augment produces randomly augmented mini-batches from an in-memory
// volume dataset.
//
// Augmentation follows the usual image-generator conventions: a random
// in-plane rotation, per-axis shifts expressed as fractions of the volume
// extent, an isotropic zoom drawn from [1-z, 1+z] and optional axis flips.
// Each sample gets an independent transform on every draw, so the generator
// yields an effectively infinite stream of distinct batches.
package augment

import (
	"math"
	"math/rand/v2"

	verrors "github.com/YuminosukeSato/voxnet/pkg/errors"
	"github.com/YuminosukeSato/voxnet/volume"
)

// Config holds augmentation parameters. The zero value is the identity
// configuration and performs no augmentation (used for validation data).
type Config struct {
	RotationRange    float64 `json:"rotation_range"`     // degrees, rotation in the H-W plane
	WidthShiftRange  float64 `json:"width_shift_range"`  // fraction of W
	HeightShiftRange float64 `json:"height_shift_range"` // fraction of H
	DepthShiftRange  float64 `json:"depth_shift_range"`  // fraction of D
	ZoomRange        float64 `json:"zoom_range"`         // zoom drawn from [1-z, 1+z]
	HorizontalFlip   bool    `json:"horizontal_flip"`    // mirror along W
	VerticalFlip     bool    `json:"vertical_flip"`      // mirror along H
	DepthFlip        bool    `json:"depth_flip"`         // mirror along D
}

// Identity reports whether the configuration performs no augmentation.
func (c Config) Identity() bool {
	return c.RotationRange == 0 && c.WidthShiftRange == 0 && c.HeightShiftRange == 0 &&
		c.DepthShiftRange == 0 && c.ZoomRange == 0 &&
		!c.HorizontalFlip && !c.VerticalFlip && !c.DepthFlip
}

// Validate checks the parameter ranges.
func (c Config) Validate() error {
	if c.RotationRange < 0 || c.RotationRange > 180 {
		return verrors.NewValidationError("rotation_range", "must be in [0, 180]", c.RotationRange)
	}
	for name, v := range map[string]float64{
		"width_shift_range":  c.WidthShiftRange,
		"height_shift_range": c.HeightShiftRange,
		"depth_shift_range":  c.DepthShiftRange,
	} {
		if v < 0 || v > 1 {
			return verrors.NewValidationError(name, "must be in [0, 1]", v)
		}
	}
	if c.ZoomRange < 0 || c.ZoomRange >= 1 {
		return verrors.NewValidationError("zoom_range", "must be in [0, 1)", c.ZoomRange)
	}
	return nil
}

// transform is one sampled affine: applied by inverse-mapping every output
// voxel into the source volume with nearest-neighbour lookup, zero fill.
type transform struct {
	angle                  float64 // radians
	shiftH, shiftW, shiftD float64 // voxels
	zoom                   float64
	flipH, flipW, flipD    bool
}

var identityTransform = transform{zoom: 1}

// sample draws one random transform. Callers must not share rng across
// goroutines; the generator samples sequentially and applies in parallel.
func (c Config) sample(rng *rand.Rand, shape volume.Shape) transform {
	t := transform{zoom: 1}
	if c.RotationRange > 0 {
		deg := (rng.Float64()*2 - 1) * c.RotationRange
		t.angle = deg * math.Pi / 180
	}
	if c.HeightShiftRange > 0 {
		t.shiftH = (rng.Float64()*2 - 1) * c.HeightShiftRange * float64(shape.H)
	}
	if c.WidthShiftRange > 0 {
		t.shiftW = (rng.Float64()*2 - 1) * c.WidthShiftRange * float64(shape.W)
	}
	if c.DepthShiftRange > 0 {
		t.shiftD = (rng.Float64()*2 - 1) * c.DepthShiftRange * float64(shape.D)
	}
	if c.ZoomRange > 0 {
		t.zoom = 1 + (rng.Float64()*2-1)*c.ZoomRange
	}
	if c.HorizontalFlip {
		t.flipW = rng.Float64() < 0.5
	}
	if c.VerticalFlip {
		t.flipH = rng.Float64() < 0.5
	}
	if c.DepthFlip {
		t.flipD = rng.Float64() < 0.5
	}
	return t
}

// apply writes the transformed src volume into dst. Both slices hold one
// (H, W, D, C) volume in row-major order.
func apply(dst, src []float64, shape volume.Shape, t transform) {
	h, w, d, c := shape.H, shape.W, shape.D, shape.C
	ch := float64(h-1) / 2
	cw := float64(w-1) / 2
	cd := float64(d-1) / 2

	sin, cos := math.Sincos(t.angle)

	strideH := w * d * c
	strideW := d * c
	strideD := c

	for oh := 0; oh < h; oh++ {
		fh := oh
		if t.flipH {
			fh = h - 1 - oh
		}
		y := float64(fh) - ch
		for ow := 0; ow < w; ow++ {
			fw := ow
			if t.flipW {
				fw = w - 1 - ow
			}
			x := float64(fw) - cw

			// Inverse in-plane rotation and zoom about the centre.
			sy := (cos*y + sin*x) / t.zoom
			sx := (-sin*y + cos*x) / t.zoom

			srcH := int(math.Round(sy + ch - t.shiftH))
			srcW := int(math.Round(sx + cw - t.shiftW))

			for od := 0; od < d; od++ {
				fd := od
				if t.flipD {
					fd = d - 1 - od
				}
				sz := (float64(fd) - cd) / t.zoom
				srcD := int(math.Round(sz + cd - t.shiftD))

				dstOff := oh*strideH + ow*strideW + od*strideD
				if srcH < 0 || srcH >= h || srcW < 0 || srcW >= w || srcD < 0 || srcD >= d {
					for k := 0; k < c; k++ {
						dst[dstOff+k] = 0
					}
					continue
				}
				srcOff := srcH*strideH + srcW*strideW + srcD*strideD
				for k := 0; k < c; k++ {
					dst[dstOff+k] = src[srcOff+k]
				}
			}
		}
	}
}
