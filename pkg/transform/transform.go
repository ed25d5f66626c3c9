// Package transform maps between real (micron) space and voxel-index space.
//
// The forward map scales by 1/spacing and then translates by -shift; the
// inverse is the algebraic inverse of the forward matrix. Points are
// transformed in bulk as a 4xN homogeneous matrix.
package transform

import (
	"errors"
	"fmt"
	"math"

	"github.com/chazu/grainhull/pkg/pointcloud"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultSpacing is the distance between neighbouring samples, in real
// units, along every axis.
const DefaultSpacing = 25.0

// ErrInvalidSpacing is returned for a spacing that is not a positive
// finite number.
var ErrInvalidSpacing = errors.New("spacing must be positive and finite")

// Affine is a forward/inverse pair of 4x4 homogeneous matrices.
type Affine struct {
	Forward *mat.Dense
	Inverse *mat.Dense

	// Shift is the translation applied after scaling, in voxel units.
	Shift   r3.Vec
	Spacing float64
}

// FromBounds builds the transform for a cloud with real-space extrema min
// and max. Per axis the shift is whichever voxel-space extremum has the
// smaller magnitude, truncated toward zero; ties go to max.
func FromBounds(min, max r3.Vec, spacing float64) (*Affine, error) {
	if spacing <= 0 || math.IsInf(spacing, 0) || math.IsNaN(spacing) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpacing, spacing)
	}
	if !pointcloud.Finite(min) || !pointcloud.Finite(max) {
		return nil, fmt.Errorf("bounds must be finite, got min %v max %v", min, max)
	}
	shift := r3.Vec{
		X: anchor(max.X/spacing, min.X/spacing),
		Y: anchor(max.Y/spacing, min.Y/spacing),
		Z: anchor(max.Z/spacing, min.Z/spacing),
	}
	return New(spacing, shift)
}

// anchor returns whichever of hi and lo is closer to zero, truncated.
func anchor(hi, lo float64) float64 {
	if math.Abs(lo) < math.Abs(hi) {
		return math.Trunc(lo)
	}
	return math.Trunc(hi)
}

// New builds the transform that scales by 1/spacing and then translates
// by -shift.
func New(spacing float64, shift r3.Vec) (*Affine, error) {
	if spacing <= 0 || math.IsInf(spacing, 0) || math.IsNaN(spacing) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpacing, spacing)
	}
	s := 1 / spacing
	scale := mat.NewDense(4, 4, []float64{
		s, 0, 0, 0,
		0, s, 0, 0,
		0, 0, s, 0,
		0, 0, 0, 1,
	})
	translate := mat.NewDense(4, 4, []float64{
		1, 0, 0, -shift.X,
		0, 1, 0, -shift.Y,
		0, 0, 1, -shift.Z,
		0, 0, 0, 1,
	})

	forward := mat.NewDense(4, 4, nil)
	forward.Mul(translate, scale)

	inverse := mat.NewDense(4, 4, nil)
	if err := inverse.Inverse(forward); err != nil {
		return nil, fmt.Errorf("invert transform: %w", err)
	}

	return &Affine{
		Forward: forward,
		Inverse: inverse,
		Shift:   shift,
		Spacing: spacing,
	}, nil
}

// Apply maps a real-space point to voxel space.
func (a *Affine) Apply(p r3.Vec) r3.Vec {
	return apply(a.Forward, []r3.Vec{p})[0]
}

// Invert maps a voxel-space point back to real space.
func (a *Affine) Invert(p r3.Vec) r3.Vec {
	return apply(a.Inverse, []r3.Vec{p})[0]
}

// ApplyAll maps real-space points to voxel space.
func (a *Affine) ApplyAll(pts []r3.Vec) []r3.Vec {
	return apply(a.Forward, pts)
}

// InvertAll maps voxel-space points back to real space.
func (a *Affine) InvertAll(pts []r3.Vec) []r3.Vec {
	return apply(a.Inverse, pts)
}

// apply multiplies m by the points as homogeneous column vectors.
func apply(m *mat.Dense, pts []r3.Vec) []r3.Vec {
	if len(pts) == 0 {
		return nil
	}
	h := mat.NewDense(4, len(pts), nil)
	for j, p := range pts {
		h.Set(0, j, p.X)
		h.Set(1, j, p.Y)
		h.Set(2, j, p.Z)
		h.Set(3, j, 1)
	}
	var out mat.Dense
	out.Mul(m, h)

	res := make([]r3.Vec, len(pts))
	for j := range res {
		w := out.At(3, j)
		res[j] = r3.Vec{X: out.At(0, j) / w, Y: out.At(1, j) / w, Z: out.At(2, j) / w}
	}
	return res
}
