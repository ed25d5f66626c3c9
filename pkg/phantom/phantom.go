// Package phantom turns kernel solids into synthetic point clouds by
// sampling them on a cubic lattice, standing in for the crystal plasticity
// output of a real grain.
package phantom

import (
	"errors"
	"fmt"
	"math"

	"github.com/chazu/grainhull/pkg/kernel"
	"github.com/chazu/grainhull/pkg/pointcloud"
	"gonum.org/v1/gonum/spatial/r3"
)

// MaxPoints bounds the lattice size of one sample.
const MaxPoints = 4 << 20

var (
	// ErrTooLarge is returned when the lattice over a solid's bounding box
	// would exceed MaxPoints.
	ErrTooLarge = errors.New("phantom lattice too large")

	// ErrInvalidSpacing is returned for a non-positive or non-finite spacing.
	ErrInvalidSpacing = errors.New("phantom spacing must be positive and finite")
)

// Sample returns the points of the lattice spacing·ℤ³ that lie inside s,
// ordered by x, then y, then z. Every point carries tensor t. A solid too
// small to contain a lattice point yields an empty cloud.
func Sample(k kernel.Kernel, s kernel.Solid, spacing float64, t pointcloud.Tensor) (*pointcloud.PointCloud, error) {
	if !(spacing > 0) || math.IsInf(spacing, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpacing, spacing)
	}

	lo, hi := s.BoundingBox()
	var first, count [3]int
	total := 1
	for a := 0; a < 3; a++ {
		first[a] = int(math.Ceil(lo[a] / spacing))
		last := int(math.Floor(hi[a] / spacing))
		count[a] = max(last-first[a]+1, 0)
		total *= count[a]
		if total > MaxPoints {
			return nil, fmt.Errorf("%w: more than %d points at spacing %g", ErrTooLarge, MaxPoints, spacing)
		}
	}

	var coords []r3.Vec
	for i := 0; i < count[0]; i++ {
		x := float64(first[0]+i) * spacing
		for j := 0; j < count[1]; j++ {
			y := float64(first[1]+j) * spacing
			for l := 0; l < count[2]; l++ {
				z := float64(first[2]+l) * spacing
				if k.Contains(s, x, y, z) {
					coords = append(coords, r3.Vec{X: x, Y: y, Z: z})
				}
			}
		}
	}

	pc := pointcloud.New(coords)
	for _, c := range pointcloud.Components {
		vals := make([]float64, len(coords))
		v := t.Get(c)
		for i := range vals {
			vals[i] = v
		}
		pc.Values[c] = vals
	}
	return pc, nil
}
