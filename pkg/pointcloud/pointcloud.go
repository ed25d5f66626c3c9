package pointcloud

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrEmpty is returned when a cloud has no points.
var ErrEmpty = errors.New("point cloud is empty")

// Component names one of the six independent entries of a symmetric
// 3x3 tensor.
type Component string

const (
	XX Component = "XX"
	YY Component = "YY"
	ZZ Component = "ZZ"
	YZ Component = "YZ"
	XZ Component = "XZ"
	XY Component = "XY"
)

// Components lists the tensor components in file order.
var Components = []Component{XX, YY, ZZ, YZ, XZ, XY}

// Tensor holds the six components of a symmetric tensor at one point.
type Tensor struct {
	XX, YY, ZZ, YZ, XZ, XY float64
}

// Get returns the value of component c.
func (t Tensor) Get(c Component) float64 {
	switch c {
	case XX:
		return t.XX
	case YY:
		return t.YY
	case ZZ:
		return t.ZZ
	case YZ:
		return t.YZ
	case XZ:
		return t.XZ
	case XY:
		return t.XY
	}
	return 0
}

// set stores v into component c.
func (t *Tensor) set(c Component, v float64) {
	switch c {
	case XX:
		t.XX = v
	case YY:
		t.YY = v
	case ZZ:
		t.ZZ = v
	case YZ:
		t.YZ = v
	case XZ:
		t.XZ = v
	case XY:
		t.XY = v
	}
}

// PointCloud is an ordered set of real-space coordinates. Values carries
// per-point tensor components alongside the coordinates; a component that
// is present must have exactly one value per point. The hull pipeline
// never modifies a PointCloud.
type PointCloud struct {
	Coords []r3.Vec
	Values map[Component][]float64
}

// New creates a PointCloud over coords with no tensor values.
func New(coords []r3.Vec) *PointCloud {
	return &PointCloud{
		Coords: coords,
		Values: make(map[Component][]float64),
	}
}

// Len returns the number of points.
func (pc *PointCloud) Len() int {
	if pc == nil {
		return 0
	}
	return len(pc.Coords)
}

// Validate checks that the cloud is non-empty, that every coordinate is
// finite, and that every tensor component has one value per point.
func (pc *PointCloud) Validate() error {
	if pc.Len() == 0 {
		return ErrEmpty
	}
	for i, p := range pc.Coords {
		if !Finite(p) {
			return fmt.Errorf("point %d has non-finite coordinates (%g, %g, %g)", i, p.X, p.Y, p.Z)
		}
	}
	for _, c := range Components {
		vals, ok := pc.Values[c]
		if !ok {
			continue
		}
		if len(vals) != len(pc.Coords) {
			return fmt.Errorf("component %s has %d values for %d points", c, len(vals), len(pc.Coords))
		}
	}
	return nil
}

// Bounds returns the per-axis minimum and maximum of the coordinates.
func (pc *PointCloud) Bounds() (min, max r3.Vec, err error) {
	if pc.Len() == 0 {
		return r3.Vec{}, r3.Vec{}, ErrEmpty
	}
	min, max = Bounds(pc.Coords)
	return min, max, nil
}

// Tensor returns the tensor values recorded for point i. Missing
// components read as zero.
func (pc *PointCloud) Tensor(i int) Tensor {
	var t Tensor
	for c, vals := range pc.Values {
		if i < len(vals) {
			t.set(c, vals[i])
		}
	}
	return t
}

// Subset returns a new cloud holding the points at indices, in that
// order, with their tensor values.
func (pc *PointCloud) Subset(indices []int) *PointCloud {
	out := &PointCloud{
		Coords: make([]r3.Vec, len(indices)),
		Values: make(map[Component][]float64, len(pc.Values)),
	}
	for c := range pc.Values {
		out.Values[c] = make([]float64, len(indices))
	}
	for j, i := range indices {
		out.Coords[j] = pc.Coords[i]
		for c, vals := range pc.Values {
			out.Values[c][j] = vals[i]
		}
	}
	return out
}

// Bounds returns the per-axis extrema of pts. pts must not be empty.
func Bounds(pts []r3.Vec) (min, max r3.Vec) {
	min, max = pts[0], pts[0]
	for _, p := range pts[1:] {
		min.X = math.Min(min.X, p.X)
		min.Y = math.Min(min.Y, p.Y)
		min.Z = math.Min(min.Z, p.Z)
		max.X = math.Max(max.X, p.X)
		max.Y = math.Max(max.Y, p.Y)
		max.Z = math.Max(max.Z, p.Z)
	}
	return min, max
}

// Finite reports whether every coordinate of p is a finite number.
func Finite(p r3.Vec) bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) &&
		!math.IsNaN(p.Y) && !math.IsInf(p.Y, 0) &&
		!math.IsNaN(p.Z) && !math.IsInf(p.Z, 0)
}
