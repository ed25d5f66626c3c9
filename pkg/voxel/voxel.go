// Package voxel rasterizes voxel-space point clouds into binary occupancy
// grids.
package voxel

import (
	"errors"
	"fmt"
	"math"

	"github.com/chazu/grainhull/pkg/pointcloud"
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultPadding is the number of empty layers added on every face so an
// isosurface can close around the occupied cells.
const DefaultPadding = 1

// Index is an integer voxel coordinate.
type Index [3]int

// Grid is a padded binary occupancy grid. Cell (0,0,0) of the unpadded
// grid corresponds to voxel-space index Origin; padded index i maps to
// voxel-space index i + Origin - Padding on each axis.
//
// A Grid is immutable once Voxelize returns it.
type Grid struct {
	Origin  Index
	Padding int

	dims     [3]int // padded
	extent   [3]int // unpadded
	cells    []uint8
	occupied int
}

// Voxelize rounds every voxel-space point to its nearest index, marks the
// corresponding cells occupied, and pads the result with padding empty
// layers on every face. Duplicate indices collapse into one cell.
func Voxelize(points []r3.Vec, padding int) (*Grid, error) {
	if len(points) == 0 {
		return nil, pointcloud.ErrEmpty
	}
	if padding < 0 {
		return nil, fmt.Errorf("padding must be non-negative, got %d", padding)
	}

	idx := make([]Index, len(points))
	for i, p := range points {
		if !pointcloud.Finite(p) {
			return nil, fmt.Errorf("point %d has non-finite coordinates", i)
		}
		idx[i] = Round(p)
	}
	lo, hi := idx[0], idx[0]
	for _, ix := range idx[1:] {
		for a := 0; a < 3; a++ {
			lo[a] = min(lo[a], ix[a])
			hi[a] = max(hi[a], ix[a])
		}
	}

	g := &Grid{Origin: lo, Padding: padding}
	for a := 0; a < 3; a++ {
		g.extent[a] = hi[a] - lo[a] + 1
		g.dims[a] = g.extent[a] + 2*padding
	}
	n := g.dims[0] * g.dims[1] * g.dims[2]
	if n <= 0 || n/g.dims[0]/g.dims[1] != g.dims[2] {
		return nil, errors.New("grid dimensions overflow")
	}
	g.cells = make([]uint8, n)

	for _, ix := range idx {
		off := g.offset(ix[0]-lo[0]+padding, ix[1]-lo[1]+padding, ix[2]-lo[2]+padding)
		if g.cells[off] == 0 {
			g.cells[off] = 1
			g.occupied++
		}
	}
	return g, nil
}

// Round returns the nearest voxel index to p, rounding halves to even.
func Round(p r3.Vec) Index {
	return Index{
		int(math.RoundToEven(p.X)),
		int(math.RoundToEven(p.Y)),
		int(math.RoundToEven(p.Z)),
	}
}

func (g *Grid) offset(i, j, k int) int {
	return (i*g.dims[1]+j)*g.dims[2] + k
}

// Dims returns the padded grid size along each axis.
func (g *Grid) Dims() [3]int { return g.dims }

// Extent returns the unpadded grid size along each axis.
func (g *Grid) Extent() [3]int { return g.extent }

// At returns the occupancy of padded cell (i, j, k) as 0 or 1. Cells
// outside the grid read as 0.
func (g *Grid) At(i, j, k int) float64 {
	if g.Occupied(i, j, k) {
		return 1
	}
	return 0
}

// Occupied reports whether padded cell (i, j, k) holds at least one point.
func (g *Grid) Occupied(i, j, k int) bool {
	if i < 0 || j < 0 || k < 0 || i >= g.dims[0] || j >= g.dims[1] || k >= g.dims[2] {
		return false
	}
	return g.cells[g.offset(i, j, k)] != 0
}

// Count returns the number of occupied cells.
func (g *Grid) Count() int { return g.occupied }

// Degenerate reports whether the grid cannot enclose a volume: it has
// no occupied cell, or the occupied cells span a single layer on some
// axis.
func (g *Grid) Degenerate() bool {
	if g.occupied == 0 {
		return true
	}
	for _, e := range g.extent {
		if e < 2 {
			return true
		}
	}
	return false
}

// VoxelOffset is the vector to add to padded-grid coordinates to obtain
// voxel-space coordinates.
func (g *Grid) VoxelOffset() r3.Vec {
	return r3.Vec{
		X: float64(g.Origin[0] - g.Padding),
		Y: float64(g.Origin[1] - g.Padding),
		Z: float64(g.Origin[2] - g.Padding),
	}
}

// Contains reports whether voxel-space index ix is occupied.
func (g *Grid) Contains(ix Index) bool {
	return g.Occupied(ix[0]-g.Origin[0]+g.Padding, ix[1]-g.Origin[1]+g.Padding, ix[2]-g.Origin[2]+g.Padding)
}

// Occupancy describes how a grid is filled.
type Occupancy struct {
	Dims     [3]int  `json:"dims"`
	Extent   [3]int  `json:"extent"`
	Origin   Index   `json:"origin"`
	Padding  int     `json:"padding"`
	Occupied int     `json:"occupied"`
	Fill     float64 `json:"fill"` // occupied share of the unpadded extent
}

// Occupancy reports the grid's size and fill.
func (g *Grid) Occupancy() Occupancy {
	o := Occupancy{
		Dims:     g.dims,
		Extent:   g.extent,
		Origin:   g.Origin,
		Padding:  g.Padding,
		Occupied: g.occupied,
	}
	if cells := g.extent[0] * g.extent[1] * g.extent[2]; cells > 0 {
		o.Fill = float64(g.occupied) / float64(cells)
	}
	return o
}

// String summarizes the grid for logs.
func (g *Grid) String() string {
	o := g.Occupancy()
	return fmt.Sprintf("%dx%dx%d grid (origin %v, padding %d, %d occupied, fill %.3f)",
		o.Dims[0], o.Dims[1], o.Dims[2], o.Origin, o.Padding, o.Occupied, o.Fill)
}
