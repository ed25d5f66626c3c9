// Package hull extracts the outer surface layer of a point cloud: the
// cloud is scaled into voxel space, rasterized, wrapped by a marching
// cubes isosurface, and each surface vertex is snapped to one of the
// original points. The chosen points, mapped back to real space, form
// the approximated hull.
package hull

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/chazu/grainhull/pkg/kernel"
	"github.com/chazu/grainhull/pkg/pointcloud"
	"github.com/chazu/grainhull/pkg/project"
	"github.com/chazu/grainhull/pkg/transform"
	"github.com/chazu/grainhull/pkg/voxel"
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultIsoLevel separates empty (0) from occupied (1) cells.
const DefaultIsoLevel = 0.5

// ErrInvalidInput is returned for a cloud that cannot be processed.
var ErrInvalidInput = errors.New("invalid point cloud")

// Stage names a pipeline step in a StageError.
type Stage string

const (
	StageValidate   Stage = "validate"
	StageTransform  Stage = "transform"
	StageVoxelize   Stage = "voxelize"
	StageIsosurface Stage = "isosurface"
	StageProject    Stage = "project"
)

// StageError reports which step failed and on how much input.
type StageError struct {
	Stage    Stage
	Points   int
	Vertices int
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("hull %s (%d points, %d vertices): %v", e.Stage, e.Points, e.Vertices, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Options configures a Pipeline.
type Options struct {
	Spacing    float64
	Padding    int
	IsoLevel   float64
	Projection project.Options

	// Logger receives stage progress. Nil means log.Default().
	Logger *log.Logger
}

// DefaultOptions returns the standard configuration.
func DefaultOptions() Options {
	return Options{
		Spacing:  transform.DefaultSpacing,
		Padding:  voxel.DefaultPadding,
		IsoLevel: DefaultIsoLevel,
	}
}

// DiscardLogger is a Logger that drops everything.
func DiscardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// Result holds every artifact of one run.
type Result struct {
	Transform *transform.Affine

	// VoxelCoords is the input cloud in voxel space, before rounding.
	VoxelCoords []r3.Vec
	Grid        *voxel.Grid

	// Mesh is in voxel space with the grid padding removed.
	Mesh        *kernel.Mesh
	Assignments []project.Assignment

	// Points is the approximation map in real space, one per mesh vertex;
	// Indices holds the source index of each into the input cloud.
	Points  []r3.Vec
	Indices []int

	// MeshVertices are the isosurface vertices in real space.
	MeshVertices []r3.Vec

	// Hull is the subset of the input cloud at Indices, tensor values
	// included.
	Hull *pointcloud.PointCloud
}

// Empty reports whether the run produced no surface.
func (r *Result) Empty() bool {
	return r.Mesh == nil || r.Mesh.IsEmpty()
}

// Pipeline runs hull extraction with a fixed kernel and options. A
// Pipeline holds no per-run state and may be shared.
type Pipeline struct {
	k    kernel.Kernel
	opts Options
	log  *log.Logger
}

// New creates a Pipeline. Zero-valued Spacing, Padding and IsoLevel take
// their defaults.
func New(k kernel.Kernel, opts Options) *Pipeline {
	if opts.Spacing == 0 {
		opts.Spacing = transform.DefaultSpacing
	}
	if opts.Padding == 0 {
		opts.Padding = voxel.DefaultPadding
	}
	if opts.IsoLevel == 0 {
		opts.IsoLevel = DefaultIsoLevel
	}
	l := opts.Logger
	if l == nil {
		l = log.Default()
	}
	return &Pipeline{k: k, opts: opts, log: l}
}

// Options returns the effective options.
func (p *Pipeline) Options() Options {
	return p.opts
}

// Run extracts the hull of pc. A cloud too thin to enclose a volume
// yields a Result with an empty mesh and no points rather than an error.
func (p *Pipeline) Run(ctx context.Context, pc *pointcloud.PointCloud) (*Result, error) {
	n := pc.Len()
	if err := pc.Validate(); err != nil {
		return nil, &StageError{Stage: StageValidate, Points: n, Err: fmt.Errorf("%w: %w", ErrInvalidInput, err)}
	}

	lo, hi, _ := pc.Bounds()
	tf, err := transform.FromBounds(lo, hi, p.opts.Spacing)
	if err != nil {
		return nil, &StageError{Stage: StageTransform, Points: n, Err: err}
	}
	res := &Result{
		Transform:   tf,
		VoxelCoords: tf.ApplyAll(pc.Coords),
	}
	p.log.Printf("hull: %d points, spacing %g, shift %v", n, tf.Spacing, tf.Shift)

	grid, err := voxel.Voxelize(res.VoxelCoords, p.opts.Padding)
	if err != nil {
		return nil, &StageError{Stage: StageVoxelize, Points: n, Err: err}
	}
	res.Grid = grid
	p.log.Printf("hull: %v", grid)

	if grid.Degenerate() {
		p.log.Printf("hull: degenerate grid, no surface")
		return emptyResult(res, pc), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, &StageError{Stage: StageIsosurface, Points: n, Err: err}
	}

	raw, err := p.k.Isosurface(grid, p.opts.IsoLevel)
	if err != nil {
		return nil, &StageError{Stage: StageIsosurface, Points: n, Err: err}
	}
	res.Mesh = raw.Translate(grid.VoxelOffset())
	v := res.Mesh.VertexCount()
	p.log.Printf("hull: isosurface has %d vertices, %d triangles", v, res.Mesh.TriangleCount())
	if v == 0 {
		return emptyResult(res, pc), nil
	}

	res.Assignments, err = project.Project(ctx, res.VoxelCoords, res.Mesh.VertexList(), res.Mesh.NormalList(), p.opts.Projection)
	if err != nil {
		p.log.Printf("hull: projection failed: %v", err)
		return nil, &StageError{Stage: StageProject, Points: n, Vertices: v, Err: err}
	}

	voxels := make([]r3.Vec, len(res.Assignments))
	res.Indices = make([]int, len(res.Assignments))
	for i, a := range res.Assignments {
		voxels[i] = a.Voxel
		res.Indices[i] = a.Point
	}
	res.Points = tf.InvertAll(voxels)
	res.MeshVertices = tf.InvertAll(res.Mesh.VertexList())
	res.Hull = pc.Subset(res.Indices)
	p.log.Printf("hull: %d of %d points on the surface", len(res.Points), n)
	return res, nil
}

func emptyResult(res *Result, pc *pointcloud.PointCloud) *Result {
	if res.Mesh == nil {
		res.Mesh = &kernel.Mesh{}
	}
	res.Assignments = []project.Assignment{}
	res.Points = []r3.Vec{}
	res.Indices = []int{}
	res.MeshVertices = []r3.Vec{}
	res.Hull = pc.Subset(nil)
	return res
}
