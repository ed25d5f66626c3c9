package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/chazu/grainhull/pkg/config"
	"github.com/chazu/grainhull/pkg/engine"
	"github.com/chazu/grainhull/pkg/hull"
	"github.com/chazu/grainhull/pkg/kernel"
	"github.com/chazu/grainhull/pkg/kernel/sdfx"
	"github.com/chazu/grainhull/pkg/phantom"
	"github.com/chazu/grainhull/pkg/pointcloud"
	"github.com/chazu/grainhull/pkg/pointcloud/vtu"
	"github.com/chazu/grainhull/pkg/preview"
	"github.com/chazu/grainhull/pkg/voxel"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrUnknownInput is returned for an input file with an unrecognised
// extension.
var ErrUnknownInput = errors.New("unknown input type")

// App runs hull extraction on .vtu point clouds and .grain phantom scripts.
type App struct {
	cfg    *config.Config
	engine *engine.Engine
	kernel kernel.Kernel
	log    *log.Logger
}

// input is one cloud to process.
type input struct {
	name    string
	cloud   *pointcloud.PointCloud
	spacing float64
}

// EvalErrorData is a JSON-serializable script error.
type EvalErrorData struct {
	Line    int    `json:"line"`
	Col     int    `json:"col"`
	Message string `json:"message"`
}

// MeshData summarizes the isosurface.
type MeshData struct {
	Vertices  int `json:"vertices"`
	Triangles int `json:"triangles"`
}

// HullPoint is one approximation point with the tensor carried from its
// source point.
type HullPoint struct {
	Index  int                `json:"index"`
	Coord  [3]float64         `json:"coord"`
	Tensor map[string]float64 `json:"tensor,omitempty"`
}

// GrainReport is the outcome for one cloud. A failed grain carries Error
// and no hull.
type GrainReport struct {
	Name    string           `json:"name"`
	Points  int              `json:"points"`
	Spacing float64          `json:"spacing"`
	Shift   [3]float64       `json:"shift"`
	Grid    *voxel.Occupancy `json:"grid,omitempty"`
	Mesh    *MeshData        `json:"mesh,omitempty"`
	Hull    []HullPoint      `json:"hull"`
	Plots   []string         `json:"plots,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// Report is the full result for one input file.
type Report struct {
	Source string          `json:"source"`
	Grains []GrainReport   `json:"grains"`
	Errors []EvalErrorData `json:"errors"`
}

// NewApp creates an App with the sdfx kernel. A nil logger means
// log.Default().
func NewApp(cfg *config.Config, logger *log.Logger) *App {
	if logger == nil {
		logger = log.Default()
	}
	k := sdfx.New()
	return &App{
		cfg:    cfg,
		engine: engine.NewEngine(k),
		kernel: k,
		log:    logger,
	}
}

// Run loads path and extracts the hull of every cloud in it. Script
// errors are returned in Report.Errors; a grain whose pipeline fails is
// reported with its error while the remaining grains still run.
func (a *App) Run(ctx context.Context, path string) (*Report, error) {
	report := &Report{
		Source: path,
		Grains: []GrainReport{},
		Errors: []EvalErrorData{},
	}

	inputs, evalErrs, err := a.load(path)
	if err != nil {
		return nil, err
	}
	if len(evalErrs) > 0 {
		for _, e := range evalErrs {
			report.Errors = append(report.Errors, EvalErrorData{Line: e.Line, Col: e.Col, Message: e.Message})
		}
		return report, nil
	}

	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		report.Grains = append(report.Grains, a.runOne(ctx, in))
	}
	return report, nil
}

func (a *App) runOne(ctx context.Context, in input) GrainReport {
	gr := GrainReport{
		Name:    in.name,
		Points:  in.cloud.Len(),
		Spacing: in.spacing,
		Hull:    []HullPoint{},
	}

	opts := a.cfg.PipelineOptions()
	opts.Spacing = in.spacing
	opts.Logger = a.log
	res, err := hull.New(a.kernel, opts).Run(ctx, in.cloud)
	if err != nil {
		a.log.Printf("grain %s: %v", in.name, err)
		gr.Error = err.Error()
		return gr
	}

	gr.Shift = [3]float64{res.Transform.Shift.X, res.Transform.Shift.Y, res.Transform.Shift.Z}
	occ := res.Grid.Occupancy()
	gr.Grid = &occ
	gr.Mesh = &MeshData{Vertices: res.Mesh.VertexCount(), Triangles: res.Mesh.TriangleCount()}
	for i, p := range res.Points {
		hp := HullPoint{Index: res.Indices[i], Coord: [3]float64{p.X, p.Y, p.Z}}
		if len(res.Hull.Values) > 0 {
			hp.Tensor = make(map[string]float64, len(res.Hull.Values))
			for c, vals := range res.Hull.Values {
				hp.Tensor[string(c)] = vals[i]
			}
		}
		gr.Hull = append(gr.Hull, hp)
	}

	if dir := a.cfg.Output.PlotDir; dir != "" {
		plots, err := a.plot(dir, in, res)
		if err != nil {
			a.log.Printf("grain %s: plotting failed: %v", in.name, err)
			gr.Error = err.Error()
		}
		gr.Plots = plots
	}
	return gr
}

// plot writes the pre-hull voxel-space view and the real-space hull view.
func (a *App) plot(dir string, in input, res *hull.Result) ([]string, error) {
	pl, err := preview.NewPlotter(dir)
	if err != nil {
		return nil, err
	}
	voxels := make([]r3.Vec, len(res.Assignments))
	for i, as := range res.Assignments {
		voxels[i] = as.Voxel
	}
	pre, err := pl.Projections(in.name+"_voxel", in.name+" in voxel space",
		preview.Layer{Label: "cloud", Points: res.VoxelCoords, Color: preview.CloudColor},
		preview.Layer{Label: "hull", Points: voxels, Color: preview.HullColor},
	)
	if err != nil {
		return pre, err
	}
	post, err := pl.Projections(in.name+"_hull", in.name+" hull",
		preview.Layer{Label: "cloud", Points: in.cloud.Coords, Color: preview.CloudColor},
		preview.Layer{Label: "hull", Points: res.Points, Color: preview.HullColor},
	)
	return append(pre, post...), err
}

// load reads path by extension.
func (a *App) load(path string) ([]input, []engine.EvalError, error) {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	switch strings.ToLower(filepath.Ext(path)) {
	case ".vtu":
		pc, err := vtu.ReadFile(path)
		if err != nil {
			return nil, nil, err
		}
		return []input{{name: name, cloud: pc, spacing: a.cfg.Spacing}}, nil, nil
	case ".grain":
		return a.loadGrains(path)
	}
	return nil, nil, fmt.Errorf("%w: %s", ErrUnknownInput, path)
}

func (a *App) loadGrains(path string) ([]input, []engine.EvalError, error) {
	source, err := readSource(path)
	if err != nil {
		return nil, nil, err
	}
	d, evalErrs, err := a.engine.Evaluate(source)
	if err != nil {
		a.log.Printf("Evaluate fatal error: %v", err)
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(evalErrs) > 0 {
		return nil, evalErrs, nil
	}
	if len(d.Grains) == 0 {
		return nil, nil, fmt.Errorf("%s declares no grain", path)
	}

	inputs := make([]input, 0, len(d.Grains))
	for _, g := range d.Grains {
		spacing := a.cfg.Spacing
		if g.Spacing > 0 {
			spacing = g.Spacing
		}
		pc, err := phantom.Sample(a.kernel, g.Solid, spacing, g.Tensor)
		if err != nil {
			return nil, nil, fmt.Errorf("grain %s: %w", g.Name, err)
		}
		a.log.Printf("grain %s: sampled %d points at spacing %g", g.Name, pc.Len(), spacing)
		inputs = append(inputs, input{name: g.Name, cloud: pc, spacing: spacing})
	}
	return inputs, nil, nil
}
