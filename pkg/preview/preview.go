// Package preview renders point clouds as axis-aligned scatter plots so a
// hull can be checked by eye against the cloud it came from.
package preview

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Layer is one labelled set of points drawn in a single colour.
type Layer struct {
	Label  string
	Points []r3.Vec
	Color  color.Color
}

// Palette colours for the usual two layers.
var (
	CloudColor = color.RGBA{R: 160, G: 160, B: 160, A: 255}
	HullColor  = color.RGBA{R: 200, G: 30, B: 30, A: 255}
)

// projection names a pair of axes.
type projection struct {
	name   string
	xLabel string
	yLabel string
	pick   func(p r3.Vec) (float64, float64)
}

var projections = []projection{
	{"xy", "X", "Y", func(p r3.Vec) (float64, float64) { return p.X, p.Y }},
	{"xz", "X", "Z", func(p r3.Vec) (float64, float64) { return p.X, p.Z }},
	{"yz", "Y", "Z", func(p r3.Vec) (float64, float64) { return p.Y, p.Z }},
}

// Plotter writes PNG projections into a directory.
type Plotter struct {
	outputDir string
	size      vg.Length
}

// NewPlotter creates outputDir if needed.
func NewPlotter(outputDir string) (*Plotter, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create plot directory: %w", err)
	}
	return &Plotter{outputDir: outputDir, size: 8 * vg.Inch}, nil
}

// Projections draws layers onto the XY, XZ and YZ planes and saves one
// PNG per plane as <name>_<plane>.png. Later layers draw on top. Empty
// layers are skipped. It returns the written file paths.
func (pl *Plotter) Projections(name, title string, layers ...Layer) ([]string, error) {
	var files []string
	for _, pr := range projections {
		p := plot.New()
		p.Title.Text = fmt.Sprintf("%s (%s)", title, pr.name)
		p.X.Label.Text = pr.xLabel
		p.Y.Label.Text = pr.yLabel
		p.Legend.Top = true

		for _, l := range layers {
			if len(l.Points) == 0 {
				continue
			}
			xys := make(plotter.XYs, len(l.Points))
			for i, pt := range l.Points {
				xys[i].X, xys[i].Y = pr.pick(pt)
			}
			s, err := plotter.NewScatter(xys)
			if err != nil {
				return files, fmt.Errorf("%s layer %q: %w", pr.name, l.Label, err)
			}
			s.GlyphStyle.Color = l.Color
			s.GlyphStyle.Radius = vg.Points(1.5)
			p.Add(s)
			p.Legend.Add(l.Label, s)
		}

		file := filepath.Join(pl.outputDir, fmt.Sprintf("%s_%s.png", name, pr.name))
		if err := p.Save(pl.size, pl.size, file); err != nil {
			return files, fmt.Errorf("save %s plot: %w", pr.name, err)
		}
		files = append(files, file)
	}
	return files, nil
}
