package sdfx

import (
	"math"

	"github.com/chazu/grainhull/pkg/kernel"
	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"gonum.org/v1/gonum/spatial/r3"
)

// weldScale quantizes vertex positions when merging the triangle soup
// into shared vertices.
const weldScale = 1e6

// volumeSDF presents a sampled volume as a signed distance field that is
// negative where the volume exceeds level.
type volumeSDF struct {
	v     kernel.Volume
	level float64
	bb    sdf.Box3
}

// newVolumeSDF bounds the field by [-0.5, n-0.5] on each axis. With one
// marching cell per unit along the longest axis, sdfx widens that box by
// one cell and samples at exactly the integer indices -1..n.
func newVolumeSDF(v kernel.Volume, level float64) *volumeSDF {
	d := v.Dims()
	return &volumeSDF{
		v:     v,
		level: level,
		bb: sdf.Box3{
			Min: v3.Vec{X: -0.5, Y: -0.5, Z: -0.5},
			Max: v3.Vec{X: float64(d[0]) - 0.5, Y: float64(d[1]) - 0.5, Z: float64(d[2]) - 0.5},
		},
	}
}

// Evaluate returns level minus the trilinearly interpolated volume value.
func (s *volumeSDF) Evaluate(p v3.Vec) float64 {
	x0, y0, z0 := math.Floor(p.X), math.Floor(p.Y), math.Floor(p.Z)
	fx, fy, fz := p.X-x0, p.Y-y0, p.Z-z0
	i, j, k := int(x0), int(y0), int(z0)

	var value float64
	for di := 0; di < 2; di++ {
		wx := 1 - fx
		if di == 1 {
			wx = fx
		}
		if wx == 0 {
			continue
		}
		for dj := 0; dj < 2; dj++ {
			wy := 1 - fy
			if dj == 1 {
				wy = fy
			}
			if wy == 0 {
				continue
			}
			for dk := 0; dk < 2; dk++ {
				wz := 1 - fz
				if dk == 1 {
					wz = fz
				}
				if wz == 0 {
					continue
				}
				value += wx * wy * wz * s.v.At(i+di, j+dj, k+dk)
			}
		}
	}
	return s.level - value
}

// BoundingBox returns the sampled region.
func (s *volumeSDF) BoundingBox() sdf.Box3 {
	return s.bb
}

// Isosurface runs uniform marching cubes over v at unit step and returns
// an indexed mesh with area-weighted vertex normals pointing out of the
// region where v exceeds level. Vertices are numbered in the order the
// triangles first reference them.
func (k *SdfxKernel) Isosurface(v kernel.Volume, level float64) (*kernel.Mesh, error) {
	if !crosses(v, level) {
		return &kernel.Mesh{}, nil
	}

	d := v.Dims()
	cells := max(d[0], d[1], d[2])
	renderer := render.NewMarchingCubesUniform(cells)
	triangles := render.ToTriangles(newVolumeSDF(v, level), renderer)

	w := newWelder(len(triangles))
	for _, tri := range triangles {
		var idx [3]uint32
		for j := 0; j < 3; j++ {
			p := tri[j]
			idx[j] = w.vertex(r3.Vec{X: p.X, Y: p.Y, Z: p.Z})
		}
		w.face(idx)
	}
	return w.mesh(), nil
}

// crosses reports whether v has samples on both sides of level.
func crosses(v kernel.Volume, level float64) bool {
	d := v.Dims()
	var above, below bool
	for i := 0; i < d[0]; i++ {
		for j := 0; j < d[1]; j++ {
			for k := 0; k < d[2]; k++ {
				if v.At(i, j, k) >= level {
					above = true
				} else {
					below = true
				}
				if above && below {
					return true
				}
			}
		}
	}
	return false
}

// welder merges coincident triangle corners into shared vertices and
// accumulates face normals per vertex.
type welder struct {
	index   map[[3]int64]uint32
	verts   []r3.Vec
	normals []r3.Vec
	faces   []uint32
}

func newWelder(triangles int) *welder {
	return &welder{
		index: make(map[[3]int64]uint32, triangles/2),
		faces: make([]uint32, 0, 3*triangles),
	}
}

func (w *welder) vertex(p r3.Vec) uint32 {
	key := [3]int64{
		int64(math.Round(p.X * weldScale)),
		int64(math.Round(p.Y * weldScale)),
		int64(math.Round(p.Z * weldScale)),
	}
	if i, ok := w.index[key]; ok {
		return i
	}
	i := uint32(len(w.verts))
	w.index[key] = i
	w.verts = append(w.verts, p)
	w.normals = append(w.normals, r3.Vec{})
	return i
}

func (w *welder) face(idx [3]uint32) {
	if idx[0] == idx[1] || idx[1] == idx[2] || idx[0] == idx[2] {
		return
	}
	a, b, c := w.verts[idx[0]], w.verts[idx[1]], w.verts[idx[2]]
	// Unnormalized, so larger faces weigh more.
	n := r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
	for _, i := range idx {
		w.normals[i] = r3.Add(w.normals[i], n)
	}
	w.faces = append(w.faces, idx[:]...)
}

func (w *welder) mesh() *kernel.Mesh {
	m := &kernel.Mesh{
		Vertices: make([]float64, 0, 3*len(w.verts)),
		Normals:  make([]float64, 0, 3*len(w.verts)),
		Indices:  w.faces,
	}
	for i, p := range w.verts {
		n := w.normals[i]
		if l := r3.Norm(n); l > 0 {
			n = r3.Scale(1/l, n)
		}
		m.Vertices = append(m.Vertices, p.X, p.Y, p.Z)
		m.Normals = append(m.Normals, n.X, n.Y, n.Z)
	}
	return m
}
