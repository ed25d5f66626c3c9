// Package project snaps isosurface vertices onto points of the cloud they
// were extracted from, consuming each point at most once.
package project

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultMinParallel is the pool size below which a vertex is scanned on
// the calling goroutine.
const DefaultMinParallel = 8192

var (
	// ErrPoolExhausted is returned when the mesh has more vertices than the
	// pool has points.
	ErrPoolExhausted = errors.New("candidate pool exhausted")

	// ErrNoCandidate is returned when every remaining point is at a
	// non-finite distance from a vertex.
	ErrNoCandidate = errors.New("no candidate at finite distance")

	// ErrLengthMismatch is returned when vertices and normals differ in length.
	ErrLengthMismatch = errors.New("vertices and normals differ in length")
)

// Options tunes a projection pass. The zero value scans sequentially and
// selects by absolute plane distance.
type Options struct {
	// Workers is the number of goroutines scanning the pool for one vertex.
	// Zero or negative means runtime.GOMAXPROCS(0).
	Workers int

	// MinParallel is the pool size at which scanning goes parallel.
	// Zero means DefaultMinParallel.
	MinParallel int

	// PreferOutside picks the nearest point in front of the tangent plane
	// whenever one is available.
	PreferOutside bool
}

func (o Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (o Options) minParallel() int {
	if o.MinParallel > 0 {
		return o.MinParallel
	}
	return DefaultMinParallel
}

// Assignment records the pool point chosen for one mesh vertex.
type Assignment struct {
	Vertex   int     // mesh vertex index
	Point    int     // index into the pool passed to Project
	Voxel    r3.Vec  // the chosen point's coordinates
	Distance float64 // signed plane distance, or Euclidean for degenerate normals
}

// candidate is a scan winner: pos is its position in the available list.
type candidate struct {
	pos  int
	dist float64 // signed
	key  float64 // what is minimized
	ok   bool
}

// better orders candidates by key, then by pool position.
func (c candidate) better(o candidate) bool {
	if !o.ok {
		return c.ok
	}
	if !c.ok {
		return false
	}
	if c.key != o.key {
		return c.key < o.key
	}
	return c.pos < o.pos
}

// Project visits vertices in order and assigns each the available pool
// point closest to the plane through the vertex with its normal. Chosen
// points leave the pool, so no point is assigned twice. Ties resolve to
// the point earliest in pool order.
func Project(ctx context.Context, pool []r3.Vec, vertices, normals []r3.Vec, opts Options) ([]Assignment, error) {
	if len(vertices) != len(normals) {
		return nil, fmt.Errorf("%w: %d vertices, %d normals", ErrLengthMismatch, len(vertices), len(normals))
	}
	if len(vertices) > len(pool) {
		return nil, fmt.Errorf("%w: %d vertices, %d points", ErrPoolExhausted, len(vertices), len(pool))
	}

	available := make([]int, len(pool))
	for i := range available {
		available[i] = i
	}

	out := make([]Assignment, 0, len(vertices))
	for v := range vertices {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(available) == 0 {
			return nil, fmt.Errorf("%w at vertex %d", ErrPoolExhausted, v)
		}

		m := newMetric(vertices[v], normals[v])
		best, err := scan(ctx, pool, available, m, opts)
		if err != nil {
			return nil, err
		}
		if !best.ok {
			return nil, fmt.Errorf("%w: vertex %d", ErrNoCandidate, v)
		}

		p := available[best.pos]
		out = append(out, Assignment{Vertex: v, Point: p, Voxel: pool[p], Distance: best.dist})
		available = append(available[:best.pos], available[best.pos+1:]...)
	}
	return out, nil
}

// scan finds the best candidate for one vertex, splitting large pools
// into contiguous chunks across workers.
func scan(ctx context.Context, pool []r3.Vec, available []int, m metric, opts Options) (candidate, error) {
	n := len(available)
	prefer := opts.PreferOutside && m.plane
	workers := opts.workers()
	if workers <= 1 || n < opts.minParallel() {
		return scanRange(pool, available, 0, n, m, prefer), nil
	}

	chunk := (n + workers - 1) / workers
	results := make([]candidate, workers)
	g, _ := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		lo := w * chunk
		if lo >= n {
			break
		}
		hi := min(lo+chunk, n)
		g.Go(func() error {
			results[w] = scanRange(pool, available, lo, hi, m, prefer)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return candidate{}, err
	}

	return reduce(results, prefer), nil
}

// scanRange scans available[lo:hi]. With preferOutside it tracks the
// best point in front of the plane and the best overall separately and
// returns the former when it exists.
func scanRange(pool []r3.Vec, available []int, lo, hi int, m metric, preferOutside bool) candidate {
	var best, outside candidate
	for pos := lo; pos < hi; pos++ {
		d := m.distance(pool[available[pos]])
		if math.IsNaN(d) || math.IsInf(d, 0) {
			continue
		}
		c := candidate{pos: pos, dist: d, key: math.Abs(d), ok: true}
		if c.better(best) {
			best = c
		}
		if preferOutside && d > 0 && c.better(outside) {
			outside = c
		}
	}
	if preferOutside && outside.ok {
		return outside
	}
	return best
}

// reduce merges per-chunk winners. Outside candidates beat any inside one.
func reduce(results []candidate, preferOutside bool) candidate {
	var best, outside candidate
	for _, c := range results {
		if preferOutside && c.ok && c.dist > 0 {
			if c.better(outside) {
				outside = c
			}
			continue
		}
		if c.better(best) {
			best = c
		}
	}
	if outside.ok {
		return outside
	}
	return best
}

// metric measures pool points against one vertex.
type metric struct {
	v      r3.Vec
	n      r3.Vec // unit normal; zero when degenerate
	offset float64
	plane  bool
}

func newMetric(v, n r3.Vec) metric {
	l := r3.Norm(n)
	if l == 0 || math.IsNaN(l) || math.IsInf(l, 0) {
		return metric{v: v}
	}
	u := r3.Scale(1/l, n)
	return metric{v: v, n: u, offset: r3.Dot(u, v), plane: true}
}

// distance is the signed distance from p to the tangent plane, positive
// on the side the normal points to. Without a usable normal it is the
// Euclidean distance to the vertex.
func (m metric) distance(p r3.Vec) float64 {
	if !m.plane {
		return r3.Norm(r3.Sub(p, m.v))
	}
	return r3.Dot(m.n, p) - m.offset
}
