// Package kernel defines the abstract geometry kernel interface.
// Implementations provide solid modeling for phantom grains and
// isosurface extraction for sampled volumes behind this interface, so
// the hull pipeline does not depend on a particular geometry library.
package kernel

// Solid is an opaque handle to a geometry kernel solid.
// Implementations wrap their internal representation.
type Solid interface {
	// BoundingBox returns the axis-aligned bounding box.
	BoundingBox() (min, max [3]float64)
}

// Volume is a scalar field sampled on an integer grid. Indices outside
// Dims read as zero.
type Volume interface {
	Dims() [3]int
	At(i, j, k int) float64
}

// Kernel is the abstract geometry kernel interface.
type Kernel interface {
	// Primitives, centered on the origin.
	Box(x, y, z float64) Solid
	Sphere(radius float64) Solid
	Cylinder(height, radius float64) Solid

	// Boolean operations
	Union(a, b Solid) Solid
	Difference(a, b Solid) Solid
	Intersection(a, b Solid) Solid

	// Transforms
	Translate(s Solid, x, y, z float64) Solid
	Rotate(s Solid, x, y, z float64) Solid // Euler angles in degrees

	// Contains reports whether the point lies inside or on the solid.
	Contains(s Solid, x, y, z float64) bool

	// Isosurface triangulates the boundary where v crosses level. The
	// returned mesh is in v's index space. A volume that never crosses
	// level yields an empty mesh and no error.
	Isosurface(v Volume, level float64) (*Mesh, error)
}
