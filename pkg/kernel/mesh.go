package kernel

import "gonum.org/v1/gonum/spatial/r3"

// Mesh is an indexed triangle mesh.
// All arrays are flat: vertices has 3 floats per vertex (x,y,z),
// normals has 3 floats per vertex, indices has 3 entries per triangle.
// Meshes are not modified after construction; Translate returns a copy.
type Mesh struct {
	Vertices []float64 `json:"vertices"` // [x0,y0,z0, x1,y1,z1, ...]
	Normals  []float64 `json:"normals"`  // [nx0,ny0,nz0, ...]
	Indices  []uint32  `json:"indices"`  // [i0,i1,i2, ...] triangles
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices) / 3
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// IsEmpty returns true if the mesh has no geometry.
func (m *Mesh) IsEmpty() bool {
	return len(m.Vertices) == 0
}

// Vertex returns vertex i.
func (m *Mesh) Vertex(i int) r3.Vec {
	return r3.Vec{X: m.Vertices[3*i], Y: m.Vertices[3*i+1], Z: m.Vertices[3*i+2]}
}

// Normal returns the normal of vertex i.
func (m *Mesh) Normal(i int) r3.Vec {
	return r3.Vec{X: m.Normals[3*i], Y: m.Normals[3*i+1], Z: m.Normals[3*i+2]}
}

// Face returns the vertex indices of triangle i.
func (m *Mesh) Face(i int) [3]int {
	return [3]int{int(m.Indices[3*i]), int(m.Indices[3*i+1]), int(m.Indices[3*i+2])}
}

// VertexList returns the vertices in emission order.
func (m *Mesh) VertexList() []r3.Vec {
	out := make([]r3.Vec, m.VertexCount())
	for i := range out {
		out[i] = m.Vertex(i)
	}
	return out
}

// NormalList returns the vertex normals in emission order.
func (m *Mesh) NormalList() []r3.Vec {
	out := make([]r3.Vec, len(m.Normals)/3)
	for i := range out {
		out[i] = m.Normal(i)
	}
	return out
}

// Translate returns a copy of the mesh with every vertex moved by d.
// Normals and faces are shared with the receiver.
func (m *Mesh) Translate(d r3.Vec) *Mesh {
	verts := make([]float64, len(m.Vertices))
	for i := 0; i < len(verts); i += 3 {
		verts[i] = m.Vertices[i] + d.X
		verts[i+1] = m.Vertices[i+1] + d.Y
		verts[i+2] = m.Vertices[i+2] + d.Z
	}
	return &Mesh{
		Vertices: verts,
		Normals:  m.Normals,
		Indices:  m.Indices,
	}
}
