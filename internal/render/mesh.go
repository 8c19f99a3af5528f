// Package render defines the geometry and render-backend contracts the wall
// engine consumes, plus an in-process backend used by the headless runner,
// the terminal console and tests.
package render

import "github.com/go-gl/mathgl/mgl64"

// MeshData is an indexed triangle mesh. Triangles holds three vertex indices
// per triangle, counter-clockwise when seen from outside.
type MeshData struct {
	Vertices  []mgl64.Vec3
	Normals   []mgl64.Vec3
	UVs       []mgl64.Vec2
	Triangles []int
}

// VertexCount returns the number of vertices.
func (m *MeshData) VertexCount() int {
	return len(m.Vertices)
}

// TriangleCount returns the number of triangles.
func (m *MeshData) TriangleCount() int {
	return len(m.Triangles) / 3
}

// RecalculateNormals rebuilds per-vertex normals as the normalised sum of the
// face normals of every triangle that uses the vertex.
func (m *MeshData) RecalculateNormals() {
	normals := make([]mgl64.Vec3, len(m.Vertices))
	for i := 0; i+2 < len(m.Triangles); i += 3 {
		a, b, c := m.Triangles[i], m.Triangles[i+1], m.Triangles[i+2]
		face := m.Vertices[b].Sub(m.Vertices[a]).Cross(m.Vertices[c].Sub(m.Vertices[a]))
		normals[a] = normals[a].Add(face)
		normals[b] = normals[b].Add(face)
		normals[c] = normals[c].Add(face)
	}
	for i, n := range normals {
		if n.Len() > 0 {
			normals[i] = n.Normalize()
		}
	}
	m.Normals = normals
}

// Bounds returns the axis-aligned bounding box of the vertices.
func (m *MeshData) Bounds() Bounds {
	if len(m.Vertices) == 0 {
		return Bounds{}
	}
	lo, hi := m.Vertices[0], m.Vertices[0]
	for _, v := range m.Vertices[1:] {
		for k := 0; k < 3; k++ {
			if v[k] < lo[k] {
				lo[k] = v[k]
			}
			if v[k] > hi[k] {
				hi[k] = v[k]
			}
		}
	}
	return Bounds{
		Center: lo.Add(hi).Mul(0.5),
		Size:   hi.Sub(lo),
	}
}

// Bounds is an axis-aligned box in mesh-local coordinates.
type Bounds struct {
	Center mgl64.Vec3
	Size   mgl64.Vec3
}

// Transform places a node in world space. Scale is applied in local space,
// then Rotation, then the node is moved to Position.
type Transform struct {
	Position mgl64.Vec3
	Rotation mgl64.Quat
	Scale    mgl64.Vec3
}

// Apply maps a mesh-local point into world space.
func (t Transform) Apply(local mgl64.Vec3) mgl64.Vec3 {
	scaled := mgl64.Vec3{local[0] * t.Scale[0], local[1] * t.Scale[1], local[2] * t.Scale[2]}
	return t.Position.Add(t.Rotation.Rotate(scaled))
}
