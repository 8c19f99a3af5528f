package core

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/signalsfoundry/wallstream/internal/render"
)

// thinFaceUV is the share of the texture mapped across the narrow faces of a
// wall piece, so the texture does not stretch along thin strips.
const thinFaceUV = 0.2

// Unit box corners, named [Front/Back][Bottom/Top][Left/Right]. X runs front
// to back (wall thickness), Y bottom to top (height), Z left to right (length).
var (
	cornerFBL = mgl64.Vec3{0, 0, 0}
	cornerFTL = mgl64.Vec3{0, 1, 0}
	cornerFTR = mgl64.Vec3{0, 1, 1}
	cornerFBR = mgl64.Vec3{0, 0, 1}
	cornerBBL = mgl64.Vec3{1, 0, 0}
	cornerBTL = mgl64.Vec3{1, 1, 0}
	cornerBTR = mgl64.Vec3{1, 1, 1}
	cornerBBR = mgl64.Vec3{1, 0, 1}
)

// boxFace is one quad of the box. Corners are listed so that triangles
// (0,2,1) and (0,3,2) wind counter-clockwise seen from outside.
type boxFace struct {
	name    string
	corners [4]mgl64.Vec3
	uvs     [4]mgl64.Vec2
}

var (
	fullUV   = [4]mgl64.Vec2{{0, 0}, {0, 1}, {1, 1}, {1, 0}}
	shortVUV = [4]mgl64.Vec2{{0, 0}, {0, thinFaceUV}, {1, thinFaceUV}, {1, 0}}
	shortUUV = [4]mgl64.Vec2{{0, 0}, {0, 1}, {thinFaceUV, 1}, {thinFaceUV, 0}}
)

var unitBoxFaces = [6]boxFace{
	{name: "front", corners: [4]mgl64.Vec3{cornerFBL, cornerFTL, cornerFTR, cornerFBR}, uvs: fullUV},
	{name: "top", corners: [4]mgl64.Vec3{cornerFTL, cornerBTL, cornerBTR, cornerFTR}, uvs: shortVUV},
	{name: "left", corners: [4]mgl64.Vec3{cornerBBL, cornerBTL, cornerFTL, cornerFBL}, uvs: shortUUV},
	{name: "right", corners: [4]mgl64.Vec3{cornerFBR, cornerFTR, cornerBTR, cornerBBR}, uvs: shortUUV},
	{name: "back", corners: [4]mgl64.Vec3{cornerBBR, cornerBTR, cornerBTL, cornerBBL}, uvs: fullUV},
	{name: "bottom", corners: [4]mgl64.Vec3{cornerBBL, cornerFBL, cornerFBR, cornerBBR}, uvs: shortVUV},
}

// BuildUnitBox builds the 1x1x1 wall piece: 24 vertices, four per face, so
// faces share neither normals nor UVs and shade flat.
func BuildUnitBox() *render.MeshData {
	m := &render.MeshData{
		Vertices:  make([]mgl64.Vec3, 0, 24),
		UVs:       make([]mgl64.Vec2, 0, 24),
		Triangles: make([]int, 0, 36),
	}
	for _, face := range unitBoxFaces {
		base := len(m.Vertices)
		m.Vertices = append(m.Vertices, face.corners[:]...)
		m.UVs = append(m.UVs, face.uvs[:]...)
		m.Triangles = append(m.Triangles,
			base, base+2, base+1,
			base, base+3, base+2,
		)
	}
	m.RecalculateNormals()
	return m
}
