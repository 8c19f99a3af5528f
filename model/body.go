package model

import "github.com/go-gl/mathgl/mgl64"

// BodyShape describes the reference ellipsoid of a body. A zero Flattening
// is a sphere of radius EquatorialRadius.
type BodyShape struct {
	EquatorialRadius float64 // metres
	Flattening       float64 // (a-b)/a
}

// PolarRadius returns the semi-minor axis in metres.
func (s BodyShape) PolarRadius() float64 {
	return s.EquatorialRadius * (1 - s.Flattening)
}

// EccentricitySquared returns e² = f(2-f).
func (s BodyShape) EccentricitySquared() float64 {
	return s.Flattening * (2 - s.Flattening)
}

// Body is a large rotating sphere or ellipsoid (a planet or moon) that anchors
// geo-relative positions. Motion models update Rotation and Position in place.
type Body struct {
	Name  string
	Shape BodyShape

	// Rotation is the body's spin about its +Z axis, in radians.
	Rotation float64
	// Position is the world-space position of the body's centre in metres.
	Position mgl64.Vec3

	// Epoch increases every time Rotation or Position changes, so consumers
	// can tell when cached world-space data went stale.
	Epoch uint64
}
