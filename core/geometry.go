package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/signalsfoundry/wallstream/model"
)

// maxGeodeticIterations bounds the latitude fixed-point iteration in ToGeo.
// Convergence to machine precision takes fewer than ten steps for any
// planetary flattening.
const maxGeodeticIterations = 20

// WorldToBodyFixed maps a world-space point into the body's rotating frame,
// whose +Z axis is the spin axis and whose +X axis crosses the equator at
// longitude 0.
func WorldToBodyFixed(b *model.Body, world mgl64.Vec3) mgl64.Vec3 {
	rel := world.Sub(b.Position)
	return mgl64.Rotate3DZ(-b.Rotation).Mul3x1(rel)
}

// BodyFixedToWorld is the inverse of WorldToBodyFixed.
func BodyFixedToWorld(b *model.Body, fixed mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Rotate3DZ(b.Rotation).Mul3x1(fixed).Add(b.Position)
}

// geodeticToFixed converts geodetic coordinates to the body-fixed frame.
func geodeticToFixed(shape model.BodyShape, lat, lon, alt float64) mgl64.Vec3 {
	phi := mgl64.DegToRad(lat)
	lambda := mgl64.DegToRad(lon)
	sinPhi, cosPhi := math.Sincos(phi)
	sinLambda, cosLambda := math.Sincos(lambda)

	e2 := shape.EccentricitySquared()
	n := shape.EquatorialRadius / math.Sqrt(1-e2*sinPhi*sinPhi)

	return mgl64.Vec3{
		(n + alt) * cosPhi * cosLambda,
		(n + alt) * cosPhi * sinLambda,
		(n*(1-e2) + alt) * sinPhi,
	}
}

// fixedToGeodetic converts a body-fixed point to geodetic coordinates.
func fixedToGeodetic(shape model.BodyShape, p mgl64.Vec3) model.GeoCoordinate {
	x, y, z := p[0], p[1], p[2]
	lon := math.Atan2(y, x)
	r := math.Hypot(x, y)
	a := shape.EquatorialRadius
	e2 := shape.EccentricitySquared()

	if e2 == 0 {
		lat := math.Atan2(z, r)
		return model.GeoCoordinate{
			Latitude:  mgl64.RadToDeg(lat),
			Longitude: normalizeLongitude(mgl64.RadToDeg(lon)),
			Altitude:  math.Hypot(r, z) - a,
		}
	}

	phi := math.Atan2(z, r*(1-e2))
	var alt float64
	for i := 0; i < maxGeodeticIterations; i++ {
		sinPhi, cosPhi := math.Sincos(phi)
		n := a / math.Sqrt(1-e2*sinPhi*sinPhi)
		// Near the poles r/cos(phi) loses precision; use the z form instead.
		if math.Abs(cosPhi) > math.Abs(sinPhi) {
			alt = r/cosPhi - n
		} else {
			alt = z/sinPhi - n*(1-e2)
		}
		next := math.Atan2(z, r*(1-e2*n/(n+alt)))
		if math.Abs(next-phi) < 1e-15 {
			phi = next
			break
		}
		phi = next
	}
	sinPhi, cosPhi := math.Sincos(phi)
	n := a / math.Sqrt(1-e2*sinPhi*sinPhi)
	if math.Abs(cosPhi) > math.Abs(sinPhi) {
		alt = r/cosPhi - n
	} else {
		alt = z/sinPhi - n*(1-e2)
	}

	return model.GeoCoordinate{
		Latitude:  mgl64.RadToDeg(phi),
		Longitude: normalizeLongitude(mgl64.RadToDeg(lon)),
		Altitude:  alt,
	}
}

// normalizeLongitude folds degrees into (-180, 180].
func normalizeLongitude(lon float64) float64 {
	lon = math.Mod(lon, 360)
	if lon > 180 {
		lon -= 360
	} else if lon <= -180 {
		lon += 360
	}
	return lon
}

// ToWorld maps a body-relative coordinate to world space using the body's
// current rotation and position.
func ToWorld(b *model.Body, lat, lon, alt float64) mgl64.Vec3 {
	return BodyFixedToWorld(b, geodeticToFixed(b.Shape, lat, lon, alt))
}

// GeoToWorld is ToWorld for a GeoCoordinate.
func GeoToWorld(b *model.Body, g model.GeoCoordinate) mgl64.Vec3 {
	return ToWorld(b, g.Latitude, g.Longitude, g.Altitude)
}

// ToGeo maps a world-space point back to latitude, longitude and altitude
// above the body's reference surface.
func ToGeo(b *model.Body, world mgl64.Vec3) model.GeoCoordinate {
	return fixedToGeodetic(b.Shape, WorldToBodyFixed(b, world))
}

// SurfaceUp returns the unit surface normal of the reference ellipsoid at the
// given latitude and longitude, in world space.
func SurfaceUp(b *model.Body, lat, lon float64) mgl64.Vec3 {
	sinPhi, cosPhi := math.Sincos(mgl64.DegToRad(lat))
	sinLambda, cosLambda := math.Sincos(mgl64.DegToRad(lon))
	n := mgl64.Vec3{cosPhi * cosLambda, cosPhi * sinLambda, sinPhi}
	return mgl64.Rotate3DZ(b.Rotation).Mul3x1(n).Normalize()
}

// LookRotation returns the rotation that turns local +Z towards forward and
// keeps local +Y as close to up as possible. A zero forward yields the
// identity; an up parallel to forward is replaced by another axis.
func LookRotation(forward, up mgl64.Vec3) mgl64.Quat {
	if forward.Len() == 0 {
		return mgl64.QuatIdent()
	}
	f := forward.Normalize()

	right := up.Cross(f)
	if right.Len() < 1e-9 {
		for _, alt := range []mgl64.Vec3{{0, 0, 1}, {1, 0, 0}, {0, 1, 0}} {
			right = alt.Cross(f)
			if right.Len() >= 1e-9 {
				break
			}
		}
	}
	right = right.Normalize()
	u := f.Cross(right)

	basis := mgl64.Mat3FromCols(right, u, f)
	return mgl64.Mat4ToQuat(basis.Mat4()).Normalize()
}
