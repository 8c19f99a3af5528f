package core

import (
	"fmt"
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/wallstream/model"
)

// SurfaceViewer stands at a geo coordinate on a body and is carried with it
// as it spins and orbits.
type SurfaceViewer struct {
	body  *model.Body
	geo   model.GeoCoordinate
	ready bool
}

var _ Viewer = (*SurfaceViewer)(nil)

// NewSurfaceViewer places a viewer on body. It is not ready until SetReady.
func NewSurfaceViewer(body *model.Body, at model.GeoCoordinate) *SurfaceViewer {
	return &SurfaceViewer{body: body, geo: at}
}

func (v *SurfaceViewer) WorldPosition() mgl64.Vec3 {
	if v.body == nil {
		return mgl64.Vec3{}
	}
	return GeoToWorld(v.body, v.geo)
}

func (v *SurfaceViewer) CurrentBody() *model.Body { return v.body }

func (v *SurfaceViewer) Ready() bool { return v.ready && v.body != nil }

// SetReady marks the viewer loaded or unloaded.
func (v *SurfaceViewer) SetReady(ready bool) { v.ready = ready }

// Geo returns the viewer's body-relative position.
func (v *SurfaceViewer) Geo() model.GeoCoordinate { return v.geo }

// SetCoordinate teleports the viewer on its current body.
func (v *SurfaceViewer) SetCoordinate(g model.GeoCoordinate) {
	g.Longitude = normalizeLongitude(g.Longitude)
	v.geo = g
}

// SetBody moves the viewer to another body.
func (v *SurfaceViewer) SetBody(body *model.Body, at model.GeoCoordinate) {
	v.body = body
	v.SetCoordinate(at)
}

// Move walks the viewer north and east by the given number of metres along
// the surface. Latitude clamps at the poles.
func (v *SurfaceViewer) Move(north, east float64) {
	if v.body == nil {
		return
	}
	r := v.body.Shape.EquatorialRadius + v.geo.Altitude
	if r <= 0 {
		return
	}
	lat := v.geo.Latitude + mgl64.RadToDeg(north/r)
	lat = math.Max(-90, math.Min(90, lat))

	lon := v.geo.Longitude
	if c := math.Cos(mgl64.DegToRad(lat)); c > 1e-9 {
		lon += mgl64.RadToDeg(east / (r * c))
	}
	v.geo.Latitude = lat
	v.geo.Longitude = normalizeLongitude(lon)
}

// OrbitalViewer follows a TLE with SGP4. go-satellite reports body-fixed
// (ECEF) kilometres; the viewer maps them through its body into world space.
type OrbitalViewer struct {
	sat   satellite.Satellite
	body  *model.Body
	fixed mgl64.Vec3
	ready bool
}

var _ Viewer = (*OrbitalViewer)(nil)

// NewOrbitalViewerFromTLE builds a viewer orbiting body. Call Propagate
// before use.
func NewOrbitalViewerFromTLE(line1, line2 string, body *model.Body) *OrbitalViewer {
	return &OrbitalViewer{
		sat:  satellite.TLEToSat(line1, line2, satellite.GravityWGS72),
		body: body,
	}
}

// Propagate moves the viewer to simTime. SGP4 is evaluated on whole
// seconds; the position between two seconds is interpolated linearly and the
// fraction is carried into the sidereal angle. A propagation that yields no
// usable position leaves the viewer not ready.
func (v *OrbitalViewer) Propagate(simTime time.Time) error {
	t := simTime.UTC()
	whole := t.Truncate(time.Second)
	frac := t.Sub(whole).Seconds()

	posECI := v.eciAt(whole)
	if frac > 0 {
		next := v.eciAt(whole.Add(time.Second))
		posECI = satellite.Vector3{
			X: posECI.X + (next.X-posECI.X)*frac,
			Y: posECI.Y + (next.Y-posECI.Y)*frac,
			Z: posECI.Z + (next.Z-posECI.Z)*frac,
		}
	}
	year, month, day := whole.Date()
	hour, min, sec := whole.Clock()
	jd := satellite.JDay(year, int(month), day, hour, min, sec) + frac/86400
	posECEF := satellite.ECIToECEF(posECI, satellite.ThetaG_JD(jd))

	const kmToM = 1000.0
	p := mgl64.Vec3{posECEF.X * kmToM, posECEF.Y * kmToM, posECEF.Z * kmToM}
	for _, c := range p {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			v.ready = false
			return fmt.Errorf("orbital viewer: propagation failed at %s", t.Format(time.RFC3339))
		}
	}
	v.fixed = p
	v.ready = true
	return nil
}

func (v *OrbitalViewer) eciAt(t time.Time) satellite.Vector3 {
	year, month, day := t.Date()
	hour, min, sec := t.Clock()
	pos, _ := satellite.Propagate(v.sat, year, int(month), day, hour, min, sec)
	return pos
}

func (v *OrbitalViewer) WorldPosition() mgl64.Vec3 {
	if v.body == nil {
		return v.fixed
	}
	return BodyFixedToWorld(v.body, v.fixed)
}

func (v *OrbitalViewer) CurrentBody() *model.Body { return v.body }

func (v *OrbitalViewer) Ready() bool { return v.ready && v.body != nil }

// Geo returns the sub-satellite point and altitude on the viewer's body.
func (v *OrbitalViewer) Geo() model.GeoCoordinate {
	if v.body == nil {
		return model.GeoCoordinate{}
	}
	return ToGeo(v.body, v.WorldPosition())
}
