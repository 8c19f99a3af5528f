package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/wallstream/model"
)

// BodyMotionModel yields a body's spin angle (radians about +Z) and the
// world position of its centre at a simulation time.
type BodyMotionModel interface {
	BodyState(simTime time.Time) (rotation float64, position mgl64.Vec3)
}

// StaticBody never moves.
type StaticBody struct {
	Rotation float64
	Position mgl64.Vec3
}

// BodyState returns the fixed state.
func (s StaticBody) BodyState(time.Time) (float64, mgl64.Vec3) {
	return s.Rotation, s.Position
}

// CircularOrbit moves a body's centre around a fixed point in the XY plane.
type CircularOrbit struct {
	Center mgl64.Vec3
	Radius float64 // metres
	Period float64 // seconds
	Phase  float64 // radians at the reference epoch
}

func (o CircularOrbit) position(elapsed float64) mgl64.Vec3 {
	angle := o.Phase
	if o.Period > 0 {
		angle += 2 * math.Pi * elapsed / o.Period
	}
	return o.Center.Add(mgl64.Vec3{o.Radius * math.Cos(angle), o.Radius * math.Sin(angle), 0})
}

// FixedRotation spins a body at a constant rate, optionally on a circular
// orbit. Elapsed time is measured from Epoch.
type FixedRotation struct {
	Epoch        time.Time
	Period       float64 // sidereal day in seconds
	InitialAngle float64 // radians
	Position     mgl64.Vec3
	Orbit        *CircularOrbit
}

// BodyState computes the spin and centre at simTime.
func (r FixedRotation) BodyState(simTime time.Time) (float64, mgl64.Vec3) {
	elapsed := simTime.Sub(r.Epoch).Seconds()
	rot := r.InitialAngle
	if r.Period > 0 {
		rot += 2 * math.Pi * math.Mod(elapsed/r.Period, 1)
	}
	rot = wrapAngle(rot)

	pos := r.Position
	if r.Orbit != nil {
		pos = r.Orbit.position(elapsed)
	}
	return rot, pos
}

// SiderealRotation turns an Earth-like body by Greenwich mean sidereal time,
// keeping its centre fixed.
type SiderealRotation struct {
	Position mgl64.Vec3
}

// BodyState returns GMST at simTime.
func (s SiderealRotation) BodyState(simTime time.Time) (float64, mgl64.Vec3) {
	return gmst(simTime), s.Position
}

func gmst(t time.Time) float64 {
	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()
	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	return wrapAngle(satellite.ThetaG_JD(jd))
}

func wrapAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a
}

// BodyStateUpdater receives computed body states. kb.KnowledgeBase
// implements it.
type BodyStateUpdater interface {
	UpdateBodyState(name string, rotation float64, position mgl64.Vec3) error
}

// BodyMotion holds one motion model per body and pushes their states into a
// BodyStateUpdater.
type BodyMotion struct {
	target BodyStateUpdater
	models map[string]BodyMotionModel
}

// NewBodyMotion returns an empty motion registry writing to target.
func NewBodyMotion(target BodyStateUpdater) *BodyMotion {
	return &BodyMotion{target: target, models: make(map[string]BodyMotionModel)}
}

// Set assigns a motion model to a body, replacing any previous one.
func (m *BodyMotion) Set(name string, model BodyMotionModel) {
	m.models[name] = model
}

// UpdateBodies evaluates every model at simTime in name order. Failures are
// collected; one bad body does not stop the others.
func (m *BodyMotion) UpdateBodies(simTime time.Time) error {
	names := make([]string, 0, len(m.models))
	for name := range m.models {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		rot, pos := m.models[name].BodyState(simTime)
		if err := m.target.UpdateBodyState(name, rot, pos); err != nil {
			errs = append(errs, fmt.Errorf("update body %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// BodyDefinition is a body plus how it moves.
type BodyDefinition struct {
	Body   model.Body
	Motion BodyMotionModel
}

// BodyRegistry accepts new bodies. kb.KnowledgeBase implements it.
type BodyRegistry interface {
	AddBody(b *model.Body) error
}

// InstallBodies adds each definition to reg and its motion model to motion,
// then evaluates every model once at simTime.
func InstallBodies(reg BodyRegistry, motion *BodyMotion, defs []BodyDefinition, simTime time.Time) error {
	for _, d := range defs {
		b := d.Body
		if err := reg.AddBody(&b); err != nil {
			return fmt.Errorf("install body %q: %w", d.Body.Name, err)
		}
		if d.Motion != nil {
			motion.Set(d.Body.Name, d.Motion)
		}
	}
	return motion.UpdateBodies(simTime)
}

// Stock body constants.
const (
	KerbinRadius    = 600000.0
	KerbinDay       = 21549.425
	MunRadius       = 200000.0
	MunOrbitRadius  = 12000000.0
	MunOrbitPeriod  = 138984.38
	WGS84SemiMajor  = 6378137.0
	WGS84Flattening = 1 / 298.257223563
)

// DefaultBodies returns the stock catalogue: Kerbin at the origin, the Mun
// tidally locked on a circular orbit around it, and Earth on WGS84 placed far
// from both and turned by sidereal time.
func DefaultBodies(epoch time.Time) []BodyDefinition {
	return []BodyDefinition{
		{
			Body:   model.Body{Name: "Kerbin", Shape: model.BodyShape{EquatorialRadius: KerbinRadius}},
			Motion: FixedRotation{Epoch: epoch, Period: KerbinDay},
		},
		{
			Body: model.Body{Name: "Mun", Shape: model.BodyShape{EquatorialRadius: MunRadius}},
			Motion: FixedRotation{
				Epoch:  epoch,
				Period: MunOrbitPeriod,
				Orbit:  &CircularOrbit{Radius: MunOrbitRadius, Period: MunOrbitPeriod},
			},
		},
		{
			Body: model.Body{Name: "Earth", Shape: model.BodyShape{
				EquatorialRadius: WGS84SemiMajor,
				Flattening:       WGS84Flattening,
			}},
			Motion: SiderealRotation{Position: mgl64.Vec3{1e9, 0, 0}},
		},
	}
}

// internal JSON shapes for the body catalogue file.
type bodyCatalogueJSON struct {
	Bodies []bodyJSON `json:"bodies"`
}

type bodyJSON struct {
	Name             string     `json:"name"`
	EquatorialRadius float64    `json:"equatorial_radius"`
	Flattening       float64    `json:"flattening"`
	Motion           motionJSON `json:"motion"`
}

type motionJSON struct {
	Kind            string     `json:"kind"` // "static" | "rotation" | "sidereal"
	PeriodSeconds   float64    `json:"period_s"`
	InitialAngleDeg float64    `json:"initial_angle_deg"`
	Position        [3]float64 `json:"position"`
	Orbit           *orbitJSON `json:"orbit,omitempty"`
}

type orbitJSON struct {
	Center        [3]float64 `json:"center"`
	Radius        float64    `json:"radius"`
	PeriodSeconds float64    `json:"period_s"`
	PhaseDeg      float64    `json:"phase_deg"`
}

// LoadBodyCatalogue reads a JSON body catalogue. Rotation models use epoch as
// their reference time.
func LoadBodyCatalogue(r io.Reader, epoch time.Time) ([]BodyDefinition, error) {
	var in bodyCatalogueJSON
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return nil, fmt.Errorf("decode body catalogue: %w", err)
	}
	if len(in.Bodies) == 0 {
		return nil, fmt.Errorf("body catalogue: no bodies")
	}

	defs := make([]BodyDefinition, 0, len(in.Bodies))
	for i, b := range in.Bodies {
		if b.Name == "" {
			return nil, fmt.Errorf("body catalogue: body %d has no name", i)
		}
		m, err := motionFromJSON(b.Motion, epoch)
		if err != nil {
			return nil, fmt.Errorf("body catalogue: body %q: %w", b.Name, err)
		}
		defs = append(defs, BodyDefinition{
			Body: model.Body{
				Name:  b.Name,
				Shape: model.BodyShape{EquatorialRadius: b.EquatorialRadius, Flattening: b.Flattening},
			},
			Motion: m,
		})
	}
	return defs, nil
}

func motionFromJSON(m motionJSON, epoch time.Time) (BodyMotionModel, error) {
	pos := mgl64.Vec3(m.Position)
	switch strings.ToLower(m.Kind) {
	case "", "static":
		return StaticBody{Rotation: mgl64.DegToRad(m.InitialAngleDeg), Position: pos}, nil
	case "rotation":
		if m.PeriodSeconds <= 0 {
			return nil, fmt.Errorf("rotation period must be positive")
		}
		r := FixedRotation{
			Epoch:        epoch,
			Period:       m.PeriodSeconds,
			InitialAngle: mgl64.DegToRad(m.InitialAngleDeg),
			Position:     pos,
		}
		if m.Orbit != nil {
			r.Orbit = &CircularOrbit{
				Center: mgl64.Vec3(m.Orbit.Center),
				Radius: m.Orbit.Radius,
				Period: m.Orbit.PeriodSeconds,
				Phase:  mgl64.DegToRad(m.Orbit.PhaseDeg),
			}
		}
		return r, nil
	case "sidereal":
		return SiderealRotation{Position: pos}, nil
	default:
		return nil, fmt.Errorf("unknown motion kind %q", m.Kind)
	}
}
