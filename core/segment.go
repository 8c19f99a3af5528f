package core

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/signalsfoundry/wallstream/internal/render"
	"github.com/signalsfoundry/wallstream/model"
)

// SegmentMesh is one short straight wall piece. It stores its endpoints in
// body-relative coordinates and re-resolves them to world space on every
// tick in which the body has moved, since world positions drift as the body
// spins and orbits.
type SegmentMesh struct {
	host *Host

	start      model.GeoCoordinate
	end        model.GeoCoordinate
	collidable bool

	mesh        render.MeshHandle
	node        render.NodeHandle
	bounds      render.Bounds
	hasCollider bool
	destroyed   bool

	placed    bool
	lastBody  *model.Body
	lastEpoch uint64
	transform render.Transform
}

// NewSegmentMesh builds the unit box once, uploads it, creates its render
// node and, when collidable, attaches a collider. On any backend failure the
// handles created so far are released and the error is returned.
func NewSegmentMesh(host *Host, start, end model.GeoCoordinate, collidable bool) (*SegmentMesh, error) {
	if host == nil || host.Backend == nil {
		return nil, fmt.Errorf("segment mesh: no render backend")
	}
	s := &SegmentMesh{
		host:       host,
		start:      start,
		end:        end,
		collidable: collidable,
	}

	data := BuildUnitBox()
	s.bounds = data.Bounds()

	mesh, err := host.Backend.CreateMesh(data)
	if err != nil {
		return nil, fmt.Errorf("segment mesh: %w", err)
	}
	s.mesh = mesh

	var texture render.TextureHandle
	if host.Texture != nil {
		texture = host.Texture.Handle()
	}
	node, err := host.Backend.CreateNode(mesh, texture)
	if err != nil {
		s.release()
		return nil, fmt.Errorf("segment mesh: %w", err)
	}
	s.node = node

	if collidable {
		if err := host.Backend.AttachCollider(node, s.bounds); err != nil {
			s.release()
			return nil, fmt.Errorf("segment mesh: %w", err)
		}
		s.hasCollider = true
	}
	return s, nil
}

// Start returns the body-relative start point.
func (s *SegmentMesh) Start() model.GeoCoordinate { return s.start }

// End returns the body-relative end point.
func (s *SegmentMesh) End() model.GeoCoordinate { return s.end }

// Collidable reports whether the segment carries (or will carry) a collider.
func (s *SegmentMesh) Collidable() bool { return s.collidable }

// Node returns the render node, or zero once destroyed.
func (s *SegmentMesh) Node() render.NodeHandle { return s.node }

// Destroyed reports whether Destroy has run.
func (s *SegmentMesh) Destroyed() bool { return s.destroyed }

// Transform returns the transform last applied to the node.
func (s *SegmentMesh) Transform() render.Transform { return s.transform }

// Update repositions the segment for a render frame.
func (s *SegmentMesh) Update(body *model.Body) {
	s.place(body)
}

// FixedUpdate repositions the segment for a physics step. Physics and
// rendering may sample the body at different moments, so both run.
func (s *SegmentMesh) FixedUpdate(body *model.Body) {
	s.place(body)
}

func (s *SegmentMesh) place(body *model.Body) {
	if s.destroyed || s.node == 0 || body == nil {
		return
	}
	if s.placed && s.lastBody == body && s.lastEpoch == body.Epoch {
		return
	}

	worldStart := GeoToWorld(body, s.start)
	worldEnd := GeoToWorld(body, s.end)
	span := worldEnd.Sub(worldStart)
	up := SurfaceUp(body, s.start.Latitude, s.start.Longitude)

	s.transform = render.Transform{
		Position: worldStart,
		Rotation: LookRotation(span, up),
		Scale:    mgl64.Vec3{s.host.Params.WallWidth, s.host.Params.WallHeight, span.Len()},
	}
	s.host.Backend.SetTransform(s.node, s.transform)

	s.placed = true
	s.lastBody = body
	s.lastEpoch = body.Epoch
}

// MakeCollidable attaches a collider sized to the mesh bounds unless one is
// already present. A destroyed segment only records the flag.
func (s *SegmentMesh) MakeCollidable() error {
	s.collidable = true
	if s.destroyed || s.node == 0 || s.hasCollider {
		return nil
	}
	if err := s.host.Backend.AttachCollider(s.node, s.bounds); err != nil {
		return fmt.Errorf("segment collider: %w", err)
	}
	s.hasCollider = true
	return nil
}

// Destroy releases the collider, node and mesh. Later calls do nothing.
func (s *SegmentMesh) Destroy() {
	if s.destroyed {
		return
	}
	s.release()
	s.destroyed = true
}

func (s *SegmentMesh) release() {
	if s.node != 0 {
		if s.hasCollider {
			s.host.Backend.DetachCollider(s.node)
			s.hasCollider = false
		}
		s.host.Backend.DestroyNode(s.node)
		s.node = 0
	}
	if s.mesh != 0 {
		s.host.Backend.DestroyMesh(s.mesh)
		s.mesh = 0
	}
}
