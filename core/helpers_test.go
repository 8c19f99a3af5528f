package core

import (
	"context"
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/signalsfoundry/wallstream/internal/render"
	"github.com/signalsfoundry/wallstream/model"
)

// bodyMap is a BodyFinder backed by a plain map.
type bodyMap map[string]*model.Body

func (m bodyMap) FindBody(name string) (*model.Body, bool) {
	b, ok := m[name]
	return b, ok
}

// stubViewer is a Viewer positioned directly in world space.
type stubViewer struct {
	pos   mgl64.Vec3
	body  *model.Body
	ready bool
}

func (v *stubViewer) WorldPosition() mgl64.Vec3 { return v.pos }
func (v *stubViewer) CurrentBody() *model.Body  { return v.body }
func (v *stubViewer) Ready() bool               { return v.ready }
func (v *stubViewer) at(b *model.Body, g model.GeoCoordinate) {
	v.body = b
	v.pos = GeoToWorld(b, g)
}

// countingMetrics records every StreamingMetricsRecorder call.
type countingMetrics struct {
	loads, unloads int
	subdivisions   []int
	buildFailures  int
	chains         int
	visible        int
	segments       int
	frames         int
}

func (m *countingMetrics) RecordTransition(loaded bool) {
	if loaded {
		m.loads++
	} else {
		m.unloads++
	}
}
func (m *countingMetrics) ObserveSubdivision(n int)   { m.subdivisions = append(m.subdivisions, n) }
func (m *countingMetrics) RecordSegmentBuildFailure() { m.buildFailures++ }
func (m *countingMetrics) SetStreamingCounts(chains, visible, segments int) {
	m.chains, m.visible, m.segments = chains, visible, segments
}
func (m *countingMetrics) ObserveFrame(time.Duration) { m.frames++ }

// failingNodeBackend lets the first `okNodes` CreateNode calls through and
// fails the rest.
type failingNodeBackend struct {
	*render.MemoryBackend
	okNodes int
	calls   int
}

func (b *failingNodeBackend) CreateNode(mesh render.MeshHandle, tex render.TextureHandle) (render.NodeHandle, error) {
	b.calls++
	if b.calls > b.okNodes {
		return 0, fmt.Errorf("node %d: %w", b.calls, render.ErrInjected)
	}
	return b.MemoryBackend.CreateNode(mesh, tex)
}

// memStore is an in-memory WaypointStore.
type memStore struct {
	pairs   []model.WaypointPair
	saved   bool
	loadErr error
	saveErr error
	saves   int
}

func (s *memStore) Load(context.Context) ([]model.WaypointPair, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	if !s.saved {
		return nil, ErrNoWaypoints
	}
	return append([]model.WaypointPair(nil), s.pairs...), nil
}

func (s *memStore) Save(_ context.Context, pairs []model.WaypointPair) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.pairs = append([]model.WaypointPair(nil), pairs...)
	s.saved = true
	s.saves++
	return nil
}

func kerbin() *model.Body {
	return &model.Body{Name: "Kerbin", Shape: model.BodyShape{EquatorialRadius: 600000}}
}

type testEnv struct {
	body    *model.Body
	viewer  *stubViewer
	backend *render.MemoryBackend
	metrics *countingMetrics
	host    *Host
}

// newTestEnv builds a host around Kerbin with a ready viewer standing at
// lat 0, lon 0 and the wall texture registered.
func newTestEnv() *testEnv {
	body := kerbin()
	backend := render.NewMemoryBackend()
	backend.RegisterTexture(render.DefaultWallTexture)
	viewer := &stubViewer{ready: true}
	viewer.at(body, model.GeoCoordinate{})
	metrics := &countingMetrics{}
	host := NewHost(bodyMap{body.Name: body}, viewer, backend, WithMetricsRecorder(metrics))
	return &testEnv{body: body, viewer: viewer, backend: backend, metrics: metrics, host: host}
}

// vecNear compares by Euclidean distance. mgl64's ApproxEqualThreshold
// squares the threshold when one component is exactly zero.
func vecNear(a, b mgl64.Vec3, eps float64) bool {
	return a.Sub(b).Len() < eps
}
