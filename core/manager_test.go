package core

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/signalsfoundry/wallstream/model"
)

func pair(body string, lonA, lonB float64) model.WaypointPair {
	return model.WaypointPair{
		BodyName: body,
		Start:    model.GeoCoordinate{Longitude: lonA},
		End:      model.GeoCoordinate{Longitude: lonB},
	}
}

func TestWallManagerOrderedContainer(t *testing.T) {
	env := newTestEnv()
	m := NewWallManager(env.host, nil)

	a := m.Add(pair("Kerbin", 0, 0.001))
	b := m.Add(pair("Kerbin", 0.001, 0.002))
	c := m.Add(pair("Kerbin", 0.002, 0.003))
	if m.Len() != 3 {
		t.Fatalf("Len = %d", m.Len())
	}
	if ids := m.IDs(); ids[0] != a || ids[1] != b || ids[2] != c {
		t.Fatalf("IDs out of order: %v", ids)
	}

	if !m.Remove(b) {
		t.Fatalf("Remove(b) = false")
	}
	if m.Remove(b) {
		t.Fatalf("second Remove(b) should report false")
	}
	if m.Remove(uuid.New()) {
		t.Fatalf("Remove of unknown ID should report false")
	}
	if _, ok := m.Chain(b); ok {
		t.Fatalf("removed chain still reachable")
	}
	pairs := m.Pairs()
	if len(pairs) != 2 || pairs[0].Start.Longitude != 0 || pairs[1].Start.Longitude != 0.002 {
		t.Fatalf("unexpected pairs after remove: %+v", pairs)
	}

	ch, ok := m.Chain(c)
	if !ok || ch.Start().Longitude != 0.002 {
		t.Fatalf("Chain(c) = %v, %v", ch, ok)
	}
}

func TestWallManagerRemoveDestroysChain(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	m := NewWallManager(env.host, nil)
	id := m.Add(pair("Kerbin", 0, 0.001))
	m.Update(ctx)
	if env.backend.LiveNodes() != 1 {
		t.Fatalf("expected one live node, got %d", env.backend.LiveNodes())
	}
	m.Remove(id)
	if env.backend.LiveNodes() != 0 {
		t.Fatalf("remove left %d nodes", env.backend.LiveNodes())
	}
}

func TestWallManagerDeferredLoad(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	env.viewer.ready = false
	store := &memStore{saved: true, pairs: []model.WaypointPair{pair("Kerbin", 0, 0.001), pair("Kerbin", 0.001, 0.002)}}
	m := NewWallManager(env.host, store)

	m.Update(ctx)
	if m.Loaded() || m.Len() != 0 {
		t.Fatalf("manager loaded before the viewer was ready")
	}

	env.viewer.ready = true
	m.Update(ctx)
	if !m.Loaded() || m.Len() != 2 {
		t.Fatalf("expected 2 chains after load, got %d", m.Len())
	}
	if m.BuildMode() {
		t.Fatalf("manager with saved walls should not be in build mode")
	}
	for i, c := range m.Chains() {
		if !c.Collidable() {
			t.Fatalf("loaded chain %d is not collidable", i)
		}
		if !c.Visible() {
			t.Fatalf("loaded chain %d not visible in the same frame", i)
		}
	}

	m.Update(ctx)
	if m.Len() != 2 {
		t.Fatalf("load ran twice: %d chains", m.Len())
	}
	if env.metrics.chains != 2 || env.metrics.visible != 2 || env.metrics.segments != 2 {
		t.Fatalf("streaming counts %+v", env.metrics)
	}
	if env.metrics.frames != 3 {
		t.Fatalf("expected 3 observed frames, got %d", env.metrics.frames)
	}
}

func TestWallManagerLoadFailureAddsNothing(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	boom := errors.New("disk on fire")
	m := NewWallManager(env.host, &memStore{loadErr: boom})

	if err := m.Load(ctx); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped load error, got %v", err)
	}
	if m.Len() != 0 || m.BuildMode() {
		t.Fatalf("failed load changed state: len=%d build=%v", m.Len(), m.BuildMode())
	}
}

func TestWallManagerEmptyStoreEntersBuildMode(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	m := NewWallManager(env.host, &memStore{})
	m.Update(ctx)
	if !m.BuildMode() {
		t.Fatalf("expected build mode with no saved walls")
	}

	nilStore := NewWallManager(env.host, nil)
	nilStore.Update(ctx)
	if !nilStore.BuildMode() {
		t.Fatalf("expected build mode without a store")
	}
}

func TestWallManagerBuildMode(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	store := &memStore{}
	m := NewWallManager(env.host, store)
	m.Update(ctx) // loads nothing, enters build mode

	place := func(lon float64) uuid.UUID {
		t.Helper()
		env.viewer.at(env.body, model.GeoCoordinate{Longitude: lon})
		id, err := m.AddWaypoint(ctx)
		if err != nil {
			t.Fatalf("AddWaypoint(%v): %v", lon, err)
		}
		return id
	}

	if id := place(0); id != uuid.Nil {
		t.Fatalf("first waypoint should only start a run")
	}
	first := place(0.001)
	if first == uuid.Nil || m.Len() != 1 {
		t.Fatalf("second waypoint should add a wall")
	}
	place(0.002)
	if m.Len() != 2 {
		t.Fatalf("expected 2 walls, got %d", m.Len())
	}
	for _, c := range m.Chains() {
		if c.Collidable() {
			t.Fatalf("walls placed in build mode must not be collidable yet")
		}
	}

	// Remove last: the next waypoint redraws from the removed wall's start.
	removed, ok := m.RemoveLast()
	if !ok || m.Len() != 1 {
		t.Fatalf("RemoveLast failed")
	}
	if _, pos, ok := m.RunningPosition(); !ok || pos != removed.Start {
		t.Fatalf("running position %v, want %v", pos, removed.Start)
	}
	place(0.003)
	last := m.Pairs()[1]
	if last.Start != removed.Start {
		t.Fatalf("wall after RemoveLast starts at %v, want %v", last.Start, removed.Start)
	}

	// Break: the next waypoint starts a new wall.
	m.Break()
	if id := place(0.01); id != uuid.Nil || m.Len() != 2 {
		t.Fatalf("waypoint after Break should not connect")
	}
	place(0.011)
	if m.Len() != 3 {
		t.Fatalf("expected 3 walls, got %d", m.Len())
	}

	if err := m.Finish(ctx); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if m.BuildMode() {
		t.Fatalf("Finish should leave build mode")
	}
	if store.saves != 1 || len(store.pairs) != 3 {
		t.Fatalf("store got %d saves with %d pairs", store.saves, len(store.pairs))
	}
	for i, c := range m.Chains() {
		if !c.Collidable() {
			t.Fatalf("chain %d not collidable after Finish", i)
		}
	}
	if _, err := m.AddWaypoint(ctx); !errors.Is(err, ErrNotBuildMode) {
		t.Fatalf("expected ErrNotBuildMode, got %v", err)
	}
}

func TestWallManagerWaypointAcrossBodiesBreaks(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	m := NewWallManager(env.host, nil)
	m.SetBuildMode(true)

	if _, err := m.AddWaypoint(ctx); err != nil {
		t.Fatalf("AddWaypoint: %v", err)
	}
	env.viewer.body = &model.Body{Name: "Mun", Shape: model.BodyShape{EquatorialRadius: MunRadius}}
	env.viewer.pos = GeoToWorld(env.viewer.body, model.GeoCoordinate{})
	if id, err := m.AddWaypoint(ctx); err != nil || id != uuid.Nil {
		t.Fatalf("waypoint on another body must not connect: %v %v", id, err)
	}
}

func TestWallManagerAddWaypointViewerNotReady(t *testing.T) {
	env := newTestEnv()
	env.viewer.ready = false
	m := NewWallManager(env.host, nil)
	m.SetBuildMode(true)
	if _, err := m.AddWaypoint(context.Background()); !errors.Is(err, ErrViewerNotReady) {
		t.Fatalf("expected ErrViewerNotReady, got %v", err)
	}
}

func TestWallManagerFinishSaveErrorKeepsBuildMode(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	store := &memStore{saveErr: errors.New("read-only")}
	m := NewWallManager(env.host, store)
	m.SetBuildMode(true)
	m.Add(pair("Kerbin", 0, 0.001))

	if err := m.Finish(ctx); err == nil {
		t.Fatalf("expected save error")
	}
	if !m.BuildMode() || m.Chains()[0].Collidable() {
		t.Fatalf("failed Finish changed state")
	}
}

func TestWallManagerClearAndDestroy(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	m := NewWallManager(env.host, nil)
	m.Add(pair("Kerbin", 0, 0.001))
	m.Add(pair("Kerbin", 0.001, 0.002))
	m.Update(ctx)
	if env.backend.LiveNodes() != 2 {
		t.Fatalf("expected 2 live nodes, got %d", env.backend.LiveNodes())
	}

	m.Clear()
	if m.Len() != 0 || env.backend.LiveNodes() != 0 {
		t.Fatalf("Clear left chains=%d nodes=%d", m.Len(), env.backend.LiveNodes())
	}

	m.Add(pair("Kerbin", 0, 0.001))
	m.Update(ctx)
	m.Destroy()
	m.Destroy()
	if env.backend.LiveNodes() != 0 || env.backend.LiveMeshes() != 0 {
		t.Fatalf("Destroy leaked resources")
	}
	m.Add(pair("Kerbin", 0, 0.001))
	m.Update(ctx)
	if env.backend.LiveNodes() != 0 {
		t.Fatalf("destroyed manager still ticks")
	}
}

func TestWallManagerStats(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	m := NewWallManager(env.host, nil)
	m.Add(pair("Kerbin", 0, 0.001))
	m.Add(model.WaypointPair{BodyName: "Kerbin", Start: origin, End: longerEnd})
	m.Add(pair("Duna", 0, 0.001))
	m.Update(ctx)

	got := m.Stats()
	want := ManagerStats{Chains: 3, Visible: 2, Segments: 7}
	if got != want {
		t.Fatalf("Stats = %+v, want %+v", got, want)
	}
}
