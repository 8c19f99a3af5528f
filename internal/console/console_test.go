package console

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/signalsfoundry/wallstream/core"
	"github.com/signalsfoundry/wallstream/internal/render"
	"github.com/signalsfoundry/wallstream/internal/store"
	"github.com/signalsfoundry/wallstream/kb"
	"github.com/signalsfoundry/wallstream/model"
	"github.com/signalsfoundry/wallstream/timectrl"
)

type fixture struct {
	console *Console
	manager *core.WallManager
	viewer  *core.SurfaceViewer
	backend *render.MemoryBackend
	path    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	screen := tcell.NewSimulationScreen("UTF-8")
	if err := screen.Init(); err != nil {
		t.Fatalf("screen.Init: %v", err)
	}
	screen.SetSize(80, 24)
	t.Cleanup(screen.Fini)

	bodies := kb.NewKnowledgeBase()
	kerbin := &model.Body{Name: "Kerbin", Shape: model.BodyShape{EquatorialRadius: core.KerbinRadius}}
	if err := bodies.AddBody(kerbin); err != nil {
		t.Fatalf("AddBody: %v", err)
	}
	viewer := core.NewSurfaceViewer(kerbin, model.GeoCoordinate{Latitude: -0.0972, Longitude: -74.5577})
	viewer.SetReady(true)

	backend := render.NewMemoryBackend()
	backend.RegisterTexture(render.DefaultWallTexture)

	path := filepath.Join(t.TempDir(), "BuildTheWall.cfg")
	fs, err := store.NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	manager := core.NewWallManager(core.NewHost(bodies, viewer, backend), fs)

	clock := timectrl.NewTimeController(time.Unix(0, 0), 50*time.Millisecond, 20*time.Millisecond, timectrl.Accelerated)
	clock.AddListener(func(time.Time) { manager.Update(context.Background()) })
	clock.AddFixedListener(func(time.Time) { manager.FixedUpdate(context.Background()) })

	c := New(screen, Options{Manager: manager, Viewer: viewer, Backend: backend, Clock: clock})
	return &fixture{console: c, manager: manager, viewer: viewer, backend: backend, path: path}
}

func (f *fixture) key(t *testing.T, key tcell.Key, r rune) {
	t.Helper()
	if !f.console.HandleKey(context.Background(), key, r) {
		t.Fatalf("key %v/%q unexpectedly quit", key, r)
	}
}

func TestBuildModeSession(t *testing.T) {
	f := newFixture(t)

	f.console.Frame()
	if !f.manager.Loaded() || !f.manager.BuildMode() {
		t.Fatalf("missing waypoint file should start build mode")
	}

	f.key(t, tcell.KeyRune, 'a')
	if f.console.Message() != "waypoint set" {
		t.Fatalf("message = %q", f.console.Message())
	}
	for i := 0; i < 10; i++ {
		f.key(t, tcell.KeyRight, 0)
	}
	f.key(t, tcell.KeyRune, 'a')
	if f.console.Message() != "wall added" || f.manager.Len() != 1 {
		t.Fatalf("message = %q, chains = %d", f.console.Message(), f.manager.Len())
	}

	f.console.Frame()
	if f.backend.LiveNodes() == 0 {
		t.Fatalf("expected live segments after a frame")
	}
	status := f.console.StatusLine()
	if !strings.Contains(status, "chains 1 visible 1") || !strings.HasSuffix(status, "build") {
		t.Fatalf("status = %q", status)
	}

	f.key(t, tcell.KeyRune, 'f')
	if f.manager.BuildMode() || f.console.Message() != "saved 1 walls" {
		t.Fatalf("finish failed: build=%v message=%q", f.manager.BuildMode(), f.console.Message())
	}
	if _, err := os.Stat(f.path); err != nil {
		t.Fatalf("waypoint file not written: %v", err)
	}

	f.key(t, tcell.KeyRune, 'a')
	if !strings.Contains(f.console.Message(), "not in build mode") {
		t.Fatalf("message = %q", f.console.Message())
	}
}

func TestUndoBreakAndClear(t *testing.T) {
	f := newFixture(t)
	f.console.Frame()

	f.key(t, tcell.KeyRune, 'a')
	f.key(t, tcell.KeyUp, 0)
	f.key(t, tcell.KeyRune, 'a')
	f.key(t, tcell.KeyUp, 0)
	f.key(t, tcell.KeyRune, 'a')
	if f.manager.Len() != 2 {
		t.Fatalf("chains = %d, want 2", f.manager.Len())
	}

	f.key(t, tcell.KeyRune, 'u')
	if f.manager.Len() != 1 || f.console.Message() != "removed last wall" {
		t.Fatalf("undo: chains = %d, message = %q", f.manager.Len(), f.console.Message())
	}

	f.key(t, tcell.KeyRune, 'b')
	f.key(t, tcell.KeyDown, 0)
	f.key(t, tcell.KeyRune, 'a')
	if f.manager.Len() != 1 {
		t.Fatalf("waypoint after break should not add a wall, chains = %d", f.manager.Len())
	}

	f.key(t, tcell.KeyRune, 'c')
	if f.manager.Len() != 0 {
		t.Fatalf("clear left %d chains", f.manager.Len())
	}
	f.key(t, tcell.KeyRune, 'u')
	if f.console.Message() != "nothing to remove" {
		t.Fatalf("message = %q", f.console.Message())
	}
}

func TestArrowsMoveViewer(t *testing.T) {
	f := newFixture(t)
	start := f.viewer.Geo()
	f.key(t, tcell.KeyUp, 0)
	if f.viewer.Geo().Latitude <= start.Latitude {
		t.Fatalf("up should move north: %v -> %v", start, f.viewer.Geo())
	}
	f.key(t, tcell.KeyLeft, 0)
	if f.viewer.Geo().Longitude >= start.Longitude {
		t.Fatalf("left should move west: %v -> %v", start, f.viewer.Geo())
	}
}

func TestQuitKeys(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if f.console.HandleKey(ctx, tcell.KeyRune, 'q') {
		t.Fatalf("q should quit")
	}
	if f.console.HandleKey(ctx, tcell.KeyEscape, 0) {
		t.Fatalf("Esc should quit")
	}
}

func TestZoom(t *testing.T) {
	f := newFixture(t)
	before := f.console.Scale()
	f.key(t, tcell.KeyRune, '+')
	if f.console.Scale() != before/2 {
		t.Fatalf("zoom in: scale %v, want %v", f.console.Scale(), before/2)
	}
	f.key(t, tcell.KeyRune, '-')
	f.key(t, tcell.KeyRune, '-')
	if f.console.Scale() != before*2 {
		t.Fatalf("zoom out: scale %v, want %v", f.console.Scale(), before*2)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- f.console.Run(ctx) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestProject(t *testing.T) {
	body := &model.Body{Name: "Kerbin", Shape: model.BodyShape{EquatorialRadius: core.KerbinRadius}}
	origin := model.GeoCoordinate{}
	metre := 180 / (3.141592653589793 * core.KerbinRadius)

	cases := []struct {
		name   string
		g      model.GeoCoordinate
		wx, wy int
	}{
		{"origin", origin, 0, 0},
		{"north", model.GeoCoordinate{Latitude: 20 * metre}, 0, -2},
		{"south", model.GeoCoordinate{Latitude: -20 * metre}, 0, 2},
		{"east", model.GeoCoordinate{Longitude: 10 * metre}, 2, 0},
		{"west across antimeridian", model.GeoCoordinate{Longitude: 360 - 10*metre}, -2, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			x, y := Project(body, origin, tc.g, 5)
			if x != tc.wx || y != tc.wy {
				t.Fatalf("Project = (%d, %d), want (%d, %d)", x, y, tc.wx, tc.wy)
			}
		})
	}
}

func TestPollEventsStopsWhenRunReturns(t *testing.T) {
	screen := tcell.NewSimulationScreen("UTF-8")
	if err := screen.Init(); err != nil {
		t.Fatalf("screen.Init: %v", err)
	}
	t.Cleanup(screen.Fini)
	c := New(screen, Options{})

	events := make(chan tcell.Event) // nobody reads
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		c.pollEvents(events, done)
		close(stopped)
	}()

	screen.InjectKey(tcell.KeyRune, 'x', tcell.ModNone)
	close(done)

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatalf("event poller blocked after done was closed")
	}
	if _, ok := <-events; ok {
		t.Fatalf("events channel should be closed")
	}
}
