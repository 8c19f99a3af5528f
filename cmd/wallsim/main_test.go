package main

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/signalsfoundry/wallstream/internal/config"
	"github.com/signalsfoundry/wallstream/internal/logging"
)

const launchPadWalls = `=Kerbin
-0.0972, -74.5577, 70
-0.0972, -74.5567, 70
`

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg, err := config.LoadFrom(map[string]string{
		"WALLSTREAM_WAYPOINT_PATH": filepath.Join(dir, "BuildTheWall.cfg"),
		"WALLSTREAM_SQLITE_PATH":   filepath.Join(dir, "wallstream.db"),
		"WALLSTREAM_ACCELERATED":   "true",
		"WALLSTREAM_LOG_LEVEL":     "warn",
	})
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	cfg.AdminAddr = ""
	cfg.MetricsAddr = ""
	return cfg
}

func quietLogger() logging.Logger {
	return logging.New(logging.Config{Level: "error", Output: &strings.Builder{}})
}

func TestAppLoadsSavedWallsOnFirstFrame(t *testing.T) {
	cfg := testConfig(t)
	if err := os.WriteFile(cfg.WaypointPath, []byte(launchPadWalls), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	reg := prometheus.NewRegistry()
	a, err := newApp(context.Background(), cfg, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), reg, quietLogger())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.close()

	if a.manager.Loaded() {
		t.Fatalf("walls must not load before the viewer is ready")
	}
	a.clock.Advance()

	if !a.manager.Loaded() || a.manager.BuildMode() {
		t.Fatalf("loaded=%v build=%v after first frame", a.manager.Loaded(), a.manager.BuildMode())
	}
	st := a.manager.Stats()
	if st.Chains != 1 || st.Visible != 1 || st.Segments == 0 {
		t.Fatalf("stats = %+v", st)
	}
	if got := testutil.ToFloat64(a.streaming.Chains); got != 1 {
		t.Fatalf("wall_chains = %v, want 1", got)
	}
	if !a.serving {
		t.Fatalf("admin health should report serving once walls are loaded")
	}
}

func TestAppStartsBuildModeWithoutSavedWalls(t *testing.T) {
	cfg := testConfig(t)
	cfg.StoreKind = config.StoreSQLite

	a, err := newApp(context.Background(), cfg, time.Time{}, prometheus.NewRegistry(), quietLogger())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.close()

	a.clock.Advance()
	if !a.manager.BuildMode() {
		t.Fatalf("empty sqlite store should start build mode")
	}
	if _, err := a.manager.AddWaypoint(context.Background()); err != nil {
		t.Fatalf("AddWaypoint: %v", err)
	}
	a.surface.Move(0, 60)
	if _, err := a.manager.AddWaypoint(context.Background()); err != nil {
		t.Fatalf("AddWaypoint: %v", err)
	}
	if err := a.manager.Finish(context.Background()); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if _, err := os.Stat(cfg.SQLitePath); err != nil {
		t.Fatalf("sqlite file missing: %v", err)
	}
}

func TestNewAppRejectsUnknownBody(t *testing.T) {
	cfg := testConfig(t)
	cfg.Body = "Eve"
	if _, err := newApp(context.Background(), cfg, time.Time{}, prometheus.NewRegistry(), quietLogger()); err == nil {
		t.Fatalf("expected unknown body error")
	}
}

func TestAppOrbitalViewer(t *testing.T) {
	cfg := testConfig(t)
	cfg.Body = "Earth"
	cfg.TLELine1 = "1 25544U 98067A   21275.59097222  .00000204  00000-0  10270-4 0  9990"
	cfg.TLELine2 = "2 25544  51.6459 115.9059 0001817  61.3028  35.9198 15.49370953257760"

	a, err := newApp(context.Background(), cfg, time.Date(2021, 10, 2, 0, 0, 0, 0, time.UTC), prometheus.NewRegistry(), quietLogger())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.close()

	a.clock.Advance()
	if !a.orbital.Ready() || !a.manager.Loaded() {
		t.Fatalf("orbital viewer ready=%v, loaded=%v", a.orbital.Ready(), a.manager.Loaded())
	}
	if err := a.runConsole(context.Background(), nil); err == nil {
		t.Fatalf("console should refuse an orbital viewer")
	}
}

func TestRunHeadlessSmoke(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg := testConfig(t)
	if err := os.WriteFile(cfg.WaypointPath, []byte(launchPadWalls), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	adminLis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}

	opts := runOptions{Duration: 2 * time.Second, AdminListener: adminLis}
	if err := run(ctx, cfg, opts, quietLogger()); err != nil {
		t.Fatalf("run: %v", err)
	}

	data, err := os.ReadFile(cfg.WaypointPath)
	if err != nil || string(data) != launchPadWalls {
		t.Fatalf("headless run must not rewrite the waypoint file: %q, %v", data, err)
	}
}

func TestRunServesHealthWhileStreaming(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg := testConfig(t)
	cfg.Accelerated = false
	adminLis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	addr := adminLis.Addr().String()

	runCtx, stop := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() {
		errCh <- run(runCtx, cfg, runOptions{AdminListener: adminLis}, quietLogger())
	}()

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
		if err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("health never reported SERVING (last err %v)", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	stop()
	if err := <-errCh; err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestRunConsoleStopsOnCancel(t *testing.T) {
	screen := tcell.NewSimulationScreen("UTF-8")
	if err := screen.Init(); err != nil {
		t.Fatalf("screen.Init: %v", err)
	}
	defer screen.Fini()
	screen.SetSize(80, 24)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := run(ctx, testConfig(t), runOptions{TUI: true, Screen: screen}, quietLogger()); err != nil {
		t.Fatalf("run: %v", err)
	}
}
