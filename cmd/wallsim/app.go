package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/wallstream/core"
	"github.com/signalsfoundry/wallstream/internal/admin"
	"github.com/signalsfoundry/wallstream/internal/config"
	"github.com/signalsfoundry/wallstream/internal/console"
	"github.com/signalsfoundry/wallstream/internal/logging"
	"github.com/signalsfoundry/wallstream/internal/observability"
	"github.com/signalsfoundry/wallstream/internal/render"
	"github.com/signalsfoundry/wallstream/internal/store"
	"github.com/signalsfoundry/wallstream/internal/store/sqlite"
	"github.com/signalsfoundry/wallstream/kb"
	"github.com/signalsfoundry/wallstream/model"
	"github.com/signalsfoundry/wallstream/timectrl"
)

// runOptions carries what flags and tests add on top of config.Config.
type runOptions struct {
	Duration time.Duration
	TUI      bool

	// Zero values below mean: now, a fresh registry, the terminal, and
	// listeners opened from the configured addresses.
	Start           time.Time
	Registry        *prometheus.Registry
	Screen          tcell.Screen
	AdminListener   net.Listener
	MetricsListener net.Listener
}

type app struct {
	log logging.Logger

	bodies  *kb.KnowledgeBase
	motion  *core.BodyMotion
	backend *render.MemoryBackend
	surface *core.SurfaceViewer
	orbital *core.OrbitalViewer
	manager *core.WallManager
	clock   *timectrl.TimeController

	streaming  *observability.StreamingCollector
	admin      *admin.Server
	serving    bool
	closeStore func() error
	interval   time.Duration
}

func run(ctx context.Context, cfg config.Config, opts runOptions, log logging.Logger) error {
	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	a, err := newApp(ctx, cfg, opts.Start, reg, log)
	if err != nil {
		return err
	}
	defer a.close()

	adminCtx, stopAdmin := context.WithCancel(ctx)
	adminDone := a.startAdmin(adminCtx, cfg, opts)
	defer func() {
		stopAdmin()
		if adminDone != nil {
			<-adminDone
		}
	}()

	if opts.TUI {
		return a.runConsole(ctx, opts.Screen)
	}

	log.Info(ctx, "starting wall streaming",
		logging.String("duration", opts.Duration.String()),
		logging.String("frame", cfg.FrameInterval.String()),
		logging.Bool("accelerated", cfg.Accelerated),
	)
	err = a.clock.Run(ctx, opts.Duration)
	frames, steps := a.clock.Counts()
	st := a.manager.Stats()
	log.Info(context.Background(), "wall streaming finished",
		logging.Int("frames", int(frames)),
		logging.Int("fixed_steps", int(steps)),
		logging.Int("chains", st.Chains),
		logging.Int("visible", st.Visible),
		logging.Int("segments", st.Segments),
	)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func newApp(ctx context.Context, cfg config.Config, start time.Time, reg prometheus.Registerer, log logging.Logger) (*app, error) {
	if start.IsZero() {
		start = time.Now().UTC()
	}

	streaming, err := observability.NewStreamingCollector(reg)
	if err != nil {
		return nil, fmt.Errorf("streaming metrics: %w", err)
	}
	adminMetrics, err := observability.NewAdminCollector(reg)
	if err != nil {
		return nil, fmt.Errorf("admin metrics: %w", err)
	}

	bodies := kb.NewKnowledgeBase()
	motion := core.NewBodyMotion(bodies)
	defs, err := loadBodies(cfg.BodiesPath, start)
	if err != nil {
		return nil, err
	}
	if err := core.InstallBodies(bodies, motion, defs, start); err != nil {
		return nil, err
	}
	body, ok := bodies.FindBody(cfg.Body)
	if !ok {
		return nil, fmt.Errorf("unknown body %q", cfg.Body)
	}

	backend := render.NewMemoryBackend()
	backend.RegisterTexture(render.DefaultWallTexture)
	texture := render.NewSharedTexture(backend, cfg.TextureName, log)

	a := &app{
		log:       log,
		bodies:    bodies,
		motion:    motion,
		backend:   backend,
		streaming: streaming,
		interval:  cfg.FrameInterval,
	}

	var viewer core.Viewer
	if cfg.TLELine1 != "" {
		a.orbital = core.NewOrbitalViewerFromTLE(cfg.TLELine1, cfg.TLELine2, body)
		viewer = a.orbital
	} else {
		a.surface = core.NewSurfaceViewer(body, model.GeoCoordinate{Latitude: cfg.Latitude, Longitude: cfg.Longitude})
		viewer = a.surface
	}

	ws, closeStore, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	a.closeStore = closeStore

	host := core.NewHost(bodies, viewer, backend,
		core.WithLogger(log),
		core.WithMetricsRecorder(streaming),
		core.WithStreamingParams(cfg.StreamingParams()),
		core.WithTexture(texture),
	)
	a.manager = core.NewWallManager(host, ws)
	a.admin = admin.New(admin.Options{Logger: log, Collector: adminMetrics, Gatherer: gathererOf(reg)})

	mode := timectrl.RealTime
	if cfg.Accelerated {
		mode = timectrl.Accelerated
	}
	a.clock = timectrl.NewTimeController(start, cfg.FrameInterval, cfg.FixedStep, mode)
	a.clock.AddFixedListener(func(time.Time) { a.manager.FixedUpdate(ctx) })
	a.clock.AddListener(func(simTime time.Time) { a.frame(ctx, simTime) })
	return a, nil
}

// frame moves the bodies and the viewer to simTime, then streams walls.
func (a *app) frame(ctx context.Context, simTime time.Time) {
	if err := a.motion.UpdateBodies(simTime); err != nil {
		a.log.Warn(ctx, "body update failed", logging.Err(err))
	}
	switch {
	case a.orbital != nil:
		if err := a.orbital.Propagate(simTime); err != nil {
			a.log.Warn(ctx, "viewer propagation failed", logging.Err(err))
		}
	case !a.surface.Ready():
		a.surface.SetReady(true)
	}

	a.manager.Update(ctx)

	if !a.serving && a.manager.Loaded() {
		a.serving = true
		a.admin.SetServing(true)
	}
}

func (a *app) startAdmin(ctx context.Context, cfg config.Config, opts runOptions) <-chan error {
	if opts.AdminListener == nil && cfg.AdminAddr == "" {
		return nil
	}
	done := make(chan error, 1)
	go func() {
		var err error
		if opts.AdminListener != nil {
			err = a.admin.Serve(ctx, opts.AdminListener, opts.MetricsListener)
		} else {
			err = a.admin.ListenAndServe(ctx, cfg.AdminAddr, cfg.MetricsAddr)
		}
		if err != nil {
			a.log.Warn(context.Background(), "admin server stopped", logging.Err(err))
		}
		done <- err
	}()
	return done
}

func (a *app) runConsole(ctx context.Context, screen tcell.Screen) error {
	if a.surface == nil {
		return errors.New("the console needs a surface viewer; unset the TLE lines")
	}
	if screen == nil {
		s, err := tcell.NewScreen()
		if err != nil {
			return fmt.Errorf("open terminal: %w", err)
		}
		if err := s.Init(); err != nil {
			return fmt.Errorf("init terminal: %w", err)
		}
		defer s.Fini()
		screen = s
	}
	c := console.New(screen, console.Options{
		Manager:       a.manager,
		Viewer:        a.surface,
		Backend:       a.backend,
		Clock:         a.clock,
		Logger:        a.log,
		FrameInterval: a.interval,
	})
	return c.Run(ctx)
}

func (a *app) close() {
	a.manager.Destroy()
	if a.closeStore != nil {
		if err := a.closeStore(); err != nil {
			a.log.Warn(context.Background(), "close waypoint store", logging.Err(err))
		}
	}
}

func loadBodies(path string, epoch time.Time) ([]core.BodyDefinition, error) {
	if path == "" {
		return core.DefaultBodies(epoch), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open body catalogue: %w", err)
	}
	defer f.Close()
	return core.LoadBodyCatalogue(f, epoch)
}

func openStore(cfg config.Config) (core.WaypointStore, func() error, error) {
	switch cfg.StoreKind {
	case config.StoreSQLite:
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, s.Close, nil
	case config.StoreFile, "":
		s, err := store.NewFileStore(cfg.WaypointPath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", cfg.StoreKind)
	}
}

func gathererOf(reg prometheus.Registerer) prometheus.Gatherer {
	if g, ok := reg.(prometheus.Gatherer); ok {
		return g
	}
	return nil
}
