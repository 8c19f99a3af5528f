package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/signalsfoundry/wallstream/internal/config"
	"github.com/signalsfoundry/wallstream/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "wallsim: %v\n", err)
		os.Exit(2)
	}

	var opts runOptions
	flag.DurationVar(&opts.Duration, "duration", 0, "simulated time to run headless; 0 runs until interrupted")
	flag.BoolVar(&opts.TUI, "tui", false, "run the interactive terminal console")
	flag.StringVar(&cfg.StoreKind, "store", cfg.StoreKind, "waypoint store: file or sqlite")
	flag.StringVar(&cfg.WaypointPath, "waypoints", cfg.WaypointPath, "waypoint file for the file store")
	flag.StringVar(&cfg.SQLitePath, "sqlite", cfg.SQLitePath, "database path for the sqlite store")
	flag.StringVar(&cfg.BodiesPath, "bodies", cfg.BodiesPath, "optional JSON body catalogue")
	flag.StringVar(&cfg.Body, "body", cfg.Body, "body the viewer starts on")
	flag.Float64Var(&cfg.Latitude, "lat", cfg.Latitude, "viewer start latitude in degrees")
	flag.Float64Var(&cfg.Longitude, "lon", cfg.Longitude, "viewer start longitude in degrees")
	flag.StringVar(&cfg.TLELine1, "tle1", cfg.TLELine1, "first TLE line for an orbital viewer")
	flag.StringVar(&cfg.TLELine2, "tle2", cfg.TLELine2, "second TLE line for an orbital viewer")
	flag.DurationVar(&cfg.FrameInterval, "frame", cfg.FrameInterval, "frame interval")
	flag.DurationVar(&cfg.FixedStep, "fixed-step", cfg.FixedStep, "fixed physics step")
	flag.BoolVar(&cfg.Accelerated, "accelerated", cfg.Accelerated, "run frames back to back instead of in real time")
	flag.StringVar(&cfg.AdminAddr, "admin-addr", cfg.AdminAddr, "admin gRPC address; empty disables")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus /metrics address; empty disables")
	flag.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "debug, info, warn or error")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "wallsim: invalid configuration:\n%v\n", err)
		os.Exit(2)
	}

	if opts.TUI {
		out, closeLog, err := consoleLogOutput(cfg.Log.File)
		if err != nil {
			fmt.Fprintf(os.Stderr, "wallsim: %v\n", err)
			os.Exit(2)
		}
		defer closeLog()
		cfg.Log.Output = out
	}
	log := logging.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	if err := run(ctx, cfg, opts, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error(ctx, "wallsim exited", logging.Err(err))
		os.Exit(1)
	}
	log.Info(context.Background(), "wallsim stopped", logging.String("wall_time", time.Since(start).Round(time.Millisecond).String()))
}

// consoleLogOutput keeps logs off the terminal while the console owns it:
// they go to path, or nowhere when path is empty.
func consoleLogOutput(path string) (io.Writer, func(), error) {
	if path == "" {
		return io.Discard, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}
