// Package config loads wallsim settings from WALLSTREAM_* environment
// variables. Command-line flags in cmd/wallsim override individual fields.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/signalsfoundry/wallstream/core"
	"github.com/signalsfoundry/wallstream/internal/logging"
	"github.com/signalsfoundry/wallstream/internal/observability"
)

// EnvPrefix prefixes every variable read by Load.
const EnvPrefix = "WALLSTREAM_"

// Store kinds.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
)

// Config is the full runtime configuration.
type Config struct {
	Log     logging.Config              `envPrefix:"LOG_"`
	Tracing observability.TracingConfig `envPrefix:"TRACING_"`

	StoreKind    string `env:"STORE" envDefault:"file"`
	WaypointPath string `env:"WAYPOINT_PATH" envDefault:"BuildTheWall.cfg"`
	SQLitePath   string `env:"SQLITE_PATH" envDefault:"wallstream.db"`
	BodiesPath   string `env:"BODIES_PATH"`

	FrameInterval time.Duration `env:"FRAME_INTERVAL" envDefault:"50ms"`
	FixedStep     time.Duration `env:"FIXED_STEP" envDefault:"20ms"`
	Accelerated   bool          `env:"ACCELERATED" envDefault:"false"`

	LoadDistance     float64 `env:"LOAD_DISTANCE" envDefault:"20000"`
	UnloadDistance   float64 `env:"UNLOAD_DISTANCE" envDefault:"25000"`
	MaxSegmentLength float64 `env:"MAX_SEGMENT_LENGTH" envDefault:"25"`
	WallWidth        float64 `env:"WALL_WIDTH" envDefault:"2"`
	WallHeight       float64 `env:"WALL_HEIGHT" envDefault:"10"`
	TextureName      string  `env:"TEXTURE" envDefault:"BuildTheWall/wall"`

	Body      string  `env:"BODY" envDefault:"Kerbin"`
	Latitude  float64 `env:"LATITUDE" envDefault:"-0.0972"`
	Longitude float64 `env:"LONGITUDE" envDefault:"-74.5577"`
	// TLELine1 and TLELine2 switch the viewer to an SGP4-propagated orbit
	// around Body. Both or neither must be set.
	TLELine1 string `env:"TLE_LINE1"`
	TLELine2 string `env:"TLE_LINE2"`

	AdminAddr   string `env:"ADMIN_ADDR" envDefault:"127.0.0.1:9470"`
	MetricsAddr string `env:"METRICS_ADDR" envDefault:"127.0.0.1:9471"`
}

// Load parses the process environment.
func Load() (Config, error) {
	return parse(env.Options{Prefix: EnvPrefix})
}

// LoadFrom parses the given variables instead of the process environment.
func LoadFrom(environ map[string]string) (Config, error) {
	return parse(env.Options{Prefix: EnvPrefix, Environment: environ})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.StoreKind = strings.ToLower(cfg.StoreKind)
	cfg.Tracing.Exporter = strings.ToLower(cfg.Tracing.Exporter)
	return cfg, nil
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	switch c.StoreKind {
	case StoreFile:
		if c.WaypointPath == "" {
			errs = append(errs, errors.New("waypoint path is required for the file store"))
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("sqlite path is required for the sqlite store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store %q (want %s or %s)", c.StoreKind, StoreFile, StoreSQLite))
	}
	if c.FrameInterval <= 0 {
		errs = append(errs, fmt.Errorf("frame interval must be positive, got %v", c.FrameInterval))
	}
	if c.FixedStep <= 0 {
		errs = append(errs, fmt.Errorf("fixed step must be positive, got %v", c.FixedStep))
	}
	if err := c.StreamingParams().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Latitude < -90 || c.Latitude > 90 {
		errs = append(errs, fmt.Errorf("latitude %v out of range", c.Latitude))
	}
	if (c.TLELine1 == "") != (c.TLELine2 == "") {
		errs = append(errs, errors.New("both TLE lines are required for an orbital viewer"))
	}
	if c.Body == "" {
		errs = append(errs, errors.New("body is required"))
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("tracing sample ratio %v out of [0, 1]", c.Tracing.SampleRatio))
	}
	return errors.Join(errs...)
}

// StreamingParams returns the wall distances and dimensions.
func (c Config) StreamingParams() core.StreamingParams {
	return core.StreamingParams{
		LoadDistance:     c.LoadDistance,
		UnloadDistance:   c.UnloadDistance,
		MaxSegmentLength: c.MaxSegmentLength,
		WallWidth:        c.WallWidth,
		WallHeight:       c.WallHeight,
	}
}
