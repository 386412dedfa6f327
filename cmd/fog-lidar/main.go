package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/idslab-autosec/AutoSVT-carla/internal/config"
	"github.com/idslab-autosec/AutoSVT-carla/internal/lidar/fog"
	"github.com/idslab-autosec/AutoSVT-carla/internal/lidar/lidardb"
	"github.com/idslab-autosec/AutoSVT-carla/internal/lidar/scene"
	"github.com/idslab-autosec/AutoSVT-carla/internal/lidar/sensor"
	"github.com/idslab-autosec/AutoSVT-carla/internal/monitoring"
	"github.com/idslab-autosec/AutoSVT-carla/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to a sensor config JSON file (default: built-in defaults)")
	steps       = flag.Int("steps", 100, "Number of sensor steps to run (0 runs until interrupted)")
	dt          = flag.Float64("dt", 0.05, "Simulated seconds per step")
	fogDensity  = flag.Float64("fog", -1, "Fog density in [0,1] (negative: use the config value)")
	dbFile      = flag.String("db", "", "Path to a SQLite archive; measurements are recorded when set")
	compression = flag.String("compression", "zstd", "Archive compression: none, zstd, s2 or lz4")
	logInterval = flag.Duration("log-interval", 2*time.Second, "Statistics logging interval")
	scenePath   = flag.String("scene", "", "Path to a scene JSON file (default: built-in street scene)")
	speed       = flag.Float64("speed", 0, "Forward speed of the sensor in m/s")
	notes       = flag.String("notes", "", "Notes stored with the recording session")
	verbose     = flag.Bool("verbose", false, "Log per-step diagnostics")
	trace       = flag.Bool("trace", false, "Log per-channel trace output")
	realtime    = flag.Bool("realtime", false, "Sleep dt between steps instead of running flat out")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// options is the parsed command line.
type options struct {
	configPath  string
	steps       int
	dt          float64
	fogDensity  float64
	dbFile      string
	compression string
	logInterval time.Duration
	scenePath   string
	speed       float64
	notes       string
	realtime    bool
}

func (o options) validate() error {
	if o.steps < 0 {
		return fmt.Errorf("-steps must be >= 0, got %d", o.steps)
	}
	if !(o.dt > 0) {
		return fmt.Errorf("-dt must be positive, got %v", o.dt)
	}
	if o.fogDensity > 1 {
		return fmt.Errorf("-fog must be <= 1, got %v", o.fogDensity)
	}
	if o.logInterval <= 0 {
		return fmt.Errorf("-log-interval must be positive, got %v", o.logInterval)
	}
	if _, err := lidardb.ParseCompression(o.compression); err != nil {
		return err
	}
	return nil
}

func loadConfig(path string) (*config.SensorConfig, error) {
	if path == "" {
		return config.DefaultSensorConfig(), nil
	}
	return config.LoadSensorConfig(path)
}

func loadScene(path string) (*scene.Scene, error) {
	if path == "" {
		return scene.DefaultScene(), nil
	}
	return scene.LoadFile(path)
}

// run drives the sensor through o.steps ticks and returns the accumulated
// statistics. The archive, when configured, receives one row per step.
func run(ctx context.Context, o options) (*RunStats, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}

	cfg, err := loadConfig(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	world, err := loadScene(o.scenePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load scene: %w", err)
	}
	s, err := sensor.NewSensor(cfg)
	if err != nil {
		return nil, err
	}

	density := cfg.GetFogDensity()
	if o.fogDensity >= 0 {
		density = o.fogDensity
	}
	mor := s.MOR(density)
	log.Printf("Sensor %s: %d channels, fog density %.2f, MOR %.1f m (%s)",
		s.ID(), s.Scan().Channels(), density, mor, fog.Visibility(mor))

	var (
		archive   *lidardb.LidarDB
		sessionID string
	)
	if o.dbFile != "" {
		c, _ := lidardb.ParseCompression(o.compression)
		archive, err = lidardb.Open(o.dbFile, lidardb.WithCompression(c))
		if err != nil {
			return nil, fmt.Errorf("failed to open archive: %w", err)
		}
		defer archive.Close()

		sessionID, err = archive.StartSession(ctx, s.ID(), o.notes)
		if err != nil {
			return nil, err
		}
		log.Printf("Recording session %s to %s (%s)", sessionID, o.dbFile, c)
		defer func() {
			// The run context may already be cancelled here.
			if err := archive.EndSession(context.Background(), sessionID); err != nil {
				log.Printf("Failed to end session %s: %v", sessionID, err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stats := NewRunStats()
	go logStats(ctx, stats, o.logInterval)

	var ticker *time.Ticker
	if o.realtime {
		ticker = time.NewTicker(time.Duration(o.dt * float64(time.Second)))
		defer ticker.Stop()
	}

	for step := 0; o.steps == 0 || step < o.steps; step++ {
		if ticker != nil {
			select {
			case <-ctx.Done():
				return stats, nil
			case <-ticker.C:
			}
		} else if ctx.Err() != nil {
			return stats, nil
		}

		pose := sensor.YawPose(0, r3.Vec{Y: o.speed * o.dt * float64(step)})
		buf, st, err := s.Tick(ctx, o.dt, pose, density, world)
		if interrupted(err) {
			return stats, nil
		}
		if err != nil {
			return stats, fmt.Errorf("step %d: %w", step, err)
		}
		stats.AddStep(st, len(buf))

		if archive != nil {
			meta := lidardb.MeasurementMeta{Step: uint64(step), FogDensity: density, MOR: st.MOR}
			_, err := archive.RecordMeasurement(ctx, sessionID, meta, buf)
			if interrupted(err) {
				return stats, nil
			}
			if err != nil {
				return stats, err
			}
		}
	}
	return stats, nil
}

// interrupted reports whether err only means the run was cancelled.
func interrupted(err error) bool {
	return errors.Is(err, context.Canceled)
}

func logStats(ctx context.Context, stats *RunStats, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := stats.GetAndReset()
			if snap.Steps > 0 {
				log.Print(snap.Rates())
			}
		}
	}
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	diag, traceW := io.Discard, io.Discard
	if *verbose {
		diag = os.Stderr
	}
	if *trace {
		traceW = os.Stderr
	}
	sensor.SetLogWriters(os.Stderr, diag, traceW)
	monitoring.SetOutput(diag)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	stats, err := run(ctx, options{
		configPath:  *configPath,
		steps:       *steps,
		dt:          *dt,
		fogDensity:  *fogDensity,
		dbFile:      *dbFile,
		compression: *compression,
		logInterval: *logInterval,
		scenePath:   *scenePath,
		speed:       *speed,
		notes:       *notes,
		realtime:    *realtime,
	})
	if stats != nil {
		log.Printf("Run complete in %s: %s", time.Since(start).Round(time.Millisecond), stats.Total())
	}
	if err != nil {
		log.Fatalf("fog-lidar: %v", err)
	}
}
