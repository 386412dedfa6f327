package sensor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/idslab-autosec/AutoSVT-carla/internal/config"
	"github.com/idslab-autosec/AutoSVT-carla/internal/lidar/fog"
	"github.com/idslab-autosec/AutoSVT-carla/internal/lidar/reflectivity"
)

// Sensor is a rotating fog LiDAR. It owns the fog model, reflectivity
// catalog and scan state; the host calls Tick once per simulation step.
type Sensor struct {
	id       string
	cfg      *config.SensorConfig
	scan     *ScanPattern
	builder  *Builder
	pipeline *Pipeline
	mor      *fog.MORCache

	mu    sync.Mutex
	steps uint64
}

// NewSensor loads the tables named by cfg (or the embedded defaults) and
// builds the step pipeline. A nil cfg uses every default. All failures wrap
// ErrConfiguration.
func NewSensor(cfg *config.SensorConfig) (*Sensor, error) {
	if cfg == nil {
		cfg = config.EmptySensorConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	table, err := loadFogTable(cfg.GetFogTablePath())
	if err != nil {
		return nil, fmt.Errorf("%w: fog table: %w", ErrConfiguration, err)
	}
	model, err := fog.NewModel(table)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	catalog, err := loadCatalog(cfg.GetReflectivityPath())
	if err != nil {
		return nil, fmt.Errorf("%w: reflectivity: %w", ErrConfiguration, err)
	}
	if len(cfg.LabelReflectivity) > 0 {
		if catalog, err = catalog.WithLabels(cfg.LabelReflectivity); err != nil {
			return nil, fmt.Errorf("%w: label reflectivity: %w", ErrConfiguration, err)
		}
	}

	builder, err := NewBuilder(catalog, model, cfg.GetAtmosphereAttenuationRate())
	if err != nil {
		return nil, err
	}
	dropoff, err := NewDropoff(cfg.GetDropoffEnabled(), cfg.GetDropoffGeneralRate(),
		cfg.GetDropoffIntensityLimit(), cfg.GetDropoffZeroIntensity())
	if err != nil {
		return nil, err
	}

	cache := model.NewMORCache()
	pipeline, err := NewPipeline(builder, cache, dropoff, cfg.GetChannels(), cfg.GetWorkers())
	if err != nil {
		return nil, err
	}

	s := &Sensor{
		id:       cfg.GetSensorID(),
		cfg:      cfg,
		scan:     NewScanPattern(cfg),
		builder:  builder,
		pipeline: pipeline,
		mor:      cache,
	}
	diagf("%s: %d channels, range %.1fm, %d workers, %d fog table rows, %d label overrides, dropoff=%v",
		s.id, cfg.GetChannels(), cfg.GetRange(), pipeline.Workers(), table.Len(), catalog.Labels(), dropoff.Enabled)
	return s, nil
}

func loadFogTable(path string) (*fog.Table, error) {
	if path == "" {
		return fog.DefaultTable()
	}
	return fog.LoadTableFile(path)
}

func loadCatalog(path string) (*reflectivity.Catalog, error) {
	if path == "" {
		return reflectivity.DefaultCatalog()
	}
	return reflectivity.LoadCatalogFile(path)
}

// ID returns the configured sensor identifier.
func (s *Sensor) ID() string { return s.id }

// Config returns the sensor configuration.
func (s *Sensor) Config() *config.SensorConfig { return s.cfg }

// Scan returns the scan pattern.
func (s *Sensor) Scan() *ScanPattern { return s.scan }

// Builder returns the detection builder.
func (s *Sensor) Builder() *Builder { return s.builder }

// MOR returns the memoized MOR for density.
func (s *Sensor) MOR(density float64) float64 { return s.mor.ComputeMOR(density) }

// Steps returns the number of steps completed by Tick.
func (s *Sensor) Steps() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.steps
}

// NextSeed returns the dropoff seed the next successful Tick will use: the
// configured seed plus the step counter.
func (s *Sensor) NextSeed() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.GetSeed() + s.steps
}

// Step runs the pipeline on hits that were cast elsewhere.
func (s *Sensor) Step(ctx context.Context, in StepInput) ([]byte, StepStats, error) {
	buf, stats, err := s.pipeline.Run(ctx, in)
	if err != nil {
		return nil, StepStats{}, err
	}
	diagf("%s: angle=%.2f density=%.3f mor=%.1f (%s) rays=%d hits=%d accepted=%d dropped=%d",
		s.id, in.HorizontalAngle, in.FogDensity, stats.MOR, fog.Visibility(stats.MOR),
		stats.Rays, stats.Hits, stats.Accepted, stats.Dropped)
	return buf, stats, nil
}

// Tick advances the head by dt seconds, casts every ray of the sweep
// through caster and runs the step. pose maps the sensor frame into the
// world frame. The head angle and step counter only move when the step
// succeeds.
func (s *Sensor) Tick(ctx context.Context, dt float64, pose Pose, density float64, caster RayCaster) ([]byte, StepStats, error) {
	if caster == nil {
		return nil, StepStats{}, errors.New("sensor: nil ray caster")
	}
	if !(dt > 0) {
		return nil, StepStats{}, fmt.Errorf("sensor: tick duration must be positive, got %v", dt)
	}
	if !pose.IsRigid() {
		return nil, StepStats{}, fmt.Errorf("%w: pose is not a rigid transform", ErrConfiguration)
	}
	if math.IsNaN(density) {
		return nil, StepStats{}, fmt.Errorf("%w: fog density is NaN", ErrConfiguration)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.scan.PointsPerChannel(dt)
	start, sweep := s.scan.Sweep(dt)
	origin := pose.Origin()
	maxRange := s.scan.Range()

	hits := make([][]Hit, s.scan.Channels())
	for ch := range hits {
		elevation := s.scan.ChannelElevation(ch)
		hits[ch] = make([]Hit, n)
		for i := uint32(0); i < n; i++ {
			local := SphericalToCartesian(1, RayAzimuth(start, sweep, i, n), elevation)
			hits[ch][i] = caster.CastRay(origin, pose.ApplyDirection(local), maxRange)
		}
	}

	buf, stats, err := s.Step(ctx, StepInput{
		Pose:            pose,
		FogDensity:      density,
		HorizontalAngle: float32(wrapDegrees(start + sweep)),
		Seed:            s.cfg.GetSeed() + s.steps,
		Hits:            hits,
	})
	if err != nil {
		return nil, StepStats{}, err
	}
	s.scan.Advance(dt)
	s.steps++
	return buf, stats, nil
}
