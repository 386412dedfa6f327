package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical sensor defaults file.
const DefaultConfigPath = "config/sensor.defaults.json"

// MaxChannels is the largest channel count a sensor may be configured with.
// It matches the ceiling enforced by the measurement decoder.
const MaxChannels = 1024

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid sensor configuration")

// SensorConfig is the configuration of one fog LiDAR. Every field is
// optional; the Get* accessors return the documented default when a field
// is absent, so partial files are safe.
type SensorConfig struct {
	SensorID *string `json:"sensor_id,omitempty"`

	// Scan geometry
	Channels          *int     `json:"channels,omitempty"`
	Range             *float64 `json:"range,omitempty"` // metres
	PointsPerSecond   *int     `json:"points_per_second,omitempty"`
	RotationFrequency *float64 `json:"rotation_frequency,omitempty"` // Hz
	UpperFOV          *float64 `json:"upper_fov,omitempty"`          // degrees
	LowerFOV          *float64 `json:"lower_fov,omitempty"`          // degrees
	HorizontalFOV     *float64 `json:"horizontal_fov,omitempty"`     // degrees

	// Intensity model
	AtmosphereAttenuationRate *float64 `json:"atmosphere_attenuation_rate,omitempty"`
	DropoffEnabled            *bool    `json:"dropoff_enabled,omitempty"`
	DropoffGeneralRate        *float64 `json:"dropoff_general_rate,omitempty"`
	DropoffIntensityLimit     *float64 `json:"dropoff_intensity_limit,omitempty"`
	DropoffZeroIntensity      *float64 `json:"dropoff_zero_intensity,omitempty"`

	// Fog and reflectivity data
	FogDensity        *float64           `json:"fog_density,omitempty"`
	FogTablePath      *string            `json:"fog_table_path,omitempty"`    // empty: embedded table
	ReflectivityPath  *string            `json:"reflectivity_path,omitempty"` // empty: embedded catalog
	LabelReflectivity map[string]float64 `json:"label_reflectivity,omitempty"`

	// Execution
	Workers *int    `json:"workers,omitempty"` // 0: GOMAXPROCS
	Seed    *uint64 `json:"seed,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrUint64(v uint64) *uint64    { return &v }

// EmptySensorConfig returns a SensorConfig with all fields set to nil.
func EmptySensorConfig() *SensorConfig {
	return &SensorConfig{}
}

// DefaultSensorConfig returns a SensorConfig with every field set to its
// default value. Use it in tests and tools that have no config file.
func DefaultSensorConfig() *SensorConfig {
	e := EmptySensorConfig()
	return &SensorConfig{
		SensorID:                  ptrString(e.GetSensorID()),
		Channels:                  ptrInt(e.GetChannels()),
		Range:                     ptrFloat64(e.GetRange()),
		PointsPerSecond:           ptrInt(e.GetPointsPerSecond()),
		RotationFrequency:         ptrFloat64(e.GetRotationFrequency()),
		UpperFOV:                  ptrFloat64(e.GetUpperFOV()),
		LowerFOV:                  ptrFloat64(e.GetLowerFOV()),
		HorizontalFOV:             ptrFloat64(e.GetHorizontalFOV()),
		AtmosphereAttenuationRate: ptrFloat64(e.GetAtmosphereAttenuationRate()),
		DropoffEnabled:            ptrBool(e.GetDropoffEnabled()),
		DropoffGeneralRate:        ptrFloat64(e.GetDropoffGeneralRate()),
		DropoffIntensityLimit:     ptrFloat64(e.GetDropoffIntensityLimit()),
		DropoffZeroIntensity:      ptrFloat64(e.GetDropoffZeroIntensity()),
		FogDensity:                ptrFloat64(e.GetFogDensity()),
		FogTablePath:              ptrString(""),
		ReflectivityPath:          ptrString(""),
		Workers:                   ptrInt(0),
		Seed:                      ptrUint64(0),
	}
}

// LoadSensorConfig loads a SensorConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadSensorConfig(path string) (*SensorConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptySensorConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching from the current
// directory up towards the repository root. Panics if the file cannot be
// loaded; intended for test setup.
func MustLoadDefaultConfig() *SensorConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/lidar/sensor/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadSensorConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

func checkUnit(name string, v *float64) error {
	if v != nil && (*v < 0 || *v > 1) {
		return invalidf("%s must be between 0 and 1, got %f", name, *v)
	}
	return nil
}

// Validate checks the values that are set. Every failure wraps ErrInvalidConfig.
func (c *SensorConfig) Validate() error {
	if ch := c.GetChannels(); ch < 1 || ch > MaxChannels {
		return invalidf("channels must be between 1 and %d, got %d", MaxChannels, ch)
	}
	if c.GetRange() <= 0 {
		return invalidf("range must be positive, got %f", c.GetRange())
	}
	if c.GetPointsPerSecond() <= 0 {
		return invalidf("points_per_second must be positive, got %d", c.GetPointsPerSecond())
	}
	if c.GetRotationFrequency() <= 0 {
		return invalidf("rotation_frequency must be positive, got %f", c.GetRotationFrequency())
	}
	if c.GetUpperFOV() < c.GetLowerFOV() {
		return invalidf("upper_fov %f is below lower_fov %f", c.GetUpperFOV(), c.GetLowerFOV())
	}
	if h := c.GetHorizontalFOV(); h <= 0 || h > 360 {
		return invalidf("horizontal_fov must be in (0, 360], got %f", h)
	}
	if c.GetAtmosphereAttenuationRate() < 0 {
		return invalidf("atmosphere_attenuation_rate must be non-negative, got %f", c.GetAtmosphereAttenuationRate())
	}

	for _, f := range []struct {
		name string
		v    *float64
	}{
		{"dropoff_general_rate", c.DropoffGeneralRate},
		{"dropoff_zero_intensity", c.DropoffZeroIntensity},
		{"fog_density", c.FogDensity},
	} {
		if err := checkUnit(f.name, f.v); err != nil {
			return err
		}
	}
	if c.GetDropoffEnabled() && c.GetDropoffIntensityLimit() <= 0 {
		return invalidf("dropoff_intensity_limit must be positive when dropoff is enabled, got %f",
			c.GetDropoffIntensityLimit())
	}
	for label, v := range c.LabelReflectivity {
		if v < 0 || v > 1 {
			return invalidf("label_reflectivity[%q] must be between 0 and 1, got %f", label, v)
		}
	}

	if c.GetWorkers() < 0 {
		return invalidf("workers must be non-negative, got %d", c.GetWorkers())
	}
	return nil
}

// GetSensorID returns the sensor_id value or the default.
func (c *SensorConfig) GetSensorID() string {
	if c.SensorID == nil || *c.SensorID == "" {
		return "lidar-fog-0"
	}
	return *c.SensorID
}

// GetChannels returns the channels value or the default.
func (c *SensorConfig) GetChannels() int {
	if c.Channels == nil {
		return 32
	}
	return *c.Channels
}

// GetRange returns the range value or the default.
func (c *SensorConfig) GetRange() float64 {
	if c.Range == nil {
		return 100.0
	}
	return *c.Range
}

// GetPointsPerSecond returns the points_per_second value or the default.
func (c *SensorConfig) GetPointsPerSecond() int {
	if c.PointsPerSecond == nil {
		return 56000
	}
	return *c.PointsPerSecond
}

// GetRotationFrequency returns the rotation_frequency value or the default.
func (c *SensorConfig) GetRotationFrequency() float64 {
	if c.RotationFrequency == nil {
		return 10.0
	}
	return *c.RotationFrequency
}

// GetUpperFOV returns the upper_fov value or the default.
func (c *SensorConfig) GetUpperFOV() float64 {
	if c.UpperFOV == nil {
		return 10.0
	}
	return *c.UpperFOV
}

// GetLowerFOV returns the lower_fov value or the default.
func (c *SensorConfig) GetLowerFOV() float64 {
	if c.LowerFOV == nil {
		return -30.0
	}
	return *c.LowerFOV
}

// GetHorizontalFOV returns the horizontal_fov value or the default.
func (c *SensorConfig) GetHorizontalFOV() float64 {
	if c.HorizontalFOV == nil {
		return 360.0
	}
	return *c.HorizontalFOV
}

// GetAtmosphereAttenuationRate returns the atmosphere_attenuation_rate value or the default.
func (c *SensorConfig) GetAtmosphereAttenuationRate() float64 {
	if c.AtmosphereAttenuationRate == nil {
		return 0.004
	}
	return *c.AtmosphereAttenuationRate
}

// GetDropoffEnabled returns the dropoff_enabled value or the default.
func (c *SensorConfig) GetDropoffEnabled() bool {
	if c.DropoffEnabled == nil {
		return true
	}
	return *c.DropoffEnabled
}

// GetDropoffGeneralRate returns the dropoff_general_rate value or the default.
func (c *SensorConfig) GetDropoffGeneralRate() float64 {
	if c.DropoffGeneralRate == nil {
		return 0
	}
	return *c.DropoffGeneralRate
}

// GetDropoffIntensityLimit returns the dropoff_intensity_limit value or the default.
func (c *SensorConfig) GetDropoffIntensityLimit() float64 {
	if c.DropoffIntensityLimit == nil {
		return 0.8
	}
	return *c.DropoffIntensityLimit
}

// GetDropoffZeroIntensity returns the dropoff_zero_intensity value or the default.
func (c *SensorConfig) GetDropoffZeroIntensity() float64 {
	if c.DropoffZeroIntensity == nil {
		return 0.4
	}
	return *c.DropoffZeroIntensity
}

// GetFogDensity returns the fog_density value or the default (no fog).
func (c *SensorConfig) GetFogDensity() float64 {
	if c.FogDensity == nil {
		return 0
	}
	return *c.FogDensity
}

// GetFogTablePath returns the fog_table_path value; empty selects the embedded table.
func (c *SensorConfig) GetFogTablePath() string {
	if c.FogTablePath == nil {
		return ""
	}
	return *c.FogTablePath
}

// GetReflectivityPath returns the reflectivity_path value; empty selects the embedded catalog.
func (c *SensorConfig) GetReflectivityPath() string {
	if c.ReflectivityPath == nil {
		return ""
	}
	return *c.ReflectivityPath
}

// GetWorkers returns the workers value or the default (0, meaning GOMAXPROCS).
func (c *SensorConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}

// GetSeed returns the seed value or the default.
func (c *SensorConfig) GetSeed() uint64 {
	if c.Seed == nil {
		return 0
	}
	return *c.Seed
}
