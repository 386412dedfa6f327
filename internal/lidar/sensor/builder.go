package sensor

import (
	"fmt"
	"math"

	"github.com/idslab-autosec/AutoSVT-carla/internal/lidar/fog"
	"github.com/idslab-autosec/AutoSVT-carla/internal/lidar/measurement"
	"github.com/idslab-autosec/AutoSVT-carla/internal/lidar/reflectivity"
)

// Builder turns ray hits into detections. It holds only read-only tables
// and is safe for concurrent use.
type Builder struct {
	catalog        *reflectivity.Catalog
	model          *fog.Model
	atmosphereRate float64
}

// NewBuilder returns a Builder over catalog and model. atmosphereRate is
// the clear-air falloff per metre.
func NewBuilder(catalog *reflectivity.Catalog, model *fog.Model, atmosphereRate float64) (*Builder, error) {
	if catalog == nil {
		return nil, fmt.Errorf("%w: no reflectivity catalog", ErrConfiguration)
	}
	if model == nil {
		return nil, fmt.Errorf("%w: no fog model", ErrConfiguration)
	}
	if atmosphereRate < 0 || math.IsNaN(atmosphereRate) {
		return nil, fmt.Errorf("%w: atmosphere attenuation rate %v must be non-negative", ErrConfiguration, atmosphereRate)
	}
	return &Builder{catalog: catalog, model: model, atmosphereRate: atmosphereRate}, nil
}

// Model returns the fog model.
func (b *Builder) Model() *fog.Model { return b.model }

// Catalog returns the reflectivity catalog.
func (b *Builder) Catalog() *reflectivity.Catalog { return b.catalog }

// Reflectivity resolves the hit's coefficient, label override first.
func (b *Builder) Reflectivity(hit Hit) float64 {
	return b.catalog.Resolve(hit.Tag, hit.Label)
}

// BaseIntensity is the clear-air intensity: reflectivity decayed by the
// atmosphere rate over the hit distance, in [0,1].
func (b *Builder) BaseIntensity(hit Hit) float64 {
	base := b.Reflectivity(hit)
	if hit.Distance > 0 {
		base *= math.Exp(-b.atmosphereRate * hit.Distance)
	}
	return math.Min(1, math.Max(0, base))
}

// ComputeIntensity applies fog attenuation for mor to the base intensity.
func (b *Builder) ComputeIntensity(hit Hit, mor float64) float64 {
	return fog.AttenuateIntensity(b.BaseIntensity(hit), hit.Distance, mor)
}

// ComputeDetection builds the sensor-local detection for hit. It does not
// apply dropoff.
func (b *Builder) ComputeDetection(hit Hit, step *StepContext) measurement.Detection {
	local := step.inverse.Apply(hit.Point)
	return measurement.NewDetection(local, b.ComputeIntensity(hit, step.MOR), uint32(hit.Tag))
}

// PostprocessDetection reports whether det survives dropoff.
func (b *Builder) PostprocessDetection(det measurement.Detection, dropoff Dropoff, rng RandomSource) bool {
	return dropoff.Keep(float64(det.Intensity), rng)
}

// Build runs both stages for one ray. It returns false for rays without a
// hit and for dropped points.
func (b *Builder) Build(hit Hit, step *StepContext, rng RandomSource) (measurement.Detection, bool) {
	if !hit.Valid {
		return measurement.Detection{}, false
	}
	det := b.ComputeDetection(hit, step)
	if !b.PostprocessDetection(det, step.Dropoff, rng) {
		return measurement.Detection{}, false
	}
	return det, true
}
