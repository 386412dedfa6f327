package sensor

import (
	"fmt"
	"math"
)

// RandomSource yields uniform values in [0,1). *rand.Rand from math/rand/v2
// satisfies it.
type RandomSource interface {
	Float64() float64
}

// Dropoff decides whether a detection survives post-processing.
//
// With dropoff enabled a point is first rejected with probability
// GeneralRate. Points brighter than Limit are then always kept; the rest
// are kept with probability alpha*I + beta where
//
//	alpha = (1 - ZeroIntensity) / Limit
//	beta  = 1 - ZeroIntensity
type Dropoff struct {
	Enabled       bool
	GeneralRate   float64
	Limit         float64
	ZeroIntensity float64

	alpha, beta float64
}

// NewDropoff validates the parameters and precomputes alpha and beta.
// Parameters are only checked when enabled is true.
func NewDropoff(enabled bool, generalRate, limit, zeroIntensity float64) (Dropoff, error) {
	d := Dropoff{
		Enabled:       enabled,
		GeneralRate:   generalRate,
		Limit:         limit,
		ZeroIntensity: zeroIntensity,
	}
	if !enabled {
		return d, nil
	}
	if !(limit > 0) {
		return Dropoff{}, fmt.Errorf("%w: dropoff intensity limit must be positive, got %v", ErrConfiguration, limit)
	}
	if !inUnit(generalRate) {
		return Dropoff{}, fmt.Errorf("%w: dropoff general rate %v outside [0,1]", ErrConfiguration, generalRate)
	}
	if !inUnit(zeroIntensity) {
		return Dropoff{}, fmt.Errorf("%w: dropoff at zero intensity %v outside [0,1]", ErrConfiguration, zeroIntensity)
	}
	d.beta = 1 - zeroIntensity
	d.alpha = d.beta / limit
	return d, nil
}

// Disabled returns a Dropoff that keeps every point.
func Disabled() Dropoff { return Dropoff{} }

// Alpha returns the slope of the keep probability.
func (d Dropoff) Alpha() float64 { return d.alpha }

// Beta returns the keep probability at zero intensity.
func (d Dropoff) Beta() float64 { return d.beta }

// KeepProbability returns the chance that a point of the given intensity
// passes the intensity stage. The general rate is not included.
func (d Dropoff) KeepProbability(intensity float64) float64 {
	if !d.Enabled || intensity > d.Limit {
		return 1
	}
	return math.Min(1, math.Max(0, d.alpha*intensity+d.beta))
}

// Keep runs the Bernoulli trials for one point. A disabled Dropoff never
// consumes random values.
func (d Dropoff) Keep(intensity float64, rng RandomSource) bool {
	if !d.Enabled {
		return true
	}
	if d.GeneralRate > 0 && rng.Float64() < d.GeneralRate {
		return false
	}
	if intensity > d.Limit {
		return true
	}
	return rng.Float64() < d.alpha*intensity+d.beta
}

func inUnit(v float64) bool { return v >= 0 && v <= 1 }
