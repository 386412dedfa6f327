package sensor

import (
	"math"

	"github.com/idslab-autosec/AutoSVT-carla/internal/config"
)

// ScanPattern tracks the rotation of the sensor head and lays out the rays
// fired in one tick.
type ScanPattern struct {
	channels          int
	maxRange          float64
	pointsPerSecond   int
	rotationFrequency float64
	upperFOV          float64
	lowerFOV          float64
	horizontalFOV     float64

	angle float64 // current horizontal angle, degrees in [0,360)
}

// NewScanPattern builds a scan pattern from a validated configuration.
func NewScanPattern(cfg *config.SensorConfig) *ScanPattern {
	return &ScanPattern{
		channels:          cfg.GetChannels(),
		maxRange:          cfg.GetRange(),
		pointsPerSecond:   cfg.GetPointsPerSecond(),
		rotationFrequency: cfg.GetRotationFrequency(),
		upperFOV:          cfg.GetUpperFOV(),
		lowerFOV:          cfg.GetLowerFOV(),
		horizontalFOV:     cfg.GetHorizontalFOV(),
	}
}

// Channels returns the number of lasers.
func (s *ScanPattern) Channels() int { return s.channels }

// Range returns the maximum ray length in metres.
func (s *ScanPattern) Range() float64 { return s.maxRange }

// HorizontalAngle returns the current head angle in degrees.
func (s *ScanPattern) HorizontalAngle() float64 { return s.angle }

// PointsPerChannel returns how many rays each laser fires over dt seconds.
func (s *ScanPattern) PointsPerChannel(dt float64) uint32 {
	if dt <= 0 {
		return 0
	}
	return uint32(math.Floor(float64(s.pointsPerSecond) * dt / float64(s.channels)))
}

// Sweep returns the start angle and angular width of the next tick of dt
// seconds, both in degrees, without moving the head.
func (s *ScanPattern) Sweep(dt float64) (startAngle, sweep float64) {
	startAngle = s.angle
	if dt <= 0 {
		return startAngle, 0
	}
	return startAngle, math.Min(s.rotationFrequency*s.horizontalFOV*dt, s.horizontalFOV)
}

// Advance rotates the head by one tick of dt seconds and returns what Sweep
// reported for it.
func (s *ScanPattern) Advance(dt float64) (startAngle, sweep float64) {
	startAngle, sweep = s.Sweep(dt)
	s.angle = wrapDegrees(startAngle + sweep)
	return startAngle, sweep
}

// ChannelElevation returns the elevation of laser ch in degrees. Channel 0
// is the top laser; the rest are spaced evenly down to the lower limit.
func (s *ScanPattern) ChannelElevation(ch int) float64 {
	if s.channels <= 1 {
		return s.upperFOV
	}
	step := (s.upperFOV - s.lowerFOV) / float64(s.channels-1)
	return s.upperFOV - step*float64(ch)
}

// RayAzimuth returns the azimuth of ray i of n spread over sweep degrees
// from start, wrapped to [0,360).
func RayAzimuth(start, sweep float64, i, n uint32) float64 {
	if n == 0 {
		return wrapDegrees(start)
	}
	return wrapDegrees(start + sweep*float64(i)/float64(n))
}

func wrapDegrees(a float64) float64 {
	a = math.Mod(a, 360)
	if a < 0 {
		a += 360
	}
	return a
}
