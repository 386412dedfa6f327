package sensor

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// MORSource converts fog density to MOR. Both *fog.Model and *fog.MORCache
// implement it.
type MORSource interface {
	ComputeMOR(density float64) float64
}

// StepContext is the read-only state shared by every ray of one step. MOR
// is computed once when the context is built.
type StepContext struct {
	Pose       Pose
	FogDensity float64
	MOR        float64
	Dropoff    Dropoff
	Seed       uint64

	inverse Pose
}

// NewStepContext fixes the per-step state. A missing MOR source, a NaN
// density or a non-rigid pose is a configuration error.
func NewStepContext(mor MORSource, pose Pose, density float64, dropoff Dropoff, seed uint64) (*StepContext, error) {
	if mor == nil {
		return nil, fmt.Errorf("%w: no fog model", ErrConfiguration)
	}
	if math.IsNaN(density) {
		return nil, fmt.Errorf("%w: fog density is NaN", ErrConfiguration)
	}
	if !pose.IsRigid() {
		return nil, fmt.Errorf("%w: pose is not a rigid transform", ErrConfiguration)
	}
	return &StepContext{
		Pose:       pose,
		FogDensity: density,
		MOR:        mor.ComputeMOR(density),
		Dropoff:    dropoff,
		Seed:       seed,
		inverse:    pose.Inverse(),
	}, nil
}

// Inverse returns the world-to-sensor transform.
func (s *StepContext) Inverse() Pose { return s.inverse }

// ChannelRand returns the random stream for one channel. Streams depend
// only on the step seed and the channel, so results do not depend on how
// channels are scheduled.
func (s *StepContext) ChannelRand(channel int) *rand.Rand {
	return rand.New(rand.NewPCG(s.Seed, uint64(channel)))
}
