package sensor

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/idslab-autosec/AutoSVT-carla/internal/config"
	"github.com/idslab-autosec/AutoSVT-carla/internal/lidar/measurement"
)

// StepInput is everything one step needs besides the sensor's tables.
// Hits holds one slice per channel in ray order.
type StepInput struct {
	Pose            Pose
	FogDensity      float64
	HorizontalAngle float32 // degrees
	Seed            uint64
	Hits            [][]Hit
}

// StepStats summarises one step.
type StepStats struct {
	Rays     int
	Hits     int
	Accepted int
	Dropped  int
	MOR      float64
}

// Pipeline runs the per-ray model for every channel of a step on a bounded
// worker pool and encodes the result.
type Pipeline struct {
	builder  *Builder
	mor      MORSource
	dropoff  Dropoff
	channels int
	workers  int
}

// NewPipeline returns a pipeline for a sensor with the given channel count.
// mor defaults to the builder's fog model; workers <= 0 uses GOMAXPROCS.
func NewPipeline(builder *Builder, mor MORSource, dropoff Dropoff, channels, workers int) (*Pipeline, error) {
	if builder == nil {
		return nil, fmt.Errorf("%w: no detection builder", ErrConfiguration)
	}
	if channels < 1 || channels > config.MaxChannels {
		return nil, fmt.Errorf("%w: channel count %d outside [1,%d]", ErrConfiguration, channels, config.MaxChannels)
	}
	if mor == nil {
		mor = builder.Model()
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Pipeline{
		builder:  builder,
		mor:      mor,
		dropoff:  dropoff,
		channels: channels,
		workers:  workers,
	}, nil
}

// Channels returns the channel count the pipeline encodes.
func (p *Pipeline) Channels() int { return p.channels }

// Workers returns the worker pool size.
func (p *Pipeline) Workers() int { return p.workers }

type channelStats struct {
	hits, accepted, dropped int
}

// Run computes and encodes one step. Each channel is processed by one
// worker with its own random stream, so the buffer is identical for any
// worker count. Any error aborts the whole step and no buffer is returned.
func (p *Pipeline) Run(ctx context.Context, in StepInput) ([]byte, StepStats, error) {
	if len(in.Hits) != p.channels {
		err := fmt.Errorf("%w: hits for %d channels, sensor has %d", ErrConfiguration, len(in.Hits), p.channels)
		opsf("step aborted: %v", err)
		return nil, StepStats{}, err
	}
	step, err := NewStepContext(p.mor, in.Pose, in.FogDensity, p.dropoff, in.Seed)
	if err != nil {
		opsf("step aborted: %v", err)
		return nil, StepStats{}, err
	}

	maxRays := 0
	for _, hits := range in.Hits {
		maxRays = max(maxRays, len(hits))
	}
	acc := NewAccumulator(uint32(p.channels), uint32(maxRays))
	perChannel := make([]channelStats, p.channels)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for ch := range in.Hits {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := step.ChannelRand(ch)
			st := &perChannel[ch]
			for _, hit := range in.Hits[ch] {
				if !hit.Valid {
					continue
				}
				st.hits++
				det, ok := p.builder.Build(hit, step, rng)
				if !ok {
					st.dropped++
					continue
				}
				if err := acc.Add(uint32(ch), det); err != nil {
					return err
				}
				st.accepted++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		opsf("step aborted: %v", err)
		return nil, StepStats{}, err
	}

	stats := StepStats{MOR: step.MOR}
	for ch, st := range perChannel {
		stats.Rays += len(in.Hits[ch])
		stats.Hits += st.hits
		stats.Accepted += st.accepted
		stats.Dropped += st.dropped
		tracef("channel %d: rays=%d hits=%d accepted=%d dropped=%d",
			ch, len(in.Hits[ch]), st.hits, st.accepted, st.dropped)
	}

	counts, flat := acc.Finalize()
	buf, err := measurement.Encode(in.HorizontalAngle, counts, flat)
	if err != nil {
		opsf("step aborted: encode: %v", err)
		return nil, StepStats{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return buf, stats, nil
}
