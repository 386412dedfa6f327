package sensor

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/idslab-autosec/AutoSVT-carla/internal/lidar/measurement"
	"github.com/idslab-autosec/AutoSVT-carla/internal/lidar/reflectivity"
)

// ringHits builds rays per channel at increasing distances, every fifth one
// a miss. Roads are dim enough that dropoff rejects a share of them.
func ringHits(channels, rays int) [][]Hit {
	hits := make([][]Hit, channels)
	for ch := range hits {
		hits[ch] = make([]Hit, rays)
		for i := range hits[ch] {
			if i%5 == 4 {
				continue
			}
			p := SphericalToCartesian(2+float64(i), float64(i*7%360), float64(ch)-float64(channels)/2)
			tag := reflectivity.TagRoads
			if i%3 == 0 {
				tag = reflectivity.TagCar
			}
			hits[ch][i] = hitAt(p, tag)
		}
	}
	return hits
}

func mustPipeline(t *testing.T, d Dropoff, channels, workers int) *Pipeline {
	t.Helper()
	p, err := NewPipeline(testBuilder(t), nil, d, channels, workers)
	require.NoError(t, err)
	return p
}

func TestPipelineDropoffDisabledKeepsEveryHit(t *testing.T) {
	p := mustPipeline(t, Disabled(), 8, 4)
	hits := ringHits(8, 40)

	buf, stats, err := p.Run(context.Background(), StepInput{
		Pose: IdentityPose(),
		Seed: 1,
		Hits: hits,
	})
	require.NoError(t, err)

	assert.Equal(t, 8*40, stats.Rays)
	assert.Equal(t, 8*32, stats.Hits)
	assert.Equal(t, stats.Hits, stats.Accepted)
	assert.Zero(t, stats.Dropped)

	m, err := measurement.Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, stats.Accepted, m.Len())
	for ch := 0; ch < 8; ch++ {
		assert.Equal(t, 32, m.PointCount(ch), "channel %d", ch)
	}
}

func TestPipelineScenarioTwoChannels(t *testing.T) {
	b := testBuilder(t)
	p, err := NewPipeline(b, nil, Disabled(), 2, 2)
	require.NoError(t, err)

	ch1Hit := hitAt(r3.Vec{X: -3, Y: 4, Z: 0.5}, reflectivity.TagCar)
	hits := [][]Hit{
		{
			hitAt(r3.Vec{Y: 10}, reflectivity.TagRoads),
			hitAt(r3.Vec{Y: 20}, reflectivity.TagRoads),
			hitAt(r3.Vec{X: 5, Y: 5}, reflectivity.TagCar),
		},
		{{}, ch1Hit, {}},
	}

	buf, _, err := p.Run(context.Background(), StepInput{Pose: IdentityPose(), FogDensity: 0.3, HorizontalAngle: 45, Hits: hits})
	require.NoError(t, err)

	h, err := measurement.DecodeHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, []uint32{3, 1}, h.PointsPerChannel)
	assert.Equal(t, float32(45), h.HorizontalAngle)

	m, err := measurement.Decode(buf)
	require.NoError(t, err)
	got, err := m.ChannelDetections(1)
	require.NoError(t, err)

	step := mustStep(t, b.Model(), IdentityPose(), 0.3, Disabled(), 0)
	assert.Equal(t, []measurement.Detection{b.ComputeDetection(ch1Hit, step)}, got)
}

func TestPipelineDeterministicAcrossWorkers(t *testing.T) {
	d, err := NewDropoff(true, 0.05, 0.8, 0.4)
	require.NoError(t, err)
	in := StepInput{
		Pose:       YawPose(15, r3.Vec{Z: 1.8}),
		FogDensity: 0.2,
		Seed:       1234,
		Hits:       ringHits(16, 64),
	}

	serial, serialStats, err := mustPipeline(t, d, 16, 1).Run(context.Background(), in)
	require.NoError(t, err)
	require.Positive(t, serialStats.Dropped, "fixture should exercise dropoff")

	for _, workers := range []int{1, 3, 16} {
		buf, stats, err := mustPipeline(t, d, 16, workers).Run(context.Background(), in)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(serial, buf), "workers=%d produced a different buffer", workers)
		assert.Equal(t, serialStats, stats, "workers=%d", workers)
	}

	in.Seed = 4321
	other, _, err := mustPipeline(t, d, 16, 4).Run(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, bytes.Equal(serial, other), "a different seed should change the dropoff pattern")
}

func TestPipelineAbortsWithoutBuffer(t *testing.T) {
	p := mustPipeline(t, Disabled(), 4, 2)

	t.Run("channel mismatch", func(t *testing.T) {
		buf, _, err := p.Run(context.Background(), StepInput{Pose: IdentityPose(), Hits: ringHits(3, 4)})
		assert.ErrorIs(t, err, ErrConfiguration)
		assert.Nil(t, buf)
	})
	t.Run("non-rigid pose", func(t *testing.T) {
		buf, _, err := p.Run(context.Background(), StepInput{Hits: ringHits(4, 4)})
		assert.ErrorIs(t, err, ErrConfiguration)
		assert.Nil(t, buf)
	})
	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		buf, _, err := p.Run(ctx, StepInput{Pose: IdentityPose(), Hits: ringHits(4, 4)})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Nil(t, buf)
	})
}

func TestNewPipelineValidation(t *testing.T) {
	b := testBuilder(t)
	_, err := NewPipeline(nil, nil, Disabled(), 4, 1)
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = NewPipeline(b, nil, Disabled(), 0, 1)
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = NewPipeline(b, nil, Disabled(), measurement.MaxChannels+1, 1)
	assert.ErrorIs(t, err, ErrConfiguration)

	p, err := NewPipeline(b, nil, Disabled(), 4, 0)
	require.NoError(t, err)
	assert.Positive(t, p.Workers())
}

func BenchmarkPipelineRun(b *testing.B) {
	d, _ := NewDropoff(true, 0, 0.8, 0.4)
	p, err := NewPipeline(testBuilder(b), nil, d, 32, 0)
	if err != nil {
		b.Fatal(err)
	}
	in := StepInput{Pose: IdentityPose(), FogDensity: 0.3, Seed: 1, Hits: ringHits(32, 175)}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := p.Run(context.Background(), in); err != nil {
			b.Fatal(err)
		}
	}
}
