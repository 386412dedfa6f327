package lidardb

import (
	"bytes"
	"context"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idslab-autosec/AutoSVT-carla/internal/lidar/measurement"
	"github.com/idslab-autosec/AutoSVT-carla/internal/monitoring"
)

func openTestDB(t *testing.T, opts ...Option) *LidarDB {
	t.Helper()
	original := monitoring.Logf
	monitoring.SetLogger(t.Logf)
	t.Cleanup(func() { monitoring.SetLogger(original) })

	ldb, err := Open(filepath.Join(t.TempDir(), "archive.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { ldb.Close() })
	return ldb
}

// sampleBuffer encodes a step with channels channels and a repeating point
// pattern, seeded so that different steps differ.
func sampleBuffer(t *testing.T, channels, perChannel int, seed uint64) []byte {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, 0))
	counts := make([]uint32, channels)
	var points []measurement.Detection
	for ch := range counts {
		counts[ch] = uint32(perChannel)
		for i := 0; i < perChannel; i++ {
			points = append(points, measurement.Detection{
				X:         float32(i),
				Y:         float32(ch) + float32(rng.IntN(4)),
				Z:         -1.8,
				Intensity: 0.25,
				ObjectTag: 7,
			})
		}
	}
	buf, err := measurement.Encode(float32(seed%360), counts, points)
	require.NoError(t, err)
	return buf
}

func TestOpenMigrates(t *testing.T) {
	ldb := openTestDB(t)

	version, dirty, err := ldb.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
	assert.Equal(t, CompressionZstd, ldb.Compression())

	// Re-running is a no-op.
	require.NoError(t, ldb.MigrateUp())

	require.NoError(t, ldb.MigrateDown())
	version, _, err = ldb.MigrateVersion()
	require.NoError(t, err)
	assert.Zero(t, version)
}

func TestOpenLogsSchemaVersion(t *testing.T) {
	var lines []string
	original := monitoring.Logf
	monitoring.SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	defer monitoring.SetLogger(original)

	ldb, err := Open(filepath.Join(t.TempDir(), "logged.db"), WithCompression(CompressionS2))
	require.NoError(t, err)
	defer ldb.Close()

	require.NotEmpty(t, lines)
	last := lines[len(lines)-1]
	assert.Contains(t, last, "schema v1, dirty=false, compression s2")
	assert.NotContains(t, last, "unavailable")
}

func TestOpenRejectsUnknownCompression(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "x.db"), WithCompression(Compression(42)))
	assert.ErrorIs(t, err, ErrUnknownCompression)
}

func TestRecordAndLoadRoundTrip(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionZstd, CompressionS2, CompressionLZ4} {
		t.Run(c.String(), func(t *testing.T) {
			ctx := context.Background()
			ldb := openTestDB(t, WithCompression(c))

			id, err := ldb.StartSession(ctx, "lidar-fog-0", "round trip")
			require.NoError(t, err)

			var bufs [][]byte
			for step := uint64(0); step < 3; step++ {
				buf := sampleBuffer(t, 4, 50, step+1)
				bufs = append(bufs, buf)
				meta, err := ldb.RecordMeasurement(ctx, id, MeasurementMeta{Step: step, FogDensity: 0.3, MOR: 42}, buf)
				require.NoError(t, err)
				assert.Equal(t, 200, meta.PointCount)
				assert.Equal(t, 4, meta.ChannelCount)
				assert.Equal(t, len(buf), meta.RawSize)
				assert.Positive(t, meta.WriteTimestamp)
				if c != CompressionNone {
					assert.Less(t, meta.StoredSize, meta.RawSize, "repetitive payload should shrink")
				}
			}

			for step, want := range bufs {
				got, err := ldb.LoadMeasurement(ctx, id, uint64(step))
				require.NoError(t, err)
				assert.True(t, bytes.Equal(want, got), "step %d differs after round trip", step)
			}

			metas, err := ldb.ListMeasurements(ctx, id)
			require.NoError(t, err)
			require.Len(t, metas, 3)
			for i, m := range metas {
				assert.Equal(t, uint64(i), m.Step)
				assert.Equal(t, c, m.Compression)
				assert.Equal(t, 0.3, m.FogDensity)
				assert.Equal(t, float32(i+1), m.HorizontalAngle)
			}
		})
	}
}

func TestEndSessionStatistics(t *testing.T) {
	ctx := context.Background()
	ldb := openTestDB(t)

	id, err := ldb.StartSession(ctx, "lidar-fog-1", "stats")
	require.NoError(t, err)
	for step := uint64(0); step < 2; step++ {
		_, err := ldb.RecordMeasurement(ctx, id, MeasurementMeta{Step: step}, sampleBuffer(t, 2, 10, step))
		require.NoError(t, err)
	}
	require.NoError(t, ldb.EndSession(ctx, id))

	s, err := ldb.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "lidar-fog-1", s.SensorID)
	assert.Equal(t, 2, s.MeasurementCount)
	assert.Equal(t, int64(40), s.PointsCount)
	require.NotNil(t, s.EndTimestamp)
	assert.GreaterOrEqual(t, *s.EndTimestamp, s.StartTimestamp)

	other, err := ldb.StartSession(ctx, "lidar-fog-2", "")
	require.NoError(t, err)
	sessions, err := ldb.ListSessions(ctx, "")
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
	sessions, err = ldb.ListSessions(ctx, "lidar-fog-2")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, other, sessions[0].ID)

	assert.ErrorIs(t, ldb.EndSession(ctx, "no-such-session"), ErrNotFound)
}

func TestRecordMeasurementRejects(t *testing.T) {
	ctx := context.Background()
	ldb := openTestDB(t)
	id, err := ldb.StartSession(ctx, "lidar-fog-0", "")
	require.NoError(t, err)

	buf := sampleBuffer(t, 2, 3, 1)
	_, err = ldb.RecordMeasurement(ctx, id, MeasurementMeta{}, buf[:len(buf)-1])
	assert.ErrorIs(t, err, measurement.ErrMalformedBuffer)

	_, err = ldb.RecordMeasurement(ctx, "no-such-session", MeasurementMeta{}, buf)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = ldb.RecordMeasurement(ctx, id, MeasurementMeta{Step: 5}, buf)
	require.NoError(t, err)
	_, err = ldb.RecordMeasurement(ctx, id, MeasurementMeta{Step: 5}, buf)
	assert.Error(t, err, "a step may only be recorded once per session")
}

func TestLoadMeasurementErrors(t *testing.T) {
	ctx := context.Background()
	ldb := openTestDB(t, WithCompression(CompressionNone))
	id, err := ldb.StartSession(ctx, "lidar-fog-0", "")
	require.NoError(t, err)

	_, err = ldb.LoadMeasurement(ctx, id, 0)
	assert.ErrorIs(t, err, ErrNotFound)

	buf := sampleBuffer(t, 2, 3, 1)
	_, err = ldb.RecordMeasurement(ctx, id, MeasurementMeta{Step: 0}, buf)
	require.NoError(t, err)

	corrupt := bytes.Clone(buf)
	corrupt[len(corrupt)-1] ^= 0xff
	_, err = ldb.ExecContext(ctx, `UPDATE fog_measurements SET payload = ? WHERE session_id = ? AND step = 0`, corrupt, id)
	require.NoError(t, err)

	_, err = ldb.LoadMeasurement(ctx, id, 0)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestParseCompression(t *testing.T) {
	tests := []struct {
		in   string
		want Compression
	}{
		{"", CompressionZstd},
		{"zstd", CompressionZstd},
		{"S2", CompressionS2},
		{" lz4 ", CompressionLZ4},
		{"none", CompressionNone},
	}
	for _, tt := range tests {
		got, err := ParseCompression(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		if tt.in != "" {
			again, err := ParseCompression(got.String())
			require.NoError(t, err)
			assert.Equal(t, got, again)
		}
	}

	_, err := ParseCompression("gzip")
	assert.ErrorIs(t, err, ErrUnknownCompression)
}

func TestCompressRandomPayload(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte(rng.UintN(256))
	}

	for _, c := range []Compression{CompressionZstd, CompressionS2, CompressionLZ4} {
		payload, applied, err := compress(c, data)
		require.NoError(t, err, c)
		out, err := decompress(applied, payload, len(data))
		require.NoError(t, err, c)
		assert.True(t, bytes.Equal(data, out), "%v round trip", c)
	}
}

func TestMigrateLogger(t *testing.T) {
	var got string
	original := monitoring.Logf
	monitoring.SetLogger(func(format string, v ...interface{}) { got = format })
	defer monitoring.SetLogger(original)

	logger := &migrateLogger{}
	logger.Printf("applied %d", 1)
	assert.Equal(t, "[migrate] applied %d", got)
	assert.False(t, logger.Verbose())
}
