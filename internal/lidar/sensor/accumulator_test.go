package sensor

import (
	"errors"
	"math"
	"testing"

	"github.com/idslab-autosec/AutoSVT-carla/internal/config"
	"github.com/idslab-autosec/AutoSVT-carla/internal/lidar/measurement"
)

func det(x float32, tag uint32) measurement.Detection {
	return measurement.Detection{X: x, Y: -x, Z: x / 2, Intensity: 0.5, ObjectTag: tag}
}

func TestAccumulatorFinalize(t *testing.T) {
	acc := NewAccumulator(3, 4)

	// Interleave channels; per-channel order must be insertion order.
	adds := []struct {
		ch uint32
		d  measurement.Detection
	}{
		{2, det(1, 1)}, {0, det(2, 2)}, {2, det(3, 3)}, {0, det(4, 4)}, {0, det(5, 5)},
	}
	for _, a := range adds {
		if err := acc.Add(a.ch, a.d); err != nil {
			t.Fatalf("Add(%d): %v", a.ch, err)
		}
	}

	counts, flat := acc.Finalize()
	wantCounts := []uint32{3, 0, 2}
	for i := range wantCounts {
		if counts[i] != wantCounts[i] {
			t.Fatalf("counts = %v, want %v", counts, wantCounts)
		}
	}
	wantFlat := []measurement.Detection{det(2, 2), det(4, 4), det(5, 5), det(1, 1), det(3, 3)}
	if len(flat) != len(wantFlat) {
		t.Fatalf("len(flat) = %d, want %d", len(flat), len(wantFlat))
	}
	for i := range wantFlat {
		if flat[i] != wantFlat[i] {
			t.Errorf("flat[%d] = %+v, want %+v", i, flat[i], wantFlat[i])
		}
	}
	if acc.Len() != 5 || acc.ChannelCount() != 3 {
		t.Errorf("Len, ChannelCount = %d, %d; want 5, 3", acc.Len(), acc.ChannelCount())
	}
}

func TestAccumulatorOutOfRange(t *testing.T) {
	acc := NewAccumulator(2, 0)
	if err := acc.Add(2, det(0, 0)); !errors.Is(err, ErrChannelOutOfRange) {
		t.Fatalf("Add(2) error = %v, want ErrChannelOutOfRange", err)
	}
	if acc.Len() != 0 {
		t.Errorf("rejected add changed Len to %d", acc.Len())
	}
}

func TestAccumulatorReset(t *testing.T) {
	acc := NewAccumulator(2, 1)
	_ = acc.Add(0, det(1, 1))
	_ = acc.Add(1, det(2, 2))
	acc.Reset()

	counts, flat := acc.Finalize()
	if len(flat) != 0 || counts[0] != 0 || counts[1] != 0 {
		t.Fatalf("after Reset: counts=%v flat=%v", counts, flat)
	}
}

func TestAccumulatorEncodesEmptyChannels(t *testing.T) {
	acc := NewAccumulator(4, 0)
	_ = acc.Add(3, det(7, 9))

	counts, flat := acc.Finalize()
	buf, err := measurement.Encode(0, counts, flat)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	m, err := measurement.Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	start, n, err := m.ChannelOffsetAndCount(3)
	if err != nil || start != 0 || n != 1 {
		t.Fatalf("ChannelOffsetAndCount(3) = %d, %d, %v; want 0, 1, nil", start, n, err)
	}
}

func TestScanPattern(t *testing.T) {
	cfg := config.DefaultSensorConfig()
	s := NewScanPattern(cfg)

	if got := s.PointsPerChannel(0.1); got != 175 {
		t.Errorf("PointsPerChannel(0.1) = %d, want 175", got)
	}
	if got := s.PointsPerChannel(0); got != 0 {
		t.Errorf("PointsPerChannel(0) = %d, want 0", got)
	}

	start, sweep := s.Advance(0.025)
	if start != 0 || sweep != 90 || s.HorizontalAngle() != 90 {
		t.Errorf("Advance(0.025) = %v, %v; angle %v", start, sweep, s.HorizontalAngle())
	}
	start, sweep = s.Advance(0.1) // a full turn
	if start != 90 || sweep != 360 || s.HorizontalAngle() != 90 {
		t.Errorf("Advance(0.1) = %v, %v; angle %v", start, sweep, s.HorizontalAngle())
	}
	start, sweep = s.Advance(1) // capped at one turn
	if sweep != 360 || start != 90 {
		t.Errorf("Advance(1) = %v, %v", start, sweep)
	}

	if got := s.ChannelElevation(0); got != 10 {
		t.Errorf("ChannelElevation(0) = %v, want 10", got)
	}
	if got := s.ChannelElevation(31); math.Abs(got+30) > 1e-9 {
		t.Errorf("ChannelElevation(31) = %v, want -30", got)
	}
}

func TestRayAzimuth(t *testing.T) {
	tests := []struct {
		start, sweep float64
		i, n         uint32
		want         float64
	}{
		{0, 90, 0, 4, 0},
		{0, 90, 2, 4, 45},
		{350, 20, 1, 2, 0},
		{350, 20, 3, 4, 5},
		{-10, 0, 0, 0, 350},
	}
	for _, tt := range tests {
		if got := RayAzimuth(tt.start, tt.sweep, tt.i, tt.n); got != tt.want {
			t.Errorf("RayAzimuth(%v, %v, %d, %d) = %v, want %v", tt.start, tt.sweep, tt.i, tt.n, got, tt.want)
		}
	}
}
