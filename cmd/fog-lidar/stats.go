package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/idslab-autosec/AutoSVT-carla/internal/lidar/sensor"
)

// RunStats accumulates step statistics for periodic logging.
type RunStats struct {
	mu        sync.Mutex
	interval  StatsSnapshot
	total     StatsSnapshot
	lastReset time.Time
}

// StatsSnapshot is a copy of the counters over some window.
type StatsSnapshot struct {
	Steps    int64
	Rays     int64
	Accepted int64
	Dropped  int64
	Bytes    int64
	Duration time.Duration
}

func NewRunStats() *RunStats {
	return &RunStats{lastReset: time.Now()}
}

func (s *StatsSnapshot) add(st sensor.StepStats, bytes int) {
	s.Steps++
	s.Rays += int64(st.Rays)
	s.Accepted += int64(st.Accepted)
	s.Dropped += int64(st.Dropped)
	s.Bytes += int64(bytes)
}

func (rs *RunStats) AddStep(st sensor.StepStats, bytes int) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.interval.add(st, bytes)
	rs.total.add(st, bytes)
}

// GetAndReset returns the counters since the previous call.
func (rs *RunStats) GetAndReset() StatsSnapshot {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	now := time.Now()
	snap := rs.interval
	snap.Duration = now.Sub(rs.lastReset)
	rs.interval = StatsSnapshot{}
	rs.lastReset = now
	return snap
}

// Total returns the counters since the run started.
func (rs *RunStats) Total() StatsSnapshot {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.total
}

// DropRate is the share of hits rejected by dropoff.
func (s StatsSnapshot) DropRate() float64 {
	hits := s.Accepted + s.Dropped
	if hits == 0 {
		return 0
	}
	return float64(s.Dropped) / float64(hits)
}

// Rates formats per-second throughput over the snapshot window.
func (s StatsSnapshot) Rates() string {
	secs := s.Duration.Seconds()
	if secs <= 0 {
		return s.String()
	}
	return fmt.Sprintf("Fog lidar stats (/sec): %.1f steps, %s points, %.1f KB, %.1f%% dropped",
		float64(s.Steps)/secs, formatWithCommas(int64(float64(s.Accepted)/secs)),
		float64(s.Bytes)/secs/1024, 100*s.DropRate())
}

func (s StatsSnapshot) String() string {
	return fmt.Sprintf("%d steps, %s rays, %s points, %s bytes, %.1f%% dropped",
		s.Steps, formatWithCommas(s.Rays), formatWithCommas(s.Accepted),
		formatWithCommas(s.Bytes), 100*s.DropRate())
}

// formatWithCommas formats a number with thousands separators
func formatWithCommas(n int64) string {
	if n < 0 {
		return "-" + formatWithCommas(-n)
	}
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	result := ""
	for i, char := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(char)
	}
	return result
}
