package sensor

import (
	"fmt"

	"github.com/idslab-autosec/AutoSVT-carla/internal/lidar/measurement"
)

// Accumulator groups one step's detections by channel, keeping insertion
// order within each channel.
//
// Channels are independent slots: concurrent Add calls are safe as long as
// no two goroutines add to the same channel. The step pipeline gives every
// channel to exactly one worker.
type Accumulator struct {
	channels [][]measurement.Detection
}

// NewAccumulator sizes an accumulator for channels lasers. maxPointsPerChannel
// is a capacity hint; channels may grow past it.
func NewAccumulator(channels, maxPointsPerChannel uint32) *Accumulator {
	a := &Accumulator{
		channels: make([][]measurement.Detection, channels),
	}
	for i := range a.channels {
		a.channels[i] = make([]measurement.Detection, 0, maxPointsPerChannel)
	}
	return a
}

// Add appends d to channel.
func (a *Accumulator) Add(channel uint32, d measurement.Detection) error {
	if int(channel) >= len(a.channels) {
		return fmt.Errorf("%w: channel %d of %d", ErrChannelOutOfRange, channel, len(a.channels))
	}
	a.channels[channel] = append(a.channels[channel], d)
	return nil
}

// Finalize returns the per-channel counts and all detections in
// channel-major order. Empty channels report a count of zero.
func (a *Accumulator) Finalize() (counts []uint32, flat []measurement.Detection) {
	counts = make([]uint32, len(a.channels))
	flat = make([]measurement.Detection, 0, a.Len())
	for i, ch := range a.channels {
		counts[i] = uint32(len(ch))
		flat = append(flat, ch...)
	}
	return counts, flat
}

// Reset empties every channel, keeping allocated capacity.
func (a *Accumulator) Reset() {
	for i := range a.channels {
		a.channels[i] = a.channels[i][:0]
	}
}

// ChannelCount returns the number of channels.
func (a *Accumulator) ChannelCount() int { return len(a.channels) }

// Len returns the number of detections across all channels.
func (a *Accumulator) Len() int {
	n := 0
	for _, ch := range a.channels {
		n += len(ch)
	}
	return n
}
