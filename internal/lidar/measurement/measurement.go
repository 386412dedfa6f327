package measurement

import (
	"fmt"
	"iter"
	"sort"
)

// Measurement is a validated, read-only view over an encoded buffer. The
// header, data offset and channel prefix sums are computed once in Decode.
type Measurement struct {
	raw        []byte
	header     Header
	dataOffset int
	starts     []int // starts[c] is the first index of channel c; len = channels+1
}

// Decode validates buf and indexes it for random access. buf is retained,
// not copied; callers must not modify it afterwards.
func Decode(buf []byte) (*Measurement, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}
	if err := validatePayload(buf, h); err != nil {
		return nil, err
	}

	starts := make([]int, len(h.PointsPerChannel)+1)
	for i, c := range h.PointsPerChannel {
		starts[i+1] = starts[i] + int(c)
	}

	return &Measurement{
		raw:        buf,
		header:     h,
		dataOffset: h.Size(),
		starts:     starts,
	}, nil
}

// Bytes returns the underlying buffer.
func (m *Measurement) Bytes() []byte { return m.raw }

// Header returns a copy of the decoded header.
func (m *Measurement) Header() Header {
	h := m.header
	h.PointsPerChannel = append([]uint32(nil), m.header.PointsPerChannel...)
	return h
}

// HorizontalAngle is the sensor rotation, in degrees, at capture time.
func (m *Measurement) HorizontalAngle() float32 { return m.header.HorizontalAngle }

// ChannelCount returns the number of channels in the buffer.
func (m *Measurement) ChannelCount() int { return len(m.header.PointsPerChannel) }

// PointCount returns the number of points channel generated, or 0 for
// channels outside the buffer.
func (m *Measurement) PointCount(channel int) int {
	if channel < 0 || channel >= m.ChannelCount() {
		return 0
	}
	return int(m.header.PointsPerChannel[channel])
}

// Len returns the total number of detections.
func (m *Measurement) Len() int { return m.starts[len(m.starts)-1] }

// Detection returns detection index, counted across all channels.
func (m *Measurement) Detection(index int) (Detection, error) {
	if index < 0 || index >= m.Len() {
		return Detection{}, fmt.Errorf("%w: detection %d of %d", ErrIndexOutOfRange, index, m.Len())
	}
	off := m.dataOffset + index*RecordSize
	return readDetection(m.raw[off : off+RecordSize]), nil
}

// ChannelOffsetAndCount returns the first absolute index of channel and the
// number of detections it holds.
func (m *Measurement) ChannelOffsetAndCount(channel int) (start, count int, err error) {
	if channel < 0 || channel >= m.ChannelCount() {
		return 0, 0, fmt.Errorf("%w: channel %d of %d", ErrIndexOutOfRange, channel, m.ChannelCount())
	}
	return m.starts[channel], m.starts[channel+1] - m.starts[channel], nil
}

// ChannelDetections decodes all detections of one channel in order.
func (m *Measurement) ChannelDetections(channel int) ([]Detection, error) {
	start, count, err := m.ChannelOffsetAndCount(channel)
	if err != nil {
		return nil, err
	}
	out := make([]Detection, count)
	for i := range out {
		off := m.dataOffset + (start+i)*RecordSize
		out[i] = readDetection(m.raw[off : off+RecordSize])
	}
	return out, nil
}

// All yields every detection with its absolute index, channel-major.
func (m *Measurement) All() iter.Seq2[int, Detection] {
	return func(yield func(int, Detection) bool) {
		for i := 0; i < m.Len(); i++ {
			off := m.dataOffset + i*RecordSize
			if !yield(i, readDetection(m.raw[off:off+RecordSize])) {
				return
			}
		}
	}
}

// ChannelOf returns the channel that produced detection index.
func (m *Measurement) ChannelOf(index int) (int, error) {
	if index < 0 || index >= m.Len() {
		return 0, fmt.Errorf("%w: detection %d of %d", ErrIndexOutOfRange, index, m.Len())
	}
	// First channel whose end lies past index; empty channels are skipped.
	return sort.SearchInts(m.starts[1:], index+1), nil
}
