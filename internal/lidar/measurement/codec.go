package measurement

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Wire format constants.
const (
	FormatVersion = 1    // current layout version
	MaxChannels   = 1024 // sanity ceiling for the channel count
	RecordSize    = 20   // bytes per detection: 4 × float32 + uint32

	fixedHeaderSize = 12 // version + angle + channel count
	countSize       = 4
)

// HeaderSize returns the header length for a buffer with the given channel count.
func HeaderSize(channels int) int {
	return fixedHeaderSize + countSize*channels
}

// Header is the fixed-width prefix of a measurement buffer.
type Header struct {
	Version          uint32
	HorizontalAngle  float32 // sensor rotation at capture time, degrees
	ChannelCount     uint32
	PointsPerChannel []uint32
}

// Size returns the encoded header length.
func (h Header) Size() int { return HeaderSize(int(h.ChannelCount)) }

// TotalPoints sums PointsPerChannel.
func (h Header) TotalPoints() uint64 {
	var total uint64
	for _, c := range h.PointsPerChannel {
		total += uint64(c)
	}
	return total
}

// Encode serializes one step's channel-grouped detections. points must be
// in channel-major order and len(points) must equal sum(counts).
func Encode(horizontalAngle float32, counts []uint32, points []Detection) ([]byte, error) {
	return AppendEncode(nil, horizontalAngle, counts, points)
}

// AppendEncode is Encode that appends to dst, reusing its capacity.
func AppendEncode(dst []byte, horizontalAngle float32, counts []uint32, points []Detection) ([]byte, error) {
	if len(counts) == 0 || len(counts) > MaxChannels {
		return nil, fmt.Errorf("%w: channel count %d outside [1,%d]", ErrInvalidLayout, len(counts), MaxChannels)
	}
	var total uint64
	for _, c := range counts {
		total += uint64(c)
	}
	if total != uint64(len(points)) {
		return nil, fmt.Errorf("%w: counts sum to %d but %d points given", ErrInvalidLayout, total, len(points))
	}

	headerSize := HeaderSize(len(counts))
	size := headerSize + RecordSize*len(points)

	start := len(dst)
	if cap(dst)-start < size {
		grown := make([]byte, start, start+size)
		copy(grown, dst)
		dst = grown
	}
	buf := dst[start : start+size]

	binary.LittleEndian.PutUint32(buf[0:4], FormatVersion)
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(horizontalAngle))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(counts)))
	off := fixedHeaderSize
	for _, c := range counts {
		binary.LittleEndian.PutUint32(buf[off:off+countSize], c)
		off += countSize
	}
	for _, d := range points {
		putDetection(buf[off:off+RecordSize], d)
		off += RecordSize
	}

	return dst[:start+size], nil
}

// DecodeHeader reads the header prefix of buf. It checks the version, the
// channel ceiling and that buf holds the full count table; it does not
// check the detection payload.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < fixedHeaderSize {
		return Header{}, fmt.Errorf("%w: %d bytes, need at least %d", ErrTruncated, len(buf), fixedHeaderSize)
	}

	h := Header{
		Version:         binary.LittleEndian.Uint32(buf[0:4]),
		HorizontalAngle: math.Float32frombits(binary.LittleEndian.Uint32(buf[4:8])),
		ChannelCount:    binary.LittleEndian.Uint32(buf[8:12]),
	}
	if h.Version != FormatVersion {
		return Header{}, fmt.Errorf("%w: got %d, want %d", ErrUnsupportedVersion, h.Version, FormatVersion)
	}
	if h.ChannelCount == 0 || h.ChannelCount > MaxChannels {
		return Header{}, fmt.Errorf("%w: %d outside [1,%d]", ErrChannelCeiling, h.ChannelCount, MaxChannels)
	}

	n := int(h.ChannelCount)
	if len(buf) < HeaderSize(n) {
		return Header{}, fmt.Errorf("%w: header needs %d bytes for %d channels, have %d",
			ErrTruncated, HeaderSize(n), n, len(buf))
	}

	h.PointsPerChannel = make([]uint32, n)
	off := fixedHeaderSize
	for i := range h.PointsPerChannel {
		h.PointsPerChannel[i] = binary.LittleEndian.Uint32(buf[off : off+countSize])
		off += countSize
	}
	return h, nil
}

// validatePayload checks that the detection region matches the header counts.
func validatePayload(buf []byte, h Header) error {
	want := uint64(h.Size()) + uint64(RecordSize)*h.TotalPoints()
	if uint64(len(buf)) != want {
		return fmt.Errorf("%w: header implies %d bytes, buffer has %d", ErrCountMismatch, want, len(buf))
	}
	return nil
}

// DecodeDetection reads detection index (absolute, channel-major) from buf
// without building a Measurement. Use Decode when reading many points.
func DecodeDetection(buf []byte, index int) (Detection, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return Detection{}, err
	}
	if err := validatePayload(buf, h); err != nil {
		return Detection{}, err
	}
	if index < 0 || uint64(index) >= h.TotalPoints() {
		return Detection{}, fmt.Errorf("%w: detection %d of %d", ErrIndexOutOfRange, index, h.TotalPoints())
	}
	off := h.Size() + index*RecordSize
	return readDetection(buf[off : off+RecordSize]), nil
}
