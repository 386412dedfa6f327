// Package measurement defines the binary measurement buffer produced once per
// sensor step, and read-side access to it.
//
// WIRE FORMAT (version 1, little-endian):
//
//	├── Header (12 + 4N bytes)
//	│   ├── [0:4]    format version, uint32 (= FormatVersion)
//	│   ├── [4:8]    horizontal angle in degrees, float32 bits
//	│   ├── [8:12]   channel count N, uint32 (1..MaxChannels)
//	│   └── [12:12+4N] points per channel, N × uint32
//	└── Detections (20 bytes each, channel-major: all of channel 0, then 1, ...)
//	    ├── [0:4]   x, float32
//	    ├── [4:8]   y, float32
//	    ├── [8:12]  z, float32
//	    ├── [12:16] intensity, float32
//	    └── [16:20] object tag, uint32
//
// There are no per-record delimiters. Detection i starts at
// HeaderSize(N) + i*RecordSize, and the buffer length is exactly
// HeaderSize(N) + RecordSize*sum(points per channel). Channel c occupies
// indices [sum(counts[:c]), sum(counts[:c+1])).
//
// Any change to these offsets requires bumping FormatVersion.
package measurement
