package measurement

import (
	"encoding/binary"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Detection is one accepted LiDAR return in the sensor-local frame.
// Fields are float32 so a detection survives encoding bit for bit.
type Detection struct {
	X, Y, Z   float32
	Intensity float32 // [0,1], after fog attenuation and dropoff
	ObjectTag uint32  // semantic tag of the hit object
}

// NewDetection narrows a position and intensity to the wire precision.
func NewDetection(p r3.Vec, intensity float64, tag uint32) Detection {
	return Detection{
		X:         float32(p.X),
		Y:         float32(p.Y),
		Z:         float32(p.Z),
		Intensity: float32(intensity),
		ObjectTag: tag,
	}
}

// Point returns the detection position as a vector.
func (d Detection) Point() r3.Vec {
	return r3.Vec{X: float64(d.X), Y: float64(d.Y), Z: float64(d.Z)}
}

// Distance returns the range of the detection from the sensor origin.
func (d Detection) Distance() float64 {
	return r3.Norm(d.Point())
}

func putDetection(b []byte, d Detection) {
	binary.LittleEndian.PutUint32(b[0:4], math.Float32bits(d.X))
	binary.LittleEndian.PutUint32(b[4:8], math.Float32bits(d.Y))
	binary.LittleEndian.PutUint32(b[8:12], math.Float32bits(d.Z))
	binary.LittleEndian.PutUint32(b[12:16], math.Float32bits(d.Intensity))
	binary.LittleEndian.PutUint32(b[16:20], d.ObjectTag)
}

func readDetection(b []byte) Detection {
	return Detection{
		X:         math.Float32frombits(binary.LittleEndian.Uint32(b[0:4])),
		Y:         math.Float32frombits(binary.LittleEndian.Uint32(b[4:8])),
		Z:         math.Float32frombits(binary.LittleEndian.Uint32(b[8:12])),
		Intensity: math.Float32frombits(binary.LittleEndian.Uint32(b[12:16])),
		ObjectTag: binary.LittleEndian.Uint32(b[16:20]),
	}
}
