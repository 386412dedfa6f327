package sensor

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// rigidTolerance bounds the determinant and orthonormality error accepted
// for a rotation block.
const rigidTolerance = 0.01

// Pose is a sensor-to-world rigid transform, stored as a row-major 4x4
// matrix: m00,m01,m02,m03, m10,...
// Coordinate convention: X=right, Y=forward, Z=up.
type Pose struct {
	T [16]float64
}

// IdentityPose places the sensor at the world origin.
func IdentityPose() Pose {
	return Pose{T: [16]float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}}
}

// YawPose rotates the sensor by yawDeg about Z (counter-clockwise seen
// from above) and places it at origin.
func YawPose(yawDeg float64, origin r3.Vec) Pose {
	s, c := math.Sincos(yawDeg * math.Pi / 180.0)
	return Pose{T: [16]float64{
		c, -s, 0, origin.X,
		s, c, 0, origin.Y,
		0, 0, 1, origin.Z,
		0, 0, 0, 1,
	}}
}

// Origin returns the sensor position in the world frame.
func (p Pose) Origin() r3.Vec {
	return r3.Vec{X: p.T[3], Y: p.T[7], Z: p.T[11]}
}

// Apply transforms point v from the sensor frame to the world frame.
func (p Pose) Apply(v r3.Vec) r3.Vec {
	return ApplyPose(v, p.T)
}

// ApplyDirection rotates v without translating it.
func (p Pose) ApplyDirection(v r3.Vec) r3.Vec {
	T := p.T
	return r3.Vec{
		X: T[0]*v.X + T[1]*v.Y + T[2]*v.Z,
		Y: T[4]*v.X + T[5]*v.Y + T[6]*v.Z,
		Z: T[8]*v.X + T[9]*v.Y + T[10]*v.Z,
	}
}

// Inverse returns the world-to-sensor transform. p must be rigid.
func (p Pose) Inverse() Pose {
	T := p.T
	// R^T and -R^T t
	inv := [16]float64{
		T[0], T[4], T[8], 0,
		T[1], T[5], T[9], 0,
		T[2], T[6], T[10], 0,
		0, 0, 0, 1,
	}
	inv[3] = -(inv[0]*T[3] + inv[1]*T[7] + inv[2]*T[11])
	inv[7] = -(inv[4]*T[3] + inv[5]*T[7] + inv[6]*T[11])
	inv[11] = -(inv[8]*T[3] + inv[9]*T[7] + inv[10]*T[11])
	return Pose{T: inv}
}

// IsRigid reports whether p is a proper rigid transform: an orthonormal
// rotation block with determinant 1 and a last row of [0 0 0 1]. Shear and
// scale are rejected because Inverse relies on R^T being R^-1.
func (p Pose) IsRigid() bool {
	T := p.T
	for _, v := range T {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	r00, r01, r02 := T[0], T[1], T[2]
	r10, r11, r12 := T[4], T[5], T[6]
	r20, r21, r22 := T[8], T[9], T[10]

	det := r00*(r11*r22-r12*r21) - r01*(r10*r22-r12*r20) + r02*(r10*r21-r11*r20)
	if math.Abs(det-1.0) > rigidTolerance {
		return false
	}

	// R R^T = I: unit rows, pairwise orthogonal.
	rows := [3]r3.Vec{
		{X: r00, Y: r01, Z: r02},
		{X: r10, Y: r11, Z: r12},
		{X: r20, Y: r21, Z: r22},
	}
	for i := range rows {
		for j := i; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1
			}
			if math.Abs(r3.Dot(rows[i], rows[j])-want) > rigidTolerance {
				return false
			}
		}
	}
	return T[12] == 0 && T[13] == 0 && T[14] == 0 && math.Abs(T[15]-1.0) <= 0.001
}

// SphericalToCartesian converts distance (meters), azimuth (degrees) and
// elevation (degrees) into sensor-frame coordinates. Azimuth 0 looks along
// +Y and grows towards +X.
func SphericalToCartesian(distance, azimuthDeg, elevationDeg float64) r3.Vec {
	sinAz, cosAz := math.Sincos(azimuthDeg * math.Pi / 180.0)
	sinEl, cosEl := math.Sincos(elevationDeg * math.Pi / 180.0)
	return r3.Vec{
		X: distance * cosEl * sinAz,
		Y: distance * cosEl * cosAz,
		Z: distance * sinEl,
	}
}

// ApplyPose applies a 4x4 row-major transform T to point v.
func ApplyPose(v r3.Vec, T [16]float64) r3.Vec {
	return r3.Vec{
		X: T[0]*v.X + T[1]*v.Y + T[2]*v.Z + T[3],
		Y: T[4]*v.X + T[5]*v.Y + T[6]*v.Z + T[7],
		Z: T[8]*v.X + T[9]*v.Y + T[10]*v.Z + T[11],
	}
}
