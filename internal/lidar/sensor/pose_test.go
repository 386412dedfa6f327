package sensor

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func vecNear(a, b r3.Vec, tol float64) bool {
	return r3.Norm(r3.Sub(a, b)) <= tol
}

func TestSphericalToCartesian(t *testing.T) {
	tests := []struct {
		name                string
		dist, az, elevation float64
		want                r3.Vec
	}{
		{"forward", 10, 0, 0, r3.Vec{Y: 10}},
		{"right", 10, 90, 0, r3.Vec{X: 10}},
		{"behind", 10, 180, 0, r3.Vec{Y: -10}},
		{"up", 10, 0, 90, r3.Vec{Z: 10}},
		{"down and left", 2, 270, -30, r3.Vec{X: -2 * math.Cos(math.Pi / 6), Z: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SphericalToCartesian(tt.dist, tt.az, tt.elevation)
			if !vecNear(got, tt.want, 1e-9) {
				t.Errorf("SphericalToCartesian = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPoseInverseRoundTrip(t *testing.T) {
	poses := []Pose{
		IdentityPose(),
		YawPose(30, r3.Vec{X: 1, Y: 2, Z: 3}),
		YawPose(-135, r3.Vec{X: -40, Y: 7.5, Z: 0.2}),
	}
	points := []r3.Vec{{}, {X: 1}, {X: -3, Y: 12, Z: 0.5}}

	for i, pose := range poses {
		inv := pose.Inverse()
		if !inv.IsRigid() {
			t.Fatalf("pose %d: inverse is not rigid", i)
		}
		for _, p := range points {
			if got := inv.Apply(pose.Apply(p)); !vecNear(got, p, 1e-9) {
				t.Errorf("pose %d: inverse(apply(%v)) = %v", i, p, got)
			}
		}
	}
}

func TestPoseDirectionAndOrigin(t *testing.T) {
	pose := YawPose(90, r3.Vec{X: 5, Y: 6, Z: 7})
	if got := pose.Origin(); got != (r3.Vec{X: 5, Y: 6, Z: 7}) {
		t.Errorf("Origin = %v", got)
	}
	// Sensor forward (+Y) turns to world -X after a 90 degree yaw.
	if got := pose.ApplyDirection(r3.Vec{Y: 1}); !vecNear(got, r3.Vec{X: -1}, 1e-12) {
		t.Errorf("ApplyDirection(+Y) = %v, want -X", got)
	}
}

func TestIsRigid(t *testing.T) {
	if !IdentityPose().IsRigid() {
		t.Error("identity should be rigid")
	}

	mirror := IdentityPose()
	mirror.T[0] = -1
	if mirror.IsRigid() {
		t.Error("reflection should not be rigid")
	}

	projective := IdentityPose()
	projective.T[12] = 0.5
	if projective.IsRigid() {
		t.Error("non-affine last row should not be rigid")
	}

	nan := IdentityPose()
	nan.T[3] = math.NaN()
	if nan.IsRigid() {
		t.Error("NaN translation should not be rigid")
	}

	// Determinant 1 but not orthonormal.
	shear := IdentityPose()
	shear.T[1] = 1
	if shear.IsRigid() {
		t.Error("shear should not be rigid")
	}
	squash := IdentityPose()
	squash.T[0], squash.T[5] = 2, 0.5
	if squash.IsRigid() {
		t.Error("non-uniform scale should not be rigid")
	}

	// Every rigid pose inverts exactly through the transpose.
	for _, yaw := range []float64{0, 30, 90, 237.5} {
		pose := YawPose(yaw, r3.Vec{X: 1, Y: -2, Z: 0.5})
		if !pose.IsRigid() {
			t.Fatalf("yaw %v should be rigid", yaw)
		}
		v := r3.Vec{X: 1, Y: 2, Z: 3}
		if got := pose.Inverse().Apply(pose.Apply(v)); !vecNear(got, v, 1e-9) {
			t.Errorf("yaw %v: inverse(apply(%v)) = %v", yaw, v, got)
		}
	}
}
