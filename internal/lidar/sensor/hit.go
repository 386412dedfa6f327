package sensor

import (
	"github.com/idslab-autosec/AutoSVT-carla/internal/lidar/reflectivity"
	"gonum.org/v1/gonum/spatial/r3"
)

// Hit is the result of casting one ray. Point is in the world frame and
// Distance is measured from the sensor origin.
type Hit struct {
	Valid    bool // false when the ray hit nothing within range
	Distance float64
	Tag      reflectivity.Tag
	Label    string // actor label used for reflectivity overrides; may be empty
	Point    r3.Vec
}

// RayCaster supplies hit geometry for one ray. dir is a unit vector in the
// world frame.
type RayCaster interface {
	CastRay(origin, dir r3.Vec, maxRange float64) Hit
}

// RayCasterFunc adapts a function to RayCaster.
type RayCasterFunc func(origin, dir r3.Vec, maxRange float64) Hit

// CastRay calls f.
func (f RayCasterFunc) CastRay(origin, dir r3.Vec, maxRange float64) Hit {
	return f(origin, dir, maxRange)
}
