// Package scene is a small ray-castable world used to drive the fog LiDAR
// without a simulator: a ground plane plus axis-aligned boxes.
package scene

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/idslab-autosec/AutoSVT-carla/internal/lidar/reflectivity"
	"github.com/idslab-autosec/AutoSVT-carla/internal/lidar/sensor"
)

// Box is an axis-aligned obstacle in the world frame.
type Box struct {
	Min, Max r3.Vec
	Tag      reflectivity.Tag
	Label    string
}

// Scene is a ground plane at GroundZ and a set of boxes. It is read-only
// once built and safe for concurrent ray casts.
type Scene struct {
	GroundZ   float64
	GroundTag reflectivity.Tag
	NoGround  bool
	Boxes     []Box
}

// CastRay returns the nearest hit along origin + t*dir for t in (0, maxRange].
// dir need not be normalised.
func (s *Scene) CastRay(origin, dir r3.Vec, maxRange float64) sensor.Hit {
	n := r3.Norm(dir)
	if n == 0 || maxRange <= 0 {
		return sensor.Hit{}
	}
	dir = r3.Scale(1/n, dir)

	best := math.Inf(1)
	var hit sensor.Hit

	if !s.NoGround && dir.Z < 0 {
		if t := (s.GroundZ - origin.Z) / dir.Z; t > 0 && t < best {
			best = t
			hit = sensor.Hit{Tag: s.GroundTag}
		}
	}
	for i := range s.Boxes {
		b := &s.Boxes[i]
		if t, ok := rayBox(origin, dir, b.Min, b.Max); ok && t < best {
			best = t
			hit = sensor.Hit{Tag: b.Tag, Label: b.Label}
		}
	}

	if math.IsInf(best, 1) || best > maxRange {
		return sensor.Hit{}
	}
	hit.Valid = true
	hit.Distance = best
	hit.Point = r3.Add(origin, r3.Scale(best, dir))
	return hit
}

// rayBox is the slab test. It returns the entry distance, or the exit
// distance when the origin is inside the box.
func rayBox(o, d, lo, hi r3.Vec) (float64, bool) {
	tmin, tmax := math.Inf(-1), math.Inf(1)

	slab := func(o, d, lo, hi float64) bool {
		const eps = 1e-12
		if math.Abs(d) < eps {
			return o >= lo && o <= hi
		}
		t1, t2 := (lo-o)/d, (hi-o)/d
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = math.Max(tmin, t1)
		tmax = math.Min(tmax, t2)
		return true
	}

	if !slab(o.X, d.X, lo.X, hi.X) || !slab(o.Y, d.Y, lo.Y, hi.Y) || !slab(o.Z, d.Z, lo.Z, hi.Z) {
		return 0, false
	}
	if tmax < 0 || tmin > tmax {
		return 0, false
	}
	if tmin > 0 {
		return tmin, true
	}
	return tmax, tmax > 0
}

// DefaultScene is a straight road with parked cars, a building and a sign
// ahead of a sensor at the origin mounted 1.8 m above the road.
func DefaultScene() *Scene {
	return &Scene{
		GroundZ:   -1.8,
		GroundTag: reflectivity.TagRoads,
		Boxes: []Box{
			{Min: r3.Vec{X: -2.8, Y: 8, Z: -1.8}, Max: r3.Vec{X: -1.0, Y: 12.5, Z: -0.3}, Tag: reflectivity.TagCar, Label: "SM_Tesla_Model3_White"},
			{Min: r3.Vec{X: 1.2, Y: 20, Z: -1.8}, Max: r3.Vec{X: 3.0, Y: 24.8, Z: -0.2}, Tag: reflectivity.TagCar, Label: "BP_Police_Car"},
			{Min: r3.Vec{X: -3.0, Y: -15, Z: -1.8}, Max: r3.Vec{X: -1.2, Y: -10.5, Z: -0.3}, Tag: reflectivity.TagCar, Label: "SM_Tesla_Model3_Black"},
			{Min: r3.Vec{X: 8, Y: -30, Z: -1.8}, Max: r3.Vec{X: 20, Y: 30, Z: 10}, Tag: reflectivity.TagBuildings},
			{Min: r3.Vec{X: -25, Y: 35, Z: -1.8}, Max: r3.Vec{X: -10, Y: 60, Z: 6}, Tag: reflectivity.TagBuildings},
			{Min: r3.Vec{X: -6, Y: -40, Z: -1.8}, Max: r3.Vec{X: -5, Y: 40, Z: -0.8}, Tag: reflectivity.TagGuardRail},
			{Min: r3.Vec{X: 4.0, Y: 40, Z: 0.2}, Max: r3.Vec{X: 4.8, Y: 40.1, Z: 1.0}, Tag: reflectivity.TagTrafficSigns, Label: "SM_StopSign"},
			{Min: r3.Vec{X: 4.35, Y: 40, Z: -1.8}, Max: r3.Vec{X: 4.45, Y: 40.1, Z: 0.2}, Tag: reflectivity.TagPoles},
		},
	}
}

type vecJSON [3]float64

func (v vecJSON) vec() r3.Vec { return r3.Vec{X: v[0], Y: v[1], Z: v[2]} }

type boxJSON struct {
	Min   vecJSON `json:"min"`
	Max   vecJSON `json:"max"`
	Tag   string  `json:"tag"`
	Label string  `json:"label,omitempty"`
}

type sceneJSON struct {
	GroundZ   *float64  `json:"ground_z,omitempty"` // absent: no ground plane
	GroundTag string    `json:"ground_tag,omitempty"`
	Boxes     []boxJSON `json:"boxes"`
}

// Load reads a scene description:
//
//	{"ground_z": -1.8, "ground_tag": "roads",
//	 "boxes": [{"min": [x,y,z], "max": [x,y,z], "tag": "car", "label": "..."}]}
func Load(r io.Reader) (*Scene, error) {
	var doc sceneJSON
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse scene JSON: %w", err)
	}

	s := &Scene{NoGround: doc.GroundZ == nil, GroundTag: reflectivity.TagRoads}
	if doc.GroundZ != nil {
		s.GroundZ = *doc.GroundZ
	}
	if doc.GroundTag != "" {
		tag, err := reflectivity.ParseTag(doc.GroundTag)
		if err != nil {
			return nil, err
		}
		s.GroundTag = tag
	}
	for i, b := range doc.Boxes {
		tag, err := reflectivity.ParseTag(b.Tag)
		if err != nil {
			return nil, fmt.Errorf("box %d: %w", i, err)
		}
		lo, hi := b.Min.vec(), b.Max.vec()
		if lo.X > hi.X || lo.Y > hi.Y || lo.Z > hi.Z {
			return nil, fmt.Errorf("box %d: min %v exceeds max %v", i, lo, hi)
		}
		s.Boxes = append(s.Boxes, Box{Min: lo, Max: hi, Tag: tag, Label: b.Label})
	}
	return s, nil
}

// LoadFile reads a scene from a .json file.
func LoadFile(path string) (*Scene, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("scene file must have .json extension, got %q", ext)
	}
	f, err := os.Open(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open scene file: %w", err)
	}
	defer f.Close()
	return Load(f)
}
