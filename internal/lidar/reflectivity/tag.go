package reflectivity

import (
	"fmt"
	"strings"
)

// Tag is the semantic classification of a hit object.
type Tag uint8

// Semantic tags reported by the ray caster.
const (
	TagNone Tag = iota
	TagRoads
	TagSidewalks
	TagBuildings
	TagWalls
	TagFences
	TagPoles
	TagTrafficLight
	TagTrafficSigns
	TagVegetation
	TagTerrain
	TagSky
	TagPedestrians
	TagRider
	TagCar
	TagTruck
	TagBus
	TagTrain
	TagMotorcycle
	TagBicycle
	TagStatic
	TagDynamic
	TagOther
	TagWater
	TagRoadLines
	TagGround
	TagBridge
	TagRailTrack
	TagGuardRail

	numTags
)

var tagNames = [numTags]string{
	TagNone:         "none",
	TagRoads:        "roads",
	TagSidewalks:    "sidewalks",
	TagBuildings:    "buildings",
	TagWalls:        "walls",
	TagFences:       "fences",
	TagPoles:        "poles",
	TagTrafficLight: "traffic_light",
	TagTrafficSigns: "traffic_signs",
	TagVegetation:   "vegetation",
	TagTerrain:      "terrain",
	TagSky:          "sky",
	TagPedestrians:  "pedestrians",
	TagRider:        "rider",
	TagCar:          "car",
	TagTruck:        "truck",
	TagBus:          "bus",
	TagTrain:        "train",
	TagMotorcycle:   "motorcycle",
	TagBicycle:      "bicycle",
	TagStatic:       "static",
	TagDynamic:      "dynamic",
	TagOther:        "other",
	TagWater:        "water",
	TagRoadLines:    "road_lines",
	TagGround:       "ground",
	TagBridge:       "bridge",
	TagRailTrack:    "rail_track",
	TagGuardRail:    "guard_rail",
}

// String returns the snake_case name of the tag, or "tag(N)" for unknown values.
func (t Tag) String() string {
	if t < numTags {
		return tagNames[t]
	}
	return fmt.Sprintf("tag(%d)", uint8(t))
}

// ParseTag resolves a tag by name, ignoring case.
func ParseTag(name string) (Tag, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for i, n := range tagNames {
		if n == key {
			return Tag(i), nil
		}
	}
	return TagNone, fmt.Errorf("unknown semantic tag %q", name)
}
