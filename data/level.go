package data

import (
	"cmp"
	"strconv"
	"strings"
)

// Common vertical coordinate types.
const (
	LevelIsobaric          = "isobaric"
	LevelSurface           = "surface"
	LevelMeanSeaLevel      = "msl"
	LevelHeightAboveGround = "height_above_ground"
	LevelDepthBelowSurface = "depth_below_surface"
	LevelEntireAtmosphere  = "entire_atmosphere"
)

// Level is the vertical coordinate of a record. Layers carry both bounds.
type Level struct {
	Type   string  `cbor:"1,keyasint" json:"type"`
	Value  float64 `cbor:"2,keyasint,omitempty" json:"value,omitempty"`
	Value2 float64 `cbor:"3,keyasint,omitempty" json:"value2,omitempty"`
	Layer  bool    `cbor:"4,keyasint,omitempty" json:"layer,omitempty"`
}

func (l Level) String() string {
	value := strconv.FormatFloat(l.Value, 'g', -1, 64)
	if l.Layer {
		value += "-" + strconv.FormatFloat(l.Value2, 'g', -1, 64)
	}

	switch l.Type {
	case LevelSurface, LevelMeanSeaLevel, LevelEntireAtmosphere:
		if l.Value == 0 && !l.Layer {
			return l.Type
		}
	}
	return value + " " + strings.ReplaceAll(l.Type, "_", " ")
}

// CompareLevel orders levels by type, then by their natural value order:
// pressure levels from the surface upward (descending pressure), every
// other type ascending.
func CompareLevel(a, b Level) int {
	if c := strings.Compare(a.Type, b.Type); c != 0 {
		return c
	}

	if a.Type == LevelIsobaric {
		if c := cmp.Compare(b.Value, a.Value); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Value2, a.Value2); c != 0 {
			return c
		}
	} else {
		if c := cmp.Compare(a.Value, b.Value); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Value2, b.Value2); c != 0 {
			return c
		}
	}

	switch {
	case a.Layer == b.Layer:
		return 0
	case !a.Layer:
		return -1
	default:
		return 1
	}
}
