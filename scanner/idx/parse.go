package idx

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mwantia/gridindex/data"
)

var levelTypes = map[string]string{
	"mb":                data.LevelIsobaric,
	"m above ground":    data.LevelHeightAboveGround,
	"m below ground":    data.LevelDepthBelowSurface,
	"surface":           data.LevelSurface,
	"mean sea level":    data.LevelMeanSeaLevel,
	"entire atmosphere": data.LevelEntireAtmosphere,
}

// ParseLevel converts an inventory level field ("500 mb", "1000-500 mb",
// "2 m above ground", "surface") into a level.
func ParseLevel(field string) (data.Level, error) {
	field = strings.TrimSpace(field)
	if field == "" {
		return data.Level{}, fmt.Errorf("empty level")
	}

	head, rest, found := strings.Cut(field, " ")
	if !found {
		return data.Level{Type: levelType(field)}, nil
	}

	if value, err := strconv.ParseFloat(head, 64); err == nil {
		return data.Level{Type: levelType(rest), Value: value}, nil
	}

	// Layers: "1000-500 mb", "0-0.1 m below ground"
	if i := strings.Index(head[1:], "-"); i >= 0 {
		lower, err1 := strconv.ParseFloat(head[:i+1], 64)
		upper, err2 := strconv.ParseFloat(head[i+2:], 64)
		if err1 == nil && err2 == nil {
			return data.Level{Type: levelType(rest), Value: lower, Value2: upper, Layer: true}, nil
		}
	}

	return data.Level{Type: levelType(field)}, nil
}

func levelType(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	if known, ok := levelTypes[text]; ok {
		return known
	}
	// "entire atmosphere (considered as a single layer)"
	if strings.HasPrefix(text, "entire atmosphere") {
		return data.LevelEntireAtmosphere
	}

	text = strings.NewReplacer("(", "", ")", "", ",", "").Replace(text)
	return strings.Join(strings.Fields(text), "_")
}

// ParseValidity converts an inventory forecast time field into a validity.
//
// Supported forms: "anl", "N min|hour|day fcst" and
// "A-B min|hour|day <stat> fcst|anl" where stat is acc, ave, max, min, ...
func ParseValidity(ref time.Time, field string) (data.Validity, error) {
	field = strings.TrimSpace(field)
	if field == "anl" {
		return data.At(ref), nil
	}

	parts := strings.Fields(field)
	switch len(parts) {
	case 3:
		// "6 hour fcst"
		if parts[2] != "fcst" {
			break
		}
		unit, err := timeUnit(parts[1])
		if err != nil {
			return data.Validity{}, err
		}
		n, err := strconv.Atoi(parts[0])
		if err != nil {
			break
		}
		return data.At(ref.Add(time.Duration(n) * unit)), nil

	case 4:
		// "0-6 hour acc fcst"
		if parts[3] != "fcst" && parts[3] != "anl" {
			break
		}
		from, to, ok := strings.Cut(parts[0], "-")
		if !ok {
			break
		}
		start, err1 := strconv.Atoi(from)
		end, err2 := strconv.Atoi(to)
		if err1 != nil || err2 != nil {
			break
		}
		if end < start {
			return data.Validity{}, fmt.Errorf("inverted time interval '%s'", field)
		}
		unit, err := timeUnit(parts[1])
		if err != nil {
			return data.Validity{}, err
		}
		kind, err := data.ParseStatKind(parts[2])
		if err != nil {
			return data.Validity{}, err
		}
		return data.Interval(ref.Add(time.Duration(start)*unit), ref.Add(time.Duration(end)*unit), kind), nil
	}

	return data.Validity{}, fmt.Errorf("unsupported forecast time '%s'", field)
}

func timeUnit(s string) (time.Duration, error) {
	switch s {
	case "min":
		return time.Minute, nil
	case "hour":
		return time.Hour, nil
	case "day":
		return 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unsupported time unit '%s'", s)
	}
}
