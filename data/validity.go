package data

import (
	"cmp"
	"fmt"
	"strings"
	"time"
)

// StatKind is the statistical processing applied over a time interval.
type StatKind int

const (
	StatNone StatKind = iota
	StatAverage
	StatAccumulation
	StatDifference
	StatCovariance
	StatStdDev
	StatMinimum
	StatMaximum
)

func (s StatKind) String() string {
	switch s {
	case StatNone:
		return "none"
	case StatAverage:
		return "avg"
	case StatAccumulation:
		return "acc"
	case StatDifference:
		return "diff"
	case StatCovariance:
		return "covar"
	case StatStdDev:
		return "stddev"
	case StatMinimum:
		return "min"
	case StatMaximum:
		return "max"
	default:
		return fmt.Sprintf("stat(%d)", int(s))
	}
}

// ParseStatKind accepts the names produced by String and the common
// inventory abbreviations ("ave", "accum").
func ParseStatKind(s string) (StatKind, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return StatNone, nil
	case "avg", "ave", "average":
		return StatAverage, nil
	case "acc", "accum", "accumulation":
		return StatAccumulation, nil
	case "diff", "difference":
		return StatDifference, nil
	case "covar", "covariance":
		return StatCovariance, nil
	case "stddev", "std", "rms":
		return StatStdDev, nil
	case "min", "minimum":
		return StatMinimum, nil
	case "max", "maximum":
		return StatMaximum, nil
	default:
		return StatNone, fmt.Errorf("%w: unknown statistical kind '%s'", ErrInvalid, s)
	}
}

// Validity is the forecast/validity coordinate of a record.
// A point in time has Start equal to End and Kind StatNone.
type Validity struct {
	Start time.Time `cbor:"1,keyasint" json:"start"`
	End   time.Time `cbor:"2,keyasint" json:"end"`
	Kind  StatKind  `cbor:"3,keyasint,omitempty" json:"kind,omitempty"`
}

// At returns a point validity.
func At(t time.Time) Validity {
	return Validity{Start: t, End: t}
}

// Interval returns an interval validity with the given processing.
func Interval(start, end time.Time, kind StatKind) Validity {
	return Validity{Start: start, End: end, Kind: kind}
}

// IsInterval reports whether the validity spans a time range.
func (v Validity) IsInterval() bool {
	return !v.Start.Equal(v.End)
}

func (v Validity) String() string {
	if !v.IsInterval() {
		return v.Start.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("%s/%s %s", v.Start.UTC().Format(time.RFC3339), v.End.UTC().Format(time.RFC3339), v.Kind)
}

// CompareValidity orders by start, end, then processing kind.
func CompareValidity(a, b Validity) int {
	if c := a.Start.Compare(b.Start); c != 0 {
		return c
	}
	if c := a.End.Compare(b.End); c != 0 {
		return c
	}
	return cmp.Compare(a.Kind, b.Kind)
}
