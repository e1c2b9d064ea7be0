package data

import "strings"

// Variable identifies one gridded quantity within an archive.
// Two variables are the same only when every field matches.
type Variable struct {
	// Short name as reported by the decoder (e.g. "TMP")
	Name string `cbor:"1,keyasint" json:"name"`

	// Vertical coordinate type (e.g. "isobaric", "surface")
	LevelType string `cbor:"2,keyasint" json:"level_type"`

	// Horizontal grid identity
	GridID string `cbor:"3,keyasint" json:"grid_id"`

	// Units if the decoder exposes them, empty otherwise
	Units string `cbor:"4,keyasint,omitempty" json:"units,omitempty"`

	// Statistical processing applied over the validity interval
	Stat StatKind `cbor:"5,keyasint,omitempty" json:"stat,omitempty"`
}

// Key returns the stable identity of the variable.
func (v Variable) Key() string {
	var sb strings.Builder
	sb.WriteString(v.Name)
	sb.WriteByte('|')
	sb.WriteString(v.LevelType)
	sb.WriteByte('|')
	sb.WriteString(v.GridID)
	sb.WriteByte('|')
	sb.WriteString(v.Units)
	sb.WriteByte('|')
	sb.WriteString(v.Stat.String())
	return sb.String()
}

// GroupKey identifies variables sharing a name on the same grid.
// Variants within one group are candidates for reconciliation ambiguity.
func (v Variable) GroupKey() string {
	return v.Name + "|" + v.GridID
}

func (v Variable) String() string {
	name := v.Name
	if v.Stat != StatNone {
		name += "_" + v.Stat.String()
	}
	if v.LevelType != "" {
		name += "@" + v.LevelType
	}
	return name
}

// CompareVariable orders variables by their identity key.
func CompareVariable(a, b Variable) int {
	return strings.Compare(a.Key(), b.Key())
}
