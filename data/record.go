package data

import (
	"cmp"
	"fmt"
	"time"
)

// RecordDescriptor locates one decoded record inside a raw file.
// It is immutable once produced by a scanner.
type RecordDescriptor struct {
	Variable      Variable  `cbor:"1,keyasint" json:"variable"`
	ReferenceTime time.Time `cbor:"2,keyasint" json:"reference_time"`
	Validity      Validity  `cbor:"3,keyasint" json:"validity"`
	Level         Level     `cbor:"4,keyasint" json:"level"`

	// Index into the member list of the owning collection
	FileID int `cbor:"5,keyasint" json:"file_id"`

	// Byte range of the record within the raw file
	Offset int64 `cbor:"6,keyasint" json:"offset"`
	Length int64 `cbor:"7,keyasint" json:"length"`
}

func (rd RecordDescriptor) String() string {
	return fmt.Sprintf("%s ref=%s valid=%s level=%s file=%d [%d+%d]",
		rd.Variable, rd.ReferenceTime.UTC().Format(time.RFC3339), rd.Validity, rd.Level,
		rd.FileID, rd.Offset, rd.Length)
}

// CompareRecord is the total order of records within a collection:
// variable, reference time, level, validity, then physical location.
// Readers binary-search record tables sorted by this order.
func CompareRecord(a, b RecordDescriptor) int {
	if c := CompareVariable(a.Variable, b.Variable); c != 0 {
		return c
	}
	if c := a.ReferenceTime.Compare(b.ReferenceTime); c != 0 {
		return c
	}
	if c := CompareLevel(a.Level, b.Level); c != 0 {
		return c
	}
	if c := CompareValidity(a.Validity, b.Validity); c != 0 {
		return c
	}
	if c := cmp.Compare(a.FileID, b.FileID); c != 0 {
		return c
	}
	return cmp.Compare(a.Offset, b.Offset)
}

// LessRecord adapts CompareRecord for ordered containers.
func LessRecord(a, b RecordDescriptor) bool {
	return CompareRecord(a, b) < 0
}
