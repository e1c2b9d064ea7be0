package gridindex

import (
	"errors"

	"github.com/mwantia/gridindex/walker"
)

// Report summarizes one run.
type Report struct {
	*walker.Report

	Built  int
	Reused int

	// Ambiguities of every processed partition, built or reused
	Ambiguities []PartitionAmbiguity

	// Catalog and publishing failures
	aux error
}

// Err joins the unit failures with catalog and publishing failures.
func (r *Report) Err() error {
	return errors.Join(r.Report.Err(), r.aux)
}
