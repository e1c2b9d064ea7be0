package walker

import (
	"sync"

	"github.com/mwantia/gridindex/data"
)

// Unit is the outcome of one processed collection or partition.
type Unit struct {
	Name      string
	Kind      data.UnitKind
	Dir       string
	IndexPath string
	Status    string
	Err       error
}

func (u Unit) Failed() bool {
	return u.Err != nil
}

// Report lists every unit visited during a walk.
type Report struct {
	mu sync.Mutex

	Units []Unit
	// Reference to the top node, nil when the tree is empty or failed
	Root *data.ChildRef

	errors data.Errors
}

func (r *Report) add(unit Unit) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Units = append(r.Units, unit)
	// Cascaded parent failures repeat the cause, only the origin is kept
	if unit.Err != nil && unit.Status != StatusChildFailed {
		r.errors.Add(unit.Err)
	}
}

// Unit returns the unit with the given name and kind.
func (r *Report) Unit(name string, kind data.UnitKind) (Unit, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, unit := range r.Units {
		if unit.Name == name && unit.Kind == kind {
			return unit, true
		}
	}
	return Unit{}, false
}

// Failed returns every failed unit, including cascaded parents.
func (r *Report) Failed() []Unit {
	r.mu.Lock()
	defer r.mu.Unlock()

	var failed []Unit
	for _, unit := range r.Units {
		if unit.Failed() {
			failed = append(failed, unit)
		}
	}
	return failed
}

// Err joins the original cause of every failure.
func (r *Report) Err() error {
	return r.errors.Errors()
}
