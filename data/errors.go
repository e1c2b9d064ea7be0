package data

import (
	"errors"
	"fmt"
	"sync"
)

// Standard errors that indexing units should wrap.
var (
	// Traversal errors
	ErrDirectoryRead = errors.New("gridindex: directory read failed")
	ErrChildFailed   = errors.New("gridindex: child unit failed")

	// Build errors
	ErrFormatDecode        = errors.New("gridindex: record format decode failed")
	ErrStaleIndexViolation = errors.New("gridindex: index missing and rebuild forbidden")

	// Persisted index errors
	ErrVersionMismatch = errors.New("gridindex: index version mismatch")
	ErrCorruptIndex    = errors.New("gridindex: index corrupted")
	ErrIndexNotExist   = errors.New("gridindex: index does not exist")
	ErrIndexKind       = errors.New("gridindex: unexpected index kind")

	// Reconciliation
	ErrReconciliationAmbiguity = errors.New("gridindex: reconciliation ambiguity")

	// Catalog and publishing errors
	ErrEntryNotExist = errors.New("gridindex: catalog entry does not exist")
	ErrCatalogClosed = errors.New("gridindex: catalog is not open")
	ErrPublishFailed = errors.New("gridindex: index publish failed")
	ErrLockFailed    = errors.New("gridindex: lock acquisition failed")

	// Configuration errors
	ErrInvalidConfig = errors.New("gridindex: invalid configuration")
	ErrInvalid       = errors.New("gridindex: invalid argument")
)

// UnitError records the operation and path of a failed unit.
// It unwraps to the underlying cause, so callers use errors.Is against
// the sentinels above.
type UnitError struct {
	Op   string
	Path string
	Err  error
}

func (e *UnitError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s '%s': %v", e.Op, e.Path, e.Err)
}

func (e *UnitError) Unwrap() error {
	return e.Err
}

func newUnitError(op string, sentinel error, err error, path string) error {
	cause := sentinel
	if err != nil {
		cause = fmt.Errorf("%w: %w", sentinel, err)
	}
	return &UnitError{Op: op, Path: path, Err: cause}
}

func DirectoryRead(err error, path string) error {
	return newUnitError("read directory", ErrDirectoryRead, err, path)
}

func FormatDecode(err error, path string) error {
	return newUnitError("decode", ErrFormatDecode, err, path)
}

func StaleIndexViolation(path string) error {
	return newUnitError("load index", ErrStaleIndexViolation, nil, path)
}

func VersionMismatch(path string, got, want uint16) error {
	return newUnitError("load index", ErrVersionMismatch, fmt.Errorf("version %d, want %d", got, want), path)
}

func CorruptIndex(err error, path string) error {
	return newUnitError("load index", ErrCorruptIndex, err, path)
}

func ChildFailed(err error, path string) error {
	return newUnitError("merge partition", ErrChildFailed, err, path)
}

func InvalidConfig(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// Errors collects failures from independent units.
type Errors struct {
	mu     sync.RWMutex
	errors []error
}

func (e *Errors) Add(err error) {
	if err == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.errors = append(e.errors, err)
}

func (e *Errors) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return len(e.errors)
}

func (e *Errors) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.errors = make([]error, 0)
}

func (e *Errors) Errors() error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if len(e.errors) == 0 {
		return nil
	}

	return errors.Join(e.errors...)
}
