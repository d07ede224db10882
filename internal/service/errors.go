package service

import (
	"errors"
	"fmt"
)

// Common service errors
var (
	// ErrForbidden is returned when the caller may not act on a directorate, unit or record
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound is returned when a directorate or record does not exist
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput is returned when a period, unit or data payload fails validation
	ErrInvalidInput = errors.New("invalid input")

	// ErrStoreFailure is returned when the submission store cannot read or write
	ErrStoreFailure = errors.New("store failure")

	// ErrSyncFailure is returned when a manual mirror re-drive does not reach the spreadsheet
	ErrSyncFailure = errors.New("sync failure")

	// ErrConflict is returned when a record keeps changing underneath an update
	ErrConflict = errors.New("resource conflict")
)

// Orchestration steps reported on StepError
const (
	StepLookup     = "lookup"
	StepPermission = "permission"
	StepValidate   = "validate"
	StepStore      = "store"
	StepMirror     = "mirror"
)

// StepError tags an error with the orchestration step that produced it
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func stepErr(step string, err error) error {
	return &StepError{Step: step, Err: err}
}

// StepOf returns the failing step recorded on err, or "" when err carries none
func StepOf(err error) string {
	var se *StepError
	if errors.As(err, &se) {
		return se.Step
	}
	return ""
}
