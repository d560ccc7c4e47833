package billing

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")

	ErrPatientNotFound       = fmt.Errorf("patient %w", ErrNotFound)
	ErrEncounterNotFound     = fmt.Errorf("encounter %w", ErrNotFound)
	ErrProcedureCodeNotFound = fmt.Errorf("CPT code %w", ErrNotFound)

	// ErrDuplicate covers every storage integrity failure, whichever table
	// constraint raised it.
	ErrDuplicate = errors.New("storage integrity violation")
)

// ValidationError is caller input that was rejected before touching the store.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
