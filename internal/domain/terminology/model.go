package terminology

import (
	"errors"
	"time"
)

// ProcedureCode is a CPT procedure code and its description. Codes are loaded
// from reference data at startup and are read-only afterwards.
type ProcedureCode struct {
	Code        string    `json:"code"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"-"`
}

var (
	ErrNotFound  = errors.New("CPT code not found")
	ErrDuplicate = errors.New("duplicate CPT code")
)

// Search result caps.
const (
	DefaultSearchLimit = 20
	MaxSearchLimit     = 100
)
