package billing

import (
	"context"

	"github.com/google/uuid"
)

// Create methods return an error wrapping ErrDuplicate on any integrity
// violation. Lookups return the matching not-found sentinel.

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	List(ctx context.Context) ([]*Patient, error)
}

type EncounterRepository interface {
	Create(ctx context.Context, e *Encounter) error
	// GetForPatient matches on both ids, so another patient's encounter is
	// reported as ErrEncounterNotFound.
	GetForPatient(ctx context.Context, patientID, id uuid.UUID) (*Encounter, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Encounter, error)
}

type LineItemRepository interface {
	Create(ctx context.Context, li *LineItem) error
	// ListDetailedByEncounter returns line items in insertion order with their
	// code descriptions, or an empty slice.
	ListDetailedByEncounter(ctx context.Context, encounterID uuid.UUID) ([]*LineItemDetail, error)
}
