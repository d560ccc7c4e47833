package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/ehr/billing/internal/domain/terminology"
)

// ChainRequest names the links to resolve, in their external text form. Nil
// optional links are skipped.
type ChainRequest struct {
	PatientID     string
	EncounterID   *string
	ProcedureCode *string
}

// Chain holds the resolved records. Fields for links that were not requested
// are nil.
type Chain struct {
	Patient       *Patient
	Encounter     *Encounter
	ProcedureCode *terminology.ProcedureCode
}

// Resolver checks that a patient, an encounter belonging to that patient and a
// procedure code exist, in that order, stopping at the first missing link.
// Text that is not a valid id is treated as a missing record.
type Resolver struct {
	patients   PatientRepository
	encounters EncounterRepository
	codes      terminology.ProcedureCodeRepository
}

func NewResolver(patients PatientRepository, encounters EncounterRepository, codes terminology.ProcedureCodeRepository) *Resolver {
	return &Resolver{patients: patients, encounters: encounters, codes: codes}
}

func (r *Resolver) Resolve(ctx context.Context, req ChainRequest) (*Chain, error) {
	patientID, ok := parseID(req.PatientID)
	if !ok {
		return nil, ErrPatientNotFound
	}
	patient, err := r.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	chain := &Chain{Patient: patient}

	if req.EncounterID != nil {
		encounterID, ok := parseID(*req.EncounterID)
		if !ok {
			return nil, ErrEncounterNotFound
		}
		enc, err := r.encounters.GetForPatient(ctx, patient.ID, encounterID)
		if err != nil {
			return nil, err
		}
		chain.Encounter = enc
	}

	if req.ProcedureCode != nil {
		pc, err := r.codes.GetByCode(ctx, *req.ProcedureCode)
		if err != nil {
			if errors.Is(err, terminology.ErrNotFound) {
				return nil, ErrProcedureCodeNotFound
			}
			return nil, fmt.Errorf("resolve procedure code: %w", err)
		}
		chain.ProcedureCode = pc
	}

	return chain, nil
}
