package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ehr/billing/internal/domain/terminology"
)

// Service owns the billing records. Every mutator resolves its parent chain
// before writing, and each write is a single statement.
type Service struct {
	patients   PatientRepository
	encounters EncounterRepository
	lineItems  LineItemRepository
	resolver   *Resolver
}

func NewService(p PatientRepository, e EncounterRepository, li LineItemRepository, codes terminology.ProcedureCodeRepository) *Service {
	return &Service{
		patients:   p,
		encounters: e,
		lineItems:  li,
		resolver:   NewResolver(p, e, codes),
	}
}

// -- Patients --

func (s *Service) CreatePatient(ctx context.Context, firstName, lastName string) (*Patient, error) {
	firstName = strings.TrimSpace(firstName)
	lastName = strings.TrimSpace(lastName)
	if firstName == "" {
		return nil, &ValidationError{Field: "first_name", Message: "first_name is required"}
	}
	if lastName == "" {
		return nil, &ValidationError{Field: "last_name", Message: "last_name is required"}
	}

	p := &Patient{ID: newID(), FirstName: firstName, LastName: lastName}
	if err := s.patients.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) GetPatient(ctx context.Context, patientID string) (*Patient, error) {
	chain, err := s.resolver.Resolve(ctx, ChainRequest{PatientID: patientID})
	if err != nil {
		return nil, err
	}
	return chain.Patient, nil
}

func (s *Service) ListPatients(ctx context.Context) ([]*Patient, error) {
	return s.patients.List(ctx)
}

// -- Encounters --

// CreateEncounter validates the date before any store access, then requires
// the patient to exist.
func (s *Service) CreateEncounter(ctx context.Context, patientID, dateText string) (*Encounter, error) {
	date, err := time.Parse(DateLayout, dateText)
	if err != nil {
		return nil, &ValidationError{Field: "date", Message: "invalid date format"}
	}

	chain, err := s.resolver.Resolve(ctx, ChainRequest{PatientID: patientID})
	if err != nil {
		return nil, err
	}

	e := &Encounter{ID: newID(), PatientID: chain.Patient.ID, Date: date}
	if err := s.encounters.Create(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Service) GetEncounter(ctx context.Context, patientID, encounterID string) (*Encounter, error) {
	chain, err := s.resolver.Resolve(ctx, ChainRequest{PatientID: patientID, EncounterID: &encounterID})
	if err != nil {
		return nil, err
	}
	return chain.Encounter, nil
}

func (s *Service) ListEncounters(ctx context.Context, patientID string) ([]*Encounter, error) {
	chain, err := s.resolver.Resolve(ctx, ChainRequest{PatientID: patientID})
	if err != nil {
		return nil, err
	}
	return s.encounters.ListByPatient(ctx, chain.Patient.ID)
}

// -- Line Items --

// CreateLineItem resolves patient, encounter and code in that order and
// returns the stored item with its code description.
func (s *Service) CreateLineItem(ctx context.Context, patientID, encounterID, code string, units int) (*LineItemDetail, error) {
	if units < 0 {
		return nil, &ValidationError{Field: "units", Message: "units must be zero or greater"}
	}
	if units > MaxUnits {
		return nil, &ValidationError{Field: "units", Message: fmt.Sprintf("units must be at most %d", MaxUnits)}
	}

	chain, err := s.resolver.Resolve(ctx, ChainRequest{
		PatientID:     patientID,
		EncounterID:   &encounterID,
		ProcedureCode: &code,
	})
	if err != nil {
		return nil, err
	}

	li := &LineItem{
		ID:            newID(),
		EncounterID:   chain.Encounter.ID,
		ProcedureCode: chain.ProcedureCode.Code,
		Units:         units,
	}
	if err := s.lineItems.Create(ctx, li); err != nil {
		return nil, err
	}
	return &LineItemDetail{LineItem: *li, Description: chain.ProcedureCode.Description}, nil
}

func (s *Service) ListLineItems(ctx context.Context, patientID, encounterID string) ([]*LineItemDetail, error) {
	chain, err := s.resolver.Resolve(ctx, ChainRequest{PatientID: patientID, EncounterID: &encounterID})
	if err != nil {
		return nil, err
	}
	return s.lineItems.ListDetailedByEncounter(ctx, chain.Encounter.ID)
}
