package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/billing/internal/domain/terminology"
)

// MemStore keeps patients, encounters and line items in memory and enforces
// the same primary key, foreign key and check constraints as the SQL schema.
// Procedure code references are checked against codes.
type MemStore struct {
	mu         sync.RWMutex
	codes      terminology.ProcedureCodeRepository
	patients   []*Patient
	encounters []*Encounter
	lineItems  []*LineItem
	seq        int64
}

func NewMemStore(codes terminology.ProcedureCodeRepository) *MemStore {
	return &MemStore{codes: codes}
}

func (m *MemStore) Patients() PatientRepository     { return memPatients{m} }
func (m *MemStore) Encounters() EncounterRepository { return memEncounters{m} }
func (m *MemStore) LineItems() LineItemRepository   { return memLineItems{m} }

// stamp returns strictly increasing creation times so insertion order survives
// ties on coarse clocks. Callers hold m.mu.
func (m *MemStore) stamp() time.Time {
	m.seq++
	return time.Now().UTC().Add(time.Duration(m.seq))
}

func integrity(op, constraint string) error {
	return fmt.Errorf("%s: %w (%s)", op, ErrDuplicate, constraint)
}

func (m *MemStore) findPatient(id uuid.UUID) *Patient {
	for _, p := range m.patients {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (m *MemStore) findEncounter(id uuid.UUID) *Encounter {
	for _, e := range m.encounters {
		if e.ID == id {
			return e
		}
	}
	return nil
}

type memPatients struct{ m *MemStore }

func (r memPatients) Create(_ context.Context, p *Patient) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.findPatient(p.ID) != nil {
		return integrity("create patient", "patient_pkey")
	}
	if strings.TrimSpace(p.FirstName) == "" || strings.TrimSpace(p.LastName) == "" {
		return integrity("create patient", "patient_name_check")
	}
	p.CreatedAt = r.m.stamp()
	cp := *p
	r.m.patients = append(r.m.patients, &cp)
	return nil
}

func (r memPatients) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	p := r.m.findPatient(id)
	if p == nil {
		return nil, ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

func (r memPatients) List(_ context.Context) ([]*Patient, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	out := make([]*Patient, 0, len(r.m.patients))
	for _, p := range r.m.patients {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

type memEncounters struct{ m *MemStore }

func (r memEncounters) Create(_ context.Context, e *Encounter) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.findEncounter(e.ID) != nil {
		return integrity("create encounter", "encounter_pkey")
	}
	if r.m.findPatient(e.PatientID) == nil {
		return integrity("create encounter", "encounter_patient_id_fkey")
	}
	e.CreatedAt = r.m.stamp()
	cp := *e
	r.m.encounters = append(r.m.encounters, &cp)
	return nil
}

func (r memEncounters) GetForPatient(_ context.Context, patientID, id uuid.UUID) (*Encounter, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	e := r.m.findEncounter(id)
	if e == nil || e.PatientID != patientID {
		return nil, ErrEncounterNotFound
	}
	cp := *e
	return &cp, nil
}

func (r memEncounters) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*Encounter, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	out := []*Encounter{}
	for _, e := range r.m.encounters {
		if e.PatientID == patientID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memLineItems struct{ m *MemStore }

func (r memLineItems) Create(ctx context.Context, li *LineItem) error {
	// Resolve the code before taking the lock; the code table is read-only.
	_, codeErr := r.m.codes.GetByCode(ctx, li.ProcedureCode)
	if codeErr != nil && !errors.Is(codeErr, terminology.ErrNotFound) {
		return fmt.Errorf("create line item: %w", codeErr)
	}

	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, existing := range r.m.lineItems {
		if existing.ID == li.ID {
			return integrity("create line item", "line_item_pkey")
		}
	}
	if r.m.findEncounter(li.EncounterID) == nil {
		return integrity("create line item", "line_item_encounter_id_fkey")
	}
	if codeErr != nil {
		return integrity("create line item", "line_item_procedure_code_fkey")
	}
	if li.Units < 0 {
		return integrity("create line item", "line_item_units_check")
	}
	li.CreatedAt = r.m.stamp()
	cp := *li
	r.m.lineItems = append(r.m.lineItems, &cp)
	return nil
}

func (r memLineItems) ListDetailedByEncounter(ctx context.Context, encounterID uuid.UUID) ([]*LineItemDetail, error) {
	r.m.mu.RLock()
	var matched []LineItem
	for _, li := range r.m.lineItems {
		if li.EncounterID == encounterID {
			matched = append(matched, *li)
		}
	}
	r.m.mu.RUnlock()

	out := make([]*LineItemDetail, 0, len(matched))
	for _, li := range matched {
		pc, err := r.m.codes.GetByCode(ctx, li.ProcedureCode)
		if err != nil {
			return nil, fmt.Errorf("list line items: %w", err)
		}
		out = append(out, &LineItemDetail{LineItem: li, Description: pc.Description})
	}
	return out, nil
}
