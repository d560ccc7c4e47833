package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ehr/billing/internal/platform/db"
)

// storeError classifies a failed write. Constraint violations become
// ErrDuplicate; anything else is wrapped with op.
func storeError(op string, err error) error {
	if db.IsIntegrityViolation(err) {
		return fmt.Errorf("%s: %w (%s)", op, ErrDuplicate, db.ConstraintName(err))
	}
	return fmt.Errorf("%s: %w", op, err)
}

// =========== Patient Repository ===========

type patientRepoPG struct{ q db.Querier }

func NewPatientRepoPG(q db.Querier) PatientRepository { return &patientRepoPG{q: q} }

const patientCols = `id, first_name, last_name, created_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.CreatedAt)
	return &p, err
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	err := r.q.QueryRow(ctx,
		`INSERT INTO patient (id, first_name, last_name) VALUES ($1, $2, $3) RETURNING created_at`,
		p.ID, p.FirstName, p.LastName).Scan(&p.CreatedAt)
	if err != nil {
		return storeError("create patient", err)
	}
	return nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := scanPatient(r.q.QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return p, nil
}

func (r *patientRepoPG) List(ctx context.Context) ([]*Patient, error) {
	rows, err := r.q.Query(ctx, `SELECT `+patientCols+` FROM patient ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	items := []*Patient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

// =========== Encounter Repository ===========

type encounterRepoPG struct{ q db.Querier }

func NewEncounterRepoPG(q db.Querier) EncounterRepository { return &encounterRepoPG{q: q} }

const encounterCols = `id, patient_id, date, created_at`

func scanEncounter(row pgx.Row) (*Encounter, error) {
	var e Encounter
	err := row.Scan(&e.ID, &e.PatientID, &e.Date, &e.CreatedAt)
	return &e, err
}

func (r *encounterRepoPG) Create(ctx context.Context, e *Encounter) error {
	err := r.q.QueryRow(ctx,
		`INSERT INTO encounter (id, patient_id, date) VALUES ($1, $2, $3) RETURNING created_at`,
		e.ID, e.PatientID, e.Date).Scan(&e.CreatedAt)
	if err != nil {
		return storeError("create encounter", err)
	}
	return nil
}

func (r *encounterRepoPG) GetForPatient(ctx context.Context, patientID, id uuid.UUID) (*Encounter, error) {
	e, err := scanEncounter(r.q.QueryRow(ctx,
		`SELECT `+encounterCols+` FROM encounter WHERE id = $1 AND patient_id = $2`, id, patientID))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrEncounterNotFound
		}
		return nil, fmt.Errorf("get encounter: %w", err)
	}
	return e, nil
}

func (r *encounterRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Encounter, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+encounterCols+` FROM encounter WHERE patient_id = $1 ORDER BY created_at, id`, patientID)
	if err != nil {
		return nil, fmt.Errorf("list encounters: %w", err)
	}
	defer rows.Close()

	items := []*Encounter{}
	for rows.Next() {
		e, err := scanEncounter(rows)
		if err != nil {
			return nil, fmt.Errorf("scan encounter: %w", err)
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

// =========== Line Item Repository ===========

type lineItemRepoPG struct{ q db.Querier }

func NewLineItemRepoPG(q db.Querier) LineItemRepository { return &lineItemRepoPG{q: q} }

func (r *lineItemRepoPG) Create(ctx context.Context, li *LineItem) error {
	err := r.q.QueryRow(ctx,
		`INSERT INTO line_item (id, encounter_id, procedure_code, units) VALUES ($1, $2, $3, $4) RETURNING created_at`,
		li.ID, li.EncounterID, li.ProcedureCode, li.Units).Scan(&li.CreatedAt)
	if err != nil {
		return storeError("create line item", err)
	}
	return nil
}

func (r *lineItemRepoPG) ListDetailedByEncounter(ctx context.Context, encounterID uuid.UUID) ([]*LineItemDetail, error) {
	rows, err := r.q.Query(ctx, `
		SELECT li.id, li.encounter_id, li.procedure_code, li.units, li.created_at, pc.description
		FROM line_item li
		JOIN procedure_code pc ON pc.code = li.procedure_code
		WHERE li.encounter_id = $1
		ORDER BY li.created_at, li.id`, encounterID)
	if err != nil {
		return nil, fmt.Errorf("list line items: %w", err)
	}
	defer rows.Close()

	items := []*LineItemDetail{}
	for rows.Next() {
		var d LineItemDetail
		if err := rows.Scan(&d.ID, &d.EncounterID, &d.ProcedureCode, &d.Units, &d.CreatedAt, &d.Description); err != nil {
			return nil, fmt.Errorf("scan line item: %w", err)
		}
		items = append(items, &d)
	}
	return items, rows.Err()
}
