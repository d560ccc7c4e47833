package billing

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/billing/internal/domain/terminology"
)

type fixture struct {
	svc   *Service
	store *MemStore
	codes *terminology.MemRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	codes := terminology.NewMemRepo()
	ctx := context.Background()
	require.NoError(t, codes.Create(ctx, &terminology.ProcedureCode{Code: "99213", Description: "Office visit established patient"}))
	require.NoError(t, codes.Create(ctx, &terminology.ProcedureCode{Code: "81001", Description: "Urinalysis automated with microscopy"}))

	store := NewMemStore(codes)
	return &fixture{
		svc:   NewService(store.Patients(), store.Encounters(), store.LineItems(), codes),
		store: store,
		codes: codes,
	}
}

func (f *fixture) patient(t *testing.T) *Patient {
	t.Helper()
	p, err := f.svc.CreatePatient(context.Background(), "Ada", "Lovelace")
	require.NoError(t, err)
	return p
}

func (f *fixture) encounter(t *testing.T, p *Patient) *Encounter {
	t.Helper()
	e, err := f.svc.CreateEncounter(context.Background(), p.ID.String(), "2024-03-15")
	require.NoError(t, err)
	return e
}

func TestService_CreatePatient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.CreatePatient(ctx, " Ada ", "Lovelace")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, p.ID)
	assert.Equal(t, uuid.Version(4), p.ID.Version())
	assert.Equal(t, "Ada", p.FirstName)

	got, err := f.svc.GetPatient(ctx, p.ID.String())
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, "Lovelace", got.LastName)
}

func TestService_CreatePatient_IDsAreUnique(t *testing.T) {
	f := newFixture(t)
	seen := map[uuid.UUID]bool{}
	for i := 0; i < 50; i++ {
		p := f.patient(t)
		assert.False(t, seen[p.ID])
		seen[p.ID] = true
	}
}

func TestService_CreatePatient_RequiresNames(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreatePatient(context.Background(), "", "Lovelace")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "first_name", verr.Field)

	_, err = f.svc.CreatePatient(context.Background(), "Ada", "   ")
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "last_name", verr.Field)

	patients, _ := f.svc.ListPatients(context.Background())
	assert.Empty(t, patients)
}

func TestService_GetPatient_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetPatient(context.Background(), uuid.New().String())
	assert.ErrorIs(t, err, ErrPatientNotFound)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.GetPatient(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, ErrPatientNotFound)
}

func TestService_ListPatients_InsertionOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	empty, err := f.svc.ListPatients(ctx)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	a := f.patient(t)
	b := f.patient(t)
	patients, err := f.svc.ListPatients(ctx)
	require.NoError(t, err)
	require.Len(t, patients, 2)
	assert.Equal(t, a.ID, patients[0].ID)
	assert.Equal(t, b.ID, patients[1].ID)
}

func TestService_CreateEncounter(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t)

	e := f.encounter(t, p)
	assert.Equal(t, p.ID, e.PatientID)
	assert.Equal(t, "2024-03-15", e.Date.Format(DateLayout))

	got, err := f.svc.GetEncounter(context.Background(), p.ID.String(), e.ID.String())
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)
}

func TestService_CreateEncounter_InvalidDateBeforePatientLookup(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t)

	for _, bad := range []string{"not-a-date", "", "2024-13-01", "2024-02-30", "15/03/2024", "2024-03-15T10:00:00Z"} {
		_, err := f.svc.CreateEncounter(context.Background(), p.ID.String(), bad)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, bad)
		assert.Equal(t, "invalid date format", verr.Message)
	}

	// The date is checked first, so an unknown patient still reports the date.
	_, err := f.svc.CreateEncounter(context.Background(), uuid.New().String(), "not-a-date")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	encounters, err := f.svc.ListEncounters(context.Background(), p.ID.String())
	require.NoError(t, err)
	assert.Empty(t, encounters)
}

func TestService_CreateEncounter_PatientNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateEncounter(context.Background(), uuid.New().String(), "2024-03-15")
	assert.ErrorIs(t, err, ErrPatientNotFound)
}

func TestService_GetEncounter_ForeignPatient(t *testing.T) {
	f := newFixture(t)
	owner := f.patient(t)
	other := f.patient(t)
	e := f.encounter(t, owner)

	_, err := f.svc.GetEncounter(context.Background(), other.ID.String(), e.ID.String())
	assert.ErrorIs(t, err, ErrEncounterNotFound)

	_, err = f.svc.CreateLineItem(context.Background(), other.ID.String(), e.ID.String(), "99213", 1)
	assert.ErrorIs(t, err, ErrEncounterNotFound)
}

func TestService_ListEncounters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.patient(t)
	other := f.patient(t)

	list, err := f.svc.ListEncounters(ctx, p.ID.String())
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	first := f.encounter(t, p)
	second := f.encounter(t, p)
	f.encounter(t, other)

	list, err = f.svc.ListEncounters(ctx, p.ID.String())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)

	_, err = f.svc.ListEncounters(ctx, uuid.New().String())
	assert.ErrorIs(t, err, ErrPatientNotFound)
}

func TestService_LineItemRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.patient(t)
	e := f.encounter(t, p)

	li, err := f.svc.CreateLineItem(ctx, p.ID.String(), e.ID.String(), "99213", 0)
	require.NoError(t, err)
	assert.Equal(t, "99213", li.ProcedureCode)
	assert.Equal(t, "Office visit established patient", li.Description)
	assert.Equal(t, 0, li.Units)

	_, err = f.svc.CreateLineItem(ctx, p.ID.String(), e.ID.String(), "81001", 1)
	require.NoError(t, err)

	items, err := f.svc.ListLineItems(ctx, p.ID.String(), e.ID.String())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "99213", items[0].ProcedureCode)
	assert.Equal(t, "Office visit established patient", items[0].Description)
	assert.Equal(t, 0, items[0].Units)
	assert.Equal(t, "81001", items[1].ProcedureCode)
	assert.Equal(t, "Urinalysis automated with microscopy", items[1].Description)
	assert.Equal(t, 1, items[1].Units)
}

func TestService_ListLineItems_Empty(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t)
	e := f.encounter(t, p)

	items, err := f.svc.ListLineItems(context.Background(), p.ID.String(), e.ID.String())
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestService_CreateLineItem_ChainOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.patient(t)
	e := f.encounter(t, p)
	missing := uuid.New().String()

	_, err := f.svc.CreateLineItem(ctx, missing, missing, "00000", 1)
	assert.ErrorIs(t, err, ErrPatientNotFound)

	_, err = f.svc.CreateLineItem(ctx, p.ID.String(), missing, "00000", 1)
	assert.ErrorIs(t, err, ErrEncounterNotFound)

	_, err = f.svc.CreateLineItem(ctx, p.ID.String(), e.ID.String(), "00000", 1)
	assert.ErrorIs(t, err, ErrProcedureCodeNotFound)

	items, _ := f.svc.ListLineItems(ctx, p.ID.String(), e.ID.String())
	assert.Empty(t, items)
}

func TestService_CreateLineItem_NegativeUnits(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t)
	e := f.encounter(t, p)

	_, err := f.svc.CreateLineItem(context.Background(), p.ID.String(), e.ID.String(), "99213", -1)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "units", verr.Field)
}

func TestService_CreateLineItem_UnitsBeyondColumnRange(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t)
	e := f.encounter(t, p)
	ctx := context.Background()

	_, err := f.svc.CreateLineItem(ctx, p.ID.String(), e.ID.String(), "99213", MaxUnits+1)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "units", verr.Field)
	assert.Equal(t, "units must be at most 2147483647", verr.Message)

	li, err := f.svc.CreateLineItem(ctx, p.ID.String(), e.ID.String(), "99213", MaxUnits)
	require.NoError(t, err)
	assert.Equal(t, MaxUnits, li.Units)
}

// failingLineItems simulates a store that rejects the insert after the chain
// has resolved.
type failingLineItems struct {
	LineItemRepository
	err error
}

func (f failingLineItems) Create(context.Context, *LineItem) error { return f.err }

func TestService_CreateLineItem_StoreIntegrityFailure(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t)
	e := f.encounter(t, p)

	svc := NewService(f.store.Patients(), f.store.Encounters(),
		failingLineItems{f.store.LineItems(), integrity("create line item", "line_item_units_check")}, f.codes)
	_, err := svc.CreateLineItem(context.Background(), p.ID.String(), e.ID.String(), "99213", 1)
	assert.ErrorIs(t, err, ErrDuplicate)

	boom := errors.New("connection reset")
	svc = NewService(f.store.Patients(), f.store.Encounters(), failingLineItems{f.store.LineItems(), boom}, f.codes)
	_, err = svc.CreateLineItem(context.Background(), p.ID.String(), e.ID.String(), "99213", 1)
	assert.ErrorIs(t, err, boom)
}
