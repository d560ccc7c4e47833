package billing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStore_EnforcesConstraints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.patient(t)
	e := f.encounter(t, p)

	dupPatient := &Patient{ID: p.ID, FirstName: "Grace", LastName: "Hopper"}
	assert.ErrorIs(t, f.store.Patients().Create(ctx, dupPatient), ErrDuplicate)

	orphan := &Encounter{ID: uuid.New(), PatientID: uuid.New(), Date: time.Now()}
	assert.ErrorIs(t, f.store.Encounters().Create(ctx, orphan), ErrDuplicate)

	lineItems := f.store.LineItems()
	assert.ErrorIs(t, lineItems.Create(ctx, &LineItem{ID: uuid.New(), EncounterID: uuid.New(), ProcedureCode: "99213"}), ErrDuplicate)
	assert.ErrorIs(t, lineItems.Create(ctx, &LineItem{ID: uuid.New(), EncounterID: e.ID, ProcedureCode: "00000"}), ErrDuplicate)
	assert.ErrorIs(t, lineItems.Create(ctx, &LineItem{ID: uuid.New(), EncounterID: e.ID, ProcedureCode: "99213", Units: -3}), ErrDuplicate)

	ok := &LineItem{ID: uuid.New(), EncounterID: e.ID, ProcedureCode: "99213", Units: 2}
	require.NoError(t, lineItems.Create(ctx, ok))
	assert.ErrorIs(t, lineItems.Create(ctx, &LineItem{ID: ok.ID, EncounterID: e.ID, ProcedureCode: "81001"}), ErrDuplicate)

	items, err := lineItems.ListDetailedByEncounter(ctx, e.ID)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestMemStore_ReturnsCopies(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t)

	got, err := f.store.Patients().GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	got.FirstName = "changed"

	again, _ := f.store.Patients().GetByID(context.Background(), p.ID)
	assert.Equal(t, "Ada", again.FirstName)
}

func TestMemStore_ConcurrentLineItemsOnOneEncounter(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t)
	e := f.encounter(t, p)
	ctx := context.Background()

	const workers = 32
	codes := []string{"99213", "81001"}
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.CreateLineItem(ctx, p.ID.String(), e.ID.String(), codes[i%len(codes)], i)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	items, err := f.svc.ListLineItems(ctx, p.ID.String(), e.ID.String())
	require.NoError(t, err)
	require.Len(t, items, workers)

	seen := make(map[uuid.UUID]bool, workers)
	units := make(map[int]bool, workers)
	for _, li := range items {
		assert.False(t, seen[li.ID], "duplicate id %s", li.ID)
		seen[li.ID] = true
		units[li.Units] = true
		assert.NotEmpty(t, li.Description)
	}
	assert.Len(t, units, workers)
}
