package billing

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestResolver_FullChain(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t)
	e := f.encounter(t, p)
	r := NewResolver(f.store.Patients(), f.store.Encounters(), f.codes)

	chain, err := r.Resolve(context.Background(), ChainRequest{
		PatientID:     p.ID.String(),
		EncounterID:   strPtr(e.ID.String()),
		ProcedureCode: strPtr("81001"),
	})
	require.NoError(t, err)
	assert.Equal(t, p.ID, chain.Patient.ID)
	assert.Equal(t, e.ID, chain.Encounter.ID)
	assert.Equal(t, "81001", chain.ProcedureCode.Code)
}

func TestResolver_OptionalLinksSkipped(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t)
	r := NewResolver(f.store.Patients(), f.store.Encounters(), f.codes)

	chain, err := r.Resolve(context.Background(), ChainRequest{PatientID: p.ID.String()})
	require.NoError(t, err)
	assert.NotNil(t, chain.Patient)
	assert.Nil(t, chain.Encounter)
	assert.Nil(t, chain.ProcedureCode)
}

func TestResolver_StopsAtFirstMissingLink(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t)
	e := f.encounter(t, p)
	r := NewResolver(f.store.Patients(), f.store.Encounters(), f.codes)
	ctx := context.Background()

	tests := []struct {
		name string
		req  ChainRequest
		want error
	}{
		{"unknown patient", ChainRequest{PatientID: uuid.NewString(), EncounterID: strPtr("bad"), ProcedureCode: strPtr("bad")}, ErrPatientNotFound},
		{"malformed patient", ChainRequest{PatientID: "123", EncounterID: strPtr(e.ID.String())}, ErrPatientNotFound},
		{"unknown encounter", ChainRequest{PatientID: p.ID.String(), EncounterID: strPtr(uuid.NewString()), ProcedureCode: strPtr("bad")}, ErrEncounterNotFound},
		{"malformed encounter", ChainRequest{PatientID: p.ID.String(), EncounterID: strPtr("xyz")}, ErrEncounterNotFound},
		{"unknown code", ChainRequest{PatientID: p.ID.String(), EncounterID: strPtr(e.ID.String()), ProcedureCode: strPtr("00000")}, ErrProcedureCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
