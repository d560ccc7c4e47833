package billing

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// DateLayout is the only accepted encounter date format.
const DateLayout = "2006-01-02"

type Patient struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	CreatedAt time.Time `json:"-"`
}

type Encounter struct {
	ID        uuid.UUID `json:"id"`
	PatientID uuid.UUID `json:"patient_id"`
	Date      time.Time `json:"date"`
	CreatedAt time.Time `json:"-"`
}

// MaxUnits is the largest unit count the line_item.units INTEGER column holds.
const MaxUnits = math.MaxInt32

// LineItem is one billable procedure on an encounter. Units may be zero.
type LineItem struct {
	ID            uuid.UUID `json:"id"`
	EncounterID   uuid.UUID `json:"encounter_id"`
	ProcedureCode string    `json:"cpt_code"`
	Units         int       `json:"units"`
	CreatedAt     time.Time `json:"-"`
}

// LineItemDetail is a line item joined with its procedure code description.
type LineItemDetail struct {
	LineItem
	Description string `json:"cpt_code_description"`
}

// newID returns a random (v4) identifier. Ids are assigned before insert and
// never reused.
func newID() uuid.UUID {
	return uuid.New()
}

// parseID reports ok=false for text that is not a canonical UUID.
func parseID(s string) (uuid.UUID, bool) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
