package patient

import (
	"time"

	"github.com/google/uuid"
)

// Patient maps to the patient table. Its reference fields (person,
// primaryProvider, careTeam) serialize as plain uuid identifiers; the
// expansion middleware replaces them with full resources on request.
type Patient struct {
	ID                uuid.UUID   `db:"id" json:"id"`
	MRN               string      `db:"mrn" json:"mrn"`
	Status            string      `db:"status" json:"status"`
	PersonID          *uuid.UUID  `db:"person_id" json:"person,omitempty"`
	PrimaryProviderID *uuid.UUID  `db:"primary_provider_id" json:"primaryProvider,omitempty"`
	CareTeamIDs       []uuid.UUID `db:"care_team_ids" json:"careTeam,omitempty"`
	CreatedAt         time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time   `db:"updated_at" json:"updatedAt"`
}
