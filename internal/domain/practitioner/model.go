package practitioner

import (
	"time"

	"github.com/google/uuid"
)

// Practitioner maps to the practitioner table. The person field holds the
// identifier of the demographic record and serializes as a plain uuid
// string; the expansion middleware replaces it with the full person when
// a client asks for expand=person.
type Practitioner struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	PersonID  *uuid.UUID `db:"person_id" json:"person,omitempty"`
	Specialty *string    `db:"specialty" json:"specialty,omitempty"`
	NPI       *string    `db:"npi" json:"npi,omitempty"`
	Active    bool       `db:"active" json:"active"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time  `db:"updated_at" json:"updatedAt"`
}
