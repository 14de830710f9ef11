package person

import (
	"time"

	"github.com/google/uuid"
)

// Person maps to the person table. It is the demographic record referenced
// by patients and practitioners.
type Person struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	Active    bool       `db:"active" json:"active"`
	FirstName *string    `db:"first_name" json:"firstName,omitempty"`
	LastName  *string    `db:"last_name" json:"lastName,omitempty"`
	Gender    *string    `db:"gender" json:"gender,omitempty"`
	BirthDate *time.Time `db:"birth_date" json:"birthDate,omitempty"`
	Phone     *string    `db:"phone" json:"phone,omitempty"`
	Email     *string    `db:"email" json:"email,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time  `db:"updated_at" json:"updatedAt"`
}
