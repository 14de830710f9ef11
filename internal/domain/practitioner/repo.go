package practitioner

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no practitioner matches the given id.
var ErrNotFound = errors.New("practitioner not found")

type Repository interface {
	Create(ctx context.Context, p *Practitioner) error
	GetByID(ctx context.Context, id uuid.UUID) (*Practitioner, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*Practitioner, error)
	Update(ctx context.Context, p *Practitioner) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Practitioner, int, error)
}
