package person

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no person matches the given id.
var ErrNotFound = errors.New("person not found")

type Repository interface {
	Create(ctx context.Context, p *Person) error
	GetByID(ctx context.Context, id uuid.UUID) (*Person, error)
	Update(ctx context.Context, p *Person) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Person, int, error)
}
