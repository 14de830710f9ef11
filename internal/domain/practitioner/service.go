package practitioner

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func validateNPI(npi *string) error {
	if npi == nil {
		return nil
	}
	if len(*npi) != 10 {
		return fmt.Errorf("npi must be 10 digits")
	}
	for _, r := range *npi {
		if r < '0' || r > '9' {
			return fmt.Errorf("npi must be 10 digits")
		}
	}
	return nil
}

func (s *Service) Create(ctx context.Context, p *Practitioner) error {
	if err := validateNPI(p.NPI); err != nil {
		return err
	}
	return s.repo.Create(ctx, p)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Practitioner, error) {
	return s.repo.GetByID(ctx, id)
}

// GetMany returns the practitioners matching the given ids. Unknown ids
// are silently absent from the result; the batch endpoint's callers match
// results back by id.
func (s *Service) GetMany(ctx context.Context, ids []uuid.UUID) ([]*Practitioner, error) {
	return s.repo.GetByIDs(ctx, ids)
}

func (s *Service) Update(ctx context.Context, p *Practitioner) error {
	if err := validateNPI(p.NPI); err != nil {
		return err
	}
	return s.repo.Update(ctx, p)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Practitioner, int, error) {
	return s.repo.List(ctx, limit, offset)
}
