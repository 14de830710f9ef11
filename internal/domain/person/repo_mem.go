package person

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memRepo is an in-memory Repository used for STORAGE=memory and tests.
type memRepo struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*Person
}

func NewMemRepo() Repository {
	return &memRepo{records: make(map[uuid.UUID]*Person)}
}

func (r *memRepo) Create(ctx context.Context, p *Person) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	cp := *p
	r.records[p.ID] = &cp
	return nil
}

func (r *memRepo) GetByID(ctx context.Context, id uuid.UUID) (*Person, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memRepo) Update(ctx context.Context, p *Person) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.records[p.ID]
	if !ok {
		return ErrNotFound
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	cp := *p
	r.records[p.ID] = &cp
	return nil
}

func (r *memRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return ErrNotFound
	}
	delete(r.records, id)
	return nil
}

func (r *memRepo) List(ctx context.Context, limit, offset int) ([]*Person, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*Person, 0, len(r.records))
	for _, p := range r.records {
		cp := *p
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })

	total := len(all)
	if offset >= total {
		return []*Person{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}
