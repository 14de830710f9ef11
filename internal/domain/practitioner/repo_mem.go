package practitioner

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
	records map[uuid.UUID]*Practitioner
}

func NewMemRepo() Repository {
	return &memRepo{records: make(map[uuid.UUID]*Practitioner)}
}

func (r *memRepo) Create(ctx context.Context, p *Practitioner) error {
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

func (r *memRepo) GetByID(ctx context.Context, id uuid.UUID) (*Practitioner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memRepo) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*Practitioner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var items []*Practitioner
	for _, id := range ids {
		if p, ok := r.records[id]; ok {
			cp := *p
			items = append(items, &cp)
		}
	}
	return items, nil
}

func (r *memRepo) Update(ctx context.Context, p *Practitioner) error {
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

func (r *memRepo) List(ctx context.Context, limit, offset int) ([]*Practitioner, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*Practitioner, 0, len(r.records))
	for _, p := range r.records {
		cp := *p
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })

	total := len(all)
	if offset >= total {
		return []*Practitioner{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}
